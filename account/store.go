package account

import (
	"context"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

// Store is the ledger slice of the storage contract. All balance mutations
// are expressed as increments so backends can apply them atomically.
type Store interface {
	// Get returns the user's account, creating a zeroed one on first touch.
	Get(ctx context.Context, userID string) (*Account, error)

	// ApplyEarning credits a bonus: total += amount, unpaid += payable,
	// reserve += withheld. The caller guarantees payable + withheld == amount.
	ApplyEarning(ctx context.Context, userID string, amount, payable, withheld types.Money) error

	// SettlePayout records a completed disbursement: unpaid -= amount,
	// paid += amount.
	SettlePayout(ctx context.Context, userID string, amount types.Money) error

	// ReleaseReserve moves held reserve back into unpaid earnings.
	ReleaseReserve(ctx context.Context, userID string, amount types.Money) error

	// GrantCredits adds plan credits (entry or cycle grants).
	GrantCredits(ctx context.Context, userID string, credits int64) error

	AppendTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, userID string, opts ListOpts) ([]*Transaction, error)

	CreateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, wID id.WithdrawalID) (*WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, userID string, status WithdrawalStatus) ([]*WithdrawalRequest, error)
}

type ListOpts struct {
	Purpose Purpose
	Level   int
	Limit   int
	Offset  int
}
