package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

// WithdrawalStatus tracks a payout request through dispatch.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalDispatched WithdrawalStatus = "DISPATCHED"
	WithdrawalPaid       WithdrawalStatus = "PAID"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// WithdrawalRequest is a pending disbursement of unpaid earnings. Reference
// is the idempotency key handed to the external dispatcher.
type WithdrawalRequest struct {
	types.Entity
	ID          id.WithdrawalID  `json:"id"`
	UserID      string           `json:"user_id"`
	Amount      types.Money      `json:"amount"`
	Destination string           `json:"destination"`
	Reference   string           `json:"reference"`
	Status      WithdrawalStatus `json:"status"`
	FailReason  string           `json:"fail_reason,omitempty"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
}

// NewWithdrawal builds a pending request with a fresh idempotency reference.
func NewWithdrawal(userID string, amount types.Money, destination string) *WithdrawalRequest {
	return &WithdrawalRequest{
		Entity:      types.NewEntity(),
		ID:          id.NewWithdrawalID(),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
		Reference:   uuid.NewString(),
		Status:      WithdrawalPending,
	}
}

// Terminal reports whether the request can no longer change state.
func (w *WithdrawalRequest) Terminal() bool {
	return w.Status == WithdrawalPaid || w.Status == WithdrawalFailed
}
