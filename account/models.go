// Package account holds per-user ledger balances and the append-only
// transaction log that audits every balance mutation.
package account

import (
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

// Account is a user's ledger balance. The conservation invariant
// Total = Paid + Unpaid + Reserve holds after every mutation; a violation is
// a defect that aborts the processing run.
type Account struct {
	types.Entity
	UserID         string      `json:"user_id"`
	TotalEarnings  types.Money `json:"total_earnings"`
	PaidEarnings   types.Money `json:"paid_earnings"`
	UnpaidEarnings types.Money `json:"unpaid_earnings"`
	ReserveHeld    types.Money `json:"reserve_held"`
	Credits        int64       `json:"credits"`
}

// New returns a zeroed account for the user in the given currency.
func New(userID, currency string) *Account {
	return &Account{
		Entity:         types.NewEntity(),
		UserID:         userID,
		TotalEarnings:  types.Zero(currency),
		PaidEarnings:   types.Zero(currency),
		UnpaidEarnings: types.Zero(currency),
		ReserveHeld:    types.Zero(currency),
	}
}

// Balanced reports whether the conservation invariant holds.
func (a *Account) Balanced() bool {
	sum := a.PaidEarnings.Add(a.UnpaidEarnings).Add(a.ReserveHeld)
	return a.TotalEarnings.Equal(sum)
}

// Purpose classifies a ledger transaction.
type Purpose string

const (
	PurposeReferral Purpose = "REFERRAL_BONUS"
	PurposeLevel    Purpose = "LEVEL_BONUS"
	PurposeCycle    Purpose = "CYCLE_BONUS"
	PurposeMatrix   Purpose = "MATRIX_BONUS"
	PurposeMatching Purpose = "MATCHING_BONUS"
)

// Transaction is one immutable row in the audit trail. Entries are appended
// by the payout engine and never updated or deleted.
type Transaction struct {
	types.Entity
	ID         id.TransactionID `json:"id"`
	UserID     string           `json:"user_id"`
	PositionID id.PositionID    `json:"position_id"`
	Level      int              `json:"level"`
	Amount     types.Money      `json:"amount"`
	Purpose    Purpose          `json:"purpose"`
	Note       string           `json:"note,omitempty"`
}
