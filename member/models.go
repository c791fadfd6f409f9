// Package member is the engine's minimal enrollment directory: who a user
// is, which username identifies them in enrollment events, and who referred
// them. Account management proper lives in the host application; the engine
// only needs the referral linkage for sponsor resolution.
package member

import "github.com/xraph/matrix/types"

// Member links an external user id to its referral lineage.
type Member struct {
	types.Entity
	ID            string `json:"id"`       // external user id, opaque to the engine
	Username      string `json:"username"` // unique handle used in enrollment events
	ReferrerID    string `json:"referrer_id,omitempty"`
	PayoutAddress string `json:"payout_address,omitempty"` // external disbursement address
}
