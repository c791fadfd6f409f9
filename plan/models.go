// Package plan defines the per-level compensation plan configuration.
//
// A PlanLevel is immutable from the engine's point of view: it is created at
// plan setup and only read during placement and payout.
package plan

import (
	"fmt"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

// MaxDepth bounds bonus propagation; the ancestor walk is an explicit loop
// over at most this many levels.
const MaxDepth = 10

// MaxCrossEntries bounds the number of cross-plan entry rules per level.
const MaxCrossEntries = 5

type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// PayoutMode selects which bonus table the ancestor walk draws from.
type PayoutMode string

const (
	// PayoutPerLevel pays PerLevelBonus[d] to each ancestor on every
	// realized descendant, regardless of slot fill.
	PayoutPerLevel PayoutMode = "per_level"

	// PayoutCycleOnFill pays CycleBonus[d] to an ancestor only at the
	// moment its depth-d slots become completely full.
	PayoutCycleOnFill PayoutMode = "cycle_on_fill"

	// PayoutFullCycleOnly pays a single MatrixBonus only when the deepest
	// configured level fills (a full cycle); intermediate depths pay nothing.
	PayoutFullCycleOnly PayoutMode = "full_cycle_only"
)

// CrossEntryRule describes an automatic entry into another plan level
// granted when a position completes a cycle.
type CrossEntryRule struct {
	Enabled     bool `json:"enabled"`
	Count       int  `json:"count"`
	TargetLevel int  `json:"target_level"`
}

// PlanLevel is one compensation tier: its own tree geometry, bonus tables,
// credit grants, and cycle-completion side effects.
type PlanLevel struct {
	types.Entity
	ID       id.PlanLevelID `json:"id"`
	Level    int            `json:"level"` // unique ordinal key
	Name     string         `json:"name"`
	Currency string         `json:"currency"`
	Price    types.Money    `json:"price"` // enrollment price, informational
	Status   Status         `json:"status"`

	// Tree geometry.
	Width int `json:"width"` // max direct children per position
	Depth int `json:"depth"` // bonus propagation depth, 1..MaxDepth

	// Bonus tables. Per-depth slices are indexed by depth-1 and must have
	// exactly Depth entries.
	ReferralBonus       types.Money   `json:"referral_bonus"`
	PerLevelBonus       []types.Money `json:"per_level_bonus"`
	MatchingBonus       []types.Money `json:"matching_bonus"`
	CycleBonus          []types.Money `json:"cycle_bonus"`
	CycleMatchingBonus  []types.Money `json:"cycle_matching_bonus"`
	MatrixBonus         types.Money   `json:"matrix_bonus"`
	MatrixMatchingBonus types.Money   `json:"matrix_matching_bonus"`

	PayoutMode PayoutMode `json:"payout_mode"`

	// Credit grants.
	EntryCredits int64 `json:"entry_credits"`
	CycleCredits int64 `json:"cycle_credits"`

	// Cycle-completion side effects.
	ReentryCount int              `json:"reentry_count"`
	CrossEntries []CrossEntryRule `json:"cross_entries,omitempty"`
}

// Capacity returns the number of descendant slots at relative depth d
// (width^d). d must be in 1..Depth.
func (p *PlanLevel) Capacity(d int) int64 {
	c := int64(1)
	for i := 0; i < d; i++ {
		c *= int64(p.Width)
	}
	return c
}

// LevelBonus returns the configured per-level bonus for relative depth d,
// or zero money when the table has no entry.
func (p *PlanLevel) LevelBonus(d int) types.Money {
	return indexBonus(p.PerLevelBonus, d, p.Currency)
}

// LevelMatchingBonus returns the matching bonus paired with LevelBonus.
func (p *PlanLevel) LevelMatchingBonus(d int) types.Money {
	return indexBonus(p.MatchingBonus, d, p.Currency)
}

// FillBonus returns the configured cycle bonus for relative depth d.
func (p *PlanLevel) FillBonus(d int) types.Money {
	return indexBonus(p.CycleBonus, d, p.Currency)
}

// FillMatchingBonus returns the matching bonus paired with FillBonus.
func (p *PlanLevel) FillMatchingBonus(d int) types.Money {
	return indexBonus(p.CycleMatchingBonus, d, p.Currency)
}

// Validate reports whether the plan level is internally consistent.
func (p *PlanLevel) Validate() error {
	if p.Level < 1 {
		return fmt.Errorf("plan: level must be >= 1, got %d", p.Level)
	}
	if p.Width < 1 {
		return fmt.Errorf("plan: width must be >= 1, got %d", p.Width)
	}
	if p.Depth < 1 || p.Depth > MaxDepth {
		return fmt.Errorf("plan: depth must be in 1..%d, got %d", MaxDepth, p.Depth)
	}
	if p.Currency == "" {
		return fmt.Errorf("plan: currency is required")
	}
	for _, tbl := range []struct {
		name    string
		bonuses []types.Money
	}{
		{"per_level_bonus", p.PerLevelBonus},
		{"matching_bonus", p.MatchingBonus},
		{"cycle_bonus", p.CycleBonus},
		{"cycle_matching_bonus", p.CycleMatchingBonus},
	} {
		if len(tbl.bonuses) > p.Depth {
			return fmt.Errorf("plan: %s has %d entries, depth is %d", tbl.name, len(tbl.bonuses), p.Depth)
		}
		for i, b := range tbl.bonuses {
			if b.IsNegative() {
				return fmt.Errorf("plan: %s[%d] is negative", tbl.name, i)
			}
			if b.Currency != "" && b.Currency != p.Currency {
				return fmt.Errorf("plan: %s[%d] currency %q does not match plan currency %q",
					tbl.name, i, b.Currency, p.Currency)
			}
		}
	}
	if len(p.CrossEntries) > MaxCrossEntries {
		return fmt.Errorf("plan: at most %d cross-entry rules, got %d", MaxCrossEntries, len(p.CrossEntries))
	}
	for i, rule := range p.CrossEntries {
		if rule.Enabled && rule.Count < 1 {
			return fmt.Errorf("plan: cross_entries[%d] enabled with count %d", i, rule.Count)
		}
		if rule.Enabled && rule.TargetLevel < 1 {
			return fmt.Errorf("plan: cross_entries[%d] has invalid target level %d", i, rule.TargetLevel)
		}
	}
	if p.ReentryCount < 0 {
		return fmt.Errorf("plan: reentry_count is negative")
	}
	return nil
}

// indexBonus returns table[d-1] or zero money when out of range.
func indexBonus(table []types.Money, d int, currency string) types.Money {
	if d < 1 || d > len(table) {
		return types.Zero(currency)
	}
	b := table[d-1]
	if b.Currency == "" {
		b.Currency = currency
	}
	return b
}

// SystemConfig holds engine-wide settings shared by all plan levels.
type SystemConfig struct {
	types.Entity

	// ReservePercent is withheld from every bonus (0..100).
	ReservePercent int `json:"reserve_percent"`

	// AllowSponsorLookup enables walking up the referral chain when the
	// direct sponsor has no active position at the target level.
	AllowSponsorLookup bool `json:"allow_sponsor_lookup"`

	// SponsorLookupHops bounds the referral-chain walk.
	SponsorLookupHops int `json:"sponsor_lookup_hops"`

	// NonMatrixMatch pays matching bonuses even when the upline has no
	// active position in the plan level.
	NonMatrixMatch bool `json:"non_matrix_match"`

	// Currency is the system default for zero-valued bonus entries.
	Currency string `json:"currency"`

	// AutoDisburse enables fire-and-forget withdrawal dispatch after each
	// ledger credit.
	AutoDisburse bool `json:"auto_disburse"`

	// DisburseMinimum withholds dispatch for payable amounts below this
	// threshold; the balance stays in unpaid earnings.
	DisburseMinimum types.Money `json:"disburse_minimum"`
}

// DefaultSystemConfig returns a SystemConfig with sensible defaults.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Entity:            types.NewEntity(),
		ReservePercent:    0,
		SponsorLookupHops: 5,
		Currency:          "usd",
	}
}

// Validate reports whether the system config is usable.
func (c *SystemConfig) Validate() error {
	if c.ReservePercent < 0 || c.ReservePercent > 100 {
		return fmt.Errorf("plan: reserve_percent must be in 0..100, got %d", c.ReservePercent)
	}
	if c.SponsorLookupHops < 0 {
		return fmt.Errorf("plan: sponsor_lookup_hops is negative")
	}
	if c.Currency == "" {
		return fmt.Errorf("plan: currency is required")
	}
	return nil
}
