// Package position defines the forced-matrix tree nodes.
//
// A position's tree parent (ParentID, the attachment point) and its sponsor
// of record (SponsorID, the commission lineage) are deliberately independent
// fields: spillover routinely attaches an enrollee under someone other than
// the person who referred them.
package position

import (
	"time"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Position is one node in a plan level's tree. Positions are historical
// records: they are never deleted, only transitioned to COMPLETED or
// CANCELLED.
type Position struct {
	types.Entity
	ID        id.PositionID `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Level     int           `json:"level"`
	ParentID  id.PositionID `json:"parent_id,omitempty"`  // attachment point, nil for roots
	SponsorID string        `json:"sponsor_id,omitempty"` // original referrer's user id

	// ChildCounts[d-1] is the number of descendants realized at relative
	// depth d. ChildCounts[0] doubles as the direct child slot counter.
	ChildCounts []int64 `json:"child_counts"`

	TotalEarned types.Money `json:"total_earned"`
	CycleCount  int         `json:"cycle_count"`
	Status      Status      `json:"status"`
	CycledAt    *time.Time  `json:"cycled_at,omitempty"`
}

// New creates an ACTIVE position with zeroed counters sized for depth.
func New(ownerID string, level, depth int, sponsorID, currency string) *Position {
	return &Position{
		Entity:      types.NewEntity(),
		ID:          id.NewPositionID(),
		OwnerID:     ownerID,
		Level:       level,
		SponsorID:   sponsorID,
		ChildCounts: make([]int64, depth),
		TotalEarned: types.Zero(currency),
		Status:      StatusActive,
	}
}

// ChildCount returns the realized descendant count at relative depth d,
// or 0 when d is out of range.
func (p *Position) ChildCount(d int) int64 {
	if d < 1 || d > len(p.ChildCounts) {
		return 0
	}
	return p.ChildCounts[d-1]
}

// Record increments the realized descendant counter at relative depth d.
func (p *Position) Record(d int) {
	for len(p.ChildCounts) < d {
		p.ChildCounts = append(p.ChildCounts, 0)
	}
	p.ChildCounts[d-1]++
}

// HasOpenSlot reports whether the position can accept another direct child.
func (p *Position) HasOpenSlot(width int) bool {
	return p.ChildCount(1) < int64(width)
}

// FilledAt reports whether the slots at relative depth d are exactly full
// for the given width (width^d realized descendants).
func (p *Position) FilledAt(d, width int) bool {
	c := int64(1)
	for i := 0; i < d; i++ {
		c *= int64(width)
	}
	return p.ChildCount(d) == c
}

// IsActive reports whether the position can still receive attachments.
func (p *Position) IsActive() bool { return p.Status == StatusActive }
