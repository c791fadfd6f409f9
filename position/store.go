package position

import (
	"context"
	"time"

	"github.com/xraph/matrix/id"
)

// Store is the position-tree slice of the storage contract.
type Store interface {
	Create(ctx context.Context, p *Position) error
	Get(ctx context.Context, posID id.PositionID) (*Position, error)
	Update(ctx context.Context, p *Position) error

	// ActiveByOwner returns the owner's oldest ACTIVE position at level.
	ActiveByOwner(ctx context.Context, ownerID string, level int) (*Position, error)

	// ChildrenOf returns the direct children of a position in creation order.
	ChildrenOf(ctx context.Context, parentID id.PositionID) ([]*Position, error)

	// OldestOpen returns the earliest-created ACTIVE position at level with
	// fewer than width direct children (the global spillover fallback).
	OldestOpen(ctx context.Context, level, width int) (*Position, error)

	// ExistsRecent reports whether the owner received any position at level
	// created at or after the cutoff (cross-entry dedup check).
	ExistsRecent(ctx context.Context, ownerID string, level int, since time.Time) (bool, error)

	List(ctx context.Context, opts ListOpts) ([]*Position, error)
}

type ListOpts struct {
	OwnerID string
	Level   int
	Status  Status
	Limit   int
	Offset  int
}
