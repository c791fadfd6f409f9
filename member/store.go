package member

import "context"

// Store is the member-directory slice of the storage contract.
type Store interface {
	Upsert(ctx context.Context, m *Member) error
	Get(ctx context.Context, userID string) (*Member, error)
	GetByUsername(ctx context.Context, username string) (*Member, error)
}
