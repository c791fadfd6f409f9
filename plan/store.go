package plan

import (
	"context"

	"github.com/xraph/matrix/id"
)

// Store is the plan-level slice of the storage contract.
type Store interface {
	Create(ctx context.Context, p *PlanLevel) error
	Get(ctx context.Context, planID id.PlanLevelID) (*PlanLevel, error)
	GetByLevel(ctx context.Context, level int) (*PlanLevel, error)
	List(ctx context.Context, opts ListOpts) ([]*PlanLevel, error)
	Update(ctx context.Context, p *PlanLevel) error
	Retire(ctx context.Context, planID id.PlanLevelID) error

	GetSystemConfig(ctx context.Context) (*SystemConfig, error)
	PutSystemConfig(ctx context.Context, cfg *SystemConfig) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
