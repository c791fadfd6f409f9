// Package store defines the unified storage contract implemented by the
// memory, sqlite, postgres and mongo backends.
package store

import (
	"context"
	"time"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/types"
)

// Store is the unified storage interface for all matrix entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Plan methods
	CreatePlanLevel(ctx context.Context, p *plan.PlanLevel) error
	GetPlanLevel(ctx context.Context, planID id.PlanLevelID) (*plan.PlanLevel, error)
	GetPlanByLevel(ctx context.Context, level int) (*plan.PlanLevel, error)
	ListPlanLevels(ctx context.Context, opts plan.ListOpts) ([]*plan.PlanLevel, error)
	UpdatePlanLevel(ctx context.Context, p *plan.PlanLevel) error
	RetirePlanLevel(ctx context.Context, planID id.PlanLevelID) error
	GetSystemConfig(ctx context.Context) (*plan.SystemConfig, error)
	PutSystemConfig(ctx context.Context, cfg *plan.SystemConfig) error

	// Position methods
	CreatePosition(ctx context.Context, p *position.Position) error
	GetPosition(ctx context.Context, posID id.PositionID) (*position.Position, error)
	UpdatePosition(ctx context.Context, p *position.Position) error
	ActivePositionByOwner(ctx context.Context, ownerID string, level int) (*position.Position, error)
	ChildrenOf(ctx context.Context, parentID id.PositionID) ([]*position.Position, error)
	OldestOpenPosition(ctx context.Context, level, width int) (*position.Position, error)
	PositionExistsRecent(ctx context.Context, ownerID string, level int, since time.Time) (bool, error)
	ListPositions(ctx context.Context, opts position.ListOpts) ([]*position.Position, error)

	// Account methods
	GetAccount(ctx context.Context, userID string) (*account.Account, error)
	ApplyEarning(ctx context.Context, userID string, amount, payable, withheld types.Money) error
	SettlePayout(ctx context.Context, userID string, amount types.Money) error
	ReleaseReserve(ctx context.Context, userID string, amount types.Money) error
	GrantCredits(ctx context.Context, userID string, credits int64) error
	AppendTransaction(ctx context.Context, t *account.Transaction) error
	ListTransactions(ctx context.Context, userID string, opts account.ListOpts) ([]*account.Transaction, error)

	// Withdrawal methods
	CreateWithdrawal(ctx context.Context, w *account.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, wID id.WithdrawalID) (*account.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *account.WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, userID string, status account.WithdrawalStatus) ([]*account.WithdrawalRequest, error)

	// Member methods
	UpsertMember(ctx context.Context, m *member.Member) error
	GetMember(ctx context.Context, userID string) (*member.Member, error)
	GetMemberByUsername(ctx context.Context, username string) (*member.Member, error)

	// Queue methods
	EnqueueEvent(ctx context.Context, e *queue.Event) error
	DueEvents(ctx context.Context, now time.Time, limit int) ([]*queue.Event, error)
	DeleteEvent(ctx context.Context, eventID id.EnrollmentID) error
	BumpAttempts(ctx context.Context, eventID id.EnrollmentID) error
	LatestEventFor(ctx context.Context, ownerID string, level int, since time.Time) (*queue.Event, error)
	CountEvents(ctx context.Context) (int, error)
	AcquireRun(ctx context.Context) (bool, error)
	ReleaseRun(ctx context.Context, lastEventID id.EnrollmentID, report queue.RunReport) error
	RunState(ctx context.Context) (*queue.RunState, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Transactional is an optional capability. Backends that can wrap a batch of
// mutations atomically implement it; the processor falls back to ordered
// single writes when the store does not.
type Transactional interface {
	// WithinTx runs fn against a transactional view of the store. Any error
	// from fn rolls every mutation back.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
