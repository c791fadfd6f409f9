package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/plugin"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

// DefaultBatchSize is the number of events a scheduled run consumes.
const DefaultBatchSize = 24

// WithdrawalDispatcher sends funds to an external address. It is a
// capability the host application provides; the engine never implements a
// payment gateway itself.
type WithdrawalDispatcher interface {
	// Disburse sends amount to address. reference is an idempotency key;
	// the returned externalTxID is the gateway's own identifier.
	Disburse(ctx context.Context, userID string, amount types.Money, address, reference string) (externalTxID string, err error)
}

// Engine is the forced-matrix placement and payout engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	dispatcher WithdrawalDispatcher

	// Background workers
	dispatchQueue chan id.WithdrawalID
	stopChan      chan struct{}
	wg            sync.WaitGroup

	// Configuration
	processorInterval time.Duration
	batchSize         int
	dispatchBuffer    int
	dispatchTimeout   time.Duration

	now func() time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		stopChan:          make(chan struct{}),
		processorInterval: 2 * time.Minute,
		batchSize:         DefaultBatchSize,
		dispatchBuffer:    1024,
		dispatchTimeout:   30 * time.Second,
		now:               func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	e.dispatchQueue = make(chan id.WithdrawalID, e.dispatchBuffer)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithProcessorInterval sets how often the background processor runs a batch.
func WithProcessorInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.processorInterval = interval
	}
}

// WithBatchSize sets the maximum events consumed per run.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		e.batchSize = n
	}
}

// WithDispatchBuffer sets the withdrawal dispatch queue capacity.
func WithDispatchBuffer(n int) Option {
	return func(e *Engine) {
		e.dispatchBuffer = n
	}
}

// WithDispatcher sets the withdrawal dispatcher capability.
func WithDispatcher(d WithdrawalDispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithNotifier registers a notification sink.
func WithNotifier(sink plugin.NotificationSink) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(sink) //nolint:errcheck
	}
}

// WithClock overrides the engine's time source. Used by tests to drive
// scheduling and the dedup window deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start batch processor worker
	e.wg.Add(1)
	go e.processorWorker(ctx)

	// Start withdrawal dispatch worker
	e.wg.Add(1)
	go e.dispatchWorker(ctx)

	e.logger.Info("matrix engine started",
		"processor_interval", e.processorInterval,
		"batch_size", e.batchSize,
		"dispatch_buffer", e.dispatchBuffer,
	)

	return nil
}

// Stop shuts down the engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// processorWorker runs a batch on a fixed interval until stopped. Overlap
// is prevented by the persisted run guard, not by this goroutine.
func (e *Engine) processorWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.processorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunBatch(ctx, e.batchSize); err != nil {
				e.logger.Error("scheduled batch run failed", "error", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlanLevel creates a new compensation tier.
func (e *Engine) CreatePlanLevel(ctx context.Context, p *plan.PlanLevel) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p.ID.IsNil() {
		p.ID = id.NewPlanLevelID()
	}
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	p.Entity = types.NewEntity()

	if err := e.store.CreatePlanLevel(ctx, p); err != nil {
		return err
	}

	e.plugins.EmitPlanLevelCreated(ctx, p)
	return nil
}

// GetPlanLevel retrieves a plan level by ID.
func (e *Engine) GetPlanLevel(ctx context.Context, planID id.PlanLevelID) (*plan.PlanLevel, error) {
	return e.store.GetPlanLevel(ctx, planID)
}

// GetPlanByLevel retrieves a plan level by its ordinal.
func (e *Engine) GetPlanByLevel(ctx context.Context, level int) (*plan.PlanLevel, error) {
	return e.store.GetPlanByLevel(ctx, level)
}

// ListPlanLevels lists plan levels.
func (e *Engine) ListPlanLevels(ctx context.Context, opts plan.ListOpts) ([]*plan.PlanLevel, error) {
	return e.store.ListPlanLevels(ctx, opts)
}

// RetirePlanLevel retires a plan level so it accepts no further placements.
func (e *Engine) RetirePlanLevel(ctx context.Context, planID id.PlanLevelID) error {
	if err := e.store.RetirePlanLevel(ctx, planID); err != nil {
		return err
	}
	e.plugins.EmitPlanLevelRetired(ctx, planID.String())
	return nil
}

// SetSystemConfig replaces the singleton system configuration.
func (e *Engine) SetSystemConfig(ctx context.Context, cfg *plan.SystemConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return e.store.PutSystemConfig(ctx, cfg)
}

// SystemConfig returns the current system configuration, falling back to
// defaults when none has been stored.
func (e *Engine) SystemConfig(ctx context.Context) (*plan.SystemConfig, error) {
	cfg, err := e.store.GetSystemConfig(ctx)
	if err != nil {
		if IsNotFound(err) {
			def := plan.DefaultSystemConfig()
			return &def, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ──────────────────────────────────────────────────
// Enrollment
// ──────────────────────────────────────────────────

// Enroll registers the member if unknown and queues a new-entry event for
// the given plan level. Placement happens on the next batch run.
func (e *Engine) Enroll(ctx context.Context, m *member.Member, level int, sponsorUsername string) (*queue.Event, error) {
	if m == nil || m.ID == "" || m.Username == "" {
		return nil, fmt.Errorf("%w: member id and username required", ErrInvalidInput)
	}

	pl, err := e.store.GetPlanByLevel(ctx, level)
	if err != nil {
		return nil, err
	}
	if pl.Status != plan.StatusActive {
		return nil, ErrPlanLevelRetired
	}

	if _, err := e.store.GetMember(ctx, m.ID); err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		m.Entity = types.NewEntity()
		if err := e.store.UpsertMember(ctx, m); err != nil {
			return nil, err
		}
	}

	ev := queue.NewEvent(m.ID, level, queue.KindNewEntry, sponsorUsername, e.now())
	if err := e.store.EnqueueEvent(ctx, ev); err != nil {
		return nil, err
	}

	e.plugins.EmitEnrollmentQueued(ctx, ev)
	e.logger.Info("enrollment queued",
		"owner", m.ID,
		"level", level,
		"sponsor", sponsorUsername,
	)
	return ev, nil
}

// PendingEvents returns the number of queued enrollment events.
func (e *Engine) PendingEvents(ctx context.Context) (int, error) {
	return e.store.CountEvents(ctx)
}

// LastRun returns the persisted processor run state.
func (e *Engine) LastRun(ctx context.Context) (*queue.RunState, error) {
	return e.store.RunState(ctx)
}

// ──────────────────────────────────────────────────
// Ledger access
// ──────────────────────────────────────────────────

// GetAccount returns the user's ledger account.
func (e *Engine) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	return e.store.GetAccount(ctx, userID)
}

// ListTransactions returns a user's audit trail.
func (e *Engine) ListTransactions(ctx context.Context, userID string, opts account.ListOpts) ([]*account.Transaction, error) {
	return e.store.ListTransactions(ctx, userID, opts)
}

// GetPosition returns one tree node.
func (e *Engine) GetPosition(ctx context.Context, posID id.PositionID) (*position.Position, error) {
	return e.store.GetPosition(ctx, posID)
}

// ListPositions lists tree nodes.
func (e *Engine) ListPositions(ctx context.Context, opts position.ListOpts) ([]*position.Position, error) {
	return e.store.ListPositions(ctx, opts)
}

// GetMember returns a member by external user id.
func (e *Engine) GetMember(ctx context.Context, userID string) (*member.Member, error) {
	return e.store.GetMember(ctx, userID)
}

// ReleaseReserve moves held reserve back into the user's unpaid earnings.
func (e *Engine) ReleaseReserve(ctx context.Context, userID string, amount types.Money) error {
	return e.store.ReleaseReserve(ctx, userID, amount)
}
