// Package plugin provides an extensible plugin system for the matrix engine.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanLevelCreated is called when a new plan level is created.
type OnPlanLevelCreated interface {
	Plugin
	OnPlanLevelCreated(ctx context.Context, planLevel interface{}) error
}

// OnPlanLevelRetired is called when a plan level is retired.
type OnPlanLevelRetired interface {
	Plugin
	OnPlanLevelRetired(ctx context.Context, planID string) error
}

// ──────────────────────────────────────────────────
// Enrollment and placement hooks
// ──────────────────────────────────────────────────

// OnEnrollmentQueued is called when an enrollment event enters the queue.
type OnEnrollmentQueued interface {
	Plugin
	OnEnrollmentQueued(ctx context.Context, event interface{}) error
}

// OnPositionPlaced is called after a position is attached to the tree.
type OnPositionPlaced interface {
	Plugin
	OnPositionPlaced(ctx context.Context, pos interface{}, parent interface{}) error
}

// OnEventFailed is called when processing an enrollment event fails.
type OnEventFailed interface {
	Plugin
	OnEventFailed(ctx context.Context, event interface{}, fatal bool, err error) error
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnBonusApplied is called after a bonus is credited to an account.
type OnBonusApplied interface {
	Plugin
	OnBonusApplied(ctx context.Context, txn interface{}) error
}

// OnCycleCompleted is called when a position fills its full matrix.
type OnCycleCompleted interface {
	Plugin
	OnCycleCompleted(ctx context.Context, pos interface{}) error
}

// ──────────────────────────────────────────────────
// Processor hooks
// ──────────────────────────────────────────────────

// OnRunCompleted is called after a batch run releases the run guard.
type OnRunCompleted interface {
	Plugin
	OnRunCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawalDispatched is called after a withdrawal is handed to the
// external dispatcher, whether or not dispatch succeeded.
type OnWithdrawalDispatched interface {
	Plugin
	OnWithdrawalDispatched(ctx context.Context, req interface{}, err error) error
}

// WithdrawalDispatcherPlugin provides a withdrawal dispatcher implementation.
type WithdrawalDispatcherPlugin interface {
	Plugin
	Dispatcher() interface{} // Returns matrix.WithdrawalDispatcher
}

// ──────────────────────────────────────────────────
// Notification sinks
// ──────────────────────────────────────────────────

// NotificationSink receives user-facing notifications (placement, bonus,
// cycle completion). Delivery is best-effort.
type NotificationSink interface {
	Plugin
	Notify(ctx context.Context, userID, kind, message string) error
}
