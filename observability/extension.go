// Package observability provides a metrics extension for Matrix that records
// lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/matrix/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanLevelCreated     = (*MetricsExtension)(nil)
	_ plugin.OnPlanLevelRetired     = (*MetricsExtension)(nil)
	_ plugin.OnEnrollmentQueued     = (*MetricsExtension)(nil)
	_ plugin.OnPositionPlaced       = (*MetricsExtension)(nil)
	_ plugin.OnEventFailed          = (*MetricsExtension)(nil)
	_ plugin.OnBonusApplied         = (*MetricsExtension)(nil)
	_ plugin.OnCycleCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnRunCompleted         = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalDispatched = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Matrix plugin to automatically track engine metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanLevelCreated Counter
	PlanLevelRetired Counter

	// Enrollment metrics
	EnrollmentsQueued Counter
	PositionsPlaced   Counter
	EventsFailed      Counter
	EventsFatal       Counter

	// Payout metrics
	BonusesApplied  Counter
	CyclesCompleted Counter

	// Processor metrics
	RunsCompleted Counter
	RunProcessed  Histogram
	RunFailed     Histogram
	RunLatency    Histogram

	// Withdrawal metrics
	WithdrawalsDispatched Counter
	WithdrawalsErrored    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or the prom subpackage for a
// Prometheus-backed factory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanLevelCreated: factory.Counter("matrix.plan_level.created"),
		PlanLevelRetired: factory.Counter("matrix.plan_level.retired"),

		// Enrollment metrics
		EnrollmentsQueued: factory.Counter("matrix.enrollment.queued"),
		PositionsPlaced:   factory.Counter("matrix.position.placed"),
		EventsFailed:      factory.Counter("matrix.event.failed"),
		EventsFatal:       factory.Counter("matrix.event.fatal"),

		// Payout metrics
		BonusesApplied:  factory.Counter("matrix.bonus.applied"),
		CyclesCompleted: factory.Counter("matrix.cycle.completed"),

		// Processor metrics
		RunsCompleted: factory.Counter("matrix.run.completed"),
		RunProcessed:  factory.Histogram("matrix.run.processed"),
		RunFailed:     factory.Histogram("matrix.run.failed"),
		RunLatency:    factory.Histogram("matrix.run.latency_ms"),

		// Withdrawal metrics
		WithdrawalsDispatched: factory.Counter("matrix.withdrawal.dispatched"),
		WithdrawalsErrored:    factory.Counter("matrix.withdrawal.errored"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanLevelCreated implements plugin.OnPlanLevelCreated.
func (m *MetricsExtension) OnPlanLevelCreated(_ context.Context, _ interface{}) error {
	m.PlanLevelCreated.Inc()
	return nil
}

// OnPlanLevelRetired implements plugin.OnPlanLevelRetired.
func (m *MetricsExtension) OnPlanLevelRetired(_ context.Context, _ string) error {
	m.PlanLevelRetired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Enrollment and placement hooks
// ──────────────────────────────────────────────────

// OnEnrollmentQueued implements plugin.OnEnrollmentQueued.
func (m *MetricsExtension) OnEnrollmentQueued(_ context.Context, _ interface{}) error {
	m.EnrollmentsQueued.Inc()
	return nil
}

// OnPositionPlaced implements plugin.OnPositionPlaced.
func (m *MetricsExtension) OnPositionPlaced(_ context.Context, _, _ interface{}) error {
	m.PositionsPlaced.Inc()
	return nil
}

// OnEventFailed implements plugin.OnEventFailed.
func (m *MetricsExtension) OnEventFailed(_ context.Context, _ interface{}, fatal bool, _ error) error {
	m.EventsFailed.Inc()
	if fatal {
		m.EventsFatal.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnBonusApplied implements plugin.OnBonusApplied.
func (m *MetricsExtension) OnBonusApplied(_ context.Context, _ interface{}) error {
	m.BonusesApplied.Inc()
	return nil
}

// OnCycleCompleted implements plugin.OnCycleCompleted.
func (m *MetricsExtension) OnCycleCompleted(_ context.Context, _ interface{}) error {
	m.CyclesCompleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Processor hooks
// ──────────────────────────────────────────────────

// OnRunCompleted implements plugin.OnRunCompleted.
func (m *MetricsExtension) OnRunCompleted(_ context.Context, processed, failed int, elapsed time.Duration) error {
	m.RunsCompleted.Inc()
	m.RunProcessed.Observe(float64(processed))
	m.RunFailed.Observe(float64(failed))
	m.RunLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawalDispatched implements plugin.OnWithdrawalDispatched.
func (m *MetricsExtension) OnWithdrawalDispatched(_ context.Context, _ interface{}, err error) error {
	if err != nil {
		m.WithdrawalsErrored.Inc()
		return nil
	}
	m.WithdrawalsDispatched.Inc()
	return nil
}
