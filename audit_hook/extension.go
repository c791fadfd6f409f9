// Package audithook bridges Matrix lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit module directly. Callers inject a RecorderFunc adapter that bridges
// to their audit backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/plugin"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnPlanLevelCreated     = (*Extension)(nil)
	_ plugin.OnPlanLevelRetired     = (*Extension)(nil)
	_ plugin.OnEnrollmentQueued     = (*Extension)(nil)
	_ plugin.OnPositionPlaced       = (*Extension)(nil)
	_ plugin.OnEventFailed          = (*Extension)(nil)
	_ plugin.OnBonusApplied         = (*Extension)(nil)
	_ plugin.OnCycleCompleted       = (*Extension)(nil)
	_ plugin.OnRunCompleted         = (*Extension)(nil)
	_ plugin.OnWithdrawalDispatched = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend on
// a concrete audit module; callers inject the backend at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Matrix lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanLevelCreated implements plugin.OnPlanLevelCreated.
func (e *Extension) OnPlanLevelCreated(ctx context.Context, payload interface{}) error {
	var planID string
	var level int
	if pl, ok := payload.(*plan.PlanLevel); ok {
		planID = pl.ID.String()
		level = pl.Level
	}
	return e.record(ctx, ActionPlanLevelCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlanLevel, planID, CategoryConfig, nil,
		"level", level,
	)
}

// OnPlanLevelRetired implements plugin.OnPlanLevelRetired.
func (e *Extension) OnPlanLevelRetired(ctx context.Context, planID string) error {
	return e.record(ctx, ActionPlanLevelRetired, SeverityInfo, OutcomeSuccess,
		ResourcePlanLevel, planID, CategoryConfig, nil,
		"plan_id", planID,
	)
}

// ──────────────────────────────────────────────────
// Enrollment and placement hooks
// ──────────────────────────────────────────────────

// OnEnrollmentQueued implements plugin.OnEnrollmentQueued.
func (e *Extension) OnEnrollmentQueued(ctx context.Context, payload interface{}) error {
	var eventID, ownerID, kind string
	if evt, ok := payload.(*queue.Event); ok {
		eventID = evt.ID.String()
		ownerID = evt.OwnerID
		kind = string(evt.Kind)
	}
	return e.record(ctx, ActionEnrollmentQueued, SeverityInfo, OutcomeSuccess,
		ResourceEnrollment, eventID, CategoryPlacement, nil,
		"owner_id", ownerID,
		"kind", kind,
	)
}

// OnPositionPlaced implements plugin.OnPositionPlaced.
func (e *Extension) OnPositionPlaced(ctx context.Context, pos, _ interface{}) error {
	var posID, ownerID string
	var level int
	if p, ok := pos.(*position.Position); ok {
		posID = p.ID.String()
		ownerID = p.OwnerID
		level = p.Level
	}
	return e.record(ctx, ActionPositionPlaced, SeverityInfo, OutcomeSuccess,
		ResourcePosition, posID, CategoryPlacement, nil,
		"owner_id", ownerID,
		"level", level,
	)
}

// OnEventFailed implements plugin.OnEventFailed.
func (e *Extension) OnEventFailed(ctx context.Context, payload interface{}, fatal bool, err error) error {
	var eventID string
	if evt, ok := payload.(*queue.Event); ok {
		eventID = evt.ID.String()
	}
	severity := SeverityWarning
	if fatal {
		severity = SeverityError
	}
	return e.record(ctx, ActionEventFailed, severity, OutcomeFailure,
		ResourceEnrollment, eventID, CategoryProcessing, err,
		"fatal", fatal,
	)
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnBonusApplied implements plugin.OnBonusApplied.
func (e *Extension) OnBonusApplied(ctx context.Context, payload interface{}) error {
	var txnID, userID, purpose string
	var amount int64
	if t, ok := payload.(*account.Transaction); ok {
		txnID = t.ID.String()
		userID = t.UserID
		purpose = string(t.Purpose)
		amount = t.Amount.Amount
	}
	return e.record(ctx, ActionBonusApplied, SeverityInfo, OutcomeSuccess,
		ResourceBonus, txnID, CategoryPayout, nil,
		"user_id", userID,
		"purpose", purpose,
		"amount", amount,
	)
}

// OnCycleCompleted implements plugin.OnCycleCompleted.
func (e *Extension) OnCycleCompleted(ctx context.Context, payload interface{}) error {
	var posID, ownerID string
	if p, ok := payload.(*position.Position); ok {
		posID = p.ID.String()
		ownerID = p.OwnerID
	}
	return e.record(ctx, ActionCycleCompleted, SeverityInfo, OutcomeSuccess,
		ResourcePosition, posID, CategoryPayout, nil,
		"owner_id", ownerID,
	)
}

// ──────────────────────────────────────────────────
// Processor hooks
// ──────────────────────────────────────────────────

// OnRunCompleted implements plugin.OnRunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	if failed > 0 {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionRunCompleted, SeverityInfo, outcome,
		ResourceRun, "", CategoryProcessing, nil,
		"processed", processed,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawalDispatched implements plugin.OnWithdrawalDispatched.
func (e *Extension) OnWithdrawalDispatched(ctx context.Context, payload interface{}, err error) error {
	var wID, userID string
	var amount int64
	if w, ok := payload.(*account.WithdrawalRequest); ok {
		wID = w.ID.String()
		userID = w.UserID
		amount = w.Amount.Amount
	}
	if err != nil {
		return e.record(ctx, ActionWithdrawalFailed, SeverityError, OutcomeFailure,
			ResourceWithdrawal, wID, CategoryDisbursal, err,
			"user_id", userID,
			"amount", amount,
		)
	}
	return e.record(ctx, ActionWithdrawalDispatched, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, wID, CategoryDisbursal, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// record builds and emits one audit event. Recorder failures are logged,
// never propagated.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
