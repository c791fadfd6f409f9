package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanLevelCreated = "plan_level.created"
	ActionPlanLevelRetired = "plan_level.retired"

	// Enrollment actions
	ActionEnrollmentQueued = "enrollment.queued"
	ActionPositionPlaced   = "position.placed"
	ActionEventFailed      = "event.failed"

	// Payout actions
	ActionBonusApplied   = "bonus.applied"
	ActionCycleCompleted = "cycle.completed"

	// Processor actions
	ActionRunCompleted = "run.completed"

	// Withdrawal actions
	ActionWithdrawalDispatched = "withdrawal.dispatched"
	ActionWithdrawalFailed     = "withdrawal.failed"
)

// Resource constants for audit events.
const (
	ResourcePlanLevel  = "plan_level"
	ResourceEnrollment = "enrollment"
	ResourcePosition   = "position"
	ResourceBonus      = "bonus"
	ResourceRun        = "run"
	ResourceWithdrawal = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryPlacement  = "placement"
	CategoryPayout     = "payout"
	CategoryProcessing = "processing"
	CategoryDisbursal  = "disbursal"
	CategoryConfig     = "config"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
