package matrix

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("matrix: not found")
	ErrAlreadyExists = errors.New("matrix: already exists")
	ErrInvalidInput  = errors.New("matrix: invalid input")

	// Plan errors
	ErrPlanLevelNotFound = errors.New("matrix: plan level not found")
	ErrPlanLevelRetired  = errors.New("matrix: plan level is retired")
	ErrConfigNotFound    = errors.New("matrix: system config not found")

	// Member errors
	ErrOwnerNotFound   = errors.New("matrix: owner not found")
	ErrSponsorNotFound = errors.New("matrix: sponsor not found")

	// Placement errors
	ErrPositionNotFound = errors.New("matrix: position not found")
	ErrNoAvailableSlot  = errors.New("matrix: no available slot in plan level")

	// Ledger errors
	ErrAccountNotFound     = errors.New("matrix: account not found")
	ErrLedgerInconsistency = errors.New("matrix: ledger invariant violated")
	ErrInsufficientUnpaid  = errors.New("matrix: insufficient unpaid earnings")
	ErrInsufficientReserve = errors.New("matrix: insufficient reserve held")

	// Queue errors
	ErrEventNotFound = errors.New("matrix: enrollment event not found")
	ErrRunActive     = errors.New("matrix: a processor run is already active")

	// Dispatch errors
	ErrDispatcherFailed  = errors.New("matrix: withdrawal dispatch failed")
	ErrDispatchQueueFull = errors.New("matrix: withdrawal dispatch queue full")

	// Store errors
	ErrStoreClosed       = errors.New("matrix: store is closed")
	ErrTransactionFailed = errors.New("matrix: store transaction failed")
	ErrMigrationFailed   = errors.New("matrix: migration failed")
)

// PlacementError carries the failing event context for placement failures.
type PlacementError struct {
	OwnerID string
	Level   int
	Err     error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("matrix: place owner %s at level %d: %v", e.OwnerID, e.Level, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanLevelNotFound) ||
		errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrOwnerNotFound) ||
		errors.Is(err, ErrSponsorNotFound) ||
		errors.Is(err, ErrPositionNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsRunFatal returns true if the error must abort the whole batch run
// rather than just the current event.
func IsRunFatal(err error) bool {
	return errors.Is(err, ErrLedgerInconsistency) ||
		errors.Is(err, ErrStoreClosed)
}

// IsEventFatal returns true if retrying the event cannot succeed without
// operator intervention; the processor drops the event instead of
// re-queueing it.
func IsEventFatal(err error) bool {
	return errors.Is(err, ErrNoAvailableSlot)
}
