// Package queue defines pending enrollment events and the processor run
// state that guards against overlapping batch runs.
package queue

import (
	"time"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/types"
)

// Kind classifies how an enrollment entered the queue.
type Kind string

const (
	KindNewEntry   Kind = "NEW_ENTRY"
	KindReEntry    Kind = "RE_ENTRY"
	KindCrossEntry Kind = "CROSS_ENTRY"
)

// Event is one pending enrollment. Events are consumed (deleted) exactly
// once after successful processing; a failed event stays queued and is
// retried on the next scheduled run.
type Event struct {
	types.Entity
	ID              id.EnrollmentID `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Level           int             `json:"level"`
	Kind            Kind            `json:"kind"`
	SponsorUsername string          `json:"sponsor_username,omitempty"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	Attempts        int             `json:"attempts"`
}

// NewEvent creates an event scheduled at the given time.
func NewEvent(ownerID string, level int, kind Kind, sponsorUsername string, scheduledAt time.Time) *Event {
	return &Event{
		Entity:          types.NewEntity(),
		ID:              id.NewEnrollmentID(),
		OwnerID:         ownerID,
		Level:           level,
		Kind:            kind,
		SponsorUsername: sponsorUsername,
		ScheduledAt:     scheduledAt,
	}
}

// RunState is the singleton compare-and-swap guard around batch runs. It is
// persisted so the guard survives process restarts and works across multiple
// processor instances.
type RunState struct {
	Active      bool            `json:"active"`
	LastEventID id.EnrollmentID `json:"last_event_id,omitempty"`
	LastRunAt   time.Time       `json:"last_run_at"`
	LastReport  RunReport       `json:"last_report"`
}

// RunReport summarizes one batch run.
type RunReport struct {
	// Skipped is true when the run guard was already held and the batch
	// did not execute.
	Skipped bool `json:"skipped"`

	Processed int `json:"processed"`
	Failed    int `json:"failed"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}
