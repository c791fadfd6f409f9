package queue

import (
	"context"
	"time"

	"github.com/xraph/matrix/id"
)

// Store is the event-queue slice of the storage contract.
type Store interface {
	Enqueue(ctx context.Context, e *Event) error

	// Due returns up to limit events with ScheduledAt <= now, ordered by
	// ScheduledAt then insertion order. Processing order determines the
	// tree shape and must be reproducible.
	Due(ctx context.Context, now time.Time, limit int) ([]*Event, error)

	Delete(ctx context.Context, eventID id.EnrollmentID) error

	// BumpAttempts increments the retry counter on a failed event.
	BumpAttempts(ctx context.Context, eventID id.EnrollmentID) error

	// LatestFor returns the newest queued event for the owner and level
	// scheduled at or after the cutoff, or nil when none exists
	// (cross-entry dedup check).
	LatestFor(ctx context.Context, ownerID string, level int, since time.Time) (*Event, error)

	Count(ctx context.Context) (int, error)

	// AcquireRun atomically sets the run guard. It returns false when a run
	// is already active.
	AcquireRun(ctx context.Context) (bool, error)

	// ReleaseRun clears the run guard and records the run outcome. It must
	// succeed even after a failed batch, otherwise the processor deadlocks.
	ReleaseRun(ctx context.Context, lastEventID id.EnrollmentID, report RunReport) error

	// RunState returns the current guard state.
	RunState(ctx context.Context) (*RunState, error)
}
