package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
)

// crossEntryDedupWindow is how far back the scheduler looks for an existing
// entry for the same owner and level before queueing another one. Two cycle
// completions in quick succession would otherwise place near-simultaneous
// duplicates.
const crossEntryDedupWindow = 3 * time.Minute

// onCycleComplete transitions a fully filled position to COMPLETED, grants
// cycle credits, and queues the plan's re-entry and cross-entry events.
func (e *Engine) onCycleComplete(ctx context.Context, st store.Store, pl *plan.PlanLevel, pos *position.Position) error {
	now := e.now()
	pos.Status = position.StatusCompleted
	pos.CycledAt = &now
	pos.CycleCount++
	pos.Touch()
	if err := st.UpdatePosition(ctx, pos); err != nil {
		return err
	}

	if pl.CycleCredits > 0 {
		if err := st.GrantCredits(ctx, pos.OwnerID, pl.CycleCredits); err != nil {
			return err
		}
	}

	for i := 0; i < pl.ReentryCount; i++ {
		if err := e.scheduleEntry(ctx, st, pos.OwnerID, pl.Level, queue.KindReEntry); err != nil {
			return err
		}
	}

	for _, rule := range pl.CrossEntries {
		if !rule.Enabled {
			continue
		}
		for i := 0; i < rule.Count; i++ {
			if err := e.scheduleEntry(ctx, st, pos.OwnerID, rule.TargetLevel, queue.KindCrossEntry); err != nil {
				return err
			}
		}
	}

	e.plugins.EmitCycleCompleted(ctx, pos)
	e.plugins.EmitNotify(ctx, pos.OwnerID, "cycle_completed",
		fmt.Sprintf("your level %d matrix has cycled", pl.Level))
	e.logger.Info("cycle completed",
		"position", pos.ID.String(),
		"owner", pos.OwnerID,
		"level", pl.Level,
		"cycle_count", pos.CycleCount,
	)
	return nil
}

// scheduleEntry queues a re-entry or cross-entry, deferring past any entry
// for the same owner and level seen within the dedup window. Successive
// duplicates chain: each lands dedup-window after the previous one.
func (e *Engine) scheduleEntry(ctx context.Context, st store.Store, ownerID string, level int, kind queue.Kind) error {
	now := e.now()
	at := now

	since := now.Add(-crossEntryDedupWindow)
	prior, err := st.LatestEventFor(ctx, ownerID, level, since)
	if err != nil {
		return err
	}
	switch {
	case prior != nil:
		at = prior.ScheduledAt.Add(crossEntryDedupWindow)
	default:
		recent, err := st.PositionExistsRecent(ctx, ownerID, level, since)
		if err != nil {
			return err
		}
		if recent {
			at = now.Add(crossEntryDedupWindow)
		}
	}

	ev := queue.NewEvent(ownerID, level, kind, "", at)
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if err := st.EnqueueEvent(ctx, ev); err != nil {
		return err
	}

	e.plugins.EmitEnrollmentQueued(ctx, ev)
	e.logger.Debug("cycle side-effect queued",
		"owner", ownerID,
		"level", level,
		"kind", kind,
		"scheduled_at", at,
	)
	return nil
}
