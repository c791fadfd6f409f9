package matrix

import (
	"context"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
)

// RunBatch processes up to maxEvents due enrollment events in FIFO order.
// The persisted run guard makes concurrent invocations single-flight: a run
// that finds the guard held returns a report with Skipped set and touches
// nothing. maxEvents <= 0 uses DefaultBatchSize.
func (e *Engine) RunBatch(ctx context.Context, maxEvents int) (*queue.RunReport, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultBatchSize
	}

	acquired, err := e.store.AcquireRun(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		e.logger.Info("batch run skipped, previous run still active")
		return &queue.RunReport{Skipped: true}, nil
	}

	start := e.now()
	report := &queue.RunReport{}
	var lastProcessed id.EnrollmentID

	// The guard must be released however the batch exits, otherwise the
	// processor deadlocks permanently.
	defer func() {
		report.Elapsed = e.now().Sub(start)
		if rerr := e.store.ReleaseRun(context.WithoutCancel(ctx), lastProcessed, *report); rerr != nil {
			e.logger.Error("failed to release run guard", "error", rerr)
		}
		e.plugins.EmitRunCompleted(ctx, report.Processed, report.Failed, report.Elapsed)
	}()

	events, err := e.store.DueEvents(ctx, start, maxEvents)
	if err != nil {
		return report, err
	}

	// Strictly sequential: tree counters and ledger balances are shared
	// state and each event must be fully applied before the next begins.
	for _, ev := range events {
		if err := e.processOne(ctx, ev); err != nil {
			report.Failed++
			e.failEvent(ctx, ev, err)
			if IsRunFatal(err) {
				e.logger.Error("aborting batch run", "error", err)
				return report, err
			}
			continue
		}
		report.Processed++
		lastProcessed = ev.ID
	}

	e.logger.Info("batch run finished",
		"processed", report.Processed,
		"failed", report.Failed,
		"elapsed", e.now().Sub(start),
	)
	return report, nil
}

// processOne places the event's position, propagates bonuses, and deletes
// the event, as one transaction when the store supports it. With a
// non-transactional store the deletion runs last, so a mid-walk crash leaves
// the event queued rather than silently consumed.
func (e *Engine) processOne(ctx context.Context, ev *queue.Event) error {
	cfg, err := e.SystemConfig(ctx)
	if err != nil {
		return err
	}

	pl, err := e.store.GetPlanByLevel(ctx, ev.Level)
	if err != nil {
		return err
	}

	body := func(st store.Store) error {
		pos, err := e.place(ctx, st, cfg, pl, ev)
		if err != nil {
			return err
		}
		if err := e.propagate(ctx, st, cfg, pl, pos); err != nil {
			return err
		}
		return st.DeleteEvent(ctx, ev.ID)
	}

	if tx, ok := e.store.(store.Transactional); ok {
		return tx.WithinTx(ctx, body)
	}
	return body(e.store)
}

// failEvent records a processing failure. Fatal events are removed from the
// queue (a retry cannot succeed); retryable ones stay queued with a bumped
// attempt counter for the next scheduled run.
func (e *Engine) failEvent(ctx context.Context, ev *queue.Event, cause error) {
	fatal := IsEventFatal(cause)
	e.plugins.EmitEventFailed(ctx, ev, fatal, cause)

	if fatal {
		e.logger.Error("dropping unprocessable event",
			"event", ev.ID.String(),
			"owner", ev.OwnerID,
			"level", ev.Level,
			"error", cause,
		)
		if err := e.store.DeleteEvent(ctx, ev.ID); err != nil {
			e.logger.Error("failed to drop event", "event", ev.ID.String(), "error", err)
		}
		return
	}

	e.logger.Warn("event processing failed, will retry next run",
		"event", ev.ID.String(),
		"owner", ev.OwnerID,
		"level", ev.Level,
		"attempts", ev.Attempts+1,
		"error", cause,
	)
	if err := e.store.BumpAttempts(ctx, ev.ID); err != nil && !IsNotFound(err) {
		e.logger.Error("failed to bump event attempts", "event", ev.ID.String(), "error", err)
	}
}
