package matrix_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/types"
)

func TestCycleCompletion(t *testing.T) {
	ctx := context.Background()

	// Width 1 depth 1: every placement fills its parent and cycles it.
	tinyPlan := func() *plan.PlanLevel {
		return &plan.PlanLevel{
			Level:        1,
			Currency:     "usd",
			Width:        1,
			Depth:        1,
			MatrixBonus:  types.USD(1000),
			PayoutMode:   plan.PayoutFullCycleOnly,
			CycleCredits: 10,
			ReentryCount: 1,
		}
	}

	t.Run("CompletesAndGrantsCredits", func(t *testing.T) {
		e, _, ck := newTestEngine(t)
		mustCreatePlan(t, e, tinyPlan())

		enroll(t, e, "alice", "alice", "", 1)
		runBatch(t, e)
		ck.Advance(5 * time.Minute)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		positions, err := e.ListPositions(ctx, position.ListOpts{OwnerID: "alice", Level: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(positions) != 1 || positions[0].Status != position.StatusCompleted {
			t.Fatalf("expected alice's position completed, got %+v", positions)
		}

		acct, err := e.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.TotalEarnings.Equal(types.USD(1000)) {
			t.Errorf("expected matrix bonus 1000, got %s", acct.TotalEarnings)
		}
		if acct.Credits != 10 {
			t.Errorf("expected 10 cycle credits, got %d", acct.Credits)
		}
	})

	t.Run("ReentryQueuedAndPlaced", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		mustCreatePlan(t, e, tinyPlan())

		enroll(t, e, "alice", "alice", "", 1)
		runBatch(t, e)

		// Old enough that the dedup window no longer sees alice's
		// original position.
		ck.Advance(5 * time.Minute)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)
		bobPos := activePosition(t, e, "bob", 1)

		events, err := st.DueEvents(ctx, ck.Now(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Kind != queue.KindReEntry || events[0].OwnerID != "alice" {
			t.Fatalf("expected one due re-entry for alice, got %+v", events)
		}

		runBatch(t, e)

		reentry := activePosition(t, e, "alice", 1)
		if reentry.ParentID != bobPos.ID {
			t.Errorf("expected alice's re-entry under bob, got parent %s", reentry.ParentID)
		}

		// The re-entry filled bob's matrix in turn.
		acct, err := e.GetAccount(ctx, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.TotalEarnings.Equal(types.USD(1000)) {
			t.Errorf("expected bob's matrix bonus, got %s", acct.TotalEarnings)
		}
	})

	t.Run("DedupDefersRecentDuplicates", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		mustCreatePlan(t, e, tinyPlan())

		// Alice's position and cycle land at the same instant, so the
		// re-entry must be pushed a full dedup window out.
		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		report := runBatch(t, e)
		if report.Processed != 0 {
			t.Fatalf("expected deferred re-entry not yet due, got %+v", report)
		}

		events, err := st.DueEvents(ctx, ck.Now().Add(3*time.Minute), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Fatalf("expected one deferred re-entry, got %d", len(events))
		}
		if want := ck.Now().Add(3 * time.Minute); !events[0].ScheduledAt.Equal(want) {
			t.Errorf("expected scheduled at %v, got %v", want, events[0].ScheduledAt)
		}

		ck.Advance(3 * time.Minute)
		report = runBatch(t, e)
		if report.Processed != 1 {
			t.Fatalf("expected the re-entry due after the window, got %+v", report)
		}
	})

	t.Run("DuplicatesChainWindowApart", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		p := tinyPlan()
		p.ReentryCount = 2
		mustCreatePlan(t, e, p)

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		events, err := st.DueEvents(ctx, ck.Now().Add(time.Hour), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("expected two chained re-entries, got %d", len(events))
		}
		first, second := events[0].ScheduledAt, events[1].ScheduledAt
		if !first.Equal(ck.Now().Add(3 * time.Minute)) {
			t.Errorf("expected first at +3m, got %v", first)
		}
		if !second.Equal(ck.Now().Add(6 * time.Minute)) {
			t.Errorf("expected second chained at +6m, got %v", second)
		}
	})

	t.Run("CrossEntryTargetsOtherLevel", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		p := tinyPlan()
		p.ReentryCount = 0
		p.CrossEntries = []plan.CrossEntryRule{{Enabled: true, Count: 1, TargetLevel: 2}}
		mustCreatePlan(t, e, p)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 2, Currency: "usd", Width: 1, Depth: 1})

		enroll(t, e, "alice", "alice", "", 1)
		runBatch(t, e)
		ck.Advance(5 * time.Minute)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		events, err := st.DueEvents(ctx, ck.Now(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Kind != queue.KindCrossEntry || events[0].Level != 2 {
			t.Fatalf("expected a cross-entry into level 2, got %+v", events)
		}

		runBatch(t, e)

		cross := activePosition(t, e, "alice", 2)
		if !cross.ParentID.IsNil() {
			t.Errorf("expected alice to seed level 2, got parent %s", cross.ParentID)
		}
	})
}
