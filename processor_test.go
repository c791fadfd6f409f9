package matrix_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/queue"
)

func TestRunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyQueue", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		report := runBatch(t, e)
		if report.Skipped || report.Processed != 0 || report.Failed != 0 {
			t.Errorf("expected an empty run, got %+v", report)
		}

		state, err := e.LastRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if state.Active {
			t.Error("run guard must be released after the batch")
		}
	})

	t.Run("SingleFlight", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		acquired, err := st.AcquireRun(ctx)
		if err != nil || !acquired {
			t.Fatalf("expected to hold the guard: %v %v", acquired, err)
		}

		report := runBatch(t, e)
		if !report.Skipped {
			t.Errorf("expected the run to be skipped, got %+v", report)
		}

		var none id.EnrollmentID
		if err := st.ReleaseRun(ctx, none, queue.RunReport{}); err != nil {
			t.Fatal(err)
		}
		if report := runBatch(t, e); report.Skipped {
			t.Error("expected the run to proceed after release")
		}
	})

	t.Run("FailureIsolation", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "ghost", 1)
		enroll(t, e, "carol", "carol", "alice", 1)

		report := runBatch(t, e)
		if report.Processed != 2 || report.Failed != 1 {
			t.Fatalf("expected 2 processed and 1 failed, got %+v", report)
		}

		// Bob's failure must not block carol.
		activePosition(t, e, "alice", 1)
		activePosition(t, e, "carol", 1)

		n, err := e.PendingEvents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected bob's event requeued, got %d pending", n)
		}
	})

	t.Run("RespectsBatchSize", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		enroll(t, e, "carol", "carol", "alice", 1)

		report, err := e.RunBatch(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if report.Processed != 2 {
			t.Fatalf("expected 2 processed, got %+v", report)
		}

		n, err := e.PendingEvents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 event left for the next run, got %d", n)
		}
	})

	t.Run("FIFOOrder", func(t *testing.T) {
		e, _, ck := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		// Later enrollments get later scheduled times; the first enrollee
		// must become the tree root regardless of map iteration order.
		enroll(t, e, "alice", "alice", "", 1)
		ck.Advance(1 * time.Second)
		enroll(t, e, "bob", "bob", "", 1)
		ck.Advance(1 * time.Second)
		enroll(t, e, "carol", "carol", "", 1)

		runBatch(t, e)

		alicePos := activePosition(t, e, "alice", 1)
		if !alicePos.ParentID.IsNil() {
			t.Error("expected the earliest event to seed the root")
		}
		bobPos := activePosition(t, e, "bob", 1)
		carolPos := activePosition(t, e, "carol", 1)
		if bobPos.ParentID != alicePos.ID || carolPos.ParentID != alicePos.ID {
			t.Error("expected later enrollees attached under the root in order")
		}
	})

	t.Run("FutureEventsStayQueued", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		future := queue.NewEvent("dana", 1, queue.KindReEntry, "", ck.Now().Add(10*time.Minute))
		if err := st.EnqueueEvent(ctx, future); err != nil {
			t.Fatal(err)
		}

		report := runBatch(t, e)
		if report.Processed != 0 {
			t.Fatalf("expected nothing due yet, got %+v", report)
		}

		ck.Advance(10 * time.Minute)
		if err := st.UpsertMember(ctx, &member.Member{ID: "dana", Username: "dana"}); err != nil {
			t.Fatal(err)
		}
		report = runBatch(t, e)
		if report.Processed != 1 {
			t.Fatalf("expected the event due after the clock advance, got %+v", report)
		}
	})
}
