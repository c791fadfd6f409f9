package matrix_test

import (
	"context"
	"testing"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
)

// activePosition returns the owner's ACTIVE position at level.
func activePosition(t *testing.T, e *matrix.Engine, ownerID string, level int) *position.Position {
	t.Helper()

	positions, err := e.ListPositions(context.Background(), position.ListOpts{
		OwnerID: ownerID,
		Level:   level,
		Status:  position.StatusActive,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 active position for %s at level %d, got %d", ownerID, level, len(positions))
	}
	return positions[0]
}

func TestPlacement(t *testing.T) {
	ctx := context.Background()

	widePlan := func() *plan.PlanLevel {
		return &plan.PlanLevel{Level: 1, Name: "Starter", Currency: "usd", Width: 2, Depth: 2}
	}

	t.Run("FirstEnrolleeBecomesRoot", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		enroll(t, e, "alice", "alice", "", 1)
		report := runBatch(t, e)
		if report.Processed != 1 {
			t.Fatalf("expected 1 processed, got %+v", report)
		}

		pos := activePosition(t, e, "alice", 1)
		if !pos.ParentID.IsNil() {
			t.Errorf("root position should have no parent, got %s", pos.ParentID)
		}
		if pos.SponsorID != "" {
			t.Errorf("unsponsored root should have no sponsor, got %q", pos.SponsorID)
		}
	})

	t.Run("DirectAttachUnderSponsor", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		alicePos := activePosition(t, e, "alice", 1)
		bobPos := activePosition(t, e, "bob", 1)
		if bobPos.ParentID != alicePos.ID {
			t.Errorf("expected bob under alice, got parent %s", bobPos.ParentID)
		}
		if bobPos.SponsorID != "alice" {
			t.Errorf("expected sponsor alice, got %q", bobPos.SponsorID)
		}
		if alicePos.ChildCount(1) != 1 {
			t.Errorf("expected alice direct count 1, got %d", alicePos.ChildCount(1))
		}
	})

	t.Run("SpilloverBreadthFirst", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		// Alice's two direct slots fill with bob and carol; dave spills
		// into the earliest-created child with a free slot.
		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		enroll(t, e, "carol", "carol", "alice", 1)
		enroll(t, e, "dave", "dave", "alice", 1)
		runBatch(t, e)

		bobPos := activePosition(t, e, "bob", 1)
		davePos := activePosition(t, e, "dave", 1)
		if davePos.ParentID != bobPos.ID {
			t.Errorf("expected dave spilled under bob, got parent %s", davePos.ParentID)
		}
		if davePos.SponsorID != "alice" {
			t.Errorf("spillover must keep the commission sponsor, got %q", davePos.SponsorID)
		}

		alicePos := activePosition(t, e, "alice", 1)
		if alicePos.ChildCount(1) != 2 || alicePos.ChildCount(2) != 1 {
			t.Errorf("expected alice counts [2 1], got %v", alicePos.ChildCounts)
		}
	})

	t.Run("GlobalFallbackWhenSponsorHasNoPosition", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		// Mallory is a known member who never bought a position.
		if err := st.UpsertMember(ctx, &member.Member{ID: "mallory", Username: "mallory"}); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "eve", "eve", "mallory", 1)
		runBatch(t, e)

		alicePos := activePosition(t, e, "alice", 1)
		evePos := activePosition(t, e, "eve", 1)
		if evePos.ParentID != alicePos.ID {
			t.Errorf("expected eve under the oldest open position, got parent %s", evePos.ParentID)
		}
		if evePos.SponsorID != "mallory" {
			t.Errorf("expected sponsor mallory, got %q", evePos.SponsorID)
		}
	})

	t.Run("SponsorLookupWalksReferralChain", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		cfg := plan.DefaultSystemConfig()
		cfg.AllowSponsorLookup = true
		if err := e.SetSystemConfig(ctx, &cfg); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "alice", "alice", "", 1)
		runBatch(t, e)

		// Zoe was referred by alice but holds no position herself.
		if err := st.UpsertMember(ctx, &member.Member{ID: "zoe", Username: "zoe", ReferrerID: "alice"}); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "gary", "gary", "zoe", 1)
		runBatch(t, e)

		alicePos := activePosition(t, e, "alice", 1)
		garyPos := activePosition(t, e, "gary", 1)
		if garyPos.ParentID != alicePos.ID {
			t.Errorf("expected gary attached via zoe's referrer, got parent %s", garyPos.ParentID)
		}
		if garyPos.SponsorID != "zoe" {
			t.Errorf("commission sponsor must stay zoe, got %q", garyPos.SponsorID)
		}
	})

	t.Run("UnknownSponsorRetries", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		mustCreatePlan(t, e, widePlan())

		enroll(t, e, "frank", "frank", "nobody", 1)
		report := runBatch(t, e)
		if report.Failed != 1 || report.Processed != 0 {
			t.Fatalf("expected 1 failure, got %+v", report)
		}

		// The event stays queued with a bumped attempt counter.
		n, err := e.PendingEvents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("expected the event to stay queued, got %d pending", n)
		}

		events, err := st.DueEvents(ctx, ck.Now(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Attempts != 1 {
			t.Errorf("expected attempts bumped to 1, got %+v", events[0])
		}
	})

	t.Run("EntryCreditsGranted", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		p := widePlan()
		p.EntryCredits = 5
		mustCreatePlan(t, e, p)

		enroll(t, e, "alice", "alice", "", 1)
		runBatch(t, e)

		acct, err := e.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if acct.Credits != 5 {
			t.Errorf("expected 5 entry credits, got %d", acct.Credits)
		}
	})

	t.Run("FullLevelDropsEvent", func(t *testing.T) {
		e, st, ck := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 1, Depth: 1})

		// A level containing only a saturated position has nowhere to
		// attach; the event is unprocessable and must not loop forever.
		full := position.New("alice", 1, 1, "", "usd")
		full.ChildCounts[0] = 1
		full.CreatedAt = ck.Now()
		full.UpdatedAt = ck.Now()
		if err := st.CreatePosition(ctx, full); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "bob", "bob", "", 1)
		report := runBatch(t, e)
		if report.Failed != 1 {
			t.Fatalf("expected 1 failure, got %+v", report)
		}

		n, err := e.PendingEvents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("expected the fatal event dropped, got %d pending", n)
		}
	})
}
