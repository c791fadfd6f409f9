package matrix_test

import (
	"context"
	"errors"
	"testing"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/types"
)

func assertBalance(t *testing.T, e *matrix.Engine, userID string, total, unpaid, reserve types.Money) {
	t.Helper()

	acct, err := e.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalEarnings.Equal(total) {
		t.Errorf("%s total: expected %s, got %s", userID, total, acct.TotalEarnings)
	}
	if !acct.UnpaidEarnings.Equal(unpaid) {
		t.Errorf("%s unpaid: expected %s, got %s", userID, unpaid, acct.UnpaidEarnings)
	}
	if !acct.ReserveHeld.Equal(reserve) {
		t.Errorf("%s reserve: expected %s, got %s", userID, reserve, acct.ReserveHeld)
	}
	if !acct.Balanced() {
		t.Errorf("%s account out of balance: %+v", userID, acct)
	}
}

func TestPerLevelPayout(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	mustCreatePlan(t, e, &plan.PlanLevel{
		Level:         1,
		Name:          "Starter",
		Currency:      "usd",
		Width:         2,
		Depth:         2,
		ReferralBonus: types.USD(500),
		PerLevelBonus: []types.Money{types.USD(300), types.USD(200)},
		MatchingBonus: []types.Money{types.USD(100), types.USD(50)},
		PayoutMode:    plan.PayoutPerLevel,
	})

	enroll(t, e, "alice", "alice", "", 1)
	enroll(t, e, "bob", "bob", "alice", 1)
	enroll(t, e, "carol", "carol", "bob", 1)
	runBatch(t, e)

	// Bob's placement pays alice 500 referral + 300 depth-1. Carol's pays
	// bob 500 referral + 300 depth-1, alice 100 matching on bob's bonus
	// and 200 at depth 2.
	assertBalance(t, e, "alice", types.USD(1100), types.USD(1100), types.Zero("usd"))
	assertBalance(t, e, "bob", types.USD(800), types.USD(800), types.Zero("usd"))

	alicePos := activePosition(t, e, "alice", 1)
	if !alicePos.TotalEarned.Equal(types.USD(500)) {
		t.Errorf("expected alice position earned 500, got %s", alicePos.TotalEarned)
	}

	txns, err := e.ListTransactions(ctx, "alice", account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	purposes := map[account.Purpose]int{}
	for _, txn := range txns {
		purposes[txn.Purpose]++
	}
	want := map[account.Purpose]int{
		account.PurposeReferral: 1,
		account.PurposeLevel:    2,
		account.PurposeMatching: 1,
	}
	for p, n := range want {
		if purposes[p] != n {
			t.Errorf("expected %d %s transactions, got %d", n, p, purposes[p])
		}
	}
}

func TestMatchingBonusGate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, nonMatrixMatch bool) *matrix.Engine {
		e, st, _ := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{
			Level:         1,
			Currency:      "usd",
			Width:         2,
			Depth:         2,
			PerLevelBonus: []types.Money{types.USD(300)},
			MatchingBonus: []types.Money{types.USD(100)},
			PayoutMode:    plan.PayoutPerLevel,
		})

		cfg := plan.DefaultSystemConfig()
		cfg.NonMatrixMatch = nonMatrixMatch
		if err := e.SetSystemConfig(ctx, &cfg); err != nil {
			t.Fatal(err)
		}

		// Mallory sponsors bob but never buys a position herself.
		if err := st.UpsertMember(ctx, &member.Member{ID: "mallory", Username: "mallory"}); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "mallory", 1)
		enroll(t, e, "carol", "carol", "bob", 1)
		runBatch(t, e)
		return e
	}

	t.Run("SuppressedWithoutActivePosition", func(t *testing.T) {
		e := setup(t, false)
		// Carol's depth-1 bonus goes to bob; mallory's matching share is
		// withheld because she holds no active position at the level.
		assertBalance(t, e, "mallory", types.Zero("usd"), types.Zero("usd"), types.Zero("usd"))
		assertBalance(t, e, "bob", types.USD(300), types.USD(300), types.Zero("usd"))
	})

	t.Run("PaidWithOverride", func(t *testing.T) {
		e := setup(t, true)
		assertBalance(t, e, "mallory", types.USD(100), types.USD(100), types.Zero("usd"))
	})
}

func TestReserveWithholding(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	mustCreatePlan(t, e, &plan.PlanLevel{
		Level:         1,
		Currency:      "usd",
		Width:         2,
		Depth:         2,
		ReferralBonus: types.USD(500),
		PerLevelBonus: []types.Money{types.USD(300)},
		PayoutMode:    plan.PayoutPerLevel,
	})

	cfg := plan.DefaultSystemConfig()
	cfg.ReservePercent = 10
	if err := e.SetSystemConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}

	enroll(t, e, "alice", "alice", "", 1)
	enroll(t, e, "bob", "bob", "alice", 1)
	runBatch(t, e)

	// 10% of each credit is withheld: 800 earned, 720 payable, 80 held.
	assertBalance(t, e, "alice", types.USD(800), types.USD(720), types.USD(80))

	if err := e.ReleaseReserve(ctx, "alice", types.USD(80)); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, e, "alice", types.USD(800), types.USD(800), types.Zero("usd"))

	err := e.ReleaseReserve(ctx, "alice", types.USD(1))
	if !errors.Is(err, matrix.ErrInsufficientReserve) {
		t.Errorf("expected ErrInsufficientReserve, got %v", err)
	}
}

func TestCycleOnFillPayout(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustCreatePlan(t, e, &plan.PlanLevel{
		Level:      1,
		Currency:   "usd",
		Width:      1,
		Depth:      2,
		CycleBonus: []types.Money{types.USD(400), types.USD(700)},
		PayoutMode: plan.PayoutCycleOnFill,
	})

	enroll(t, e, "alice", "alice", "", 1)
	enroll(t, e, "bob", "bob", "alice", 1)
	enroll(t, e, "carol", "carol", "alice", 1)
	runBatch(t, e)

	// Width 1: bob fills alice's depth 1 (400), carol spills under bob,
	// fills bob's depth 1 (400) and alice's depth 2 (700).
	assertBalance(t, e, "alice", types.USD(1100), types.USD(1100), types.Zero("usd"))
	assertBalance(t, e, "bob", types.USD(400), types.USD(400), types.Zero("usd"))

	// A filled deepest level completes alice's cycle.
	positions, err := e.ListPositions(context.Background(), position.ListOpts{OwnerID: "alice", Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.Status != position.StatusCompleted {
		t.Errorf("expected COMPLETED, got %q", pos.Status)
	}
	if pos.CycledAt == nil {
		t.Error("expected cycle timestamp")
	}
	if pos.CycleCount != 1 {
		t.Errorf("expected cycle count 1, got %d", pos.CycleCount)
	}
}
