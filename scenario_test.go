package matrix_test

import (
	"context"
	"testing"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/types"
)

// TestFullMatrixScenario drives a complete 2x2 full-cycle matrix from empty
// store to cycled root and verifies the tree, the ledger, and the audit
// trail all line up.
func TestFullMatrixScenario(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	mustCreatePlan(t, e, &plan.PlanLevel{
		Level:       1,
		Name:        "Bronze",
		Currency:    "usd",
		Width:       2,
		Depth:       2,
		MatrixBonus: types.USD(2000),
		PayoutMode:  plan.PayoutFullCycleOnly,
	})

	// Seven members fill a 2x2 matrix under the first enrollee: two
	// children and four grandchildren.
	enroll(t, e, "amy", "amy", "", 1)
	enroll(t, e, "ben", "ben", "amy", 1)
	enroll(t, e, "cara", "cara", "amy", 1)
	enroll(t, e, "dan", "dan", "ben", 1)
	enroll(t, e, "eli", "eli", "ben", 1)
	enroll(t, e, "fay", "fay", "cara", 1)
	enroll(t, e, "gus", "gus", "cara", 1)

	report := runBatch(t, e)
	if report.Processed != 7 || report.Failed != 0 {
		t.Fatalf("expected 7 processed, got %+v", report)
	}

	// The root has both direct slots and all four depth-2 slots filled,
	// and has therefore cycled.
	amyPositions, err := e.ListPositions(ctx, position.ListOpts{OwnerID: "amy", Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(amyPositions) != 1 {
		t.Fatalf("expected 1 position for amy, got %d", len(amyPositions))
	}
	amy := amyPositions[0]
	if amy.ChildCount(1) != 2 || amy.ChildCount(2) != 4 {
		t.Errorf("expected counts [2 4], got %v", amy.ChildCounts)
	}
	if amy.Status != position.StatusCompleted || amy.CycleCount != 1 {
		t.Errorf("expected amy cycled, got status %q count %d", amy.Status, amy.CycleCount)
	}

	// Intermediate positions are full at depth 1 but have not cycled:
	// full_cycle_only pays nothing before the deepest level fills.
	ben := activePosition(t, e, "ben", 1)
	if ben.ChildCount(1) != 2 || ben.ChildCount(2) != 0 {
		t.Errorf("expected ben counts [2 0], got %v", ben.ChildCounts)
	}

	// Only the cycled root earned anything.
	assertBalance(t, e, "amy", types.USD(2000), types.USD(2000), types.Zero("usd"))
	for _, user := range []string{"ben", "cara", "dan", "eli", "fay", "gus"} {
		assertBalance(t, e, user, types.Zero("usd"), types.Zero("usd"), types.Zero("usd"))
	}

	txns, err := e.ListTransactions(ctx, "amy", account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].Purpose != account.PurposeMatrix {
		t.Fatalf("expected a single MATRIX_BONUS transaction, got %+v", txns)
	}
	if txns[0].Level != 1 || !txns[0].Amount.Equal(types.USD(2000)) {
		t.Errorf("transaction detail mismatch: %+v", txns[0])
	}

	// Replaying the same sequence on a fresh store yields the same tree.
	e2, _, _ := newTestEngine(t)
	mustCreatePlan(t, e2, &plan.PlanLevel{
		Level:       1,
		Name:        "Bronze",
		Currency:    "usd",
		Width:       2,
		Depth:       2,
		MatrixBonus: types.USD(2000),
		PayoutMode:  plan.PayoutFullCycleOnly,
	})
	for _, user := range []struct{ id, sponsor string }{
		{"amy", ""}, {"ben", "amy"}, {"cara", "amy"},
		{"dan", "ben"}, {"eli", "ben"}, {"fay", "cara"}, {"gus", "cara"},
	} {
		enroll(t, e2, user.id, user.id, user.sponsor, 1)
	}
	runBatch(t, e2)

	replay, err := e2.ListPositions(ctx, position.ListOpts{OwnerID: "amy", Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(replay) != 1 || replay[0].Status != position.StatusCompleted {
		t.Errorf("replay diverged: %+v", replay)
	}
	assertBalance(t, e2, "amy", types.USD(2000), types.USD(2000), types.Zero("usd"))
}
