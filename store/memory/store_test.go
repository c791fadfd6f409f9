package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/store/memory"
	"github.com/xraph/matrix/types"
)

func TestRunGuard(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	acquired, err := st.AcquireRun(ctx)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed: %v %v", acquired, err)
	}

	// Held guard refuses a second acquire.
	acquired, err = st.AcquireRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Error("expected second acquire to fail while held")
	}

	var last id.EnrollmentID
	report := queue.RunReport{Processed: 3, Failed: 1}
	if err := st.ReleaseRun(ctx, last, report); err != nil {
		t.Fatal(err)
	}

	state, err := st.RunState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Active {
		t.Error("expected guard released")
	}
	if state.LastReport.Processed != 3 || state.LastReport.Failed != 1 {
		t.Errorf("report not persisted: %+v", state.LastReport)
	}

	if acquired, err := st.AcquireRun(ctx); err != nil || !acquired {
		t.Errorf("expected re-acquire after release: %v %v", acquired, err)
	}
}

func TestLedgerOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("ApplyEarningKeepsConservation", func(t *testing.T) {
		st := memory.New()

		if err := st.ApplyEarning(ctx, "u1", types.USD(1000), types.USD(900), types.USD(100)); err != nil {
			t.Fatal(err)
		}

		acct, err := st.GetAccount(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.TotalEarnings.Equal(types.USD(1000)) ||
			!acct.UnpaidEarnings.Equal(types.USD(900)) ||
			!acct.ReserveHeld.Equal(types.USD(100)) {
			t.Errorf("unexpected balances: %+v", acct)
		}
		if !acct.Balanced() {
			t.Errorf("account out of balance: %+v", acct)
		}
	})

	t.Run("ApplyEarningRejectsBadSplit", func(t *testing.T) {
		st := memory.New()

		err := st.ApplyEarning(ctx, "u1", types.USD(1000), types.USD(900), types.USD(50))
		if !errors.Is(err, matrix.ErrLedgerInconsistency) {
			t.Errorf("expected ErrLedgerInconsistency, got %v", err)
		}
	})

	t.Run("SettlePayoutRequiresUnpaid", func(t *testing.T) {
		st := memory.New()

		if err := st.ApplyEarning(ctx, "u1", types.USD(500), types.USD(500), types.Zero("usd")); err != nil {
			t.Fatal(err)
		}
		if err := st.SettlePayout(ctx, "u1", types.USD(900)); !errors.Is(err, matrix.ErrInsufficientUnpaid) {
			t.Errorf("expected ErrInsufficientUnpaid, got %v", err)
		}
		if err := st.SettlePayout(ctx, "u1", types.USD(500)); err != nil {
			t.Fatal(err)
		}

		acct, err := st.GetAccount(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.PaidEarnings.Equal(types.USD(500)) || !acct.UnpaidEarnings.IsZero() {
			t.Errorf("settlement not applied: %+v", acct)
		}
	})

	t.Run("ReleaseReserveRequiresHeld", func(t *testing.T) {
		st := memory.New()

		if err := st.ApplyEarning(ctx, "u1", types.USD(1000), types.USD(900), types.USD(100)); err != nil {
			t.Fatal(err)
		}
		if err := st.ReleaseReserve(ctx, "u1", types.USD(200)); !errors.Is(err, matrix.ErrInsufficientReserve) {
			t.Errorf("expected ErrInsufficientReserve, got %v", err)
		}
		if err := st.ReleaseReserve(ctx, "u1", types.USD(100)); err != nil {
			t.Fatal(err)
		}

		acct, err := st.GetAccount(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.UnpaidEarnings.Equal(types.USD(1000)) || !acct.ReserveHeld.IsZero() {
			t.Errorf("release not applied: %+v", acct)
		}
	})
}

func TestDueEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	// Insertion order: late, early, future. Due order must be by
	// scheduled time with insertion order breaking ties.
	late := queue.NewEvent("u-late", 1, queue.KindNewEntry, "", base.Add(time.Minute))
	early := queue.NewEvent("u-early", 1, queue.KindNewEntry, "", base)
	future := queue.NewEvent("u-future", 1, queue.KindNewEntry, "", base.Add(time.Hour))
	for _, ev := range []*queue.Event{late, early, future} {
		if err := st.EnqueueEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	due, err := st.DueEvents(ctx, base.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due events, got %d", len(due))
	}
	if due[0].OwnerID != "u-early" || due[1].OwnerID != "u-late" {
		t.Errorf("wrong order: %s, %s", due[0].OwnerID, due[1].OwnerID)
	}

	limited, err := st.DueEvents(ctx, base.Add(2*time.Minute), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].OwnerID != "u-early" {
		t.Errorf("limit must keep the earliest event, got %+v", limited)
	}
}

func TestOldestOpenPosition(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	full := position.New("u1", 1, 2, "", "usd")
	full.ChildCounts[0] = 2
	completed := position.New("u2", 1, 2, "", "usd")
	completed.Status = position.StatusCompleted
	open := position.New("u3", 1, 2, "", "usd")
	younger := position.New("u4", 1, 2, "", "usd")

	for _, p := range []*position.Position{full, completed, open, younger} {
		if err := st.CreatePosition(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.OldestOpenPosition(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != open.ID {
		t.Errorf("expected the oldest open position, got %s", got.OwnerID)
	}

	_, err = st.OldestOpenPosition(ctx, 9, 2)
	if !errors.Is(err, matrix.ErrNoAvailableSlot) {
		t.Errorf("expected ErrNoAvailableSlot for an empty level, got %v", err)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	if err := st.ApplyEarning(ctx, "u1", types.USD(500), types.USD(500), types.Zero("usd")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.ApplyEarning(ctx, "u1", types.USD(100), types.USD(100), types.Zero("usd")); err != nil {
			return err
		}
		pos := position.New("u1", 1, 2, "", "usd")
		if err := tx.CreatePosition(ctx, pos); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the inner error surfaced, got %v", err)
	}

	acct, err := st.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalEarnings.Equal(types.USD(500)) {
		t.Errorf("earning not rolled back: %s", acct.TotalEarnings)
	}

	positions, err := st.ListPositions(ctx, position.ListOpts{OwnerID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("position not rolled back: %d", len(positions))
	}
}

func TestWithdrawalFiltering(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	pending := account.NewWithdrawal("u1", types.USD(100), "addr")
	dispatched := account.NewWithdrawal("u1", types.USD(200), "addr")
	dispatched.Status = account.WithdrawalDispatched
	other := account.NewWithdrawal("u2", types.USD(300), "addr")

	for _, w := range []*account.WithdrawalRequest{pending, dispatched, other} {
		if err := st.CreateWithdrawal(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.ListWithdrawals(ctx, "u1", account.WithdrawalPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Errorf("expected only u1's pending request, got %+v", got)
	}

	_, err = st.GetWithdrawal(ctx, account.NewWithdrawal("x", types.USD(1), "a").ID)
	if !matrix.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}
