package matrix_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/types"
)

// stubDispatcher records disbursement calls and can be told to fail.
type stubDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *stubDispatcher) Disburse(_ context.Context, userID string, _ types.Money, _, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.calls = append(d.calls, userID)
	return fmt.Sprintf("ext-%d", len(d.calls)), nil
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// seedEarnings credits the member's account directly so withdrawal tests
// need no tree setup.
func seedEarnings(t *testing.T, st interface {
	UpsertMember(ctx context.Context, m *member.Member) error
	ApplyEarning(ctx context.Context, userID string, amount, payable, withheld types.Money) error
}, userID string, amount types.Money) {
	t.Helper()

	ctx := context.Background()
	if err := st.UpsertMember(ctx, &member.Member{ID: userID, Username: userID, PayoutAddress: "addr-" + userID}); err != nil {
		t.Fatal(err)
	}
	if err := st.ApplyEarning(ctx, userID, amount, amount, types.Zero(amount.Currency)); err != nil {
		t.Fatal(err)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	ctx := context.Background()

	t.Run("Validation", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		seedEarnings(t, st, "alice", types.USD(5000))

		if _, err := e.RequestWithdrawal(ctx, "alice", types.Zero("usd")); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for zero amount, got %v", err)
		}
		if _, err := e.RequestWithdrawal(ctx, "alice", types.USD(6000)); !errors.Is(err, matrix.ErrInsufficientUnpaid) {
			t.Errorf("expected ErrInsufficientUnpaid, got %v", err)
		}

		// No payout address on file.
		if err := st.UpsertMember(ctx, &member.Member{ID: "bob", Username: "bob"}); err != nil {
			t.Fatal(err)
		}
		if err := st.ApplyEarning(ctx, "bob", types.USD(1000), types.USD(1000), types.Zero("usd")); err != nil {
			t.Fatal(err)
		}
		if _, err := e.RequestWithdrawal(ctx, "bob", types.USD(500)); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing address, got %v", err)
		}
	})

	t.Run("CreatesPendingRequest", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		seedEarnings(t, st, "alice", types.USD(5000))

		w, err := e.RequestWithdrawal(ctx, "alice", types.USD(2000))
		if err != nil {
			t.Fatal(err)
		}
		if w.Status != account.WithdrawalPending {
			t.Errorf("expected PENDING, got %q", w.Status)
		}
		if w.Destination != "addr-alice" {
			t.Errorf("expected the member payout address, got %q", w.Destination)
		}
		if w.Reference == "" {
			t.Error("expected an idempotency reference")
		}

		// The ledger is untouched until the gateway confirms.
		assertBalance(t, e, "alice", types.USD(5000), types.USD(5000), types.Zero("usd"))
	})
}

func TestMarkWithdrawalPaid(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t)
	seedEarnings(t, st, "alice", types.USD(5000))

	w, err := e.RequestWithdrawal(ctx, "alice", types.USD(2000))
	if err != nil {
		t.Fatal(err)
	}
	w.Status = account.WithdrawalDispatched
	if err := st.UpdateWithdrawal(ctx, w); err != nil {
		t.Fatal(err)
	}

	if err := e.MarkWithdrawalPaid(ctx, "alice", types.USD(2000)); err != nil {
		t.Fatal(err)
	}

	acct, err := e.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.PaidEarnings.Equal(types.USD(2000)) || !acct.UnpaidEarnings.Equal(types.USD(3000)) {
		t.Errorf("settlement not applied: %+v", acct)
	}
	if !acct.Balanced() {
		t.Errorf("account out of balance: %+v", acct)
	}

	got, err := st.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != account.WithdrawalPaid || got.PaidAt == nil {
		t.Errorf("expected the request closed as PAID, got %+v", got)
	}

	// Settling more than is unpaid must fail.
	if err := e.MarkWithdrawalPaid(ctx, "alice", types.USD(9000)); !errors.Is(err, matrix.ErrInsufficientUnpaid) {
		t.Errorf("expected ErrInsufficientUnpaid, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("DispatchesPendingRequest", func(t *testing.T) {
		disp := &stubDispatcher{}
		e, st, _ := newTestEngine(t, matrix.WithDispatcher(disp))
		seedEarnings(t, st, "alice", types.USD(5000))

		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}

		w, err := e.RequestWithdrawal(ctx, "alice", types.USD(2000))
		if err != nil {
			t.Fatal(err)
		}

		// Stop drains the dispatch queue before returning.
		if err := e.Stop(); err != nil {
			t.Fatal(err)
		}

		if disp.callCount() != 1 {
			t.Fatalf("expected one disbursement call, got %d", disp.callCount())
		}
		got, err := st.GetWithdrawal(ctx, w.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != account.WithdrawalDispatched {
			t.Errorf("expected DISPATCHED, got %+v", got)
		}
	})

	t.Run("FailureIsTerminalForRequest", func(t *testing.T) {
		disp := &stubDispatcher{err: errors.New("gateway unreachable")}
		e, st, _ := newTestEngine(t, matrix.WithDispatcher(disp))
		seedEarnings(t, st, "alice", types.USD(5000))

		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		w, err := e.RequestWithdrawal(ctx, "alice", types.USD(2000))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Stop(); err != nil {
			t.Fatal(err)
		}

		got, err := st.GetWithdrawal(ctx, w.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != account.WithdrawalFailed || got.FailReason == "" {
			t.Errorf("expected FAILED with a reason, got %+v", got)
		}

		// Dispatch failure never reverses the ledger.
		assertBalance(t, e, "alice", types.USD(5000), types.USD(5000), types.Zero("usd"))
	})
}

func TestAutoDisburse(t *testing.T) {
	ctx := context.Background()

	autoPlan := func() *plan.PlanLevel {
		return &plan.PlanLevel{
			Level:         1,
			Currency:      "usd",
			Width:         2,
			Depth:         2,
			ReferralBonus: types.USD(600),
			PayoutMode:    plan.PayoutPerLevel,
		}
	}

	t.Run("HoldsBelowMinimum", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		mustCreatePlan(t, e, autoPlan())

		cfg := plan.DefaultSystemConfig()
		cfg.AutoDisburse = true
		cfg.DisburseMinimum = types.USD(1000)
		if err := e.SetSystemConfig(ctx, &cfg); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		runBatch(t, e)

		// Alice has 600 unpaid, below the 1000 floor.
		pending, err := st.ListWithdrawals(ctx, "alice", account.WithdrawalPending)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 0 {
			t.Errorf("expected no request below the minimum, got %d", len(pending))
		}

		enroll(t, e, "carol", "carol", "alice", 1)
		runBatch(t, e)

		// A second referral crosses the floor; the full unpaid balance
		// is queued for dispatch.
		pending, err = st.ListWithdrawals(ctx, "alice", account.WithdrawalPending)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 1 {
			t.Fatalf("expected one auto request, got %d", len(pending))
		}
		if !pending[0].Amount.Equal(types.USD(1200)) {
			t.Errorf("expected the full unpaid balance 1200, got %s", pending[0].Amount)
		}
	})

	t.Run("OneInFlightPerUser", func(t *testing.T) {
		e, st, _ := newTestEngine(t)
		mustCreatePlan(t, e, autoPlan())

		cfg := plan.DefaultSystemConfig()
		cfg.AutoDisburse = true
		if err := e.SetSystemConfig(ctx, &cfg); err != nil {
			t.Fatal(err)
		}

		enroll(t, e, "alice", "alice", "", 1)
		enroll(t, e, "bob", "bob", "alice", 1)
		enroll(t, e, "carol", "carol", "alice", 1)
		runBatch(t, e)

		// Two referral credits, but the second lands while the first
		// request is still pending.
		pending, err := st.ListWithdrawals(ctx, "alice", account.WithdrawalPending)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 1 {
			t.Errorf("expected a single in-flight request, got %d", len(pending))
		}
	})
}
