package matrix_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store/memory"
	"github.com/xraph/matrix/types"
)

// fakeClock is a settable time source so tests can drive scheduling and the
// dedup window deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestEngine builds an engine over a fresh in-memory store with a fake
// clock. The engine is not started; tests drive RunBatch directly.
func newTestEngine(t *testing.T, opts ...matrix.Option) (*matrix.Engine, *memory.Store, *fakeClock) {
	t.Helper()

	st := memory.New()
	ck := newFakeClock()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	all := append([]matrix.Option{
		matrix.WithClock(ck.Now),
		matrix.WithLogger(quiet),
	}, opts...)

	return matrix.New(st, all...), st, ck
}

// enroll registers a member and queues their enrollment event.
func enroll(t *testing.T, e *matrix.Engine, userID, username, sponsorUsername string, level int) *queue.Event {
	t.Helper()

	ev, err := e.Enroll(context.Background(), &member.Member{
		ID:            userID,
		Username:      username,
		PayoutAddress: "addr-" + userID,
	}, level, sponsorUsername)
	if err != nil {
		t.Fatalf("enroll %s: %v", userID, err)
	}
	return ev
}

// runBatch drains up to the default batch size and fails the test on error.
func runBatch(t *testing.T, e *matrix.Engine) *queue.RunReport {
	t.Helper()

	report, err := e.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	return report
}

func mustCreatePlan(t *testing.T, e *matrix.Engine, p *plan.PlanLevel) {
	t.Helper()

	if err := e.CreatePlanLevel(context.Background(), p); err != nil {
		t.Fatalf("create plan level %d: %v", p.Level, err)
	}
}

func TestCreatePlanLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("AssignsIDAndDefaultsStatus", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		p := &plan.PlanLevel{
			Level:    1,
			Name:     "Starter",
			Currency: "usd",
			Width:    3,
			Depth:    2,
		}
		mustCreatePlan(t, e, p)

		if p.ID.IsNil() {
			t.Error("expected a generated plan level id")
		}
		if p.Status != plan.StatusActive {
			t.Errorf("expected status active, got %q", p.Status)
		}

		got, err := e.GetPlanByLevel(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Starter" {
			t.Errorf("expected Starter, got %q", got.Name)
		}
	})

	t.Run("RejectsInvalidGeometry", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		bad := &plan.PlanLevel{Level: 1, Currency: "usd", Width: 0, Depth: 2}
		if err := e.CreatePlanLevel(ctx, bad); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsOversizedBonusTable", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		bad := &plan.PlanLevel{
			Level:         1,
			Currency:      "usd",
			Width:         2,
			Depth:         1,
			PerLevelBonus: []types.Money{types.USD(100), types.USD(50)},
		}
		if err := e.CreatePlanLevel(ctx, bad); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRetirePlanLevel(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	p := &plan.PlanLevel{Level: 1, Name: "Starter", Currency: "usd", Width: 2, Depth: 2}
	mustCreatePlan(t, e, p)

	if err := e.RetirePlanLevel(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	_, err := e.Enroll(ctx, &member.Member{ID: "u1", Username: "alice"}, 1, "")
	if !errors.Is(err, matrix.ErrPlanLevelRetired) {
		t.Errorf("expected ErrPlanLevelRetired, got %v", err)
	}
}

func TestSystemConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("FallsBackToDefaults", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		cfg, err := e.SystemConfig(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Currency != "usd" {
			t.Errorf("expected default currency usd, got %q", cfg.Currency)
		}
		if cfg.ReservePercent != 0 {
			t.Errorf("expected zero reserve percent, got %d", cfg.ReservePercent)
		}
	})

	t.Run("RoundTrips", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		cfg := plan.DefaultSystemConfig()
		cfg.ReservePercent = 15
		cfg.NonMatrixMatch = true
		if err := e.SetSystemConfig(ctx, &cfg); err != nil {
			t.Fatal(err)
		}

		got, err := e.SystemConfig(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got.ReservePercent != 15 || !got.NonMatrixMatch {
			t.Errorf("config not persisted: %+v", got)
		}
	})

	t.Run("RejectsBadReservePercent", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		cfg := plan.DefaultSystemConfig()
		cfg.ReservePercent = 120
		if err := e.SetSystemConfig(ctx, &cfg); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("QueuesEvent", func(t *testing.T) {
		e, _, ck := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		ev := enroll(t, e, "u1", "alice", "", 1)
		if ev.Kind != queue.KindNewEntry {
			t.Errorf("expected NEW_ENTRY, got %q", ev.Kind)
		}
		if !ev.ScheduledAt.Equal(ck.Now()) {
			t.Errorf("expected event scheduled now, got %v", ev.ScheduledAt)
		}

		n, err := e.PendingEvents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 pending event, got %d", n)
		}

		m, err := e.GetMember(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if m.Username != "alice" {
			t.Errorf("member not registered: %+v", m)
		}
	})

	t.Run("RequiresIdentity", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustCreatePlan(t, e, &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 2})

		if _, err := e.Enroll(ctx, &member.Member{ID: "u1"}, 1, ""); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing username, got %v", err)
		}
		if _, err := e.Enroll(ctx, nil, 1, ""); !errors.Is(err, matrix.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for nil member, got %v", err)
		}
	})

	t.Run("UnknownLevel", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		_, err := e.Enroll(ctx, &member.Member{ID: "u1", Username: "alice"}, 9, "")
		if !matrix.IsNotFound(err) {
			t.Errorf("expected not-found, got %v", err)
		}
	})
}
