package matrix_test

import (
	"context"
	"strings"
	"testing"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/store/memory"
	"github.com/xraph/matrix/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStart", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		st := memory.New()

		// Create engine
		m := matrix.New(st)

		// Start the engine (runs migrations, begins background workers)
		ctx := context.Background()
		if err := m.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer m.Stop() //nolint:errcheck

		// Plan levels define tree geometry and bonus tables
		pl := &plan.PlanLevel{
			Level:         1,
			Name:          "Starter",
			Currency:      "usd",
			Width:         3,
			Depth:         2,
			PayoutMode:    plan.PayoutPerLevel,
			PerLevelBonus: []types.Money{types.USD(100), types.USD(50)},
		}
		if err := m.CreatePlanLevel(ctx, pl); err != nil {
			t.Fatal(err)
		}

		// Members enroll through the queue
		evt, err := m.Enroll(ctx, &member.Member{ID: "u1", Username: "alice"}, 1, "")
		if err != nil {
			t.Fatal(err)
		}
		if evt.ID.IsNil() {
			t.Error("expected a generated event id")
		}

		// The processor places queued enrollments
		if _, err := m.RunBatch(ctx, 0); err != nil {
			t.Fatal(err)
		}

		// Earnings accumulate on per-user accounts
		acct, err := m.GetAccount(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.Balanced() {
			t.Errorf("account out of balance: %+v", acct)
		}
	})

	t.Run("MoneyArithmetic", func(t *testing.T) {
		price := types.USD(4900)
		if price.FormatMajor() != "49.00" {
			t.Errorf("expected 49.00, got %s", price.FormatMajor())
		}

		withheld, payable := types.USD(1000).Split(10)
		if withheld.Amount != 100 || payable.Amount != 900 {
			t.Errorf("expected 100/900 split, got %d/%d", withheld.Amount, payable.Amount)
		}
		if !withheld.Add(payable).Equal(types.USD(1000)) {
			t.Error("split must conserve the amount")
		}
	})

	t.Run("TypeIDPrefixes", func(t *testing.T) {
		p := &plan.PlanLevel{Level: 1, Currency: "usd", Width: 2, Depth: 1}
		st := memory.New()
		m := matrix.New(st)
		if err := m.CreatePlanLevel(context.Background(), p); err != nil {
			t.Fatal(err)
		}
		if got := p.ID.String(); !strings.HasPrefix(got, "mplan_") {
			t.Errorf("expected an mplan_ prefixed id, got %q", got)
		}
	})
}
