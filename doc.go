// Package matrix provides a forced-matrix placement and payout engine for Go
// applications.
//
// Matrix is designed as a library, not a service. Import it directly into
// your Go application and wire it to the host's membership system. It
// provides:
//
//   - Width-bounded tree placement with breadth-first spillover
//   - Deterministic queue-driven processing with a persisted run guard
//   - Per-level, cycle-on-fill, and full-cycle payout modes
//   - Matching bonuses gated on the upline's active position
//   - Cycle completion with automatic re-entries and cross-plan entries
//   - A conservation-checked earnings ledger with reserve withholding
//   - Pluggable withdrawal dispatch to external payment rails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    matrix "github.com/xraph/matrix"
//	    "github.com/xraph/matrix/store/postgres"
//	)
//
//	// Initialize store
//	st := postgres.New(groveDB)
//
//	// Create engine
//	m := matrix.New(st)
//
//	// Start the engine (runs migrations, begins background workers)
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
// # Core Concepts
//
// Plan levels define tree geometry and bonus tables:
//
//	pl := &plan.PlanLevel{
//	    Level:         1,
//	    Name:          "Starter",
//	    Currency:      "usd",
//	    Width:         3,
//	    Depth:         2,
//	    PayoutMode:    plan.PayoutPerLevel,
//	    PerLevelBonus: []types.Money{types.USD(100), types.USD(50)},
//	}
//
// Members enroll through the queue; the background processor places them:
//
//	evt, err := m.Enroll(ctx, &member.Member{ID: "u1", Username: "alice"}, 1, "bob")
//
// Placement walks the sponsor's subtree breadth-first for an open slot,
// then falls back to the oldest open position in the level. Every realized
// placement propagates bonuses up the ancestor chain, and a position whose
// deepest level fills completes a cycle.
//
// Earnings accumulate on per-user accounts:
//
//	acct, err := m.GetAccount(ctx, "u1")
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # Determinism
//
// The processor consumes events strictly in scheduled order (scheduled_at,
// then insertion order), one at a time, under a store-persisted run guard.
// Replaying the same event sequence against an empty store produces the
// same tree and the same ledger.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	mplan_01h2xcejqtf2nbrexx3vqjhp41  // Plan level ID
//	pos_01h2xcejqtf2nbrexx3vqjhp41    // Position ID
//	enr_01h455vb4pex5vsknk084sn02q    // Enrollment event ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package matrix
