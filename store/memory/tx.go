package memory

import (
	"context"
	"fmt"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

// snapshot is a deep copy of all mutable store state.
type snapshot struct {
	plans        map[string]*plan.PlanLevel
	sysConfig    *plan.SystemConfig
	positions    map[string]*position.Position
	posOrder     []string
	accounts     map[string]*account.Account
	transactions []*account.Transaction
	withdrawals  map[string]*account.WithdrawalRequest
	wOrder       []string
	members      map[string]*member.Member
	events       []*queue.Event
	run          queue.RunState
}

// WithinTx runs fn against the store and rolls every mutation back when fn
// returns an error.
func (s *Store) WithinTx(_ context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	snap := s.takeSnapshot()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return fmt.Errorf("memory: tx rolled back: %w", err)
	}
	return nil
}

// takeSnapshot deep-copies all mutable state. Caller holds the lock.
func (s *Store) takeSnapshot() *snapshot {
	snap := &snapshot{
		plans:        make(map[string]*plan.PlanLevel, len(s.plans)),
		positions:    make(map[string]*position.Position, len(s.positions)),
		posOrder:     append([]string(nil), s.posOrder...),
		accounts:     make(map[string]*account.Account, len(s.accounts)),
		transactions: append([]*account.Transaction(nil), s.transactions...),
		withdrawals:  make(map[string]*account.WithdrawalRequest, len(s.withdrawals)),
		wOrder:       append([]string(nil), s.wOrder...),
		members:      make(map[string]*member.Member, len(s.members)),
		events:       make([]*queue.Event, 0, len(s.events)),
		run:          s.run,
	}
	for k, p := range s.plans {
		snap.plans[k] = clonePlan(p)
	}
	if s.sysConfig != nil {
		cfg := *s.sysConfig
		snap.sysConfig = &cfg
	}
	for k, p := range s.positions {
		snap.positions[k] = clonePosition(p)
	}
	for k, a := range s.accounts {
		cp := *a
		snap.accounts[k] = &cp
	}
	for k, w := range s.withdrawals {
		snap.withdrawals[k] = cloneWithdrawal(w)
	}
	for k, m := range s.members {
		cp := *m
		snap.members[k] = &cp
	}
	for _, e := range s.events {
		cp := *e
		snap.events = append(snap.events, &cp)
	}
	return snap
}

// restore replaces all state with the snapshot. Caller holds the lock.
func (s *Store) restore(snap *snapshot) {
	s.plans = snap.plans
	s.sysConfig = snap.sysConfig
	s.positions = snap.positions
	s.posOrder = snap.posOrder
	s.accounts = snap.accounts
	s.transactions = snap.transactions
	s.withdrawals = snap.withdrawals
	s.wOrder = snap.wOrder
	s.members = snap.members
	s.events = snap.events
	s.run = snap.run
}

func clonePlan(p *plan.PlanLevel) *plan.PlanLevel {
	cp := *p
	cp.PerLevelBonus = append([]types.Money(nil), p.PerLevelBonus...)
	cp.MatchingBonus = append([]types.Money(nil), p.MatchingBonus...)
	cp.CycleBonus = append([]types.Money(nil), p.CycleBonus...)
	cp.CycleMatchingBonus = append([]types.Money(nil), p.CycleMatchingBonus...)
	cp.CrossEntries = append([]plan.CrossEntryRule(nil), p.CrossEntries...)
	return &cp
}

func clonePosition(p *position.Position) *position.Position {
	cp := *p
	cp.ChildCounts = append([]int64(nil), p.ChildCounts...)
	if p.CycledAt != nil {
		t := *p.CycledAt
		cp.CycledAt = &t
	}
	return &cp
}

func cloneWithdrawal(w *account.WithdrawalRequest) *account.WithdrawalRequest {
	cp := *w
	if w.PaidAt != nil {
		t := *w.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}
