// Package memory provides an in-memory store for tests and embedded use.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/matrix"
	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

type Store struct {
	mu sync.RWMutex

	// Plan storage
	plans     map[string]*plan.PlanLevel
	sysConfig *plan.SystemConfig

	// Position storage. posOrder preserves creation order, which the
	// spillover search and FIFO guarantees depend on.
	positions map[string]*position.Position
	posOrder  []string

	// Ledger storage
	accounts     map[string]*account.Account
	transactions []*account.Transaction
	withdrawals  map[string]*account.WithdrawalRequest
	wOrder       []string

	// Member storage
	members map[string]*member.Member

	// Queue storage, insertion-ordered
	events []*queue.Event
	run    queue.RunState

	closed bool
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.Transactional = (*Store)(nil)
)

func New() *Store {
	return &Store{
		plans:       make(map[string]*plan.PlanLevel),
		positions:   make(map[string]*position.Position),
		accounts:    make(map[string]*account.Account),
		withdrawals: make(map[string]*account.WithdrawalRequest),
		members:     make(map[string]*member.Member),
	}
}

// ──────────────────────────────────────────────────
// Plan methods
// ──────────────────────────────────────────────────

func (s *Store) CreatePlanLevel(_ context.Context, p *plan.PlanLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return matrix.ErrAlreadyExists
	}
	for _, existing := range s.plans {
		if existing.Level == p.Level {
			return matrix.ErrAlreadyExists
		}
	}
	s.plans[p.ID.String()] = p
	return nil
}

func (s *Store) GetPlanLevel(_ context.Context, planID id.PlanLevelID) (*plan.PlanLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return p, nil
	}
	return nil, matrix.ErrPlanLevelNotFound
}

func (s *Store) GetPlanByLevel(_ context.Context, level int) (*plan.PlanLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.Level == level {
			return p, nil
		}
	}
	return nil, matrix.ErrPlanLevelNotFound
}

func (s *Store) ListPlanLevels(_ context.Context, opts plan.ListOpts) ([]*plan.PlanLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.PlanLevel, 0)
	for _, p := range s.plans {
		if opts.Status == "" || p.Status == opts.Status {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePlanLevel(_ context.Context, p *plan.PlanLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; !exists {
		return matrix.ErrPlanLevelNotFound
	}
	s.plans[p.ID.String()] = p
	return nil
}

func (s *Store) RetirePlanLevel(_ context.Context, planID id.PlanLevelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.plans[planID.String()]
	if !exists {
		return matrix.ErrPlanLevelNotFound
	}
	p.Status = plan.StatusRetired
	p.Touch()
	return nil
}

func (s *Store) GetSystemConfig(_ context.Context) (*plan.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sysConfig == nil {
		return nil, matrix.ErrConfigNotFound
	}
	return s.sysConfig, nil
}

func (s *Store) PutSystemConfig(_ context.Context, cfg *plan.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sysConfig = cfg
	return nil
}

// ──────────────────────────────────────────────────
// Position methods
// ──────────────────────────────────────────────────

func (s *Store) CreatePosition(_ context.Context, p *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.ID.String()
	if _, exists := s.positions[key]; exists {
		return matrix.ErrAlreadyExists
	}
	s.positions[key] = p
	s.posOrder = append(s.posOrder, key)
	return nil
}

func (s *Store) GetPosition(_ context.Context, posID id.PositionID) (*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[posID.String()]; ok {
		return p, nil
	}
	return nil, matrix.ErrPositionNotFound
}

func (s *Store) UpdatePosition(_ context.Context, p *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID.String()]; !exists {
		return matrix.ErrPositionNotFound
	}
	s.positions[p.ID.String()] = p
	return nil
}

func (s *Store) ActivePositionByOwner(_ context.Context, ownerID string, level int) (*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.posOrder {
		p := s.positions[key]
		if p.OwnerID == ownerID && p.Level == level && p.Status == position.StatusActive {
			return p, nil
		}
	}
	return nil, matrix.ErrPositionNotFound
}

func (s *Store) ChildrenOf(_ context.Context, parentID id.PositionID) ([]*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*position.Position, 0)
	for _, key := range s.posOrder {
		p := s.positions[key]
		if !p.ParentID.IsNil() && p.ParentID.String() == parentID.String() {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) OldestOpenPosition(_ context.Context, level, width int) (*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.posOrder {
		p := s.positions[key]
		if p.Level == level && p.Status == position.StatusActive && p.HasOpenSlot(width) {
			return p, nil
		}
	}
	return nil, matrix.ErrNoAvailableSlot
}

func (s *Store) PositionExistsRecent(_ context.Context, ownerID string, level int, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.posOrder {
		p := s.positions[key]
		if p.OwnerID == ownerID && p.Level == level && !p.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListPositions(_ context.Context, opts position.ListOpts) ([]*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*position.Position, 0)
	for _, key := range s.posOrder {
		p := s.positions[key]
		if opts.OwnerID != "" && p.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Level != 0 && p.Level != opts.Level {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, p)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Account methods
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, userID string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateAccount(userID, ""), nil
}

// getOrCreateAccount returns the user's account, creating one in the given
// currency (or the system currency) on first touch. Caller holds the lock.
func (s *Store) getOrCreateAccount(userID, currency string) *account.Account {
	if a, ok := s.accounts[userID]; ok {
		return a
	}
	if currency == "" {
		currency = "usd"
		if s.sysConfig != nil && s.sysConfig.Currency != "" {
			currency = s.sysConfig.Currency
		}
	}
	a := account.New(userID, currency)
	s.accounts[userID] = a
	return a
}

func (s *Store) ApplyEarning(_ context.Context, userID string, amount, payable, withheld types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !payable.Add(withheld).Equal(amount) {
		return matrix.ErrLedgerInconsistency
	}

	a := s.getOrCreateAccount(userID, amount.Currency)
	if !strings.EqualFold(a.TotalEarnings.Currency, amount.Currency) {
		return matrix.ErrInvalidInput
	}
	a.TotalEarnings = a.TotalEarnings.Add(amount)
	a.UnpaidEarnings = a.UnpaidEarnings.Add(payable)
	a.ReserveHeld = a.ReserveHeld.Add(withheld)
	a.Touch()

	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return nil
}

func (s *Store) SettlePayout(_ context.Context, userID string, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return matrix.ErrAccountNotFound
	}
	if a.UnpaidEarnings.LessThan(amount) {
		return matrix.ErrInsufficientUnpaid
	}
	a.UnpaidEarnings = a.UnpaidEarnings.Subtract(amount)
	a.PaidEarnings = a.PaidEarnings.Add(amount)
	a.Touch()

	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return nil
}

func (s *Store) ReleaseReserve(_ context.Context, userID string, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return matrix.ErrAccountNotFound
	}
	if a.ReserveHeld.LessThan(amount) {
		return matrix.ErrInsufficientReserve
	}
	a.ReserveHeld = a.ReserveHeld.Subtract(amount)
	a.UnpaidEarnings = a.UnpaidEarnings.Add(amount)
	a.Touch()

	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return nil
}

func (s *Store) GrantCredits(_ context.Context, userID string, credits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.getOrCreateAccount(userID, "")
	a.Credits += credits
	a.Touch()
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, t *account.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, t)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, opts account.ListOpts) ([]*account.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if opts.Purpose != "" && t.Purpose != opts.Purpose {
			continue
		}
		if opts.Level != 0 && t.Level != opts.Level {
			continue
		}
		result = append(result, t)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Withdrawal methods
// ──────────────────────────────────────────────────

func (s *Store) CreateWithdrawal(_ context.Context, w *account.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := w.ID.String()
	if _, exists := s.withdrawals[key]; exists {
		return matrix.ErrAlreadyExists
	}
	s.withdrawals[key] = w
	s.wOrder = append(s.wOrder, key)
	return nil
}

func (s *Store) GetWithdrawal(_ context.Context, wID id.WithdrawalID) (*account.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w, ok := s.withdrawals[wID.String()]; ok {
		return w, nil
	}
	return nil, matrix.ErrNotFound
}

func (s *Store) UpdateWithdrawal(_ context.Context, w *account.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.withdrawals[w.ID.String()]; !exists {
		return matrix.ErrNotFound
	}
	s.withdrawals[w.ID.String()] = w
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, userID string, status account.WithdrawalStatus) ([]*account.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.WithdrawalRequest, 0)
	for _, key := range s.wOrder {
		w := s.withdrawals[key]
		if userID != "" && w.UserID != userID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		result = append(result, w)
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Member methods
// ──────────────────────────────────────────────────

func (s *Store) UpsertMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members[m.ID] = m
	return nil
}

func (s *Store) GetMember(_ context.Context, userID string) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.members[userID]; ok {
		return m, nil
	}
	return nil, matrix.ErrOwnerNotFound
}

func (s *Store) GetMemberByUsername(_ context.Context, username string) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.Username == username {
			return m, nil
		}
	}
	return nil, matrix.ErrOwnerNotFound
}

// ──────────────────────────────────────────────────
// Queue methods
// ──────────────────────────────────────────────────

func (s *Store) EnqueueEvent(_ context.Context, e *queue.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	return nil
}

func (s *Store) DueEvents(_ context.Context, now time.Time, limit int) ([]*queue.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*queue.Event, 0)
	for _, e := range s.events {
		if !e.ScheduledAt.After(now) {
			result = append(result, e)
		}
	}
	// Stable sort keeps insertion order among equal ScheduledAt values.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteEvent(_ context.Context, eventID id.EnrollmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.events {
		if e.ID.String() == eventID.String() {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return matrix.ErrEventNotFound
}

func (s *Store) BumpAttempts(_ context.Context, eventID id.EnrollmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID.String() == eventID.String() {
			e.Attempts++
			e.Touch()
			return nil
		}
	}
	return matrix.ErrEventNotFound
}

func (s *Store) LatestEventFor(_ context.Context, ownerID string, level int, since time.Time) (*queue.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *queue.Event
	for _, e := range s.events {
		if e.OwnerID != ownerID || e.Level != level || e.ScheduledAt.Before(since) {
			continue
		}
		if latest == nil || e.ScheduledAt.After(latest.ScheduledAt) {
			latest = e
		}
	}
	return latest, nil
}

func (s *Store) CountEvents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

func (s *Store) AcquireRun(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run.Active {
		return false, nil
	}
	s.run.Active = true
	return true, nil
}

func (s *Store) ReleaseRun(_ context.Context, lastEventID id.EnrollmentID, report queue.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.Active = false
	s.run.LastEventID = lastEventID
	s.run.LastRunAt = time.Now().UTC()
	s.run.LastReport = report
	return nil
}

func (s *Store) RunState(_ context.Context) (*queue.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.run
	return &state, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return matrix.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
