// Package sqlite implements the matrix store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	matrix "github.com/xraph/matrix"
	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	matrixstore "github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

// compile-time interface check
var _ matrixstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("matrix/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("matrix/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

func (s *Store) CreatePlanLevel(ctx context.Context, p *plan.PlanLevel) error {
	m := toPlanLevelModel(p)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetPlanLevel(ctx context.Context, planID id.PlanLevelID) (*plan.PlanLevel, error) {
	m := new(planLevelModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrPlanLevelNotFound
		}
		return nil, err
	}
	return fromPlanLevelModel(m)
}

func (s *Store) GetPlanByLevel(ctx context.Context, level int) (*plan.PlanLevel, error) {
	m := new(planLevelModel)
	err := s.sdb.NewSelect(m).
		Where("level = ?", level).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrPlanLevelNotFound
		}
		return nil, err
	}
	return fromPlanLevelModel(m)
}

func (s *Store) ListPlanLevels(ctx context.Context, opts plan.ListOpts) ([]*plan.PlanLevel, error) {
	var models []planLevelModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("level ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.PlanLevel, len(models))
	for i := range models {
		p, err := fromPlanLevelModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlanLevel(ctx context.Context, p *plan.PlanLevel) error {
	m := toPlanLevelModel(p)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return matrix.ErrPlanLevelNotFound
	}
	return nil
}

func (s *Store) RetirePlanLevel(ctx context.Context, planID id.PlanLevelID) error {
	p, err := s.GetPlanLevel(ctx, planID)
	if err != nil {
		return err
	}
	p.Status = plan.StatusRetired
	return s.UpdatePlanLevel(ctx, p)
}

func (s *Store) GetSystemConfig(ctx context.Context) (*plan.SystemConfig, error) {
	m := new(systemConfigModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", systemConfigID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrConfigNotFound
		}
		return nil, err
	}
	return fromSystemConfigModel(m), nil
}

func (s *Store) PutSystemConfig(ctx context.Context, cfg *plan.SystemConfig) error {
	m := toSystemConfigModel(cfg)
	m.UpdatedAt = now()
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("reserve_percent = EXCLUDED.reserve_percent").
		Set("allow_sponsor_lookup = EXCLUDED.allow_sponsor_lookup").
		Set("sponsor_lookup_hops = EXCLUDED.sponsor_lookup_hops").
		Set("non_matrix_match = EXCLUDED.non_matrix_match").
		Set("currency = EXCLUDED.currency").
		Set("auto_disburse = EXCLUDED.auto_disburse").
		Set("disburse_minimum = EXCLUDED.disburse_minimum").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Position Store ====================

func (s *Store) CreatePosition(ctx context.Context, p *position.Position) error {
	m := toPositionModel(p)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetPosition(ctx context.Context, posID id.PositionID) (*position.Position, error) {
	m := new(positionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", posID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrPositionNotFound
		}
		return nil, err
	}
	return fromPositionModel(m)
}

func (s *Store) UpdatePosition(ctx context.Context, p *position.Position) error {
	m := toPositionModel(p)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return matrix.ErrPositionNotFound
	}
	return nil
}

func (s *Store) ActivePositionByOwner(ctx context.Context, ownerID string, level int) (*position.Position, error) {
	m := new(positionModel)
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID).
		Where("level = ?", level).
		Where("status = ?", string(position.StatusActive)).
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrPositionNotFound
		}
		return nil, err
	}
	return fromPositionModel(m)
}

func (s *Store) ChildrenOf(ctx context.Context, parentID id.PositionID) ([]*position.Position, error) {
	var models []positionModel
	err := s.sdb.NewSelect(&models).
		Where("parent_id = ?", parentID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*position.Position, len(models))
	for i := range models {
		p, err := fromPositionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) OldestOpenPosition(ctx context.Context, level, width int) (*position.Position, error) {
	m := new(positionModel)
	err := s.sdb.NewSelect(m).
		Where("level = ?", level).
		Where("status = ?", string(position.StatusActive)).
		Where("COALESCE(json_extract(child_counts, '$[0]'), 0) < ?", int64(width)).
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrNoAvailableSlot
		}
		return nil, err
	}
	return fromPositionModel(m)
}

func (s *Store) PositionExistsRecent(ctx context.Context, ownerID string, level int, since time.Time) (bool, error) {
	var count int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM matrix_positions
		WHERE owner_id = ? AND level = ? AND created_at >= ?
	`, ownerID, level, since).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListPositions(ctx context.Context, opts position.ListOpts) ([]*position.Position, error) {
	var models []positionModel
	q := s.sdb.NewSelect(&models)

	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}
	if opts.Level != 0 {
		q = q.Where("level = ?", opts.Level)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*position.Position, len(models))
	for i := range models {
		p, err := fromPositionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	return s.getOrCreateAccount(ctx, userID, "")
}

// getOrCreateAccount reads the account, inserting a zeroed row in the given
// currency (or the system currency) on first touch. The batch processor is
// the only writer, so read-then-insert is race-free in practice; the primary
// key still guards against true concurrent creation.
func (s *Store) getOrCreateAccount(ctx context.Context, userID, currency string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err == nil {
		return fromAccountModel(m), nil
	}
	if !isNoRows(err) {
		return nil, err
	}

	if currency == "" {
		currency = "usd"
		if cfg, cerr := s.GetSystemConfig(ctx); cerr == nil && cfg.Currency != "" {
			currency = cfg.Currency
		}
	}

	a := account.New(userID, currency)
	am := toAccountModel(a)
	if _, err := s.sdb.NewInsert(am).OnConflict("(user_id) DO NOTHING").Exec(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ApplyEarning(ctx context.Context, userID string, amount, payable, withheld types.Money) error {
	if !payable.Add(withheld).Equal(amount) {
		return matrix.ErrLedgerInconsistency
	}

	a, err := s.getOrCreateAccount(ctx, userID, amount.Currency)
	if err != nil {
		return err
	}
	a.TotalEarnings = a.TotalEarnings.Add(amount)
	a.UnpaidEarnings = a.UnpaidEarnings.Add(payable)
	a.ReserveHeld = a.ReserveHeld.Add(withheld)
	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return s.updateAccount(ctx, a)
}

func (s *Store) SettlePayout(ctx context.Context, userID string, amount types.Money) error {
	a, err := s.getAccountStrict(ctx, userID)
	if err != nil {
		return err
	}
	if a.UnpaidEarnings.LessThan(amount) {
		return matrix.ErrInsufficientUnpaid
	}
	a.UnpaidEarnings = a.UnpaidEarnings.Subtract(amount)
	a.PaidEarnings = a.PaidEarnings.Add(amount)
	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return s.updateAccount(ctx, a)
}

func (s *Store) ReleaseReserve(ctx context.Context, userID string, amount types.Money) error {
	a, err := s.getAccountStrict(ctx, userID)
	if err != nil {
		return err
	}
	if a.ReserveHeld.LessThan(amount) {
		return matrix.ErrInsufficientReserve
	}
	a.ReserveHeld = a.ReserveHeld.Subtract(amount)
	a.UnpaidEarnings = a.UnpaidEarnings.Add(amount)
	if !a.Balanced() {
		return matrix.ErrLedgerInconsistency
	}
	return s.updateAccount(ctx, a)
}

func (s *Store) GrantCredits(ctx context.Context, userID string, credits int64) error {
	a, err := s.getOrCreateAccount(ctx, userID, "")
	if err != nil {
		return err
	}
	a.Credits += credits
	return s.updateAccount(ctx, a)
}

func (s *Store) getAccountStrict(ctx context.Context, userID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) updateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	_, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	return err
}

func (s *Store) AppendTransaction(ctx context.Context, t *account.Transaction) error {
	m := toTransactionModel(t)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, userID string, opts account.ListOpts) ([]*account.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Purpose != "" {
		q = q.Where("purpose = ?", string(opts.Purpose))
	}
	if opts.Level != 0 {
		q = q.Where("level = ?", opts.Level)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Transaction, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

func (s *Store) CreateWithdrawal(ctx context.Context, w *account.WithdrawalRequest) error {
	m := toWithdrawalModel(w)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetWithdrawal(ctx context.Context, wID id.WithdrawalID) (*account.WithdrawalRequest, error) {
	m := new(withdrawalModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", wID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrNotFound
		}
		return nil, err
	}
	return fromWithdrawalModel(m)
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w *account.WithdrawalRequest) error {
	m := toWithdrawalModel(w)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return matrix.ErrNotFound
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID string, status account.WithdrawalStatus) ([]*account.WithdrawalRequest, error) {
	var models []withdrawalModel
	q := s.sdb.NewSelect(&models)

	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.WithdrawalRequest, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Member Store ====================

func (s *Store) UpsertMember(ctx context.Context, m *member.Member) error {
	mm := toMemberModel(m)
	mm.UpdatedAt = now()
	_, err := s.sdb.NewInsert(mm).
		OnConflict("(id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("referrer_id = EXCLUDED.referrer_id").
		Set("payout_address = EXCLUDED.payout_address").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetMember(ctx context.Context, userID string) (*member.Member, error) {
	m := new(memberModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrOwnerNotFound
		}
		return nil, err
	}
	return fromMemberModel(m), nil
}

func (s *Store) GetMemberByUsername(ctx context.Context, username string) (*member.Member, error) {
	m := new(memberModel)
	err := s.sdb.NewSelect(m).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, matrix.ErrOwnerNotFound
		}
		return nil, err
	}
	return fromMemberModel(m), nil
}

// ==================== Queue Store ====================

func (s *Store) EnqueueEvent(ctx context.Context, e *queue.Event) error {
	m := toEventModel(e)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) DueEvents(ctx context.Context, nowT time.Time, limit int) ([]*queue.Event, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models).
		Where("scheduled_at <= ?", nowT).
		OrderExpr("scheduled_at ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*queue.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID id.EnrollmentID) error {
	res, err := s.sdb.NewDelete((*eventModel)(nil)).
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return matrix.ErrEventNotFound
	}
	return nil
}

func (s *Store) BumpAttempts(ctx context.Context, eventID id.EnrollmentID) error {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return matrix.ErrEventNotFound
		}
		return err
	}
	m.Attempts++
	m.UpdatedAt = now()
	_, err = s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	return err
}

func (s *Store) LatestEventFor(ctx context.Context, ownerID string, level int, since time.Time) (*queue.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID).
		Where("level = ?", level).
		Where("scheduled_at >= ?", since).
		OrderExpr("scheduled_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var count int
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM matrix_events`).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) AcquireRun(ctx context.Context) (bool, error) {
	var active bool
	err := s.sdb.NewRaw(`
		UPDATE matrix_run_state SET active = TRUE
		WHERE id = ? AND active = FALSE
		RETURNING active
	`, runStateID).Scan(ctx, &active)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) ReleaseRun(ctx context.Context, lastEventID id.EnrollmentID, report queue.RunReport) error {
	t := now()
	m := &runStateModel{
		ID:          runStateID,
		Active:      false,
		LastEventID: lastEventID.String(),
		LastRunAt:   &t,
		Skipped:     report.Skipped,
		Processed:   report.Processed,
		Failed:      report.Failed,
		ElapsedNS:   int64(report.Elapsed),
	}
	_, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	return err
}

func (s *Store) RunState(ctx context.Context) (*queue.RunState, error) {
	m := new(runStateModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", runStateID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &queue.RunState{}, nil
		}
		return nil, err
	}
	return fromRunStateModel(m)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
