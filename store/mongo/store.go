// Package mongo implements the matrix store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colPlanLevels   = "matrix_plan_levels"
	colSystemConfig = "matrix_system_config"
	colPositions    = "matrix_positions"
	colAccounts     = "matrix_accounts"
	colTransactions = "matrix_transactions"
	colWithdrawals  = "matrix_withdrawals"
	colMembers      = "matrix_members"
	colEvents       = "matrix_events"
	colRunState     = "matrix_run_state"
)

// compile-time interface check
var _ matrixstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all matrix collections and seeds the run
// guard document.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("matrix/mongo: migrate %s indexes: %w", col, err)
		}
	}

	_, err := s.mdb.NewUpdate((*runStateModel)(nil)).
		Filter(bson.M{"_id": runStateID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":    runStateID,
			"active": false,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: seed run state: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: create plan level: %w", err)
	}
	return nil
}

func (s *Store) GetPlanLevel(ctx context.Context, planID id.PlanLevelID) (*plan.PlanLevel, error) {
	var m planLevelModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrPlanLevelNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get plan level: %w", err)
	}
	return fromPlanLevelModel(&m)
}

func (s *Store) GetPlanByLevel(ctx context.Context, level int) (*plan.PlanLevel, error) {
	var m planLevelModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"level": level}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrPlanLevelNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get plan by level: %w", err)
	}
	return fromPlanLevelModel(&m)
}

func (s *Store) ListPlanLevels(ctx context.Context, opts plan.ListOpts) ([]*plan.PlanLevel, error) {
	var models []planLevelModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "level", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("matrix/mongo: list plan levels: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: update plan level: %w", err)
	}
	if res.MatchedCount() == 0 {
		return matrix.ErrPlanLevelNotFound
	}
	return nil
}

func (s *Store) RetirePlanLevel(ctx context.Context, planID id.PlanLevelID) error {
	t := now()
	res, err := s.mdb.NewUpdate((*planLevelModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Set("status", string(plan.StatusRetired)).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: retire plan level: %w", err)
	}
	if res.MatchedCount() == 0 {
		return matrix.ErrPlanLevelNotFound
	}
	return nil
}

func (s *Store) GetSystemConfig(ctx context.Context) (*plan.SystemConfig, error) {
	var m systemConfigModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": systemConfigID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrConfigNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get system config: %w", err)
	}
	return fromSystemConfigModel(&m), nil
}

func (s *Store) PutSystemConfig(ctx context.Context, cfg *plan.SystemConfig) error {
	m := toSystemConfigModel(cfg)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": systemConfigID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":                  systemConfigID,
			"reserve_percent":      m.ReservePercent,
			"allow_sponsor_lookup": m.AllowSponsorLookup,
			"sponsor_lookup_hops":  m.SponsorLookupHops,
			"non_matrix_match":     m.NonMatrixMatch,
			"currency":             m.Currency,
			"auto_disburse":        m.AutoDisburse,
			"disburse_minimum":     m.DisburseMinimum,
			"updated_at":           m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: put system config: %w", err)
	}
	return nil
}

// ==================== Position Store ====================

func (s *Store) CreatePosition(ctx context.Context, p *position.Position) error {
	m := toPositionModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: create position: %w", err)
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, posID id.PositionID) (*position.Position, error) {
	var m positionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": posID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrPositionNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get position: %w", err)
	}
	return fromPositionModel(&m)
}

func (s *Store) UpdatePosition(ctx context.Context, p *position.Position) error {
	m := toPositionModel(p)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: update position: %w", err)
	}
	if res.MatchedCount() == 0 {
		return matrix.ErrPositionNotFound
	}
	return nil
}

func (s *Store) ActivePositionByOwner(ctx context.Context, ownerID string, level int) (*position.Position, error) {
	var m positionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"owner_id": ownerID,
			"level":    level,
			"status":   string(position.StatusActive),
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrPositionNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: active position by owner: %w", err)
	}
	return fromPositionModel(&m)
}

func (s *Store) ChildrenOf(ctx context.Context, parentID id.PositionID) ([]*position.Position, error) {
	var models []positionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"parent_id": parentID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrix/mongo: children of: %w", err)
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
	var m positionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"level":          level,
			"status":         string(position.StatusActive),
			"child_counts.0": bson.M{"$lt": int64(width)},
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrNoAvailableSlot
		}
		return nil, fmt.Errorf("matrix/mongo: oldest open position: %w", err)
	}
	return fromPositionModel(&m)
}

func (s *Store) PositionExistsRecent(ctx context.Context, ownerID string, level int, since time.Time) (bool, error) {
	count, err := s.mdb.Collection(colPositions).CountDocuments(ctx, bson.M{
		"owner_id":   ownerID,
		"level":      level,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return false, fmt.Errorf("matrix/mongo: position exists recent: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListPositions(ctx context.Context, opts position.ListOpts) ([]*position.Position, error) {
	var models []positionModel

	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}
	if opts.Level != 0 {
		filter["level"] = opts.Level
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("matrix/mongo: list positions: %w", err)
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

func (s *Store) getOrCreateAccount(ctx context.Context, userID, currency string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err == nil {
		return fromAccountModel(&m), nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("matrix/mongo: get account: %w", err)
	}

	if currency == "" {
		currency = "usd"
		if cfg, cerr := s.GetSystemConfig(ctx); cerr == nil && cfg.Currency != "" {
			currency = cfg.Currency
		}
	}

	a := account.New(userID, currency)
	am := toAccountModel(a)
	_, err = s.mdb.NewUpdate(am).
		Filter(bson.M{"_id": userID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":            am.UserID,
			"total_amount":   am.Total,
			"paid_amount":    am.Paid,
			"unpaid_amount":  am.Unpaid,
			"reserve_amount": am.Reserve,
			"currency":       am.Currency,
			"credits":        am.Credits,
			"created_at":     am.CreatedAt,
			"updated_at":     am.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrix/mongo: create account: %w", err)
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
	if _, err := s.getOrCreateAccount(ctx, userID, ""); err != nil {
		return err
	}
	_, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": userID}).
		SetUpdate(bson.M{
			"$inc": bson.M{"credits": credits},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: grant credits: %w", err)
	}
	return nil
}

func (s *Store) getAccountStrict(ctx context.Context, userID string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrAccountNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) updateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.UserID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: update account: %w", err)
	}
	return nil
}

func (s *Store) AppendTransaction(ctx context.Context, t *account.Transaction) error {
	m := toTransactionModel(t)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, opts account.ListOpts) ([]*account.Transaction, error) {
	var models []transactionModel

	filter := bson.M{"user_id": userID}
	if opts.Purpose != "" {
		filter["purpose"] = string(opts.Purpose)
	}
	if opts.Level != 0 {
		filter["level"] = opts.Level
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("matrix/mongo: list transactions: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, wID id.WithdrawalID) (*account.WithdrawalRequest, error) {
	var m withdrawalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": wID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get withdrawal: %w", err)
	}
	return fromWithdrawalModel(&m)
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w *account.WithdrawalRequest) error {
	m := toWithdrawalModel(w)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: update withdrawal: %w", err)
	}
	if res.MatchedCount() == 0 {
		return matrix.ErrNotFound
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID string, status account.WithdrawalStatus) ([]*account.WithdrawalRequest, error) {
	var models []withdrawalModel

	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	if status != "" {
		filter["status"] = string(status)
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrix/mongo: list withdrawals: %w", err)
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

	_, err := s.mdb.NewUpdate(mm).
		Filter(bson.M{"_id": mm.ID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"username":       mm.Username,
				"referrer_id":    mm.ReferrerID,
				"payout_address": mm.PayoutAddress,
				"updated_at":     mm.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"_id":        mm.ID,
				"created_at": mm.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: upsert member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, userID string) (*member.Member, error) {
	var m memberModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get member: %w", err)
	}
	return fromMemberModel(&m), nil
}

func (s *Store) GetMemberByUsername(ctx context.Context, username string) (*member.Member, error) {
	var m memberModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"username": username}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, matrix.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("matrix/mongo: get member by username: %w", err)
	}
	return fromMemberModel(&m), nil
}

// ==================== Queue Store ====================

func (s *Store) EnqueueEvent(ctx context.Context, e *queue.Event) error {
	m := toEventModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: enqueue event: %w", err)
	}
	return nil
}

func (s *Store) DueEvents(ctx context.Context, nowT time.Time, limit int) ([]*queue.Event, error) {
	var models []eventModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"scheduled_at": bson.M{"$lte": nowT}}).
		Sort(bson.D{{Key: "scheduled_at", Value: 1}, {Key: "created_at", Value: 1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("matrix/mongo: due events: %w", err)
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
	res, err := s.mdb.NewDelete((*eventModel)(nil)).
		Filter(bson.M{"_id": eventID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: delete event: %w", err)
	}
	if res.DeletedCount() == 0 {
		return matrix.ErrEventNotFound
	}
	return nil
}

func (s *Store) BumpAttempts(ctx context.Context, eventID id.EnrollmentID) error {
	res, err := s.mdb.NewUpdate((*eventModel)(nil)).
		Filter(bson.M{"_id": eventID.String()}).
		SetUpdate(bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: bump attempts: %w", err)
	}
	if res.MatchedCount() == 0 {
		return matrix.ErrEventNotFound
	}
	return nil
}

func (s *Store) LatestEventFor(ctx context.Context, ownerID string, level int, since time.Time) (*queue.Event, error) {
	var m eventModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"owner_id":     ownerID,
			"level":        level,
			"scheduled_at": bson.M{"$gte": since},
		}).
		Sort(bson.D{{Key: "scheduled_at", Value: -1}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("matrix/mongo: latest event for: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	count, err := s.mdb.Collection(colEvents).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("matrix/mongo: count events: %w", err)
	}
	return int(count), nil
}

func (s *Store) AcquireRun(ctx context.Context) (bool, error) {
	res, err := s.mdb.NewUpdate((*runStateModel)(nil)).
		Filter(bson.M{"_id": runStateID, "active": false}).
		SetUpdate(bson.M{"$set": bson.M{"active": true}}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("matrix/mongo: acquire run: %w", err)
	}
	return res.MatchedCount() > 0, nil
}

func (s *Store) ReleaseRun(ctx context.Context, lastEventID id.EnrollmentID, report queue.RunReport) error {
	t := now()
	_, err := s.mdb.NewUpdate((*runStateModel)(nil)).
		Filter(bson.M{"_id": runStateID}).
		SetUpdate(bson.M{"$set": bson.M{
			"active":        false,
			"last_event_id": lastEventID.String(),
			"last_run_at":   t,
			"skipped":       report.Skipped,
			"processed":     report.Processed,
			"failed":        report.Failed,
			"elapsed_ns":    int64(report.Elapsed),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("matrix/mongo: release run: %w", err)
	}
	return nil
}

func (s *Store) RunState(ctx context.Context) (*queue.RunState, error) {
	var m runStateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": runStateID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &queue.RunState{}, nil
		}
		return nil, fmt.Errorf("matrix/mongo: run state: %w", err)
	}
	return fromRunStateModel(&m)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all matrix collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlanLevels: {
			{
				Keys:    bson.D{{Key: "level", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colPositions: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "level", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "level", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "purpose", Value: 1}, {Key: "level", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{
				Keys:    bson.D{{Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colMembers: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colEvents: {
			{Keys: bson.D{{Key: "scheduled_at", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "level", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		},
	}
}
