package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/member"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/types"
)

// ==================== Plan models ====================

type planLevelModel struct {
	grove.BaseModel `grove:"table:matrix_plan_levels"`

	ID                   string          `grove:"id,pk"`
	Level                int             `grove:"level"`
	Name                 string          `grove:"name"`
	Currency             string          `grove:"currency"`
	PriceAmount          int64           `grove:"price_amount"`
	Status               string          `grove:"status"`
	Width                int             `grove:"width"`
	Depth                int             `grove:"depth"`
	ReferralAmount       int64           `grove:"referral_amount"`
	PerLevelBonus        json.RawMessage `grove:"per_level_bonus,type:jsonb"`
	MatchingBonus        json.RawMessage `grove:"matching_bonus,type:jsonb"`
	CycleBonus           json.RawMessage `grove:"cycle_bonus,type:jsonb"`
	CycleMatchingBonus   json.RawMessage `grove:"cycle_matching_bonus,type:jsonb"`
	MatrixAmount         int64           `grove:"matrix_amount"`
	MatrixMatchingAmount int64           `grove:"matrix_matching_amount"`
	PayoutMode           string          `grove:"payout_mode"`
	EntryCredits         int64           `grove:"entry_credits"`
	CycleCredits         int64           `grove:"cycle_credits"`
	ReentryCount         int             `grove:"reentry_count"`
	CrossEntries         json.RawMessage `grove:"cross_entries,type:jsonb"`
	CreatedAt            time.Time       `grove:"created_at"`
	UpdatedAt            time.Time       `grove:"updated_at"`
}

func toPlanLevelModel(p *plan.PlanLevel) *planLevelModel {
	perLevel, _ := json.Marshal(p.PerLevelBonus)           //nolint:errcheck // best-effort
	matching, _ := json.Marshal(p.MatchingBonus)           //nolint:errcheck // best-effort
	cycle, _ := json.Marshal(p.CycleBonus)                 //nolint:errcheck // best-effort
	cycleMatching, _ := json.Marshal(p.CycleMatchingBonus) //nolint:errcheck // best-effort
	cross, _ := json.Marshal(p.CrossEntries)               //nolint:errcheck // best-effort

	return &planLevelModel{
		ID:                   p.ID.String(),
		Level:                p.Level,
		Name:                 p.Name,
		Currency:             p.Currency,
		PriceAmount:          p.Price.Amount,
		Status:               string(p.Status),
		Width:                p.Width,
		Depth:                p.Depth,
		ReferralAmount:       p.ReferralBonus.Amount,
		PerLevelBonus:        perLevel,
		MatchingBonus:        matching,
		CycleBonus:           cycle,
		CycleMatchingBonus:   cycleMatching,
		MatrixAmount:         p.MatrixBonus.Amount,
		MatrixMatchingAmount: p.MatrixMatchingBonus.Amount,
		PayoutMode:           string(p.PayoutMode),
		EntryCredits:         p.EntryCredits,
		CycleCredits:         p.CycleCredits,
		ReentryCount:         p.ReentryCount,
		CrossEntries:         cross,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func fromPlanLevelModel(m *planLevelModel) (*plan.PlanLevel, error) {
	planID, err := id.ParsePlanLevelID(m.ID)
	if err != nil {
		return nil, err
	}

	var perLevel, matching, cycle, cycleMatching []types.Money
	_ = json.Unmarshal(m.PerLevelBonus, &perLevel)           //nolint:errcheck // best-effort
	_ = json.Unmarshal(m.MatchingBonus, &matching)           //nolint:errcheck // best-effort
	_ = json.Unmarshal(m.CycleBonus, &cycle)                 //nolint:errcheck // best-effort
	_ = json.Unmarshal(m.CycleMatchingBonus, &cycleMatching) //nolint:errcheck // best-effort

	var cross []plan.CrossEntryRule
	if len(m.CrossEntries) > 0 {
		_ = json.Unmarshal(m.CrossEntries, &cross) //nolint:errcheck // best-effort
	}

	return &plan.PlanLevel{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  planID,
		Level:               m.Level,
		Name:                m.Name,
		Currency:            m.Currency,
		Price:               types.Money{Amount: m.PriceAmount, Currency: m.Currency},
		Status:              plan.Status(m.Status),
		Width:               m.Width,
		Depth:               m.Depth,
		ReferralBonus:       types.Money{Amount: m.ReferralAmount, Currency: m.Currency},
		PerLevelBonus:       perLevel,
		MatchingBonus:       matching,
		CycleBonus:          cycle,
		CycleMatchingBonus:  cycleMatching,
		MatrixBonus:         types.Money{Amount: m.MatrixAmount, Currency: m.Currency},
		MatrixMatchingBonus: types.Money{Amount: m.MatrixMatchingAmount, Currency: m.Currency},
		PayoutMode:          plan.PayoutMode(m.PayoutMode),
		EntryCredits:        m.EntryCredits,
		CycleCredits:        m.CycleCredits,
		ReentryCount:        m.ReentryCount,
		CrossEntries:        cross,
	}, nil
}

type systemConfigModel struct {
	grove.BaseModel `grove:"table:matrix_system_config"`

	ID                 int       `grove:"id,pk"`
	ReservePercent     int       `grove:"reserve_percent"`
	AllowSponsorLookup bool      `grove:"allow_sponsor_lookup"`
	SponsorLookupHops  int       `grove:"sponsor_lookup_hops"`
	NonMatrixMatch     bool      `grove:"non_matrix_match"`
	Currency           string    `grove:"currency"`
	AutoDisburse       bool      `grove:"auto_disburse"`
	DisburseMinimum    int64     `grove:"disburse_minimum"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

// systemConfigID keys the singleton row.
const systemConfigID = 1

func toSystemConfigModel(cfg *plan.SystemConfig) *systemConfigModel {
	return &systemConfigModel{
		ID:                 systemConfigID,
		ReservePercent:     cfg.ReservePercent,
		AllowSponsorLookup: cfg.AllowSponsorLookup,
		SponsorLookupHops:  cfg.SponsorLookupHops,
		NonMatrixMatch:     cfg.NonMatrixMatch,
		Currency:           cfg.Currency,
		AutoDisburse:       cfg.AutoDisburse,
		DisburseMinimum:    cfg.DisburseMinimum.Amount,
	}
}

func fromSystemConfigModel(m *systemConfigModel) *plan.SystemConfig {
	return &plan.SystemConfig{
		ReservePercent:     m.ReservePercent,
		AllowSponsorLookup: m.AllowSponsorLookup,
		SponsorLookupHops:  m.SponsorLookupHops,
		NonMatrixMatch:     m.NonMatrixMatch,
		Currency:           m.Currency,
		AutoDisburse:       m.AutoDisburse,
		DisburseMinimum:    types.Money{Amount: m.DisburseMinimum, Currency: m.Currency},
	}
}

// ==================== Position models ====================

type positionModel struct {
	grove.BaseModel `grove:"table:matrix_positions"`

	ID          string          `grove:"id,pk"`
	OwnerID     string          `grove:"owner_id"`
	Level       int             `grove:"level"`
	ParentID    string          `grove:"parent_id"`
	SponsorID   string          `grove:"sponsor_id"`
	ChildCounts json.RawMessage `grove:"child_counts,type:jsonb"`
	Earned      int64           `grove:"earned_amount"`
	Currency    string          `grove:"currency"`
	CycleCount  int             `grove:"cycle_count"`
	Status      string          `grove:"status"`
	CycledAt    *time.Time      `grove:"cycled_at"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toPositionModel(p *position.Position) *positionModel {
	counts, _ := json.Marshal(p.ChildCounts) //nolint:errcheck // best-effort

	return &positionModel{
		ID:          p.ID.String(),
		OwnerID:     p.OwnerID,
		Level:       p.Level,
		ParentID:    p.ParentID.String(),
		SponsorID:   p.SponsorID,
		ChildCounts: counts,
		Earned:      p.TotalEarned.Amount,
		Currency:    p.TotalEarned.Currency,
		CycleCount:  p.CycleCount,
		Status:      string(p.Status),
		CycledAt:    p.CycledAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPositionModel(m *positionModel) (*position.Position, error) {
	posID, err := id.ParsePositionID(m.ID)
	if err != nil {
		return nil, err
	}

	var parentID id.PositionID
	if m.ParentID != "" {
		parentID, err = id.ParsePositionID(m.ParentID)
		if err != nil {
			return nil, err
		}
	}

	var counts []int64
	_ = json.Unmarshal(m.ChildCounts, &counts) //nolint:errcheck // best-effort

	return &position.Position{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          posID,
		OwnerID:     m.OwnerID,
		Level:       m.Level,
		ParentID:    parentID,
		SponsorID:   m.SponsorID,
		ChildCounts: counts,
		TotalEarned: types.Money{Amount: m.Earned, Currency: m.Currency},
		CycleCount:  m.CycleCount,
		Status:      position.Status(m.Status),
		CycledAt:    m.CycledAt,
	}, nil
}

// ==================== Ledger models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:matrix_accounts"`

	UserID    string    `grove:"user_id,pk"`
	Total     int64     `grove:"total_amount"`
	Paid      int64     `grove:"paid_amount"`
	Unpaid    int64     `grove:"unpaid_amount"`
	Reserve   int64     `grove:"reserve_amount"`
	Currency  string    `grove:"currency"`
	Credits   int64     `grove:"credits"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		UserID:    a.UserID,
		Total:     a.TotalEarnings.Amount,
		Paid:      a.PaidEarnings.Amount,
		Unpaid:    a.UnpaidEarnings.Amount,
		Reserve:   a.ReserveHeld.Amount,
		Currency:  a.TotalEarnings.Currency,
		Credits:   a.Credits,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		UserID:         m.UserID,
		TotalEarnings:  types.Money{Amount: m.Total, Currency: m.Currency},
		PaidEarnings:   types.Money{Amount: m.Paid, Currency: m.Currency},
		UnpaidEarnings: types.Money{Amount: m.Unpaid, Currency: m.Currency},
		ReserveHeld:    types.Money{Amount: m.Reserve, Currency: m.Currency},
		Credits:        m.Credits,
	}
}

type transactionModel struct {
	grove.BaseModel `grove:"table:matrix_transactions"`

	ID         string    `grove:"id,pk"`
	UserID     string    `grove:"user_id"`
	PositionID string    `grove:"position_id"`
	Level      int       `grove:"level"`
	Amount     int64     `grove:"amount"`
	Currency   string    `grove:"currency"`
	Purpose    string    `grove:"purpose"`
	Note       string    `grove:"note"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toTransactionModel(t *account.Transaction) *transactionModel {
	return &transactionModel{
		ID:         t.ID.String(),
		UserID:     t.UserID,
		PositionID: t.PositionID.String(),
		Level:      t.Level,
		Amount:     t.Amount.Amount,
		Currency:   t.Amount.Currency,
		Purpose:    string(t.Purpose),
		Note:       t.Note,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*account.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	var posID id.PositionID
	if m.PositionID != "" {
		posID, err = id.ParsePositionID(m.PositionID)
		if err != nil {
			return nil, err
		}
	}

	return &account.Transaction{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         txnID,
		UserID:     m.UserID,
		PositionID: posID,
		Level:      m.Level,
		Amount:     types.Money{Amount: m.Amount, Currency: m.Currency},
		Purpose:    account.Purpose(m.Purpose),
		Note:       m.Note,
	}, nil
}

type withdrawalModel struct {
	grove.BaseModel `grove:"table:matrix_withdrawals"`

	ID          string     `grove:"id,pk"`
	UserID      string     `grove:"user_id"`
	Amount      int64      `grove:"amount"`
	Currency    string     `grove:"currency"`
	Destination string     `grove:"destination"`
	Reference   string     `grove:"reference"`
	Status      string     `grove:"status"`
	FailReason  string     `grove:"fail_reason"`
	PaidAt      *time.Time `grove:"paid_at"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toWithdrawalModel(w *account.WithdrawalRequest) *withdrawalModel {
	return &withdrawalModel{
		ID:          w.ID.String(),
		UserID:      w.UserID,
		Amount:      w.Amount.Amount,
		Currency:    w.Amount.Currency,
		Destination: w.Destination,
		Reference:   w.Reference,
		Status:      string(w.Status),
		FailReason:  w.FailReason,
		PaidAt:      w.PaidAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*account.WithdrawalRequest, error) {
	wID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}

	return &account.WithdrawalRequest{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          wID,
		UserID:      m.UserID,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		Destination: m.Destination,
		Reference:   m.Reference,
		Status:      account.WithdrawalStatus(m.Status),
		FailReason:  m.FailReason,
		PaidAt:      m.PaidAt,
	}, nil
}

// ==================== Member models ====================

type memberModel struct {
	grove.BaseModel `grove:"table:matrix_members"`

	ID            string    `grove:"id,pk"`
	Username      string    `grove:"username"`
	ReferrerID    string    `grove:"referrer_id"`
	PayoutAddress string    `grove:"payout_address"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toMemberModel(m *member.Member) *memberModel {
	return &memberModel{
		ID:            m.ID,
		Username:      m.Username,
		ReferrerID:    m.ReferrerID,
		PayoutAddress: m.PayoutAddress,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromMemberModel(m *memberModel) *member.Member {
	return &member.Member{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            m.ID,
		Username:      m.Username,
		ReferrerID:    m.ReferrerID,
		PayoutAddress: m.PayoutAddress,
	}
}

// ==================== Queue models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:matrix_events"`

	ID              string    `grove:"id,pk"`
	OwnerID         string    `grove:"owner_id"`
	Level           int       `grove:"level"`
	Kind            string    `grove:"kind"`
	SponsorUsername string    `grove:"sponsor_username"`
	ScheduledAt     time.Time `grove:"scheduled_at"`
	Attempts        int       `grove:"attempts"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toEventModel(e *queue.Event) *eventModel {
	return &eventModel{
		ID:              e.ID.String(),
		OwnerID:         e.OwnerID,
		Level:           e.Level,
		Kind:            string(e.Kind),
		SponsorUsername: e.SponsorUsername,
		ScheduledAt:     e.ScheduledAt,
		Attempts:        e.Attempts,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*queue.Event, error) {
	eventID, err := id.ParseEnrollmentID(m.ID)
	if err != nil {
		return nil, err
	}

	return &queue.Event{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              eventID,
		OwnerID:         m.OwnerID,
		Level:           m.Level,
		Kind:            queue.Kind(m.Kind),
		SponsorUsername: m.SponsorUsername,
		ScheduledAt:     m.ScheduledAt,
		Attempts:        m.Attempts,
	}, nil
}

type runStateModel struct {
	grove.BaseModel `grove:"table:matrix_run_state"`

	ID          int        `grove:"id,pk"`
	Active      bool       `grove:"active"`
	LastEventID string     `grove:"last_event_id"`
	LastRunAt   *time.Time `grove:"last_run_at"`
	Skipped     bool       `grove:"skipped"`
	Processed   int        `grove:"processed"`
	Failed      int        `grove:"failed"`
	ElapsedNS   int64      `grove:"elapsed_ns"`
}

// runStateID keys the singleton row.
const runStateID = 1

func fromRunStateModel(m *runStateModel) (*queue.RunState, error) {
	state := &queue.RunState{
		Active: m.Active,
		LastReport: queue.RunReport{
			Skipped:   m.Skipped,
			Processed: m.Processed,
			Failed:    m.Failed,
			Elapsed:   time.Duration(m.ElapsedNS),
		},
	}
	if m.LastRunAt != nil {
		state.LastRunAt = *m.LastRunAt
	}
	if m.LastEventID != "" {
		eventID, err := id.ParseEnrollmentID(m.LastEventID)
		if err != nil {
			return nil, err
		}
		state.LastEventID = eventID
	}
	return state, nil
}
