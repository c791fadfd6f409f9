package mongo

import (
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

// ==================== Shared sub-documents ====================

type moneyDoc struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency,omitempty"`
}

func toMoneyDocs(table []types.Money) []moneyDoc {
	if table == nil {
		return nil
	}
	docs := make([]moneyDoc, len(table))
	for i, m := range table {
		docs[i] = moneyDoc{Amount: m.Amount, Currency: m.Currency}
	}
	return docs
}

func fromMoneyDocs(docs []moneyDoc) []types.Money {
	if docs == nil {
		return nil
	}
	table := make([]types.Money, len(docs))
	for i, d := range docs {
		table[i] = types.Money{Amount: d.Amount, Currency: d.Currency}
	}
	return table
}

// ==================== Plan models ====================

type crossEntryDoc struct {
	Enabled     bool `bson:"enabled"`
	Count       int  `bson:"count"`
	TargetLevel int  `bson:"target_level"`
}

type planLevelModel struct {
	grove.BaseModel `grove:"table:matrix_plan_levels"`

	ID                   string          `grove:"id,pk"                  bson:"_id"`
	Level                int             `grove:"level"                  bson:"level"`
	Name                 string          `grove:"name"                   bson:"name"`
	Currency             string          `grove:"currency"               bson:"currency"`
	PriceAmount          int64           `grove:"price_amount"           bson:"price_amount"`
	Status               string          `grove:"status"                 bson:"status"`
	Width                int             `grove:"width"                  bson:"width"`
	Depth                int             `grove:"depth"                  bson:"depth"`
	ReferralAmount       int64           `grove:"referral_amount"        bson:"referral_amount"`
	PerLevelBonus        []moneyDoc      `grove:"per_level_bonus"        bson:"per_level_bonus,omitempty"`
	MatchingBonus        []moneyDoc      `grove:"matching_bonus"         bson:"matching_bonus,omitempty"`
	CycleBonus           []moneyDoc      `grove:"cycle_bonus"            bson:"cycle_bonus,omitempty"`
	CycleMatchingBonus   []moneyDoc      `grove:"cycle_matching_bonus"   bson:"cycle_matching_bonus,omitempty"`
	MatrixAmount         int64           `grove:"matrix_amount"          bson:"matrix_amount"`
	MatrixMatchingAmount int64           `grove:"matrix_matching_amount" bson:"matrix_matching_amount"`
	PayoutMode           string          `grove:"payout_mode"            bson:"payout_mode"`
	EntryCredits         int64           `grove:"entry_credits"          bson:"entry_credits"`
	CycleCredits         int64           `grove:"cycle_credits"          bson:"cycle_credits"`
	ReentryCount         int             `grove:"reentry_count"          bson:"reentry_count"`
	CrossEntries         []crossEntryDoc `grove:"cross_entries"          bson:"cross_entries,omitempty"`
	CreatedAt            time.Time       `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time       `grove:"updated_at"             bson:"updated_at"`
}

func toPlanLevelModel(p *plan.PlanLevel) *planLevelModel {
	var cross []crossEntryDoc
	for _, rule := range p.CrossEntries {
		cross = append(cross, crossEntryDoc{
			Enabled:     rule.Enabled,
			Count:       rule.Count,
			TargetLevel: rule.TargetLevel,
		})
	}

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
		PerLevelBonus:        toMoneyDocs(p.PerLevelBonus),
		MatchingBonus:        toMoneyDocs(p.MatchingBonus),
		CycleBonus:           toMoneyDocs(p.CycleBonus),
		CycleMatchingBonus:   toMoneyDocs(p.CycleMatchingBonus),
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

	var cross []plan.CrossEntryRule
	for _, doc := range m.CrossEntries {
		cross = append(cross, plan.CrossEntryRule{
			Enabled:     doc.Enabled,
			Count:       doc.Count,
			TargetLevel: doc.TargetLevel,
		})
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
		PerLevelBonus:       fromMoneyDocs(m.PerLevelBonus),
		MatchingBonus:       fromMoneyDocs(m.MatchingBonus),
		CycleBonus:          fromMoneyDocs(m.CycleBonus),
		CycleMatchingBonus:  fromMoneyDocs(m.CycleMatchingBonus),
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

	ID                 int       `grove:"id,pk"                bson:"_id"`
	ReservePercent     int       `grove:"reserve_percent"      bson:"reserve_percent"`
	AllowSponsorLookup bool      `grove:"allow_sponsor_lookup" bson:"allow_sponsor_lookup"`
	SponsorLookupHops  int       `grove:"sponsor_lookup_hops"  bson:"sponsor_lookup_hops"`
	NonMatrixMatch     bool      `grove:"non_matrix_match"     bson:"non_matrix_match"`
	Currency           string    `grove:"currency"             bson:"currency"`
	AutoDisburse       bool      `grove:"auto_disburse"        bson:"auto_disburse"`
	DisburseMinimum    int64     `grove:"disburse_minimum"     bson:"disburse_minimum"`
	UpdatedAt          time.Time `grove:"updated_at"           bson:"updated_at"`
}

// systemConfigID keys the singleton document.
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

	ID          string     `grove:"id,pk"         bson:"_id"`
	OwnerID     string     `grove:"owner_id"      bson:"owner_id"`
	Level       int        `grove:"level"         bson:"level"`
	ParentID    string     `grove:"parent_id"     bson:"parent_id"`
	SponsorID   string     `grove:"sponsor_id"    bson:"sponsor_id"`
	ChildCounts []int64    `grove:"child_counts"  bson:"child_counts"`
	Earned      int64      `grove:"earned_amount" bson:"earned_amount"`
	Currency    string     `grove:"currency"      bson:"currency"`
	CycleCount  int        `grove:"cycle_count"   bson:"cycle_count"`
	Status      string     `grove:"status"        bson:"status"`
	CycledAt    *time.Time `grove:"cycled_at"     bson:"cycled_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"    bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"    bson:"updated_at"`
}

func toPositionModel(p *position.Position) *positionModel {
	return &positionModel{
		ID:          p.ID.String(),
		OwnerID:     p.OwnerID,
		Level:       p.Level,
		ParentID:    p.ParentID.String(),
		SponsorID:   p.SponsorID,
		ChildCounts: p.ChildCounts,
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
		ChildCounts: m.ChildCounts,
		TotalEarned: types.Money{Amount: m.Earned, Currency: m.Currency},
		CycleCount:  m.CycleCount,
		Status:      position.Status(m.Status),
		CycledAt:    m.CycledAt,
	}, nil
}

// ==================== Ledger models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:matrix_accounts"`

	UserID    string    `grove:"user_id,pk"     bson:"_id"`
	Total     int64     `grove:"total_amount"   bson:"total_amount"`
	Paid      int64     `grove:"paid_amount"    bson:"paid_amount"`
	Unpaid    int64     `grove:"unpaid_amount"  bson:"unpaid_amount"`
	Reserve   int64     `grove:"reserve_amount" bson:"reserve_amount"`
	Currency  string    `grove:"currency"       bson:"currency"`
	Credits   int64     `grove:"credits"        bson:"credits"`
	CreatedAt time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"     bson:"updated_at"`
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

	ID         string    `grove:"id,pk"       bson:"_id"`
	UserID     string    `grove:"user_id"     bson:"user_id"`
	PositionID string    `grove:"position_id" bson:"position_id"`
	Level      int       `grove:"level"       bson:"level"`
	Amount     int64     `grove:"amount"      bson:"amount"`
	Currency   string    `grove:"currency"    bson:"currency"`
	Purpose    string    `grove:"purpose"     bson:"purpose"`
	Note       string    `grove:"note"        bson:"note,omitempty"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
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

	ID          string     `grove:"id,pk"       bson:"_id"`
	UserID      string     `grove:"user_id"     bson:"user_id"`
	Amount      int64      `grove:"amount"      bson:"amount"`
	Currency    string     `grove:"currency"    bson:"currency"`
	Destination string     `grove:"destination" bson:"destination"`
	Reference   string     `grove:"reference"   bson:"reference"`
	Status      string     `grove:"status"      bson:"status"`
	FailReason  string     `grove:"fail_reason" bson:"fail_reason,omitempty"`
	PaidAt      *time.Time `grove:"paid_at"     bson:"paid_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"  bson:"updated_at"`
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

	ID            string    `grove:"id,pk"          bson:"_id"`
	Username      string    `grove:"username"       bson:"username"`
	ReferrerID    string    `grove:"referrer_id"    bson:"referrer_id,omitempty"`
	PayoutAddress string    `grove:"payout_address" bson:"payout_address,omitempty"`
	CreatedAt     time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"     bson:"updated_at"`
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

	ID              string    `grove:"id,pk"            bson:"_id"`
	OwnerID         string    `grove:"owner_id"         bson:"owner_id"`
	Level           int       `grove:"level"            bson:"level"`
	Kind            string    `grove:"kind"             bson:"kind"`
	SponsorUsername string    `grove:"sponsor_username" bson:"sponsor_username,omitempty"`
	ScheduledAt     time.Time `grove:"scheduled_at"     bson:"scheduled_at"`
	Attempts        int       `grove:"attempts"         bson:"attempts"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
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

// ==================== Run state models ====================

type runStateModel struct {
	grove.BaseModel `grove:"table:matrix_run_state"`

	ID          int        `grove:"id,pk"         bson:"_id"`
	Active      bool       `grove:"active"        bson:"active"`
	LastEventID string     `grove:"last_event_id" bson:"last_event_id,omitempty"`
	LastRunAt   *time.Time `grove:"last_run_at"   bson:"last_run_at,omitempty"`
	Skipped     bool       `grove:"skipped"       bson:"skipped"`
	Processed   int        `grove:"processed"     bson:"processed"`
	Failed      int        `grove:"failed"        bson:"failed"`
	ElapsedNS   int64      `grove:"elapsed_ns"    bson:"elapsed_ns"`
}

// runStateID keys the singleton document.
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
