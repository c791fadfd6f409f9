package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the matrix store.
var Migrations = migrate.NewGroup("matrix")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_matrix_plan_levels",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_plan_levels (
    id                     TEXT PRIMARY KEY,
    level                  INT NOT NULL,
    name                   TEXT NOT NULL DEFAULT '',
    currency               TEXT NOT NULL DEFAULT 'usd',
    price_amount           BIGINT NOT NULL DEFAULT 0,
    status                 TEXT NOT NULL DEFAULT 'active',
    width                  INT NOT NULL,
    depth                  INT NOT NULL,
    referral_amount        BIGINT NOT NULL DEFAULT 0,
    per_level_bonus        JSONB NOT NULL DEFAULT '[]',
    matching_bonus         JSONB NOT NULL DEFAULT '[]',
    cycle_bonus            JSONB NOT NULL DEFAULT '[]',
    cycle_matching_bonus   JSONB NOT NULL DEFAULT '[]',
    matrix_amount          BIGINT NOT NULL DEFAULT 0,
    matrix_matching_amount BIGINT NOT NULL DEFAULT 0,
    payout_mode            TEXT NOT NULL DEFAULT 'per_level',
    entry_credits          BIGINT NOT NULL DEFAULT 0,
    cycle_credits          BIGINT NOT NULL DEFAULT 0,
    reentry_count          INT NOT NULL DEFAULT 0,
    cross_entries          JSONB NOT NULL DEFAULT '[]',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matrix_plan_levels_level ON matrix_plan_levels (level);
CREATE INDEX IF NOT EXISTS idx_matrix_plan_levels_status ON matrix_plan_levels (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS matrix_plan_levels`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_matrix_system_config",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_system_config (
    id                   INT PRIMARY KEY,
    reserve_percent      INT NOT NULL DEFAULT 0,
    allow_sponsor_lookup BOOLEAN NOT NULL DEFAULT FALSE,
    sponsor_lookup_hops  INT NOT NULL DEFAULT 5,
    non_matrix_match     BOOLEAN NOT NULL DEFAULT FALSE,
    currency             TEXT NOT NULL DEFAULT 'usd',
    auto_disburse        BOOLEAN NOT NULL DEFAULT FALSE,
    disburse_minimum     BIGINT NOT NULL DEFAULT 0,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS matrix_system_config`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_matrix_positions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_positions (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    level         INT NOT NULL,
    parent_id     TEXT NOT NULL DEFAULT '',
    sponsor_id    TEXT NOT NULL DEFAULT '',
    child_counts  JSONB NOT NULL DEFAULT '[]',
    earned_amount BIGINT NOT NULL DEFAULT 0,
    currency      TEXT NOT NULL DEFAULT 'usd',
    cycle_count   INT NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'ACTIVE',
    cycled_at     TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_matrix_positions_owner ON matrix_positions (owner_id, level, status);
CREATE INDEX IF NOT EXISTS idx_matrix_positions_parent ON matrix_positions (parent_id, created_at);
CREATE INDEX IF NOT EXISTS idx_matrix_positions_open ON matrix_positions (level, status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS matrix_positions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_matrix_accounts",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_accounts (
    user_id        TEXT PRIMARY KEY,
    total_amount   BIGINT NOT NULL DEFAULT 0,
    paid_amount    BIGINT NOT NULL DEFAULT 0,
    unpaid_amount  BIGINT NOT NULL DEFAULT 0,
    reserve_amount BIGINT NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT 'usd',
    credits        BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS matrix_transactions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    position_id TEXT NOT NULL DEFAULT '',
    level       INT NOT NULL DEFAULT 0,
    amount      BIGINT NOT NULL,
    currency    TEXT NOT NULL DEFAULT 'usd',
    purpose     TEXT NOT NULL,
    note        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_matrix_txns_user ON matrix_transactions (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_matrix_txns_purpose ON matrix_transactions (user_id, purpose, level);

CREATE TABLE IF NOT EXISTS matrix_withdrawals (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    amount      BIGINT NOT NULL,
    currency    TEXT NOT NULL DEFAULT 'usd',
    destination TEXT NOT NULL DEFAULT '',
    reference   TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'PENDING',
    fail_reason TEXT NOT NULL DEFAULT '',
    paid_at     TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_matrix_withdrawals_user ON matrix_withdrawals (user_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_matrix_withdrawals_ref ON matrix_withdrawals (reference);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS matrix_withdrawals;
DROP TABLE IF EXISTS matrix_transactions;
DROP TABLE IF EXISTS matrix_accounts;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_matrix_members",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_members (
    id             TEXT PRIMARY KEY,
    username       TEXT NOT NULL,
    referrer_id    TEXT NOT NULL DEFAULT '',
    payout_address TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matrix_members_username ON matrix_members (username);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS matrix_members`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_matrix_events",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matrix_events (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    level            INT NOT NULL,
    kind             TEXT NOT NULL,
    sponsor_username TEXT NOT NULL DEFAULT '',
    scheduled_at     TIMESTAMPTZ NOT NULL,
    attempts         INT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_matrix_events_due ON matrix_events (scheduled_at, created_at);
CREATE INDEX IF NOT EXISTS idx_matrix_events_owner ON matrix_events (owner_id, level, scheduled_at);

CREATE TABLE IF NOT EXISTS matrix_run_state (
    id            INT PRIMARY KEY,
    active        BOOLEAN NOT NULL DEFAULT FALSE,
    last_event_id TEXT NOT NULL DEFAULT '',
    last_run_at   TIMESTAMPTZ,
    skipped       BOOLEAN NOT NULL DEFAULT FALSE,
    processed     INT NOT NULL DEFAULT 0,
    failed        INT NOT NULL DEFAULT 0,
    elapsed_ns    BIGINT NOT NULL DEFAULT 0
);

INSERT INTO matrix_run_state (id, active) VALUES (1, FALSE) ON CONFLICT (id) DO NOTHING;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS matrix_run_state;
DROP TABLE IF EXISTS matrix_events;
`)
				return err
			},
		},
	)
}
