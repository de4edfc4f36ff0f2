package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version string
	name    string
	up      string
}

// migrations run in order inside one transaction each; applied versions are
// tracked in payagent_migrations.
var migrations = []migration{
	{
		version: "20240101000001",
		name:    "create_payagent_accounts",
		up: `
CREATE TABLE IF NOT EXISTS payagent_accounts (
    id            TEXT PRIMARY KEY,
    owner         TEXT NOT NULL DEFAULT '',
    currency      TEXT NOT NULL DEFAULT '',
    balance_units INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_payagent_accounts_owner ON payagent_accounts (owner);
`,
	},
	{
		version: "20240101000002",
		name:    "create_payagent_allowances",
		up: `
CREATE TABLE IF NOT EXISTS payagent_allowances (
    address         TEXT PRIMARY KEY,
    owner           TEXT NOT NULL DEFAULT '',
    funding_account TEXT NOT NULL DEFAULT '',
    delegate        TEXT NOT NULL DEFAULT '',
    remaining_units INTEGER NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    link_currency   INTEGER NOT NULL DEFAULT 0,
    valid_from      TEXT NOT NULL DEFAULT '',
    valid_until     TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'active',
    closed_at       TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_payagent_allowances_owner ON payagent_allowances (owner, status);
CREATE INDEX IF NOT EXISTS idx_payagent_allowances_delegate ON payagent_allowances (delegate);
`,
	},
	{
		version: "20240101000003",
		name:    "create_payagent_subscriptions",
		up: `
CREATE TABLE IF NOT EXISTS payagent_subscriptions (
    address              TEXT PRIMARY KEY,
    id                   TEXT NOT NULL DEFAULT '',
    owner                TEXT NOT NULL DEFAULT '',
    merchant             TEXT NOT NULL DEFAULT '',
    merchant_account     TEXT NOT NULL DEFAULT '',
    manager              TEXT NOT NULL DEFAULT '',
    funding_account      TEXT NOT NULL DEFAULT '',
    period               TEXT NOT NULL DEFAULT 'monthly',
    budget_units         INTEGER NOT NULL DEFAULT 0,
    currency             TEXT NOT NULL DEFAULT '',
    use_total_budget     INTEGER NOT NULL DEFAULT 0,
    total_budget_units   INTEGER NOT NULL DEFAULT 0,
    total_consumed_units INTEGER NOT NULL DEFAULT 0,
    next_rebill          TEXT NOT NULL DEFAULT '',
    rebill_count         INTEGER NOT NULL DEFAULT 0,
    rebill_max           INTEGER NOT NULL DEFAULT 0,
    max_delay_ns         INTEGER NOT NULL DEFAULT 0,
    valid_from           TEXT NOT NULL DEFAULT '',
    valid_until          TEXT NOT NULL DEFAULT '',
    swap_enabled         INTEGER NOT NULL DEFAULT 0,
    swap_direction       INTEGER NOT NULL DEFAULT 0,
    swap_target          TEXT NOT NULL DEFAULT '',
    active               INTEGER NOT NULL DEFAULT 1,
    closed_at            TEXT,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_payagent_subs_owner ON payagent_subscriptions (owner, active);
CREATE INDEX IF NOT EXISTS idx_payagent_subs_merchant ON payagent_subscriptions (merchant);
CREATE INDEX IF NOT EXISTS idx_payagent_subs_next_rebill ON payagent_subscriptions (active, next_rebill);
`,
	},
	{
		version: "20240101000004",
		name:    "create_payagent_payments",
		up: `
CREATE TABLE IF NOT EXISTS payagent_payments (
    token              TEXT PRIMARY KEY,
    id                 TEXT NOT NULL DEFAULT '',
    origin             TEXT NOT NULL DEFAULT '',
    subscription       TEXT NOT NULL DEFAULT '',
    allowance          TEXT NOT NULL DEFAULT '',
    payer              TEXT NOT NULL DEFAULT '',
    merchant           TEXT NOT NULL DEFAULT '',
    gross_units        INTEGER NOT NULL DEFAULT 0,
    fee_units          INTEGER NOT NULL DEFAULT 0,
    net_units          INTEGER NOT NULL DEFAULT 0,
    currency           TEXT NOT NULL DEFAULT '',
    converted_units    INTEGER NOT NULL DEFAULT 0,
    converted_currency TEXT NOT NULL DEFAULT '',
    applied_at         TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_payagent_payments_sub ON payagent_payments (subscription);
CREATE INDEX IF NOT EXISTS idx_payagent_payments_merchant ON payagent_payments (merchant);
CREATE INDEX IF NOT EXISTS idx_payagent_payments_applied ON payagent_payments (applied_at);
`,
	},
}

// applyMigrations brings the schema up to date.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS payagent_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);`)
	if err != nil {
		return fmt.Errorf("payagent/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM payagent_migrations WHERE version = ?`, m.version,
		).Scan(&count); err != nil {
			return fmt.Errorf("payagent/sqlite: check migration %s: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback on failure path
			return fmt.Errorf("payagent/sqlite: migration %s (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payagent_migrations (version, name) VALUES (?, ?)`, m.version, m.name,
		); err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback on failure path
			return fmt.Errorf("payagent/sqlite: record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("payagent/sqlite: commit migration %s: %w", m.version, err)
		}
	}
	return nil
}
