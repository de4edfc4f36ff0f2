// Package sqlite implements the store on SQLite via database/sql and the
// modernc.org/sqlite driver. Commits run inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/payagent"
	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/id"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	payagentstore "github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/types"
)

// compile-time interface check
var _ payagentstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite store at path. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("payagent/sqlite: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close() //nolint:errcheck // open failure path
		return nil, fmt.Errorf("payagent/sqlite: pragma: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO payagent_accounts (id, owner, currency, balance_units, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Owner.String(), a.Currency, a.Balance.Amount,
		timeStr(a.CreatedAt), timeStr(a.UpdatedAt))
	if isUniqueViolation(err) {
		return payagent.ErrAccountExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, addr keys.Identity) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, owner, currency, balance_units, created_at, updated_at
FROM payagent_accounts WHERE id = ?`, addr.String())
	return scanAccount(row)
}

// ==================== Allowance Store ====================

func (s *Store) CreateAllowance(ctx context.Context, a *allowance.Allowance) error {
	_, err := s.db.ExecContext(ctx, allowanceInsert, allowanceArgs(a)...)
	if isUniqueViolation(err) {
		return payagent.ErrAllowanceExists
	}
	return err
}

func (s *Store) GetAllowance(ctx context.Context, addr keys.Identity) (*allowance.Allowance, error) {
	row := s.db.QueryRowContext(ctx, allowanceSelect+` WHERE address = ?`, addr.String())
	return scanAllowance(row)
}

func (s *Store) ListAllowances(ctx context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	q := allowanceSelect + ` WHERE owner = ?`
	args := []any{owner.String()}
	if opts.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	q += ` ORDER BY created_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var result []*allowance.Allowance
	for rows.Next() {
		a, err := scanAllowance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.ExecContext(ctx, subscriptionInsert, subscriptionArgs(sub)...)
	if isUniqueViolation(err) {
		return payagent.ErrSubscriptionExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, addr keys.Identity) (*subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelect+` WHERE address = ?`, addr.String())
	return scanSubscription(row)
}

func (s *Store) ListSubscriptions(ctx context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	q := subscriptionSelect + ` WHERE owner = ?`
	args := []any{owner.String()}
	if opts.ActiveOnly {
		q += ` AND active = 1`
	}
	if !opts.Merchant.IsNil() {
		q += ` AND merchant = ?`
		args = append(args, opts.Merchant.String())
	}
	q += ` ORDER BY created_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var result []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, token uuid.UUID) (*payment.Event, error) {
	row := s.db.QueryRowContext(ctx, paymentSelect+` WHERE token = ?`, token.String())
	return scanPayment(row)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Event, error) {
	q := paymentSelect + ` WHERE 1 = 1`
	var args []any
	if opts.Origin != "" {
		q += ` AND origin = ?`
		args = append(args, string(opts.Origin))
	}
	if !opts.Subscription.IsNil() {
		q += ` AND subscription = ?`
		args = append(args, opts.Subscription.String())
	}
	if !opts.Merchant.IsNil() {
		q += ` AND merchant = ?`
		args = append(args, opts.Merchant.String())
	}
	q += ` ORDER BY applied_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var result []*payment.Event
	for rows.Next() {
		e, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ==================== Commit ====================

// Commit applies all transfers and record writes inside one transaction.
func (s *Store) Commit(ctx context.Context, c *payagentstore.Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", payagent.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if c.Payment != nil {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM payagent_payments WHERE token = ?`, c.Payment.Token.String(),
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return payagent.ErrDuplicatePayment
		}
	}

	now := timeStr(time.Now().UTC())
	for _, t := range c.Transfers {
		if err := applyTransfer(ctx, tx, t, now); err != nil {
			return err
		}
	}

	if c.Allowance != nil {
		if _, err := tx.ExecContext(ctx, allowanceUpsert, allowanceArgs(c.Allowance)...); err != nil {
			return err
		}
	}
	if c.Subscription != nil {
		if _, err := tx.ExecContext(ctx, subscriptionUpsert, subscriptionArgs(c.Subscription)...); err != nil {
			return err
		}
	}
	if c.Payment != nil {
		if _, err := tx.ExecContext(ctx, paymentInsert, paymentArgs(c.Payment)...); err != nil {
			if isUniqueViolation(err) {
				return payagent.ErrDuplicatePayment
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", payagent.ErrTransactionFailed, err)
	}
	return nil
}

func applyTransfer(ctx context.Context, tx *sql.Tx, t payagentstore.Transfer, now string) error {
	var balance int64
	var currency string
	err := tx.QueryRowContext(ctx,
		`SELECT balance_units, currency FROM payagent_accounts WHERE id = ?`, t.From.String(),
	).Scan(&balance, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return payagent.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if currency != t.Amount.Currency {
		return payagent.ErrCurrencyMismatch
	}
	if balance < t.Amount.Amount {
		return payagent.ErrInsufficientFunds
	}

	credit := t.Credited()
	var toCurrency string
	if err := tx.QueryRowContext(ctx,
		`SELECT currency FROM payagent_accounts WHERE id = ?`, t.To.String(),
	).Scan(&toCurrency); errors.Is(err, sql.ErrNoRows) {
		return payagent.ErrAccountNotFound
	} else if err != nil {
		return err
	}
	if toCurrency != credit.Currency {
		return payagent.ErrCurrencyMismatch
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE payagent_accounts SET balance_units = balance_units - ?, updated_at = ? WHERE id = ?`,
		t.Amount.Amount, now, t.From.String(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE payagent_accounts SET balance_units = balance_units + ?, updated_at = ? WHERE id = ?`,
		credit.Amount, now, t.To.String(),
	); err != nil {
		return err
	}
	return nil
}

// ==================== Row mapping ====================

const allowanceSelect = `
SELECT address, owner, funding_account, delegate, remaining_units, currency,
       link_currency, valid_from, valid_until, status, closed_at, created_at, updated_at
FROM payagent_allowances`

const allowanceInsert = `
INSERT INTO payagent_allowances
    (address, owner, funding_account, delegate, remaining_units, currency,
     link_currency, valid_from, valid_until, status, closed_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const allowanceUpsert = allowanceInsert + `
ON CONFLICT (address) DO UPDATE SET
    remaining_units = excluded.remaining_units,
    valid_from      = excluded.valid_from,
    valid_until     = excluded.valid_until,
    status          = excluded.status,
    closed_at       = excluded.closed_at,
    updated_at      = excluded.updated_at`

func allowanceArgs(a *allowance.Allowance) []any {
	return []any{
		a.Address.String(), a.Owner.String(), a.FundingAccount.String(), a.Delegate.String(),
		a.Remaining.Amount, a.Remaining.Currency,
		boolInt(a.LinkCurrency), timeStr(a.ValidFrom), timeStr(a.ValidUntil),
		string(a.Status), nullTime(a.ClosedAt), timeStr(a.CreatedAt), timeStr(a.UpdatedAt),
	}
}

func scanAllowance(row scanner) (*allowance.Allowance, error) {
	var (
		a                                  allowance.Allowance
		addr, owner, funding, delegate     string
		units                              int64
		currency, validFrom, validUntil    string
		linkCurrency                       int
		status                             string
		closedAt                           sql.NullString
		createdAt, updatedAt               string
	)
	err := row.Scan(&addr, &owner, &funding, &delegate, &units, &currency,
		&linkCurrency, &validFrom, &validUntil, &status, &closedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payagent.ErrAllowanceNotFound
	}
	if err != nil {
		return nil, err
	}

	if a.Address, err = keys.Parse(addr); err != nil {
		return nil, err
	}
	if a.Owner, err = keys.Parse(owner); err != nil {
		return nil, err
	}
	if a.FundingAccount, err = keys.Parse(funding); err != nil {
		return nil, err
	}
	if a.Delegate, err = keys.Parse(delegate); err != nil {
		return nil, err
	}
	a.Remaining = types.Units(currency, units)
	a.LinkCurrency = linkCurrency != 0
	if a.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if a.ValidUntil, err = parseTime(validUntil); err != nil {
		return nil, err
	}
	a.Status = allowance.Status(status)
	if a.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

const subscriptionSelect = `
SELECT address, id, owner, merchant, merchant_account, manager, funding_account,
       period, budget_units, currency, use_total_budget, total_budget_units,
       total_consumed_units, next_rebill, rebill_count, rebill_max, max_delay_ns,
       valid_from, valid_until, swap_enabled, swap_direction, swap_target,
       active, closed_at, created_at, updated_at
FROM payagent_subscriptions`

const subscriptionInsert = `
INSERT INTO payagent_subscriptions
    (address, id, owner, merchant, merchant_account, manager, funding_account,
     period, budget_units, currency, use_total_budget, total_budget_units,
     total_consumed_units, next_rebill, rebill_count, rebill_max, max_delay_ns,
     valid_from, valid_until, swap_enabled, swap_direction, swap_target,
     active, closed_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const subscriptionUpsert = subscriptionInsert + `
ON CONFLICT (address) DO UPDATE SET
    manager              = excluded.manager,
    budget_units         = excluded.budget_units,
    total_consumed_units = excluded.total_consumed_units,
    next_rebill          = excluded.next_rebill,
    rebill_count         = excluded.rebill_count,
    rebill_max           = excluded.rebill_max,
    max_delay_ns         = excluded.max_delay_ns,
    valid_until          = excluded.valid_until,
    swap_enabled         = excluded.swap_enabled,
    swap_direction       = excluded.swap_direction,
    swap_target          = excluded.swap_target,
    active               = excluded.active,
    closed_at            = excluded.closed_at,
    updated_at           = excluded.updated_at`

func subscriptionArgs(sub *subscription.Subscription) []any {
	return []any{
		sub.Address.String(), sub.ID.String(), sub.Owner.String(), sub.Merchant.String(),
		sub.MerchantAccount.String(), identStr(sub.Manager), sub.FundingAccount.String(),
		sub.Period.String(), sub.PeriodBudget.Amount, sub.PeriodBudget.Currency,
		boolInt(sub.UseTotalBudget), sub.TotalBudget.Amount, sub.TotalConsumed.Amount,
		timeStr(sub.NextRebill), sub.RebillCount, sub.RebillMax, int64(sub.MaxDelay),
		timeStr(sub.ValidFrom), timeStr(sub.ValidUntil),
		boolInt(sub.Swap.Enabled), boolInt(sub.Swap.Direction), sub.Swap.TargetCurrency,
		boolInt(sub.Active), nullTime(sub.ClosedAt), timeStr(sub.CreatedAt), timeStr(sub.UpdatedAt),
	}
}

func scanSubscription(row scanner) (*subscription.Subscription, error) {
	var (
		sub                                          subscription.Subscription
		addr, subID, owner, merchant, merchantAcct   string
		manager, funding, period                     string
		budgetUnits, totalBudget, totalConsumed      int64
		currency                                     string
		useTotalBudget                               int
		nextRebill                                   string
		rebillCount, rebillMax                       uint32
		maxDelayNS                                   int64
		validFrom, validUntil                        string
		swapEnabled, swapDirection                   int
		swapTarget                                   string
		active                                       int
		closedAt                                     sql.NullString
		createdAt, updatedAt                         string
	)
	err := row.Scan(&addr, &subID, &owner, &merchant, &merchantAcct, &manager, &funding,
		&period, &budgetUnits, &currency, &useTotalBudget, &totalBudget, &totalConsumed,
		&nextRebill, &rebillCount, &rebillMax, &maxDelayNS, &validFrom, &validUntil,
		&swapEnabled, &swapDirection, &swapTarget, &active, &closedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payagent.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	if sub.Address, err = keys.Parse(addr); err != nil {
		return nil, err
	}
	if sub.ID, err = uuid.Parse(subID); err != nil {
		return nil, err
	}
	if sub.Owner, err = keys.Parse(owner); err != nil {
		return nil, err
	}
	if sub.Merchant, err = keys.Parse(merchant); err != nil {
		return nil, err
	}
	if sub.MerchantAccount, err = keys.Parse(merchantAcct); err != nil {
		return nil, err
	}
	if sub.Manager, err = parseIdent(manager); err != nil {
		return nil, err
	}
	if sub.FundingAccount, err = keys.Parse(funding); err != nil {
		return nil, err
	}
	if sub.Period, err = subscription.ParsePeriod(period); err != nil {
		return nil, err
	}
	sub.PeriodBudget = types.Units(currency, budgetUnits)
	sub.UseTotalBudget = useTotalBudget != 0
	if sub.UseTotalBudget || totalBudget != 0 {
		sub.TotalBudget = types.Units(currency, totalBudget)
	}
	if sub.UseTotalBudget || totalConsumed != 0 {
		sub.TotalConsumed = types.Units(currency, totalConsumed)
	}
	if sub.NextRebill, err = parseTime(nextRebill); err != nil {
		return nil, err
	}
	sub.RebillCount = rebillCount
	sub.RebillMax = rebillMax
	sub.MaxDelay = time.Duration(maxDelayNS)
	if sub.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if sub.ValidUntil, err = parseTime(validUntil); err != nil {
		return nil, err
	}
	sub.Swap = subscription.SwapConfig{
		Enabled:        swapEnabled != 0,
		Direction:      swapDirection != 0,
		TargetCurrency: swapTarget,
	}
	sub.Active = active != 0
	if sub.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

const paymentSelect = `
SELECT token, id, origin, subscription, allowance, payer, merchant,
       gross_units, fee_units, net_units, currency, converted_units,
       converted_currency, applied_at, created_at, updated_at
FROM payagent_payments`

const paymentInsert = `
INSERT INTO payagent_payments
    (token, id, origin, subscription, allowance, payer, merchant,
     gross_units, fee_units, net_units, currency, converted_units,
     converted_currency, applied_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func paymentArgs(e *payment.Event) []any {
	return []any{
		e.Token.String(), e.ID.String(), string(e.Origin),
		identStr(e.Subscription), identStr(e.Allowance),
		e.Payer.String(), e.Merchant.String(),
		e.Gross.Amount, e.Fee.Amount, e.Net.Amount, e.Gross.Currency,
		e.Converted.Amount, e.Converted.Currency,
		timeStr(e.AppliedAt), timeStr(e.CreatedAt), timeStr(e.UpdatedAt),
	}
}

func scanPayment(row scanner) (*payment.Event, error) {
	var (
		e                                payment.Event
		token, eventID, origin           string
		subAddr, grantAddr               string
		payer, merchant                  string
		gross, fee, net, converted       int64
		currency, convertedCurrency      string
		appliedAt, createdAt, updatedAt  string
	)
	err := row.Scan(&token, &eventID, &origin, &subAddr, &grantAddr, &payer, &merchant,
		&gross, &fee, &net, &currency, &converted, &convertedCurrency,
		&appliedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payagent.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if e.Token, err = uuid.Parse(token); err != nil {
		return nil, err
	}
	if e.ID, err = id.ParsePaymentID(eventID); err != nil {
		return nil, err
	}
	e.Origin = payment.Origin(origin)
	if e.Subscription, err = parseIdent(subAddr); err != nil {
		return nil, err
	}
	if e.Allowance, err = parseIdent(grantAddr); err != nil {
		return nil, err
	}
	if e.Payer, err = keys.Parse(payer); err != nil {
		return nil, err
	}
	if e.Merchant, err = keys.Parse(merchant); err != nil {
		return nil, err
	}
	e.Gross = types.Units(currency, gross)
	e.Fee = types.Units(currency, fee)
	e.Net = types.Units(currency, net)
	if convertedCurrency != "" {
		e.Converted = types.Units(convertedCurrency, converted)
	}
	if e.AppliedAt, err = parseTime(appliedAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a                    account.Account
		addr, owner          string
		currency             string
		units                int64
		createdAt, updatedAt string
	)
	err := row.Scan(&addr, &owner, &currency, &units, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payagent.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if a.ID, err = keys.Parse(addr); err != nil {
		return nil, err
	}
	if a.Owner, err = keys.Parse(owner); err != nil {
		return nil, err
	}
	a.Currency = currency
	a.Balance = types.Units(currency, units)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func identStr(k keys.Identity) string {
	if k.IsNil() {
		return ""
	}
	return k.String()
}

func parseIdent(s string) (keys.Identity, error) {
	if s == "" {
		return keys.Identity{}, nil
	}
	return keys.Parse(s)
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
