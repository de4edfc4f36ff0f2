// Package postgres implements the store on PostgreSQL via pgx. Commits run
// inside one database transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/payagent"
	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	payagentstore "github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
)

// compile-time interface check
var _ payagentstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a PostgreSQL store from a connection string.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("payagent/postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.pool)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO payagent_accounts (id, owner, currency, balance_units, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, accountArgs(a)...)
	if isUniqueViolation(err) {
		return payagent.ErrAccountExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, addr keys.Identity) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner, currency, balance_units, created_at, updated_at
FROM payagent_accounts WHERE id = $1`, addr.String())
	return scanAccount(row)
}

// ==================== Allowance Store ====================

func (s *Store) CreateAllowance(ctx context.Context, a *allowance.Allowance) error {
	_, err := s.pool.Exec(ctx, allowanceInsert, allowanceArgs(a)...)
	if isUniqueViolation(err) {
		return payagent.ErrAllowanceExists
	}
	return err
}

func (s *Store) GetAllowance(ctx context.Context, addr keys.Identity) (*allowance.Allowance, error) {
	row := s.pool.QueryRow(ctx, allowanceSelect+` WHERE address = $1`, addr.String())
	return scanAllowance(row)
}

func (s *Store) ListAllowances(ctx context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	q := allowanceSelect + ` WHERE owner = $1`
	args := []any{owner.String()}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	q += ` ORDER BY created_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
	_, err := s.pool.Exec(ctx, subscriptionInsert, subscriptionArgs(sub)...)
	if isUniqueViolation(err) {
		return payagent.ErrSubscriptionExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, addr keys.Identity) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx, subscriptionSelect+` WHERE address = $1`, addr.String())
	return scanSubscription(row)
}

func (s *Store) ListSubscriptions(ctx context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	q := subscriptionSelect + ` WHERE owner = $1`
	args := []any{owner.String()}
	if opts.ActiveOnly {
		q += ` AND active = TRUE`
	}
	if !opts.Merchant.IsNil() {
		args = append(args, opts.Merchant.String())
		q += fmt.Sprintf(` AND merchant = $%d`, len(args))
	}
	q += ` ORDER BY created_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
	row := s.pool.QueryRow(ctx, paymentSelect+` WHERE token = $1`, token)
	return scanPayment(row)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Event, error) {
	q := paymentSelect + ` WHERE TRUE`
	var args []any
	if opts.Origin != "" {
		args = append(args, string(opts.Origin))
		q += fmt.Sprintf(` AND origin = $%d`, len(args))
	}
	if !opts.Subscription.IsNil() {
		args = append(args, opts.Subscription.String())
		q += fmt.Sprintf(` AND subscription = $%d`, len(args))
	}
	if !opts.Merchant.IsNil() {
		args = append(args, opts.Merchant.String())
		q += fmt.Sprintf(` AND merchant = $%d`, len(args))
	}
	q += ` ORDER BY applied_at ASC` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
// Debited rows are locked with FOR UPDATE so concurrent commits serialize
// per account.
func (s *Store) Commit(ctx context.Context, c *payagentstore.Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", payagent.ErrTransactionFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if c.Payment != nil {
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM payagent_payments WHERE token = $1`, c.Payment.Token,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return payagent.ErrDuplicatePayment
		}
	}

	now := time.Now().UTC()
	for _, t := range c.Transfers {
		if err := applyTransfer(ctx, tx, t, now); err != nil {
			return err
		}
	}

	if c.Allowance != nil {
		if _, err := tx.Exec(ctx, allowanceUpsert, allowanceArgs(c.Allowance)...); err != nil {
			return err
		}
	}
	if c.Subscription != nil {
		if _, err := tx.Exec(ctx, subscriptionUpsert, subscriptionArgs(c.Subscription)...); err != nil {
			return err
		}
	}
	if c.Payment != nil {
		if _, err := tx.Exec(ctx, paymentInsert, paymentArgs(c.Payment)...); err != nil {
			if isUniqueViolation(err) {
				return payagent.ErrDuplicatePayment
			}
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", payagent.ErrTransactionFailed, err)
	}
	return nil
}

func applyTransfer(ctx context.Context, tx pgx.Tx, t payagentstore.Transfer, now time.Time) error {
	var balance int64
	var currency string
	err := tx.QueryRow(ctx,
		`SELECT balance_units, currency FROM payagent_accounts WHERE id = $1 FOR UPDATE`,
		t.From.String(),
	).Scan(&balance, &currency)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if err := tx.QueryRow(ctx,
		`SELECT currency FROM payagent_accounts WHERE id = $1 FOR UPDATE`, t.To.String(),
	).Scan(&toCurrency); errors.Is(err, pgx.ErrNoRows) {
		return payagent.ErrAccountNotFound
	} else if err != nil {
		return err
	}
	if toCurrency != credit.Currency {
		return payagent.ErrCurrencyMismatch
	}

	if _, err := tx.Exec(ctx,
		`UPDATE payagent_accounts SET balance_units = balance_units - $1, updated_at = $2 WHERE id = $3`,
		t.Amount.Amount, now, t.From.String(),
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE payagent_accounts SET balance_units = balance_units + $1, updated_at = $2 WHERE id = $3`,
		credit.Amount, now, t.To.String(),
	); err != nil {
		return err
	}
	return nil
}

// ==================== Queries ====================

const allowanceSelect = `
SELECT address, owner, funding_account, delegate, remaining_units, currency,
       link_currency, valid_from, valid_until, status, closed_at, created_at, updated_at
FROM payagent_allowances`

const allowanceInsert = `
INSERT INTO payagent_allowances
    (address, owner, funding_account, delegate, remaining_units, currency,
     link_currency, valid_from, valid_until, status, closed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const allowanceUpsert = allowanceInsert + `
ON CONFLICT (address) DO UPDATE SET
    remaining_units = EXCLUDED.remaining_units,
    valid_from      = EXCLUDED.valid_from,
    valid_until     = EXCLUDED.valid_until,
    status          = EXCLUDED.status,
    closed_at       = EXCLUDED.closed_at,
    updated_at      = EXCLUDED.updated_at`

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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

const subscriptionUpsert = subscriptionInsert + `
ON CONFLICT (address) DO UPDATE SET
    manager              = EXCLUDED.manager,
    budget_units         = EXCLUDED.budget_units,
    total_consumed_units = EXCLUDED.total_consumed_units,
    next_rebill          = EXCLUDED.next_rebill,
    rebill_count         = EXCLUDED.rebill_count,
    rebill_max           = EXCLUDED.rebill_max,
    max_delay_ns         = EXCLUDED.max_delay_ns,
    valid_until          = EXCLUDED.valid_until,
    swap_enabled         = EXCLUDED.swap_enabled,
    swap_direction       = EXCLUDED.swap_direction,
    swap_target          = EXCLUDED.swap_target,
    active               = EXCLUDED.active,
    closed_at            = EXCLUDED.closed_at,
    updated_at           = EXCLUDED.updated_at`

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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// ==================== Helpers ====================

func limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	default:
		return ""
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
