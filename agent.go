package payagent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/fees"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/plugin"
	"github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/swap"
	"github.com/xraph/payagent/types"
)

// Agent is the settlement engine. It owns the namespace under which record
// addresses are derived and pushes every state change through one atomic
// store commit.
type Agent struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	namespace  keys.Identity
	fees       fees.Schedule
	feeAccount keys.Identity
	swapper    swap.Adapter
	clock      func() time.Time
}

// New creates a new Agent instance.
func New(s store.Store, opts ...Option) *Agent {
	a := &Agent{
		store:     s,
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		namespace: keys.FromSeed([]byte("payagent")),
		fees:      fees.Free,
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Option configures an Agent instance.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
		a.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(a *Agent) {
		_ = a.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithNamespace sets the address-derivation namespace. Deployments sharing a
// store must use distinct namespaces.
func WithNamespace(ns keys.Identity) Option {
	return func(a *Agent) {
		a.namespace = ns
	}
}

// WithFeeSchedule sets the protocol fee policy.
func WithFeeSchedule(s fees.Schedule) Option {
	return func(a *Agent) {
		a.fees = s
	}
}

// WithFeeAccount sets the account credited with assessed fees.
func WithFeeAccount(addr keys.Identity) Option {
	return func(a *Agent) {
		a.feeAccount = addr
	}
}

// WithSwapAdapter sets the conversion venue used for swap-enabled charges.
func WithSwapAdapter(ad swap.Adapter) Option {
	return func(a *Agent) {
		a.swapper = ad
	}
}

// WithClock overrides the time source. Used by deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.clock = now
	}
}

// Start migrates the store and initializes plugins.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}

	a.plugins.EmitInit(ctx, a)

	a.logger.Info("agent started",
		"namespace", a.namespace.Short(),
		"fee_bps", a.fees.BasisPoints,
	)

	return nil
}

// Stop shuts down the Agent.
func (a *Agent) Stop() error {
	a.plugins.EmitShutdown(context.Background())
	return a.store.Close()
}

// Namespace returns the address-derivation namespace.
func (a *Agent) Namespace() keys.Identity { return a.namespace }

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// CreateAccount opens a settlement account for owner holding the opening
// balance. The address is derived from (owner, currency), so an owner holds
// one account per currency.
func (a *Agent) CreateAccount(ctx context.Context, owner keys.Identity, opening types.Money) (*account.Account, error) {
	if owner.IsNil() || opening.Currency == "" || opening.IsNegative() {
		return nil, ErrInvalidInput
	}

	addr, _, err := keys.Derive(a.namespace, owner.Bytes(), []byte(opening.Currency))
	if err != nil {
		return nil, err
	}

	acct := &account.Account{
		Entity:   types.NewEntity(),
		ID:       addr,
		Owner:    owner,
		Currency: opening.Currency,
		Balance:  opening,
	}

	if err := a.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	a.logger.Info("account created",
		"account", addr.Short(),
		"owner", owner.Short(),
		"currency", opening.Currency,
	)
	return acct, nil
}

// GetAccount retrieves an account by address.
func (a *Agent) GetAccount(ctx context.Context, addr keys.Identity) (*account.Account, error) {
	return a.store.GetAccount(ctx, addr)
}

// ──────────────────────────────────────────────────
// Allowances
// ──────────────────────────────────────────────────

// AllowanceAddress derives the allowance address for a funding account and
// delegate under the agent namespace.
func (a *Agent) AllowanceAddress(fundingAccount, delegate keys.Identity) (keys.Identity, error) {
	addr, _, err := keys.Derive(a.namespace, fundingAccount.Bytes(), delegate.Bytes())
	return addr, err
}

// CreateAllowanceParams are the terms of a new delegated spending grant.
type CreateAllowanceParams struct {
	FundingAccount keys.Identity
	Delegate       keys.Identity
	Amount         types.Money
	LinkCurrency   bool
	ValidFrom      time.Time
	ValidUntil     time.Time
}

// CreateAllowance grants a delegate a capped spending budget against the
// caller's funding account. The caller must own the funding account.
func (a *Agent) CreateAllowance(ctx context.Context, caller keys.Identity, p CreateAllowanceParams) (*allowance.Allowance, error) {
	if p.FundingAccount.IsNil() || p.Delegate.IsNil() || p.Amount.IsNegative() {
		return nil, ErrInvalidInput
	}

	acct, err := a.store.GetAccount(ctx, p.FundingAccount)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equal(caller) {
		return nil, ErrInvalidAuthority
	}
	if p.Amount.Currency != acct.Currency {
		return nil, ErrCurrencyMismatch
	}

	addr, err := a.AllowanceAddress(p.FundingAccount, p.Delegate)
	if err != nil {
		return nil, err
	}

	grant := &allowance.Allowance{
		Entity:         types.NewEntity(),
		Address:        addr,
		Owner:          caller,
		FundingAccount: p.FundingAccount,
		Delegate:       p.Delegate,
		Remaining:      p.Amount,
		LinkCurrency:   p.LinkCurrency,
		ValidFrom:      p.ValidFrom,
		ValidUntil:     p.ValidUntil,
		Status:         allowance.StatusActive,
	}

	if err := a.store.CreateAllowance(ctx, grant); err != nil {
		return nil, err
	}

	a.plugins.EmitAllowanceCreated(ctx, grant)
	a.logger.Info("allowance created",
		"allowance", addr.Short(),
		"delegate", p.Delegate.Short(),
		"budget", p.Amount.String(),
	)
	return grant, nil
}

// UpdateAllowanceParams carries the fields an owner may change on a grant.
// Nil fields are left untouched.
type UpdateAllowanceParams struct {
	Amount     *types.Money
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// UpdateAllowance replaces the remaining budget or validity window of a
// grant. Only the owner may update; closed grants are immutable.
func (a *Agent) UpdateAllowance(ctx context.Context, caller, addr keys.Identity, p UpdateAllowanceParams) (*allowance.Allowance, error) {
	grant, err := a.store.GetAllowance(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !grant.Owner.Equal(caller) {
		return nil, ErrInvalidAuthority
	}
	if !grant.IsActive() {
		return nil, ErrAllowanceClosed
	}

	if p.Amount != nil {
		if p.Amount.IsNegative() {
			return nil, ErrInvalidInput
		}
		if p.Amount.Currency != grant.Remaining.Currency {
			return nil, ErrCurrencyMismatch
		}
		grant.Remaining = *p.Amount
	}
	if p.ValidFrom != nil {
		grant.ValidFrom = *p.ValidFrom
	}
	if p.ValidUntil != nil {
		grant.ValidUntil = *p.ValidUntil
	}
	grant.Touch()

	if err := a.store.Commit(ctx, &store.Commit{Allowance: grant}); err != nil {
		return nil, err
	}

	a.plugins.EmitAllowanceUpdated(ctx, grant)
	return grant, nil
}

// CloseAllowance closes a grant. Closure is terminal: the delegate can no
// longer move value and the grant cannot be reopened.
func (a *Agent) CloseAllowance(ctx context.Context, caller, addr keys.Identity) error {
	grant, err := a.store.GetAllowance(ctx, addr)
	if err != nil {
		return err
	}
	if !grant.Owner.Equal(caller) {
		return ErrInvalidAuthority
	}
	if !grant.IsActive() {
		return ErrAllowanceClosed
	}

	now := a.clock().UTC()
	grant.Status = allowance.StatusClosed
	grant.ClosedAt = &now
	grant.Remaining = types.Zero(grant.Remaining.Currency)
	grant.Touch()

	if err := a.store.Commit(ctx, &store.Commit{Allowance: grant}); err != nil {
		return err
	}

	a.plugins.EmitAllowanceClosed(ctx, grant)
	a.logger.Info("allowance closed", "allowance", addr.Short())
	return nil
}

// DelegatedTransfer moves value out of the grant's funding account to an
// arbitrary destination account. The caller must be the grant's delegate and
// the amount is debited from the remaining budget.
func (a *Agent) DelegatedTransfer(ctx context.Context, caller, addr, to keys.Identity, amount types.Money) error {
	if to.IsNil() || !amount.IsPositive() {
		return ErrInvalidInput
	}

	grant, err := a.store.GetAllowance(ctx, addr)
	if err != nil {
		return err
	}
	if !grant.Delegate.Equal(caller) {
		return ErrInvalidAuthority
	}
	if !grant.IsActive() {
		return ErrAllowanceClosed
	}
	now := a.clock().UTC()
	if !grant.WindowContains(now) {
		return ErrOutsideWindow
	}
	if amount.Currency != grant.Remaining.Currency {
		return ErrCurrencyMismatch
	}
	if grant.Remaining.LessThan(amount) {
		return ErrInsufficientBudget
	}

	acct, err := a.store.GetAccount(ctx, grant.FundingAccount)
	if err != nil {
		return err
	}
	if !acct.CanDebit(amount) {
		return ErrInsufficientFunds
	}

	grant.Remaining = grant.Remaining.Subtract(amount)
	grant.Touch()

	commit := &store.Commit{
		Transfers: []store.Transfer{{
			From:   grant.FundingAccount,
			To:     to,
			Amount: amount,
		}},
		Allowance: grant,
	}
	if err := a.store.Commit(ctx, commit); err != nil {
		return err
	}

	a.plugins.EmitDelegatedTransfer(ctx, grant, amount)
	a.logger.Info("delegated transfer",
		"allowance", addr.Short(),
		"to", to.Short(),
		"amount", amount.String(),
		"remaining", grant.Remaining.String(),
	)
	return nil
}

// GetAllowance retrieves a grant by address.
func (a *Agent) GetAllowance(ctx context.Context, addr keys.Identity) (*allowance.Allowance, error) {
	return a.store.GetAllowance(ctx, addr)
}

// ListAllowances lists grants by owner.
func (a *Agent) ListAllowances(ctx context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	return a.store.ListAllowances(ctx, owner, opts)
}

// ──────────────────────────────────────────────────
// Read paths shared with the settlement surface
// ──────────────────────────────────────────────────

// GetSubscription retrieves a subscription by address.
func (a *Agent) GetSubscription(ctx context.Context, addr keys.Identity) (*subscription.Subscription, error) {
	return a.store.GetSubscription(ctx, addr)
}

// ListSubscriptions lists subscriptions by owner.
func (a *Agent) ListSubscriptions(ctx context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return a.store.ListSubscriptions(ctx, owner, opts)
}

// GetPayment retrieves a settled payment event by its idempotency token.
func (a *Agent) GetPayment(ctx context.Context, token uuid.UUID) (*payment.Event, error) {
	return a.store.GetPayment(ctx, token)
}

// ListPayments lists settled payment events.
func (a *Agent) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Event, error) {
	return a.store.ListPayments(ctx, opts)
}

// ensureFreshToken rejects a payment token that has already settled.
func (a *Agent) ensureFreshToken(ctx context.Context, token uuid.UUID) error {
	if token == uuid.Nil {
		return ErrInvalidInput
	}
	_, err := a.store.GetPayment(ctx, token)
	switch {
	case err == nil:
		return ErrDuplicatePayment
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}
