package postgres

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xraph/payagent"
	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/id"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/types"
)

// Row mapping between domain records and the flat column layout. Identities
// travel as hex text, money as (units, currency) pairs, zero times as NULL.

type scanner interface {
	Scan(dest ...any) error
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

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ==================== Accounts ====================

func accountArgs(a *account.Account) []any {
	return []any{
		a.ID.String(), a.Owner.String(), a.Currency, a.Balance.Amount,
		a.CreatedAt, a.UpdatedAt,
	}
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a           account.Account
		addr, owner string
		units       int64
	)
	err := row.Scan(&addr, &owner, &a.Currency, &units, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	a.Balance = types.Units(a.Currency, units)
	return &a, nil
}

// ==================== Allowances ====================

func allowanceArgs(a *allowance.Allowance) []any {
	return []any{
		a.Address.String(), a.Owner.String(), a.FundingAccount.String(), a.Delegate.String(),
		a.Remaining.Amount, a.Remaining.Currency, a.LinkCurrency,
		nullTime(a.ValidFrom), nullTime(a.ValidUntil),
		string(a.Status), a.ClosedAt, a.CreatedAt, a.UpdatedAt,
	}
}

func scanAllowance(row scanner) (*allowance.Allowance, error) {
	var (
		a                              allowance.Allowance
		addr, owner, funding, delegate string
		units                          int64
		currency, status               string
		validFrom, validUntil          *time.Time
	)
	err := row.Scan(&addr, &owner, &funding, &delegate, &units, &currency,
		&a.LinkCurrency, &validFrom, &validUntil, &status, &a.ClosedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	a.ValidFrom = fromNullTime(validFrom)
	a.ValidUntil = fromNullTime(validUntil)
	a.Status = allowance.Status(status)
	return &a, nil
}

// ==================== Subscriptions ====================

func subscriptionArgs(sub *subscription.Subscription) []any {
	return []any{
		sub.Address.String(), sub.ID, sub.Owner.String(), sub.Merchant.String(),
		sub.MerchantAccount.String(), identStr(sub.Manager), sub.FundingAccount.String(),
		sub.Period.String(), sub.PeriodBudget.Amount, sub.PeriodBudget.Currency,
		sub.UseTotalBudget, sub.TotalBudget.Amount, sub.TotalConsumed.Amount,
		sub.NextRebill.UTC(), int64(sub.RebillCount), int64(sub.RebillMax), int64(sub.MaxDelay),
		nullTime(sub.ValidFrom), nullTime(sub.ValidUntil),
		sub.Swap.Enabled, sub.Swap.Direction, sub.Swap.TargetCurrency,
		sub.Active, sub.ClosedAt, sub.CreatedAt, sub.UpdatedAt,
	}
}

func scanSubscription(row scanner) (*subscription.Subscription, error) {
	var (
		sub                                     subscription.Subscription
		addr, owner, merchant, merchantAcct     string
		manager, funding, period, currency      string
		budgetUnits, totalBudget, totalConsumed int64
		rebillCount, rebillMax, maxDelayNS      int64
		validFrom, validUntil                   *time.Time
	)
	err := row.Scan(&addr, &sub.ID, &owner, &merchant, &merchantAcct, &manager, &funding,
		&period, &budgetUnits, &currency, &sub.UseTotalBudget, &totalBudget, &totalConsumed,
		&sub.NextRebill, &rebillCount, &rebillMax, &maxDelayNS, &validFrom, &validUntil,
		&sub.Swap.Enabled, &sub.Swap.Direction, &sub.Swap.TargetCurrency,
		&sub.Active, &sub.ClosedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payagent.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	if sub.Address, err = keys.Parse(addr); err != nil {
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
	if sub.UseTotalBudget || totalBudget != 0 {
		sub.TotalBudget = types.Units(currency, totalBudget)
	}
	if sub.UseTotalBudget || totalConsumed != 0 {
		sub.TotalConsumed = types.Units(currency, totalConsumed)
	}
	sub.RebillCount = uint32(rebillCount)
	sub.RebillMax = uint32(rebillMax)
	sub.MaxDelay = time.Duration(maxDelayNS)
	sub.ValidFrom = fromNullTime(validFrom)
	sub.ValidUntil = fromNullTime(validUntil)
	return &sub, nil
}

// ==================== Payments ====================

func paymentArgs(e *payment.Event) []any {
	return []any{
		e.Token, e.ID.String(), string(e.Origin),
		identStr(e.Subscription), identStr(e.Allowance),
		e.Payer.String(), e.Merchant.String(),
		e.Gross.Amount, e.Fee.Amount, e.Net.Amount, e.Gross.Currency,
		e.Converted.Amount, e.Converted.Currency,
		e.AppliedAt.UTC(), e.CreatedAt, e.UpdatedAt,
	}
}

func scanPayment(row scanner) (*payment.Event, error) {
	var (
		e                           payment.Event
		token                       uuid.UUID
		eventID, origin             string
		subAddr, grantAddr          string
		payer, merchant             string
		gross, fee, net, converted  int64
		currency, convertedCurrency string
	)
	err := row.Scan(&token, &eventID, &origin, &subAddr, &grantAddr, &payer, &merchant,
		&gross, &fee, &net, &currency, &converted, &convertedCurrency,
		&e.AppliedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payagent.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.Token = token
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
	return &e, nil
}
