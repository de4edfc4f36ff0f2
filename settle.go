package payagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/payagent/id"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/swap"
	"github.com/xraph/payagent/types"
)

// SubscriptionAddress derives the subscription address for an owner,
// merchant and contract ID under the agent namespace.
func (a *Agent) SubscriptionAddress(owner, merchant keys.Identity, subID uuid.UUID) (keys.Identity, error) {
	addr, _, err := keys.Derive(a.namespace, owner.Bytes(), merchant.Bytes(), subID[:])
	return addr, err
}

// SubscribeParams are the terms of a new recurring billing contract.
type SubscribeParams struct {
	// ID deduplicates the contract; zero generates a fresh one.
	ID uuid.UUID

	Merchant        keys.Identity
	MerchantAccount keys.Identity
	Manager         keys.Identity
	FundingAccount  keys.Identity

	Period         subscription.Period
	PeriodBudget   types.Money
	UseTotalBudget bool
	TotalBudget    types.Money

	// NextRebill anchors the schedule; zero means the start of the next
	// period after now.
	NextRebill time.Time
	RebillMax  uint32
	MaxDelay   time.Duration
	ValidFrom  time.Time
	ValidUntil time.Time
	Swap       subscription.SwapConfig

	// InitialAmount, when positive, settles an immediate first charge under
	// InitialPaymentID before the schedule takes over.
	InitialAmount    types.Money
	InitialPaymentID uuid.UUID
}

// Subscribe creates a recurring billing contract funded by the caller's
// account, optionally settling an immediate first charge.
func (a *Agent) Subscribe(ctx context.Context, caller keys.Identity, p SubscribeParams) (*subscription.Subscription, *payment.Event, error) {
	if p.Merchant.IsNil() || p.MerchantAccount.IsNil() || p.FundingAccount.IsNil() {
		return nil, nil, ErrInvalidInput
	}
	if !p.Period.Valid() || p.Period == subscription.PeriodNone {
		return nil, nil, ErrInvalidInput
	}
	if !p.PeriodBudget.IsPositive() {
		return nil, nil, ErrInvalidInput
	}
	if p.UseTotalBudget {
		if !p.TotalBudget.IsPositive() {
			return nil, nil, ErrInvalidInput
		}
		if p.TotalBudget.Currency != p.PeriodBudget.Currency {
			return nil, nil, ErrCurrencyMismatch
		}
	}

	acct, err := a.store.GetAccount(ctx, p.FundingAccount)
	if err != nil {
		return nil, nil, err
	}
	if !acct.Owner.Equal(caller) {
		return nil, nil, ErrInvalidAuthority
	}
	if p.PeriodBudget.Currency != acct.Currency {
		return nil, nil, ErrCurrencyMismatch
	}

	subID := p.ID
	if subID == uuid.Nil {
		subID = uuid.New()
	}
	addr, err := a.SubscriptionAddress(caller, p.Merchant, subID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := a.store.GetSubscription(ctx, addr); err == nil {
		return nil, nil, ErrSubscriptionExists
	}

	now := a.clock().UTC()
	nextRebill := p.NextRebill
	if nextRebill.IsZero() {
		nextRebill = p.Period.Next(now)
	}

	sub := &subscription.Subscription{
		Entity:          types.NewEntity(),
		Address:         addr,
		ID:              subID,
		Owner:           caller,
		Merchant:        p.Merchant,
		MerchantAccount: p.MerchantAccount,
		Manager:         p.Manager,
		FundingAccount:  p.FundingAccount,
		Period:          p.Period,
		PeriodBudget:    p.PeriodBudget,
		UseTotalBudget:  p.UseTotalBudget,
		TotalBudget:     p.TotalBudget,
		TotalConsumed:   types.Zero(p.PeriodBudget.Currency),
		NextRebill:      nextRebill,
		RebillMax:       p.RebillMax,
		MaxDelay:        p.MaxDelay,
		ValidFrom:       p.ValidFrom,
		ValidUntil:      p.ValidUntil,
		Swap:            p.Swap,
		Active:          true,
	}

	var event *payment.Event
	if p.InitialAmount.IsPositive() {
		if err := a.ensureFreshToken(ctx, p.InitialPaymentID); err != nil {
			return nil, nil, err
		}
		st, err := a.settle(ctx, payment.OriginInitial, p.InitialPaymentID, caller, p.FundingAccount, p.Merchant, p.MerchantAccount, p.InitialAmount, p.Swap, now)
		if err != nil {
			return nil, nil, err
		}
		st.event.Subscription = addr
		if sub.UseTotalBudget {
			consumed, err := sub.TotalConsumed.AddChecked(p.InitialAmount)
			if err != nil {
				return nil, nil, err
			}
			if sub.TotalBudget.LessThan(consumed) {
				return nil, nil, ErrInsufficientBudget
			}
			sub.TotalConsumed = consumed
		}
		event = st.event

		commit := &store.Commit{
			Transfers:    st.transfers,
			Subscription: sub,
			Payment:      st.event,
		}
		if err := a.store.Commit(ctx, commit); err != nil {
			return nil, nil, err
		}
	} else {
		if err := a.store.CreateSubscription(ctx, sub); err != nil {
			return nil, nil, err
		}
	}

	a.plugins.EmitSubscriptionCreated(ctx, sub)
	if event != nil {
		a.plugins.EmitPaymentSettled(ctx, event)
		if event.Swapped() {
			a.plugins.EmitSwapExecuted(ctx, event.Net, event.Converted)
		}
	}

	a.logger.Info("subscription created",
		"subscription", addr.Short(),
		"merchant", p.Merchant.Short(),
		"period", p.Period.String(),
		"next_rebill", nextRebill,
		"initial_charge", event != nil,
	)
	return sub, event, nil
}

// ProcessParams are the inputs of one scheduled charge.
type ProcessParams struct {
	// Amount charged this cycle; zero means the full period budget.
	Amount types.Money

	// PaymentID is the caller-supplied idempotency token.
	PaymentID uuid.UUID

	// Now overrides the evaluation time; zero means the agent clock.
	Now time.Time
}

// Process settles one scheduled charge against a subscription. The caller
// must be the contract's owner, manager or merchant. The charge must fall
// inside the due window: at or after NextRebill and, when MaxDelay is set,
// no later than NextRebill plus the grace.
func (a *Agent) Process(ctx context.Context, caller, addr keys.Identity, p ProcessParams) (*payment.Event, error) {
	sub, err := a.store.GetSubscription(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !sub.Owner.Equal(caller) && !sub.Manager.Equal(caller) && !sub.Merchant.Equal(caller) {
		return nil, ErrInvalidAuthority
	}
	if !sub.Active {
		return nil, ErrSubscriptionClosed
	}

	now := p.Now
	if now.IsZero() {
		now = a.clock()
	}
	now = now.UTC()

	if !sub.WindowContains(now) {
		return nil, ErrOutsideWindow
	}
	if sub.RebillExhausted() {
		return nil, ErrRebillLimitReached
	}
	if now.Before(sub.NextRebill) {
		return nil, ErrScheduleNotDue
	}
	if sub.MaxDelay > 0 && now.After(sub.NextRebill.Add(sub.MaxDelay)) {
		return nil, ErrScheduleExpired
	}

	amount := p.Amount
	if amount.IsZero() {
		amount = sub.PeriodBudget
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidInput
	}
	if amount.Currency != sub.PeriodBudget.Currency {
		return nil, ErrCurrencyMismatch
	}
	if sub.PeriodBudget.LessThan(amount) {
		return nil, ErrInsufficientBudget
	}
	if sub.UseTotalBudget {
		consumed, err := sub.TotalConsumed.AddChecked(amount)
		if err != nil {
			return nil, err
		}
		if sub.TotalBudget.LessThan(consumed) {
			return nil, ErrInsufficientBudget
		}
	}

	if err := a.ensureFreshToken(ctx, p.PaymentID); err != nil {
		return nil, err
	}

	st, err := a.settle(ctx, payment.OriginSubscription, p.PaymentID, sub.Owner, sub.FundingAccount, sub.Merchant, sub.MerchantAccount, amount, sub.Swap, now)
	if err != nil {
		return nil, err
	}
	st.event.Subscription = addr

	// Advance from the previous anchor, not from now, so the schedule never
	// drifts when charges land late inside the grace window.
	sub.NextRebill = sub.Period.Next(sub.NextRebill)
	sub.RebillCount++
	if sub.UseTotalBudget {
		sub.TotalConsumed = sub.TotalConsumed.Add(amount)
	}
	sub.Touch()

	commit := &store.Commit{
		Transfers:    st.transfers,
		Subscription: sub,
		Payment:      st.event,
	}
	if err := a.store.Commit(ctx, commit); err != nil {
		return nil, err
	}

	a.plugins.EmitPaymentSettled(ctx, st.event)
	a.plugins.EmitScheduleAdvanced(ctx, sub, sub.NextRebill)
	if st.event.Swapped() {
		a.plugins.EmitSwapExecuted(ctx, st.event.Net, st.event.Converted)
	}

	a.logger.Info("subscription charged",
		"subscription", addr.Short(),
		"payment", st.event.ID.String(),
		"gross", st.event.Gross.String(),
		"fee", st.event.Fee.String(),
		"rebill_count", sub.RebillCount,
		"next_rebill", sub.NextRebill,
	)
	return st.event, nil
}

// UpdateSubscriptionParams carries the fields that may change on a live
// contract. Nil fields are left untouched.
type UpdateSubscriptionParams struct {
	Period         *subscription.Period
	PeriodBudget   *types.Money
	UseTotalBudget *bool
	TotalBudget    *types.Money
	NextRebill     *time.Time
	RebillMax      *uint32
	MaxDelay       *time.Duration
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Manager        *keys.Identity
	Swap           *subscription.SwapConfig
}

// UpdateSubscription changes the terms of a live contract. The owner may
// change any field; the manager may change only the swap configuration.
func (a *Agent) UpdateSubscription(ctx context.Context, caller, addr keys.Identity, p UpdateSubscriptionParams) (*subscription.Subscription, error) {
	sub, err := a.store.GetSubscription(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, ErrSubscriptionClosed
	}

	if !sub.Owner.Equal(caller) {
		managerOnlySwap := sub.Manager.Equal(caller) &&
			p.Period == nil && p.PeriodBudget == nil &&
			p.UseTotalBudget == nil && p.TotalBudget == nil &&
			p.NextRebill == nil && p.RebillMax == nil && p.MaxDelay == nil &&
			p.ValidFrom == nil && p.ValidUntil == nil && p.Manager == nil
		if !managerOnlySwap {
			return nil, ErrInvalidAuthority
		}
	}

	if p.Period != nil {
		if !p.Period.Valid() || *p.Period == subscription.PeriodNone {
			return nil, ErrInvalidInput
		}
		sub.Period = *p.Period
	}
	if p.PeriodBudget != nil {
		if !p.PeriodBudget.IsPositive() {
			return nil, ErrInvalidInput
		}
		if p.PeriodBudget.Currency != sub.PeriodBudget.Currency {
			return nil, ErrCurrencyMismatch
		}
		sub.PeriodBudget = *p.PeriodBudget
	}
	if p.UseTotalBudget != nil {
		sub.UseTotalBudget = *p.UseTotalBudget
	}
	if p.TotalBudget != nil {
		if p.TotalBudget.IsNegative() {
			return nil, ErrInvalidInput
		}
		if p.TotalBudget.Currency != sub.PeriodBudget.Currency {
			return nil, ErrCurrencyMismatch
		}
		sub.TotalBudget = *p.TotalBudget
	}
	if sub.UseTotalBudget && !sub.TotalBudget.IsPositive() {
		return nil, ErrInvalidInput
	}
	if p.NextRebill != nil {
		sub.NextRebill = p.NextRebill.UTC()
	}
	if p.RebillMax != nil {
		sub.RebillMax = *p.RebillMax
	}
	if p.MaxDelay != nil {
		sub.MaxDelay = *p.MaxDelay
	}
	if p.ValidFrom != nil {
		sub.ValidFrom = *p.ValidFrom
	}
	if p.ValidUntil != nil {
		sub.ValidUntil = *p.ValidUntil
	}
	if p.Manager != nil {
		sub.Manager = *p.Manager
	}
	if p.Swap != nil {
		sub.Swap = *p.Swap
	}
	sub.Touch()

	if err := a.store.Commit(ctx, &store.Commit{Subscription: sub}); err != nil {
		return nil, err
	}

	a.plugins.EmitSubscriptionUpdated(ctx, sub)
	return sub, nil
}

// CloseSubscription closes a contract. Closure is terminal: no further
// scheduled charges settle and the contract cannot be reopened.
func (a *Agent) CloseSubscription(ctx context.Context, caller, addr keys.Identity) error {
	sub, err := a.store.GetSubscription(ctx, addr)
	if err != nil {
		return err
	}
	if !sub.Owner.Equal(caller) {
		return ErrInvalidAuthority
	}
	if !sub.Active {
		return ErrSubscriptionClosed
	}

	now := a.clock().UTC()
	sub.Active = false
	sub.ClosedAt = &now
	sub.Touch()

	if err := a.store.Commit(ctx, &store.Commit{Subscription: sub}); err != nil {
		return err
	}

	a.plugins.EmitSubscriptionClosed(ctx, sub)
	a.logger.Info("subscription closed", "subscription", addr.Short())
	return nil
}

// MerchantPaymentParams are the inputs of a one-off owner-initiated payment.
type MerchantPaymentParams struct {
	FundingAccount  keys.Identity
	Merchant        keys.Identity
	MerchantAccount keys.Identity
	Amount          types.Money
	PaymentID       uuid.UUID
	Swap            subscription.SwapConfig
}

// MerchantPayment settles a one-off payment pushed by the funding account
// owner to a merchant, with the same fee and swap pipeline as scheduled
// charges.
func (a *Agent) MerchantPayment(ctx context.Context, caller keys.Identity, p MerchantPaymentParams) (*payment.Event, error) {
	if p.Merchant.IsNil() || p.MerchantAccount.IsNil() || !p.Amount.IsPositive() {
		return nil, ErrInvalidInput
	}

	acct, err := a.store.GetAccount(ctx, p.FundingAccount)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equal(caller) {
		return nil, ErrInvalidAuthority
	}

	if err := a.ensureFreshToken(ctx, p.PaymentID); err != nil {
		return nil, err
	}

	now := a.clock().UTC()
	st, err := a.settle(ctx, payment.OriginMerchantPay, p.PaymentID, caller, p.FundingAccount, p.Merchant, p.MerchantAccount, p.Amount, p.Swap, now)
	if err != nil {
		return nil, err
	}

	commit := &store.Commit{
		Transfers: st.transfers,
		Payment:   st.event,
	}
	if err := a.store.Commit(ctx, commit); err != nil {
		return nil, err
	}

	a.plugins.EmitPaymentSettled(ctx, st.event)
	if st.event.Swapped() {
		a.plugins.EmitSwapExecuted(ctx, st.event.Net, st.event.Converted)
	}

	a.logger.Info("merchant payment settled",
		"payment", st.event.ID.String(),
		"merchant", p.Merchant.Short(),
		"gross", p.Amount.String(),
	)
	return st.event, nil
}

// MerchantReceiveParams are the inputs of a merchant-initiated pull payment.
type MerchantReceiveParams struct {
	FundingAccount  keys.Identity
	MerchantAccount keys.Identity
	Amount          types.Money
	PaymentID       uuid.UUID
	Swap            subscription.SwapConfig
}

// MerchantReceive settles a payment pulled by the merchant against an
// allowance granted on the funding account with the merchant as delegate.
// The charged amount is debited from the grant's remaining budget.
func (a *Agent) MerchantReceive(ctx context.Context, caller keys.Identity, p MerchantReceiveParams) (*payment.Event, error) {
	if p.FundingAccount.IsNil() || p.MerchantAccount.IsNil() || !p.Amount.IsPositive() {
		return nil, ErrInvalidInput
	}

	grantAddr, err := a.AllowanceAddress(p.FundingAccount, caller)
	if err != nil {
		return nil, err
	}
	grant, err := a.store.GetAllowance(ctx, grantAddr)
	if err != nil {
		return nil, err
	}
	if !grant.Delegate.Equal(caller) {
		return nil, ErrInvalidAuthority
	}
	if !grant.IsActive() {
		return nil, ErrAllowanceClosed
	}

	now := a.clock().UTC()
	if !grant.WindowContains(now) {
		return nil, ErrOutsideWindow
	}
	if p.Amount.Currency != grant.Remaining.Currency {
		return nil, ErrCurrencyMismatch
	}
	if grant.Remaining.LessThan(p.Amount) {
		return nil, ErrInsufficientBudget
	}

	if err := a.ensureFreshToken(ctx, p.PaymentID); err != nil {
		return nil, err
	}

	st, err := a.settle(ctx, payment.OriginMerchantRecv, p.PaymentID, grant.Owner, p.FundingAccount, caller, p.MerchantAccount, p.Amount, p.Swap, now)
	if err != nil {
		return nil, err
	}
	st.event.Allowance = grantAddr

	grant.Remaining = grant.Remaining.Subtract(p.Amount)
	grant.Touch()

	commit := &store.Commit{
		Transfers: st.transfers,
		Allowance: grant,
		Payment:   st.event,
	}
	if err := a.store.Commit(ctx, commit); err != nil {
		return nil, err
	}

	a.plugins.EmitPaymentSettled(ctx, st.event)
	if st.event.Swapped() {
		a.plugins.EmitSwapExecuted(ctx, st.event.Net, st.event.Converted)
	}

	a.logger.Info("merchant receive settled",
		"payment", st.event.ID.String(),
		"allowance", grantAddr.Short(),
		"gross", p.Amount.String(),
		"remaining", grant.Remaining.String(),
	)
	return st.event, nil
}

// ──────────────────────────────────────────────────
// Settlement internals
// ──────────────────────────────────────────────────

type settlement struct {
	transfers []store.Transfer
	event     *payment.Event
}

// settle builds the transfer set and payment event for one charge: fee on
// the gross in the source currency, then the net either paid out as-is or
// converted through the swap adapter. Nothing is persisted here.
func (a *Agent) settle(ctx context.Context, origin payment.Origin, token uuid.UUID, payer, fundingAccount, merchant, merchantAccount keys.Identity, gross types.Money, cfg subscription.SwapConfig, now time.Time) (*settlement, error) {
	acct, err := a.store.GetAccount(ctx, fundingAccount)
	if err != nil {
		return nil, err
	}
	if gross.Currency != acct.Currency {
		return nil, ErrCurrencyMismatch
	}
	if !acct.CanDebit(gross) {
		return nil, ErrInsufficientFunds
	}

	fee, net, err := a.fees.Assess(gross)
	if err != nil {
		return nil, err
	}

	var transfers []store.Transfer
	if fee.IsPositive() {
		if a.feeAccount.IsNil() {
			return nil, fmt.Errorf("%w: fee account not configured", ErrInvalidInput)
		}
		transfers = append(transfers, store.Transfer{
			From:   fundingAccount,
			To:     a.feeAccount,
			Amount: fee,
		})
	}

	converted := types.Money{}
	if cfg.Enabled {
		if a.swapper == nil {
			return nil, fmt.Errorf("%w: no swap adapter configured", ErrSwapFailed)
		}
		res, err := a.swapper.Execute(ctx, swap.Request{
			Amount:         net,
			Direction:      swap.Direction(cfg.Direction),
			TargetCurrency: cfg.TargetCurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		converted = res.Converted

		mAcct, err := a.store.GetAccount(ctx, merchantAccount)
		if err != nil {
			return nil, err
		}
		if converted.Currency != mAcct.Currency {
			return nil, ErrCurrencyMismatch
		}

		transfers = append(transfers, store.Transfer{
			From:   fundingAccount,
			To:     merchantAccount,
			Amount: net,
			Credit: converted,
		})
	} else if net.IsPositive() {
		mAcct, err := a.store.GetAccount(ctx, merchantAccount)
		if err != nil {
			return nil, err
		}
		if net.Currency != mAcct.Currency {
			return nil, ErrCurrencyMismatch
		}

		transfers = append(transfers, store.Transfer{
			From:   fundingAccount,
			To:     merchantAccount,
			Amount: net,
		})
	}

	event := &payment.Event{
		Entity:    types.NewEntity(),
		ID:        id.NewPaymentID(),
		Token:     token,
		Origin:    origin,
		Payer:     payer,
		Merchant:  merchant,
		Gross:     gross,
		Fee:       fee,
		Net:       net,
		Converted: converted,
		AppliedAt: now,
	}

	return &settlement{transfers: transfers, event: event}, nil
}
