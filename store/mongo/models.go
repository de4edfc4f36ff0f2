package mongo

import (
	"time"

	"github.com/google/uuid"

	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/id"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/types"
)

// ==================== Account models ====================

type accountModel struct {
	ID           string    `bson:"_id"`
	Owner        string    `bson:"owner"`
	Currency     string    `bson:"currency"`
	BalanceUnits int64     `bson:"balance_units"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:           a.ID.String(),
		Owner:        a.Owner.String(),
		Currency:     a.Currency,
		BalanceUnits: a.Balance.Amount,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	a := &account.Account{
		Currency: m.Currency,
		Balance:  types.Units(m.Currency, m.BalanceUnits),
	}
	var err error
	if a.ID, err = keys.Parse(m.ID); err != nil {
		return nil, err
	}
	if a.Owner, err = keys.Parse(m.Owner); err != nil {
		return nil, err
	}
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	return a, nil
}

// ==================== Allowance models ====================

type allowanceModel struct {
	Address        string     `bson:"_id"`
	Owner          string     `bson:"owner"`
	FundingAccount string     `bson:"funding_account"`
	Delegate       string     `bson:"delegate"`
	RemainingUnits int64      `bson:"remaining_units"`
	Currency       string     `bson:"currency"`
	LinkCurrency   bool       `bson:"link_currency"`
	ValidFrom      *time.Time `bson:"valid_from,omitempty"`
	ValidUntil     *time.Time `bson:"valid_until,omitempty"`
	Status         string     `bson:"status"`
	ClosedAt       *time.Time `bson:"closed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toAllowanceModel(a *allowance.Allowance) *allowanceModel {
	return &allowanceModel{
		Address:        a.Address.String(),
		Owner:          a.Owner.String(),
		FundingAccount: a.FundingAccount.String(),
		Delegate:       a.Delegate.String(),
		RemainingUnits: a.Remaining.Amount,
		Currency:       a.Remaining.Currency,
		LinkCurrency:   a.LinkCurrency,
		ValidFrom:      nullTime(a.ValidFrom),
		ValidUntil:     nullTime(a.ValidUntil),
		Status:         string(a.Status),
		ClosedAt:       a.ClosedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAllowanceModel(m *allowanceModel) (*allowance.Allowance, error) {
	a := &allowance.Allowance{
		Remaining:    types.Units(m.Currency, m.RemainingUnits),
		LinkCurrency: m.LinkCurrency,
		ValidFrom:    fromNullTime(m.ValidFrom),
		ValidUntil:   fromNullTime(m.ValidUntil),
		Status:       allowance.Status(m.Status),
		ClosedAt:     m.ClosedAt,
	}
	var err error
	if a.Address, err = keys.Parse(m.Address); err != nil {
		return nil, err
	}
	if a.Owner, err = keys.Parse(m.Owner); err != nil {
		return nil, err
	}
	if a.FundingAccount, err = keys.Parse(m.FundingAccount); err != nil {
		return nil, err
	}
	if a.Delegate, err = keys.Parse(m.Delegate); err != nil {
		return nil, err
	}
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	return a, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	Address            string     `bson:"_id"`
	ID                 string     `bson:"id"`
	Owner              string     `bson:"owner"`
	Merchant           string     `bson:"merchant"`
	MerchantAccount    string     `bson:"merchant_account"`
	Manager            string     `bson:"manager,omitempty"`
	FundingAccount     string     `bson:"funding_account"`
	Period             string     `bson:"period"`
	BudgetUnits        int64      `bson:"budget_units"`
	Currency           string     `bson:"currency"`
	UseTotalBudget     bool       `bson:"use_total_budget"`
	TotalBudgetUnits   int64      `bson:"total_budget_units"`
	TotalConsumedUnits int64      `bson:"total_consumed_units"`
	NextRebill         time.Time  `bson:"next_rebill"`
	RebillCount        int64      `bson:"rebill_count"`
	RebillMax          int64      `bson:"rebill_max"`
	MaxDelayNS         int64      `bson:"max_delay_ns"`
	ValidFrom          *time.Time `bson:"valid_from,omitempty"`
	ValidUntil         *time.Time `bson:"valid_until,omitempty"`
	SwapEnabled        bool       `bson:"swap_enabled"`
	SwapDirection      bool       `bson:"swap_direction"`
	SwapTarget         string     `bson:"swap_target,omitempty"`
	Active             bool       `bson:"active"`
	ClosedAt           *time.Time `bson:"closed_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		Address:            sub.Address.String(),
		ID:                 sub.ID.String(),
		Owner:              sub.Owner.String(),
		Merchant:           sub.Merchant.String(),
		MerchantAccount:    sub.MerchantAccount.String(),
		Manager:            identStr(sub.Manager),
		FundingAccount:     sub.FundingAccount.String(),
		Period:             sub.Period.String(),
		BudgetUnits:        sub.PeriodBudget.Amount,
		Currency:           sub.PeriodBudget.Currency,
		UseTotalBudget:     sub.UseTotalBudget,
		TotalBudgetUnits:   sub.TotalBudget.Amount,
		TotalConsumedUnits: sub.TotalConsumed.Amount,
		NextRebill:         sub.NextRebill.UTC(),
		RebillCount:        int64(sub.RebillCount),
		RebillMax:          int64(sub.RebillMax),
		MaxDelayNS:         int64(sub.MaxDelay),
		ValidFrom:          nullTime(sub.ValidFrom),
		ValidUntil:         nullTime(sub.ValidUntil),
		SwapEnabled:        sub.Swap.Enabled,
		SwapDirection:      sub.Swap.Direction,
		SwapTarget:         sub.Swap.TargetCurrency,
		Active:             sub.Active,
		ClosedAt:           sub.ClosedAt,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{
		PeriodBudget:   types.Units(m.Currency, m.BudgetUnits),
		UseTotalBudget: m.UseTotalBudget,
		NextRebill:     m.NextRebill,
		RebillCount:    uint32(m.RebillCount),
		RebillMax:      uint32(m.RebillMax),
		MaxDelay:       time.Duration(m.MaxDelayNS),
		ValidFrom:      fromNullTime(m.ValidFrom),
		ValidUntil:     fromNullTime(m.ValidUntil),
		Swap: subscription.SwapConfig{
			Enabled:        m.SwapEnabled,
			Direction:      m.SwapDirection,
			TargetCurrency: m.SwapTarget,
		},
		Active:   m.Active,
		ClosedAt: m.ClosedAt,
	}
	if m.UseTotalBudget || m.TotalBudgetUnits != 0 {
		sub.TotalBudget = types.Units(m.Currency, m.TotalBudgetUnits)
	}
	if m.UseTotalBudget || m.TotalConsumedUnits != 0 {
		sub.TotalConsumed = types.Units(m.Currency, m.TotalConsumedUnits)
	}
	var err error
	if sub.Address, err = keys.Parse(m.Address); err != nil {
		return nil, err
	}
	if sub.ID, err = uuid.Parse(m.ID); err != nil {
		return nil, err
	}
	if sub.Owner, err = keys.Parse(m.Owner); err != nil {
		return nil, err
	}
	if sub.Merchant, err = keys.Parse(m.Merchant); err != nil {
		return nil, err
	}
	if sub.MerchantAccount, err = keys.Parse(m.MerchantAccount); err != nil {
		return nil, err
	}
	if sub.Manager, err = parseIdent(m.Manager); err != nil {
		return nil, err
	}
	if sub.FundingAccount, err = keys.Parse(m.FundingAccount); err != nil {
		return nil, err
	}
	if sub.Period, err = subscription.ParsePeriod(m.Period); err != nil {
		return nil, err
	}
	sub.CreatedAt = m.CreatedAt
	sub.UpdatedAt = m.UpdatedAt
	return sub, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	Token             string    `bson:"_id"`
	ID                string    `bson:"id"`
	Origin            string    `bson:"origin"`
	Subscription      string    `bson:"subscription,omitempty"`
	Allowance         string    `bson:"allowance,omitempty"`
	Payer             string    `bson:"payer"`
	Merchant          string    `bson:"merchant"`
	GrossUnits        int64     `bson:"gross_units"`
	FeeUnits          int64     `bson:"fee_units"`
	NetUnits          int64     `bson:"net_units"`
	Currency          string    `bson:"currency"`
	ConvertedUnits    int64     `bson:"converted_units"`
	ConvertedCurrency string    `bson:"converted_currency,omitempty"`
	AppliedAt         time.Time `bson:"applied_at"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toPaymentModel(e *payment.Event) *paymentModel {
	return &paymentModel{
		Token:             e.Token.String(),
		ID:                e.ID.String(),
		Origin:            string(e.Origin),
		Subscription:      identStr(e.Subscription),
		Allowance:         identStr(e.Allowance),
		Payer:             e.Payer.String(),
		Merchant:          e.Merchant.String(),
		GrossUnits:        e.Gross.Amount,
		FeeUnits:          e.Fee.Amount,
		NetUnits:          e.Net.Amount,
		Currency:          e.Gross.Currency,
		ConvertedUnits:    e.Converted.Amount,
		ConvertedCurrency: e.Converted.Currency,
		AppliedAt:         e.AppliedAt.UTC(),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Event, error) {
	e := &payment.Event{
		Origin:    payment.Origin(m.Origin),
		Gross:     types.Units(m.Currency, m.GrossUnits),
		Fee:       types.Units(m.Currency, m.FeeUnits),
		Net:       types.Units(m.Currency, m.NetUnits),
		AppliedAt: m.AppliedAt,
	}
	if m.ConvertedCurrency != "" {
		e.Converted = types.Units(m.ConvertedCurrency, m.ConvertedUnits)
	}
	var err error
	if e.Token, err = uuid.Parse(m.Token); err != nil {
		return nil, err
	}
	if e.ID, err = id.ParsePaymentID(m.ID); err != nil {
		return nil, err
	}
	if e.Subscription, err = parseIdent(m.Subscription); err != nil {
		return nil, err
	}
	if e.Allowance, err = parseIdent(m.Allowance); err != nil {
		return nil, err
	}
	if e.Payer, err = keys.Parse(m.Payer); err != nil {
		return nil, err
	}
	if e.Merchant, err = keys.Parse(m.Merchant); err != nil {
		return nil, err
	}
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e, nil
}

// ==================== Helpers ====================

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
