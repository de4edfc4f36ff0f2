package payagent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/fees"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/swap"
	"github.com/xraph/payagent/types"
)

// fixture wires an engine with funded owner and merchant accounts.
type fixture struct {
	eng *payagent.Agent

	owner    keys.Identity
	merchant keys.Identity
	manager  keys.Identity

	ownerAcct    keys.Identity
	merchantAcct keys.Identity
}

func newFixture(t *testing.T, opts ...payagent.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		eng:      newTestAgent(t, opts...),
		owner:    keys.FromSeed([]byte("owner")),
		merchant: keys.FromSeed([]byte("merchant")),
		manager:  keys.FromSeed([]byte("manager")),
	}

	ownerAcct, err := f.eng.CreateAccount(ctx, f.owner, types.USD(100000))
	if err != nil {
		t.Fatal(err)
	}
	merchantAcct, err := f.eng.CreateAccount(ctx, f.merchant, types.USD(0))
	if err != nil {
		t.Fatal(err)
	}
	f.ownerAcct = ownerAcct.ID
	f.merchantAcct = merchantAcct.ID
	return f
}

func (f *fixture) subscribe(t *testing.T, p payagent.SubscribeParams) *subscription.Subscription {
	t.Helper()
	if p.Merchant.IsNil() {
		p.Merchant = f.merchant
	}
	if p.MerchantAccount.IsNil() {
		p.MerchantAccount = f.merchantAcct
	}
	if p.Manager.IsNil() {
		p.Manager = f.manager
	}
	if p.FundingAccount.IsNil() {
		p.FundingAccount = f.ownerAcct
	}
	if p.Period == subscription.PeriodNone {
		p.Period = subscription.PeriodMonthly
	}
	if p.PeriodBudget.IsZero() {
		p.PeriodBudget = types.USD(1000)
	}

	sub, _, err := f.eng.Subscribe(context.Background(), f.owner, p)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	return sub
}

func (f *fixture) balance(t *testing.T, addr keys.Identity) types.Money {
	t.Helper()
	acct, err := f.eng.GetAccount(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	return acct.Balance
}

func TestSubscribeDefaults(t *testing.T) {
	f := newFixture(t)

	sub := f.subscribe(t, payagent.SubscribeParams{})

	// Fixed clock is 2024-03-15; the monthly anchor defaults to April 1.
	want := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !sub.NextRebill.Equal(want) {
		t.Errorf("NextRebill: got %v, want %v", sub.NextRebill, want)
	}
	if !sub.Active {
		t.Error("New subscription should be active")
	}
	if sub.RebillCount != 0 {
		t.Errorf("RebillCount: got %d, want 0", sub.RebillCount)
	}

	// The address is derivable from (owner, merchant, ID).
	derived, err := f.eng.SubscriptionAddress(f.owner, f.merchant, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !derived.Equal(sub.Address) {
		t.Errorf("Derived address %s does not match %s", derived, sub.Address)
	}
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Caller must own the funding account.
	_, _, err := f.eng.Subscribe(ctx, f.merchant, payagent.SubscribeParams{
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		FundingAccount:  f.ownerAcct,
		Period:          subscription.PeriodMonthly,
		PeriodBudget:    types.USD(1000),
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Errorf("Foreign funding account: got %v, want ErrInvalidAuthority", err)
	}

	// Budget currency must match the funding account.
	_, _, err = f.eng.Subscribe(ctx, f.owner, payagent.SubscribeParams{
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		FundingAccount:  f.ownerAcct,
		Period:          subscription.PeriodMonthly,
		PeriodBudget:    types.EUR(1000),
	})
	if !errors.Is(err, payagent.ErrCurrencyMismatch) {
		t.Errorf("Currency mismatch: got %v, want ErrCurrencyMismatch", err)
	}

	// The lifetime cap must be denominated in the budget currency.
	_, _, err = f.eng.Subscribe(ctx, f.owner, payagent.SubscribeParams{
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		FundingAccount:  f.ownerAcct,
		Period:          subscription.PeriodMonthly,
		PeriodBudget:    types.USD(1000),
		UseTotalBudget:  true,
		TotalBudget:     types.EUR(5000),
	})
	if !errors.Is(err, payagent.ErrCurrencyMismatch) {
		t.Errorf("Foreign total budget: got %v, want ErrCurrencyMismatch", err)
	}

	// Replaying the contract ID is rejected by derivation.
	id := uuid.New()
	f.subscribe(t, payagent.SubscribeParams{ID: id})
	_, _, err = f.eng.Subscribe(ctx, f.owner, payagent.SubscribeParams{
		ID:              id,
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		FundingAccount:  f.ownerAcct,
		Period:          subscription.PeriodMonthly,
		PeriodBudget:    types.USD(1000),
	})
	if !errors.Is(err, payagent.ErrSubscriptionExists) {
		t.Errorf("Duplicate contract: got %v, want ErrSubscriptionExists", err)
	}
}

func TestSubscribeInitialCharge(t *testing.T) {
	f := newFixture(t)

	sub, event, err := f.eng.Subscribe(context.Background(), f.owner, payagent.SubscribeParams{
		Merchant:         f.merchant,
		MerchantAccount:  f.merchantAcct,
		FundingAccount:   f.ownerAcct,
		Period:           subscription.PeriodMonthly,
		PeriodBudget:     types.USD(1000),
		InitialAmount:    types.USD(1000),
		InitialPaymentID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if event == nil {
		t.Fatal("Initial charge should produce a payment event")
	}
	if event.Origin != payment.OriginInitial {
		t.Errorf("Origin: got %s, want %s", event.Origin, payment.OriginInitial)
	}
	if !event.Subscription.Equal(sub.Address) {
		t.Error("Event should reference the subscription")
	}

	if got := f.balance(t, f.ownerAcct); !got.Equal(types.USD(99000)) {
		t.Errorf("Owner balance: got %v, want %v", got, types.USD(99000))
	}
	if got := f.balance(t, f.merchantAcct); !got.Equal(types.USD(1000)) {
		t.Errorf("Merchant balance: got %v, want %v", got, types.USD(1000))
	}
}

func TestProcessSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{
		MaxDelay: 72 * time.Hour,
	})
	due := sub.NextRebill // 2024-04-01

	// Early charge is rejected without consuming the token.
	token := uuid.New()
	_, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: token,
		Now:       due.Add(-time.Minute),
	})
	if !errors.Is(err, payagent.ErrScheduleNotDue) {
		t.Fatalf("Early charge: got %v, want ErrScheduleNotDue", err)
	}

	// Unrelated identities may not trigger the charge.
	stranger := keys.FromSeed([]byte("stranger"))
	_, err = f.eng.Process(ctx, stranger, sub.Address, payagent.ProcessParams{
		PaymentID: token,
		Now:       due,
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Fatalf("Stranger process: got %v, want ErrInvalidAuthority", err)
	}

	// Late inside the grace window still settles; the same token still works
	// because the early attempt never committed.
	event, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: token,
		Now:       due.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !event.Gross.Equal(types.USD(1000)) {
		t.Errorf("Gross: got %v, want %v", event.Gross, types.USD(1000))
	}

	got, err := f.eng.GetSubscription(ctx, sub.Address)
	if err != nil {
		t.Fatal(err)
	}
	if got.RebillCount != 1 {
		t.Errorf("RebillCount: got %d, want 1", got.RebillCount)
	}
	// The anchor advances from the previous anchor, not from the late
	// processing time, so May 1 rather than May 3.
	wantNext := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	if !got.NextRebill.Equal(wantNext) {
		t.Errorf("NextRebill: got %v, want %v", got.NextRebill, wantNext)
	}

	// Replaying the settled token is rejected.
	_, err = f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: token,
		Now:       wantNext,
	})
	if !errors.Is(err, payagent.ErrDuplicatePayment) {
		t.Errorf("Replayed token: got %v, want ErrDuplicatePayment", err)
	}

	// Past the grace window the cycle is lost.
	_, err = f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       wantNext.Add(73 * time.Hour),
	})
	if !errors.Is(err, payagent.ErrScheduleExpired) {
		t.Errorf("Expired cycle: got %v, want ErrScheduleExpired", err)
	}

	// The merchant may also trigger the charge.
	if _, err := f.eng.Process(ctx, f.merchant, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       wantNext,
	}); err != nil {
		t.Errorf("Merchant process error: %v", err)
	}

	// As may the owner, on the following cycle.
	june := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.eng.Process(ctx, f.owner, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       june,
	}); err != nil {
		t.Errorf("Owner process error: %v", err)
	}
}

func TestProcessBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{})
	due := sub.NextRebill

	// A partial charge inside the period budget settles.
	event, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		Amount:    types.USD(400),
		PaymentID: uuid.New(),
		Now:       due,
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !event.Gross.Equal(types.USD(400)) {
		t.Errorf("Gross: got %v, want %v", event.Gross, types.USD(400))
	}

	// A charge above the period budget is rejected.
	got, _ := f.eng.GetSubscription(ctx, sub.Address)
	_, err = f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		Amount:    types.USD(1200),
		PaymentID: uuid.New(),
		Now:       got.NextRebill,
	})
	if !errors.Is(err, payagent.ErrInsufficientBudget) {
		t.Errorf("Over period budget: got %v, want ErrInsufficientBudget", err)
	}
}

func TestProcessTotalBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{
		UseTotalBudget: true,
		TotalBudget:    types.USD(1500),
	})

	// First full charge consumes 1000 of the 1500 lifetime cap.
	if _, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	}); err != nil {
		t.Fatalf("Process error: %v", err)
	}

	// The next full charge would breach the cap.
	got, _ := f.eng.GetSubscription(ctx, sub.Address)
	_, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       got.NextRebill,
	})
	if !errors.Is(err, payagent.ErrInsufficientBudget) {
		t.Fatalf("Over total budget: got %v, want ErrInsufficientBudget", err)
	}

	// A smaller charge that fits still settles.
	if _, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		Amount:    types.USD(500),
		PaymentID: uuid.New(),
		Now:       got.NextRebill,
	}); err != nil {
		t.Errorf("Fitting charge error: %v", err)
	}
}

func TestTotalBudgetCountsInitialCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The immediate first charge consumes 1000 of the 1500 lifetime cap.
	sub, first, err := f.eng.Subscribe(ctx, f.owner, payagent.SubscribeParams{
		Merchant:         f.merchant,
		MerchantAccount:  f.merchantAcct,
		Manager:          f.manager,
		FundingAccount:   f.ownerAcct,
		Period:           subscription.PeriodMonthly,
		PeriodBudget:     types.USD(1000),
		UseTotalBudget:   true,
		TotalBudget:      types.USD(1500),
		InitialAmount:    types.USD(1000),
		InitialPaymentID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if first == nil {
		t.Fatal("Initial charge should produce a payment event")
	}
	if !sub.TotalConsumed.Equal(types.USD(1000)) {
		t.Errorf("TotalConsumed: got %v, want %v", sub.TotalConsumed, types.USD(1000))
	}

	// A scheduled charge that would breach the remaining cap is rejected.
	_, err = f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		Amount:    types.USD(600),
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	})
	if !errors.Is(err, payagent.ErrInsufficientBudget) {
		t.Fatalf("Over total budget: got %v, want ErrInsufficientBudget", err)
	}

	// A charge that fits the remainder still settles.
	if _, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		Amount:    types.USD(500),
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	}); err != nil {
		t.Errorf("Fitting charge error: %v", err)
	}
}

func TestProcessRebillLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{RebillMax: 1})

	if _, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	}); err != nil {
		t.Fatalf("Process error: %v", err)
	}

	got, _ := f.eng.GetSubscription(ctx, sub.Address)
	_, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       got.NextRebill,
	})
	if !errors.Is(err, payagent.ErrRebillLimitReached) {
		t.Errorf("Exhausted schedule: got %v, want ErrRebillLimitReached", err)
	}
}

func TestProcessFeeSplit(t *testing.T) {
	// Precompute the fee account address: it derives from (owner, currency)
	// under the default namespace.
	feeOwner := keys.FromSeed([]byte("protocol"))
	feeAddr, _, err := keys.Derive(keys.FromSeed([]byte("payagent")), feeOwner.Bytes(), []byte("usd"))
	if err != nil {
		t.Fatal(err)
	}

	f := newFixture(t,
		payagent.WithFeeSchedule(fees.Schedule{BasisPoints: 250}),
		payagent.WithFeeAccount(feeAddr),
	)
	ctx := context.Background()
	if _, err := f.eng.CreateAccount(ctx, feeOwner, types.USD(0)); err != nil {
		t.Fatal(err)
	}

	sub := f.subscribe(t, payagent.SubscribeParams{})
	event, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}

	// 2.5% of 1000 is 25; conservation must hold.
	if !event.Fee.Equal(types.USD(25)) {
		t.Errorf("Fee: got %v, want %v", event.Fee, types.USD(25))
	}
	if !event.Net.Equal(types.USD(975)) {
		t.Errorf("Net: got %v, want %v", event.Net, types.USD(975))
	}
	if !event.Fee.Add(event.Net).Equal(event.Gross) {
		t.Error("Conservation violated: fee + net != gross")
	}

	if got := f.balance(t, feeAddr); !got.Equal(types.USD(25)) {
		t.Errorf("Fee account balance: got %v, want %v", got, types.USD(25))
	}
	if got := f.balance(t, f.merchantAcct); !got.Equal(types.USD(975)) {
		t.Errorf("Merchant balance: got %v, want %v", got, types.USD(975))
	}
	if got := f.balance(t, f.ownerAcct); !got.Equal(types.USD(99000)) {
		t.Errorf("Owner balance: got %v, want %v", got, types.USD(99000))
	}
}

func TestProcessSwap(t *testing.T) {
	f := newFixture(t, payagent.WithSwapAdapter(swap.FixedRate{RateNum: 3, RateDen: 2}))
	ctx := context.Background()

	// The merchant settles in the target currency.
	wsolAcct, err := f.eng.CreateAccount(ctx, f.merchant, types.Units("wsol", 0))
	if err != nil {
		t.Fatal(err)
	}

	sub := f.subscribe(t, payagent.SubscribeParams{
		MerchantAccount: wsolAcct.ID,
		Swap: subscription.SwapConfig{
			Enabled:        true,
			Direction:      bool(swap.SellSource),
			TargetCurrency: "wsol",
		},
	})

	event, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}

	if !event.Swapped() {
		t.Fatal("Event should record the conversion")
	}
	want := types.Units("wsol", 1500) // 1000 * 3/2
	if !event.Converted.Equal(want) {
		t.Errorf("Converted: got %v, want %v", event.Converted, want)
	}

	if got := f.balance(t, wsolAcct.ID); !got.Equal(want) {
		t.Errorf("Merchant balance: got %v, want %v", got, want)
	}
	if got := f.balance(t, f.ownerAcct); !got.Equal(types.USD(99000)) {
		t.Errorf("Owner balance: got %v, want %v", got, types.USD(99000))
	}
}

func TestProcessSwapFailureAborts(t *testing.T) {
	f := newFixture(t, payagent.WithSwapAdapter(swap.Failing{}))
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{
		Swap: subscription.SwapConfig{Enabled: true, TargetCurrency: "wsol"},
	})

	_, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	})
	if !errors.Is(err, payagent.ErrSwapFailed) {
		t.Fatalf("Failed swap: got %v, want ErrSwapFailed", err)
	}

	// Nothing moved and the schedule did not advance.
	if got := f.balance(t, f.ownerAcct); !got.Equal(types.USD(100000)) {
		t.Errorf("Owner balance changed on aborted settlement: %v", got)
	}
	got, _ := f.eng.GetSubscription(ctx, sub.Address)
	if got.RebillCount != 0 || !got.NextRebill.Equal(sub.NextRebill) {
		t.Error("Schedule advanced on aborted settlement")
	}
}

func TestUpdateSubscriptionAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{})

	newBudget := types.USD(2000)
	swapCfg := subscription.SwapConfig{Enabled: true, TargetCurrency: "wsol"}

	// The manager may change only the swap configuration.
	if _, err := f.eng.UpdateSubscription(ctx, f.manager, sub.Address, payagent.UpdateSubscriptionParams{
		Swap: &swapCfg,
	}); err != nil {
		t.Errorf("Manager swap update error: %v", err)
	}
	_, err := f.eng.UpdateSubscription(ctx, f.manager, sub.Address, payagent.UpdateSubscriptionParams{
		PeriodBudget: &newBudget,
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Errorf("Manager budget update: got %v, want ErrInvalidAuthority", err)
	}
	anchor := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.eng.UpdateSubscription(ctx, f.manager, sub.Address, payagent.UpdateSubscriptionParams{
		NextRebill: &anchor,
		Swap:       &swapCfg,
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Errorf("Manager anchor update: got %v, want ErrInvalidAuthority", err)
	}

	// The merchant may change nothing.
	_, err = f.eng.UpdateSubscription(ctx, f.merchant, sub.Address, payagent.UpdateSubscriptionParams{
		Swap: &swapCfg,
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Errorf("Merchant update: got %v, want ErrInvalidAuthority", err)
	}

	// The owner may change everything.
	newManager := keys.FromSeed([]byte("new-manager"))
	updated, err := f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{
		PeriodBudget: &newBudget,
		Manager:      &newManager,
	})
	if err != nil {
		t.Fatalf("Owner update error: %v", err)
	}
	if !updated.PeriodBudget.Equal(newBudget) || !updated.Manager.Equal(newManager) {
		t.Errorf("Update not applied: %+v", updated)
	}
}

func TestUpdateSubscriptionTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{})

	weekly := subscription.PeriodWeekly
	anchor := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	useTotal := true
	totalBudget := types.USD(5000)
	from := fixedNow.Add(-time.Hour)

	updated, err := f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{
		Period:         &weekly,
		NextRebill:     &anchor,
		UseTotalBudget: &useTotal,
		TotalBudget:    &totalBudget,
		ValidFrom:      &from,
	})
	if err != nil {
		t.Fatalf("UpdateSubscription error: %v", err)
	}
	if updated.Period != subscription.PeriodWeekly {
		t.Errorf("Period: got %s, want weekly", updated.Period)
	}
	if !updated.NextRebill.Equal(anchor) {
		t.Errorf("NextRebill: got %v, want %v", updated.NextRebill, anchor)
	}
	if !updated.UseTotalBudget || !updated.TotalBudget.Equal(totalBudget) {
		t.Errorf("Total budget: got use=%t cap=%v", updated.UseTotalBudget, updated.TotalBudget)
	}
	if !updated.ValidFrom.Equal(from) {
		t.Errorf("ValidFrom: got %v, want %v", updated.ValidFrom, from)
	}

	// The new anchor gates the next charge.
	_, err = f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       anchor.Add(-time.Hour),
	})
	if !errors.Is(err, payagent.ErrScheduleNotDue) {
		t.Errorf("Before new anchor: got %v, want ErrScheduleNotDue", err)
	}

	// An unknown period value is rejected.
	bad := subscription.Period(42)
	_, err = f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{
		Period: &bad,
	})
	if !errors.Is(err, payagent.ErrInvalidInput) {
		t.Errorf("Unknown period: got %v, want ErrInvalidInput", err)
	}

	// A total budget in a foreign currency is rejected.
	eurCap := types.EUR(5000)
	_, err = f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{
		TotalBudget: &eurCap,
	})
	if !errors.Is(err, payagent.ErrCurrencyMismatch) {
		t.Errorf("Foreign total budget: got %v, want ErrCurrencyMismatch", err)
	}

	// Enforcing the cap without a positive cap amount is rejected.
	zeroCap := types.USD(0)
	_, err = f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{
		UseTotalBudget: &useTotal,
		TotalBudget:    &zeroCap,
	})
	if !errors.Is(err, payagent.ErrInvalidInput) {
		t.Errorf("Capless total budget: got %v, want ErrInvalidInput", err)
	}
}

func TestCloseSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{})

	// Only the owner may close.
	if err := f.eng.CloseSubscription(ctx, f.manager, sub.Address); !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Errorf("Manager close: got %v, want ErrInvalidAuthority", err)
	}

	if err := f.eng.CloseSubscription(ctx, f.owner, sub.Address); err != nil {
		t.Fatalf("CloseSubscription error: %v", err)
	}

	got, _ := f.eng.GetSubscription(ctx, sub.Address)
	if got.Active || got.ClosedAt == nil {
		t.Error("Subscription should be closed")
	}

	// Closure is terminal.
	_, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	})
	if !errors.Is(err, payagent.ErrSubscriptionClosed) {
		t.Errorf("Process after close: got %v, want ErrSubscriptionClosed", err)
	}
	if err := f.eng.CloseSubscription(ctx, f.owner, sub.Address); !errors.Is(err, payagent.ErrSubscriptionClosed) {
		t.Errorf("Double close: got %v, want ErrSubscriptionClosed", err)
	}
	_, err = f.eng.UpdateSubscription(ctx, f.owner, sub.Address, payagent.UpdateSubscriptionParams{})
	if !errors.Is(err, payagent.ErrSubscriptionClosed) {
		t.Errorf("Update after close: got %v, want ErrSubscriptionClosed", err)
	}
}

func TestMerchantPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Only the funding account owner may push.
	_, err := f.eng.MerchantPayment(ctx, f.merchant, payagent.MerchantPaymentParams{
		FundingAccount:  f.ownerAcct,
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(500),
		PaymentID:       uuid.New(),
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Fatalf("Foreign push: got %v, want ErrInvalidAuthority", err)
	}

	token := uuid.New()
	event, err := f.eng.MerchantPayment(ctx, f.owner, payagent.MerchantPaymentParams{
		FundingAccount:  f.ownerAcct,
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(500),
		PaymentID:       token,
	})
	if err != nil {
		t.Fatalf("MerchantPayment error: %v", err)
	}
	if event.Origin != payment.OriginMerchantPay {
		t.Errorf("Origin: got %s, want %s", event.Origin, payment.OriginMerchantPay)
	}

	if got := f.balance(t, f.merchantAcct); !got.Equal(types.USD(500)) {
		t.Errorf("Merchant balance: got %v, want %v", got, types.USD(500))
	}

	// Replaying the token is rejected.
	_, err = f.eng.MerchantPayment(ctx, f.owner, payagent.MerchantPaymentParams{
		FundingAccount:  f.ownerAcct,
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(500),
		PaymentID:       token,
	})
	if !errors.Is(err, payagent.ErrDuplicatePayment) {
		t.Errorf("Replayed token: got %v, want ErrDuplicatePayment", err)
	}
}

func TestMerchantReceive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Without a grant the merchant cannot pull.
	_, err := f.eng.MerchantReceive(ctx, f.merchant, payagent.MerchantReceiveParams{
		FundingAccount:  f.ownerAcct,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(300),
		PaymentID:       uuid.New(),
	})
	if !errors.Is(err, payagent.ErrAllowanceNotFound) {
		t.Fatalf("No grant: got %v, want ErrAllowanceNotFound", err)
	}

	grant, err := f.eng.CreateAllowance(ctx, f.owner, payagent.CreateAllowanceParams{
		FundingAccount: f.ownerAcct,
		Delegate:       f.merchant,
		Amount:         types.USD(500),
	})
	if err != nil {
		t.Fatal(err)
	}

	event, err := f.eng.MerchantReceive(ctx, f.merchant, payagent.MerchantReceiveParams{
		FundingAccount:  f.ownerAcct,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(300),
		PaymentID:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("MerchantReceive error: %v", err)
	}
	if event.Origin != payment.OriginMerchantRecv {
		t.Errorf("Origin: got %s, want %s", event.Origin, payment.OriginMerchantRecv)
	}
	if !event.Allowance.Equal(grant.Address) {
		t.Error("Event should reference the grant")
	}

	got, _ := f.eng.GetAllowance(ctx, grant.Address)
	if !got.Remaining.Equal(types.USD(200)) {
		t.Errorf("Remaining: got %v, want %v", got.Remaining, types.USD(200))
	}
	if bal := f.balance(t, f.merchantAcct); !bal.Equal(types.USD(300)) {
		t.Errorf("Merchant balance: got %v, want %v", bal, types.USD(300))
	}

	// Pulling past the remaining budget fails.
	_, err = f.eng.MerchantReceive(ctx, f.merchant, payagent.MerchantReceiveParams{
		FundingAccount:  f.ownerAcct,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(300),
		PaymentID:       uuid.New(),
	})
	if !errors.Is(err, payagent.ErrInsufficientBudget) {
		t.Errorf("Over budget pull: got %v, want ErrInsufficientBudget", err)
	}
}

func TestListPaymentsBySubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.subscribe(t, payagent.SubscribeParams{})
	if _, err := f.eng.Process(ctx, f.manager, sub.Address, payagent.ProcessParams{
		PaymentID: uuid.New(),
		Now:       sub.NextRebill,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.MerchantPayment(ctx, f.owner, payagent.MerchantPaymentParams{
		FundingAccount:  f.ownerAcct,
		Merchant:        f.merchant,
		MerchantAccount: f.merchantAcct,
		Amount:          types.USD(100),
		PaymentID:       uuid.New(),
	}); err != nil {
		t.Fatal(err)
	}

	scheduled, err := f.eng.ListPayments(ctx, payment.ListOpts{Subscription: sub.Address})
	if err != nil {
		t.Fatal(err)
	}
	if len(scheduled) != 1 {
		t.Errorf("Subscription payments: got %d, want 1", len(scheduled))
	}

	all, err := f.eng.ListPayments(ctx, payment.ListOpts{Merchant: f.merchant})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("Merchant payments: got %d, want 2", len(all))
	}
}
