package payagent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/store/memory"
	"github.com/xraph/payagent/types"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestAgent(t *testing.T, opts ...payagent.Option) *payagent.Agent {
	t.Helper()

	base := []payagent.Option{
		payagent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		payagent.WithClock(func() time.Time { return fixedNow }),
	}
	eng := payagent.New(memory.New(), append(base, opts...)...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })
	return eng
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	eng := newTestAgent(t)
	owner := keys.FromSeed([]byte("alice"))

	acct, err := eng.CreateAccount(ctx, owner, types.USD(1000))
	if err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}
	if acct.ID.IsNil() {
		t.Error("Account address should be derived")
	}
	if !acct.Balance.Equal(types.USD(1000)) {
		t.Errorf("Balance: got %v, want %v", acct.Balance, types.USD(1000))
	}

	// One account per (owner, currency): the derived address collides.
	if _, err := eng.CreateAccount(ctx, owner, types.USD(0)); !errors.Is(err, payagent.ErrAccountExists) {
		t.Errorf("Duplicate account: got %v, want ErrAccountExists", err)
	}

	// A second currency derives a distinct address.
	eurAcct, err := eng.CreateAccount(ctx, owner, types.EUR(500))
	if err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}
	if eurAcct.ID.Equal(acct.ID) {
		t.Error("Different currencies should derive different accounts")
	}

	tests := []struct {
		name    string
		owner   keys.Identity
		opening types.Money
	}{
		{"Nil owner", keys.Nil, types.USD(100)},
		{"No currency", owner, types.Money{Amount: 100}},
		{"Negative opening", owner, types.USD(-100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.CreateAccount(ctx, tt.owner, tt.opening); !errors.Is(err, payagent.ErrInvalidInput) {
				t.Errorf("Got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAllowanceLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := newTestAgent(t)

	owner := keys.FromSeed([]byte("owner"))
	delegate := keys.FromSeed([]byte("delegate"))
	dest := keys.FromSeed([]byte("dest"))

	funding, err := eng.CreateAccount(ctx, owner, types.USD(1000))
	if err != nil {
		t.Fatal(err)
	}
	destAcct, err := eng.CreateAccount(ctx, dest, types.USD(0))
	if err != nil {
		t.Fatal(err)
	}

	// Only the funding account owner may grant.
	_, err = eng.CreateAllowance(ctx, delegate, payagent.CreateAllowanceParams{
		FundingAccount: funding.ID,
		Delegate:       delegate,
		Amount:         types.USD(500),
	})
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Fatalf("Non-owner grant: got %v, want ErrInvalidAuthority", err)
	}

	// Budget currency must match the funding account.
	_, err = eng.CreateAllowance(ctx, owner, payagent.CreateAllowanceParams{
		FundingAccount: funding.ID,
		Delegate:       delegate,
		Amount:         types.EUR(500),
	})
	if !errors.Is(err, payagent.ErrCurrencyMismatch) {
		t.Fatalf("Currency mismatch: got %v, want ErrCurrencyMismatch", err)
	}

	grant, err := eng.CreateAllowance(ctx, owner, payagent.CreateAllowanceParams{
		FundingAccount: funding.ID,
		Delegate:       delegate,
		Amount:         types.USD(500),
	})
	if err != nil {
		t.Fatalf("CreateAllowance error: %v", err)
	}

	// The address is derivable without a lookup.
	derived, err := eng.AllowanceAddress(funding.ID, delegate)
	if err != nil {
		t.Fatal(err)
	}
	if !derived.Equal(grant.Address) {
		t.Errorf("Derived address %s does not match grant %s", derived, grant.Address)
	}

	// Only the delegate may spend.
	err = eng.DelegatedTransfer(ctx, owner, grant.Address, destAcct.ID, types.USD(100))
	if !errors.Is(err, payagent.ErrInvalidAuthority) {
		t.Fatalf("Owner spend: got %v, want ErrInvalidAuthority", err)
	}

	if err := eng.DelegatedTransfer(ctx, delegate, grant.Address, destAcct.ID, types.USD(400)); err != nil {
		t.Fatalf("DelegatedTransfer error: %v", err)
	}

	// Budget and balances both move exactly once.
	got, err := eng.GetAllowance(ctx, grant.Address)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Remaining.Equal(types.USD(100)) {
		t.Errorf("Remaining: got %v, want %v", got.Remaining, types.USD(100))
	}
	fundingAfter, _ := eng.GetAccount(ctx, funding.ID)
	destAfter, _ := eng.GetAccount(ctx, destAcct.ID)
	if !fundingAfter.Balance.Equal(types.USD(600)) {
		t.Errorf("Funding balance: got %v, want %v", fundingAfter.Balance, types.USD(600))
	}
	if !destAfter.Balance.Equal(types.USD(400)) {
		t.Errorf("Destination balance: got %v, want %v", destAfter.Balance, types.USD(400))
	}

	// Overspending the remaining budget fails even though funds exist.
	err = eng.DelegatedTransfer(ctx, delegate, grant.Address, destAcct.ID, types.USD(200))
	if !errors.Is(err, payagent.ErrInsufficientBudget) {
		t.Fatalf("Over budget: got %v, want ErrInsufficientBudget", err)
	}

	// Owner tops the budget back up.
	topUp := types.USD(250)
	updated, err := eng.UpdateAllowance(ctx, owner, grant.Address, payagent.UpdateAllowanceParams{
		Amount: &topUp,
	})
	if err != nil {
		t.Fatalf("UpdateAllowance error: %v", err)
	}
	if !updated.Remaining.Equal(topUp) {
		t.Errorf("Remaining after update: got %v, want %v", updated.Remaining, topUp)
	}

	// Closure is terminal.
	if err := eng.CloseAllowance(ctx, owner, grant.Address); err != nil {
		t.Fatalf("CloseAllowance error: %v", err)
	}
	closed, _ := eng.GetAllowance(ctx, grant.Address)
	if closed.Status != allowance.StatusClosed || !closed.Remaining.IsZero() {
		t.Errorf("Closed grant: status=%s remaining=%v", closed.Status, closed.Remaining)
	}

	err = eng.DelegatedTransfer(ctx, delegate, grant.Address, destAcct.ID, types.USD(1))
	if !errors.Is(err, payagent.ErrAllowanceClosed) {
		t.Errorf("Spend after close: got %v, want ErrAllowanceClosed", err)
	}
	_, err = eng.UpdateAllowance(ctx, owner, grant.Address, payagent.UpdateAllowanceParams{Amount: &topUp})
	if !errors.Is(err, payagent.ErrAllowanceClosed) {
		t.Errorf("Update after close: got %v, want ErrAllowanceClosed", err)
	}
	if err := eng.CloseAllowance(ctx, owner, grant.Address); !errors.Is(err, payagent.ErrAllowanceClosed) {
		t.Errorf("Double close: got %v, want ErrAllowanceClosed", err)
	}
}

func TestDelegatedTransferWindow(t *testing.T) {
	ctx := context.Background()
	eng := newTestAgent(t)

	owner := keys.FromSeed([]byte("owner"))
	delegate := keys.FromSeed([]byte("delegate"))
	dest := keys.FromSeed([]byte("dest"))

	funding, err := eng.CreateAccount(ctx, owner, types.USD(1000))
	if err != nil {
		t.Fatal(err)
	}
	destAcct, err := eng.CreateAccount(ctx, dest, types.USD(0))
	if err != nil {
		t.Fatal(err)
	}

	grant, err := eng.CreateAllowance(ctx, owner, payagent.CreateAllowanceParams{
		FundingAccount: funding.ID,
		Delegate:       delegate,
		Amount:         types.USD(500),
		ValidFrom:      fixedNow.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = eng.DelegatedTransfer(ctx, delegate, grant.Address, destAcct.ID, types.USD(100))
	if !errors.Is(err, payagent.ErrOutsideWindow) {
		t.Errorf("Before window: got %v, want ErrOutsideWindow", err)
	}
}
