package payagent_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/fees"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/store/memory"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Derive the protocol fee account before wiring the engine: account
		// addresses are deterministic from (owner, currency).
		feeOwner := keys.FromSeed([]byte("protocol"))
		feeAddr, _, err := keys.Derive(keys.FromSeed([]byte("payagent")), feeOwner.Bytes(), []byte("usd"))
		if err != nil {
			t.Fatal(err)
		}

		// Initialize the agent
		agent := payagent.New(store,
			payagent.WithLogger(slog.Default()),
			payagent.WithFeeSchedule(fees.Schedule{BasisPoints: 250}),
			payagent.WithFeeAccount(feeAddr),
		)

		// Start the engine
		ctx := context.Background()
		if err := agent.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer agent.Stop()

		// Open funded accounts
		alice := keys.FromSeed([]byte("alice"))
		acme := keys.FromSeed([]byte("acme"))

		aliceAcct, err := agent.CreateAccount(ctx, alice, types.USD(50000))
		if err != nil {
			t.Fatal(err)
		}
		acmeAcct, err := agent.CreateAccount(ctx, acme, types.USD(0))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := agent.CreateAccount(ctx, feeOwner, types.USD(0)); err != nil {
			t.Fatal(err)
		}

		// Grant a spending allowance to an autonomous delegate
		delegate := keys.FromSeed([]byte("shopping-agent"))
		grant, err := agent.CreateAllowance(ctx, alice, payagent.CreateAllowanceParams{
			FundingAccount: aliceAcct.ID,
			Delegate:       delegate,
			Amount:         types.USD(10000), // $100.00 budget
			ValidUntil:     time.Now().Add(30 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.DelegatedTransfer(ctx, delegate, grant.Address, acmeAcct.ID, types.USD(1500)); err != nil {
			t.Fatal(err)
		}

		// Create a monthly subscription with an immediate first charge
		sub, first, err := agent.Subscribe(ctx, alice, payagent.SubscribeParams{
			Merchant:         acme,
			MerchantAccount:  acmeAcct.ID,
			Manager:          alice,
			FundingAccount:   aliceAcct.ID,
			Period:           subscription.PeriodMonthly,
			PeriodBudget:     types.USD(4900), // $49.00 per month
			InitialAmount:    types.USD(4900),
			InitialPaymentID: uuid.New(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			t.Fatal("expected an initial payment event")
		}

		// The schedule charges once the anchor comes due
		event, err := agent.Process(ctx, alice, sub.Address, payagent.ProcessParams{
			PaymentID: uuid.New(),
			Now:       sub.NextRebill,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !event.Fee.Add(event.Net).Equal(event.Gross) {
			t.Fatal("fee split does not conserve the gross amount")
		}
	})
}
