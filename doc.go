// Package payagent provides an embeddable recurring-billing and delegated
// spending engine for Go applications.
//
// PayAgent is designed as a library, not a service. Import it directly into
// your Go application and wire it to a store. It provides:
//
//   - Recurring billing contracts with drift-free calendar schedules
//   - Delegated spending allowances with capped, decrementing budgets
//   - One-off merchant payments (owner push) and pulls (merchant receive)
//   - Idempotent settlement keyed by caller-supplied payment tokens
//   - Protocol fee assessment with an exact fee + net == gross split
//   - Optional currency conversion through pluggable swap adapters
//   - Deterministic record addressing derived from identity seeds
//
// # Quick Start
//
// Create an agent with your preferred store:
//
//	import (
//	    "github.com/xraph/payagent"
//	    "github.com/xraph/payagent/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create agent
//	a := payagent.New(store,
//	    payagent.WithFeeSchedule(fees.Schedule{BasisPoints: 150}),
//	    payagent.WithFeeAccount(feeAccount),
//	)
//
//	// Start the agent (runs migrations, initializes plugins)
//	if err := a.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Stop()
//
// # Core Concepts
//
// Allowances let a delegate spend from an owner's account up to a budget:
//
//	grant, err := a.CreateAllowance(ctx, owner, payagent.CreateAllowanceParams{
//	    FundingAccount: funding.ID,
//	    Delegate:       delegate,
//	    Amount:         payagent.USD(50_00),
//	})
//
// Subscriptions are recurring contracts charged on a calendar schedule:
//
//	sub, _, err := a.Subscribe(ctx, owner, payagent.SubscribeParams{
//	    Merchant:        merchant,
//	    MerchantAccount: merchantAcct.ID,
//	    FundingAccount:  funding.ID,
//	    Period:          subscription.PeriodMonthly,
//	    PeriodBudget:    payagent.USD(49_00),
//	})
//
// Scheduled charges settle through Process, keyed by a payment token:
//
//	event, err := a.Process(ctx, manager, sub.Address, payagent.ProcessParams{
//	    PaymentID: uuid.New(),
//	})
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc). Settlement paths use
// checked arithmetic and fail on overflow instead of wrapping.
//
// # Addressing
//
// Record addresses are derived deterministically from identity seeds under
// the agent namespace: one allowance per (funding account, delegate) pair,
// one subscription per (owner, merchant, contract ID) triple. Clients can
// compute an address before the record exists.
//
// # TypeID
//
// Settled payments carry TypeID identifiers:
//
//	pay_01h2xcejqtf2nbrexx3vqjhp41  // Payment ID
//	xfr_01h455vb4pex5vsknk084sn02q  // Transfer ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of settlement history.
package payagent
