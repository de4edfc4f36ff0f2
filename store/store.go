package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/subscription"
	"github.com/xraph/payagent/types"
)

// Store is the unified storage interface for all engine entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, addr keys.Identity) (*account.Account, error)

	// Allowance methods
	CreateAllowance(ctx context.Context, a *allowance.Allowance) error
	GetAllowance(ctx context.Context, addr keys.Identity) (*allowance.Allowance, error)
	ListAllowances(ctx context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, addr keys.Identity) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error)

	// Payment methods
	GetPayment(ctx context.Context, token uuid.UUID) (*payment.Event, error)
	ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Event, error)

	// Commit applies one settlement atomically: every transfer plus every
	// record write lands, or none of them do. Drivers must reject the whole
	// commit when any debited account lacks funds.
	Commit(ctx context.Context, c *Commit) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Transfer moves value between two accounts. Amount is debited from From in
// its currency; Credit, when non-zero, is what To receives instead (the two
// differ only on conversion legs). A zero Credit means credit Amount as-is.
type Transfer struct {
	From   keys.Identity
	To     keys.Identity
	Amount types.Money
	Credit types.Money
}

// Credited returns the amount the destination account receives.
func (t Transfer) Credited() types.Money {
	if t.Credit.IsZero() {
		return t.Amount
	}
	return t.Credit
}

// Commit is the atomic write set of one settlement. Nil record pointers are
// skipped; non-nil ones are upserted by address (or token, for payments).
type Commit struct {
	Transfers    []Transfer
	Allowance    *allowance.Allowance
	Subscription *subscription.Subscription
	Payment      *payment.Event
}
