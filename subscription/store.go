package subscription

import (
	"context"

	"github.com/xraph/payagent/keys"
)

// Store is the subscription persistence interface.
type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, addr keys.Identity) (*Subscription, error)
	ListSubscriptions(ctx context.Context, owner keys.Identity, opts ListOpts) ([]*Subscription, error)
}
