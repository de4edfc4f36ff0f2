package account

import (
	"context"

	"github.com/xraph/payagent/keys"
)

// Store is the account persistence interface.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, acctID keys.Identity) (*Account, error)
}
