package allowance

import (
	"context"

	"github.com/xraph/payagent/keys"
)

// Store is the allowance persistence interface.
type Store interface {
	CreateAllowance(ctx context.Context, a *Allowance) error
	GetAllowance(ctx context.Context, addr keys.Identity) (*Allowance, error)
	ListAllowances(ctx context.Context, owner keys.Identity, opts ListOpts) ([]*Allowance, error)
}
