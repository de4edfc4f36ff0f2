package payment

import (
	"context"

	"github.com/google/uuid"
)

// Store is the payment event persistence interface.
type Store interface {
	GetPayment(ctx context.Context, token uuid.UUID) (*Event, error)
	ListPayments(ctx context.Context, opts ListOpts) ([]*Event, error)
}
