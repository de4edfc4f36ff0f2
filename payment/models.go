// Package payment defines settled payment events, the audit record of every
// settlement attempt that committed.
package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/xraph/payagent/id"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/types"
)

// Origin identifies which authorization path produced a payment event.
type Origin string

const (
	OriginSubscription Origin = "subscription" // scheduled charge via Process
	OriginInitial      Origin = "initial"      // immediate first charge at Subscribe
	OriginMerchantPay  Origin = "merchant_payment"
	OriginMerchantRecv Origin = "merchant_receive"
)

// Event is the result of one successful settlement. The caller-supplied
// Token is the idempotency key: one-off settlements replaying a token are
// rejected before any value moves.
type Event struct {
	types.Entity
	ID    id.PaymentID `json:"id"`
	Token uuid.UUID    `json:"token"`

	// At most one origin reference is set, matching the Origin.
	Origin       Origin        `json:"origin"`
	Subscription keys.Identity `json:"subscription,omitzero"`
	Allowance    keys.Identity `json:"allowance,omitzero"`

	Payer    keys.Identity `json:"payer"`
	Merchant keys.Identity `json:"merchant"`

	Gross     types.Money `json:"gross"`
	Fee       types.Money `json:"fee"`
	Net       types.Money `json:"net"`
	Converted types.Money `json:"converted,omitzero"` // post-swap payout, if swapped

	AppliedAt time.Time `json:"applied_at"`
}

// Swapped reports whether a conversion leg executed for this event.
func (e *Event) Swapped() bool { return !e.Converted.IsZero() }

// ListOpts filters payment event listings.
type ListOpts struct {
	Origin       Origin
	Subscription keys.Identity
	Merchant     keys.Identity
	Limit        int
	Offset       int
}
