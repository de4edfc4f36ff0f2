// Package subscription defines recurring billing contracts and their
// calendar-aware schedule arithmetic.
package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/types"
)

// SwapConfig is the optional currency-conversion leg applied to a charge
// before merchant payout.
type SwapConfig struct {
	Enabled        bool   `json:"enabled"`
	Direction      bool   `json:"direction"` // true = sell source for target
	TargetCurrency string `json:"target_currency,omitempty"`
}

// Subscription is a recurring billing contract. The owner funds it, the
// merchant receives settlement proceeds, and the optional manager may
// trigger scheduled charges on the owner's behalf.
//
// The record identity is derived from (owner, merchant, ID) under the
// engine namespace; callers deduplicate contracts by derivation.
type Subscription struct {
	types.Entity
	Address         keys.Identity `json:"address"`
	ID              uuid.UUID     `json:"id"`
	Owner           keys.Identity `json:"owner"`
	Merchant        keys.Identity `json:"merchant"`
	MerchantAccount keys.Identity `json:"merchant_account"`
	Manager         keys.Identity `json:"manager,omitzero"`
	FundingAccount  keys.Identity `json:"funding_account"`

	Period         Period        `json:"period"`
	PeriodBudget   types.Money   `json:"period_budget"`
	UseTotalBudget bool          `json:"use_total_budget"`
	TotalBudget    types.Money   `json:"total_budget,omitzero"`
	TotalConsumed  types.Money   `json:"total_consumed,omitzero"`
	NextRebill     time.Time     `json:"next_rebill"`
	RebillCount    uint32        `json:"rebill_count"`
	RebillMax      uint32        `json:"rebill_max"` // 0 = unlimited
	MaxDelay       time.Duration `json:"max_delay"`  // grace past NextRebill; 0 = unbounded
	ValidFrom      time.Time     `json:"valid_from,omitzero"`
	ValidUntil     time.Time     `json:"valid_until,omitzero"`
	Swap           SwapConfig    `json:"swap,omitzero"`

	Active   bool       `json:"active"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// WindowContains reports whether now falls inside the validity window.
// Zero bounds are unbounded.
func (s *Subscription) WindowContains(now time.Time) bool {
	if !s.ValidFrom.IsZero() && now.Before(s.ValidFrom) {
		return false
	}
	if !s.ValidUntil.IsZero() && now.After(s.ValidUntil) {
		return false
	}
	return true
}

// RebillExhausted reports whether the rebill cap has been reached.
func (s *Subscription) RebillExhausted() bool {
	return s.RebillMax > 0 && s.RebillCount >= s.RebillMax
}

// ListOpts filters subscription listings.
type ListOpts struct {
	ActiveOnly bool
	Merchant   keys.Identity
	Limit      int
	Offset     int
}
