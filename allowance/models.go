// Package allowance defines delegated, budget-capped spending grants.
package allowance

import (
	"time"

	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/types"
)

// Status is the lifecycle state of an allowance. Closed is terminal.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Allowance is a delegated spending grant: the delegate may move value out
// of the owner's funding account until the remaining budget is exhausted,
// the validity window closes, or the owner closes the grant.
//
// The record identity is derived from (funding account, delegate) under the
// engine namespace, so one grant exists per funding-account/delegate pair.
type Allowance struct {
	types.Entity
	Address        keys.Identity `json:"address"`
	Owner          keys.Identity `json:"owner"`
	FundingAccount keys.Identity `json:"funding_account"`
	Delegate       keys.Identity `json:"delegate"`
	Remaining      types.Money   `json:"remaining"`
	// LinkCurrency records the currency binding declared at grant time.
	// Budgets are always denominated in the funding account currency and
	// every transfer path enforces that binding, so the flag is carried as
	// declared intent only.
	LinkCurrency bool       `json:"link_currency"`
	ValidFrom    time.Time  `json:"valid_from,omitzero"`
	ValidUntil   time.Time  `json:"valid_until,omitzero"`
	Status       Status     `json:"status"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// IsActive reports whether the grant has not been closed.
func (a *Allowance) IsActive() bool { return a.Status == StatusActive }

// WindowContains reports whether now falls inside the validity window.
// Zero bounds are unbounded.
func (a *Allowance) WindowContains(now time.Time) bool {
	if !a.ValidFrom.IsZero() && now.Before(a.ValidFrom) {
		return false
	}
	if !a.ValidUntil.IsZero() && now.After(a.ValidUntil) {
		return false
	}
	return true
}

// ListOpts filters allowance listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
