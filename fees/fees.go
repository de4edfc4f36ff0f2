// Package fees implements the protocol fee assessor.
//
// The fee formula is external policy: a deployment injects a Schedule into
// the engine and every settlement assesses its fee through it. Assessment
// is a pure function over the gross amount with the conservation guarantee
// fee + net == gross and net >= 0.
package fees

import (
	"fmt"

	"github.com/xraph/payagent/types"
)

// Schedule is a fee policy: a proportional rate in basis points plus an
// optional flat component, both assessed on the gross amount.
type Schedule struct {
	BasisPoints int64       `json:"basis_points" toml:"basis_points"`
	Flat        types.Money `json:"flat,omitzero" toml:"flat"`
}

// Free is the zero-fee schedule.
var Free = Schedule{}

// Validate checks schedule bounds. The rate may not exceed 100%.
func (s Schedule) Validate() error {
	if s.BasisPoints < 0 || s.BasisPoints > 10000 {
		return fmt.Errorf("fees: basis points out of range: %d", s.BasisPoints)
	}
	if s.Flat.IsNegative() {
		return fmt.Errorf("fees: negative flat fee: %s", s.Flat)
	}
	return nil
}

// Assess splits a gross amount into (fee, net) with fee + net == gross.
//
// The fee is rate + flat, truncated toward zero and capped at the gross
// amount so net never goes negative. Assessment is monotonic in gross and
// fails only on checked-arithmetic overflow.
func (s Schedule) Assess(gross types.Money) (fee, net types.Money, err error) {
	zero := types.Zero(gross.Currency)
	if gross.IsNegative() {
		return zero, zero, fmt.Errorf("fees: negative gross amount: %s", gross)
	}

	fee, err = gross.MulBpsChecked(s.BasisPoints)
	if err != nil {
		return zero, zero, err
	}

	if s.Flat.IsPositive() {
		// An empty flat currency means "whatever the gross is in"; anything
		// else must match the gross currency exactly.
		if s.Flat.Currency != "" && s.Flat.Currency != gross.Currency {
			return zero, zero, fmt.Errorf("fees: flat fee currency %q does not match gross %q", s.Flat.Currency, gross.Currency)
		}
		flat := types.Units(gross.Currency, s.Flat.Amount)
		fee, err = fee.AddChecked(flat)
		if err != nil {
			return zero, zero, err
		}
	}

	// Cap at gross so the payable amount never goes negative.
	fee = fee.Min(gross)

	net, err = gross.SubChecked(fee)
	if err != nil {
		return zero, zero, err
	}
	return fee, net, nil
}
