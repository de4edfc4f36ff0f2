// Package swap defines the currency-conversion capability consumed by the
// settlement engine.
//
// The engine treats conversion as an opaque collaborator: it hands the
// adapter a source amount and a currency pair and gets back either the
// converted amount or a failure that aborts the whole settlement. Pricing,
// liquidity and venue mechanics stay behind the Adapter interface.
package swap

import (
	"context"
	"fmt"

	"github.com/xraph/payagent/types"
)

// Direction selects which side of the pair is being sold.
type Direction bool

const (
	// SellSource converts the settlement currency into the target currency.
	SellSource Direction = true
	// BuySource converts from the target currency into the settlement currency.
	BuySource Direction = false
)

// Request describes one conversion.
type Request struct {
	Amount         types.Money
	Direction      Direction
	TargetCurrency string
}

// Result reports a completed conversion.
type Result struct {
	Converted types.Money
}

// Adapter executes conversions atomically: either the full source amount is
// converted and the result reported, or the call fails and nothing moved.
type Adapter interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// FixedRate is an Adapter quoting a constant rational rate
// (converted = amount * RateNum / RateDen). Useful for fixture ledgers and
// deployments with an external price oracle feeding a pinned rate.
type FixedRate struct {
	RateNum int64
	RateDen int64
}

// Execute implements Adapter.
func (f FixedRate) Execute(_ context.Context, req Request) (Result, error) {
	if f.RateDen == 0 || f.RateNum <= 0 {
		return Result{}, fmt.Errorf("swap: invalid fixed rate %d/%d", f.RateNum, f.RateDen)
	}
	if req.Amount.IsNegative() {
		return Result{}, fmt.Errorf("swap: negative amount %s", req.Amount)
	}
	if req.TargetCurrency == "" {
		return Result{}, fmt.Errorf("swap: missing target currency")
	}

	out := req.Amount.Amount / f.RateDen
	rem := req.Amount.Amount % f.RateDen
	converted := out*f.RateNum + rem*f.RateNum/f.RateDen
	return Result{Converted: types.Units(req.TargetCurrency, converted)}, nil
}

// Failing is an Adapter that always fails. Useful for exercising the
// abort-on-swap-failure path in tests.
type Failing struct{ Err error }

// Execute implements Adapter.
func (f Failing) Execute(context.Context, Request) (Result, error) {
	if f.Err != nil {
		return Result{}, f.Err
	}
	return Result{}, fmt.Errorf("swap: adapter unavailable")
}
