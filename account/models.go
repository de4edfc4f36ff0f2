// Package account defines settlement accounts, the endpoints of every value
// transfer the engine commits.
package account

import (
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/types"
)

// Account is a single-currency balance record on the ledger. Funding
// accounts, merchant settlement accounts and the fee recipient account are
// all plain Accounts distinguished only by ownership.
type Account struct {
	types.Entity
	ID       keys.Identity `json:"id"`
	Owner    keys.Identity `json:"owner"`
	Currency string        `json:"currency"`
	Balance  types.Money   `json:"balance"`
}

// CanDebit reports whether the account holds at least amount in the
// matching currency.
func (a *Account) CanDebit(amount types.Money) bool {
	return a.Currency == amount.Currency && !a.Balance.LessThan(amount)
}
