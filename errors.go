package payagent

import (
	"errors"
	"fmt"

	"github.com/xraph/payagent/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("payagent: not found")
	ErrAlreadyExists = errors.New("payagent: already exists")
	ErrInvalidInput  = errors.New("payagent: invalid input")
	ErrUnauthorized  = errors.New("payagent: unauthorized")

	// Account errors
	ErrAccountNotFound   = errors.New("payagent: account not found")
	ErrAccountExists     = errors.New("payagent: account already exists")
	ErrInsufficientFunds = errors.New("payagent: insufficient funds")
	ErrCurrencyMismatch  = errors.New("payagent: currency mismatch")

	// Allowance errors
	ErrAllowanceNotFound  = errors.New("payagent: allowance not found")
	ErrAllowanceExists    = errors.New("payagent: allowance already exists")
	ErrAllowanceClosed    = errors.New("payagent: allowance is closed")
	ErrInvalidAuthority   = errors.New("payagent: caller is not an authority for this record")
	ErrInsufficientBudget = errors.New("payagent: insufficient delegated budget")
	ErrOutsideWindow      = errors.New("payagent: outside validity window")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("payagent: subscription not found")
	ErrSubscriptionExists   = errors.New("payagent: subscription already exists")
	ErrSubscriptionClosed   = errors.New("payagent: subscription is closed")
	ErrScheduleNotDue       = errors.New("payagent: rebill is not due yet")
	ErrScheduleExpired      = errors.New("payagent: rebill window has expired")
	ErrRebillLimitReached   = errors.New("payagent: rebill limit reached")

	// Settlement errors
	ErrDuplicatePayment = errors.New("payagent: duplicate payment token")
	ErrSwapFailed       = errors.New("payagent: swap execution failed")

	// ErrArithmeticOverflow reports checked money arithmetic exceeding the
	// representable range. Aliased so errors.Is works across packages.
	ErrArithmeticOverflow = types.ErrOverflow

	// Store errors
	ErrStoreNotReady     = errors.New("payagent: store not ready")
	ErrStoreClosed       = errors.New("payagent: store is closed")
	ErrTransactionFailed = errors.New("payagent: transaction failed")
	ErrMigrationFailed   = errors.New("payagent: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("payagent: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAllowanceNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsBudgetError returns true if the error is related to budgets or balances.
func IsBudgetError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientBudget)
}

// IsScheduleError returns true if the error came from rebill timing checks.
func IsScheduleError(err error) bool {
	return errors.Is(err, ErrScheduleNotDue) ||
		errors.Is(err, ErrScheduleExpired) ||
		errors.Is(err, ErrRebillLimitReached)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrSwapFailed)
}
