package audithook

// Action constants for audit events.
const (
	// Allowance actions
	ActionAllowanceCreated  = "allowance.created"
	ActionAllowanceUpdated  = "allowance.updated"
	ActionAllowanceClosed   = "allowance.closed"
	ActionDelegatedTransfer = "allowance.transfer"

	// Subscription actions
	ActionSubscriptionCreated = "subscription.created"
	ActionSubscriptionUpdated = "subscription.updated"
	ActionSubscriptionClosed  = "subscription.closed"
	ActionScheduleAdvanced    = "subscription.rebilled"

	// Settlement actions
	ActionPaymentSettled = "payment.settled"
	ActionSwapExecuted   = "swap.executed"
)

// Resource constants for audit events.
const (
	ResourceAllowance    = "allowance"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceSwap         = "swap"
)

// Category constants for audit events.
const (
	CategoryAuthorization = "authorization"
	CategorySubscription  = "subscription"
	CategorySettlement    = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
