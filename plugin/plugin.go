// Package plugin provides an extensible plugin system for the payment agent.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, agent interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Allowance lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated is called when a new allowance is created.
type OnAllowanceCreated interface {
	Plugin
	OnAllowanceCreated(ctx context.Context, grant interface{}) error
}

// OnAllowanceUpdated is called when an allowance budget or window changes.
type OnAllowanceUpdated interface {
	Plugin
	OnAllowanceUpdated(ctx context.Context, grant interface{}) error
}

// OnAllowanceClosed is called when an allowance is closed.
type OnAllowanceClosed interface {
	Plugin
	OnAllowanceClosed(ctx context.Context, grant interface{}) error
}

// OnDelegatedTransfer is called after a delegate moves value under a grant.
type OnDelegatedTransfer interface {
	Plugin
	OnDelegatedTransfer(ctx context.Context, grant interface{}, amount interface{}) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a new subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub interface{}) error
}

// OnSubscriptionUpdated is called when subscription terms change.
type OnSubscriptionUpdated interface {
	Plugin
	OnSubscriptionUpdated(ctx context.Context, sub interface{}) error
}

// OnSubscriptionClosed is called when a subscription is closed.
type OnSubscriptionClosed interface {
	Plugin
	OnSubscriptionClosed(ctx context.Context, sub interface{}) error
}

// OnScheduleAdvanced is called after a rebill moves the schedule forward.
type OnScheduleAdvanced interface {
	Plugin
	OnScheduleAdvanced(ctx context.Context, sub interface{}, nextRebill time.Time) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPaymentSettled is called after any settlement commits.
type OnPaymentSettled interface {
	Plugin
	OnPaymentSettled(ctx context.Context, event interface{}) error
}

// OnSwapExecuted is called after a conversion leg completes.
type OnSwapExecuted interface {
	Plugin
	OnSwapExecuted(ctx context.Context, source, converted interface{}) error
}

// ──────────────────────────────────────────────────
// Swap providers
// ──────────────────────────────────────────────────

// SwapProviderPlugin provides a conversion venue implementation.
type SwapProviderPlugin interface {
	Plugin
	Adapter() interface{} // Returns swap.Adapter
}
