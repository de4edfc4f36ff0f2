// Package audithook bridges payment agent lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/plugin"
	"github.com/xraph/payagent/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAllowanceCreated    = (*Extension)(nil)
	_ plugin.OnAllowanceUpdated    = (*Extension)(nil)
	_ plugin.OnAllowanceClosed     = (*Extension)(nil)
	_ plugin.OnDelegatedTransfer   = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnSubscriptionUpdated = (*Extension)(nil)
	_ plugin.OnSubscriptionClosed  = (*Extension)(nil)
	_ plugin.OnScheduleAdvanced    = (*Extension)(nil)
	_ plugin.OnPaymentSettled      = (*Extension)(nil)
	_ plugin.OnSwapExecuted        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not import
// any audit store directly — callers inject the concrete backend at
// wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges payment agent lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Allowance lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated implements plugin.OnAllowanceCreated.
func (e *Extension) OnAllowanceCreated(ctx context.Context, grant interface{}) error {
	return e.record(ctx, ActionAllowanceCreated, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, allowanceID(grant), CategoryAuthorization, nil,
		"event", "allowance_created",
	)
}

// OnAllowanceUpdated implements plugin.OnAllowanceUpdated.
func (e *Extension) OnAllowanceUpdated(ctx context.Context, grant interface{}) error {
	return e.record(ctx, ActionAllowanceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, allowanceID(grant), CategoryAuthorization, nil,
		"event", "allowance_updated",
	)
}

// OnAllowanceClosed implements plugin.OnAllowanceClosed.
func (e *Extension) OnAllowanceClosed(ctx context.Context, grant interface{}) error {
	return e.record(ctx, ActionAllowanceClosed, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, allowanceID(grant), CategoryAuthorization, nil,
		"event", "allowance_closed",
	)
}

// OnDelegatedTransfer implements plugin.OnDelegatedTransfer.
func (e *Extension) OnDelegatedTransfer(ctx context.Context, grant, amount interface{}) error {
	return e.record(ctx, ActionDelegatedTransfer, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, allowanceID(grant), CategoryAuthorization, nil,
		"event", "delegated_transfer",
		"amount", fmt.Sprintf("%v", amount),
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub interface{}) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"event", "subscription_created",
	)
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (e *Extension) OnSubscriptionUpdated(ctx context.Context, sub interface{}) error {
	return e.record(ctx, ActionSubscriptionUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"event", "subscription_updated",
	)
}

// OnSubscriptionClosed implements plugin.OnSubscriptionClosed.
func (e *Extension) OnSubscriptionClosed(ctx context.Context, sub interface{}) error {
	return e.record(ctx, ActionSubscriptionClosed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"event", "subscription_closed",
	)
}

// OnScheduleAdvanced implements plugin.OnScheduleAdvanced.
func (e *Extension) OnScheduleAdvanced(ctx context.Context, sub interface{}, nextRebill time.Time) error {
	return e.record(ctx, ActionScheduleAdvanced, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"event", "schedule_advanced",
		"next_rebill", nextRebill.UTC().Format(time.RFC3339),
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPaymentSettled implements plugin.OnPaymentSettled.
func (e *Extension) OnPaymentSettled(ctx context.Context, event interface{}) error {
	meta := []any{"event", "payment_settled"}
	id := ""
	if p, ok := event.(*payment.Event); ok {
		id = p.Token.String()
		meta = append(meta,
			"origin", p.Origin,
			"gross", p.Gross.String(),
			"fee", p.Fee.String(),
			"net", p.Net.String(),
		)
	}
	return e.record(ctx, ActionPaymentSettled, SeverityInfo, OutcomeSuccess,
		ResourcePayment, id, CategorySettlement, nil, meta...)
}

// OnSwapExecuted implements plugin.OnSwapExecuted.
func (e *Extension) OnSwapExecuted(ctx context.Context, source, converted interface{}) error {
	return e.record(ctx, ActionSwapExecuted, SeverityInfo, OutcomeSuccess,
		ResourceSwap, "", CategorySettlement, nil,
		"event", "swap_executed",
		"source", fmt.Sprintf("%v", source),
		"converted", fmt.Sprintf("%v", converted),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func allowanceID(grant interface{}) string {
	if a, ok := grant.(*allowance.Allowance); ok {
		return a.Address.String()
	}
	return ""
}

func subscriptionID(sub interface{}) string {
	if s, ok := sub.(*subscription.Subscription); ok {
		return s.Address.String()
	}
	return ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
