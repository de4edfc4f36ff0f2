// Package observability provides a metrics extension for the payment agent
// that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceCreated    = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceClosed     = (*MetricsExtension)(nil)
	_ plugin.OnDelegatedTransfer   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpdated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionClosed  = (*MetricsExtension)(nil)
	_ plugin.OnScheduleAdvanced    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentSettled      = (*MetricsExtension)(nil)
	_ plugin.OnSwapExecuted        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an agent plugin to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Allowance metrics
	AllowanceCreated   Counter
	AllowanceUpdated   Counter
	AllowanceClosed    Counter
	DelegatedTransfers Counter

	// Subscription metrics
	SubscriptionCreated Counter
	SubscriptionUpdated Counter
	SubscriptionClosed  Counter
	ScheduleAdvanced    Counter

	// Settlement metrics
	PaymentsSettled Counter
	SwapsExecuted   Counter
	GrossSettled    Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Allowance metrics
		AllowanceCreated:   factory.Counter("payagent.allowance.created"),
		AllowanceUpdated:   factory.Counter("payagent.allowance.updated"),
		AllowanceClosed:    factory.Counter("payagent.allowance.closed"),
		DelegatedTransfers: factory.Counter("payagent.allowance.transfers"),

		// Subscription metrics
		SubscriptionCreated: factory.Counter("payagent.subscription.created"),
		SubscriptionUpdated: factory.Counter("payagent.subscription.updated"),
		SubscriptionClosed:  factory.Counter("payagent.subscription.closed"),
		ScheduleAdvanced:    factory.Counter("payagent.subscription.rebills"),

		// Settlement metrics
		PaymentsSettled: factory.Counter("payagent.payment.settled"),
		SwapsExecuted:   factory.Counter("payagent.swap.executed"),
		GrossSettled:    factory.Histogram("payagent.payment.gross_units"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Allowance lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllowanceCreated implements plugin.OnAllowanceCreated.
func (m *MetricsExtension) OnAllowanceCreated(_ context.Context, _ interface{}) error {
	m.AllowanceCreated.Inc()
	return nil
}

// OnAllowanceUpdated implements plugin.OnAllowanceUpdated.
func (m *MetricsExtension) OnAllowanceUpdated(_ context.Context, _ interface{}) error {
	m.AllowanceUpdated.Inc()
	return nil
}

// OnAllowanceClosed implements plugin.OnAllowanceClosed.
func (m *MetricsExtension) OnAllowanceClosed(_ context.Context, _ interface{}) error {
	m.AllowanceClosed.Inc()
	return nil
}

// OnDelegatedTransfer implements plugin.OnDelegatedTransfer.
func (m *MetricsExtension) OnDelegatedTransfer(_ context.Context, _, _ interface{}) error {
	m.DelegatedTransfers.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (m *MetricsExtension) OnSubscriptionUpdated(_ context.Context, _ interface{}) error {
	m.SubscriptionUpdated.Inc()
	return nil
}

// OnSubscriptionClosed implements plugin.OnSubscriptionClosed.
func (m *MetricsExtension) OnSubscriptionClosed(_ context.Context, _ interface{}) error {
	m.SubscriptionClosed.Inc()
	return nil
}

// OnScheduleAdvanced implements plugin.OnScheduleAdvanced.
func (m *MetricsExtension) OnScheduleAdvanced(_ context.Context, _ interface{}, _ time.Time) error {
	m.ScheduleAdvanced.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnPaymentSettled implements plugin.OnPaymentSettled.
func (m *MetricsExtension) OnPaymentSettled(_ context.Context, event interface{}) error {
	m.PaymentsSettled.Inc()
	if e, ok := event.(*payment.Event); ok {
		m.GrossSettled.Observe(float64(e.Gross.Amount))
	}
	return nil
}

// OnSwapExecuted implements plugin.OnSwapExecuted.
func (m *MetricsExtension) OnSwapExecuted(_ context.Context, _, _ interface{}) error {
	m.SwapsExecuted.Inc()
	return nil
}
