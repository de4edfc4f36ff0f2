package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAllowanceCreated    []OnAllowanceCreated
	onAllowanceUpdated    []OnAllowanceUpdated
	onAllowanceClosed     []OnAllowanceClosed
	onDelegatedTransfer   []OnDelegatedTransfer
	onSubscriptionCreated []OnSubscriptionCreated
	onSubscriptionUpdated []OnSubscriptionUpdated
	onSubscriptionClosed  []OnSubscriptionClosed
	onScheduleAdvanced    []OnScheduleAdvanced
	onPaymentSettled      []OnPaymentSettled
	onSwapExecuted        []OnSwapExecuted
	swapProviders         []SwapProviderPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAllowanceCreated); ok {
		r.onAllowanceCreated = append(r.onAllowanceCreated, v)
	}
	if v, ok := p.(OnAllowanceUpdated); ok {
		r.onAllowanceUpdated = append(r.onAllowanceUpdated, v)
	}
	if v, ok := p.(OnAllowanceClosed); ok {
		r.onAllowanceClosed = append(r.onAllowanceClosed, v)
	}
	if v, ok := p.(OnDelegatedTransfer); ok {
		r.onDelegatedTransfer = append(r.onDelegatedTransfer, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionUpdated); ok {
		r.onSubscriptionUpdated = append(r.onSubscriptionUpdated, v)
	}
	if v, ok := p.(OnSubscriptionClosed); ok {
		r.onSubscriptionClosed = append(r.onSubscriptionClosed, v)
	}
	if v, ok := p.(OnScheduleAdvanced); ok {
		r.onScheduleAdvanced = append(r.onScheduleAdvanced, v)
	}
	if v, ok := p.(OnPaymentSettled); ok {
		r.onPaymentSettled = append(r.onPaymentSettled, v)
	}
	if v, ok := p.(OnSwapExecuted); ok {
		r.onSwapExecuted = append(r.onSwapExecuted, v)
	}
	if v, ok := p.(SwapProviderPlugin); ok {
		r.swapProviders = append(r.swapProviders, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAllowanceCreated)(nil)).Elem(), "OnAllowanceCreated")
	checkInterface(reflect.TypeOf((*OnDelegatedTransfer)(nil)).Elem(), "OnDelegatedTransfer")
	checkInterface(reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem(), "OnSubscriptionCreated")
	checkInterface(reflect.TypeOf((*OnScheduleAdvanced)(nil)).Elem(), "OnScheduleAdvanced")
	checkInterface(reflect.TypeOf((*OnPaymentSettled)(nil)).Elem(), "OnPaymentSettled")
	checkInterface(reflect.TypeOf((*OnSwapExecuted)(nil)).Elem(), "OnSwapExecuted")
	checkInterface(reflect.TypeOf((*SwapProviderPlugin)(nil)).Elem(), "SwapProvider")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, agent interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, agent)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAllowanceCreated emits an allowance created event.
func (r *Registry) EmitAllowanceCreated(ctx context.Context, grant interface{}) {
	r.mu.RLock()
	plugins := r.onAllowanceCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllowanceCreated(ctx, grant)
		}); err != nil {
			r.logger.Warn("plugin OnAllowanceCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAllowanceUpdated emits an allowance updated event.
func (r *Registry) EmitAllowanceUpdated(ctx context.Context, grant interface{}) {
	r.mu.RLock()
	plugins := r.onAllowanceUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllowanceUpdated(ctx, grant)
		}); err != nil {
			r.logger.Warn("plugin OnAllowanceUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAllowanceClosed emits an allowance closed event.
func (r *Registry) EmitAllowanceClosed(ctx context.Context, grant interface{}) {
	r.mu.RLock()
	plugins := r.onAllowanceClosed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllowanceClosed(ctx, grant)
		}); err != nil {
			r.logger.Warn("plugin OnAllowanceClosed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDelegatedTransfer emits a delegated transfer event.
func (r *Registry) EmitDelegatedTransfer(ctx context.Context, grant, amount interface{}) {
	r.mu.RLock()
	plugins := r.onDelegatedTransfer
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDelegatedTransfer(ctx, grant, amount)
		}); err != nil {
			r.logger.Warn("plugin OnDelegatedTransfer failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCreated(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionUpdated emits a subscription updated event.
func (r *Registry) EmitSubscriptionUpdated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionUpdated(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionClosed emits a subscription closed event.
func (r *Registry) EmitSubscriptionClosed(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionClosed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionClosed(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionClosed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitScheduleAdvanced emits a schedule advanced event.
func (r *Registry) EmitScheduleAdvanced(ctx context.Context, sub interface{}, nextRebill time.Time) {
	r.mu.RLock()
	plugins := r.onScheduleAdvanced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnScheduleAdvanced(ctx, sub, nextRebill)
		}); err != nil {
			r.logger.Warn("plugin OnScheduleAdvanced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentSettled emits a payment settled event.
func (r *Registry) EmitPaymentSettled(ctx context.Context, event interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentSettled(ctx, event)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentSettled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSwapExecuted emits a swap executed event.
func (r *Registry) EmitSwapExecuted(ctx context.Context, source, converted interface{}) {
	r.mu.RLock()
	plugins := r.onSwapExecuted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSwapExecuted(ctx, source, converted)
		}); err != nil {
			r.logger.Warn("plugin OnSwapExecuted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetSwapProviders returns all registered swap provider plugins.
func (r *Registry) GetSwapProviders() []SwapProviderPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]SwapProviderPlugin, len(r.swapProviders))
	copy(result, r.swapProviders)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
