package extension

import (
	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/plugin"
	"github.com/xraph/payagent/store"
	"github.com/xraph/payagent/swap"
)

// Option configures the payment agent Forge extension.
type Option func(*Extension)

// WithStore sets the store for the agent engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithAgentOption passes a payagent.Option through to the underlying engine.
func WithAgentOption(opt payagent.Option) Option {
	return func(e *Extension) {
		e.agentOpts = append(e.agentOpts, opt)
	}
}

// WithPlugin registers an agent plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.agentOpts = append(e.agentOpts, payagent.WithPlugin(p))
	}
}

// WithSwapAdapter sets the swap adapter used for currency conversion.
func WithSwapAdapter(ad swap.Adapter) Option {
	return func(e *Extension) {
		e.agentOpts = append(e.agentOpts, payagent.WithSwapAdapter(ad))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithStoreDSN sets the store DSN used when no store is provided.
func WithStoreDSN(dsn string) Option {
	return func(e *Extension) { e.config.StoreDSN = dsn }
}

// WithRegistryPath sets the path to a TOML network registry file.
func WithRegistryPath(path string) Option {
	return func(e *Extension) { e.config.RegistryPath = path }
}

// WithNamespace sets the address derivation namespace seed.
func WithNamespace(ns string) Option {
	return func(e *Extension) { e.config.Namespace = ns }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
