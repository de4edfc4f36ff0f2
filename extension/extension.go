// Package extension provides the Forge extension adapter for the payment
// agent.
//
// It implements the forge.Extension interface to integrate the agent
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.payagent" or
// "payagent" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/netreg"
	"github.com/xraph/payagent/store"
	"github.com/xraph/payagent/store/connect"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "payagent"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Delegated spending and recurring billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the payment agent as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *payagent.Agent
	store     store.Store
	agentOpts []payagent.Option
}

// New creates a new payment agent Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Agent instance.
// This is nil until Register is called.
func (e *Extension) Engine() *payagent.Agent { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the agent engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Open the configured store if none was provided programmatically.
	if e.store == nil {
		s, err := connect.Open(context.Background(), e.config.StoreDSN)
		if err != nil {
			return fmt.Errorf("payagent: open store: %w", err)
		}
		e.store = s
	}

	// Build agent options from resolved config.
	opts, err := e.buildAgentOpts()
	if err != nil {
		return err
	}

	eng := payagent.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*payagent.Agent, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("payagent: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("payagent: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildAgentOpts constructs payagent.Option values from the resolved config.
func (e *Extension) buildAgentOpts() ([]payagent.Option, error) {
	opts := make([]payagent.Option, 0, len(e.agentOpts)+3)

	if e.config.RegistryPath != "" {
		reg, err := netreg.Load(e.config.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("payagent: load registry: %w", err)
		}
		opts = append(opts,
			payagent.WithNamespace(reg.Namespace),
			payagent.WithFeeSchedule(reg.Fees),
		)
		if !reg.FeeAccount.IsNil() {
			opts = append(opts, payagent.WithFeeAccount(reg.FeeAccount))
		}
	} else if e.config.Namespace != "" {
		opts = append(opts, payagent.WithNamespace(keys.FromSeed([]byte(e.config.Namespace))))
	}

	// Append any pass-through agent options.
	opts = append(opts, e.agentOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("payagent: configuration is required but not found in config files; " +
				"ensure 'extensions.payagent' or 'payagent' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("payagent: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_dsn", e.config.StoreDSN),
		forge.F("registry_path", e.config.RegistryPath),
		forge.F("namespace", e.config.Namespace),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.payagent" first (namespaced pattern).
	if cm.IsSet("extensions.payagent") {
		if err := cm.Bind("extensions.payagent", &cfg); err == nil {
			e.Logger().Debug("payagent: loaded config from file",
				forge.F("key", "extensions.payagent"),
			)
			return cfg, true
		}
		e.Logger().Warn("payagent: failed to bind extensions.payagent config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "payagent" key.
	if cm.IsSet("payagent") {
		if err := cm.Bind("payagent", &cfg); err == nil {
			e.Logger().Debug("payagent: loaded config from file",
				forge.F("key", "payagent"),
			)
			return cfg, true
		}
		e.Logger().Warn("payagent: failed to bind payagent config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = defaults.StoreDSN
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.StoreDSN == "" && programmaticConfig.StoreDSN != "" {
		yamlConfig.StoreDSN = programmaticConfig.StoreDSN
	}
	if yamlConfig.RegistryPath == "" && programmaticConfig.RegistryPath != "" {
		yamlConfig.RegistryPath = programmaticConfig.RegistryPath
	}
	if yamlConfig.Namespace == "" && programmaticConfig.Namespace != "" {
		yamlConfig.Namespace = programmaticConfig.Namespace
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
