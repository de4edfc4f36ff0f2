package extension

// Config holds the payment agent extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.payagent" or "payagent" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// StoreDSN selects and configures the store backend
	// (memory://, sqlite://, postgres://, mongodb://). Ignored when a
	// store was provided programmatically via WithStore.
	StoreDSN string `json:"store_dsn" mapstructure:"store_dsn" yaml:"store_dsn"`

	// RegistryPath is an optional path to a TOML network registry file.
	// When set, the agent's namespace, fee schedule, and fee account are
	// taken from the registry.
	RegistryPath string `json:"registry_path" mapstructure:"registry_path" yaml:"registry_path"`

	// Namespace seeds the address derivation domain. Ignored when
	// RegistryPath is set.
	Namespace string `json:"namespace" mapstructure:"namespace" yaml:"namespace"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreDSN: "memory://",
	}
}
