// Package netreg loads the network registry: the deployment-level identity
// roster (merchants, fee recipient, settlement currency) every client needs
// before it can address the protocol.
package netreg

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/xraph/payagent/fees"
	"github.com/xraph/payagent/keys"
)

// Merchant is one registered payee.
type Merchant struct {
	Key     keys.Identity `toml:"key"`     // merchant identity (signs merchantReceive)
	Account keys.Identity `toml:"account"` // settlement account credited with net proceeds
}

// SwapVenue configures the fixed-rate conversion venue, when one is used.
type SwapVenue struct {
	TargetCurrency string `toml:"target_currency"`
	RateNum        int64  `toml:"rate_num"`
	RateDen        int64  `toml:"rate_den"`
}

// Registry is the resolved network registry.
type Registry struct {
	Namespace  keys.Identity       `toml:"namespace"`
	Currency   string              `toml:"currency"`
	FeeAccount keys.Identity       `toml:"fee_account"`
	Fees       fees.Schedule       `toml:"fees"`
	Merchants  map[string]Merchant `toml:"merchants"`
	Swap       *SwapVenue          `toml:"swap,omitempty"`
}

// Load reads and validates a registry TOML file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netreg: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates registry TOML.
func Parse(raw []byte) (*Registry, error) {
	var reg Registry
	if err := toml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("netreg: decode: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks the registry for the fields the engine cannot run without.
func (r *Registry) Validate() error {
	if r.Namespace.IsNil() {
		return fmt.Errorf("netreg: missing namespace")
	}
	if r.Currency == "" {
		return fmt.Errorf("netreg: missing settlement currency")
	}
	if r.FeeAccount.IsNil() {
		return fmt.Errorf("netreg: missing fee account")
	}
	if err := r.Fees.Validate(); err != nil {
		return err
	}
	for name, m := range r.Merchants {
		if m.Key.IsNil() || m.Account.IsNil() {
			return fmt.Errorf("netreg: merchant %q missing key or account", name)
		}
	}
	if r.Swap != nil {
		if r.Swap.TargetCurrency == "" || r.Swap.RateDen == 0 || r.Swap.RateNum <= 0 {
			return fmt.Errorf("netreg: invalid swap venue")
		}
	}
	return nil
}

// Merchant resolves a registered merchant by name.
func (r *Registry) Merchant(name string) (Merchant, error) {
	m, ok := r.Merchants[name]
	if !ok {
		return Merchant{}, fmt.Errorf("netreg: unknown merchant %q", name)
	}
	return m, nil
}
