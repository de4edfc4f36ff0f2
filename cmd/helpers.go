package cmd

import (
	"fmt"
	"time"

	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/types"
)

// parseIdentity accepts either a 64-character hex address or an arbitrary
// string, which is hashed into a deterministic identity. The latter keeps
// ad-hoc testing ergonomic ("alice" is always the same address).
func parseIdentity(s string) (keys.Identity, error) {
	if s == "" {
		return keys.Identity{}, fmt.Errorf("empty identity")
	}
	if id, err := keys.Parse(s); err == nil {
		return id, nil
	}
	return keys.FromSeed([]byte(s)), nil
}

func parseMoney(units int64, currency string) (types.Money, error) {
	if currency == "" {
		return types.Money{}, fmt.Errorf("currency is required")
	}
	return types.Units(currency, units), nil
}

// parseTimeFlag parses an RFC3339 timestamp, returning the zero time for "".
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
