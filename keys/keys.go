// Package keys implements deterministic account address derivation.
//
// Every record the protocol owns (allowances, subscriptions, settlement
// accounts) lives at an identity derived from a namespace identity plus an
// ordered sequence of seed byte-strings. Derivation is pure: the same seeds
// and namespace always resolve to the same identity and bump nonce, so
// callers can locate records without a lookup table and deduplicate
// creations by construction.
package keys

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// IdentityLen is the byte length of an account identity.
const IdentityLen = 32

// Identity is a 32-byte account identity.
type Identity [IdentityLen]byte

// Nil is the zero-value Identity.
var Nil Identity

// derivationTag domain-separates derived identities from raw key material.
const derivationTag = "payagent:derive:v1"

// Derive resolves an ordered seed sequence under a namespace identity to a
// deterministic account identity and its bump nonce.
//
// Candidate identities are produced from the highest nonce downward and the
// first candidate whose leading byte is non-zero wins; a leading zero byte
// marks the reserved (colliding) plane and is skipped. Derivation fails only
// if all 256 nonces are exhausted.
func Derive(namespace Identity, seeds ...[]byte) (Identity, uint8, error) {
	for nonce := 255; nonce >= 0; nonce-- {
		candidate := deriveOnce(namespace, uint8(nonce), seeds)
		if candidate[0] != 0 {
			return candidate, uint8(nonce), nil
		}
	}
	return Nil, 0, fmt.Errorf("keys: seed derivation exhausted for namespace %s", namespace)
}

// DeriveAt recomputes the identity for a known bump nonce. It verifies the
// nonce actually yields a valid identity so stale nonces are rejected.
func DeriveAt(namespace Identity, nonce uint8, seeds ...[]byte) (Identity, error) {
	candidate := deriveOnce(namespace, nonce, seeds)
	if candidate[0] == 0 {
		return Nil, fmt.Errorf("keys: nonce %d does not resolve a valid identity", nonce)
	}
	return candidate, nil
}

func deriveOnce(namespace Identity, nonce uint8, seeds [][]byte) Identity {
	h := blake3.New()
	h.Write([]byte(derivationTag))
	for _, seed := range seeds {
		// Length-prefix each seed so seed boundaries cannot be shifted.
		var n [4]byte
		n[0] = byte(len(seed) >> 24)
		n[1] = byte(len(seed) >> 16)
		n[2] = byte(len(seed) >> 8)
		n[3] = byte(len(seed))
		h.Write(n[:])
		h.Write(seed)
	}
	h.Write([]byte{nonce})
	h.Write(namespace[:])

	var out Identity
	copy(out[:], h.Sum(nil))
	return out
}

// FromSeed builds a root identity directly from raw key material, for
// namespaces and externally-controlled accounts that are not derived.
func FromSeed(seed []byte) Identity {
	var out Identity
	sum := blake3.Sum256(seed)
	copy(out[:], sum[:])
	return out
}

// Parse decodes a 64-character hex string into an Identity.
func Parse(s string) (Identity, error) {
	if len(s) != IdentityLen*2 {
		return Nil, fmt.Errorf("keys: parse %q: want %d hex chars", s, IdentityLen*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Nil, fmt.Errorf("keys: parse %q: %w", s, err)
	}
	var out Identity
	copy(out[:], raw)
	return out, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded identities.
func MustParse(s string) Identity {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("keys: must parse %q: %v", s, err))
	}
	return parsed
}

// IsNil reports whether the identity is the zero value.
func (i Identity) IsNil() bool { return i == Nil }

// Equal reports whether two identities are the same account.
func (i Identity) Equal(other Identity) bool { return i == other }

// Bytes returns the identity as a byte slice, usable as a derivation seed.
func (i Identity) Bytes() []byte { return i[:] }

// String returns the lowercase hex form of the identity.
func (i Identity) String() string { return hex.EncodeToString(i[:]) }

// Short returns an abbreviated form for log output.
func (i Identity) Short() string {
	s := i.String()
	return s[:8] + ".." + s[len(s)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (i Identity) MarshalText() ([]byte, error) {
	if i.IsNil() {
		return []byte{}, nil
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Identity) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil identity so optional columns store NULL.
func (i Identity) Value() (driver.Value, error) {
	if i.IsNil() {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *Identity) Scan(src any) error {
	if src == nil {
		*i = Nil
		return nil
	}
	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil
			return nil
		}
		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil
			return nil
		}
		if len(v) == IdentityLen {
			copy(i[:], v)
			return nil
		}
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("keys: cannot scan %T into Identity", src)
	}
}
