package keys

import (
	"bytes"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	ns := FromSeed([]byte("test-namespace"))
	owner := FromSeed([]byte("owner"))
	delegate := FromSeed([]byte("delegate"))

	first, nonce1, err := Derive(ns, owner.Bytes(), delegate.Bytes())
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}
	second, nonce2, err := Derive(ns, owner.Bytes(), delegate.Bytes())
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if !first.Equal(second) {
		t.Errorf("Same seeds derived different identities: %s vs %s", first, second)
	}
	if nonce1 != nonce2 {
		t.Errorf("Same seeds derived different nonces: %d vs %d", nonce1, nonce2)
	}
	if first.IsNil() {
		t.Error("Derived identity is nil")
	}
	if first[0] == 0 {
		t.Error("Derived identity has a reserved leading zero byte")
	}
}

func TestDeriveSeedOrderMatters(t *testing.T) {
	ns := FromSeed([]byte("test-namespace"))
	a := []byte("alpha")
	b := []byte("beta")

	ab, _, err := Derive(ns, a, b)
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}
	ba, _, err := Derive(ns, b, a)
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if ab.Equal(ba) {
		t.Error("Seed order should change the derived identity")
	}
}

func TestDeriveSeedBoundaries(t *testing.T) {
	// Length prefixing must keep ("ab","c") distinct from ("a","bc").
	ns := FromSeed([]byte("test-namespace"))

	first, _, err := Derive(ns, []byte("ab"), []byte("c"))
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}
	second, _, err := Derive(ns, []byte("a"), []byte("bc"))
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if first.Equal(second) {
		t.Error("Shifted seed boundaries should change the derived identity")
	}
}

func TestDeriveNamespaceIsolation(t *testing.T) {
	seed := []byte("shared-seed")

	first, _, err := Derive(FromSeed([]byte("ns-one")), seed)
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}
	second, _, err := Derive(FromSeed([]byte("ns-two")), seed)
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	if first.Equal(second) {
		t.Error("Different namespaces should derive different identities")
	}
}

func TestDeriveAt(t *testing.T) {
	ns := FromSeed([]byte("test-namespace"))
	seed := []byte("record")

	derived, nonce, err := Derive(ns, seed)
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}

	recomputed, err := DeriveAt(ns, nonce, seed)
	if err != nil {
		t.Fatalf("DeriveAt error: %v", err)
	}
	if !recomputed.Equal(derived) {
		t.Errorf("DeriveAt: got %s, want %s", recomputed, derived)
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	a := FromSeed([]byte("alice"))
	b := FromSeed([]byte("alice"))
	c := FromSeed([]byte("bob"))

	if !a.Equal(b) {
		t.Error("FromSeed should be deterministic")
	}
	if a.Equal(c) {
		t.Error("Different seeds should produce different identities")
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := FromSeed([]byte("round-trip"))

	parsed, err := Parse(original.String())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !parsed.Equal(original) {
		t.Errorf("Round trip: got %s, want %s", parsed, original)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"Too short", "abcd"},
		{"Too long", FromSeed([]byte("x")).String() + "00"},
		{"Not hex", "zz" + FromSeed([]byte("x")).String()[2:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) should fail", tt.input)
			}
		})
	}
}

func TestIdentityTextMarshaling(t *testing.T) {
	id := FromSeed([]byte("marshal"))

	data, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}

	var decoded Identity
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText error: %v", err)
	}
	if !decoded.Equal(id) {
		t.Errorf("Round trip: got %s, want %s", decoded, id)
	}

	// Nil marshals to empty and back.
	data, err = Nil.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Nil should marshal to empty text, got %q", data)
	}
	var nilDecoded Identity
	if err := nilDecoded.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText error: %v", err)
	}
	if !nilDecoded.IsNil() {
		t.Error("Empty text should unmarshal to Nil")
	}
}

func TestIdentityScan(t *testing.T) {
	id := FromSeed([]byte("scan"))

	tests := []struct {
		name string
		src  any
		want Identity
	}{
		{"String", id.String(), id},
		{"Bytes hex", []byte(id.String()), id},
		{"Bytes raw", id.Bytes(), id},
		{"Nil source", nil, Nil},
		{"Empty string", "", Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			if err := got.Scan(tt.src); err != nil {
				t.Fatalf("Scan error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Scan: got %s, want %s", got, tt.want)
			}
		})
	}

	var bad Identity
	if err := bad.Scan(42); err == nil {
		t.Error("Scan of unsupported type should fail")
	}
}

func TestIdentityShort(t *testing.T) {
	id := FromSeed([]byte("short"))
	short := id.Short()

	if len(short) != 14 {
		t.Errorf("Short length: got %d, want 14", len(short))
	}
	if !bytes.HasPrefix([]byte(id.String()), []byte(short[:8])) {
		t.Errorf("Short prefix %q does not match identity %s", short[:8], id)
	}
}
