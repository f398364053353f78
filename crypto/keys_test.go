package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, 20)
	addr := NewAddress(StablePrefix, raw)

	encoded := addr.String()
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if decoded.Prefix() != StablePrefix {
		t.Fatalf("unexpected prefix: %s", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-bech32", "stb1qqqq"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected rejection for %q", input)
		}
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	first := ModuleAddress("stable")
	second := ModuleAddress("stable")
	if !first.Equal(second) {
		t.Fatalf("module address not deterministic")
	}
	other := ModuleAddress("oracle")
	if first.Equal(other) {
		t.Fatalf("distinct modules share an address")
	}
	if first.IsZero() {
		t.Fatalf("module address is zero")
	}
}

func TestGeneratedKeyAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.IsZero() {
		t.Fatalf("derived address is zero")
	}
	if len(addr.Bytes()) != 20 {
		t.Fatalf("unexpected address length: %d", len(addr.Bytes()))
	}
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode derived address: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("derived address did not round trip")
	}
}
