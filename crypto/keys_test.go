package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := MustNewAddress(raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("expected %s prefix, got %s", AddressPrefix, encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bytes() != raw {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), raw)
	}
}

func TestDecodeAddressRejectsBadInput(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatalf("expected error for malformed input")
	}

	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	foreign := key.PubKey().Address().String()
	tampered := "nhb" + strings.TrimPrefix(foreign, AddressPrefix)
	if _, err := DecodeAddress(tampered); err == nil {
		t.Fatalf("expected error for wrong prefix")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := NewAddress(make([]byte, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !bytes.Equal(restored.Bytes(), key.Bytes()) {
		t.Fatalf("secret changed across round trip")
	}
	if restored.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("derived addresses differ")
	}
}
