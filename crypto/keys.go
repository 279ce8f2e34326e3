package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable bech32 prefix for ledger accounts.
const AddressPrefix = "twt"

// Address represents a 20-byte account address rendered as twt-bech32.
type Address struct {
	bytes [20]byte
}

// NewAddress wraps a raw 20-byte value.
func NewAddress(b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	var addr Address
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress wraps a fixed 20-byte value; it cannot fail.
func MustNewAddress(b [20]byte) Address {
	return Address{bytes: b}
}

// String renders the address in bech32 with the twt prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the fixed-width raw address.
func (a Address) Bytes() [20]byte {
	return a.bytes
}

// DecodeAddress parses a twt-bech32 string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("invalid address prefix %q, want %q", prefix, AddressPrefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	return NewAddress(conv)
}

// PrivateKey wraps an ECDSA key used by clients to derive their ledger
// address. The ledger itself never holds keys; callers identify themselves by
// address.
type PrivateKey struct {
	PrivateKey *ecdsa.PrivateKey
}

// PublicKey wraps the public half of a client key.
type PublicKey struct {
	PublicKey *ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// PrivateKeyFromBytes restores a key from its 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// Bytes returns the 32-byte secret.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{PublicKey: &k.PrivateKey.PublicKey}
}

// Address derives the 20-byte account address from the public key.
func (p *PublicKey) Address() Address {
	raw := ethcrypto.PubkeyToAddress(*p.PublicKey)
	var addr [20]byte
	copy(addr[:], raw.Bytes())
	return MustNewAddress(addr)
}
