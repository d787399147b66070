package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable prefixes used when rendering
// addresses.
type AddressPrefix string

const (
	// AccountPrefix is used for ordinary ledger accounts.
	AccountPrefix AddressPrefix = "nyl"
	// TreasuryPrefix is used for treasury collaborators.
	TreasuryPrefix AddressPrefix = "tnyl"
)

// AddressLength is the raw byte length of every address.
const AddressLength = 20

// Address represents a 20-byte account identifier with a bech32 display
// prefix. The zero value is the null identifier.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress builds an address from the provided raw bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	addr := Address{prefix: prefix}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress builds an address and panics on malformed input. Intended for
// constants and test fixtures.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// IsZero reports whether the address is the null identifier. The prefix is
// ignored so that a zero account and a zero treasury compare equal.
func (a Address) IsZero() bool {
	return a.bytes == [AddressLength]byte{}
}

// Equal compares the raw bytes of two addresses, ignoring display prefixes.
func (a Address) Equal(other Address) bool {
	return a.bytes == other.bytes
}

// String renders the address as bech32.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	prefix := a.prefix
	if prefix == "" {
		prefix = AccountPrefix
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ModuleAddress derives a deterministic address for an internal module account
// from a stable label. Module accounts hold custody balances and never have a
// corresponding private key.
func ModuleAddress(label string) Address {
	digest := ethcrypto.Keccak256([]byte("netyield/module/" + label))
	return MustNewAddress(AccountPrefix, digest[12:])
}

// --- Key management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the ledger account address for the public key.
func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// EqualBytes reports whether two raw address byte slices refer to the same
// account.
func EqualBytes(a, b []byte) bool {
	return len(a) == AddressLength && bytes.Equal(a, b)
}
