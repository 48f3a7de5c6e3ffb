package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	// DelegationPrefix marks a principal, agent, or ledger target address.
	DelegationPrefix AddressPrefix = "dla"
	// OperatorPrefix marks an address derived from an operator signing key
	// used to drive cmd/delegationd rather than appearing inside a relationship.
	OperatorPrefix AddressPrefix = "dlo"
)

// Address represents a 20-byte identity with a human-readable prefix. The
// zero value (empty prefix, nil bytes) is the distinguishable "zero
// identity" the delegation core rejects as an agent.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress constructs an address and panics if the input is invalid.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is the distinguishable zero identity.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal reports whether two addresses reference the same 20-byte identity.
// Prefixes are cosmetic encoding hints and are not compared.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// GobEncode implements gob.GobEncoder so Address can round-trip through the
// gob-backed persistence layer despite its unexported fields.
func (a Address) GobEncode() ([]byte, error) {
	buf := make([]byte, 0, 1+len(a.prefix)+len(a.bytes))
	buf = append(buf, byte(len(a.prefix)))
	buf = append(buf, a.prefix...)
	buf = append(buf, a.bytes...)
	return buf, nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (a *Address) GobDecode(data []byte) error {
	if len(data) == 0 {
		*a = Address{}
		return nil
	}
	n := int(data[0])
	if len(data) < 1+n {
		return fmt.Errorf("address: truncated gob payload")
	}
	a.prefix = AddressPrefix(data[1 : 1+n])
	rest := data[1+n:]
	if len(rest) == 0 {
		a.bytes = nil
		return nil
	}
	a.bytes = append([]byte(nil), rest...)
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	addr, err := NewAddress(AddressPrefix(prefix), conv)
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(DelegationPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
