package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address derivation, not general-purpose hashing
)

// AddressSize is the size in bytes of an Address.
const AddressSize = 20

// ErrInvalidAddressLength is returned when decoding an address of the wrong size.
var ErrInvalidAddressLength = errors.New("invalid address length")

// Address is a 20-byte account or validator identifier, derived from a
// public key by RIPEMD160(SHA256(pubkey)) in the style of this package's
// teacher lineage (internal/crypto/address_utils.go), adapted from
// ECDSA/P-256 keys to the Ed25519 keys this node uses.
type Address [AddressSize]byte

// ZeroAddress is the all-zero address. No valid account ever derives to it.
var ZeroAddress = Address{}

// AddressFromPublicKey derives the Address for an Ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	sum := sha256.Sum256(pub)
	h := ripemd160.New()
	h.Write(sum[:])
	digest := h.Sum(nil)

	var a Address
	copy(a[:], digest)
	return a
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// AddressFromBytes copies b into an Address, requiring an exact-length slice.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidAddressLength, len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromHex parses a hex-encoded address string.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddressLength, err)
	}
	return AddressFromBytes(b)
}
