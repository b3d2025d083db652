// Package crypto provides the hash, signature, and address primitives the
// rest of the node is built on: a 256-bit BLAKE3 hash, Ed25519 signatures,
// and RIPEMD160(SHA256(.)) address derivation.
package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// HashSize is the size in bytes of a Hash.
const HashSize = 32

// ErrInvalidHashLength is returned when decoding a hash of the wrong size.
var ErrInvalidHashLength = errors.New("invalid hash length")

// Hash is a 256-bit BLAKE3 digest. Equality and ordering are byte-wise.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as the previous-hash of genesis.
var ZeroHash = Hash{}

// SumHash hashes an arbitrary byte slice.
func SumHash(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Less reports whether h sorts before other, byte-wise.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// HashFromBytes copies b into a Hash, requiring an exact-length slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHashLength, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a hex-encoded hash string.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrInvalidHashLength, err)
	}
	return HashFromBytes(b)
}

// MerkleRoot computes the Merkle root over leaf hashes in listed order.
// An empty leaf set roots to the zero hash. An odd level duplicates its
// last node, the common Bitcoin-style convention, so the tree is always
// balanced without needing to special-case single-leaf levels.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		var buf [2 * HashSize]byte
		for i := 0; i < len(level); i += 2 {
			copy(buf[:HashSize], level[i][:])
			copy(buf[HashSize:], level[i+1][:])
			next[i/2] = SumHash(buf[:])
		}
		level = next
	}
	return level[0]
}

// SortHashes sorts a slice of hashes in place, ascending byte order.
func SortHashes(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}
