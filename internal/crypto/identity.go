package crypto

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
)

// Ed25519PubCodec is the multicodec code for a raw Ed25519 public key,
// per the multicodec table (0xed).
const Ed25519PubCodec multicodec.Code = 0xed

var (
	// ErrInvalidValidatorID is returned when a validator ID string fails to parse.
	ErrInvalidValidatorID = errors.New("invalid validator id")
)

// EncodeValidatorID renders an Ed25519 public key as a self-describing,
// human-readable identifier: a multicodec-tagged, multibase-encoded string
// (e.g. for log lines, CLI output, and genesis files), adapted from this
// package's teacher lineage did:key encoding (internal/crypto/did.go) but
// without any W3C DID document semantics — it is a peer identifier, not a
// DID.
func EncodeValidatorID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes", ErrInvalidValidatorID, ed25519.PublicKeySize)
	}
	var buf bytes.Buffer
	buf.Write(multicodec.Header(Ed25519PubCodec))
	buf.Write(pub)

	encoded, err := multibase.Encode(multibase.Base58BTC, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValidatorID, err)
	}
	return "bft1" + encoded, nil
}

// DecodeValidatorID parses a string produced by EncodeValidatorID back into
// an Ed25519 public key.
func DecodeValidatorID(id string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(id, "bft1") {
		return nil, fmt.Errorf("%w: missing bft1 prefix", ErrInvalidValidatorID)
	}
	_, data, err := multibase.Decode(strings.TrimPrefix(id, "bft1"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorID, err)
	}
	codec, rest, err := multicodec.Consume(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValidatorID, err)
	}
	if multicodec.Code(codec) != Ed25519PubCodec {
		return nil, fmt.Errorf("%w: unexpected codec 0x%x", ErrInvalidValidatorID, codec)
	}
	if len(rest) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d key bytes, got %d", ErrInvalidValidatorID, ed25519.PublicKeySize, len(rest))
	}
	return ed25519.PublicKey(rest), nil
}
