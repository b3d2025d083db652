package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// --- Custom error definitions, in the style of this package's teacher lineage. ---
var (
	ErrKeyGeneration      = errors.New("key generation failed")
	ErrInvalidKeyFormat   = errors.New("invalid key format")
	ErrKeySerialization   = errors.New("key serialization failed")
	ErrKeyDeserialization = errors.New("key deserialization failed")
	ErrPEMDecoding        = errors.New("pem decoding error")
	ErrUnsupportedPEMType = errors.New("unsupported pem block type")
	ErrSignatureInvalid   = errors.New("signature verification failed")
)

// GenerateKeyPair generates a new Ed25519 private/public key pair.
func GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return priv, pub, nil
}

// Sign signs msg with priv, returning a 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// SerializePrivateKeyToPEM encodes an Ed25519 private key as an unencrypted
// PKCS#8 PEM block. Password-protected PEMs are not supported, matching the
// scope of this package's teacher lineage.
func SerializePrivateKeyToPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySerialization, err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// DeserializePrivateKeyFromPEM decodes an unencrypted PKCS#8 PEM block into
// an Ed25519 private key.
func DeserializePrivateKeyFromPEM(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, rest := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrPEMDecoding)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: unexpected trailing data after PEM block", ErrPEMDecoding)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("%w: expected PRIVATE KEY, got %s", ErrUnsupportedPEMType, block.Type)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDeserialization, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is not Ed25519", ErrKeyDeserialization)
	}
	return priv, nil
}

// SavePrivateKeyPEM writes priv to filePath with owner-only permissions.
func SavePrivateKeyPEM(priv ed25519.PrivateKey, filePath string) error {
	pemBytes, err := SerializePrivateKeyToPEM(priv)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("%w: failed to create directory %s: %v", ErrKeySerialization, dir, err)
		}
	}
	return os.WriteFile(filePath, pemBytes, 0600)
}

// LoadPrivateKeyPEM reads and decodes an Ed25519 private key from filePath.
func LoadPrivateKeyPEM(filePath string) (ed25519.PrivateKey, error) {
	pemBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDeserialization, err)
	}
	return DeserializePrivateKeyFromPEM(pemBytes)
}
