package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"sync"
)

// --- Custom errors for wallet key management. ---
var (
	ErrWalletKeyNotFound  = errors.New("wallet key file not found")
	ErrWalletKeyCorrupted = errors.New("wallet key file corrupted or invalid format")
)

// Wallet wraps an Ed25519 key pair with the Address derived from it,
// a thin convenience layer above the raw key functions for client and
// validator identity management.
type Wallet struct {
	mu      sync.RWMutex
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address Address
}

// NewWallet generates a fresh Ed25519 key pair and its derived address.
func NewWallet() (*Wallet, error) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv, pub: pub, address: AddressFromPublicKey(pub)}, nil
}

// PrivateKey returns the wallet's private key.
func (w *Wallet) PrivateKey() ed25519.PrivateKey {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.priv
}

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pub
}

// Address returns the wallet's derived blockchain address.
func (w *Wallet) Address() Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address
}

// Sign signs msg with the wallet's private key.
func (w *Wallet) Sign(msg []byte) []byte {
	return Sign(w.PrivateKey(), msg)
}

// Save writes the wallet's private key to filePath (owner-only permissions).
func (w *Wallet) Save(filePath string) error {
	return SavePrivateKeyPEM(w.PrivateKey(), filePath)
}

// LoadWallet loads a Wallet from a PEM-encoded private key file.
func LoadWallet(filePath string) (*Wallet, error) {
	priv, err := LoadPrivateKeyPEM(filePath)
	if err != nil {
		if _, statErr := os.Stat(filePath); os.IsNotExist(statErr) {
			return nil, fmt.Errorf("%w: %s", ErrWalletKeyNotFound, filePath)
		}
		return nil, fmt.Errorf("%w: %v", ErrWalletKeyCorrupted, err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: derived public key is not Ed25519", ErrWalletKeyCorrupted)
	}
	return &Wallet{priv: priv, pub: pub, address: AddressFromPublicKey(pub)}, nil
}
