// Package types defines the node's core data model: transactions, blocks,
// account state, and the consensus message envelope, exactly as specified
// in section 3 of the specification this node implements.
package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
)

// MaxTransactionDataBytes bounds the optional payload carried by a
// transaction, a structural check enforced by the validation engine.
const MaxTransactionDataBytes = 4096

var (
	// ErrTransactionUnsigned names a transaction that carries no signature.
	ErrTransactionUnsigned = errors.New("transaction is unsigned")
	// ErrAmountOverflow is returned when amount+fee overflows uint64.
	ErrAmountOverflow = errors.New("transaction amount and fee overflow")
)

// Transaction is a signed value-transfer instruction. Sign sets
// PublicKey and Signature in place on the Transaction it is called on
// and returns nothing; after signing, no field is changed again.
type Transaction struct {
	ID        uuid.UUID
	From      crypto.Address
	To        crypto.Address
	Amount    uint64
	Fee       uint64
	Nonce     uint64
	Timestamp uint64 // milliseconds since Unix epoch
	Data      []byte
	PublicKey ed25519.PublicKey
	Signature []byte
}

// NewTransaction builds an unsigned transaction with a fresh UUID. Call
// Sign before broadcasting or inserting it into the mempool.
func NewTransaction(from, to crypto.Address, amount, fee, nonce, timestampMillis uint64, data []byte) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		Timestamp: timestampMillis,
		Data:      data,
	}
}

// canonicalEncoding returns the deterministic byte encoding of the
// transaction's content, excluding the signature, used for both signing
// and hashing. Fields are concatenated in a fixed order with
// fixed-width big-endian integers rather than relying on any reflective
// serializer, so the format cannot shift under a Go version or library
// upgrade (Design Notes: "all consensus-observable ... encodings must be
// byte-deterministic").
func (tx *Transaction) canonicalEncoding() []byte {
	var buf bytes.Buffer
	buf.Write(tx.ID[:])
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	_ = binary.Write(&buf, binary.BigEndian, tx.Amount)
	_ = binary.Write(&buf, binary.BigEndian, tx.Fee)
	_ = binary.Write(&buf, binary.BigEndian, tx.Nonce)
	_ = binary.Write(&buf, binary.BigEndian, tx.Timestamp)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(tx.Data)))
	buf.Write(tx.Data)
	return buf.Bytes()
}

// Hash returns the content hash used as the signing payload. It does not
// include the signature or public key fields.
func (tx *Transaction) Hash() crypto.Hash {
	return crypto.SumHash(tx.canonicalEncoding())
}

// Sign signs the transaction with priv, setting PublicKey and Signature.
// PublicKey must correspond to tx.From (AddressFromPublicKey(pub) ==
// tx.From); callers are expected to have built tx.From from the same key.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) {
	tx.PublicKey = priv.Public().(ed25519.PublicKey)
	h := tx.Hash()
	tx.Signature = crypto.Sign(priv, h[:])
}

// VerifySignature reports whether the transaction's signature is valid
// under its claimed PublicKey, and that PublicKey actually derives From.
func (tx *Transaction) VerifySignature() bool {
	if len(tx.Signature) == 0 || len(tx.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	if crypto.AddressFromPublicKey(tx.PublicKey) != tx.From {
		return false
	}
	h := tx.Hash()
	return crypto.Verify(tx.PublicKey, h[:], tx.Signature)
}

// TotalDebit returns amount+fee, the quantity deducted from the sender's
// balance on apply, erroring if it would overflow uint64.
func (tx *Transaction) TotalDebit() (uint64, error) {
	if tx.Amount > math.MaxUint64-tx.Fee {
		return 0, ErrAmountOverflow
	}
	return tx.Amount + tx.Fee, nil
}

// String renders a short human-readable summary for logs.
func (tx *Transaction) String() string {
	return fmt.Sprintf("tx(%s from=%s to=%s amount=%d fee=%d nonce=%d)",
		tx.ID, tx.From, tx.To, tx.Amount, tx.Fee, tx.Nonce)
}
