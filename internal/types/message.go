package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
)

// MessageKind tags which of the five ConsensusMessage variants a Message
// carries (Propose, Prepare, Commit, ViewChange, NewView), per section 3
// of the specification.
type MessageKind uint8

const (
	KindPropose MessageKind = iota
	KindPrepare
	KindCommit
	KindViewChange
	KindNewView
)

func (k MessageKind) String() string {
	switch k {
	case KindPropose:
		return "Propose"
	case KindPrepare:
		return "Prepare"
	case KindCommit:
		return "Commit"
	case KindViewChange:
		return "ViewChange"
	case KindNewView:
		return "NewView"
	default:
		return fmt.Sprintf("MessageKind(%d)", k)
	}
}

// ErrUnknownMessageKind names a Message whose Kind is not one of the
// recognized kinds.
var ErrUnknownMessageKind = errors.New("unknown consensus message kind")

// PreparedCertificate is the evidence a replica carries that it formed a
// prepared certificate for a block at some view and height: q = 2f+1
// Prepare signatures over (view, height, blockHash).
type PreparedCertificate struct {
	View      uint64
	Height    uint64
	BlockHash crypto.Hash
	Sigs      []SignatureShare
}

// LastPrepared is the optional payload of a ViewChange message: the
// highest-view prepared certificate the sender holds for the height being
// changed, if any.
type LastPrepared struct {
	Present     bool
	Certificate PreparedCertificate
}

// Message is the single wire representation of every ConsensusMessage
// variant in section 3 of the specification. A tagged-union struct
// (one Kind byte plus every variant's fields) is used instead of a Go
// interface so the message can be hashed, signed, and gob-encoded without
// interface registration, while still expressing exactly the five
// variants the specification names.
type Message struct {
	Kind   MessageKind
	Sender ValidatorID

	// Propose, Prepare, Commit, NewView
	View   uint64
	Height uint64

	// Propose: the proposed block. NewView: the re-proposed block.
	Block *Block

	// Prepare, Commit: the block hash being voted on.
	BlockHash crypto.Hash

	// ViewChange
	NewViewNumber uint64
	Last          LastPrepared

	// NewView
	ViewChangeCert []SignatureShare // signatures over (NewViewNumber, Height) from the ViewChange senders
	ViewChanges    []Message        // the raw ViewChange messages backing ViewChangeCert, needed for the safe-value rule

	Signature []byte
}

// canonicalEncoding returns the deterministic byte encoding of the
// message's content, excluding Signature, used as the signing payload.
func (m *Message) canonicalEncoding() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind))
	_ = binary.Write(&buf, binary.BigEndian, uint32(m.Sender))
	_ = binary.Write(&buf, binary.BigEndian, m.View)
	_ = binary.Write(&buf, binary.BigEndian, m.Height)

	if m.Block != nil {
		h := m.Block.Hash()
		buf.Write(h[:])
	}
	buf.Write(m.BlockHash[:])
	_ = binary.Write(&buf, binary.BigEndian, m.NewViewNumber)

	if m.Last.Present {
		buf.WriteByte(1)
		buf.Write(m.Last.Certificate.BlockHash[:])
		_ = binary.Write(&buf, binary.BigEndian, m.Last.Certificate.View)
	} else {
		buf.WriteByte(0)
	}

	for _, sig := range m.ViewChangeCert {
		_ = binary.Write(&buf, binary.BigEndian, uint32(sig.Signer))
		buf.Write(sig.Signature)
	}
	return buf.Bytes()
}

// Hash returns the message's content hash.
func (m *Message) Hash() crypto.Hash {
	return crypto.SumHash(m.canonicalEncoding())
}

// Sign signs the message on behalf of sender.
func (m *Message) Sign(sender ValidatorID, priv ed25519.PrivateKey) {
	m.Sender = sender
	h := m.Hash()
	m.Signature = crypto.Sign(priv, h[:])
}

// VerifySignature reports whether Signature is a valid signature over the
// message's content under pub.
func (m *Message) VerifySignature(pub ed25519.PublicKey) bool {
	if len(m.Signature) == 0 {
		return false
	}
	h := m.Hash()
	return crypto.Verify(pub, h[:], m.Signature)
}

// String renders a short human-readable summary for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s(sender=%d view=%d height=%d)", m.Kind, m.Sender, m.View, m.Height)
}
