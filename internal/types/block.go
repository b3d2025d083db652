package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
)

// ValidatorID is a validator's index into the fixed, genesis-time
// ValidatorRegistry. It is what wire messages carry for compactness;
// human-readable identifiers are derived on demand via
// internal/crypto.EncodeValidatorID.
type ValidatorID uint32

// ErrInvalidCertificate names a QuorumCertificate that fails structural
// validation (duplicate signers, wrong block hash, and so on).
var ErrInvalidCertificate = errors.New("invalid quorum certificate")

// BlockHeader carries a block's identity: the chain link (PreviousHash),
// the application digests (StateRoot, TxRoot), and the proposer.
type BlockHeader struct {
	Height       uint64
	PreviousHash crypto.Hash
	StateRoot    crypto.Hash
	TxRoot       crypto.Hash
	Timestamp    uint64 // milliseconds since Unix epoch
	Proposer     ValidatorID
}

// canonicalEncoding returns the deterministic byte encoding of the header,
// used for the block hash. It never includes the quorum certificate.
func (h *BlockHeader) canonicalEncoding() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, h.Height)
	buf.Write(h.PreviousHash[:])
	buf.Write(h.StateRoot[:])
	buf.Write(h.TxRoot[:])
	_ = binary.Write(&buf, binary.BigEndian, h.Timestamp)
	_ = binary.Write(&buf, binary.BigEndian, uint32(h.Proposer))
	return buf.Bytes()
}

// Hash returns the header's content hash.
func (h *BlockHeader) Hash() crypto.Hash {
	return crypto.SumHash(h.canonicalEncoding())
}

// SignatureShare is one validator's signature contribution to a
// certificate — a Prepared certificate, a Commit (quorum) certificate, or
// a View-Change certificate all share this shape.
type SignatureShare struct {
	Signer    ValidatorID
	Signature []byte
}

// QuorumCertificate is the set of Commit-phase signatures that finalize a
// block: q = 2f+1 distinct validator signatures over (view, height,
// blockHash).
type QuorumCertificate struct {
	View       uint64
	Height     uint64
	BlockHash  crypto.Hash
	Signatures []SignatureShare
}

// Block is a header plus its ordered transaction list and the quorum
// certificate that finalized it. The block hash covers only the header,
// per the specification ("The block hash is the hash of the header with
// quorum_certificate excluded").
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
	QC           *QuorumCertificate
}

// Hash returns the block's identity hash (header only).
func (b *Block) Hash() crypto.Hash {
	return b.Header.Hash()
}

// ComputeTxRoot returns the Merkle root over the block's transaction
// hashes, in listed order.
func ComputeTxRoot(txs []*Transaction) crypto.Hash {
	leaves := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.Hash()
	}
	return crypto.MerkleRoot(leaves)
}

// DistinctSigners returns the number of distinct validators represented in
// the certificate, which must equal len(Signatures) for a well-formed
// certificate (no validator signs twice).
func (qc *QuorumCertificate) DistinctSigners() int {
	seen := make(map[ValidatorID]struct{}, len(qc.Signatures))
	for _, sig := range qc.Signatures {
		seen[sig.Signer] = struct{}{}
	}
	return len(seen)
}

// SortedSignatures returns the certificate's signatures ordered by signer,
// for deterministic serialization.
func (qc *QuorumCertificate) SortedSignatures() []SignatureShare {
	out := make([]SignatureShare, len(qc.Signatures))
	copy(out, qc.Signatures)
	sort.Slice(out, func(i, j int) bool { return out[i].Signer < out[j].Signer })
	return out
}

// String renders a short human-readable summary for logs.
func (b *Block) String() string {
	return fmt.Sprintf("block(height=%d hash=%s txs=%d proposer=%d)",
		b.Header.Height, b.Hash(), len(b.Transactions), b.Header.Proposer)
}
