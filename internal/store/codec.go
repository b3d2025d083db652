package store

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// The store persists blocks and accounts in the same fixed-order,
// fixed-width binary layout the consensus layer signs over (see
// internal/types), rather than gob or JSON: on-disk format and
// wire/signing format stay the single deterministic encoding used
// throughout the node.

func encodeUint64(buf *bytes.Buffer, v uint64) { _ = binary.Write(buf, binary.BigEndian, v) }
func encodeUint32(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.BigEndian, v) }

func readUint64(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func encodeBytes(buf *bytes.Buffer, b []byte) {
	encodeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil && n > 0 {
		return nil, err
	}
	return out, nil
}

func encodeTransaction(buf *bytes.Buffer, tx *types.Transaction) {
	buf.Write(tx.ID[:])
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	encodeUint64(buf, tx.Amount)
	encodeUint64(buf, tx.Fee)
	encodeUint64(buf, tx.Nonce)
	encodeUint64(buf, tx.Timestamp)
	encodeBytes(buf, tx.Data)
	encodeBytes(buf, tx.PublicKey)
	encodeBytes(buf, tx.Signature)
}

func decodeTransaction(r *bytes.Reader) (*types.Transaction, error) {
	var id uuid.UUID
	if _, err := r.Read(id[:]); err != nil {
		return nil, fmt.Errorf("decode tx id: %w", err)
	}
	var from, to crypto.Address
	if _, err := r.Read(from[:]); err != nil {
		return nil, fmt.Errorf("decode tx from: %w", err)
	}
	if _, err := r.Read(to[:]); err != nil {
		return nil, fmt.Errorf("decode tx to: %w", err)
	}
	amount, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	fee, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	nonce, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	ts, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	data, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	pub, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &types.Transaction{
		ID: id, From: from, To: to, Amount: amount, Fee: fee, Nonce: nonce,
		Timestamp: ts, Data: data, PublicKey: ed25519.PublicKey(pub), Signature: sig,
	}, nil
}

func encodeSignatureShares(buf *bytes.Buffer, sigs []types.SignatureShare) {
	encodeUint32(buf, uint32(len(sigs)))
	for _, s := range sigs {
		encodeUint32(buf, uint32(s.Signer))
		encodeBytes(buf, s.Signature)
	}
}

func decodeSignatureShares(r *bytes.Reader) ([]types.SignatureShare, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]types.SignatureShare, n)
	for i := range out {
		signer, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		sig, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out[i] = types.SignatureShare{Signer: types.ValidatorID(signer), Signature: sig}
	}
	return out, nil
}

// EncodeBlock serializes a block for durable storage.
func EncodeBlock(b *types.Block) []byte {
	var buf bytes.Buffer
	h := b.Header
	encodeUint64(&buf, h.Height)
	buf.Write(h.PreviousHash[:])
	buf.Write(h.StateRoot[:])
	buf.Write(h.TxRoot[:])
	encodeUint64(&buf, h.Timestamp)
	encodeUint32(&buf, uint32(h.Proposer))

	encodeUint32(&buf, uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		encodeTransaction(&buf, tx)
	}

	if b.QC != nil {
		buf.WriteByte(1)
		encodeUint64(&buf, b.QC.View)
		encodeUint64(&buf, b.QC.Height)
		buf.Write(b.QC.BlockHash[:])
		encodeSignatureShares(&buf, b.QC.Signatures)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeBlock deserializes a block encoded by EncodeBlock.
func DecodeBlock(data []byte) (*types.Block, error) {
	r := bytes.NewReader(data)
	var h types.BlockHeader
	var err error
	if h.Height, err = readUint64(r); err != nil {
		return nil, err
	}
	if _, err = r.Read(h.PreviousHash[:]); err != nil {
		return nil, err
	}
	if _, err = r.Read(h.StateRoot[:]); err != nil {
		return nil, err
	}
	if _, err = r.Read(h.TxRoot[:]); err != nil {
		return nil, err
	}
	if h.Timestamp, err = readUint64(r); err != nil {
		return nil, err
	}
	proposer, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	h.Proposer = types.ValidatorID(proposer)

	txCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	txs := make([]*types.Transaction, txCount)
	for i := range txs {
		txs[i], err = decodeTransaction(r)
		if err != nil {
			return nil, fmt.Errorf("decode block: tx %d: %w", i, err)
		}
	}

	hasQC, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var qc *types.QuorumCertificate
	if hasQC == 1 {
		qc = &types.QuorumCertificate{}
		if qc.View, err = readUint64(r); err != nil {
			return nil, err
		}
		if qc.Height, err = readUint64(r); err != nil {
			return nil, err
		}
		if _, err = r.Read(qc.BlockHash[:]); err != nil {
			return nil, err
		}
		if qc.Signatures, err = decodeSignatureShares(r); err != nil {
			return nil, err
		}
	}
	return &types.Block{Header: h, Transactions: txs, QC: qc}, nil
}

// EncodeAccount serializes an account state.
func EncodeAccount(a types.AccountState) []byte {
	var buf bytes.Buffer
	buf.Write(a.Address[:])
	encodeUint64(&buf, a.Balance)
	encodeUint64(&buf, a.Nonce)
	return buf.Bytes()
}

// DecodeAccount deserializes an account state encoded by EncodeAccount.
func DecodeAccount(data []byte) (types.AccountState, error) {
	r := bytes.NewReader(data)
	var a types.AccountState
	if _, err := r.Read(a.Address[:]); err != nil {
		return a, err
	}
	var err error
	if a.Balance, err = readUint64(r); err != nil {
		return a, err
	}
	if a.Nonce, err = readUint64(r); err != nil {
		return a, err
	}
	return a, nil
}
