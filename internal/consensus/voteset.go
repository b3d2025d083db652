package consensus

import (
	"sort"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// voteBucket is the message log for one (kind, view, height): it
// deduplicates by sender (a replica may cast exactly one vote per
// bucket; a conflicting second vote is equivocation evidence and is
// discarded, counting only the first received) and accumulates
// per-block-hash signature shares toward quorum.
type voteBucket struct {
	bySender map[types.ValidatorID]crypto.Hash
	byHash   map[crypto.Hash][]types.SignatureShare
}

func newVoteBucket() *voteBucket {
	return &voteBucket{
		bySender: make(map[types.ValidatorID]crypto.Hash),
		byHash:   make(map[crypto.Hash][]types.SignatureShare),
	}
}

// add records sender's vote for hash with the given signature. It
// returns (added, equivocated): added is true the first time this
// sender votes in the bucket; equivocated is true if sender had already
// voted for a different hash, in which case the new vote is discarded.
func (b *voteBucket) add(sender types.ValidatorID, hash crypto.Hash, sig []byte) (added, equivocated bool) {
	if existing, ok := b.bySender[sender]; ok {
		return false, existing != hash
	}
	b.bySender[sender] = hash
	b.byHash[hash] = append(b.byHash[hash], types.SignatureShare{Signer: sender, Signature: sig})
	return true, false
}

// count returns the number of distinct signers recorded for hash.
func (b *voteBucket) count(hash crypto.Hash) int {
	return len(b.byHash[hash])
}

// signatures returns the accumulated signature shares for hash.
func (b *voteBucket) signatures(hash crypto.Hash) []types.SignatureShare {
	out := make([]types.SignatureShare, len(b.byHash[hash]))
	copy(out, b.byHash[hash])
	return out
}

// viewChangeBucket mirrors voteBucket's dedup-by-sender discipline for
// ViewChange messages, which carry no single block hash to index by
// (the safe-value block, if any, varies per sender).
type viewChangeBucket map[types.ValidatorID]*types.Message

func (b viewChangeBucket) add(msg *types.Message) bool {
	if _, ok := b[msg.Sender]; ok {
		return false
	}
	b[msg.Sender] = msg
	return true
}

// highestPrepared returns the LastPrepared with the highest View among
// the bucket's messages, and reports whether any carried one — the
// safe-value rule's input.
func (b viewChangeBucket) highestPrepared() (types.LastPrepared, bool) {
	var best types.LastPrepared
	found := false
	for _, msg := range b {
		if !msg.Last.Present {
			continue
		}
		if !found || msg.Last.Certificate.View > best.Certificate.View {
			best = msg.Last
			found = true
		}
	}
	return best, found
}

// signatureShares converts the bucket into the signature list a
// view-change certificate attaches, in sender order for determinism.
func (b viewChangeBucket) signatureShares() []types.SignatureShare {
	out := make([]types.SignatureShare, 0, len(b))
	for sender, msg := range b {
		out = append(out, types.SignatureShare{Signer: sender, Signature: msg.Signature})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signer < out[j].Signer })
	return out
}
