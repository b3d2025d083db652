package consensus

import (
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// Phase is the per-height consensus state, modeled as an explicit tagged
// variant rather than implied by field presence: Idle, Prepared,
// Committing, Committed, ViewChanging.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePrepared
	PhaseCommitting
	PhaseCommitted
	PhaseViewChanging
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePrepared:
		return "Prepared"
	case PhaseCommitting:
		return "Committing"
	case PhaseCommitted:
		return "Committed"
	case PhaseViewChanging:
		return "ViewChanging"
	default:
		return "Unknown"
	}
}

// heightState is the per-height bookkeeping: the current view, the
// locked block (if any) this replica must defend across view changes,
// the message log (vote buckets), and every block body seen so far at
// this height (needed to re-propose a locked block whose bytes arrived
// via an earlier Propose or NewView).
type heightState struct {
	height uint64
	view   uint64
	phase  Phase

	proposal   *types.Block
	lockedCert *types.PreparedCertificate

	prepareVotes map[uint64]*voteBucket // view -> votes
	commitVotes  map[uint64]*voteBucket
	viewChanges  map[uint64]viewChangeBucket // new_view -> sender -> msg

	seenBlocks map[crypto.Hash]*types.Block
}

func newHeightState(height uint64) *heightState {
	return &heightState{
		height:       height,
		view:         0,
		phase:        PhaseIdle,
		prepareVotes: make(map[uint64]*voteBucket),
		commitVotes:  make(map[uint64]*voteBucket),
		viewChanges:  make(map[uint64]viewChangeBucket),
		seenBlocks:   make(map[crypto.Hash]*types.Block),
	}
}

func (hs *heightState) rememberBlock(b *types.Block) {
	if b == nil {
		return
	}
	hs.seenBlocks[b.Hash()] = b
}

func (hs *heightState) prepareBucket(view uint64) *voteBucket {
	b, ok := hs.prepareVotes[view]
	if !ok {
		b = newVoteBucket()
		hs.prepareVotes[view] = b
	}
	return b
}

func (hs *heightState) commitBucket(view uint64) *voteBucket {
	b, ok := hs.commitVotes[view]
	if !ok {
		b = newVoteBucket()
		hs.commitVotes[view] = b
	}
	return b
}
