// Package transport is the node's peer-messaging contract: authenticated,
// per-peer reliable FIFO delivery of consensus messages, gossiped blocks,
// and transactions. LocalBus implements it in-process, which is enough
// to drive every replica in a single test binary; a real deployment
// swaps it for a networked implementation without touching the driver.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// EnvelopeKind tags what an Envelope carries.
type EnvelopeKind uint8

const (
	KindTx EnvelopeKind = iota
	KindBlock
	KindConsensus
)

// Envelope is one unit of peer-to-peer delivery. Exactly one of Tx,
// Block, or Consensus is populated, matching Kind.
type Envelope struct {
	Kind      EnvelopeKind
	From      types.ValidatorID
	Tx        *types.Transaction
	Block     *types.Block
	Consensus *types.Message
}

// ErrClosed is returned by Send after the bus has been closed. Broadcast
// skips per-peer failures and always returns nil.
var ErrClosed = errors.New("transport: bus is closed")

// Transport is the contract the consensus driver consumes:
// send to one peer, broadcast to all, and receive this replica's own
// inbox. Per-peer delivery is FIFO; no ordering is assumed across peers.
type Transport interface {
	Send(ctx context.Context, to types.ValidatorID, env Envelope) error
	Broadcast(ctx context.Context, env Envelope) error
	Inbox() <-chan Envelope
	Close() error
}

// LocalBus is an in-process Transport: every registered peer gets a
// bounded FIFO channel; Broadcast fans out to every peer but self.
// When a peer's queue is full, Send drops that peer's oldest queued
// envelope to make room; this applies to every envelope kind, consensus
// envelopes included.
type LocalBus struct {
	mu     sync.RWMutex
	self   types.ValidatorID
	inbox  chan Envelope
	peers  map[types.ValidatorID]chan Envelope
	closed bool
}

// NewLocalBus constructs one replica's endpoint on a shared bus. peers
// is populated by calling Connect for every other replica's LocalBus
// before use.
func NewLocalBus(self types.ValidatorID, inboxBuffer int) *LocalBus {
	return &LocalBus{
		self:  self,
		inbox: make(chan Envelope, inboxBuffer),
		peers: make(map[types.ValidatorID]chan Envelope),
	}
}

// Connect registers peer's inbox so this bus can Send/Broadcast to it.
// Connections are symmetric in typical use: call Connect both ways, or
// use NewLocalNetwork to wire a full mesh.
func (b *LocalBus) Connect(peer types.ValidatorID, inbox chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[peer] = inbox
}

// Send delivers env to a single peer's inbox. If that peer's queue is
// full, it drops the oldest queued envelope and retries once; if the
// retry also finds the queue full, env itself is dropped. Either way it
// returns nil.
func (b *LocalBus) Send(ctx context.Context, to types.ValidatorID, env Envelope) error {
	b.mu.RLock()
	closed := b.closed
	ch, ok := b.peers[to]
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return nil
	}
	env.From = b.self
	select {
	case ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Queue full: drop oldest, then retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- env:
		default:
		}
		return nil
	}
}

// Broadcast delivers env to every connected peer.
func (b *LocalBus) Broadcast(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	peers := make([]types.ValidatorID, 0, len(b.peers))
	for id := range b.peers {
		peers = append(peers, id)
	}
	b.mu.RUnlock()
	for _, id := range peers {
		if err := b.Send(ctx, id, env); err != nil && !errors.Is(err, context.Canceled) {
			// Transport send failures are non-fatal per the driver's
			// failure semantics: keep broadcasting to the rest.
			continue
		}
	}
	return nil
}

// Inbox returns this replica's receive channel.
func (b *LocalBus) Inbox() <-chan Envelope { return b.inbox }

// Close marks the bus closed. Further calls to Send return ErrClosed.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// LocalNetwork wires a full mesh of LocalBus endpoints for n replicas,
// the harness used by in-process integration tests (e.g. the end-to-end
// scenarios in internal/consensus).
type LocalNetwork struct {
	buses map[types.ValidatorID]*LocalBus
}

// NewLocalNetwork builds a fully connected mesh over the given
// validator IDs.
func NewLocalNetwork(ids []types.ValidatorID, inboxBuffer int) *LocalNetwork {
	net := &LocalNetwork{buses: make(map[types.ValidatorID]*LocalBus, len(ids))}
	for _, id := range ids {
		net.buses[id] = NewLocalBus(id, inboxBuffer)
	}
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			net.buses[a].Connect(b, net.buses[b].inbox)
		}
	}
	return net
}

// Bus returns the Transport endpoint for the given validator.
func (n *LocalNetwork) Bus(id types.ValidatorID) *LocalBus { return n.buses[id] }
