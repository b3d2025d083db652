// Package consensus is the three-phase BFT vote protocol: proposal
// handling, Prepare/Commit quorum aggregation, view-change recovery, and
// the single-threaded event loop that owns all of it. Everything here
// corresponds to section 4.5-4.7 of the specification this node
// implements.
package consensus

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/leader"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/mempool"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/transport"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

// Params bundles the genesis-fixed parameters the driver needs beyond
// validation.Params: block construction limits and view-timeout shape.
type Params struct {
	Validation          validation.Params
	Fee                 store.FeePolicy
	MaxTransactionsBlock int
	MaxBlockBytes       int
	ViewTimeoutBase     time.Duration
	ViewTimeoutMax      time.Duration
}

// Clock supplies the local time in milliseconds since the Unix epoch.
// A function, not time.Now directly, so tests can control it.
type Clock func() uint64

func systemClock() uint64 { return uint64(time.Now().UnixMilli()) }

// GenesisBlock is the synthetic height-0 parent every height-1 proposal
// and validation check is measured against. It carries no transactions
// and is never persisted.
func GenesisBlock() *types.Block {
	return &types.Block{Header: types.BlockHeader{Height: 0}}
}

// Driver is the consensus event loop: single-threaded, owning the
// per-height state, the timer, and every outbound message this replica
// emits. Start, Stop, the Submit* methods, Snapshot, CommitEvents and
// Fatal are safe to call from other goroutines; everything else runs on
// the driver's own loop.
type Driver struct {
	reg    *registry.Registry
	self   types.ValidatorID
	priv   ed25519.PrivateKey
	mp     *mempool.Mempool
	st     *store.BlockStore
	tr     transport.Transport
	params Params
	clock  Clock
	log    *zap.SugaredLogger

	hs     *heightState
	timer  *viewTimer
	timerC <-chan time.Time

	futureMsgs map[uint64][]*types.Message

	commitCh chan *types.Block
	fatalCh  chan error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	stopOnce sync.Once

	// gaugeHeight/gaugeView mirror hs.height/hs.view for lock-free
	// observation by the RPC surface, which runs on a different
	// goroutine than the event loop that owns hs.
	gaugeHeight atomic.Uint64
	gaugeView   atomic.Uint64
}

// Snapshot reports this replica's current height, view, and whether it
// is the leader for that (view, height) pair — a lock-free read for the
// RPC surface's node_status(), tolerating a torn read of height vs. view
// across a height transition (the two gauges update independently).
func (d *Driver) Snapshot() (height, view uint64, isLeader bool) {
	height = d.gaugeHeight.Load()
	view = d.gaugeView.Load()
	return height, view, leader.IsLeader(d.reg, d.self, view, height)
}

func (d *Driver) updateGauges() {
	d.gaugeHeight.Store(d.hs.height)
	d.gaugeView.Store(d.hs.view)
}

// New constructs a driver for one replica. Call Start to begin the event
// loop at the store's latest height plus one.
func New(reg *registry.Registry, self types.ValidatorID, priv ed25519.PrivateKey, mp *mempool.Mempool, st *store.BlockStore, tr transport.Transport, params Params, log *zap.SugaredLogger) *Driver {
	return &Driver{
		reg:        reg,
		self:       self,
		priv:       priv,
		mp:         mp,
		st:         st,
		tr:         tr,
		params:     params,
		clock:      systemClock,
		log:        log,
		timer:      newViewTimer(params.ViewTimeoutBase, params.ViewTimeoutMax),
		futureMsgs: make(map[uint64][]*types.Message),
		commitCh:   make(chan *types.Block, 64),
		fatalCh:    make(chan error, 1),
	}
}

// CommitEvents is the best-effort fanout of committed blocks, for
// external observers (RPC subscriptions, tests).
func (d *Driver) CommitEvents() <-chan *types.Block { return d.commitCh }

// Fatal delivers at most one error, when the driver halts due to a
// detected safety violation or unrecoverable store failure; the event
// loop has stopped by then. cmd/bftnode logs the error. The driver
// itself never terminates the process.
func (d *Driver) Fatal() <-chan error { return d.fatalCh }

// Start begins the event loop at height st.LatestHeight()+1.
func (d *Driver) Start(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	startHeight := d.st.LatestHeight() + 1
	d.hs = newHeightState(startHeight)
	d.updateGauges()

	d.wg.Add(1)
	go d.loop()
}

// Stop cancels the event loop and waits for it to exit.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.running.Store(false)
	})
}

func (d *Driver) loop() {
	defer d.wg.Done()
	d.resetTimer(0)
	d.maybePropose(d.ctx)
	for {
		select {
		case <-d.ctx.Done():
			d.timer.stop()
			return
		case env := <-d.tr.Inbox():
			d.handleEnvelope(d.ctx, env)
		case <-d.timerC:
			d.handleTimeout(d.ctx)
		}
	}
}

// resetTimer arms the single per-height timer for view, replacing
// d.timerC with the new channel the loop selects on.
func (d *Driver) resetTimer(view uint64) {
	d.timerC = d.timer.reset(view)
}

func (d *Driver) handleEnvelope(ctx context.Context, env transport.Envelope) {
	switch env.Kind {
	case transport.KindTx:
		if env.Tx != nil {
			if err := d.mp.Insert(env.Tx); err != nil && d.log != nil {
				d.log.Debugf("consensus: rejected gossiped tx %s: %v", env.Tx.ID, err)
			}
		}
	case transport.KindBlock:
		d.handleBlockGossip(ctx, env.Block)
	case transport.KindConsensus:
		if env.Consensus != nil {
			d.dispatch(ctx, env.Consensus)
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, msg *types.Message) {
	latest := d.st.LatestHeight()
	if msg.Height <= latest {
		return // already committed
	}
	if msg.Height > d.hs.height {
		if msg.Height > d.hs.height+d.params.Validation.MaxFutureHeights {
			return
		}
		d.futureMsgs[msg.Height] = append(d.futureMsgs[msg.Height], msg)
		return
	}
	switch msg.Kind {
	case types.KindPropose:
		d.handlePropose(ctx, msg)
	case types.KindPrepare:
		d.handlePrepare(ctx, msg)
	case types.KindCommit:
		d.handleCommit(ctx, msg)
	case types.KindViewChange:
		d.handleViewChange(ctx, msg)
	case types.KindNewView:
		d.handleNewView(ctx, msg)
	}
}

func (d *Driver) nowMillis() uint64 { return d.clock() }

func (d *Driver) sign(msg *types.Message) {
	msg.Sign(d.self, d.priv)
}

func (d *Driver) broadcastConsensus(ctx context.Context, msg *types.Message) {
	if err := d.tr.Broadcast(ctx, transport.Envelope{Kind: transport.KindConsensus, Consensus: msg}); err != nil && d.log != nil {
		d.log.Warnf("consensus: broadcast %s failed: %v", msg, err)
	}
}

func (d *Driver) emitCommit(block *types.Block) {
	select {
	case d.commitCh <- block:
	default:
	}
}

func (d *Driver) halt(reason error) {
	if d.log != nil {
		d.log.Errorf("consensus: halting on safety violation: %v", reason)
	}
	select {
	case d.fatalCh <- reason:
	default:
	}
	if d.cancel != nil {
		d.cancel()
	}
}

// parentBlock returns the block at height-1, or the synthetic genesis
// block when height is 1.
func (d *Driver) parentBlock(height uint64) (*types.Block, error) {
	if height == 1 {
		return GenesisBlock(), nil
	}
	return d.st.GetBlockByHeight(height - 1)
}

func (d *Driver) buildProposal(view, height uint64) (*types.Block, error) {
	parent, err := d.parentBlock(height)
	if err != nil {
		return nil, fmt.Errorf("consensus: load parent for height %d: %w", height, err)
	}
	txs := d.mp.TakeForBlock(d.params.MaxTransactionsBlock, d.params.MaxBlockBytes)
	stateRoot, err := d.st.ComputeStateRoot(txs, d.params.Fee)
	if err != nil {
		return nil, fmt.Errorf("consensus: simulate state root for height %d: %w", height, err)
	}
	header := types.BlockHeader{
		Height:       height,
		PreviousHash: parent.Hash(),
		StateRoot:    stateRoot,
		TxRoot:       types.ComputeTxRoot(txs),
		Timestamp:    d.nowMillis(),
		Proposer:     d.self,
	}
	return &types.Block{Header: header, Transactions: txs}, nil
}

func (d *Driver) maybePropose(ctx context.Context) {
	if !leader.IsLeader(d.reg, d.self, d.hs.view, d.hs.height) {
		return
	}
	if d.hs.phase != PhaseIdle {
		return
	}
	block, err := d.buildProposal(d.hs.view, d.hs.height)
	if err != nil {
		if d.log != nil {
			d.log.Errorf("consensus: failed to build proposal: %v", err)
		}
		return
	}
	d.hs.rememberBlock(block)
	msg := &types.Message{Kind: types.KindPropose, View: d.hs.view, Height: d.hs.height, Block: block}
	d.sign(msg)
	d.broadcastConsensus(ctx, msg)
	d.handlePropose(ctx, msg)
}

// SubmitTransaction is the entry point for client and RPC submission: it
// inserts tx into this replica's own mempool, then gossips it so other
// replicas can include it even if this replica never proposes again.
func (d *Driver) SubmitTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := d.mp.Insert(tx); err != nil {
		return err
	}
	if err := d.tr.Broadcast(ctx, transport.Envelope{Kind: transport.KindTx, Tx: tx}); err != nil && d.log != nil {
		d.log.Warnf("consensus: gossip of tx %s failed: %v", tx.ID, err)
	}
	return nil
}
