// Package mempool holds pending, signed-but-uncommitted transactions. It
// is single-writer: the driver and RPC submission path serialize through
// Insert; readers (proposal construction, RPC stats) observe a consistent
// snapshot taken under the pool's lock.
package mempool

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

const defaultCapacity = 10000

var (
	// ErrPoolInit is returned by New for invalid construction parameters.
	ErrPoolInit = errors.New("mempool initialization error")
	// ErrPoolFull is returned by Insert when capacity is exhausted and no
	// pending entry is evictable.
	ErrPoolFull = errors.New("mempool capacity is full")
)

// AccountSource supplies the current on-chain account state the pool
// validates incoming transactions against.
type AccountSource interface {
	GetAccount(addr crypto.Address) (types.AccountState, bool)
}

// entry is one pending transaction plus its heap bookkeeping.
type entry struct {
	tx    *types.Transaction
	index int // heap.Interface bookkeeping
}

// feeHeap orders entries fee-descending, tie-broken by lower timestamp
// then lower id, per the pool's priority-queue contract.
type feeHeap []*entry

func (h feeHeap) Len() int { return len(h) }
func (h feeHeap) Less(i, j int) bool {
	a, b := h[i].tx, h[j].tx
	if a.Fee != b.Fee {
		return a.Fee > b.Fee
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return idLess(a.ID, b.ID)
}
func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *feeHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *feeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// higherPriority reports whether a ranks ahead of b under the pool's
// fee-descending, then lower-timestamp, then lower-id ordering.
func higherPriority(a, b *entry) bool {
	return feeHeap{a, b}.Less(0, 1)
}

func idLess(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// senderBook is one sender's pending transactions, ordered by nonce.
type senderBook map[uint64]*entry

// Stats summarizes the pool's current contents.
type Stats struct {
	Count       int
	TotalFees   uint64
	Senders     int
	FeeBuckets  map[uint64]int // fee -> count, a coarse histogram
}

// Mempool is the node's pending-transaction pool: a fee-priority queue,
// an id->tx dedup index, and a per-sender nonce index, kept consistent
// under a single lock.
type Mempool struct {
	mu       sync.Mutex
	byID     map[[16]byte]*entry
	bySender map[crypto.Address]senderBook
	heap     feeHeap
	capacity int

	accounts AccountSource
	params   validation.Params
	log      *zap.SugaredLogger
}

// New constructs an empty pool bounded to capacity entries (defaultCapacity
// if capacity <= 0).
func New(accounts AccountSource, params validation.Params, capacity int, log *zap.SugaredLogger) (*Mempool, error) {
	if accounts == nil {
		return nil, fmt.Errorf("%w: account source must not be nil", ErrPoolInit)
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Mempool{
		byID:     make(map[[16]byte]*entry),
		bySender: make(map[crypto.Address]senderBook),
		heap:     make(feeHeap, 0),
		capacity: capacity,
		accounts: accounts,
		params:   params,
		log:      log,
	}, nil
}

// Insert validates and admits tx. Per the replace-by-fee rule, a
// transaction sharing (from, nonce) with a pending entry is accepted
// only if its fee is strictly higher, superseding the old entry. If the
// pool is at capacity, the lowest-fee evictable entry (one whose sender
// has no gap-free earliest slot depending on it) is dropped to make room.
func (mp *Mempool) Insert(tx *types.Transaction) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	_, dup := mp.byID[tx.ID]
	book := mp.bySender[tx.From]
	var supersedes *entry
	if book != nil {
		if existing, ok := book[tx.Nonce]; ok {
			if tx.Fee <= existing.tx.Fee {
				return fmt.Errorf("mempool: %w: (from=%s nonce=%d) already pending at fee %d", validation.ErrFeeTooLow, tx.From, tx.Nonce, existing.tx.Fee)
			}
			supersedes = existing
		}
	}

	if err := validation.ValidateTx(tx, mp.accounts, mp.params, dup && supersedes == nil, false); err != nil {
		return err
	}

	if supersedes == nil && len(mp.byID) >= mp.capacity {
		if !mp.evictOneLocked() {
			return ErrPoolFull
		}
	}

	if supersedes != nil {
		mp.removeEntryLocked(supersedes)
	}

	e := &entry{tx: tx}
	mp.byID[tx.ID] = e
	if mp.bySender[tx.From] == nil {
		mp.bySender[tx.From] = make(senderBook)
	}
	mp.bySender[tx.From][tx.Nonce] = e
	heap.Push(&mp.heap, e)

	if mp.log != nil {
		mp.log.Debugf("mempool: admitted tx %s from=%s nonce=%d fee=%d pool_size=%d", tx.ID, tx.From, tx.Nonce, tx.Fee, len(mp.byID))
	}
	return nil
}

// evictOneLocked drops the lowest-fee entry whose sender's earliest
// pending nonce is the one being evicted (evicting a gap-free earliest
// entry is always safe: nothing after it can ever be drained anyway
// once it is gone). Reports whether an entry was evicted.
func (mp *Mempool) evictOneLocked() bool {
	// The heap array is not sorted by fee, so scan every entry and keep the
	// lowest-priority one that is its sender's earliest pending nonce.
	var victim *entry
	for _, e := range mp.heap {
		book := mp.bySender[e.tx.From]
		earliest := uint64(0)
		first := true
		for nonce := range book {
			if first || nonce < earliest {
				earliest = nonce
				first = false
			}
		}
		if earliest == e.tx.Nonce && (victim == nil || higherPriority(victim, e)) {
			victim = e
		}
	}
	if victim == nil {
		return false
	}
	mp.removeEntryLocked(victim)
	if mp.log != nil {
		mp.log.Warnf("mempool: evicted tx %s from=%s nonce=%d fee=%d to make room", victim.tx.ID, victim.tx.From, victim.tx.Nonce, victim.tx.Fee)
	}
	return true
}

func (mp *Mempool) removeEntryLocked(e *entry) {
	delete(mp.byID, e.tx.ID)
	if book := mp.bySender[e.tx.From]; book != nil {
		delete(book, e.tx.Nonce)
		if len(book) == 0 {
			delete(mp.bySender, e.tx.From)
		}
	}
	if e.index >= 0 && e.index < len(mp.heap) {
		heap.Remove(&mp.heap, e.index)
	}
}

// TakeForBlock selects up to limitCount transactions (and at most
// limitBytes of payload) in fee-priority order without removing them from
// the pool (committed ones leave through RemoveCommitted), skipping any transaction
// whose sender has a gap before it (no contiguous nonce run starting at
// the account's current nonce). The returned order is the order the
// block must apply them in.
func (mp *Mempool) TakeForBlock(limitCount, limitBytes int) []*types.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	out := make([]*types.Transaction, 0, limitCount)
	nextNonce := make(map[crypto.Address]uint64)
	size := 0

	candidates := make([]*entry, len(mp.heap))
	copy(candidates, mp.heap)
	for len(candidates) > 0 && len(out) < limitCount {
		bestIdx := -1
		for i, e := range candidates {
			if e == nil {
				continue
			}
			if !mp.readyLocked(e, nextNonce) {
				continue
			}
			if bestIdx == -1 || higherPriority(e, candidates[bestIdx]) {
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		e := candidates[bestIdx]
		candidates[bestIdx] = nil

		encoded := len(e.tx.Data) + 160 // approximate fixed overhead for the rest of the fields
		if size+encoded > limitBytes && limitBytes > 0 {
			continue
		}
		size += encoded
		out = append(out, e.tx)
		nextNonce[e.tx.From] = e.tx.Nonce + 1
	}
	return out
}

// readyLocked reports whether e's sender has no gap before e.tx.Nonce:
// either e is the account's current nonce, or the immediately preceding
// nonce has already been selected in this draining pass.
func (mp *Mempool) readyLocked(e *entry, selected map[crypto.Address]uint64) bool {
	acct, _ := mp.accounts.GetAccount(e.tx.From)
	want, ok := selected[e.tx.From]
	if !ok {
		want = acct.Nonce
	}
	return e.tx.Nonce == want
}

// RemoveCommitted drops every transaction in block from the pool, plus
// any now-stale entry whose nonce has fallen behind its account's
// current nonce (superseded by a transaction committed in this block).
func (mp *Mempool) RemoveCommitted(txs []*types.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		if e, ok := mp.byID[tx.ID]; ok {
			mp.removeEntryLocked(e)
		}
	}
	for addr, book := range mp.bySender {
		acct, _ := mp.accounts.GetAccount(addr)
		for nonce, e := range book {
			if nonce < acct.Nonce {
				mp.removeEntryLocked(e)
			}
		}
	}
	if mp.log != nil {
		mp.log.Infof("mempool: removed %d committed transactions, pool_size=%d", len(txs), len(mp.byID))
	}
}

// Stats returns a snapshot summary of the pool's current contents.
func (mp *Mempool) Stats() Stats {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	s := Stats{Count: len(mp.byID), Senders: len(mp.bySender), FeeBuckets: make(map[uint64]int)}
	for _, e := range mp.byID {
		s.TotalFees += e.tx.Fee
		s.FeeBuckets[e.tx.Fee]++
	}
	return s
}

// Size returns the current number of pending transactions.
func (mp *Mempool) Size() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.byID)
}

// Get returns the pending transaction with the given id, if any.
func (mp *Mempool) Get(id [16]byte) (*types.Transaction, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	e, ok := mp.byID[id]
	if !ok {
		return nil, false
	}
	return e.tx, true
}
