// Package rpc is the node's read/write query surface: the in-process
// interface an RPC wire server would sit behind, per the query contract
// exposed in section 6 of the specification this node implements. No
// JSON-RPC encoding or HTTP listener is implemented here — that is the
// out-of-scope wire layer; this package defines and serves the contract
// directly.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/consensus"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/mempool"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// ErrNotFound is returned by lookups for a block, transaction, or account
// that does not exist.
var ErrNotFound = errors.New("rpc: not found")

// NodeStatus is the node_status() response shape.
type NodeStatus struct {
	Height      uint64
	View        uint64
	IsLeader    bool
	PeerCount   int
	MempoolSize int
	Syncing     bool
}

// ChainStats is the chain_stats() response shape. Height and the mempool
// fields are read fresh on each call; TotalAccounts and TotalSupply are
// not computed and are always zero.
type ChainStats struct {
	Height          uint64
	TotalAccounts   int
	TotalSupply     uint64
	MempoolSize     int
	MempoolFeeTotal uint64
}

// QueryService is the read/write surface named in the specification's
// query contract. An RPC wire server (out of scope here) would dispatch
// incoming requests onto this interface.
type QueryService interface {
	GetBlockByHeight(height uint64) (*types.Block, error)
	GetBlockByHash(hash crypto.Hash) (*types.Block, error)
	LatestBlock() (*types.Block, error)

	GetTransaction(id [16]byte) (*types.Transaction, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) ([16]byte, error)

	GetBalance(addr crypto.Address) (uint64, error)
	GetAccountHistory(addr crypto.Address, limit, offset int) ([]types.AccountState, error)

	NodeStatus() NodeStatus
	MempoolInfo() mempool.Stats
	MempoolTransactions(limit int) []*types.Transaction

	ChainStats() ChainStats
}

// Service implements QueryService against one replica's store, mempool,
// and consensus driver. It holds no lock of its own: the store and
// mempool are already safe for the concurrent read access this surface
// performs.
type Service struct {
	reg   *registry.Registry
	self  types.ValidatorID
	st    *store.BlockStore
	mp    *mempool.Mempool
	drv   *consensus.Driver
	peers int
}

// New constructs a Service. peerCount is a static count supplied by the
// caller (internal/bootstrap passes n-1 for an n-validator cluster);
// this package has no transport visibility of its own.
func New(reg *registry.Registry, self types.ValidatorID, st *store.BlockStore, mp *mempool.Mempool, drv *consensus.Driver, peerCount int) *Service {
	return &Service{reg: reg, self: self, st: st, mp: mp, drv: drv, peers: peerCount}
}

func (s *Service) GetBlockByHeight(height uint64) (*types.Block, error) {
	b, err := s.st.GetBlockByHeight(height)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) GetBlockByHash(hash crypto.Hash) (*types.Block, error) {
	b, err := s.st.GetBlockByHash(hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) LatestBlock() (*types.Block, error) {
	return s.GetBlockByHeight(s.st.LatestHeight())
}

// GetTransaction looks up id among pending mempool entries and, failing
// that, scans committed blocks back from the chain tip. The specification
// does not bound how far back to search; this implementation searches
// the whole committed chain, which is acceptable at the scale this node
// targets (no pruning, per the store's non-goals).
func (s *Service) GetTransaction(id [16]byte) (*types.Transaction, error) {
	if tx, ok := s.mp.Get(id); ok {
		return tx, nil
	}
	for h := s.st.LatestHeight(); h >= 1; h-- {
		b, err := s.st.GetBlockByHeight(h)
		if err != nil {
			break
		}
		for _, tx := range b.Transactions {
			if tx.ID == id {
				return tx, nil
			}
		}
	}
	return nil, ErrNotFound
}

// SendTransaction is the client-facing submission path: it delegates to
// the consensus driver, which validates against the mempool and gossips
// to peers.
func (s *Service) SendTransaction(ctx context.Context, tx *types.Transaction) ([16]byte, error) {
	if err := s.drv.SubmitTransaction(ctx, tx); err != nil {
		return [16]byte{}, fmt.Errorf("rpc: submit transaction: %w", err)
	}
	return tx.ID, nil
}

func (s *Service) GetBalance(addr crypto.Address) (uint64, error) {
	acct, ok := s.st.GetAccount(addr)
	if !ok {
		return 0, ErrNotFound
	}
	return acct.Balance, nil
}

// GetAccountHistory pages through addr's historical states, newest call
// returning the full committed history (the supplemented audit trail
// described in section 6) sliced to [offset, offset+limit).
func (s *Service) GetAccountHistory(addr crypto.Address, limit, offset int) ([]types.AccountState, error) {
	all, err := s.st.GetAccountHistory(addr)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// NodeStatus reports this replica's current height, view, leadership,
// and mempool size. Syncing is reported true when this replica knows of
// a higher committed height than its own (never observable purely from
// local state in this single-process harness; it is always false unless
// a future catch-up path threads in a peer's advertised height).
func (s *Service) NodeStatus() NodeStatus {
	height, view, isLeader := s.drv.Snapshot()
	return NodeStatus{
		Height:      height,
		View:        view,
		IsLeader:    isLeader,
		PeerCount:   s.peers,
		MempoolSize: s.mp.Size(),
		Syncing:     false,
	}
}

func (s *Service) MempoolInfo() mempool.Stats {
	return s.mp.Stats()
}

func (s *Service) MempoolTransactions(limit int) []*types.Transaction {
	return s.mp.TakeForBlock(limit, 0)
}

// ChainStats aggregates coarse statistics over the current mempool and
// chain tip. TotalAccounts and TotalSupply are not filled in and are
// always zero.
func (s *Service) ChainStats() ChainStats {
	mstats := s.mp.Stats()
	return ChainStats{
		Height:          s.st.LatestHeight(),
		MempoolSize:     mstats.Count,
		MempoolFeeTotal: mstats.TotalFees,
	}
}
