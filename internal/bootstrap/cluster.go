// Package bootstrap wires a genesis configuration, a validator registry,
// and one store/mempool/driver/service set per validator into a runnable
// cluster. It is the one place cmd/bftnode and cmd/bftclient share: both
// need the same construction sequence, just pointed at different
// key sets and key-value backends.
package bootstrap

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/config"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/consensus"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/mempool"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/rpc"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/transport"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

// Replica bundles the four objects one validator needs: its durable
// store, its mempool, its consensus driver, and the query surface built
// on top of them.
type Replica struct {
	ID      types.ValidatorID
	Store   *store.BlockStore
	Mempool *mempool.Mempool
	Driver  *consensus.Driver
	Service *rpc.Service
}

// Cluster is every replica named in a genesis file, wired over a shared
// transport (in-process LocalNetwork, per the transport contract's
// out-of-scope wire layer).
type Cluster struct {
	Registry *registry.Registry
	Replicas []*Replica
	Network  *transport.LocalNetwork
}

// New constructs a Cluster from genesis and the matching private key for
// every validator it names, in registry order. kvFor supplies a fresh
// KVStore per validator index (a BoltKVStore file path in production, an
// in-memory store in tests/demos). log may be nil.
func New(gen *config.Genesis, privs []ed25519.PrivateKey, kvFor func(index int) (store.KVStore, error), log *zap.SugaredLogger) (*Cluster, error) {
	pubs, err := gen.ValidatorPublicKeys()
	if err != nil {
		return nil, err
	}
	if len(privs) != len(pubs) {
		return nil, fmt.Errorf("bootstrap: %d private keys supplied for %d genesis validators", len(privs), len(pubs))
	}
	reg, err := registry.New(pubs, gen.VotingPowers())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build registry: %w", err)
	}
	accounts, err := gen.InitialAccounts()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: decode genesis accounts: %w", err)
	}
	feeRecipient, err := gen.FeeRecipient()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: decode fee recipient: %w", err)
	}
	fee := store.FeePolicy{Burn: gen.BurnFees, Recipient: feeRecipient}
	valParams := validation.Params{
		MinFeePerByte:      gen.MinFeePerByte,
		MaxClockSkewMillis: gen.MaxClockSkewMillis,
		MaxFutureHeights:   gen.MaxFutureHeights,
	}
	cParams := consensus.Params{
		Validation:           valParams,
		Fee:                  fee,
		MaxTransactionsBlock: gen.MaxTransactionsPerBlock,
		MaxBlockBytes:        gen.MaxBlockSizeBytes,
		ViewTimeoutBase:      time.Duration(gen.ViewTimeoutBaseMillis) * time.Millisecond,
		ViewTimeoutMax:       time.Duration(gen.ViewTimeoutMaxMillis) * time.Millisecond,
	}

	n := reg.N()
	ids := make([]types.ValidatorID, n)
	for i := range ids {
		ids[i] = types.ValidatorID(i)
	}
	net := transport.NewLocalNetwork(ids, 1024)

	replicas := make([]*Replica, n)
	for i := 0; i < n; i++ {
		kv, err := kvFor(i)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open store for validator %d: %w", i, err)
		}
		bs, err := store.Open(kv, fee, log)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open block store for validator %d: %w", i, err)
		}
		if !bs.HasGenesis() {
			if err := bs.InitGenesis(accounts); err != nil {
				return nil, fmt.Errorf("bootstrap: init genesis for validator %d: %w", i, err)
			}
		}
		mp, err := mempool.New(bs, valParams, gen.MempoolCapacity, log)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build mempool for validator %d: %w", i, err)
		}
		id := types.ValidatorID(i)
		drv := consensus.New(reg, id, privs[i], mp, bs, net.Bus(id), cParams, log)
		svc := rpc.New(reg, id, bs, mp, drv, n-1)
		replicas[i] = &Replica{ID: id, Store: bs, Mempool: mp, Driver: drv, Service: svc}
	}

	return &Cluster{Registry: reg, Replicas: replicas, Network: net}, nil
}

// Start begins every replica's consensus event loop.
func (c *Cluster) Start(ctx context.Context) {
	for _, r := range c.Replicas {
		r.Driver.Start(ctx)
	}
}

// Stop cancels every replica's event loop, waits for each to exit, then
// closes its store.
func (c *Cluster) Stop(log *zap.SugaredLogger) {
	for _, r := range c.Replicas {
		r.Driver.Stop()
	}
	for _, r := range c.Replicas {
		if err := r.Store.Close(); err != nil && log != nil {
			log.Warnf("bootstrap: close store for validator %d: %v", r.ID, err)
		}
	}
}
