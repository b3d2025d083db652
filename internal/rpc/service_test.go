package rpc

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/consensus"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/mempool"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/transport"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

func newTestService(t *testing.T) (*Service, crypto.Address, *consensus.Driver) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	reg, err := registry.New([]ed25519.PublicKey{pub}, []uint64{1})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	addr := reg.Validators()[0].Address

	kv := store.NewMemKVStore()
	fee := store.FeePolicy{Burn: true}
	bs, err := store.Open(kv, fee, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := bs.InitGenesis([]types.AccountState{{Address: addr, Balance: 1000, Nonce: 0}}); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}

	valParams := validation.Params{MinFeePerByte: 1, MaxClockSkewMillis: 30_000, MaxFutureHeights: 8}
	mp, err := mempool.New(bs, valParams, 100, nil)
	if err != nil {
		t.Fatalf("mempool.New: %v", err)
	}

	net := transport.NewLocalNetwork([]types.ValidatorID{0}, 16)
	cParams := consensus.Params{
		Validation:           valParams,
		Fee:                  fee,
		MaxTransactionsBlock: 10,
		MaxBlockBytes:        1 << 16,
		ViewTimeoutBase:      50 * time.Millisecond,
		ViewTimeoutMax:       200 * time.Millisecond,
	}
	drv := consensus.New(reg, 0, priv, mp, bs, net.Bus(0), cParams, nil)
	svc := New(reg, 0, bs, mp, drv, 0)
	return svc, addr, drv
}

func TestGetBalanceKnownAndUnknownAddress(t *testing.T) {
	svc, addr, _ := newTestService(t)
	bal, err := svc.GetBalance(addr)
	if err != nil || bal != 1000 {
		t.Fatalf("GetBalance = %d, %v; want 1000, nil", bal, err)
	}
	if _, err := svc.GetBalance(crypto.Address{0xFF}); err != ErrNotFound {
		t.Fatalf("GetBalance for unknown address = %v, want ErrNotFound", err)
	}
}

func TestNodeStatusReportsMempoolSize(t *testing.T) {
	svc, _, _ := newTestService(t)
	status := svc.NodeStatus()
	if status.MempoolSize != 0 {
		t.Fatalf("MempoolSize = %d, want 0 for empty pool", status.MempoolSize)
	}
}

func TestSendTransactionRejectsUnsigned(t *testing.T) {
	svc, addr, drv := newTestService(t)
	_ = drv
	other := crypto.Address{1, 2, 3}
	// Built with NewTransaction and never signed, so the submission path
	// must reject it.
	tx := types.NewTransaction(addr, other, 1, 1, 0, 1, nil)
	if _, err := svc.SendTransaction(context.Background(), tx); err == nil {
		t.Fatalf("expected unsigned transaction to be rejected")
	}
}
