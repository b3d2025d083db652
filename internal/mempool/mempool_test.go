package mempool

import (
	"crypto/ed25519"
	"testing"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

type memAccounts map[crypto.Address]types.AccountState

func (m memAccounts) GetAccount(addr crypto.Address) (types.AccountState, bool) {
	a, ok := m[addr]
	return a, ok
}

func newKey(t *testing.T) (ed25519.PrivateKey, crypto.Address) {
	t.Helper()
	priv, pub, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey() error = %v", err)
	}
	return priv, crypto.AddressFromPublicKey(pub)
}

func signedTx(priv ed25519.PrivateKey, from, to crypto.Address, amount, fee, nonce, ts uint64) *types.Transaction {
	tx := types.NewTransaction(from, to, amount, fee, nonce, ts, nil)
	tx.Sign(priv)
	return tx
}

func TestInsertAndTakeForBlockKeepsNonceOrderOverFee(t *testing.T) {
	priv, from := newKey(t)
	_, to := newKey(t)
	accounts := memAccounts{from: {Address: from, Balance: 100000, Nonce: 0}}
	mp, err := New(accounts, validation.Params{MinFeePerByte: 1}, 10, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	low := signedTx(priv, from, to, 10, 5, 0, 100)
	high := signedTx(priv, from, to, 10, 50, 1, 100)
	if err := mp.Insert(low); err != nil {
		t.Fatalf("Insert(low) error = %v", err)
	}
	if err := mp.Insert(high); err != nil {
		t.Fatalf("Insert(high) error = %v", err)
	}

	got := mp.TakeForBlock(10, 1<<20)
	if len(got) != 2 {
		t.Fatalf("TakeForBlock() returned %d txs, want 2", len(got))
	}
	if got[0].ID != low.ID {
		t.Fatalf("expected contiguous-nonce tx with nonce 0 first despite lower fee, got %s", got[0].ID)
	}
}

func TestReplaceByFee(t *testing.T) {
	priv, from := newKey(t)
	_, to := newKey(t)
	accounts := memAccounts{from: {Address: from, Balance: 100000, Nonce: 0}}
	mp, err := New(accounts, validation.Params{MinFeePerByte: 1}, 10, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	original := signedTx(priv, from, to, 10, 5, 0, 100)
	if err := mp.Insert(original); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	lowerFee := signedTx(priv, from, to, 10, 4, 0, 100)
	if err := mp.Insert(lowerFee); err == nil {
		t.Fatalf("expected replace-by-fee to reject a lower-fee replacement")
	}

	higherFee := signedTx(priv, from, to, 10, 6, 0, 100)
	if err := mp.Insert(higherFee); err != nil {
		t.Fatalf("Insert(higher fee replacement) error = %v", err)
	}
	if mp.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after replace-by-fee", mp.Size())
	}
	if _, ok := mp.Get(original.ID); ok {
		t.Fatalf("original transaction should have been superseded")
	}
	if _, ok := mp.Get(higherFee.ID); !ok {
		t.Fatalf("higher-fee replacement should be pending")
	}
}

func TestTakeForBlockSkipsNonceGap(t *testing.T) {
	priv, from := newKey(t)
	_, to := newKey(t)
	accounts := memAccounts{from: {Address: from, Balance: 100000, Nonce: 0}}
	mp, err := New(accounts, validation.Params{MinFeePerByte: 1}, 10, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	gapped := signedTx(priv, from, to, 10, 100, 2, 100) // nonce 2, but account nonce is 0: a gap
	if err := mp.Insert(gapped); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	got := mp.TakeForBlock(10, 1<<20)
	if len(got) != 0 {
		t.Fatalf("TakeForBlock() returned %d txs, want 0 (gap should block draining)", len(got))
	}
}

func TestRemoveCommittedDropsStaleEntries(t *testing.T) {
	priv, from := newKey(t)
	_, to := newKey(t)
	accounts := memAccounts{from: {Address: from, Balance: 100000, Nonce: 0}}
	mp, err := New(accounts, validation.Params{MinFeePerByte: 1}, 10, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tx0 := signedTx(priv, from, to, 10, 5, 0, 100)
	tx1 := signedTx(priv, from, to, 10, 5, 1, 100)
	if err := mp.Insert(tx0); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mp.Insert(tx1); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	accounts[from] = types.AccountState{Address: from, Balance: 100000 - 15, Nonce: 1}
	mp.RemoveCommitted([]*types.Transaction{tx0})

	if mp.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after committing tx0", mp.Size())
	}
	if _, ok := mp.Get(tx0.ID); ok {
		t.Fatalf("committed tx0 should be removed")
	}
	if _, ok := mp.Get(tx1.ID); !ok {
		t.Fatalf("tx1 should remain pending")
	}
}

func TestPoolFullEvictsEarliestEntryToAdmitNew(t *testing.T) {
	priv, from := newKey(t)
	_, to := newKey(t)
	accounts := memAccounts{from: {Address: from, Balance: 1 << 30, Nonce: 0}}
	mp, err := New(accounts, validation.Params{MinFeePerByte: 1}, 2, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Fill capacity with nonces 0 and 1, then try a third: the nonce-0
	// entry is the sender's earliest pending nonce, so it is evictable.
	if err := mp.Insert(signedTx(priv, from, to, 1, 10, 0, 100)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mp.Insert(signedTx(priv, from, to, 1, 20, 1, 100)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mp.Insert(signedTx(priv, from, to, 1, 30, 2, 100)); err != nil {
		t.Fatalf("Insert(third, higher fee) error = %v, want eviction to succeed", err)
	}
	if mp.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 after capacity-bounded eviction", mp.Size())
	}
}
