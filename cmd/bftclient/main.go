// Command bftclient is a reference in-process client: the query
// contract exposed by internal/rpc has no wire server in front of it
// (per the specification's out-of-scope transport layer), so the way
// to exercise it is to build a small cluster in the same process, as
// this program does, and call straight into the QueryService it returns.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"time"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/bootstrap"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/config"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

func main() {
	const n = 4

	privs := make([]ed25519.PrivateKey, n)
	pubs := make([]ed25519.PublicKey, n)
	addrs := make([]crypto.Address, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatalf("generate key %d: %v", i, err)
		}
		privs[i] = priv
		pubs[i] = pub
		addrs[i] = crypto.AddressFromPublicKey(pub)
	}

	gen := &config.Genesis{
		ChainID:       "bftclient-demo",
		MinFeePerByte: 1,
		BurnFees:      true,
	}
	for _, pub := range pubs {
		gen.Validators = append(gen.Validators, config.ValidatorEntry{
			PublicKeyHex: fmt.Sprintf("%x", []byte(pub)),
			VotingPower:  1,
		})
	}
	gen.Accounts = []config.AccountEntry{
		{AddressHex: addrs[0].String(), Balance: 1_000_000},
	}
	if err := gen.Validate(); err != nil {
		log.Fatalf("genesis: %v", err)
	}

	cluster, err := bootstrap.New(gen, privs, func(i int) (store.KVStore, error) {
		return store.NewMemKVStore(), nil
	}, nil)
	if err != nil {
		log.Fatalf("build cluster: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cluster.Start(ctx)
	defer cluster.Stop(nil)

	tx := types.NewTransaction(addrs[0], addrs[1], 100, 10, 0, uint64(time.Now().UnixMilli()), nil)
	tx.Sign(privs[0])

	svc := cluster.Replicas[0].Service
	if _, err := svc.SendTransaction(ctx, tx); err != nil {
		log.Fatalf("send transaction: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if svc.NodeStatus().Height >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	status := svc.NodeStatus()
	fmt.Printf("height=%d view=%d mempool=%d\n", status.Height, status.View, status.MempoolSize)

	bal, err := svc.GetBalance(addrs[1])
	if err != nil {
		log.Fatalf("get balance: %v", err)
	}
	fmt.Printf("recipient balance=%d\n", bal)
}
