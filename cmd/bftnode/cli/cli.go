// Package cli builds the bftnode command tree, in the style of this
// repository's teacher lineage (cmd/empower1d/cli): a single cobra root
// command with subcommands, constructed by a free function rather than
// package-level state so tests can build and invoke it directly.
package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/bootstrap"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/config"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/store"
)

// NewCLI builds the bftnode root command.
func NewCLI() *cobra.Command {
	var genesisPath string
	var keysDir string
	var dataDir string

	root := &cobra.Command{
		Use:   "bftnode",
		Short: "bftnode runs an in-process BFT validator cluster from a genesis file.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start every validator named in genesis and run until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(genesisPath, keysDir, dataDir)
		},
	}
	runCmd.Flags().StringVar(&genesisPath, "genesis", "genesis.json", "path to the genesis file")
	runCmd.Flags().StringVar(&keysDir, "keys-dir", "keys", "directory of validator-<i>.pem private keys, matching genesis validator order")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory for each validator's BoltDB file")

	genKeysCmd := &cobra.Command{
		Use:   "genkeys [n]",
		Short: "Generate n Ed25519 validator keys and print the genesis validator entries they imply.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return genKeys(args[0], keysDir)
		},
	}
	genKeysCmd.Flags().StringVar(&keysDir, "keys-dir", "keys", "directory to write validator-<i>.pem private keys into")

	root.AddCommand(runCmd, genKeysCmd)
	return root
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func runCluster(genesisPath, keysDir, dataDir string) error {
	log := newLogger()
	defer log.Sync() //nolint:errcheck

	gen, err := config.Load(genesisPath)
	if err != nil {
		return fmt.Errorf("bftnode: load genesis: %w", err)
	}

	privs, err := loadKeys(keysDir, len(gen.Validators))
	if err != nil {
		return fmt.Errorf("bftnode: load keys: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("bftnode: create data dir: %w", err)
	}

	cluster, err := bootstrap.New(gen, privs, func(i int) (store.KVStore, error) {
		return store.OpenBolt(filepath.Join(dataDir, fmt.Sprintf("validator-%d.db", i)))
	}, log)
	if err != nil {
		return fmt.Errorf("bftnode: build cluster: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cluster.Start(ctx)
	log.Infof("bftnode: started %d validators for chain %q", len(cluster.Replicas), gen.ChainID)

	for _, r := range cluster.Replicas {
		r := r
		go func() {
			for b := range r.Driver.CommitEvents() {
				log.Infof("validator %d observed commit: %s", r.ID, b)
			}
		}()
		go func() {
			for err := range r.Driver.Fatal() {
				log.Errorf("validator %d halted: %v", r.ID, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("bftnode: shutting down")
	cluster.Stop(log)
	return nil
}

func loadKeys(dir string, n int) ([]ed25519.PrivateKey, error) {
	out := make([]ed25519.PrivateKey, n)
	for i := 0; i < n; i++ {
		w, err := crypto.LoadWallet(filepath.Join(dir, fmt.Sprintf("validator-%d.pem", i)))
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		out[i] = w.PrivateKey()
	}
	return out, nil
}

// genKeys generates n validator wallets and prints the genesis
// "validators" entries they imply, identifying each one by its
// multicodec/multibase validator ID (the same human-readable form
// logged at runtime) alongside the raw hex key genesis itself needs.
func genKeys(nArg, keysDir string) error {
	var n int
	if _, err := fmt.Sscanf(nArg, "%d", &n); err != nil || n <= 0 {
		return fmt.Errorf("bftnode: invalid validator count %q", nArg)
	}
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("bftnode: create keys dir: %w", err)
	}
	fmt.Println(`"validators": [`)
	for i := 0; i < n; i++ {
		w, err := crypto.NewWallet()
		if err != nil {
			return fmt.Errorf("bftnode: generate key %d: %w", i, err)
		}
		path := filepath.Join(keysDir, fmt.Sprintf("validator-%d.pem", i))
		if err := w.Save(path); err != nil {
			return fmt.Errorf("bftnode: save key %d: %w", i, err)
		}
		vid, err := crypto.EncodeValidatorID(w.PublicKey())
		if err != nil {
			return fmt.Errorf("bftnode: encode validator id %d: %w", i, err)
		}
		comma := ","
		if i == n-1 {
			comma = ""
		}
		fmt.Printf("  {\"public_key\": \"%x\", \"voting_power\": 1}%s  // %s\n", []byte(w.PublicKey()), comma, vid)
	}
	fmt.Println("]")
	return nil
}
