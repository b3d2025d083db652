package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeGenesis(t *testing.T, g Genesis) string {
	t.Helper()
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	path := writeGenesis(t, Genesis{
		ChainID:    "test-chain",
		Validators: []ValidatorEntry{{PublicKeyHex: hex.EncodeToString(pub), VotingPower: 1}},
		BurnFees:   true,
	})
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.MaxClockSkewMillis != 30_000 {
		t.Errorf("MaxClockSkewMillis = %d, want default 30000", g.MaxClockSkewMillis)
	}
	if g.MaxFutureHeights != 5 {
		t.Errorf("MaxFutureHeights = %d, want default 5", g.MaxFutureHeights)
	}
}

func TestLoadRejectsMissingFeeRecipient(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	path := writeGenesis(t, Genesis{
		ChainID:    "test-chain",
		Validators: []ValidatorEntry{{PublicKeyHex: hex.EncodeToString(pub), VotingPower: 1}},
		BurnFees:   false,
	})
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when burn_fees is false and fee_recipient unset")
	}
}

func TestLoadRejectsEmptyValidators(t *testing.T) {
	path := writeGenesis(t, Genesis{ChainID: "test-chain", BurnFees: true})
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty validator list")
	}
}

func TestValidatorPublicKeysRoundTrip(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	path := writeGenesis(t, Genesis{
		ChainID:    "test-chain",
		Validators: []ValidatorEntry{{PublicKeyHex: hex.EncodeToString(pub), VotingPower: 3}},
		BurnFees:   true,
	})
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	keys, err := g.ValidatorPublicKeys()
	if err != nil {
		t.Fatalf("ValidatorPublicKeys() error = %v", err)
	}
	if len(keys) != 1 || !keys[0].Equal(pub) {
		t.Fatalf("ValidatorPublicKeys() = %v, want [%v]", keys, pub)
	}
	if power := g.VotingPowers(); len(power) != 1 || power[0] != 3 {
		t.Fatalf("VotingPowers() = %v, want [3]", power)
	}
}
