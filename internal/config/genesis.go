// Package config loads genesis configuration: the chain parameters fixed
// at bootstrap, out of scope for consensus semantics but required to
// construct every component that implements them. Genesis is plain JSON
// (encoding/json): it is read once, by a human or a deploy script, and
// no library in the dependency surface offers anything encoding/json
// does not already do better for a small, rarely-changed config file.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// ErrInvalidGenesis is returned by Load/Validate for a structurally or
// semantically invalid genesis file.
var ErrInvalidGenesis = errors.New("config: invalid genesis")

// ValidatorEntry is one validator's genesis-time identity.
type ValidatorEntry struct {
	PublicKeyHex string `json:"public_key"`
	VotingPower  uint64 `json:"voting_power"`
}

// AccountEntry seeds one account's initial balance and nonce.
type AccountEntry struct {
	AddressHex string `json:"address"`
	Balance    uint64 `json:"balance"`
	Nonce      uint64 `json:"nonce"`
}

// Genesis is the node's bootstrap configuration: everything fixed for
// the lifetime of the chain and not itself part of consensus semantics.
type Genesis struct {
	ChainID               string           `json:"chain_id"`
	Validators            []ValidatorEntry `json:"validators"`
	Accounts              []AccountEntry   `json:"accounts"`
	BlockTimeTargetMillis uint64           `json:"block_time_target_millis"`
	MaxBlockSizeBytes     int              `json:"max_block_size_bytes"`
	MaxTransactionsPerBlock int            `json:"max_transactions_per_block"`
	MaxClockSkewMillis    uint64           `json:"max_clock_skew_millis"`
	MinFeePerByte         uint64           `json:"min_fee_per_byte"`
	BurnFees              bool             `json:"burn_fees"`
	FeeRecipientHex       string           `json:"fee_recipient,omitempty"`
	ViewTimeoutBaseMillis uint64           `json:"view_timeout_base_millis"`
	ViewTimeoutMaxMillis  uint64           `json:"view_timeout_max_millis"`
	MaxFutureHeights      uint64           `json:"max_future_heights"`
	MempoolCapacity       int              `json:"mempool_capacity"`
}

// Load reads and validates a genesis file at path.
func Load(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis %q: %w", path, err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks structural invariants and defaults unset optional
// parameters documented as configurable per the Open Questions this
// chain resolved at genesis. Fee disposition has no default: burn_fees
// must be true or fee_recipient must be set. Clock skew tolerance
// defaults to thirty seconds.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("%w: chain_id must be set", ErrInvalidGenesis)
	}
	if len(g.Validators) == 0 {
		return fmt.Errorf("%w: validator list must not be empty", ErrInvalidGenesis)
	}
	for i, v := range g.Validators {
		if _, err := hex.DecodeString(v.PublicKeyHex); err != nil {
			return fmt.Errorf("%w: validator %d public_key: %v", ErrInvalidGenesis, i, err)
		}
		if v.VotingPower == 0 {
			return fmt.Errorf("%w: validator %d voting_power must be positive", ErrInvalidGenesis, i)
		}
	}
	if g.MaxClockSkewMillis == 0 {
		g.MaxClockSkewMillis = 30_000
	}
	if g.ViewTimeoutBaseMillis == 0 {
		g.ViewTimeoutBaseMillis = 2_000
	}
	if g.ViewTimeoutMaxMillis == 0 {
		g.ViewTimeoutMaxMillis = 60_000
	}
	if g.MaxFutureHeights == 0 {
		g.MaxFutureHeights = 5
	}
	if g.MaxTransactionsPerBlock == 0 {
		g.MaxTransactionsPerBlock = 5000
	}
	if g.MaxBlockSizeBytes == 0 {
		g.MaxBlockSizeBytes = 1 << 20
	}
	if g.MempoolCapacity == 0 {
		g.MempoolCapacity = 10000
	}
	if !g.BurnFees && g.FeeRecipientHex == "" {
		return fmt.Errorf("%w: fee_recipient required when burn_fees is false", ErrInvalidGenesis)
	}
	return nil
}

// ValidatorPublicKeys decodes every validator's hex-encoded public key,
// in genesis order.
func (g *Genesis) ValidatorPublicKeys() ([]ed25519.PublicKey, error) {
	out := make([]ed25519.PublicKey, len(g.Validators))
	for i, v := range g.Validators {
		b, err := hex.DecodeString(v.PublicKeyHex)
		if err != nil || len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: validator %d public_key malformed", ErrInvalidGenesis, i)
		}
		out[i] = ed25519.PublicKey(b)
	}
	return out, nil
}

// VotingPowers returns every validator's voting power, in genesis order.
func (g *Genesis) VotingPowers() []uint64 {
	out := make([]uint64, len(g.Validators))
	for i, v := range g.Validators {
		out[i] = v.VotingPower
	}
	return out
}

// InitialAccounts decodes the genesis account list.
func (g *Genesis) InitialAccounts() ([]types.AccountState, error) {
	out := make([]types.AccountState, len(g.Accounts))
	for i, a := range g.Accounts {
		addr, err := crypto.AddressFromHex(a.AddressHex)
		if err != nil {
			return nil, fmt.Errorf("%w: account %d address: %v", ErrInvalidGenesis, i, err)
		}
		out[i] = types.AccountState{Address: addr, Balance: a.Balance, Nonce: a.Nonce}
	}
	return out, nil
}

// FeeRecipient decodes the configured fee recipient address, if any.
func (g *Genesis) FeeRecipient() (crypto.Address, error) {
	if g.FeeRecipientHex == "" {
		return crypto.ZeroAddress, nil
	}
	return crypto.AddressFromHex(g.FeeRecipientHex)
}
