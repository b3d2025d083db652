// Package validation implements the three pure validation predicates that
// gate every transaction, block, and consensus vote admitted anywhere in
// the node: validate_tx, validate_block, validate_vote.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/leader"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// Errors returned by validate_tx, in the vocabulary the specification
// names: BadFormat, BadSignature, BadNonce, InsufficientBalance,
// DuplicateId, FeeTooLow, Expired.
var (
	ErrBadFormat           = errors.New("bad format")
	ErrBadSignature        = errors.New("bad signature")
	ErrBadNonce            = errors.New("bad nonce")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateID         = errors.New("duplicate transaction id")
	ErrFeeTooLow           = errors.New("fee too low")
	ErrExpired             = errors.New("expired")

	ErrBadHeight       = errors.New("bad block height")
	ErrBadPreviousHash = errors.New("bad previous hash")
	ErrBadTxRoot       = errors.New("bad tx root")
	ErrBadStateRoot    = errors.New("bad state root")
	ErrBadProposer     = errors.New("bad proposer")
	ErrBadTimestamp    = errors.New("bad block timestamp")

	ErrUnknownSender  = errors.New("vote sender not in registry")
	ErrStaleVote      = errors.New("vote is for a past view or height")
	ErrFutureVote     = errors.New("vote is too far in the future to buffer")
)

// AccountView is the minimal read-only account lookup validate_tx and
// validate_block need from the store/mempool snapshot. Implemented by
// *store.BlockStore and by in-memory snapshots used in tests.
type AccountView interface {
	GetAccount(addr crypto.Address) (types.AccountState, bool)
}

// Params are the genesis-fixed parameters validation depends on: the
// minimum fee-per-byte floor, the allowed clock skew, and the window of
// future heights a vote may be buffered for.
type Params struct {
	MinFeePerByte      uint64
	MaxClockSkewMillis uint64
	MaxFutureHeights   uint64
}

// ValidateTx runs the structural, cryptographic, and semantic checks a
// transaction must pass before mempool admission. duplicateID reports
// whether a transaction with the same ID is already known (duplicate
// check); requireExactNonce, when true, requires an exact nonce match
// rather than nonce ≥ account.nonce (apply-time requires k = 0).
func ValidateTx(tx *types.Transaction, accounts AccountView, params Params, duplicateID bool, requireExactNonce bool) error {
	// Format, cheapest first.
	if tx.From.IsZero() || tx.To.IsZero() {
		return fmt.Errorf("%w: zero address", ErrBadFormat)
	}
	if len(tx.Data) > types.MaxTransactionDataBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrBadFormat, types.MaxTransactionDataBytes)
	}
	if tx.Amount > math.MaxUint64-tx.Fee {
		return fmt.Errorf("%w: amount+fee overflows", ErrBadFormat)
	}
	if duplicateID {
		return ErrDuplicateID
	}

	// Signature.
	if !tx.VerifySignature() {
		return ErrBadSignature
	}

	// Fee floor, proportional to payload size plus one.
	minFee := params.MinFeePerByte * uint64(len(tx.Data)+1)
	if tx.Fee < minFee {
		return fmt.Errorf("%w: fee %d below floor %d", ErrFeeTooLow, tx.Fee, minFee)
	}

	// Semantic: nonce and balance, against the sender's current account.
	acct, _ := accounts.GetAccount(tx.From)
	if requireExactNonce {
		if tx.Nonce != acct.Nonce {
			return fmt.Errorf("%w: tx nonce %d, want exactly %d", ErrBadNonce, tx.Nonce, acct.Nonce)
		}
	} else if tx.Nonce < acct.Nonce {
		return fmt.Errorf("%w: tx nonce %d below account nonce %d", ErrBadNonce, tx.Nonce, acct.Nonce)
	}
	total, err := tx.TotalDebit()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if acct.Balance < total {
		return fmt.Errorf("%w: balance %d < required %d", ErrInsufficientBalance, acct.Balance, total)
	}
	return nil
}

// BlockContext bundles the context validate_block checks a proposal
// against: the parent block, the view it was proposed in, the local
// clock, and the state root a simulated application of the block yields.
type BlockContext struct {
	Parent          *types.Block
	View            uint64
	LocalTimeMillis uint64
	SimulatedRoot   crypto.Hash // state_root after simulated application; computed by the caller
}

// ValidateBlock checks block against parent, the leader schedule, and a
// bounded clock skew. It does not itself simulate application; callers
// supply the resulting state root via ctx.SimulatedRoot so the check
// order stays format → structure → state, with no partial mutation on
// failure.
func ValidateBlock(block *types.Block, ctx BlockContext, reg *registry.Registry, params Params) error {
	h := block.Header
	if h.Height != ctx.Parent.Header.Height+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrBadHeight, h.Height, ctx.Parent.Header.Height+1)
	}
	if h.PreviousHash != ctx.Parent.Hash() {
		return fmt.Errorf("%w", ErrBadPreviousHash)
	}

	for _, tx := range block.Transactions {
		if !tx.VerifySignature() {
			return fmt.Errorf("%w: tx %s", ErrBadSignature, tx.ID)
		}
	}
	if got := types.ComputeTxRoot(block.Transactions); got != h.TxRoot {
		return fmt.Errorf("%w: got %s, want %s", ErrBadTxRoot, got, h.TxRoot)
	}
	if ctx.SimulatedRoot != h.StateRoot {
		return fmt.Errorf("%w: got %s, want %s", ErrBadStateRoot, h.StateRoot, ctx.SimulatedRoot)
	}

	wantProposer := leader.ForViewHeight(reg, ctx.View, h.Height)
	if h.Proposer != wantProposer {
		return fmt.Errorf("%w: proposer %d, want %d", ErrBadProposer, h.Proposer, wantProposer)
	}

	if h.Timestamp < ctx.Parent.Header.Timestamp {
		return fmt.Errorf("%w: not monotone", ErrBadTimestamp)
	}
	skew := int64(h.Timestamp) - int64(ctx.LocalTimeMillis)
	if skew > int64(params.MaxClockSkewMillis) || -skew > int64(params.MaxClockSkewMillis) {
		return fmt.Errorf("%w: skew %dms exceeds %dms", ErrBadTimestamp, skew, params.MaxClockSkewMillis)
	}
	return nil
}

// ValidateVote checks a Prepare/Commit/ViewChange/NewView message's
// sender and signature, and that (view, height) is current or within
// the buffered-future window.
func ValidateVote(msg *types.Message, reg *registry.Registry, currentView, currentHeight uint64, params Params) error {
	v, err := reg.ByID(msg.Sender)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSender, err)
	}
	if !msg.VerifySignature(v.PublicKey) {
		return ErrBadSignature
	}
	if msg.Height < currentHeight {
		return ErrStaleVote
	}
	if msg.Height == currentHeight && msg.View < currentView {
		return ErrStaleVote
	}
	if msg.Height > currentHeight+params.MaxFutureHeights {
		return ErrFutureVote
	}
	return nil
}
