package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// Key prefixes for the two logical tables the store maintains, plus the
// supplemented per-account history index.
const (
	keyBlockByHeight = "block/"
	keyBlockByHash   = "blockhash/"
	keyAccount       = "acct/"
	keyStateRoot     = "root/"
	keyLatestHeight  = "meta/latest_height"
	keyHistory       = "history/"
)

// ErrSafetyViolation is raised by ApplyBlock when a transaction inside an
// already-certified block fails a semantic check at apply time (balance
// underflow, for instance) — meaning consensus certified an invalid
// block, which must never happen in a correct deployment.
var ErrSafetyViolation = errors.New("store: safety violation applying certified block")

// FeePolicy controls what happens to a committed transaction's fee: burn
// it, or credit it to a fixed recipient (the genesis-configured
// proposer-credit mode).
type FeePolicy struct {
	Burn      bool
	Recipient crypto.Address
}

// BlockStore is the node's durable block log and account-state table. It
// is concurrent-readers / single-writer: ApplyBlock is the only mutator
// and callers are expected to serialize calls to it (the consensus
// driver owns that discipline); Get* methods are safe for concurrent use
// against committed data.
type BlockStore struct {
	mu  sync.RWMutex // guards latestHeight only; KVStore handles its own read/write concurrency
	kv  KVStore
	fee FeePolicy
	log *zap.SugaredLogger

	latestHeight uint64
	hasGenesis   bool
}

// Open wraps kv as a BlockStore, loading the current latest height if
// one is already persisted.
func Open(kv KVStore, fee FeePolicy, log *zap.SugaredLogger) (*BlockStore, error) {
	s := &BlockStore{kv: kv, fee: fee, log: log}
	v, err := kv.Get(keyLatestHeight)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("store: load latest height: %w", err)
	}
	height, err := decodeHeight(v)
	if err != nil {
		return nil, fmt.Errorf("store: decode latest height: %w", err)
	}
	s.latestHeight = height
	s.hasGenesis = true
	return s, nil
}

func encodeHeight(h uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(h >> (8 * i))
	}
	return out
}

func decodeHeight(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("store: malformed height value, length %d", len(b))
	}
	var h uint64
	for i := 0; i < 8; i++ {
		h = (h << 8) | uint64(b[i])
	}
	return h, nil
}

// InitGenesis seeds the account table from the genesis configuration.
// Must be called at most once, before any ApplyBlock.
func (s *BlockStore) InitGenesis(accounts []types.AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasGenesis {
		return fmt.Errorf("store: genesis already initialized at height %d", s.latestHeight)
	}
	items := make(map[string][]byte, len(accounts)+1)
	for _, a := range accounts {
		items[keyAccount+a.Address.String()] = EncodeAccount(a)
	}
	items[keyLatestHeight] = encodeHeight(0)
	if err := s.kv.PutBatch(items); err != nil {
		return fmt.Errorf("store: init genesis: %w", err)
	}
	s.hasGenesis = true
	s.latestHeight = 0
	return nil
}

// ApplyBlock is the store's only mutator: in one atomic batch it appends
// the block under both height and hash keys, applies every transaction
// to the account table in order (debit sender, credit recipient,
// increment sender nonce, dispose of the fee per policy), recomputes the
// state root, and advances latest_height. A transaction failing a
// semantic check here means consensus certified an invalid block: the
// entire write is rejected and ErrSafetyViolation is returned so the
// caller can halt.
func (s *BlockStore) ApplyBlock(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Header.Height != s.latestHeight+1 {
		return fmt.Errorf("store: %w: block height %d, expected %d", ErrSafetyViolation, block.Header.Height, s.latestHeight+1)
	}

	touched := make(map[crypto.Address]types.AccountState)
	get := func(addr crypto.Address) types.AccountState {
		if a, ok := touched[addr]; ok {
			return a
		}
		a, _ := s.getAccountLocked(addr)
		touched[addr] = a
		return a
	}

	for i, tx := range block.Transactions {
		sender := get(tx.From)
		total, err := tx.TotalDebit()
		if err != nil || sender.Balance < total {
			return fmt.Errorf("store: %w: tx %d (%s) balance underflow", ErrSafetyViolation, i, tx.ID)
		}
		sender.Balance -= total
		sender.Nonce++
		touched[tx.From] = sender

		recipient := get(tx.To)
		recipient.Balance += tx.Amount
		touched[tx.To] = recipient

		if !s.fee.Burn {
			feeAcct := get(s.fee.Recipient)
			feeAcct.Balance += tx.Fee
			touched[s.fee.Recipient] = feeAcct
		}
	}

	items := make(map[string][]byte, len(touched)+4)
	for addr, a := range touched {
		a.Address = addr
		items[keyAccount+addr.String()] = EncodeAccount(a)
	}
	for addr, a := range touched {
		seq := s.nextHistorySeqLocked(addr)
		items[fmt.Sprintf("%s%s/%020d", keyHistory, addr.String(), seq)] = EncodeAccount(a)
	}

	fullRoot, err := s.hashFullAccountTableLocked(touched)
	if err != nil {
		return fmt.Errorf("store: hash account table: %w", err)
	}
	if fullRoot != block.Header.StateRoot {
		return fmt.Errorf("store: %w: block %d state root %s, computed %s", ErrSafetyViolation, block.Header.Height, block.Header.StateRoot, fullRoot)
	}

	items[keyBlockByHeight+fmt.Sprintf("%020d", block.Header.Height)] = EncodeBlock(block)
	items[keyBlockByHash+block.Hash().String()] = encodeHeight(block.Header.Height)
	items[keyStateRoot+fmt.Sprintf("%020d", block.Header.Height)] = block.Header.StateRoot[:]
	items[keyLatestHeight] = encodeHeight(block.Header.Height)

	if err := s.kv.PutBatch(items); err != nil {
		return fmt.Errorf("store: apply block %d: %w", block.Header.Height, err)
	}
	s.latestHeight = block.Header.Height
	if s.log != nil {
		s.log.Infof("store: applied block height=%d hash=%s txs=%d", block.Header.Height, block.Hash(), len(block.Transactions))
	}
	return nil
}

func (s *BlockStore) nextHistorySeqLocked(addr crypto.Address) int {
	n := 0
	_ = s.kv.Scan(fmt.Sprintf("%s%s/", keyHistory, addr.String()), func(string, []byte) bool {
		n++
		return true
	})
	return n
}

// ComputeStateRoot computes the Merkle-like digest of the account map
// after hypothetically applying txs on top of the current committed
// state, without mutating it — the value validate_block compares
// header.state_root against.
func (s *BlockStore) ComputeStateRoot(txs []*types.Transaction, feePolicy FeePolicy) (crypto.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	touched := make(map[crypto.Address]types.AccountState)
	get := func(addr crypto.Address) types.AccountState {
		if a, ok := touched[addr]; ok {
			return a
		}
		a, _ := s.getAccountLocked(addr)
		touched[addr] = a
		return a
	}
	for _, tx := range txs {
		sender := get(tx.From)
		total, err := tx.TotalDebit()
		if err != nil || sender.Balance < total {
			return crypto.ZeroHash, fmt.Errorf("store: simulated apply: tx %s balance underflow", tx.ID)
		}
		sender.Balance -= total
		sender.Nonce++
		touched[tx.From] = sender

		recipient := get(tx.To)
		recipient.Balance += tx.Amount
		touched[tx.To] = recipient

		if !feePolicy.Burn {
			feeAcct := get(feePolicy.Recipient)
			feeAcct.Balance += tx.Fee
			touched[feePolicy.Recipient] = feeAcct
		}
	}
	return s.hashFullAccountTableLocked(touched)
}

// hashFullAccountTableLocked computes the Merkle-like digest over the
// entire committed account table with touched's entries overlaid on
// top, not just the addresses touched is keyed by — state_root must
// reflect the chain's whole account state, including an empty block's,
// or two replicas with identical touched-sets but divergent full
// account tables would both pass validate_block's state_root check.
// Caller must hold s.mu (read or write).
func (s *BlockStore) hashFullAccountTableLocked(touched map[crypto.Address]types.AccountState) (crypto.Hash, error) {
	full := make(map[crypto.Address]types.AccountState)
	var scanErr error
	err := s.kv.Scan(keyAccount, func(_ string, v []byte) bool {
		a, err := DecodeAccount(v)
		if err != nil {
			scanErr = err
			return false
		}
		full[a.Address] = a
		return true
	})
	if err != nil {
		return crypto.ZeroHash, fmt.Errorf("store: scan account table: %w", err)
	}
	if scanErr != nil {
		return crypto.ZeroHash, fmt.Errorf("store: decode account during scan: %w", scanErr)
	}
	for addr, a := range touched {
		a.Address = addr
		full[addr] = a
	}
	return hashAccounts(full), nil
}

func hashAccounts(full map[crypto.Address]types.AccountState) crypto.Hash {
	addrs := make([]crypto.Address, 0, len(full))
	for a := range full {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	leaves := make([]crypto.Hash, len(addrs))
	for i, a := range addrs {
		acct := full[a]
		acct.Address = a
		leaves[i] = crypto.SumHash(EncodeAccount(acct))
	}
	return crypto.MerkleRoot(leaves)
}

func (s *BlockStore) getAccountLocked(addr crypto.Address) (types.AccountState, bool) {
	v, err := s.kv.Get(keyAccount + addr.String())
	if err != nil {
		return types.AccountState{Address: addr}, false
	}
	a, err := DecodeAccount(v)
	if err != nil {
		return types.AccountState{Address: addr}, false
	}
	return a, true
}

// GetAccount returns the current committed state of addr.
func (s *BlockStore) GetAccount(addr crypto.Address) (types.AccountState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccountLocked(addr)
}

// GetAccountHistory returns addr's historical account states in
// commit order, the supplemented audit trail alongside the
// point-in-time account table.
func (s *BlockStore) GetAccountHistory(addr crypto.Address) ([]types.AccountState, error) {
	var out []types.AccountState
	err := s.kv.Scan(fmt.Sprintf("%s%s/", keyHistory, addr.String()), func(_ string, v []byte) bool {
		a, err := DecodeAccount(v)
		if err == nil {
			out = append(out, a)
		}
		return true
	})
	return out, err
}

// GetBlockByHeight returns the committed block at the given height.
func (s *BlockStore) GetBlockByHeight(height uint64) (*types.Block, error) {
	v, err := s.kv.Get(keyBlockByHeight + fmt.Sprintf("%020d", height))
	if err != nil {
		return nil, err
	}
	return DecodeBlock(v)
}

// GetBlockByHash returns the committed block with the given hash.
func (s *BlockStore) GetBlockByHash(hash crypto.Hash) (*types.Block, error) {
	v, err := s.kv.Get(keyBlockByHash + hash.String())
	if err != nil {
		return nil, err
	}
	height, err := decodeHeight(v)
	if err != nil {
		return nil, err
	}
	return s.GetBlockByHeight(height)
}

// LatestHeight returns the height of the most recently applied block.
func (s *BlockStore) LatestHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestHeight
}

// HasGenesis reports whether InitGenesis has already run against this
// store, whether in this process or a prior one reopening the same
// data directory. A store can have hasGenesis true and latestHeight 0
// at once (genesis applied, no block committed yet), so callers must
// not infer genesis status from LatestHeight()==0.
func (s *BlockStore) HasGenesis() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasGenesis
}

// Close releases the underlying KVStore.
func (s *BlockStore) Close() error { return s.kv.Close() }
