package types

import "github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"

// AccountState is one account's ledger entry: its spendable balance and
// the next nonce it must use. Genesis seeds the initial map; every
// committed transaction mutates exactly the sender's and recipient's
// entries.
type AccountState struct {
	Address crypto.Address
	Balance uint64
	Nonce   uint64
}
