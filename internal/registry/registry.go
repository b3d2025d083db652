// Package registry holds the validator set: a fixed, genesis-time-immutable
// ordered sequence of (ValidatorID, PublicKey, voting power) and the
// quorum arithmetic derived from it.
package registry

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// ErrUnknownValidator is returned by lookups for a ValidatorID not present
// in the registry.
var ErrUnknownValidator = errors.New("unknown validator id")

// ErrEmptyRegistry is returned by New when given no validators.
var ErrEmptyRegistry = errors.New("validator registry must not be empty")

// Validator is one entry of the fixed validator set.
type Validator struct {
	ID          types.ValidatorID
	PublicKey   ed25519.PublicKey
	Address     crypto.Address
	VotingPower uint64
}

// Registry is the ordered, immutable validator set fixed at genesis for
// the lifetime of the consensus core. It carries no synchronization
// primitive: every task that needs it is handed the same shared,
// read-only value.
type Registry struct {
	validators []Validator
	byID       map[types.ValidatorID]int
}

// New builds a Registry from an ordered validator list. IDs are assigned
// by list position: validators[i].ID == ValidatorID(i).
func New(publicKeys []ed25519.PublicKey, votingPower []uint64) (*Registry, error) {
	if len(publicKeys) == 0 {
		return nil, ErrEmptyRegistry
	}
	if len(votingPower) != len(publicKeys) {
		return nil, fmt.Errorf("registry: voting power list length %d does not match validator count %d", len(votingPower), len(publicKeys))
	}
	vs := make([]Validator, len(publicKeys))
	byID := make(map[types.ValidatorID]int, len(publicKeys))
	for i, pub := range publicKeys {
		id := types.ValidatorID(i)
		vs[i] = Validator{
			ID:          id,
			PublicKey:   pub,
			Address:     crypto.AddressFromPublicKey(pub),
			VotingPower: votingPower[i],
		}
		byID[id] = i
	}
	return &Registry{validators: vs, byID: byID}, nil
}

// N returns the number of validators.
func (r *Registry) N() int { return len(r.validators) }

// F returns the maximum number of Byzantine validators tolerated: f = (n-1)/3.
func (r *Registry) F() int { return (r.N() - 1) / 3 }

// Quorum returns q = 2f+1, the number of distinct validator signatures
// required to certify any phase.
func (r *Registry) Quorum() int { return 2*r.F() + 1 }

// Validators returns the ordered validator list. Callers must not mutate
// the returned slice.
func (r *Registry) Validators() []Validator { return r.validators }

// ByID looks up a validator by its ValidatorID.
func (r *Registry) ByID(id types.ValidatorID) (Validator, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Validator{}, fmt.Errorf("%w: %d", ErrUnknownValidator, id)
	}
	return r.validators[idx], nil
}

// Contains reports whether id names a validator in this registry.
func (r *Registry) Contains(id types.ValidatorID) bool {
	_, ok := r.byID[id]
	return ok
}

// At returns the validator at the given schedule index, wrapping modulo N.
// It is the building block for the deterministic leader schedule in
// internal/leader.
func (r *Registry) At(index uint64) Validator {
	return r.validators[int(index)%len(r.validators)]
}
