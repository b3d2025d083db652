// Package leader implements the deterministic leader schedule: a single,
// stateless function every replica can evaluate identically.
package leader

import (
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/registry"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
)

// ForViewHeight returns the validator that leads the given (view, height)
// pair: leader(view, height) = validators[(height + view) mod n]. It is
// deterministic and requires no randomness or shared state beyond the
// immutable registry.
func ForViewHeight(reg *registry.Registry, view, height uint64) types.ValidatorID {
	return reg.At(height + view).ID
}

// IsLeader reports whether id leads (view, height) in reg.
func IsLeader(reg *registry.Registry, id types.ValidatorID, view, height uint64) bool {
	return ForViewHeight(reg, view, height) == id
}
