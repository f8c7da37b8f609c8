package types

import (
	"fmt"
	"math"
	"sort"
)

// CashSymbol is the reserved symbol for weight left uninvested.
const CashSymbol = "CASH"

// WeightEpsilon bounds the allowed drift of a normalized allocation.
const WeightEpsilon = 1e-9

// AllocationVector maps symbols to target portfolio weights. A valid vector
// has non-negative weights summing to 1 within WeightEpsilon.
type AllocationVector map[string]float64

// Validate checks the weight invariants.
func (a AllocationVector) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("allocation has no entries")
	}
	sum := 0.0
	for sym, w := range a {
		if sym == "" {
			return fmt.Errorf("allocation contains empty symbol")
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("allocation weight for %s is invalid: %v", sym, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > WeightEpsilon {
		return fmt.Errorf("allocation weights sum to %.12f, want 1", sum)
	}
	return nil
}

// Sum returns the total weight.
func (a AllocationVector) Sum() float64 {
	sum := 0.0
	for _, w := range a {
		sum += w
	}
	return sum
}

// Clone returns an independent copy.
func (a AllocationVector) Clone() AllocationVector {
	out := make(AllocationVector, len(a))
	for sym, w := range a {
		out[sym] = w
	}
	return out
}

// Normalize returns a copy scaled so the weights sum to 1. The zero-sum
// vector normalizes to itself.
func (a AllocationVector) Normalize() AllocationVector {
	sum := a.Sum()
	if sum == 0 {
		return a.Clone()
	}
	out := make(AllocationVector, len(a))
	for sym, w := range a {
		out[sym] = w / sum
	}
	return out
}

// Symbols returns the symbols in deterministic order.
func (a AllocationVector) Symbols() []string {
	out := make([]string, 0, len(a))
	for sym := range a {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
