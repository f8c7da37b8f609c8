package ensemble

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"ballast/internal/types"
)

// DriftEpsilon bounds acceptable floating-point drift on combined weights
// before renormalization kicks in.
const DriftEpsilon = 1e-6

var (
	// ErrEnsembleWeights means the member weights do not sum to 1.
	ErrEnsembleWeights = errors.New("ensemble weights invalid")
	// ErrMissingStrategyOutput means a member references a strategy that
	// produced no allocation this cycle.
	ErrMissingStrategyOutput = errors.New("missing strategy output")
)

// Member is one weighted strategy inside an ensemble. A required member that
// fails to evaluate kills the whole cycle; an optional one is dropped and the
// survivors are reweighted.
type Member struct {
	Strategy string
	Weight   float64
	Required bool
}

// PrecisionWarning flags non-fatal weight drift that was renormalized away.
type PrecisionWarning struct {
	ObservedSum float64
}

func (w *PrecisionWarning) String() string {
	return fmt.Sprintf("combined weights summed to %.9f, renormalized", w.ObservedSum)
}

// ValidateMembers checks the member set invariants: non-blank unique names,
// non-negative weights summing to 1 within DriftEpsilon.
func ValidateMembers(members []Member) error {
	if len(members) == 0 {
		return fmt.Errorf("%w: no members", ErrEnsembleWeights)
	}
	sum := 0.0
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		name := strings.TrimSpace(m.Strategy)
		if name == "" {
			return fmt.Errorf("%w: member without strategy name", ErrEnsembleWeights)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate member %s", ErrEnsembleWeights, name)
		}
		seen[name] = true
		if m.Weight < 0 || math.IsNaN(m.Weight) || math.IsInf(m.Weight, 0) {
			return fmt.Errorf("%w: member %s has weight %v", ErrEnsembleWeights, name, m.Weight)
		}
		sum += m.Weight
	}
	if math.Abs(sum-1) > DriftEpsilon {
		return fmt.Errorf("%w: member weights sum to %.9f, want 1", ErrEnsembleWeights, sum)
	}
	return nil
}

// Reweight drops the named members and scales the survivors back to a total
// weight of 1. Used when optional members fail to evaluate.
func Reweight(members []Member, dropped map[string]bool) ([]Member, error) {
	if len(dropped) == 0 {
		return members, nil
	}
	kept := make([]Member, 0, len(members))
	total := 0.0
	for _, m := range members {
		if dropped[m.Strategy] {
			continue
		}
		kept = append(kept, m)
		total += m.Weight
	}
	if len(kept) == 0 || total <= 0 {
		return nil, fmt.Errorf("%w: no members left after dropping failures", ErrEnsembleWeights)
	}
	for i := range kept {
		kept[i].Weight /= total
	}
	return kept, nil
}

// Combine folds the members' allocation vectors into one combined allocation:
// per symbol, the weight is the member-weighted sum of that symbol's weight in
// each member output. Drift beyond DriftEpsilon is renormalized and reported
// as a non-fatal PrecisionWarning.
func Combine(members []Member, perStrategy map[string]types.AllocationVector) (types.AllocationVector, *PrecisionWarning, error) {
	if err := ValidateMembers(members); err != nil {
		return nil, nil, err
	}
	combined := make(types.AllocationVector)
	for _, m := range members {
		alloc, ok := perStrategy[m.Strategy]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingStrategyOutput, m.Strategy)
		}
		for sym, w := range alloc {
			combined[sym] += m.Weight * w
		}
	}
	sum := combined.Sum()
	var warning *PrecisionWarning
	if math.Abs(sum-1) > DriftEpsilon {
		combined = combined.Normalize()
		warning = &PrecisionWarning{ObservedSum: sum}
	}
	return combined, warning, nil
}

// SortMembers orders members by name for deterministic iteration.
func SortMembers(members []Member) []Member {
	out := append([]Member(nil), members...)
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}
