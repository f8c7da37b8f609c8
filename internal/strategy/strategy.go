package strategy

import (
	"fmt"
	"strings"

	"ballast/internal/types"
)

// Strategy is an immutable named decision tree. Construct via NewStrategy;
// the tree is validated once and never mutated afterwards.
type Strategy struct {
	name string
	root RuleNode
}

// NewStrategy validates the tree and wraps it.
func NewStrategy(name string, root RuleNode) (*Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("strategy requires a name")
	}
	if err := validateNode(root, name); err != nil {
		return nil, fmt.Errorf("strategy %s: invalid tree: %w", name, err)
	}
	return &Strategy{name: name, root: root}, nil
}

// Name returns the registry key.
func (s *Strategy) Name() string { return s.name }

// IndicatorRefs lists every indicator the tree can touch, deduplicated, in
// tree order. The market data collaborator must supply each one or mark it
// unavailable.
func (s *Strategy) IndicatorRefs() []types.IndicatorRef {
	var out []types.IndicatorRef
	collectRefs(s.root, make(map[types.IndicatorRef]bool), &out)
	return out
}

// Evaluate walks the tree against the snapshot and returns the selected
// allocation. Purely a function of (tree, snapshot): no I/O, no mutation.
// A condition whose indicator is absent fails the whole evaluation with
// IndicatorUnavailableError.
func (s *Strategy) Evaluate(snap types.MarketSnapshot) (types.AllocationVector, error) {
	node := s.root
	for {
		switch n := node.(type) {
		case *Condition:
			val, ok := snap.Lookup(n.Ref)
			if !ok {
				return nil, &IndicatorUnavailableError{Strategy: s.name, Ref: n.Ref.Canonical()}
			}
			if n.Op.Apply(val.Value, n.Threshold) {
				node = n.IfTrue
			} else {
				node = n.IfFalse
			}
		case *Leaf:
			// Callers get their own copy; shared subtrees must never
			// observe mutation.
			return n.Allocation.Clone(), nil
		default:
			return nil, fmt.Errorf("strategy %s: unknown node type %T", s.name, node)
		}
	}
}
