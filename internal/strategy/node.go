package strategy

import (
	"fmt"
	"math"

	"ballast/internal/types"
)

// Operator is a comparison against a fixed threshold.
type Operator string

const (
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
)

// Valid reports whether the operator is supported.
func (op Operator) Valid() bool {
	switch op {
	case OpGT, OpLT, OpGTE, OpLTE:
		return true
	default:
		return false
	}
}

// Apply compares value against threshold. Closed intervals are exact: ">"
// is strict, ">=" includes equality.
func (op Operator) Apply(value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	default:
		return false
	}
}

// RuleNode is one node of a strategy decision tree: either a Condition that
// branches on an indicator reading, or a Leaf holding a fixed allocation.
// The interface is sealed so evaluation can dispatch exhaustively.
type RuleNode interface {
	isRuleNode()
}

// Condition branches into IfTrue or IfFalse depending on how the referenced
// indicator compares against Threshold.
type Condition struct {
	Ref       types.IndicatorRef
	Op        Operator
	Threshold float64
	IfTrue    RuleNode
	IfFalse   RuleNode
}

// Leaf terminates a branch with a fixed allocation. A leaf may spread across
// several symbols (mixed hedge) and is never reduced to its dominant asset.
type Leaf struct {
	Allocation types.AllocationVector
}

func (*Condition) isRuleNode() {}
func (*Leaf) isRuleNode()      {}

// validateNode enforces the construction-time tree invariants: both branches
// of every condition present, operators and refs well formed, every leaf a
// valid allocation.
func validateNode(node RuleNode, path string) error {
	switch n := node.(type) {
	case nil:
		return fmt.Errorf("%s: node is nil", path)
	case *Condition:
		if n == nil {
			return fmt.Errorf("%s: condition is nil", path)
		}
		if n.Ref.Symbol == "" {
			return fmt.Errorf("%s: condition indicator has no symbol", path)
		}
		if !n.Ref.Kind.Valid() {
			return fmt.Errorf("%s: unsupported indicator kind %q", path, n.Ref.Kind)
		}
		if n.Ref.Kind != types.IndicatorPrice && n.Ref.Period <= 0 {
			return fmt.Errorf("%s: indicator %s requires a positive period", path, n.Ref)
		}
		if !n.Op.Valid() {
			return fmt.Errorf("%s: unsupported operator %q", path, n.Op)
		}
		if math.IsNaN(n.Threshold) || math.IsInf(n.Threshold, 0) {
			return fmt.Errorf("%s: threshold is not a finite number", path)
		}
		if err := validateNode(n.IfTrue, path+"/if_true"); err != nil {
			return err
		}
		return validateNode(n.IfFalse, path+"/if_false")
	case *Leaf:
		if n == nil {
			return fmt.Errorf("%s: leaf is nil", path)
		}
		if err := n.Allocation.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown node type %T", path, node)
	}
}

// collectRefs walks the tree and appends every indicator reference once.
func collectRefs(node RuleNode, seen map[types.IndicatorRef]bool, out *[]types.IndicatorRef) {
	cond, ok := node.(*Condition)
	if !ok || cond == nil {
		return
	}
	ref := cond.Ref.Canonical()
	if !seen[ref] {
		seen[ref] = true
		*out = append(*out, ref)
	}
	collectRefs(cond.IfTrue, seen, out)
	collectRefs(cond.IfFalse, seen, out)
}
