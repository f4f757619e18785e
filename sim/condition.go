package sim

import "fmt"

// ConditionContext is what a condition may inspect.
type ConditionContext struct {
	Element *Element
	Thread  *WorkThread
	// Iteration is the number of completed iterations of the enclosing loop.
	Iteration int
	Now       int64
}

// Condition guards choice branches, loops and workgroups.
type Condition interface {
	Check(ctx *ConditionContext) bool
}

// TrueCondition always holds.
type TrueCondition struct{}

func (TrueCondition) Check(*ConditionContext) bool { return true }

// NotCondition negates Cond.
type NotCondition struct {
	Cond Condition
}

func (c NotCondition) Check(ctx *ConditionContext) bool { return !c.Cond.Check(ctx) }

// AndCondition holds when every member holds. Evaluation stops at the first false.
type AndCondition struct {
	Conds []Condition
}

func (c AndCondition) Check(ctx *ConditionContext) bool {
	for _, cond := range c.Conds {
		if !cond.Check(ctx) {
			return false
		}
	}
	return true
}

// OrCondition holds when any member holds. Evaluation stops at the first true.
type OrCondition struct {
	Conds []Condition
}

func (c OrCondition) Check(ctx *ConditionContext) bool {
	for _, cond := range c.Conds {
		if cond.Check(ctx) {
			return true
		}
	}
	return false
}

// PercentageCondition holds with probability Percent/100, drawn from the
// element's stream.
type PercentageCondition struct {
	Percent float64
}

func (c PercentageCondition) Check(ctx *ConditionContext) bool {
	return ctx.Element.Float64()*100 < c.Percent
}

// IterationCondition holds while fewer than Max loop iterations completed.
type IterationCondition struct {
	Max int
}

func (c IterationCondition) Check(ctx *ConditionContext) bool {
	return ctx.Iteration < c.Max
}

// CompareOp is a comparison used by VarCondition.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// ParseCompareOp validates a comparison operator.
func ParseCompareOp(op string) (CompareOp, error) {
	switch CompareOp(op) {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return CompareOp(op), nil
	default:
		return "", fmt.Errorf("unknown comparison operator %q", op)
	}
}

// VarCondition compares an element variable (0 when unset) with Value.
type VarCondition struct {
	Name  string
	Op    CompareOp
	Value float64
}

func (c VarCondition) Check(ctx *ConditionContext) bool {
	v := ctx.Element.Var(c.Name)
	switch c.Op {
	case OpEq:
		return v == c.Value
	case OpNe:
		return v != c.Value
	case OpLt:
		return v < c.Value
	case OpLe:
		return v <= c.Value
	case OpGt:
		return v > c.Value
	case OpGe:
		return v >= c.Value
	default:
		panic(fmt.Sprintf("VarCondition %s: unknown operator %q", c.Name, c.Op))
	}
}
