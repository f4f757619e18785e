package sim

import (
	"fmt"
	"sync"
)

// FlowKind tags the variant of a flow node.
type FlowKind int

const (
	FlowSingle FlowKind = iota
	FlowParallel
	FlowExclusiveChoice
	FlowMultiChoice
	FlowSynchronization
	FlowSimpleMerge
	FlowDiscriminator
	FlowPartialJoin
	FlowThreadSplit
	FlowThreadMerge
	FlowWhileDo
	FlowDoWhile
	FlowFor
)

var flowKindNames = map[FlowKind]string{
	FlowSingle:          "single",
	FlowParallel:        "parallel",
	FlowExclusiveChoice: "exclusive_choice",
	FlowMultiChoice:     "multi_choice",
	FlowSynchronization: "synchronization",
	FlowSimpleMerge:     "simple_merge",
	FlowDiscriminator:   "discriminator",
	FlowPartialJoin:     "partial_join",
	FlowThreadSplit:     "thread_split",
	FlowThreadMerge:     "thread_merge",
	FlowWhileDo:         "while_do",
	FlowDoWhile:         "do_while",
	FlowFor:             "for",
}

func (k FlowKind) String() string {
	if name, ok := flowKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FlowKind(%d)", int(k))
}

// ParseFlowKind maps a kind name back to its FlowKind.
func ParseFlowKind(name string) (FlowKind, error) {
	for k, n := range flowKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown flow kind %q", name)
}

func (k FlowKind) isSplit() bool {
	return k == FlowParallel || k == FlowExclusiveChoice || k == FlowMultiChoice
}

func (k FlowKind) isJoin() bool {
	switch k {
	case FlowSynchronization, FlowSimpleMerge, FlowDiscriminator, FlowPartialJoin, FlowThreadMerge:
		return true
	}
	return false
}

func (k FlowKind) isLoop() bool {
	return k == FlowWhileDo || k == FlowDoWhile || k == FlowFor
}

// Flow is a node of the workflow graph. One struct carries every variant;
// fields that do not apply to a kind stay zero.
type Flow struct {
	ID   string
	Kind FlowKind

	// Single
	Activity *Activity
	// VarUpdates are added to the element's variables when the task completes.
	VarUpdates map[string]float64

	// AcceptValue is the release threshold of PartialJoin and ThreadMerge.
	AcceptValue int
	// Instances is the fan-out of ThreadSplit and the fan-in of ThreadMerge.
	Instances int

	// Loops
	Body       *Flow
	Condition  Condition    // WhileDo, DoWhile
	Iterations TimeFunction // For

	successor    *Flow
	branches     []*Flow
	guards       []Condition
	predecessors []*Flow
	join         *joinState
}

// Successor returns the single successor, nil at the end of a path.
func (f *Flow) Successor() *Flow {
	return f.successor
}

// Branches returns the outgoing branches of a split.
func (f *Flow) Branches() []*Flow {
	return f.branches
}

// Link connects f to next. Splits gain a branch; other kinds set their successor.
func (f *Flow) Link(next *Flow) *Flow {
	return f.LinkIf(next, nil)
}

// LinkIf connects a choice to next guarded by cond; nil means always true.
func (f *Flow) LinkIf(next *Flow, cond Condition) *Flow {
	if f.Kind.isSplit() {
		f.branches = append(f.branches, next)
		f.guards = append(f.guards, cond)
	} else {
		if f.successor != nil {
			panic(fmt.Sprintf("flow %s already has successor %s", f.ID, f.successor.ID))
		}
		f.successor = next
	}
	return next
}

// fanIn is the number of arrivals that complete one activation of a join.
func (f *Flow) fanIn() int {
	if f.Kind == FlowThreadMerge {
		return f.Instances
	}
	return len(f.predecessors)
}

// FlowGraph owns every flow node of a model.
type FlowGraph struct {
	flows []*Flow
	byID  map[string]*Flow
}

// NewFlowGraph creates an empty graph.
func NewFlowGraph() *FlowGraph {
	return &FlowGraph{byID: make(map[string]*Flow)}
}

// Flow looks a node up by id.
func (g *FlowGraph) Flow(id string) *Flow {
	return g.byID[id]
}

// Flows returns every node in creation order.
func (g *FlowGraph) Flows() []*Flow {
	return g.flows
}

func (g *FlowGraph) add(f *Flow) *Flow {
	g.flows = append(g.flows, f)
	if _, dup := g.byID[f.ID]; !dup {
		g.byID[f.ID] = f
	}
	return f
}

func (g *FlowGraph) NewSingle(id string, act *Activity) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowSingle, Activity: act})
}

func (g *FlowGraph) NewParallel(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowParallel})
}

func (g *FlowGraph) NewExclusiveChoice(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowExclusiveChoice})
}

func (g *FlowGraph) NewMultiChoice(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowMultiChoice})
}

func (g *FlowGraph) NewSynchronization(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowSynchronization})
}

func (g *FlowGraph) NewSimpleMerge(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowSimpleMerge})
}

func (g *FlowGraph) NewDiscriminator(id string) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowDiscriminator})
}

func (g *FlowGraph) NewPartialJoin(id string, accept int) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowPartialJoin, AcceptValue: accept})
}

func (g *FlowGraph) NewThreadSplit(id string, instances int) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowThreadSplit, Instances: instances})
}

func (g *FlowGraph) NewThreadMerge(id string, instances, accept int) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowThreadMerge, Instances: instances, AcceptValue: accept})
}

func (g *FlowGraph) NewWhileDo(id string, cond Condition, body *Flow) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowWhileDo, Condition: cond, Body: body})
}

func (g *FlowGraph) NewDoWhile(id string, cond Condition, body *Flow) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowDoWhile, Condition: cond, Body: body})
}

func (g *FlowGraph) NewFor(id string, iterations TimeFunction, body *Flow) *Flow {
	return g.add(&Flow{ID: id, Kind: FlowFor, Iterations: iterations, Body: body})
}

// Validate checks node ids, node-specific settings and join fan-ins, and
// computes the predecessors of every node.
func (g *FlowGraph) Validate() error {
	seen := make(map[string]bool)
	for _, f := range g.flows {
		if f.ID == "" {
			return fmt.Errorf("flow of kind %s has no id", f.Kind)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate flow id %q", f.ID)
		}
		seen[f.ID] = true
		f.predecessors = nil
	}
	for _, f := range g.flows {
		for _, next := range f.next() {
			if g.byID[next.ID] != next {
				return fmt.Errorf("flow %s links to %s, which is not part of the graph", f.ID, next.ID)
			}
			next.predecessors = append(next.predecessors, f)
		}
		if f.Body != nil && g.byID[f.Body.ID] != f.Body {
			return fmt.Errorf("flow %s has a body %s which is not part of the graph", f.ID, f.Body.ID)
		}
	}
	for _, f := range g.flows {
		if err := f.validate(); err != nil {
			return err
		}
		if f.Kind.isJoin() {
			f.join = &joinState{activations: make(map[activationKey]*activation)}
		}
	}
	return nil
}

func (f *Flow) next() []*Flow {
	if f.Kind.isSplit() {
		return f.branches
	}
	if f.successor != nil {
		return []*Flow{f.successor}
	}
	return nil
}

func (f *Flow) validate() error {
	switch {
	case f.Kind == FlowSingle:
		if f.Activity == nil {
			return fmt.Errorf("flow %s: task has no activity", f.ID)
		}
	case f.Kind.isSplit():
		if len(f.branches) == 0 {
			return fmt.Errorf("flow %s: %s has no branches", f.ID, f.Kind)
		}
	case f.Kind == FlowThreadSplit:
		if f.Instances < 1 {
			return fmt.Errorf("flow %s: thread split needs at least one instance", f.ID)
		}
		if f.successor == nil {
			return fmt.Errorf("flow %s: thread split has no successor", f.ID)
		}
	case f.Kind == FlowThreadMerge:
		if f.Instances < 1 || f.AcceptValue < 1 || f.AcceptValue > f.Instances {
			return fmt.Errorf("flow %s: thread merge needs 1 <= accept (%d) <= instances (%d)", f.ID, f.AcceptValue, f.Instances)
		}
	case f.Kind == FlowPartialJoin:
		if f.AcceptValue < 1 || f.AcceptValue > len(f.predecessors) {
			return fmt.Errorf("flow %s: partial join needs 1 <= accept (%d) <= incoming (%d)", f.ID, f.AcceptValue, len(f.predecessors))
		}
	case f.Kind.isLoop():
		if f.Body == nil {
			return fmt.Errorf("flow %s: %s has no body", f.ID, f.Kind)
		}
		if f.Kind == FlowFor && f.Iterations == nil {
			return fmt.Errorf("flow %s: for loop has no iteration count", f.ID)
		}
		if f.Kind != FlowFor && f.Condition == nil {
			return fmt.Errorf("flow %s: %s has no condition", f.ID, f.Kind)
		}
	}
	if f.Kind.isJoin() && f.fanIn() == 0 {
		return fmt.Errorf("flow %s: %s has no incoming branches", f.ID, f.Kind)
	}
	return nil
}

// joinState counts arrivals per activation. An activation is keyed by the
// parent thread of the arriving threads.
type joinState struct {
	mu          sync.Mutex
	activations map[activationKey]*activation
}

type activationKey struct {
	element int64
	thread  int64
}

type activation struct {
	arrived  int
	accepted int
	released bool
	from     map[*Flow]bool
}
