package model

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/resflow/resflow-sim/sim"
	"github.com/resflow/resflow-sim/sim/randvar"
)

// builder resolves string references while translating a Spec.
type builder struct {
	spec  *Spec
	m     *sim.Model
	types map[string]*sim.ResourceType
	acts  map[string]*sim.Activity
	ets   map[string]*sim.ElementType
	flows map[string]*sim.Flow
}

// Build validates spec and translates it into a built sim.Model.
func Build(spec *Spec) (*sim.Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	b := &builder{
		spec:  spec,
		m:     sim.NewModel(spec.Name),
		types: make(map[string]*sim.ResourceType),
		acts:  make(map[string]*sim.Activity),
		ets:   make(map[string]*sim.ElementType),
		flows: make(map[string]*sim.Flow),
	}
	steps := []func() error{
		b.resourceTypes,
		b.resources,
		b.activities,
		b.elementTypes,
		b.flowNodes,
		b.flowLinks,
		b.generators,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("model %s: %w", spec.Name, err)
		}
	}
	if err := b.m.Build(); err != nil {
		return nil, err
	}
	logrus.Debugf("model %s: %d resource types, %d resources, %d activities, %d flows, %d managers",
		spec.Name, len(spec.ResourceTypes), len(spec.Resources), len(spec.Activities), len(spec.Flows), len(b.m.Managers()))
	return b.m, nil
}

// LoadAndBuild loads a model file and builds it.
func LoadAndBuild(path string) (*sim.Model, sim.Config, error) {
	spec, err := Load(path)
	if err != nil {
		return nil, sim.Config{}, err
	}
	m, err := Build(spec)
	if err != nil {
		return nil, sim.Config{}, err
	}
	return m, spec.Config(), nil
}

func (b *builder) resourceTypes() error {
	for _, rs := range b.spec.ResourceTypes {
		if _, dup := b.types[rs.ID]; dup {
			return fmt.Errorf("duplicate resource type %q", rs.ID)
		}
		b.types[rs.ID] = b.m.NewResourceType(rs.ID)
	}
	return nil
}

func (b *builder) resourceType(id string) (*sim.ResourceType, error) {
	rt, ok := b.types[id]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", id)
	}
	return rt, nil
}

func (b *builder) resources() error {
	for _, rs := range b.spec.Resources {
		r := b.m.NewResource(rs.ID)
		if len(rs.Timetable) == 0 {
			logrus.Warnf("resource %s has an empty timetable and will never be available", rs.ID)
		}
		for i, ts := range rs.Timetable {
			role, err := b.resourceType(ts.Role)
			if err != nil {
				return fmt.Errorf("resource %s timetable[%d]: %w", rs.ID, i, err)
			}
			cycle, err := buildCycle(ts.Cycle)
			if err != nil {
				return fmt.Errorf("resource %s timetable[%d]: %w", rs.ID, i, err)
			}
			dur, err := randvar.New(ts.Duration)
			if err != nil {
				return fmt.Errorf("resource %s timetable[%d] duration: %w", rs.ID, i, err)
			}
			r.AddTimeTableEntry(cycle, dur, role)
		}
	}
	return nil
}

func buildCycle(cs CycleSpec) (sim.Cycle, error) {
	switch {
	case cs.Period != nil && len(cs.Instants) > 0:
		return nil, fmt.Errorf("cycle: period and instants are exclusive")
	case len(cs.Instants) > 0:
		return &sim.TableCycle{Instants: cs.Instants}, nil
	case cs.Period != nil:
		period, err := randvar.New(*cs.Period)
		if err != nil {
			return nil, fmt.Errorf("cycle period: %w", err)
		}
		return &sim.PeriodicCycle{Start: cs.Start, Period: period, Iterations: cs.Iterations, End: cs.End}, nil
	default:
		return nil, fmt.Errorf("cycle needs a period or instants")
	}
}

func (b *builder) workGroup(wg *sim.WorkGroup, ws WorkGroupSpec) error {
	for _, req := range ws.Requires {
		rt, err := b.resourceType(req.Type)
		if err != nil {
			return fmt.Errorf("workgroup %s: %w", ws.ID, err)
		}
		wg.Require(rt, req.Count)
	}
	if ws.Condition != nil {
		cond, err := buildCondition(*ws.Condition)
		if err != nil {
			return fmt.Errorf("workgroup %s: %w", ws.ID, err)
		}
		wg.Condition = cond
	}
	return nil
}

func (b *builder) activities() error {
	for _, as := range b.spec.Activities {
		if _, dup := b.acts[as.ID]; dup {
			return fmt.Errorf("duplicate activity %q", as.ID)
		}
		var a *sim.Activity
		if as.Transitions != nil {
			a = b.m.NewTransitionActivity(as.ID)
			if err := b.transitions(a, as.Transitions); err != nil {
				return fmt.Errorf("activity %s: %w", as.ID, err)
			}
		} else {
			a = b.m.NewActivity(as.ID)
			for _, ws := range as.WorkGroups {
				dur, err := randvar.New(ws.Duration)
				if err != nil {
					return fmt.Errorf("activity %s workgroup %s duration: %w", as.ID, ws.ID, err)
				}
				if err := b.workGroup(a.NewWorkGroup(ws.ID, ws.Priority, dur), ws); err != nil {
					return fmt.Errorf("activity %s: %w", as.ID, err)
				}
			}
		}
		a.Priority = as.Priority
		a.Interruptible = as.Interruptible
		if as.Presential != nil {
			a.Presential = *as.Presential
		}
		b.acts[as.ID] = a
	}
	return nil
}

func (b *builder) transitions(a *sim.Activity, ts *TransitionSpec) error {
	tm := a.Transitions()
	states := map[string]*sim.WorkGroup{
		tm.Initial.ID: tm.Initial,
		tm.Final.ID:   tm.Final,
	}
	for _, ws := range ts.States {
		if _, dup := states[ws.ID]; dup {
			return fmt.Errorf("duplicate state %q", ws.ID)
		}
		dur, err := randvar.New(ws.Duration)
		if err != nil {
			return fmt.Errorf("state %s duration: %w", ws.ID, err)
		}
		wg := tm.NewState(ws.ID, dur)
		wg.Priority = ws.Priority
		if err := b.workGroup(wg, ws); err != nil {
			return err
		}
		states[ws.ID] = wg
	}
	for _, row := range ts.Rows {
		from, ok := states[row.From]
		if !ok {
			return fmt.Errorf("row from unknown state %q", row.From)
		}
		for _, arrow := range row.To {
			to, ok := states[arrow.State]
			if !ok {
				return fmt.Errorf("row %s: unknown target state %q", row.From, arrow.State)
			}
			tm.AddTransition(from, to, arrow.Probability)
		}
	}
	return nil
}

func (b *builder) elementTypes() error {
	for _, es := range b.spec.ElementTypes {
		if _, dup := b.ets[es.ID]; dup {
			return fmt.Errorf("duplicate element type %q", es.ID)
		}
		et := b.m.NewElementType(es.ID, es.Priority)
		for k, v := range es.Vars {
			et.Vars[k] = v
		}
		b.ets[es.ID] = et
	}
	return nil
}

// flowNodes creates every node so that links may point forward.
func (b *builder) flowNodes() error {
	g := b.m.Flows()
	for _, fs := range b.spec.Flows {
		if _, dup := b.flows[fs.ID]; dup {
			return fmt.Errorf("duplicate flow %q", fs.ID)
		}
		kind, err := sim.ParseFlowKind(fs.Kind)
		if err != nil {
			return fmt.Errorf("flow %s: %w", fs.ID, err)
		}
		var f *sim.Flow
		switch kind {
		case sim.FlowSingle:
			act, ok := b.acts[fs.Activity]
			if !ok {
				return fmt.Errorf("flow %s: unknown activity %q", fs.ID, fs.Activity)
			}
			f = g.NewSingle(fs.ID, act)
			f.VarUpdates = fs.VarUpdates
		case sim.FlowParallel:
			f = g.NewParallel(fs.ID)
		case sim.FlowExclusiveChoice:
			f = g.NewExclusiveChoice(fs.ID)
		case sim.FlowMultiChoice:
			f = g.NewMultiChoice(fs.ID)
		case sim.FlowSynchronization:
			f = g.NewSynchronization(fs.ID)
		case sim.FlowSimpleMerge:
			f = g.NewSimpleMerge(fs.ID)
		case sim.FlowDiscriminator:
			f = g.NewDiscriminator(fs.ID)
		case sim.FlowPartialJoin:
			f = g.NewPartialJoin(fs.ID, fs.Accept)
		case sim.FlowThreadSplit:
			f = g.NewThreadSplit(fs.ID, fs.Instances)
		case sim.FlowThreadMerge:
			f = g.NewThreadMerge(fs.ID, fs.Instances, fs.Accept)
		case sim.FlowWhileDo, sim.FlowDoWhile:
			cond, err := b.optionalCondition(fs.Condition)
			if err != nil {
				return fmt.Errorf("flow %s: %w", fs.ID, err)
			}
			if kind == sim.FlowWhileDo {
				f = g.NewWhileDo(fs.ID, cond, nil)
			} else {
				f = g.NewDoWhile(fs.ID, cond, nil)
			}
		case sim.FlowFor:
			var iterations sim.TimeFunction
			if fs.Iterations != nil {
				if iterations, err = randvar.New(*fs.Iterations); err != nil {
					return fmt.Errorf("flow %s iterations: %w", fs.ID, err)
				}
			}
			f = g.NewFor(fs.ID, iterations, nil)
		}
		b.flows[fs.ID] = f
	}
	return nil
}

func (b *builder) flow(id string) (*sim.Flow, error) {
	f, ok := b.flows[id]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", id)
	}
	return f, nil
}

func (b *builder) flowLinks() error {
	for _, fs := range b.spec.Flows {
		f := b.flows[fs.ID]
		if fs.Body != "" {
			body, err := b.flow(fs.Body)
			if err != nil {
				return fmt.Errorf("flow %s body: %w", fs.ID, err)
			}
			f.Body = body
		}
		if fs.Next != "" {
			if len(fs.Branches) > 0 {
				return fmt.Errorf("flow %s: next and branches are exclusive", fs.ID)
			}
			next, err := b.flow(fs.Next)
			if err != nil {
				return fmt.Errorf("flow %s next: %w", fs.ID, err)
			}
			if f.Kind == sim.FlowParallel || f.Kind == sim.FlowExclusiveChoice || f.Kind == sim.FlowMultiChoice {
				return fmt.Errorf("flow %s: %s links through branches, not next", fs.ID, f.Kind)
			}
			f.Link(next)
		}
		for i, bs := range fs.Branches {
			if f.Kind != sim.FlowParallel && f.Kind != sim.FlowExclusiveChoice && f.Kind != sim.FlowMultiChoice {
				return fmt.Errorf("flow %s: %s has no branches", fs.ID, f.Kind)
			}
			to, err := b.flow(bs.To)
			if err != nil {
				return fmt.Errorf("flow %s branch %d: %w", fs.ID, i, err)
			}
			cond, err := b.optionalCondition(bs.Condition)
			if err != nil {
				return fmt.Errorf("flow %s branch %d: %w", fs.ID, i, err)
			}
			f.LinkIf(to, cond)
		}
	}
	return nil
}

func (b *builder) optionalCondition(cs *ConditionSpec) (sim.Condition, error) {
	if cs == nil {
		return nil, nil
	}
	return buildCondition(*cs)
}

func buildCondition(cs ConditionSpec) (sim.Condition, error) {
	children := func() ([]sim.Condition, error) {
		if len(cs.Conditions) == 0 {
			return nil, fmt.Errorf("condition %s needs at least one member", cs.Type)
		}
		out := make([]sim.Condition, 0, len(cs.Conditions))
		for _, child := range cs.Conditions {
			c, err := buildCondition(child)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	switch cs.Type {
	case "true":
		return sim.TrueCondition{}, nil
	case "not":
		conds, err := children()
		if err != nil {
			return nil, err
		}
		if len(conds) != 1 {
			return nil, fmt.Errorf("condition not takes exactly one member, got %d", len(conds))
		}
		return sim.NotCondition{Cond: conds[0]}, nil
	case "and":
		conds, err := children()
		if err != nil {
			return nil, err
		}
		return sim.AndCondition{Conds: conds}, nil
	case "or":
		conds, err := children()
		if err != nil {
			return nil, err
		}
		return sim.OrCondition{Conds: conds}, nil
	case "percentage":
		if cs.Percent < 0 || cs.Percent > 100 {
			return nil, fmt.Errorf("condition percentage must be in [0, 100], got %v", cs.Percent)
		}
		return sim.PercentageCondition{Percent: cs.Percent}, nil
	case "var":
		if cs.Var == "" {
			return nil, fmt.Errorf("condition var needs a variable name")
		}
		op, err := sim.ParseCompareOp(cs.Op)
		if err != nil {
			return nil, err
		}
		return sim.VarCondition{Name: cs.Var, Op: op, Value: cs.Value}, nil
	case "iteration":
		if cs.Max < 0 {
			return nil, fmt.Errorf("condition iteration max must be >= 0, got %d", cs.Max)
		}
		return sim.IterationCondition{Max: cs.Max}, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", cs.Type)
	}
}

func (b *builder) generators() error {
	for i, gs := range b.spec.Generators {
		et, ok := b.ets[gs.ElementType]
		if !ok {
			return fmt.Errorf("generators[%d]: unknown element type %q", i, gs.ElementType)
		}
		f, err := b.flow(gs.Flow)
		if err != nil {
			return fmt.Errorf("generators[%d]: %w", i, err)
		}
		cycle, err := buildCycle(gs.Cycle)
		if err != nil {
			return fmt.Errorf("generators[%d]: %w", i, err)
		}
		g := b.m.NewGenerator(et, f, cycle)
		if gs.Count != nil {
			if g.Count, err = randvar.New(*gs.Count); err != nil {
				return fmt.Errorf("generators[%d] count: %w", i, err)
			}
		}
	}
	return nil
}
