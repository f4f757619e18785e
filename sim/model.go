package sim

import (
	"errors"
	"fmt"
)

// Model holds everything a simulation needs before the clock starts.
// Build validates it and partitions it into activity managers; a built model
// can drive a single Simulation.
type Model struct {
	ID string

	resourceTypes []*ResourceType
	resources     []*Resource
	activities    []*Activity
	elementTypes  []*ElementType
	generators    []*Generator
	graph         *FlowGraph
	managers      []*ActivityManager

	built bool
	bound bool
}

// NewModel creates an empty model.
func NewModel(id string) *Model {
	return &Model{ID: id, graph: NewFlowGraph()}
}

func (m *Model) NewResourceType(id string) *ResourceType {
	rt := &ResourceType{ID: id}
	m.resourceTypes = append(m.resourceTypes, rt)
	return rt
}

func (m *Model) NewResource(id string) *Resource {
	r := &Resource{ID: id, idx: len(m.resources)}
	m.resources = append(m.resources, r)
	return r
}

// NewActivity creates a presential, non-interruptible activity.
func (m *Model) NewActivity(id string) *Activity {
	a := &Activity{ID: id, Presential: true}
	m.activities = append(m.activities, a)
	return a
}

// NewTransitionActivity creates a stochastic activity driven by a transition matrix.
func (m *Model) NewTransitionActivity(id string) *Activity {
	a := NewTransitionActivity(id)
	m.activities = append(m.activities, a)
	return a
}

func (m *Model) NewElementType(id string, priority int) *ElementType {
	et := &ElementType{ID: id, Priority: priority, Vars: make(map[string]float64)}
	m.elementTypes = append(m.elementTypes, et)
	return et
}

func (m *Model) NewGenerator(et *ElementType, flow *Flow, cycle Cycle) *Generator {
	g := &Generator{ElementType: et, Flow: flow, Cycle: cycle, idx: len(m.generators)}
	m.generators = append(m.generators, g)
	return g
}

// Flows returns the model's flow graph.
func (m *Model) Flows() *FlowGraph {
	return m.graph
}

func (m *Model) ResourceTypes() []*ResourceType { return m.resourceTypes }
func (m *Model) Resources() []*Resource         { return m.resources }
func (m *Model) Activities() []*Activity        { return m.activities }
func (m *Model) ElementTypes() []*ElementType   { return m.elementTypes }
func (m *Model) Generators() []*Generator       { return m.generators }

// Managers returns the activity managers computed by Build.
func (m *Model) Managers() []*ActivityManager { return m.managers }

// ResourceType looks a resource type up by id.
func (m *Model) ResourceType(id string) *ResourceType {
	for _, rt := range m.resourceTypes {
		if rt.ID == id {
			return rt
		}
	}
	return nil
}

// Activity looks an activity up by id.
func (m *Model) Activity(id string) *Activity {
	for _, a := range m.activities {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Validate reports every model error found, joined.
func (m *Model) Validate() error {
	var errs []error
	ids := func(kind string, list []string) {
		seen := make(map[string]bool)
		for _, id := range list {
			if id == "" {
				errs = append(errs, fmt.Errorf("%s with empty id", kind))
			} else if seen[id] {
				errs = append(errs, fmt.Errorf("duplicate %s id %q", kind, id))
			}
			seen[id] = true
		}
	}
	var rtIDs, resIDs, actIDs, etIDs []string
	known := make(map[*ResourceType]bool)
	for _, rt := range m.resourceTypes {
		rtIDs = append(rtIDs, rt.ID)
		known[rt] = true
	}
	for _, r := range m.resources {
		resIDs = append(resIDs, r.ID)
		for i, e := range r.Entries {
			switch {
			case e.Role == nil:
				errs = append(errs, fmt.Errorf("resource %s: timetable entry %d has no role", r.ID, i))
			case !known[e.Role]:
				errs = append(errs, fmt.Errorf("resource %s: timetable entry %d uses foreign type %s", r.ID, i, e.Role.ID))
			case e.Cycle == nil:
				errs = append(errs, fmt.Errorf("resource %s: timetable entry %d has no cycle", r.ID, i))
			case e.Duration == nil:
				errs = append(errs, fmt.Errorf("resource %s: timetable entry %d has no duration", r.ID, i))
			}
			if pc, ok := e.Cycle.(*PeriodicCycle); ok {
				if err := pc.Validate(); err != nil {
					errs = append(errs, fmt.Errorf("resource %s: timetable entry %d: %w", r.ID, i, err))
				}
			}
		}
	}
	for _, a := range m.activities {
		actIDs = append(actIDs, a.ID)
		if err := a.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, rt := range a.resourceTypes() {
			if !known[rt] {
				errs = append(errs, fmt.Errorf("activity %s: requires foreign type %s", a.ID, rt.ID))
			}
		}
	}
	for _, et := range m.elementTypes {
		etIDs = append(etIDs, et.ID)
	}
	ids("resource type", rtIDs)
	ids("resource", resIDs)
	ids("activity", actIDs)
	ids("element type", etIDs)

	if err := m.graph.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, g := range m.generators {
		if err := g.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build validates the model and groups activities and resource types into
// activity managers: two types end up in the same manager when an activity
// requires both or a resource can serve both.
func (m *Model) Build() error {
	if m.built {
		return nil
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", m.ID, err)
	}

	uf := newUnionFind(len(m.resourceTypes) + len(m.activities))
	typeIdx := make(map[*ResourceType]int, len(m.resourceTypes))
	for i, rt := range m.resourceTypes {
		typeIdx[rt] = i
	}
	actIdx := func(i int) int { return len(m.resourceTypes) + i }

	for i, a := range m.activities {
		for _, rt := range a.resourceTypes() {
			uf.union(actIdx(i), typeIdx[rt])
			rt.addActivity(a)
		}
	}
	for _, r := range m.resources {
		for _, e := range r.Entries {
			uf.union(typeIdx[r.Entries[0].Role], typeIdx[e.Role])
		}
	}

	byRoot := make(map[int]*ActivityManager)
	managerFor := func(node int) *ActivityManager {
		root := uf.find(node)
		mgr, ok := byRoot[root]
		if !ok {
			mgr = &ActivityManager{id: len(m.managers)}
			byRoot[root] = mgr
			m.managers = append(m.managers, mgr)
		}
		return mgr
	}
	for i, a := range m.activities {
		mgr := managerFor(actIdx(i))
		a.manager = mgr
		mgr.activities = append(mgr.activities, a)
	}
	for i, rt := range m.resourceTypes {
		mgr := managerFor(i)
		rt.manager = mgr
		mgr.resourceTypes = append(mgr.resourceTypes, rt)
	}
	for _, r := range m.resources {
		if len(r.Entries) == 0 {
			continue
		}
		r.manager = r.Entries[0].Role.manager
		r.manager.resources = append(r.manager.resources, r)
	}
	m.built = true
	return nil
}

// unionFind is a disjoint-set forest with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		uf.parent[rb] = ra
	} else {
		uf.parent[ra] = rb
	}
}
