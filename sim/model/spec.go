// Package model loads resflow models from YAML files and translates them into
// sim.Model values.
package model

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resflow/resflow-sim/sim"
	"github.com/resflow/resflow-sim/sim/randvar"
)

// Spec is the top-level model file.
type Spec struct {
	Version       string             `yaml:"version,omitempty"`
	Name          string             `yaml:"name"`
	Run           RunSpec            `yaml:"run"`
	ResourceTypes []ResourceTypeSpec `yaml:"resource_types"`
	Resources     []ResourceSpec     `yaml:"resources"`
	Activities    []ActivitySpec     `yaml:"activities"`
	ElementTypes  []ElementTypeSpec  `yaml:"element_types"`
	Flows         []FlowSpec         `yaml:"flows"`
	Generators    []GeneratorSpec    `yaml:"generators"`
}

// RunSpec holds the default run parameters; CLI flags override them.
type RunSpec struct {
	Start    int64  `yaml:"start"`
	End      int64  `yaml:"end"`
	Seed     int64  `yaml:"seed"`
	Dispatch string `yaml:"dispatch,omitempty"`
	Workers  int    `yaml:"workers,omitempty"`
}

type ResourceTypeSpec struct {
	ID string `yaml:"id"`
}

type ResourceSpec struct {
	ID        string          `yaml:"id"`
	Timetable []TimeTableSpec `yaml:"timetable"`
}

// TimeTableSpec makes a resource available as Role for Duration at every
// instant of Cycle.
type TimeTableSpec struct {
	Role     string           `yaml:"role"`
	Cycle    CycleSpec        `yaml:"cycle"`
	Duration randvar.DistSpec `yaml:"duration"`
}

// CycleSpec is either periodic (Period set) or a table (Instants set).
type CycleSpec struct {
	Start      int64             `yaml:"start,omitempty"`
	Period     *randvar.DistSpec `yaml:"period,omitempty"`
	Iterations int               `yaml:"iterations,omitempty"`
	End        int64             `yaml:"end,omitempty"`
	Instants   []int64           `yaml:"instants,omitempty"`
}

type RequirementSpec struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

type WorkGroupSpec struct {
	ID        string            `yaml:"id"`
	Priority  int               `yaml:"priority,omitempty"`
	Duration  randvar.DistSpec  `yaml:"duration"`
	Requires  []RequirementSpec `yaml:"requires,omitempty"`
	Condition *ConditionSpec    `yaml:"condition,omitempty"`
}

// ActivitySpec declares either workgroups or a transition matrix.
type ActivitySpec struct {
	ID            string          `yaml:"id"`
	Priority      int             `yaml:"priority,omitempty"`
	Presential    *bool           `yaml:"presential,omitempty"`
	Interruptible bool            `yaml:"interruptible,omitempty"`
	WorkGroups    []WorkGroupSpec `yaml:"workgroups,omitempty"`
	Transitions   *TransitionSpec `yaml:"transitions,omitempty"`
}

// TransitionSpec lists the states of a stochastic activity and one row per
// state. The sentinel states are named "initial" and "final".
type TransitionSpec struct {
	States []WorkGroupSpec `yaml:"states"`
	Rows   []RowSpec       `yaml:"rows"`
}

type RowSpec struct {
	From string      `yaml:"from"`
	To   []ArrowSpec `yaml:"to"`
}

type ArrowSpec struct {
	State       string  `yaml:"state"`
	Probability float64 `yaml:"probability"`
}

type ElementTypeSpec struct {
	ID       string             `yaml:"id"`
	Priority int                `yaml:"priority,omitempty"`
	Vars     map[string]float64 `yaml:"vars,omitempty"`
}

// FlowSpec declares one node of the flow graph. Fields not used by Kind must
// stay empty.
type FlowSpec struct {
	ID         string             `yaml:"id"`
	Kind       string             `yaml:"kind"`
	Activity   string             `yaml:"activity,omitempty"`
	VarUpdates map[string]float64 `yaml:"var_updates,omitempty"`
	Next       string             `yaml:"next,omitempty"`
	Branches   []BranchSpec       `yaml:"branches,omitempty"`
	Accept     int                `yaml:"accept,omitempty"`
	Instances  int                `yaml:"instances,omitempty"`
	Body       string             `yaml:"body,omitempty"`
	Condition  *ConditionSpec     `yaml:"condition,omitempty"`
	Iterations *randvar.DistSpec  `yaml:"iterations,omitempty"`
}

type BranchSpec struct {
	To        string         `yaml:"to"`
	Condition *ConditionSpec `yaml:"condition,omitempty"`
}

// ConditionSpec is a tagged condition tree.
type ConditionSpec struct {
	Type       string          `yaml:"type"`
	Conditions []ConditionSpec `yaml:"conditions,omitempty"`
	Percent    float64         `yaml:"percent,omitempty"`
	Var        string          `yaml:"var,omitempty"`
	Op         string          `yaml:"op,omitempty"`
	Value      float64         `yaml:"value,omitempty"`
	Max        int             `yaml:"max,omitempty"`
}

type GeneratorSpec struct {
	ElementType string            `yaml:"element_type"`
	Flow        string            `yaml:"flow"`
	Cycle       CycleSpec         `yaml:"cycle"`
	Count       *randvar.DistSpec `yaml:"count,omitempty"`
}

// Load reads a YAML model file. Unknown fields are rejected.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML model.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return &spec, nil
}

// Validate checks the parts of the spec that do not need cross references.
// Everything else is checked while building.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if s.Run.End <= s.Run.Start {
		return fmt.Errorf("run.end (%d) must be after run.start (%d)", s.Run.End, s.Run.Start)
	}
	if s.Run.Dispatch != "" && !sim.IsValidDispatchKind(s.Run.Dispatch) {
		return fmt.Errorf("unknown run.dispatch %q; valid: sequential, pool, barrier, batched", s.Run.Dispatch)
	}
	if s.Run.Workers < 0 {
		return fmt.Errorf("run.workers must be >= 0, got %d", s.Run.Workers)
	}
	if len(s.Flows) == 0 {
		return fmt.Errorf("at least one flow is required")
	}
	if len(s.Generators) == 0 {
		return fmt.Errorf("at least one generator is required")
	}
	for i, a := range s.Activities {
		if len(a.WorkGroups) > 0 && a.Transitions != nil {
			return fmt.Errorf("activities[%d] %s: workgroups and transitions are exclusive", i, a.ID)
		}
	}
	for i, f := range s.Flows {
		if _, err := sim.ParseFlowKind(f.Kind); err != nil {
			return fmt.Errorf("flows[%d] %s: %w", i, f.ID, err)
		}
	}
	return nil
}

// Config returns the run configuration declared in the file.
func (s *Spec) Config() sim.Config {
	return sim.Config{
		Start:    s.Run.Start,
		End:      s.Run.End,
		Seed:     s.Run.Seed,
		Dispatch: sim.DispatchKind(s.Run.Dispatch),
		Workers:  s.Run.Workers,
	}
}
