package trace

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/resflow/resflow-sim/sim"
)

// TraceLevel controls the verbosity of notification tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelActivities records activity lifecycle notifications.
	TraceLevelActivities TraceLevel = "activities"
	// TraceLevelAll also records resource timetable and usage notifications.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:       true,
	TraceLevelActivities: true,
	TraceLevelAll:        true,
	"":                   true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxRecords caps each record list; 0 means unbounded.
	MaxRecords int
}

// SimulationTrace collects kernel notifications. It implements sim.Listener.
type SimulationTrace struct {
	Config     TraceConfig      `yaml:"-"`
	Elements   []ElementRecord  `yaml:"elements,omitempty"`
	Activities []ActivityRecord `yaml:"activities,omitempty"`
	Resources  []ResourceRecord `yaml:"resources,omitempty"`
	Usages     []UsageRecord    `yaml:"usages,omitempty"`
	TimeSteps  int              `yaml:"time_steps"`
	Dropped    int              `yaml:"dropped,omitempty"`

	mu sync.Mutex
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Elements:   make([]ElementRecord, 0),
		Activities: make([]ActivityRecord, 0),
		Resources:  make([]ResourceRecord, 0),
		Usages:     make([]UsageRecord, 0),
	}
}

func (st *SimulationTrace) full(n int) bool {
	if st.Config.MaxRecords > 0 && n >= st.Config.MaxRecords {
		st.Dropped++
		return true
	}
	return false
}

// Notify implements sim.Listener.
func (st *SimulationTrace) Notify(info sim.Info) {
	if st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	switch i := info.(type) {
	case sim.TimeChangeInfo:
		st.TimeSteps++
	case sim.ElementInfo:
		if !st.full(len(st.Elements)) {
			st.Elements = append(st.Elements, ElementRecord{
				ElementID: i.ElementID, Clock: i.Clock, Type: i.ElementType, Event: i.Type.String(),
			})
		}
	case sim.ActivityInfo:
		if !st.full(len(st.Activities)) {
			st.Activities = append(st.Activities, ActivityRecord{
				ElementID: i.ElementID, Clock: i.Clock, Activity: i.Activity,
				WorkGroup: i.WorkGroup, Manager: i.Manager, Event: i.Type.String(),
			})
		}
	case sim.ResourceInfo:
		if st.Config.Level != TraceLevelAll || st.full(len(st.Resources)) {
			return
		}
		st.Resources = append(st.Resources, ResourceRecord{
			Resource: i.Resource, Clock: i.Clock, Role: i.ResourceType, Event: i.Type.String(),
		})
	case sim.ResourceUsageInfo:
		if st.Config.Level != TraceLevelAll || st.full(len(st.Usages)) {
			return
		}
		st.Usages = append(st.Usages, UsageRecord{
			Resource: i.Resource, Clock: i.Clock, Role: i.ResourceType,
			ElementID: i.ElementID, Activity: i.Activity, Event: i.Type.String(),
		})
	}
}

// WriteYAML dumps the recorded trace.
func (st *SimulationTrace) WriteYAML(w io.Writer) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return enc.Close()
}
