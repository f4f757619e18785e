package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resflow/resflow-sim/sim"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.ActivityStarts)
	assert.Empty(t, summary.UsageDistribution)
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	assert.Zero(t, summary.TimeSteps)
	assert.Zero(t, summary.ElementsStarted)
	assert.Zero(t, summary.MaxConcurrent)
	assert.Zero(t, summary.UniqueResources)
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with overlapping activities, one interruption and three catches
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	infos := []sim.Info{
		sim.TimeChangeInfo{Clock: 0},
		sim.ElementInfo{Type: sim.ElementStart, Clock: 0, ElementID: 1},
		sim.ElementInfo{Type: sim.ElementStart, Clock: 0, ElementID: 2},
		sim.ActivityInfo{Type: sim.ActivityStart, Clock: 0, ElementID: 1, Activity: "a"},
		sim.ResourceUsageInfo{Type: sim.ResourceCaught, Clock: 0, Resource: "r1", ElementID: 1},
		sim.ActivityInfo{Type: sim.ActivityStart, Clock: 0, ElementID: 2, Activity: "a"},
		sim.ResourceUsageInfo{Type: sim.ResourceCaught, Clock: 0, Resource: "r2", ElementID: 2},
		sim.TimeChangeInfo{Clock: 5},
		sim.ActivityInfo{Type: sim.ActivityInterrupt, Clock: 5, ElementID: 2, Activity: "a"},
		sim.ResourceUsageInfo{Type: sim.ResourceReleased, Clock: 5, Resource: "r2", ElementID: 2},
		sim.TimeChangeInfo{Clock: 10},
		sim.ActivityInfo{Type: sim.ActivityEnd, Clock: 10, ElementID: 1, Activity: "a"},
		sim.ResourceUsageInfo{Type: sim.ResourceReleased, Clock: 10, Resource: "r1", ElementID: 1},
		sim.ActivityInfo{Type: sim.ActivityResume, Clock: 10, ElementID: 2, Activity: "a"},
		sim.ResourceUsageInfo{Type: sim.ResourceCaught, Clock: 10, Resource: "r1", ElementID: 2},
		sim.ElementInfo{Type: sim.ElementFinish, Clock: 10, ElementID: 1},
	}
	for _, info := range infos {
		st.Notify(info)
	}

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts reflect the notifications
	assert.Equal(t, 3, summary.TimeSteps)
	assert.Equal(t, 2, summary.ElementsStarted)
	assert.Equal(t, 1, summary.ElementsFinished)
	assert.Equal(t, 2, summary.ActivityStarts)
	assert.Equal(t, 1, summary.Interruptions)
	assert.Equal(t, 2, summary.MaxConcurrent)
	assert.Equal(t, 2, summary.UniqueResources)
	assert.Equal(t, map[string]int{"r1": 2, "r2": 1}, summary.UsageDistribution)
}
