package trace

import "github.com/resflow/resflow-sim/sim"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TimeSteps         int
	ElementsStarted   int
	ElementsFinished  int
	ActivityStarts    int
	Interruptions     int
	MaxConcurrent     int            // most activities running at once
	UniqueResources   int
	UsageDistribution map[string]int // resource ID → times caught
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		UsageDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	summary.TimeSteps = st.TimeSteps
	for _, e := range st.Elements {
		if e.Event == sim.ElementStart.String() {
			summary.ElementsStarted++
		} else {
			summary.ElementsFinished++
		}
	}

	running := 0
	for _, a := range st.Activities {
		switch a.Event {
		case sim.ActivityStart.String(), sim.ActivityResume.String():
			if a.Event == sim.ActivityStart.String() {
				summary.ActivityStarts++
			}
			running++
			if running > summary.MaxConcurrent {
				summary.MaxConcurrent = running
			}
		case sim.ActivityEnd.String(), sim.ActivityInterrupt.String():
			if a.Event == sim.ActivityInterrupt.String() {
				summary.Interruptions++
			}
			running--
		}
	}

	for _, u := range st.Usages {
		if u.Event == sim.ResourceCaught.String() {
			summary.UsageDistribution[u.Resource]++
		}
	}
	summary.UniqueResources = len(summary.UsageDistribution)

	return summary
}
