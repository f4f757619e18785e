package sim

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder keeps every notification of a run, in delivery order.
type recorder struct {
	mu    sync.Mutex
	infos []Info
}

func (r *recorder) Notify(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
}

func (r *recorder) activity(types ...ActivityInfoType) []ActivityInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ActivityInfo
	for _, info := range r.infos {
		ai, ok := info.(ActivityInfo)
		if !ok {
			continue
		}
		for _, t := range types {
			if ai.Type == t {
				out = append(out, ai)
				break
			}
		}
	}
	return out
}

// starts returns "activity@clock" for every activity start, in order.
func (r *recorder) starts() []string {
	var out []string
	for _, ai := range r.activity(ActivityStart) {
		out = append(out, fmt.Sprintf("%s@%d", ai.Activity, ai.Clock))
	}
	return out
}

func (r *recorder) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.infos))
	for i, info := range r.infos {
		out[i] = fmt.Sprint(info)
	}
	return out
}

// alwaysOn makes r available for role over [from, from+length).
func alwaysOn(r *Resource, role *ResourceType, from, length int64) {
	r.AddTimeTableEntry(&TableCycle{Instants: []int64{from}}, ConstantTime(float64(length)), role)
}

// freeActivity creates a non-presential activity that needs no resources.
func freeActivity(m *Model, id string, duration int64) *Activity {
	a := m.NewActivity(id)
	a.Presential = false
	a.NewWorkGroup(id+"_wg", 0, ConstantTime(float64(duration)))
	return a
}

// runModel binds m to a sequential simulation over [0, end), lets setup
// inject elements, and runs it.
func runModel(t *testing.T, m *Model, end int64, setup func(s *Simulation)) (*Simulation, *recorder) {
	t.Helper()
	s, err := NewSimulation(m, Config{End: end, Seed: 42})
	require.NoError(t, err)
	rec := &recorder{}
	s.AddListener(rec)
	if setup != nil {
		setup(s)
	}
	s.Run()
	return s, rec
}
