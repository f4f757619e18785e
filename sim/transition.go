package sim

import (
	"fmt"
	"math"
)

// probabilityTolerance bounds the rounding error accepted when a row sums to 1.
const probabilityTolerance = 1e-9

// Transition is one entry of a transition row.
type Transition struct {
	To          *WorkGroup
	Probability float64
}

// TransitionMatrix drives a stochastic activity: after each workgroup, the
// next one is drawn from the row of the workgroup just finished. Initial and
// Final are sentinel states that need no resources.
type TransitionMatrix struct {
	Initial *WorkGroup
	Final   *WorkGroup

	states []*WorkGroup
	rows   map[*WorkGroup][]Transition
}

// NewTransitionActivity creates an activity whose workgroups are the states of
// a fresh transition matrix.
func NewTransitionActivity(id string) *Activity {
	a := &Activity{ID: id, Presential: true}
	a.transitions = &TransitionMatrix{
		Initial: &WorkGroup{ID: "initial", activity: a, sentinel: true},
		Final:   &WorkGroup{ID: "final", activity: a, sentinel: true},
		rows:    make(map[*WorkGroup][]Transition),
	}
	return a
}

// NewState adds a workgroup state to the matrix.
func (tm *TransitionMatrix) NewState(id string, duration TimeFunction) *WorkGroup {
	wg := &WorkGroup{ID: id, Duration: duration, activity: tm.Initial.activity}
	tm.states = append(tm.states, wg)
	return wg
}

// States returns the non-sentinel states.
func (tm *TransitionMatrix) States() []*WorkGroup {
	return tm.states
}

// AddTransition appends an entry to the row of from.
func (tm *TransitionMatrix) AddTransition(from, to *WorkGroup, probability float64) *TransitionMatrix {
	tm.rows[from] = append(tm.rows[from], Transition{To: to, Probability: probability})
	return tm
}

// Row returns a copy of the row of from.
func (tm *TransitionMatrix) Row(from *WorkGroup) []Transition {
	return append([]Transition(nil), tm.rows[from]...)
}

func (tm *TransitionMatrix) known(wg *WorkGroup) bool {
	if wg == tm.Initial || wg == tm.Final {
		return true
	}
	for _, s := range tm.states {
		if s == wg {
			return true
		}
	}
	return false
}

// Validate checks every row and that Final is reachable from Initial.
func (tm *TransitionMatrix) Validate() error {
	if len(tm.rows[tm.Final]) > 0 {
		return fmt.Errorf("transition matrix: final state must have no outgoing row")
	}
	for from := range tm.rows {
		if !tm.known(from) {
			return fmt.Errorf("transition matrix: row for unknown state %s", from.ID)
		}
	}
	for _, from := range append([]*WorkGroup{tm.Initial}, tm.states...) {
		row := tm.rows[from]
		if len(row) == 0 {
			return fmt.Errorf("transition matrix: state %s has no outgoing row", from.ID)
		}
		sum := 0.0
		for _, tr := range row {
			if tr.To == nil || !tm.known(tr.To) {
				return fmt.Errorf("transition matrix: row %s targets an unknown state", from.ID)
			}
			if tr.To == tm.Initial {
				return fmt.Errorf("transition matrix: row %s targets the initial state", from.ID)
			}
			if tr.Probability < 0 || tr.Probability > 1 || math.IsNaN(tr.Probability) {
				return fmt.Errorf("transition matrix: row %s has probability %v outside [0, 1]", from.ID, tr.Probability)
			}
			sum += tr.Probability
		}
		if math.Abs(sum-1) > probabilityTolerance {
			return fmt.Errorf("transition matrix: row %s sums to %v, want 1", from.ID, sum)
		}
	}
	return tm.CheckTransitions()
}

// CheckTransitions proves Final reachable from Initial by a depth-first walk
// over entries with positive probability.
func (tm *TransitionMatrix) CheckTransitions() error {
	visited := make(map[*WorkGroup]bool)
	var dfs func(wg *WorkGroup) bool
	dfs = func(wg *WorkGroup) bool {
		if wg == tm.Final {
			return true
		}
		if visited[wg] {
			return false
		}
		visited[wg] = true
		for _, tr := range tm.rows[wg] {
			if tr.Probability > 0 && dfs(tr.To) {
				return true
			}
		}
		return false
	}
	if !dfs(tm.Initial) {
		return fmt.Errorf("transition matrix: final state unreachable from initial state")
	}
	return nil
}

// SampleRow returns the index of the first entry whose cumulative probability
// is >= u. Rounding leftovers fall on the last positive entry.
func SampleRow(row []Transition, u float64) int {
	cumulative := 0.0
	last := -1
	for i, tr := range row {
		if tr.Probability <= 0 {
			continue
		}
		last = i
		cumulative += tr.Probability
		if cumulative >= u {
			return i
		}
	}
	return last
}

// Renormalize removes entry idx from a working copy of row and rescales the
// remaining probabilities by 1/(1-p_removed). The input row is not modified.
// An empty row is returned when nothing with positive probability remains.
func Renormalize(row []Transition, idx int) []Transition {
	removed := row[idx].Probability
	out := make([]Transition, 0, len(row)-1)
	rest := 1 - removed
	for i, tr := range row {
		if i == idx {
			continue
		}
		out = append(out, tr)
	}
	if rest <= probabilityTolerance {
		return nil
	}
	for i := range out {
		out[i].Probability /= rest
	}
	return out
}

// attemptTransition draws successive targets from the row of the item's
// current state until one can start. Infeasible targets are removed from a
// working copy of the row; when the row empties the item stays in its current
// state. Requires mu.
func (m *ActivityManager) attemptTransition(item *WorkItem) outcome {
	tm := item.activity.transitions
	if item.remaining >= 0 && item.workGroup != nil {
		// an interrupted state resumes where it stopped
		if m.start(item, item.workGroup) {
			return outcomeStarted
		}
		return outcomeQueued
	}
	row := tm.Row(item.state)
	for len(row) > 0 {
		idx := SampleRow(row, m.rng.Float64())
		if idx < 0 {
			break
		}
		target := row[idx].To
		if target == tm.Final {
			return outcomeDone
		}
		if m.start(item, target) {
			return outcomeStarted
		}
		row = Renormalize(row, idx)
	}
	return outcomeQueued
}
