package sim

import (
	"fmt"
	"math/rand"
	"sort"
)

// Cycle describes a sequence of instants: resource roll-ons and generator
// arrivals are both driven by cycles.
type Cycle interface {
	// Iterator returns a fresh iterator over the instants before end.
	// Instants earlier than start are still yielded; callers decide how to
	// treat them.
	Iterator(start, end int64, rng *rand.Rand) CycleIterator
}

// CycleIterator yields successive instants of a cycle.
type CycleIterator interface {
	// Next returns the next instant, or false when the cycle is exhausted.
	Next() (int64, bool)
}

// PeriodicCycle starts at Start and repeats every Period.
// Iterations == 0 means unbounded; End == 0 means unbounded.
type PeriodicCycle struct {
	Start      int64
	Period     TimeFunction
	Iterations int
	End        int64
}

// Validate rejects periodic cycles that could never advance.
func (c *PeriodicCycle) Validate() error {
	if c.Period == nil {
		return fmt.Errorf("periodic cycle requires a period")
	}
	if c.Iterations < 0 {
		return fmt.Errorf("periodic cycle iterations must be >= 0, got %d", c.Iterations)
	}
	if c.End != 0 && c.End < c.Start {
		return fmt.Errorf("periodic cycle end %d before start %d", c.End, c.Start)
	}
	return nil
}

func (c *PeriodicCycle) Iterator(start, end int64, rng *rand.Rand) CycleIterator {
	limit := end
	if c.End != 0 && c.End < limit {
		limit = c.End
	}
	return &periodicIterator{cycle: c, next: c.Start, limit: limit, rng: rng}
}

type periodicIterator struct {
	cycle *PeriodicCycle
	next  int64
	limit int64
	count int
	rng   *rand.Rand
}

func (it *periodicIterator) Next() (int64, bool) {
	if it.cycle.Iterations > 0 && it.count >= it.cycle.Iterations {
		return 0, false
	}
	if it.next >= it.limit {
		return 0, false
	}
	ts := it.next
	it.count++
	period := sampleTicks(it.cycle.Period, ts, it.rng)
	if period <= 0 {
		// a zero period would never advance; fire once only
		it.next = it.limit
	} else {
		it.next = ts + period
	}
	return ts, true
}

// TableCycle fires at an explicit list of instants.
type TableCycle struct {
	Instants []int64
}

func (c *TableCycle) Iterator(_, end int64, _ *rand.Rand) CycleIterator {
	instants := make([]int64, 0, len(c.Instants))
	for _, ts := range c.Instants {
		if ts < end {
			instants = append(instants, ts)
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i] < instants[j] })
	return &tableIterator{instants: instants}
}

type tableIterator struct {
	instants []int64
	pos      int
}

func (it *tableIterator) Next() (int64, bool) {
	if it.pos >= len(it.instants) {
		return 0, false
	}
	ts := it.instants[it.pos]
	it.pos++
	return ts, true
}
