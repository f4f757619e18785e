package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Generator creates elements of one type at every instant of its cycle.
type Generator struct {
	ElementType *ElementType
	Flow        *Flow
	Cycle       Cycle
	// Count is the number of elements created per instant; nil means one.
	Count TimeFunction

	idx int
}

func (g *Generator) validate() error {
	if g.ElementType == nil {
		return fmt.Errorf("generator %d: element type is required", g.idx)
	}
	if g.Flow == nil {
		return fmt.Errorf("generator %d: initial flow is required", g.idx)
	}
	if g.Cycle == nil {
		return fmt.Errorf("generator %d: cycle is required", g.idx)
	}
	if pc, ok := g.Cycle.(*PeriodicCycle); ok {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("generator %d: %w", g.idx, err)
		}
	}
	return nil
}

// generatorEvent fires one instant of a generator cycle.
type generatorEvent struct {
	baseEvent
	sim  *Simulation
	gen  *Generator
	iter CycleIterator
}

func (e *generatorEvent) Execute() {
	s := e.sim
	rng := s.rng.ForSubsystem(SubsystemGenerator(e.gen.idx))
	n := int64(1)
	if e.gen.Count != nil {
		n = sampleTicks(e.gen.Count, e.timestamp, rng)
	}
	logrus.Debugf("[tick %07d] generator %d creates %d %s", e.timestamp, e.gen.idx, n, e.gen.ElementType.ID)
	for i := int64(0); i < n; i++ {
		s.startElement(e.gen.ElementType, e.gen.Flow)
	}
	s.scheduleGenerator(e.gen, e.iter)
}

// scheduleGenerator schedules the next instant of gen at or after the clock.
func (s *Simulation) scheduleGenerator(gen *Generator, iter CycleIterator) {
	for {
		ts, ok := iter.Next()
		if !ok {
			return
		}
		if ts < s.Clock() {
			continue
		}
		s.lp.Schedule(&generatorEvent{
			baseEvent: s.lp.newBase(ts, PriorityGenerator),
			sim:       s,
			gen:       gen,
			iter:      iter,
		})
		return
	}
}
