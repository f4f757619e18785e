package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Config holds the run parameters of a simulation.
type Config struct {
	Start    int64
	End      int64
	Seed     int64
	Dispatch DispatchKind
	// Workers is the worker count of parallel dispatchers; <= 0 means one.
	Workers int
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	if c.End <= c.Start {
		return fmt.Errorf("end %d must be after start %d", c.End, c.Start)
	}
	if c.Dispatch != "" && !IsValidDispatchKind(string(c.Dispatch)) {
		return fmt.Errorf("unknown dispatch kind %q", c.Dispatch)
	}
	return nil
}

// Simulation runs one model over one horizon.
type Simulation struct {
	cfg      Config
	model    *Model
	lp       *LogicalProcess
	rng      *PartitionedRNG
	notifier notifier

	nextElementID    atomic.Int64
	elementsStarted  atomic.Int64
	elementsFinished atomic.Int64
}

// NewSimulation builds the model if needed and binds it to a new run.
func NewSimulation(model *Model, cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := model.Build(); err != nil {
		return nil, err
	}
	if model.bound {
		return nil, fmt.Errorf("model %s is already bound to a simulation", model.ID)
	}
	if cfg.Dispatch == "" {
		cfg.Dispatch = DispatchSequential
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	dispatcher, err := NewDispatcher(cfg.Dispatch, cfg.Workers)
	if err != nil {
		return nil, err
	}
	model.bound = true

	s := &Simulation{
		cfg:   cfg,
		model: model,
		rng:   NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
	}
	s.lp = NewLogicalProcess(0, cfg.Start, cfg.End, dispatcher)
	s.lp.onTimeChange = func(ts int64) {
		s.notify(TimeChangeInfo{Clock: ts})
	}
	for _, m := range model.managers {
		m.sim = s
		m.rng = s.rng.ForSubsystem(SubsystemManager(m.id))
	}
	return s, nil
}

// AddListener registers a listener. Listeners must be added before Run.
func (s *Simulation) AddListener(l Listener) {
	s.notifier.add(l)
}

// Clock returns the current simulated timestamp.
func (s *Simulation) Clock() int64 {
	return s.lp.Clock()
}

// Model returns the simulated model.
func (s *Simulation) Model() *Model {
	return s.model
}

// LP returns the logical process driving the run.
func (s *Simulation) LP() *LogicalProcess {
	return s.lp
}

// Managers returns the activity managers of the model.
func (s *Simulation) Managers() []*ActivityManager {
	return s.model.managers
}

// ElementsStarted returns the number of elements created so far.
func (s *Simulation) ElementsStarted() int64 {
	return s.elementsStarted.Load()
}

// ElementsFinished returns the number of elements whose root thread ended.
func (s *Simulation) ElementsFinished() int64 {
	return s.elementsFinished.Load()
}

func (s *Simulation) notify(info Info) {
	s.notifier.notify(info)
}

// Run schedules every timetable and generator and advances until the end of
// the horizon.
func (s *Simulation) Run() {
	logrus.Infof("Starting simulation %s over [%d, %d) with seed %d (%s dispatch)",
		s.model.ID, s.cfg.Start, s.cfg.End, s.cfg.Seed, s.cfg.Dispatch)
	s.notify(SimulationInfo{Type: SimulationStart, Clock: s.cfg.Start})

	for _, r := range s.model.resources {
		rng := s.rng.ForSubsystem(SubsystemResource(r.idx))
		for i := range r.Entries {
			entry := &r.Entries[i]
			iter := entry.Cycle.Iterator(s.cfg.Start, s.cfg.End, rng)
			s.scheduleNextRollOn(r, entry, iter, s.cfg.Start)
		}
	}
	for _, g := range s.model.generators {
		rng := s.rng.ForSubsystem(SubsystemGenerator(g.idx))
		s.scheduleGenerator(g, g.Cycle.Iterator(s.cfg.Start, s.cfg.End, rng))
	}

	s.lp.Run()
	s.lp.dispatcher.Close()

	s.notify(SimulationInfo{Type: SimulationEnd, Clock: s.cfg.End, Events: s.lp.Executed()})
	logrus.Infof("Simulation %s ended: %d events, %d elements started, %d finished",
		s.model.ID, s.lp.Executed(), s.ElementsStarted(), s.ElementsFinished())
}

// StartElement schedules the creation of an element of type et at ts, whose
// root thread starts at flow.
func (s *Simulation) StartElement(ts int64, et *ElementType, flow *Flow) {
	s.lp.ScheduleFunc(ts, PriorityGenerator, func() {
		s.startElement(et, flow)
	})
}

func (s *Simulation) startElement(et *ElementType, flow *Flow) *Element {
	id := s.nextElementID.Add(1)
	el := &Element{
		id:      id,
		etype:   et,
		sim:     s,
		threads: make(map[int64]*WorkThread),
		rng:     s.rng.Detached(SubsystemElement(id)),
		vars:    make(map[string]float64, len(et.Vars)),
		startTs: s.Clock(),
	}
	for k, v := range et.Vars {
		el.vars[k] = v
	}
	s.elementsStarted.Add(1)
	s.notify(ElementInfo{Type: ElementStart, Clock: s.Clock(), ElementID: id, ElementType: et.ID})
	root := el.newRoot(NewWorkToken(true, ""))
	s.request(root, flow, nil)
	return el
}

func (s *Simulation) elementDone(el *Element) {
	s.elementsFinished.Add(1)
	logrus.Debugf("[tick %07d] E%d finished after %d ticks", s.Clock(), el.id, s.Clock()-el.startTs)
	s.notify(ElementInfo{Type: ElementFinish, Clock: s.Clock(), ElementID: el.id, ElementType: el.etype.ID})
}
