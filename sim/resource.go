package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ResourceType is a role. Its available list holds every resource currently
// timetabled for the role, including resources that are busy or whose window
// closed while they were busy (time-out). The list and the scan offset are
// only touched under the owning manager's lock.
type ResourceType struct {
	ID string

	manager    *ActivityManager
	available  []*Resource
	offset     int
	activities []*Activity // activities with a workgroup requiring this type
}

// Manager returns the activity manager owning this type. Nil before Model.Build.
func (rt *ResourceType) Manager() *ActivityManager {
	return rt.manager
}

// Counts reports how many resources are listed as available for the role and
// how many of those are currently held. Takes the manager lock.
func (rt *ResourceType) Counts() (available, inUse int) {
	if rt.manager != nil {
		rt.manager.mu.Lock()
		defer rt.manager.mu.Unlock()
	}
	return rt.countsLocked()
}

func (rt *ResourceType) countsLocked() (available, inUse int) {
	for _, r := range rt.available {
		if r.holder != nil {
			inUse++
		}
	}
	return len(rt.available), inUse
}

func (rt *ResourceType) addAvailable(r *Resource) {
	rt.available = append(rt.available, r)
}

func (rt *ResourceType) removeAvailable(r *Resource) {
	for i, other := range rt.available {
		if other == r {
			rt.available = append(rt.available[:i], rt.available[i+1:]...)
			if rt.offset > i {
				rt.offset--
			}
			if rt.offset >= len(rt.available) {
				rt.offset = 0
			}
			return
		}
	}
	panic(fmt.Sprintf("resource %s is not listed for type %s", r.ID, rt.ID))
}

func (rt *ResourceType) addActivity(a *Activity) {
	for _, other := range rt.activities {
		if other == a {
			return
		}
	}
	rt.activities = append(rt.activities, a)
}

// TimeTableEntry makes a resource available for Role at every instant of
// Cycle, for Duration ticks each time.
type TimeTableEntry struct {
	Cycle    Cycle
	Duration TimeFunction
	Role     *ResourceType
}

// roleState tracks one role of a resource: how many open timetable windows
// currently cover it, and whether its last window closed while the resource
// was held.
type roleState struct {
	rt      *ResourceType
	open    int
	timeOut bool
}

// Resource is a concrete unit able to serve one or more roles.
type Resource struct {
	ID      string
	Entries []TimeTableEntry

	idx      int
	manager  *ActivityManager
	holder   *WorkItem
	caughtAs *ResourceType
	roles    []*roleState
}

// AddTimeTableEntry appends an availability window generator for role.
func (r *Resource) AddTimeTableEntry(cycle Cycle, duration TimeFunction, role *ResourceType) *Resource {
	r.Entries = append(r.Entries, TimeTableEntry{Cycle: cycle, Duration: duration, Role: role})
	return r
}

// Holder returns the element currently holding the resource, or 0.
// Takes the manager lock.
func (r *Resource) Holder() int64 {
	if r.manager != nil {
		r.manager.mu.Lock()
		defer r.manager.mu.Unlock()
	}
	if r.holder == nil {
		return 0
	}
	return r.holder.element.id
}

func (r *Resource) role(rt *ResourceType) *roleState {
	for _, st := range r.roles {
		if st.rt == rt {
			return st
		}
	}
	st := &roleState{rt: rt}
	r.roles = append(r.roles, st)
	return st
}

// === Timetable events ===

// rollOnEvent opens an availability window [timestamp, until) of one timetable entry.
type rollOnEvent struct {
	baseEvent
	res   *Resource
	entry *TimeTableEntry
	iter  CycleIterator
	until int64
}

func (e *rollOnEvent) Execute() {
	m := e.res.manager
	sim := m.sim
	role := e.entry.Role

	m.mu.Lock()
	defer m.mu.Unlock()

	st := e.res.role(role)
	st.open++
	if st.open == 1 {
		if st.timeOut {
			// still listed because it was held when the previous window closed
			st.timeOut = false
		} else {
			role.addAvailable(e.res)
		}
	}
	logrus.Debugf("[tick %07d] roll-on %s as %s until %d", e.timestamp, e.res.ID, role.ID, e.until)
	sim.notify(ResourceInfo{Type: ResourceRollOn, Clock: e.timestamp, Resource: e.res.ID, ResourceType: role.ID})

	sim.lp.Schedule(&rollOffEvent{
		baseEvent: sim.lp.newBase(e.until, PriorityRollOff),
		res:       e.res,
		role:      role,
	})
	sim.scheduleNextRollOn(e.res, e.entry, e.iter, e.timestamp)

	m.signalAvailable([]*ResourceType{role})
}

// rollOffEvent closes an availability window.
type rollOffEvent struct {
	baseEvent
	res  *Resource
	role *ResourceType
}

func (e *rollOffEvent) Execute() {
	m := e.res.manager
	sim := m.sim

	m.mu.Lock()
	defer m.mu.Unlock()

	st := e.res.role(e.role)
	st.open--
	if st.open < 0 {
		panic(fmt.Sprintf("resource %s rolled off as %s more often than it rolled on", e.res.ID, e.role.ID))
	}
	logrus.Debugf("[tick %07d] roll-off %s as %s", e.timestamp, e.res.ID, e.role.ID)
	sim.notify(ResourceInfo{Type: ResourceRollOff, Clock: e.timestamp, Resource: e.res.ID, ResourceType: e.role.ID})
	if st.open > 0 {
		return
	}
	if e.res.holder == nil {
		e.role.removeAvailable(e.res)
		return
	}
	st.timeOut = true
	if e.res.caughtAs == e.role && e.res.holder.activity.Interruptible {
		m.interrupt(e.res.holder)
	}
}

// scheduleNextRollOn pulls the next instant from iter and schedules its
// roll-on. Instants whose whole window lies before the clock are skipped;
// a window already open at the clock starts immediately.
func (s *Simulation) scheduleNextRollOn(r *Resource, entry *TimeTableEntry, iter CycleIterator, now int64) {
	rng := s.rng.ForSubsystem(SubsystemResource(r.idx))
	for {
		ts, ok := iter.Next()
		if !ok {
			return
		}
		until := ts + sampleTicks(entry.Duration, ts, rng)
		if until <= now || until <= ts {
			continue
		}
		if ts < now {
			ts = now
		}
		s.lp.Schedule(&rollOnEvent{
			baseEvent: s.lp.newBase(ts, PriorityRollOn),
			res:       r,
			entry:     entry,
			iter:      iter,
			until:     until,
		})
		return
	}
}
