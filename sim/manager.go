package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ActivityManager is the mutual-exclusion domain of a set of activities and
// the resource types they contend for. Every read or write of those types'
// availability lists, their resources' holders and timetable state, and the
// activities' queues happens under mu.
type ActivityManager struct {
	id            int
	mu            sync.Mutex
	activities    []*Activity
	resourceTypes []*ResourceType
	resources     []*Resource

	sim *Simulation
	rng *rand.Rand // guarded by mu
}

// ID returns the manager identifier assigned by Model.Build.
func (m *ActivityManager) ID() int {
	return m.id
}

// Activities returns the activities owned by the manager.
func (m *ActivityManager) Activities() []*Activity {
	return m.activities
}

// ResourceTypes returns the resource types owned by the manager.
func (m *ActivityManager) ResourceTypes() []*ResourceType {
	return m.resourceTypes
}

// outcome of an attempt to make progress on a work item.
type outcome int

const (
	outcomeQueued outcome = iota
	outcomeStarted
	outcomeDone
)

// RequestResources tries to start item. On success it returns the chosen
// workgroup; otherwise the item is queued on its activity and ok is false.
func (m *ActivityManager) RequestResources(item *WorkItem) (wg *WorkGroup, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.attempt(item)
	if out == outcomeQueued {
		item.activity.enqueue(item)
		return nil, false
	}
	return item.workGroup, true
}

// ReleaseResources frees every resource held by item and wakes queued items
// that may now be feasible.
func (m *ActivityManager) ReleaseResources(item *WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalAvailable(m.release(item))
}

// request is the flow-facing entry point. done reports that a stochastic
// activity reached its final state without consuming any workgroup.
func (m *ActivityManager) request(item *WorkItem) (done bool) {
	m.sim.notify(ActivityInfo{
		Type:      ActivityRequest,
		Clock:     m.sim.Clock(),
		ElementID: item.element.id,
		Activity:  item.activity.ID,
		Manager:   m.id,
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.attempt(item) {
	case outcomeDone:
		return true
	case outcomeQueued:
		logrus.Debugf("[tick %07d] E%d queued for %s", m.sim.Clock(), item.element.id, item.activity.ID)
		item.activity.enqueue(item)
	}
	return false
}

// attempt tries to make item progress. Requires mu.
func (m *ActivityManager) attempt(item *WorkItem) outcome {
	if item.activity.transitions != nil {
		return m.attemptTransition(item)
	}
	for _, wg := range item.activity.workGroups {
		if m.start(item, wg) {
			return outcomeStarted
		}
	}
	return outcomeQueued
}

// start reserves the resources of wg for item, all or nothing, and schedules
// the end of the workgroup. Requires mu.
func (m *ActivityManager) start(item *WorkItem, wg *WorkGroup) bool {
	if wg.Condition != nil && !wg.Condition.Check(&ConditionContext{Element: item.element, Thread: item.thread, Now: m.sim.Clock()}) {
		return false
	}
	chosen, ok := m.findResources(wg)
	if !ok {
		return false
	}
	if item.activity.Presential && !item.element.acquirePresential(item) {
		return false
	}

	now := m.sim.Clock()
	for _, c := range chosen {
		c.res.holder = item
		c.res.caughtAs = c.role
		m.sim.notify(ResourceUsageInfo{
			Type:         ResourceCaught,
			Clock:        now,
			Resource:     c.res.ID,
			ResourceType: c.role.ID,
			ElementID:    item.element.id,
			Activity:     item.activity.ID,
		})
	}
	for _, req := range wg.Requirements {
		if req.Type == nil {
			continue
		}
		if n := len(req.Type.available); n > 0 {
			req.Type.offset = (req.Type.offset + 1) % n
		}
	}
	item.caught = chosen
	item.workGroup = wg

	infoType := ActivityStart
	var duration int64
	if item.remaining >= 0 {
		infoType = ActivityResume
		duration = item.remaining
		item.remaining = -1
	} else {
		duration = sampleTicks(wg.Duration, now, m.rng)
	}
	item.finish = &finishEvent{baseEvent: m.sim.lp.newBase(now+duration, PriorityFinish), item: item}
	m.sim.lp.Schedule(item.finish)

	logrus.Debugf("[tick %07d] E%d %s %s/%s for %d", now, item.element.id, infoType, item.activity.ID, wg.ID, duration)
	m.sim.notify(ActivityInfo{
		Type:      infoType,
		Clock:     now,
		ElementID: item.element.id,
		Activity:  item.activity.ID,
		WorkGroup: wg.ID,
		Manager:   m.id,
	})
	return true
}

// findResources scans each required type from its rotating offset. Requires mu.
func (m *ActivityManager) findResources(wg *WorkGroup) ([]caughtResource, bool) {
	var chosen []caughtResource
	used := make(map[*Resource]bool)
	for _, req := range wg.Requirements {
		if req.Count == 0 {
			continue
		}
		rt := req.Type
		n := len(rt.available)
		found := 0
		for k := 0; k < n && found < req.Count; k++ {
			r := rt.available[(rt.offset+k)%n]
			if r.holder != nil || used[r] || r.role(rt).timeOut {
				continue
			}
			used[r] = true
			chosen = append(chosen, caughtResource{res: r, role: rt})
			found++
		}
		if found < req.Count {
			return nil, false
		}
	}
	return chosen, true
}

// release frees the resources held by item and returns the types that gained
// a free resource. Requires mu.
func (m *ActivityManager) release(item *WorkItem) []*ResourceType {
	now := m.sim.Clock()
	var freed []*ResourceType
	seen := make(map[*ResourceType]bool)
	for _, c := range item.caught {
		if c.res.manager != m {
			panic(fmt.Sprintf("manager %d: releasing resource %s owned by another manager", m.id, c.res.ID))
		}
		if c.res.holder != item {
			panic(fmt.Sprintf("manager %d: releasing resource %s not held by element %d", m.id, c.res.ID, item.element.id))
		}
		c.res.holder = nil
		c.res.caughtAs = nil
		for _, st := range c.res.roles {
			rt := st.rt
			if st.timeOut {
				st.timeOut = false
				rt.removeAvailable(c.res)
				continue
			}
			if st.open > 0 && !seen[rt] {
				seen[rt] = true
				freed = append(freed, rt)
			}
		}
		m.sim.notify(ResourceUsageInfo{
			Type:         ResourceReleased,
			Clock:        now,
			Resource:     c.res.ID,
			ResourceType: c.role.ID,
			ElementID:    item.element.id,
			Activity:     item.activity.ID,
		})
	}
	item.caught = nil
	return freed
}

// finish ends the running workgroup of an item. It returns true when the
// activity is over and the flow must continue.
func (m *ActivityManager) finish(ev *finishEvent) bool {
	item := ev.item
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.cancelled || item.finish != ev {
		return false
	}
	item.finish = nil
	now := m.sim.Clock()
	wg := item.workGroup

	freed := m.release(item)
	if item.activity.Presential && item.element.releasePresential(item) {
		m.sim.scheduleElementAvailable(item.element)
	}
	m.sim.notify(ActivityInfo{
		Type:      ActivityEnd,
		Clock:     now,
		ElementID: item.element.id,
		Activity:  item.activity.ID,
		WorkGroup: wg.ID,
		Manager:   m.id,
	})
	m.signalAvailable(freed)

	if item.activity.transitions == nil {
		return true
	}
	item.state = wg
	switch m.attemptTransition(item) {
	case outcomeDone:
		return true
	case outcomeQueued:
		// the next state waits like a fresh request
		m.sim.notify(ActivityInfo{
			Type:      ActivityRequest,
			Clock:     now,
			ElementID: item.element.id,
			Activity:  item.activity.ID,
			Manager:   m.id,
		})
		item.activity.enqueue(item)
	}
	return false
}

// interrupt suspends a running interruptible item, keeping its remaining time.
// Requires mu.
func (m *ActivityManager) interrupt(item *WorkItem) {
	if item.finish == nil {
		return
	}
	now := m.sim.Clock()
	item.remaining = item.finish.timestamp - now
	item.finish.cancelled = true
	item.finish = nil
	wg := item.workGroup
	freed := m.release(item)
	logrus.Debugf("[tick %07d] E%d interrupted in %s with %d left", now, item.element.id, item.activity.ID, item.remaining)
	m.sim.notify(ActivityInfo{
		Type:      ActivityInterrupt,
		Clock:     now,
		ElementID: item.element.id,
		Activity:  item.activity.ID,
		WorkGroup: wg.ID,
		Manager:   m.id,
	})
	item.activity.enqueue(item)
	m.signalAvailable(freed)
}

// signalAvailable re-checks queued items of every activity that uses one of
// the given types. Activities are visited by priority, lower values first;
// activities of equal priority are visited in a shuffled order so none of them
// always wins the freed resources. Requires mu.
func (m *ActivityManager) signalAvailable(types []*ResourceType) {
	if len(types) == 0 {
		return
	}
	var acts []*Activity
	seen := make(map[*Activity]bool)
	for _, rt := range types {
		for _, a := range rt.activities {
			if !seen[a] && len(a.queue) > 0 {
				seen[a] = true
				acts = append(acts, a)
			}
		}
	}
	m.rng.Shuffle(len(acts), func(i, j int) { acts[i], acts[j] = acts[j], acts[i] })
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].Priority < acts[j].Priority })
	for _, a := range acts {
		m.retry(a.queue)
	}
}

// retry attempts every given queued item, in order. Requires mu.
func (m *ActivityManager) retry(items []*WorkItem) {
	pending := append([]*WorkItem(nil), items...)
	for _, item := range pending {
		if !item.queued || item.activity.manager != m {
			continue
		}
		switch m.attempt(item) {
		case outcomeStarted:
			item.activity.dequeue(item)
		case outcomeDone:
			item.activity.dequeue(item)
			m.sim.scheduleActivityDone(item)
		}
	}
}

// retryElement re-checks the queued items of el that belong to this manager.
func (m *ActivityManager) retryElement(items []*WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retry(items)
}
