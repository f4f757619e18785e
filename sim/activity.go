package sim

import (
	"fmt"
	"sort"
)

// Requirement asks for Count resources able to serve Type.
type Requirement struct {
	Type  *ResourceType
	Count int
}

// WorkGroup is one feasible combination of resources for an activity.
// Lower Priority values are tried first.
type WorkGroup struct {
	ID           string
	Requirements []Requirement
	Duration     TimeFunction
	Priority     int
	// Condition, when set, must hold for the requesting element as well.
	Condition Condition

	activity *Activity
	sentinel bool
}

// Require adds a (type, count) requirement and returns the workgroup.
func (wg *WorkGroup) Require(rt *ResourceType, count int) *WorkGroup {
	wg.Requirements = append(wg.Requirements, Requirement{Type: rt, Count: count})
	return wg
}

// Activity returns the activity owning the workgroup.
func (wg *WorkGroup) Activity() *Activity {
	return wg.activity
}

func (wg *WorkGroup) validate() error {
	if wg.sentinel {
		return nil
	}
	if wg.Duration == nil {
		return fmt.Errorf("workgroup %s: duration is required", wg.ID)
	}
	for i, req := range wg.Requirements {
		if req.Count < 0 {
			return fmt.Errorf("workgroup %s: requirement %d has negative count %d", wg.ID, i, req.Count)
		}
		if req.Type == nil && req.Count > 0 {
			return fmt.Errorf("workgroup %s: requirement %d asks for %d resources of no type", wg.ID, i, req.Count)
		}
	}
	return nil
}

// Activity is a task definition. Activities are read-mostly after Model.Build;
// their queue is guarded by the owning manager.
type Activity struct {
	ID string
	// Priority orders activities competing for freed resources; lower
	// values are served first.
	Priority int
	// Presential activities need the element itself: an element performs at
	// most one presential activity at a time.
	Presential bool
	// Interruptible activities are suspended when a held resource rolls off,
	// and later resumed with their remaining time.
	Interruptible bool

	workGroups  []*WorkGroup
	transitions *TransitionMatrix
	manager     *ActivityManager

	queue    []*WorkItem
	queueSeq uint64
}

// NewWorkGroup creates a workgroup attached to the activity.
func (a *Activity) NewWorkGroup(id string, priority int, duration TimeFunction) *WorkGroup {
	wg := &WorkGroup{ID: id, Priority: priority, Duration: duration, activity: a}
	a.workGroups = append(a.workGroups, wg)
	sort.SliceStable(a.workGroups, func(i, j int) bool {
		return a.workGroups[i].Priority < a.workGroups[j].Priority
	})
	return wg
}

// WorkGroups returns the workgroups ordered by priority.
func (a *Activity) WorkGroups() []*WorkGroup {
	return a.workGroups
}

// Transitions returns the transition matrix of a stochastic activity, or nil.
func (a *Activity) Transitions() *TransitionMatrix {
	return a.transitions
}

// Manager returns the activity manager owning the activity.
func (a *Activity) Manager() *ActivityManager {
	return a.manager
}

// QueueLen returns the number of queued work items. Takes the manager lock.
func (a *Activity) QueueLen() int {
	if a.manager != nil {
		a.manager.mu.Lock()
		defer a.manager.mu.Unlock()
	}
	return len(a.queue)
}

func (a *Activity) resourceTypes() []*ResourceType {
	var types []*ResourceType
	seen := make(map[*ResourceType]bool)
	for _, wg := range a.allWorkGroups() {
		for _, req := range wg.Requirements {
			if req.Type != nil && !seen[req.Type] {
				seen[req.Type] = true
				types = append(types, req.Type)
			}
		}
	}
	return types
}

func (a *Activity) allWorkGroups() []*WorkGroup {
	if a.transitions != nil {
		return a.transitions.states
	}
	return a.workGroups
}

func (a *Activity) validate() error {
	if a.transitions != nil {
		if err := a.transitions.Validate(); err != nil {
			return fmt.Errorf("activity %s: %w", a.ID, err)
		}
	} else if len(a.workGroups) == 0 {
		return fmt.Errorf("activity %s: no workgroups", a.ID)
	}
	for _, wg := range a.allWorkGroups() {
		if err := wg.validate(); err != nil {
			return fmt.Errorf("activity %s: %w", a.ID, err)
		}
	}
	return nil
}

// enqueue inserts the item ordered by element-type priority, then arrival.
func (a *Activity) enqueue(item *WorkItem) {
	if item.queued {
		return
	}
	a.queueSeq++
	item.seq = a.queueSeq
	item.queued = true
	pos := sort.Search(len(a.queue), func(i int) bool {
		other := a.queue[i]
		if other.element.priority() != item.element.priority() {
			return other.element.priority() > item.element.priority()
		}
		return other.seq > item.seq
	})
	a.queue = append(a.queue, nil)
	copy(a.queue[pos+1:], a.queue[pos:])
	a.queue[pos] = item
	item.element.addPending(item)
}

func (a *Activity) dequeue(item *WorkItem) {
	if !item.queued {
		return
	}
	for i, other := range a.queue {
		if other == item {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			break
		}
	}
	item.queued = false
	item.element.removePending(item)
}

// caughtResource records which role a resource was booked for.
type caughtResource struct {
	res  *Resource
	role *ResourceType
}

// WorkItem is one element's request for one activity. It lives from the flow
// request until the activity ends, across queueing, interruption and, for
// stochastic activities, successive workgroups.
type WorkItem struct {
	element  *Element
	thread   *WorkThread
	activity *Activity
	flow     *Flow

	requestTs int64
	seq       uint64
	queued    bool

	workGroup *WorkGroup
	caught    []caughtResource
	finish    *finishEvent
	remaining int64 // ticks left after an interruption; -1 when not interrupted

	// state is the last workgroup reached in a transition matrix.
	state *WorkGroup
}

func newWorkItem(t *WorkThread, f *Flow, now int64) *WorkItem {
	item := &WorkItem{
		element:   t.element,
		thread:    t,
		activity:  f.Activity,
		flow:      f,
		requestTs: now,
		remaining: -1,
	}
	if f.Activity.transitions != nil {
		item.state = f.Activity.transitions.Initial
	}
	return item
}

// finishEvent ends the current workgroup of an item.
type finishEvent struct {
	baseEvent
	item      *WorkItem
	cancelled bool
}

func (e *finishEvent) Execute() {
	m := e.item.activity.manager
	if done := m.finish(e); done {
		m.sim.activityDone(e.item)
	}
}
