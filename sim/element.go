package sim

import (
	"fmt"
	"math/rand"
	"sync"
)

// ElementType classifies elements. Lower Priority values are served first in
// activity queues.
type ElementType struct {
	ID       string
	Priority int
	// Vars seeds the variables of every element of this type.
	Vars map[string]float64
}

// Element is a process instance. It owns an arena of work threads indexed by
// id: parent and child links are ids, never pointers held across elements.
// mu guards the arena, the element's RNG and variables, and its presential
// state. Lock order: a manager lock may be held while taking mu, never the
// reverse.
type Element struct {
	id    int64
	etype *ElementType
	sim   *Simulation

	mu         sync.Mutex
	threads    map[int64]*WorkThread
	nextThread int64
	rootID     int64
	rng        *rand.Rand
	vars       map[string]float64
	presential *WorkItem
	pending    []*WorkItem
	startTs    int64
}

// ID returns the element identifier.
func (e *Element) ID() int64 {
	return e.id
}

// Type returns the element type.
func (e *Element) Type() *ElementType {
	return e.etype
}

func (e *Element) priority() int {
	return e.etype.Priority
}

// Float64 draws from the element's private stream.
func (e *Element) Float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// Var returns an element variable, 0 when unset.
func (e *Element) Var(name string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vars[name]
}

// AddVar adds delta to an element variable.
func (e *Element) AddVar(name string, delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] += delta
}

// sample draws a time function on the element's stream.
func (e *Element) sample(tf TimeFunction, now int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sampleTicks(tf, now, e.rng)
}

// ThreadCount returns the number of live work threads.
func (e *Element) ThreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.threads)
}

// === presential state ===

func (e *Element) acquirePresential(item *WorkItem) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.presential != nil && e.presential != item {
		return false
	}
	e.presential = item
	return true
}

// releasePresential frees the element and reports whether other requests of
// the element are waiting for it.
func (e *Element) releasePresential(item *WorkItem) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.presential != item {
		return false
	}
	e.presential = nil
	return len(e.pending) > 0
}

func (e *Element) addPending(item *WorkItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, item)
}

func (e *Element) removePending(item *WorkItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, other := range e.pending {
		if other == item {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

func (e *Element) pendingItems() []*WorkItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*WorkItem(nil), e.pending...)
}

// === thread arena ===

func (e *Element) newRoot(token *WorkToken) *WorkThread {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.addThreadLocked(nil, token)
	e.rootID = t.id
	return t
}

func (e *Element) addThreadLocked(parent *WorkThread, token *WorkToken) *WorkThread {
	e.nextThread++
	t := &WorkThread{id: e.nextThread, element: e, token: token}
	if parent != nil {
		t.parentID = parent.id
		parent.children = append(parent.children, t.id)
	}
	e.threads[t.id] = t
	return t
}

// spawn suspends parent and creates one child per token, atomically, so the
// parent cannot be released before every child exists.
func (e *Element) spawn(parent *WorkThread, tokens []*WorkToken) []*WorkThread {
	e.mu.Lock()
	defer e.mu.Unlock()
	children := make([]*WorkThread, len(tokens))
	for i, tok := range tokens {
		children[i] = e.addThreadLocked(parent, tok)
	}
	parent.suspended = true
	return children
}

// spawnLoop suspends parent and creates the thread running a loop body.
func (e *Element) spawnLoop(parent *WorkThread, lc *loopContext) *WorkThread {
	e.mu.Lock()
	defer e.mu.Unlock()
	child := e.addThreadLocked(parent, NewWorkToken(true, ""))
	child.loop = lc
	parent.suspended = true
	return child
}

// Parent returns the parent thread of t, or nil for the root.
func (e *Element) parent(t *WorkThread) *WorkThread {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.parentID == 0 {
		return nil
	}
	return e.threads[t.parentID]
}

// resume wakes a suspended thread, setting its executability.
func (e *Element) resume(t *WorkThread, executable bool, at string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.released {
		panic(fmt.Sprintf("element %d: resuming released thread %d", e.id, t.id))
	}
	t.suspended = false
	t.token.SetExecutable(executable, at)
}

// resumeFrom wakes parent past a join released by child. The child's history
// is absorbed first, as it would be for any arrival ending under an idle parent.
func (e *Element) resumeFrom(parent, child *WorkThread, executable bool, at string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if parent.released {
		panic(fmt.Sprintf("element %d: resuming released thread %d", e.id, parent.id))
	}
	parent.token.merge(child.token)
	parent.suspended = false
	parent.token.SetExecutable(executable, at)
}

// restartLoop prepares a loop thread for its next iteration.
func (e *Element) restartLoop(t *WorkThread) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.suspended = false
	t.token.resetVisited()
}

// finish ends the traversal of t and releases every thread that is now idle.
// It reports whether the element is done and which loop threads became idle:
// those are not released, their loop decides whether to iterate again. A
// thread with live children is idle only once the last child is released.
func (e *Element) finish(t *WorkThread) (elementDone bool, loopIdle []*WorkThread) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.suspended = true
	return e.releaseLocked(t)
}

func (e *Element) releaseLocked(t *WorkThread) (elementDone bool, loopIdle []*WorkThread) {
	for t != nil {
		if t.released || !t.suspended || len(t.children) > 0 {
			return false, loopIdle
		}
		if t.loop != nil && !t.loop.done {
			return false, append(loopIdle, t)
		}
		t.released = true
		delete(e.threads, t.id)
		if t.parentID == 0 {
			return true, loopIdle
		}
		p, ok := e.threads[t.parentID]
		if !ok {
			panic(fmt.Sprintf("element %d: thread %d has no live parent %d", e.id, t.id, t.parentID))
		}
		removed := false
		for i, id := range p.children {
			if id == t.id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			panic(fmt.Sprintf("element %d: thread %d removed twice from parent %d", e.id, t.id, p.id))
		}
		if p.suspended {
			// a running parent owns its token; only idle parents absorb history
			p.token.merge(t.token)
		}
		t = p
	}
	return false, loopIdle
}

// WorkThread is one live traversal of the flow graph by an element.
type WorkThread struct {
	id        int64
	element   *Element
	parentID  int64
	children  []int64
	token     *WorkToken
	current   *Flow
	suspended bool
	released  bool
	loop      *loopContext
}

// ID returns the thread id, unique within its element.
func (t *WorkThread) ID() int64 {
	return t.id
}

// Token returns the thread's token. Only the event currently driving the
// thread may use it.
func (t *WorkThread) Token() *WorkToken {
	return t.token
}

// Element returns the owning element.
func (t *WorkThread) Element() *Element {
	return t.element
}
