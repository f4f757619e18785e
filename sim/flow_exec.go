package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// loopContext is attached to the thread running a loop body.
type loopContext struct {
	flow      *Flow
	iteration int
	limit     int64
	done      bool
}

// request moves thread t onto flow f, arriving from flow from (nil when t
// starts at f).
func (s *Simulation) request(t *WorkThread, f *Flow, from *Flow) {
	t.current = f
	switch {
	case f.Kind == FlowSingle:
		s.requestTask(t, f)
	case f.Kind.isSplit():
		s.split(t, f)
	case f.Kind == FlowThreadSplit:
		s.threadSplit(t, f)
	case f.Kind.isJoin():
		s.arrive(t, f, from)
	case f.Kind.isLoop():
		s.enterLoop(t, f)
	default:
		panic(fmt.Sprintf("flow %s: unsupported kind %s", f.ID, f.Kind))
	}
}

// next moves t past f, ending its path when f has no successor.
func (s *Simulation) next(t *WorkThread, f *Flow) {
	if f.successor == nil {
		s.endPath(t)
		return
	}
	s.request(t, f.successor, f)
}

// endPath is reached when a thread has nowhere left to go. A loop body ends
// its iteration only once every thread it spawned has ended too.
func (s *Simulation) endPath(t *WorkThread) {
	s.finishThread(t)
}

func (s *Simulation) finishThread(t *WorkThread) {
	done, loopIdle := t.element.finish(t)
	for _, lt := range loopIdle {
		s.loopIterationEnd(lt)
	}
	if done {
		s.elementDone(t.element)
	}
}

func (s *Simulation) requestTask(t *WorkThread, f *Flow) {
	if !t.token.Visit(f.ID) {
		logrus.Debugf("[tick %07d] E%d thread %d revisits %s; ending path", s.Clock(), t.element.id, t.id, f.ID)
		s.finishThread(t)
		return
	}
	if !t.token.executable {
		s.next(t, f)
		return
	}
	item := newWorkItem(t, f, s.Clock())
	if done := f.Activity.manager.request(item); done {
		s.activityDone(item)
	}
}

// activityDone continues the flow of an item whose activity is over.
func (s *Simulation) activityDone(item *WorkItem) {
	for name, delta := range item.flow.VarUpdates {
		item.element.AddVar(name, delta)
	}
	s.next(item.thread, item.flow)
}

// scheduleActivityDone defers activityDone to a same-instant event so that it
// runs outside the manager lock held by the caller.
func (s *Simulation) scheduleActivityDone(item *WorkItem) {
	s.lp.ScheduleFunc(s.Clock(), PriorityRequest, func() {
		s.activityDone(item)
	})
}

// scheduleElementAvailable re-checks, at the current instant, every queued
// request of an element that just left a presential activity.
func (s *Simulation) scheduleElementAvailable(el *Element) {
	s.lp.ScheduleFunc(s.Clock(), PriorityAvailable, func() {
		byManager := make(map[*ActivityManager][]*WorkItem)
		var order []*ActivityManager
		for _, item := range el.pendingItems() {
			m := item.activity.manager
			if _, ok := byManager[m]; !ok {
				order = append(order, m)
			}
			byManager[m] = append(byManager[m], item)
		}
		for _, m := range order {
			m.retryElement(byManager[m])
		}
	})
}

// split spawns one child per branch. Choices decide executability from their
// guards, in declaration order; losing branches carry false tokens.
func (s *Simulation) split(t *WorkThread, f *Flow) {
	if len(f.branches) == 0 {
		panic(fmt.Sprintf("flow %s: %s reached with no branches", f.ID, f.Kind))
	}
	exec := t.token.executable
	decisions := make([]bool, len(f.branches))
	switch f.Kind {
	case FlowParallel:
		for i := range decisions {
			decisions[i] = exec
		}
	case FlowExclusiveChoice:
		if exec {
			for i := range f.branches {
				if s.check(f.guards[i], t, 0) {
					decisions[i] = true
					break
				}
			}
		}
	case FlowMultiChoice:
		if exec {
			for i := range f.branches {
				decisions[i] = s.check(f.guards[i], t, 0)
			}
		}
	}

	tokens := make([]*WorkToken, len(f.branches))
	for i, d := range decisions {
		tokens[i] = t.token.fork(d, f.ID)
	}
	children := t.element.spawn(t, tokens)
	for i, child := range children {
		s.request(child, f.branches[i], f)
	}
}

// threadSplit fans its single successor out into Instances child threads.
func (s *Simulation) threadSplit(t *WorkThread, f *Flow) {
	if f.successor == nil {
		panic(fmt.Sprintf("flow %s: thread split reached with no successor", f.ID))
	}
	tokens := make([]*WorkToken, f.Instances)
	for i := range tokens {
		tokens[i] = t.token.fork(t.token.executable, f.ID)
	}
	children := t.element.spawn(t, tokens)
	for _, child := range children {
		s.request(child, f.successor, f)
	}
}

// arrive counts t at join f. The releasing arrival resumes the parent thread
// past the join; every arriving thread ends here.
func (s *Simulation) arrive(t *WorkThread, f *Flow, from *Flow) {
	el := t.element
	parent := el.parent(t)
	if parent == nil {
		panic(fmt.Sprintf("flow %s: element %d reached %s without a split", f.ID, el.id, f.Kind))
	}
	release, exec := f.join.arrive(f, activationKey{element: el.id, thread: parent.id}, from, t.token.executable)

	if release {
		logrus.Debugf("[tick %07d] E%d %s %s released (executable=%v)", s.Clock(), el.id, f.Kind, f.ID, exec)
		el.resumeFrom(parent, t, exec, f.ID)
		s.finishThread(t)
		s.next(parent, f)
		return
	}
	s.finishThread(t)
}

// arrive records an arrival and decides whether it releases the join.
func (js *joinState) arrive(f *Flow, key activationKey, from *Flow, executable bool) (release, exec bool) {
	fanIn := f.fanIn()

	js.mu.Lock()
	defer js.mu.Unlock()
	act, ok := js.activations[key]
	if !ok {
		act = &activation{from: make(map[*Flow]bool)}
		js.activations[key] = act
	}
	if f.Kind != FlowThreadMerge {
		known := false
		for _, p := range f.predecessors {
			if p == from {
				known = true
				break
			}
		}
		if !known {
			panic(fmt.Sprintf("flow %s: arrival from unknown predecessor", f.ID))
		}
		if act.from[from] {
			panic(fmt.Sprintf("flow %s: second arrival from %s in one activation", f.ID, from.ID))
		}
		act.from[from] = true
	}
	act.arrived++
	if act.arrived > fanIn {
		panic(fmt.Sprintf("flow %s: %d arrivals exceed fan-in %d", f.ID, act.arrived, fanIn))
	}
	if executable {
		act.accepted++
	}

	if !act.released {
		switch f.Kind {
		case FlowSynchronization:
			if act.arrived == fanIn {
				release, exec = true, act.accepted > 0
			}
		default:
			if act.accepted >= f.acceptThreshold() {
				release, exec = true, true
			} else if act.arrived == fanIn {
				release, exec = true, false
			}
		}
		act.released = release
	}
	if act.arrived == fanIn {
		delete(js.activations, key)
	}
	return release, exec
}

func (f *Flow) acceptThreshold() int {
	switch f.Kind {
	case FlowPartialJoin, FlowThreadMerge:
		return f.AcceptValue
	default:
		return 1
	}
}

// check evaluates cond for thread t; nil holds.
func (s *Simulation) check(cond Condition, t *WorkThread, iteration int) bool {
	if cond == nil {
		return true
	}
	return cond.Check(&ConditionContext{Element: t.element, Thread: t, Iteration: iteration, Now: s.Clock()})
}

// enterLoop starts a structured loop. The body runs on one child thread that
// is reused across iterations.
func (s *Simulation) enterLoop(t *WorkThread, f *Flow) {
	if !t.token.executable {
		s.next(t, f)
		return
	}
	lc := &loopContext{flow: f}
	switch f.Kind {
	case FlowWhileDo:
		if !s.check(f.Condition, t, 0) {
			s.next(t, f)
			return
		}
	case FlowFor:
		lc.limit = t.element.sample(f.Iterations, s.Clock())
		if lc.limit <= 0 {
			s.next(t, f)
			return
		}
	}
	body := t.element.spawnLoop(t, lc)
	s.request(body, f.Body, f)
}

// loopIterationEnd decides, once the body thread is idle, whether to run the
// body again or to resume the thread that entered the loop.
func (s *Simulation) loopIterationEnd(body *WorkThread) {
	lc := body.loop
	f := lc.flow
	lc.iteration++

	again := false
	if body.token.executable {
		switch f.Kind {
		case FlowWhileDo, FlowDoWhile:
			again = s.check(f.Condition, body, lc.iteration)
		case FlowFor:
			again = int64(lc.iteration) < lc.limit
		}
	}
	if again {
		body.element.restartLoop(body)
		s.request(body, f.Body, f)
		return
	}

	el := body.element
	outer := el.parent(body)
	if outer == nil {
		panic(fmt.Sprintf("flow %s: loop body thread has no parent", f.ID))
	}
	lc.done = true
	el.resume(outer, outer.token.executable, f.ID)
	s.finishThread(body)
	s.next(outer, f)
}
