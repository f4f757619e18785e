package sim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogicalProcess owns the time-ordered event queue and advances simulated time.
//
// Time advances in wavefronts: every event at the current minimum timestamp,
// including events scheduled at that same timestamp while the batch runs, is
// executed before the clock moves forward. Within an instant the dispatcher
// receives one priority class at a time, and a class joins before the next
// one starts, so parallel dispatchers see the same class order as the
// sequential one. The clock is only written by the goroutine calling
// Run/Advance, between batches.
type LogicalProcess struct {
	id         int
	mu         sync.Mutex
	queue      *EventHeap
	clock      int64
	start      int64
	end        int64
	dispatcher Dispatcher

	nextEventID atomic.Uint64
	executed    atomic.Int64
	wavefronts  int64

	// onTimeChange is invoked once per distinct timestamp, before its batch runs.
	onTimeChange func(ts int64)
}

// NewLogicalProcess creates a logical process covering [start, end).
func NewLogicalProcess(id int, start, end int64, dispatcher Dispatcher) *LogicalProcess {
	if end <= start {
		panic(fmt.Sprintf("logical process %d: end %d must be after start %d", id, end, start))
	}
	if dispatcher == nil {
		dispatcher = NewSequentialDispatcher()
	}
	return &LogicalProcess{
		id:         id,
		queue:      NewEventHeap(),
		clock:      start,
		start:      start,
		end:        end,
		dispatcher: dispatcher,
	}
}

// ID returns the logical process identifier.
func (lp *LogicalProcess) ID() int {
	return lp.id
}

// Clock returns the current simulated timestamp.
func (lp *LogicalProcess) Clock() int64 {
	return lp.clock
}

// End returns the configured end of the horizon.
func (lp *LogicalProcess) End() int64 {
	return lp.end
}

// Executed returns the number of events executed so far.
func (lp *LogicalProcess) Executed() int64 {
	return lp.executed.Load()
}

// Wavefronts returns the number of distinct timestamps processed so far.
func (lp *LogicalProcess) Wavefronts() int64 {
	return lp.wavefronts
}

// Pending returns the number of queued events, sentinel included.
func (lp *LogicalProcess) Pending() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.queue.Len()
}

func (lp *LogicalProcess) newBase(ts int64, priority EventPriority) baseEvent {
	return baseEvent{
		timestamp: ts,
		priority:  priority,
		eventID:   lp.nextEventID.Add(1),
	}
}

// ScheduleFunc schedules fn to run at ts and returns the created event.
func (lp *LogicalProcess) ScheduleFunc(ts int64, priority EventPriority, fn func()) Event {
	ev := &FuncEvent{baseEvent: lp.newBase(ts, priority), fn: fn}
	lp.Schedule(ev)
	return ev
}

// Schedule pushes an event into the queue. Safe for concurrent use.
// Scheduling an event before the current clock is a kernel defect and panics.
func (lp *LogicalProcess) Schedule(ev Event) {
	if ev.Timestamp() < lp.clock {
		panic(fmt.Sprintf("logical process %d: event %T scheduled at %d, before clock %d",
			lp.id, ev, ev.Timestamp(), lp.clock))
	}
	lp.mu.Lock()
	lp.queue.Schedule(ev)
	lp.mu.Unlock()
}

// Run schedules the end-of-horizon sentinel and advances until the minimum
// queued timestamp reaches the end of the horizon.
func (lp *LogicalProcess) Run() {
	lp.Schedule(&endEvent{baseEvent: lp.newBase(lp.end, PriorityEnd)})
	logrus.Debugf("[lp %d] running horizon [%d, %d)", lp.id, lp.start, lp.end)
	for lp.Advance() {
	}
	logrus.Debugf("[lp %d] stopped at %d after %d events in %d wavefronts",
		lp.id, lp.clock, lp.Executed(), lp.wavefronts)
}

// Advance processes one wavefront. It returns false when the next event is at
// or beyond the end of the horizon (or the queue is empty).
func (lp *LogicalProcess) Advance() bool {
	lp.mu.Lock()
	next := lp.queue.Peek()
	lp.mu.Unlock()
	if next == nil || next.Timestamp() >= lp.end {
		return false
	}

	ts := next.Timestamp()
	if ts < lp.clock {
		panic(fmt.Sprintf("logical process %d: clock went backwards: %d < %d", lp.id, ts, lp.clock))
	}
	lp.clock = ts
	lp.wavefronts++
	if lp.onTimeChange != nil {
		lp.onTimeChange(ts)
	}

	for {
		lp.mu.Lock()
		batch := lp.queue.PopAt(ts)
		lp.mu.Unlock()
		if len(batch) == 0 {
			break
		}
		logrus.Debugf("[tick %07d] dispatching %d events of class %d", ts, len(batch), batch[0].Priority())
		lp.dispatcher.Dispatch(batch)
		lp.executed.Add(int64(len(batch)))
	}
	return true
}
