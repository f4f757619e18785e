package sim

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks), a same-instant Priority and a
// run-unique EventID, and an Execute method that advances simulation state.
type Event interface {
	Timestamp() int64
	Priority() EventPriority
	EventID() uint64
	Execute()
}

// EventPriority orders events that share a timestamp.
// Lower values are processed first.
type EventPriority int

const (
	// PriorityRollOff runs first so that resources leaving at t are gone
	// before anything else at t observes them.
	PriorityRollOff EventPriority = iota
	// PriorityFinish releases resources held by completed activities.
	PriorityFinish
	// PriorityRollOn makes resources available.
	PriorityRollOn
	// PriorityAvailable re-checks queued requests of a freed element.
	PriorityAvailable
	// PriorityGenerator creates new elements.
	PriorityGenerator
	// PriorityRequest starts or resumes element flow traversal.
	PriorityRequest
	// PriorityEnd is reserved for the end-of-horizon sentinel.
	PriorityEnd
)

// baseEvent provides common event fields.
type baseEvent struct {
	timestamp int64
	priority  EventPriority
	eventID   uint64
}

func (e *baseEvent) Timestamp() int64 {
	return e.timestamp
}

func (e *baseEvent) Priority() EventPriority {
	return e.priority
}

func (e *baseEvent) EventID() uint64 {
	return e.eventID
}

// FuncEvent runs an arbitrary callback at its timestamp.
// The kernel uses it for element starts; external collaborators may use it
// to inject work at a given instant.
type FuncEvent struct {
	baseEvent
	fn func()
}

// Execute invokes the callback.
func (e *FuncEvent) Execute() {
	e.fn()
}

// endEvent is the end-of-horizon sentinel. It never executes: the logical
// process stops as soon as it is the minimum of the queue.
type endEvent struct {
	baseEvent
}

func (e *endEvent) Execute() {
	panic("end-of-horizon sentinel must never execute")
}
