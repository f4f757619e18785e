package sim

import (
	"fmt"
	"sync"
)

// Info is a structured kernel notification delivered to listeners.
type Info interface {
	Timestamp() int64
	String() string
}

// Listener observes the kernel. Notify is called synchronously while the
// kernel processes an instant; calls are serialized across workers.
// Listeners must not call back into the simulation.
type Listener interface {
	Notify(info Info)
}

// ListenerFunc adapts an ordinary function to Listener.
type ListenerFunc func(info Info)

func (f ListenerFunc) Notify(info Info) {
	f(info)
}

// === Simulation ===

type SimulationInfoType int

const (
	SimulationStart SimulationInfoType = iota
	SimulationEnd
)

func (t SimulationInfoType) String() string {
	switch t {
	case SimulationStart:
		return "START"
	case SimulationEnd:
		return "END"
	default:
		return fmt.Sprintf("SimulationInfoType(%d)", int(t))
	}
}

// SimulationInfo marks the boundaries of a run.
type SimulationInfo struct {
	Type   SimulationInfoType
	Clock  int64
	Events int64 // events executed; only set on SimulationEnd
}

func (i SimulationInfo) Timestamp() int64 { return i.Clock }

func (i SimulationInfo) String() string {
	return fmt.Sprintf("[%d] SIM %s events=%d", i.Clock, i.Type, i.Events)
}

// TimeChangeInfo is emitted once per distinct timestamp before its events run.
type TimeChangeInfo struct {
	Clock int64
}

func (i TimeChangeInfo) Timestamp() int64 { return i.Clock }

func (i TimeChangeInfo) String() string {
	return fmt.Sprintf("[%d] TIME", i.Clock)
}

// === Element ===

type ElementInfoType int

const (
	ElementStart ElementInfoType = iota
	ElementFinish
)

func (t ElementInfoType) String() string {
	switch t {
	case ElementStart:
		return "START"
	case ElementFinish:
		return "FINISH"
	default:
		return fmt.Sprintf("ElementInfoType(%d)", int(t))
	}
}

type ElementInfo struct {
	Type        ElementInfoType
	Clock       int64
	ElementID   int64
	ElementType string
}

func (i ElementInfo) Timestamp() int64 { return i.Clock }

func (i ElementInfo) String() string {
	return fmt.Sprintf("[%d] E%d(%s) %s", i.Clock, i.ElementID, i.ElementType, i.Type)
}

// === Activity ===

type ActivityInfoType int

const (
	ActivityRequest ActivityInfoType = iota
	ActivityStart
	ActivityResume
	ActivityInterrupt
	ActivityEnd
)

func (t ActivityInfoType) String() string {
	switch t {
	case ActivityRequest:
		return "REQUEST"
	case ActivityStart:
		return "START"
	case ActivityResume:
		return "RESUME"
	case ActivityInterrupt:
		return "INTERRUPT"
	case ActivityEnd:
		return "END"
	default:
		return fmt.Sprintf("ActivityInfoType(%d)", int(t))
	}
}

type ActivityInfo struct {
	Type      ActivityInfoType
	Clock     int64
	ElementID int64
	Activity  string
	WorkGroup string // empty for requests
	Manager   int
}

func (i ActivityInfo) Timestamp() int64 { return i.Clock }

func (i ActivityInfo) String() string {
	if i.WorkGroup == "" {
		return fmt.Sprintf("[%d] E%d %s %s", i.Clock, i.ElementID, i.Type, i.Activity)
	}
	return fmt.Sprintf("[%d] E%d %s %s/%s", i.Clock, i.ElementID, i.Type, i.Activity, i.WorkGroup)
}

// === Resource ===

type ResourceInfoType int

const (
	ResourceRollOn ResourceInfoType = iota
	ResourceRollOff
)

func (t ResourceInfoType) String() string {
	switch t {
	case ResourceRollOn:
		return "ROLL_ON"
	case ResourceRollOff:
		return "ROLL_OFF"
	default:
		return fmt.Sprintf("ResourceInfoType(%d)", int(t))
	}
}

type ResourceInfo struct {
	Type         ResourceInfoType
	Clock        int64
	Resource     string
	ResourceType string
}

func (i ResourceInfo) Timestamp() int64 { return i.Clock }

func (i ResourceInfo) String() string {
	return fmt.Sprintf("[%d] R %s %s as %s", i.Clock, i.Type, i.Resource, i.ResourceType)
}

type ResourceUsageInfoType int

const (
	ResourceCaught ResourceUsageInfoType = iota
	ResourceReleased
)

func (t ResourceUsageInfoType) String() string {
	switch t {
	case ResourceCaught:
		return "CAUGHT"
	case ResourceReleased:
		return "RELEASED"
	default:
		return fmt.Sprintf("ResourceUsageInfoType(%d)", int(t))
	}
}

type ResourceUsageInfo struct {
	Type         ResourceUsageInfoType
	Clock        int64
	Resource     string
	ResourceType string
	ElementID    int64
	Activity     string
}

func (i ResourceUsageInfo) Timestamp() int64 { return i.Clock }

func (i ResourceUsageInfo) String() string {
	return fmt.Sprintf("[%d] E%d %s %s as %s for %s",
		i.Clock, i.ElementID, i.Type, i.Resource, i.ResourceType, i.Activity)
}

// notifier fans infos out to listeners one at a time.
type notifier struct {
	mu        sync.Mutex
	listeners []Listener
}

func (n *notifier) add(l Listener) {
	n.listeners = append(n.listeners, l)
}

func (n *notifier) notify(info Info) {
	if len(n.listeners) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, l := range n.listeners {
		l.Notify(info)
	}
}
