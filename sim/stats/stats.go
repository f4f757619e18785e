// Package stats collects run statistics from kernel notifications.
package stats

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/resflow/resflow-sim/sim"
)

// timeWeighted integrates a piecewise-constant level over time.
type timeWeighted struct {
	start int64
	last  int64
	level float64
	area  float64
	max   float64
}

func (tw *timeWeighted) set(ts int64, level float64) {
	tw.area += tw.level * float64(ts-tw.last)
	tw.last = ts
	tw.level = level
	if level > tw.max {
		tw.max = level
	}
}

func (tw *timeWeighted) add(ts int64, delta float64) {
	tw.set(ts, tw.level+delta)
}

// mean returns the time average over [start, end).
func (tw *timeWeighted) mean(end int64) float64 {
	span := end - tw.start
	if span <= 0 {
		return 0
	}
	area := tw.area + tw.level*float64(end-tw.last)
	return area / float64(span)
}

// ActivityStats summarizes one activity.
type ActivityStats struct {
	Requests   int
	Starts     int
	Interrupts int
	Ends       int
	// waits holds the time from request (or interruption) to start (or resume).
	waits []float64
	queue timeWeighted
}

// ResourceTypeStats summarizes one resource type.
type ResourceTypeStats struct {
	available timeWeighted
	busy      timeWeighted
}

type waitKey struct {
	element  int64
	activity string
}

// Collector is a sim.Listener accumulating statistics. Notifications are
// serialized by the kernel, so the collector needs no locking while a run is
// in progress; read it after Run returns.
type Collector struct {
	start, end int64
	events     int64

	activities    map[string]*ActivityStats
	resourceTypes map[string]*ResourceTypeStats
	waiting       map[waitKey]int64

	elementStart     map[int64]int64
	elementsStarted  int
	elementsFinished int
	timeInSystem     []float64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		activities:    make(map[string]*ActivityStats),
		resourceTypes: make(map[string]*ResourceTypeStats),
		waiting:       make(map[waitKey]int64),
		elementStart:  make(map[int64]int64),
	}
}

func (c *Collector) activity(id string) *ActivityStats {
	a, ok := c.activities[id]
	if !ok {
		a = &ActivityStats{queue: timeWeighted{start: c.start, last: c.start}}
		c.activities[id] = a
	}
	return a
}

func (c *Collector) resourceType(id string) *ResourceTypeStats {
	rt, ok := c.resourceTypes[id]
	if !ok {
		rt = &ResourceTypeStats{
			available: timeWeighted{start: c.start, last: c.start},
			busy:      timeWeighted{start: c.start, last: c.start},
		}
		c.resourceTypes[id] = rt
	}
	return rt
}

// Notify implements sim.Listener.
func (c *Collector) Notify(info sim.Info) {
	switch i := info.(type) {
	case sim.SimulationInfo:
		if i.Type == sim.SimulationStart {
			c.start = i.Clock
		} else {
			c.end = i.Clock
			c.events = i.Events
		}
	case sim.ElementInfo:
		c.onElement(i)
	case sim.ActivityInfo:
		c.onActivity(i)
	case sim.ResourceInfo:
		rt := c.resourceType(i.ResourceType)
		if i.Type == sim.ResourceRollOn {
			rt.available.add(i.Clock, 1)
		} else {
			rt.available.add(i.Clock, -1)
		}
	case sim.ResourceUsageInfo:
		rt := c.resourceType(i.ResourceType)
		if i.Type == sim.ResourceCaught {
			rt.busy.add(i.Clock, 1)
		} else {
			rt.busy.add(i.Clock, -1)
		}
	}
}

func (c *Collector) onElement(i sim.ElementInfo) {
	if i.Type == sim.ElementStart {
		c.elementsStarted++
		c.elementStart[i.ElementID] = i.Clock
		return
	}
	c.elementsFinished++
	if ts, ok := c.elementStart[i.ElementID]; ok {
		c.timeInSystem = append(c.timeInSystem, float64(i.Clock-ts))
		delete(c.elementStart, i.ElementID)
	}
	for k := range c.waiting {
		if k.element == i.ElementID {
			c.activity(k.activity).queue.add(i.Clock, -1)
			delete(c.waiting, k)
		}
	}
}

func (c *Collector) onActivity(i sim.ActivityInfo) {
	a := c.activity(i.Activity)
	key := waitKey{element: i.ElementID, activity: i.Activity}
	switch i.Type {
	case sim.ActivityRequest, sim.ActivityInterrupt:
		if i.Type == sim.ActivityRequest {
			a.Requests++
		} else {
			a.Interrupts++
		}
		if _, ok := c.waiting[key]; !ok {
			c.waiting[key] = i.Clock
			a.queue.add(i.Clock, 1)
		}
	case sim.ActivityStart, sim.ActivityResume:
		if i.Type == sim.ActivityStart {
			a.Starts++
		}
		if since, ok := c.waiting[key]; ok {
			a.waits = append(a.waits, float64(i.Clock-since))
			a.queue.add(i.Clock, -1)
			delete(c.waiting, key)
		}
	case sim.ActivityEnd:
		a.Ends++
	}
}

// Summary is the computed view of one activity.
type Summary struct {
	Activity     string
	Requests     int
	Starts       int
	Interrupts   int
	Ends         int
	MeanWait     float64
	P95Wait      float64
	MeanQueue    float64
	MaxQueue     float64
	PendingAtEnd float64
}

// Activities returns one summary per activity, sorted by id.
func (c *Collector) Activities() []Summary {
	ids := make([]string, 0, len(c.activities))
	for id := range c.activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		a := c.activities[id]
		s := Summary{
			Activity:     id,
			Requests:     a.Requests,
			Starts:       a.Starts,
			Interrupts:   a.Interrupts,
			Ends:         a.Ends,
			MeanQueue:    a.queue.mean(c.end),
			MaxQueue:     a.queue.max,
			PendingAtEnd: a.queue.level,
		}
		if len(a.waits) > 0 {
			waits := append([]float64(nil), a.waits...)
			sort.Float64s(waits)
			s.MeanWait = stat.Mean(waits, nil)
			s.P95Wait = stat.Quantile(0.95, stat.Empirical, waits, nil)
		}
		out = append(out, s)
	}
	return out
}

// Utilization returns busy time over available time for a resource type.
// Zero when the type was never available.
func (c *Collector) Utilization(resourceType string) float64 {
	rt, ok := c.resourceTypes[resourceType]
	if !ok {
		return 0
	}
	avail := rt.available.mean(c.end)
	if avail <= 0 {
		return 0
	}
	return rt.busy.mean(c.end) / avail
}

// ResourceTypes returns the ids of every resource type seen, sorted.
func (c *Collector) ResourceTypes() []string {
	ids := make([]string, 0, len(c.resourceTypes))
	for id := range c.resourceTypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ElementsStarted returns the number of elements created.
func (c *Collector) ElementsStarted() int { return c.elementsStarted }

// ElementsFinished returns the number of elements that completed their flow.
func (c *Collector) ElementsFinished() int { return c.elementsFinished }

// MeanTimeInSystem returns the average lifetime of finished elements.
func (c *Collector) MeanTimeInSystem() float64 {
	if len(c.timeInSystem) == 0 {
		return 0
	}
	return stat.Mean(c.timeInSystem, nil)
}

// Print writes the summary to stdout.
func (c *Collector) Print() {
	c.Fprint(os.Stdout)
}

// Fprint writes the summary to w.
func (c *Collector) Fprint(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Statistics ===")
	fmt.Fprintf(w, "Horizon              : [%d, %d)\n", c.start, c.end)
	fmt.Fprintf(w, "Events Executed      : %d\n", c.events)
	fmt.Fprintf(w, "Elements Started     : %d\n", c.elementsStarted)
	fmt.Fprintf(w, "Elements Finished    : %d\n", c.elementsFinished)
	if c.elementsFinished > 0 {
		fmt.Fprintf(w, "Mean Time In System  : %.2f ticks\n", c.MeanTimeInSystem())
	}
	for _, s := range c.Activities() {
		fmt.Fprintf(w, "--- Activity %s ---\n", s.Activity)
		fmt.Fprintf(w, "  Requests / Starts / Ends : %d / %d / %d\n", s.Requests, s.Starts, s.Ends)
		if s.Interrupts > 0 {
			fmt.Fprintf(w, "  Interruptions           : %d\n", s.Interrupts)
		}
		fmt.Fprintf(w, "  Mean Wait               : %.2f ticks (p95 %.2f)\n", s.MeanWait, s.P95Wait)
		fmt.Fprintf(w, "  Queue Length            : mean %.2f, max %.0f, at end %.0f\n", s.MeanQueue, s.MaxQueue, s.PendingAtEnd)
	}
	for _, id := range c.ResourceTypes() {
		fmt.Fprintf(w, "Utilization %-9s: %.1f%%\n", id, 100*c.Utilization(id))
	}
}
