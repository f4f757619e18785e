package sim

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatcher executes one batch of same-timestamp events.
// Dispatch must not return before every event of the batch has finished, so
// that state mutated at instant t is visible before instant t+1 starts.
type Dispatcher interface {
	Dispatch(batch []Event)
	// Close releases any worker goroutines. The dispatcher must not be used afterwards.
	Close()
}

// DispatchKind names a dispatch strategy.
type DispatchKind string

const (
	DispatchSequential DispatchKind = "sequential"
	DispatchPool       DispatchKind = "pool"
	DispatchBarrier    DispatchKind = "barrier"
	DispatchBatched    DispatchKind = "batched"
)

// validDispatchKinds maps accepted dispatch strategy names.
var validDispatchKinds = map[DispatchKind]bool{
	DispatchSequential: true,
	DispatchPool:       true,
	DispatchBarrier:    true,
	DispatchBatched:    true,
	"":                 true, // empty defaults to sequential
}

// IsValidDispatchKind returns true if name is a recognized dispatch strategy.
func IsValidDispatchKind(name string) bool {
	return validDispatchKinds[DispatchKind(name)]
}

// defaultBatchSize is the group size used by BatchedDispatcher when none is given.
const defaultBatchSize = 16

// NewDispatcher creates a dispatcher of the given kind with the given number of workers.
func NewDispatcher(kind DispatchKind, workers int) (Dispatcher, error) {
	if workers < 1 && kind != DispatchSequential && kind != "" {
		return nil, fmt.Errorf("dispatcher %q requires at least one worker, got %d", kind, workers)
	}
	switch kind {
	case DispatchSequential, "":
		return NewSequentialDispatcher(), nil
	case DispatchPool:
		return NewPoolDispatcher(workers), nil
	case DispatchBarrier:
		return NewBarrierDispatcher(workers), nil
	case DispatchBatched:
		return NewBatchedDispatcher(workers, defaultBatchSize), nil
	default:
		return nil, fmt.Errorf("unknown dispatch strategy %q; valid: sequential, pool, barrier, batched", kind)
	}
}

// panicSlot captures the first panic raised by a worker so it can be re-raised
// on the dispatching goroutine once the batch has joined.
type panicSlot struct {
	once sync.Once
	val  any
	set  bool
}

func (p *panicSlot) run(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.once.Do(func() {
				p.val = r
				p.set = true
			})
		}
	}()
	ev.Execute()
}

func (p *panicSlot) rethrow() {
	if p.set {
		panic(p.val)
	}
}

// === SequentialDispatcher ===

// SequentialDispatcher executes the batch in heap order on the calling goroutine.
type SequentialDispatcher struct{}

func NewSequentialDispatcher() *SequentialDispatcher {
	return &SequentialDispatcher{}
}

func (d *SequentialDispatcher) Dispatch(batch []Event) {
	for _, ev := range batch {
		ev.Execute()
	}
}

func (d *SequentialDispatcher) Close() {}

// === PoolDispatcher ===

// PoolDispatcher feeds events to a fixed set of long-lived worker goroutines.
type PoolDispatcher struct {
	jobs chan poolJob
	wg   sync.WaitGroup
}

type poolJob struct {
	ev   Event
	done *sync.WaitGroup
	slot *panicSlot
}

func NewPoolDispatcher(workers int) *PoolDispatcher {
	d := &PoolDispatcher{jobs: make(chan poolJob, workers)}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *PoolDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		job.slot.run(job.ev)
		job.done.Done()
	}
}

func (d *PoolDispatcher) Dispatch(batch []Event) {
	var done sync.WaitGroup
	slot := &panicSlot{}
	done.Add(len(batch))
	for _, ev := range batch {
		d.jobs <- poolJob{ev: ev, done: &done, slot: slot}
	}
	done.Wait()
	slot.rethrow()
}

func (d *PoolDispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}

// === BarrierDispatcher ===

// BarrierDispatcher runs the three-phase scheme: workers wait on a start
// barrier, each executes its stripe of the batch, and all meet again on an end
// barrier. The third phase, draining same-instant events scheduled by the
// batch, is performed by the logical process between Dispatch calls.
type BarrierDispatcher struct {
	workers int
	barrier *cyclicBarrier
	batch   []Event
	slot    *panicSlot
	closed  bool
	wg      sync.WaitGroup
}

func NewBarrierDispatcher(workers int) *BarrierDispatcher {
	d := &BarrierDispatcher{
		workers: workers,
		barrier: newCyclicBarrier(workers + 1),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker(i)
	}
	return d
}

func (d *BarrierDispatcher) worker(idx int) {
	defer d.wg.Done()
	for {
		d.barrier.await()
		if d.closed {
			return
		}
		for i := idx; i < len(d.batch); i += d.workers {
			d.slot.run(d.batch[i])
		}
		d.barrier.await()
	}
}

func (d *BarrierDispatcher) Dispatch(batch []Event) {
	d.batch = batch
	d.slot = &panicSlot{}
	d.barrier.await()
	d.barrier.await()
	d.batch = nil
	d.slot.rethrow()
}

func (d *BarrierDispatcher) Close() {
	d.closed = true
	d.barrier.await()
	d.wg.Wait()
}

// === BatchedDispatcher ===

// BatchedDispatcher splits the batch into fixed-size groups; each group runs
// sequentially on its own goroutine, with at most workers groups in flight.
type BatchedDispatcher struct {
	workers   int
	groupSize int
}

func NewBatchedDispatcher(workers, groupSize int) *BatchedDispatcher {
	if groupSize < 1 {
		groupSize = defaultBatchSize
	}
	return &BatchedDispatcher{workers: workers, groupSize: groupSize}
}

func (d *BatchedDispatcher) Dispatch(batch []Event) {
	var g errgroup.Group
	g.SetLimit(d.workers)
	slot := &panicSlot{}
	for start := 0; start < len(batch); start += d.groupSize {
		group := batch[start:min(start+d.groupSize, len(batch))]
		g.Go(func() error {
			for _, ev := range group {
				slot.run(ev)
			}
			return nil
		})
	}
	_ = g.Wait()
	slot.rethrow()
}

func (d *BatchedDispatcher) Close() {}
