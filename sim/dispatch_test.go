package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allDispatchers(t *testing.T, workers int) map[DispatchKind]Dispatcher {
	t.Helper()
	out := make(map[DispatchKind]Dispatcher)
	for _, kind := range []DispatchKind{DispatchSequential, DispatchPool, DispatchBarrier, DispatchBatched} {
		d, err := NewDispatcher(kind, workers)
		require.NoError(t, err)
		out[kind] = d
	}
	return out
}

func TestNewDispatcher_Errors(t *testing.T) {
	_, err := NewDispatcher("warp", 2)
	assert.Error(t, err)
	_, err = NewDispatcher(DispatchPool, 0)
	assert.Error(t, err)
	d, err := NewDispatcher(DispatchSequential, 0)
	require.NoError(t, err)
	assert.IsType(t, &SequentialDispatcher{}, d)
}

func TestIsValidDispatchKind(t *testing.T) {
	for _, k := range []string{"sequential", "pool", "barrier", "batched"} {
		assert.True(t, IsValidDispatchKind(k), k)
	}
	assert.False(t, IsValidDispatchKind("parallel"))
}

// TestDispatchers_ExecuteEveryEventOnce verifies that every strategy joins
// before returning and runs each event exactly once.
func TestDispatchers_ExecuteEveryEventOnce(t *testing.T) {
	for kind, d := range allDispatchers(t, 4) {
		t.Run(string(kind), func(t *testing.T) {
			defer d.Close()
			for round := 0; round < 3; round++ {
				// GIVEN a batch of 100 counting events
				counts := make([]atomic.Int32, 100)
				batch := make([]Event, len(counts))
				for i := range batch {
					i := i
					batch[i] = &FuncEvent{baseEvent: baseEvent{timestamp: 1, eventID: uint64(i)}, fn: func() { counts[i].Add(1) }}
				}

				// WHEN dispatched
				d.Dispatch(batch)

				// THEN all ran exactly once before Dispatch returned
				for i := range counts {
					require.Equal(t, int32(1), counts[i].Load(), "round %d event %d", round, i)
				}
			}
		})
	}
}

func TestDispatchers_PanicReraisedAfterJoin(t *testing.T) {
	for kind, d := range allDispatchers(t, 3) {
		t.Run(string(kind), func(t *testing.T) {
			defer d.Close()
			// GIVEN a batch where one event panics
			var ran atomic.Int32
			batch := make([]Event, 10)
			for i := range batch {
				i := i
				batch[i] = &FuncEvent{fn: func() {
					ran.Add(1)
					if i == 4 {
						panic(fmt.Sprintf("boom %d", i))
					}
				}}
			}

			// THEN the panic reaches the caller
			assert.PanicsWithValue(t, "boom 4", func() { d.Dispatch(batch) })
			if kind != DispatchSequential {
				// AND parallel strategies still ran every event
				assert.Equal(t, int32(10), ran.Load())
			}
		})
	}
}

func TestBatchedDispatcher_RespectsLimit(t *testing.T) {
	// GIVEN a batched dispatcher with two workers and groups of one
	d := NewBatchedDispatcher(2, 1)
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	batch := make([]Event, 20)
	for i := range batch {
		batch[i] = &FuncEvent{fn: func() {
			n := inFlight.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			inFlight.Add(-1)
		}}
	}

	// WHEN dispatched
	d.Dispatch(batch)

	// THEN no more than two groups ran at once
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCyclicBarrier_Reusable(t *testing.T) {
	b := newCyclicBarrier(3)
	var passed atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				b.await()
				passed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(15), passed.Load())
}
