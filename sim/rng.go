package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// SimulationKey is the seed of a run.
// Two sequentially dispatched runs with the same SimulationKey and an identical
// model MUST produce identical listener output.
type SimulationKey int64

// NewSimulationKey wraps a seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

const (
	// SubsystemModel is the RNG subsystem used while building and validating a model.
	// Uses the master seed directly.
	SubsystemModel = "model"
)

// SubsystemManager returns the subsystem name for activity manager N.
// Transition draws, duration samples and wake-up shuffles of that manager use it.
func SubsystemManager(id int) string {
	return fmt.Sprintf("manager_%d", id)
}

// SubsystemGenerator returns the subsystem name for generator N.
func SubsystemGenerator(id int) string {
	return fmt.Sprintf("generator_%d", id)
}

// SubsystemResource returns the subsystem name for the timetable of resource N.
func SubsystemResource(id int) string {
	return fmt.Sprintf("resource_%d", id)
}

// SubsystemElement returns the subsystem name for element N.
func SubsystemElement(id int64) string {
	return fmt.Sprintf("element_%d", id)
}

// PartitionedRNG hands out one seeded stream per named subsystem, so draws in
// one manager never shift the sequence seen by another. SubsystemModel is
// seeded with the key itself; any other name with key ^ fnv1a64(name).
//
// ForSubsystem is safe for concurrent use. The returned *rand.Rand is not:
// each stream must only be drawn from by its owner (a manager under its lock,
// a generator, or an element under its lock).
type PartitionedRNG struct {
	key     SimulationKey
	mu      sync.Mutex
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns an empty stream table for key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.streams[name]
	if !ok {
		r = p.Detached(name)
		p.streams[name] = r
	}
	return r
}

// Detached returns a fresh RNG for the named subsystem without caching it.
// Elements use it so their streams are released together with the element.
func (p *PartitionedRNG) Detached(name string) *rand.Rand {
	return rand.New(rand.NewSource(p.deriveSeed(name)))
}

// Key returns the run seed.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func (p *PartitionedRNG) deriveSeed(name string) int64 {
	if name == SubsystemModel {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
