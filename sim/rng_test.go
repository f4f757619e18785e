package sim

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// GIVEN two partitioned RNGs with the same key
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN the same manager stream is drawn from both
	// THEN the sequences are identical
	for i := 0; i < 5; i++ {
		assert.Equal(t, rng1.ForSubsystem(SubsystemManager(0)).Float64(), rng2.ForSubsystem(SubsystemManager(0)).Float64())
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN a partitioned RNG where one generator stream is heavily used
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemGenerator(0)).Float64()
	}

	// WHEN the first manager draw is taken
	got := rngA.ForSubsystem(SubsystemManager(0)).Float64()

	// THEN it equals the first manager draw of a fresh RNG
	fresh := NewPartitionedRNG(NewSimulationKey(42))
	assert.Equal(t, fresh.ForSubsystem(SubsystemManager(0)).Float64(), got, "isolation broken")
}

func TestPartitionedRNG_ModelUsesMasterSeed(t *testing.T) {
	seed := int64(42)
	rng := NewPartitionedRNG(NewSimulationKey(seed))
	modelRNG := rng.ForSubsystem(SubsystemModel)
	direct := rand.New(rand.NewSource(seed))
	for i := 0; i < 10; i++ {
		assert.Equal(t, direct.Float64(), modelRNG.Float64(), "value %d", i)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	assert.Same(t, rng.ForSubsystem(SubsystemResource(3)), rng.ForSubsystem(SubsystemResource(3)))
}

func TestPartitionedRNG_Detached_NotCachedButReproducible(t *testing.T) {
	// GIVEN detached element streams
	rng := NewPartitionedRNG(NewSimulationKey(7))
	a := rng.Detached(SubsystemElement(1))
	b := rng.Detached(SubsystemElement(1))

	// THEN they are distinct instances with the same sequence
	assert.NotSame(t, a, b)
	assert.Equal(t, a.Float64(), b.Float64())
	assert.Empty(t, rng.streams)
	// AND different elements get different streams
	assert.NotEqual(t, rng.Detached(SubsystemElement(1)).Int63(), rng.Detached(SubsystemElement(2)).Int63())
}

func TestPartitionedRNG_Key(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(12345))
	assert.Equal(t, SimulationKey(12345), rng.Key())
}

func TestPartitionedRNG_ConcurrentForSubsystem(t *testing.T) {
	// GIVEN many goroutines asking for the same subsystem
	rng := NewPartitionedRNG(NewSimulationKey(1))
	var wg sync.WaitGroup
	got := make([]*rand.Rand, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = rng.ForSubsystem(SubsystemManager(1))
		}(i)
	}
	wg.Wait()

	// THEN they all share one instance
	for _, r := range got {
		assert.Same(t, got[0], r)
	}
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	assert.Empty(t, rng.streams)
	rng.ForSubsystem(SubsystemGenerator(0))
	assert.Len(t, rng.streams, 1)
}

// === fnv1a64 Tests ===

func TestFnv1a64_Deterministic(t *testing.T) {
	input := "test_subsystem"
	assert.Equal(t, fnv1a64(input), fnv1a64(input))
}

func TestFnv1a64_Collision(t *testing.T) {
	// Different subsystem names should produce different hashes (spot check)
	names := []string{
		SubsystemModel,
		SubsystemManager(0),
		SubsystemManager(1),
		SubsystemGenerator(0),
		SubsystemResource(0),
		SubsystemElement(0),
		SubsystemElement(100),
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

// === Subsystem name Tests ===

func TestSubsystemNames(t *testing.T) {
	assert.Equal(t, "manager_2", SubsystemManager(2))
	assert.Equal(t, "generator_0", SubsystemGenerator(0))
	assert.Equal(t, "resource_17", SubsystemResource(17))
	assert.Equal(t, "element_-1", SubsystemElement(-1))
}

// === Benchmark ===

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemManager(0))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemManager(0))
	}
}
