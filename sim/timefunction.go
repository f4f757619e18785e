package sim

import (
	"math"
	"math/rand"
)

// TimeFunction produces durations, inter-arrival times and counts.
// Implementations must draw randomness only from rng so runs stay reproducible.
type TimeFunction interface {
	Sample(now int64, rng *rand.Rand) float64
}

// ConstantTime always returns the same value.
type ConstantTime float64

func (c ConstantTime) Sample(_ int64, _ *rand.Rand) float64 {
	return float64(c)
}

// TimeFunc adapts an ordinary function to TimeFunction.
type TimeFunc func(now int64, rng *rand.Rand) float64

func (f TimeFunc) Sample(now int64, rng *rand.Rand) float64 {
	return f(now, rng)
}

// sampleTicks samples tf and rounds the result to a non-negative tick count.
func sampleTicks(tf TimeFunction, now int64, rng *rand.Rand) int64 {
	if tf == nil {
		return 0
	}
	v := tf.Sample(now, rng)
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if math.IsInf(v, 1) || v >= math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(math.Round(v))
}
