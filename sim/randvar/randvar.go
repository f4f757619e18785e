// Package randvar builds sim.TimeFunction values from distribution specs.
// Parametric distributions are sampled through their inverse CDF fed by the
// simulation's seeded stream, so every draw stays reproducible.
package randvar

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/resflow/resflow-sim/sim"
)

// DistSpec parameterizes a time function.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// quantiler is the part of a gonum distribution used for sampling.
type quantiler interface {
	Quantile(p float64) float64
}

// Quantile samples a distribution by inverse transform on the caller's stream.
// Min and Max clamp the draw when Max > Min.
type Quantile struct {
	Name     string
	Dist     quantiler
	Min, Max float64
}

func (q *Quantile) Sample(_ int64, rng *rand.Rand) float64 {
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	v := q.Dist.Quantile(u)
	if q.Max > q.Min {
		v = math.Min(q.Max, math.Max(q.Min, v))
	}
	return v
}

func (q *Quantile) String() string {
	return q.Name
}

// Empirical samples from a discrete empirical distribution by binary search
// over its CDF.
type Empirical struct {
	values []float64
	cdf    []float64
}

// NewEmpirical creates an empirical distribution from value → weight pairs.
// Weights are normalized; non-positive weights are dropped.
func NewEmpirical(pdf map[float64]float64) (*Empirical, error) {
	keys := make([]float64, 0, len(pdf))
	total := 0.0
	for k, w := range pdf {
		if w > 0 {
			keys = append(keys, k)
			total += w
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("empirical distribution has no positive weights")
	}
	sort.Float64s(keys)
	e := &Empirical{values: keys, cdf: make([]float64, len(keys))}
	cumulative := 0.0
	for i, k := range keys {
		cumulative += pdf[k] / total
		e.cdf[i] = cumulative
	}
	e.cdf[len(e.cdf)-1] = 1.0
	return e, nil
}

func (e *Empirical) Sample(_ int64, rng *rand.Rand) float64 {
	if len(e.values) == 1 {
		return e.values[0]
	}
	idx := sort.SearchFloat64s(e.cdf, rng.Float64())
	if idx >= len(e.values) {
		idx = len(e.values) - 1
	}
	return e.values[idx]
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("parameter %q must be positive and finite, got %v", name, v)
	}
	return nil
}

// New creates a sim.TimeFunction from a DistSpec.
func New(spec DistSpec) (sim.TimeFunction, error) {
	p := spec.Params
	switch spec.Type {
	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return sim.ConstantTime(p["value"]), nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["max"] < p["min"] {
			return nil, fmt.Errorf("uniform max %v below min %v", p["max"], p["min"])
		}
		if p["max"] == p["min"] {
			return sim.ConstantTime(p["min"]), nil
		}
		return &Quantile{Name: spec.Type, Dist: distuv.Uniform{Min: p["min"], Max: p["max"]}}, nil

	case "exponential":
		if err := requireParam(p, "mean"); err != nil {
			return nil, err
		}
		if err := positive("mean", p["mean"]); err != nil {
			return nil, err
		}
		return &Quantile{Name: spec.Type, Dist: distuv.Exponential{Rate: 1 / p["mean"]}}, nil

	case "normal":
		if err := requireParam(p, "mean", "std_dev"); err != nil {
			return nil, err
		}
		if err := positive("std_dev", p["std_dev"]); err != nil {
			return nil, err
		}
		return &Quantile{
			Name: spec.Type,
			Dist: distuv.Normal{Mu: p["mean"], Sigma: p["std_dev"]},
			Min:  p["min"],
			Max:  p["max"],
		}, nil

	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if err := positive("sigma", p["sigma"]); err != nil {
			return nil, err
		}
		return &Quantile{Name: spec.Type, Dist: distuv.LogNormal{Mu: p["mu"], Sigma: p["sigma"]}}, nil

	case "triangular":
		if err := requireParam(p, "min", "mode", "max"); err != nil {
			return nil, err
		}
		if !(p["min"] < p["max"]) || p["mode"] < p["min"] || p["mode"] > p["max"] {
			return nil, fmt.Errorf("triangular needs min <= mode <= max and min < max, got %v/%v/%v", p["min"], p["mode"], p["max"])
		}
		return &Quantile{Name: spec.Type, Dist: distuv.NewTriangle(p["min"], p["max"], p["mode"], nil)}, nil

	case "weibull":
		if err := requireParam(p, "shape", "scale"); err != nil {
			return nil, err
		}
		if err := positive("shape", p["shape"]); err != nil {
			return nil, err
		}
		if err := positive("scale", p["scale"]); err != nil {
			return nil, err
		}
		return &Quantile{Name: spec.Type, Dist: distuv.Weibull{K: p["shape"], Lambda: p["scale"]}}, nil

	case "empirical":
		if len(p) == 0 {
			return nil, fmt.Errorf("empirical distribution requires inline params")
		}
		pdf := make(map[float64]float64, len(p))
		for k, w := range p {
			v, err := strconv.ParseFloat(k, 64)
			if err != nil {
				return nil, fmt.Errorf("empirical PDF key %q is not a number: %w", k, err)
			}
			pdf[v] = w
		}
		return NewEmpirical(pdf)

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}

// MustNew is New for statically known specs; it panics on error.
func MustNew(spec DistSpec) sim.TimeFunction {
	tf, err := New(spec)
	if err != nil {
		panic(err)
	}
	return tf
}
