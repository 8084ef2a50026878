/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcfg

import (
	"math"
	"math/rand"

	jsoniter "github.com/json-iterator/go"
)

// ValueGenerator is a polymorphic numeric sampler: fixed, normal,
// exponential, Poisson, Weibull, or geometric, with optional min/max
// limiters (spec.md §2, §6).
type ValueGenerator struct {
	sample func(rng *rand.Rand) float64
	min    *Limiter
	max    *Limiter
}

// Sample draws one value from the generator, applying limiters in order
// (min then max), using rng as the source of randomness (the simulation's
// single seeded RNG, so a run is reproducible end to end).
func (g *ValueGenerator) Sample(rng *rand.Rand) float64 {
	v := g.sample(rng)
	if g.min != nil {
		v = g.min.Apply(v)
	}
	if g.max != nil {
		v = g.max.Apply(v)
	}
	return v
}

// Limiter clamps or folds a sampled value. Kinds: minAdd, minClip, maxModulo,
// maxClip, each with a numeric Limit and an optional Invert flag.
type Limiter struct {
	Kind   string
	Limit  float64
	Invert bool
}

func (l *Limiter) Apply(v float64) float64 {
	switch l.Kind {
	case "minAdd":
		if v < l.Limit {
			v += l.Limit
		}
	case "minClip":
		if v < l.Limit {
			v = l.Limit
		}
	case "maxModulo":
		if l.Limit > 0 && v > l.Limit {
			v = math.Mod(v, l.Limit)
		}
	case "maxClip":
		if v > l.Limit {
			v = l.Limit
		}
	}
	if l.Invert {
		v = -v
	}
	return v
}

// limiterCfg is the JSON shape of a Limiter.
type limiterCfg struct {
	Type   string  `json:"type"`
	Limit  float64 `json:"limit"`
	Invert bool    `json:"invert"`
}

func (c *limiterCfg) build() (*Limiter, error) {
	if c == nil {
		return nil, nil
	}
	switch c.Type {
	case "minAdd", "minClip", "maxModulo", "maxClip":
	default:
		return nil, Errorf("limiter", "unknown limiter type %q", c.Type)
	}
	return &Limiter{Kind: c.Type, Limit: c.Limit, Invert: c.Invert}, nil
}

// valueGeneratorCfg is the inline JSON shape described in spec.md §6:
// {"type": "...", ...params..., "minCfg"?: ..., "maxCfg"?: ...}
type valueGeneratorCfg struct {
	Type string `json:"type"`

	// fixed
	Value float64 `json:"value"`

	// normal
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`

	// exponential
	Lambda float64 `json:"lambda"`

	// poisson
	Rate float64 `json:"rate"`

	// weibull
	Shape float64 `json:"shape"`
	Scale float64 `json:"scale"`

	// geometric
	P float64 `json:"p"`

	MinCfg *limiterCfg `json:"minCfg"`
	MaxCfg *limiterCfg `json:"maxCfg"`
}

// UnmarshalValueGenerator decodes one ValueGenerator from JSON, matching the
// teacher's jsoniter-based config decoding convention.
func UnmarshalValueGenerator(raw []byte) (*ValueGenerator, error) {
	var cfg valueGeneratorCfg
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return nil, NewConfigError("valueGenerator", err)
	}
	return cfg.build()
}

func (c *valueGeneratorCfg) build() (*ValueGenerator, error) {
	g := &ValueGenerator{}
	switch c.Type {
	case "fixed":
		val := c.Value
		g.sample = func(*rand.Rand) float64 { return val }
	case "normal":
		mean, std := c.Mean, c.StdDev
		g.sample = func(rng *rand.Rand) float64 { return rng.NormFloat64()*std + mean }
	case "exponential":
		lambda := c.Lambda
		if lambda <= 0 {
			return nil, Errorf("valueGenerator", "exponential: lambda must be > 0")
		}
		g.sample = func(rng *rand.Rand) float64 { return rng.ExpFloat64() / lambda }
	case "poisson":
		rate := c.Rate
		if rate <= 0 {
			return nil, Errorf("valueGenerator", "poisson: rate must be > 0")
		}
		g.sample = func(rng *rand.Rand) float64 { return float64(samplePoisson(rng, rate)) }
	case "weibull":
		shape, scale := c.Shape, c.Scale
		if shape <= 0 || scale <= 0 {
			return nil, Errorf("valueGenerator", "weibull: shape and scale must be > 0")
		}
		g.sample = func(rng *rand.Rand) float64 {
			u := rng.Float64()
			for u == 0 {
				u = rng.Float64()
			}
			return scale * math.Pow(-math.Log(u), 1/shape)
		}
	case "geometric":
		p := c.P
		if p <= 0 || p > 1 {
			return nil, Errorf("valueGenerator", "geometric: p must be in (0,1]")
		}
		g.sample = func(rng *rand.Rand) float64 {
			u := rng.Float64()
			for u == 0 {
				u = rng.Float64()
			}
			return math.Floor(math.Log(1-u) / math.Log(1-p))
		}
	default:
		return nil, Errorf("valueGenerator", "unknown generator type %q", c.Type)
	}

	var err error
	if g.min, err = c.MinCfg.build(); err != nil {
		return nil, err
	}
	if g.max, err = c.MaxCfg.build(); err != nil {
		return nil, err
	}
	return g, nil
}

// samplePoisson uses Knuth's algorithm; adequate for the simulator's
// per-tick sampling rates (small lambda, called often rather than needing
// to be fast for huge lambda).
func samplePoisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= rng.Float64()
		if p <= l {
			return k - 1
		}
	}
}

// Fixed constructs a constant-value ValueGenerator without going through
// JSON, for tests and programmatic configuration.
func Fixed(v float64) *ValueGenerator {
	return &ValueGenerator{sample: func(*rand.Rand) float64 { return v }}
}
