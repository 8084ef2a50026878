/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcfg

import (
	"math"
	"math/rand"
	"testing"
)

func TestUnmarshalValueGeneratorFixed(t *testing.T) {
	g, err := UnmarshalValueGenerator([]byte(`{"type":"fixed","value":42}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		if v := g.Sample(rng); v != 42 {
			t.Fatalf("expected constant 42, got %v", v)
		}
	}
}

func TestUnmarshalValueGeneratorUnknownType(t *testing.T) {
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown generator type")
	}
}

func TestValueGeneratorExponentialRejectsNonPositiveLambda(t *testing.T) {
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"exponential","lambda":0}`)); err == nil {
		t.Fatalf("expected error for lambda <= 0")
	}
}

func TestValueGeneratorWeibullRejectsBadParams(t *testing.T) {
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"weibull","shape":0,"scale":1}`)); err == nil {
		t.Fatalf("expected error for shape <= 0")
	}
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"weibull","shape":1,"scale":0}`)); err == nil {
		t.Fatalf("expected error for scale <= 0")
	}
}

func TestValueGeneratorGeometricRejectsBadP(t *testing.T) {
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"geometric","p":0}`)); err == nil {
		t.Fatalf("expected error for p <= 0")
	}
	if _, err := UnmarshalValueGenerator([]byte(`{"type":"geometric","p":1.5}`)); err == nil {
		t.Fatalf("expected error for p > 1")
	}
}

func TestValueGeneratorNormalDistributionIsBounded(t *testing.T) {
	g, err := UnmarshalValueGenerator([]byte(`{"type":"normal","mean":100,"stddev":5}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		v := g.Sample(rng)
		if math.Abs(v-100) > 50 {
			t.Fatalf("sample %v too far from mean 100 for stddev 5", v)
		}
	}
}

func TestValueGeneratorMinMaxLimiters(t *testing.T) {
	g, err := UnmarshalValueGenerator([]byte(`{
		"type":"fixed","value":5,
		"minCfg":{"type":"minClip","limit":10},
		"maxCfg":{"type":"maxClip","limit":20}
	}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if v := g.Sample(rng); v != 10 {
		t.Fatalf("expected minClip to raise 5 to 10, got %v", v)
	}

	g2, err := UnmarshalValueGenerator([]byte(`{
		"type":"fixed","value":50,
		"maxCfg":{"type":"maxClip","limit":20}
	}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v := g2.Sample(rng); v != 20 {
		t.Fatalf("expected maxClip to cap 50 to 20, got %v", v)
	}
}

func TestLimiterMinAdd(t *testing.T) {
	l := &Limiter{Kind: "minAdd", Limit: 10}
	if v := l.Apply(3); v != 13 {
		t.Fatalf("expected minAdd 3+10=13, got %v", v)
	}
	if v := l.Apply(15); v != 15 {
		t.Fatalf("expected minAdd to leave 15 unchanged, got %v", v)
	}
}

func TestLimiterMaxModulo(t *testing.T) {
	l := &Limiter{Kind: "maxModulo", Limit: 7}
	if v := l.Apply(20); v != 6 {
		t.Fatalf("expected 20 mod 7 == 6, got %v", v)
	}
	if v := l.Apply(5); v != 5 {
		t.Fatalf("expected value under limit unchanged, got %v", v)
	}
}

func TestLimiterInvert(t *testing.T) {
	l := &Limiter{Kind: "maxClip", Limit: 10, Invert: true}
	if v := l.Apply(20); v != -10 {
		t.Fatalf("expected inverted clipped value -10, got %v", v)
	}
}

func TestUnknownLimiterTypeRejected(t *testing.T) {
	if _, err := UnmarshalValueGenerator([]byte(`{
		"type":"fixed","value":1,
		"minCfg":{"type":"bogus","limit":1}
	}`)); err == nil {
		t.Fatalf("expected error for unknown limiter type")
	}
}

func TestFixedHelper(t *testing.T) {
	g := Fixed(3.5)
	rng := rand.New(rand.NewSource(1))
	if v := g.Sample(rng); v != 3.5 {
		t.Fatalf("expected 3.5, got %v", v)
	}
}

func TestConfigErrorPathFormatting(t *testing.T) {
	err := Errorf("rucio.sites[0]", "missing name")
	if err.Error() != "rucio.sites[0]: missing name" {
		t.Fatalf("unexpected error formatting: %q", err.Error())
	}

	bare := NewConfigError("", errSentinel{})
	if bare.Error() != "sentinel" {
		t.Fatalf("expected bare error message, got %q", bare.Error())
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "sentinel" }
