/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package datagen

import (
	"math/rand"
	"testing"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/gcfg"
)

func newTestDestinations(n int) (*core.IDGen, *core.Rucio, []*core.StorageElement) {
	idgen := core.NewIDGen()
	rucio := core.NewRucio(idgen)
	site := core.NewGridSite(idgen.Next(), "site", "CERN", 0)
	dests := make([]*core.StorageElement, n)
	for i := 0; i < n; i++ {
		dests[i] = site.CreateStorageElement(idgen.Next(), "disk")
	}
	rucio.AddGridSite(site)
	return idgen, rucio, dests
}

func TestGeneratorCreatesFilesWithFullyResidentReplicas(t *testing.T) {
	idgen, rucio, dests := newTestDestinations(3)
	rng := rand.New(rand.NewSource(1))

	g := New(rucio, idgen, rng, dests, RoundRobin,
		gcfg.Fixed(2), gcfg.Fixed(1), gcfg.Fixed(100), []float64{1}, 10)

	g.OnUpdate(0)

	if len(rucio.Files()) != 2 {
		t.Fatalf("expected 2 files created, got %d", len(rucio.Files()))
	}
	for _, f := range rucio.Files() {
		if f.NumReplicas() != 1 {
			t.Fatalf("expected 1 replica per file (ratio [1] => always 1), got %d", f.NumReplicas())
		}
		r := f.Replicas()[0]
		if !r.IsComplete() {
			t.Fatalf("expected replica to arrive fully resident")
		}
	}
	if g.NextCallTick() != 10 {
		t.Fatalf("expected rearm at tick 10, got %d", g.NextCallTick())
	}
}

func TestGeneratorRoundRobinCyclesDestinations(t *testing.T) {
	idgen, rucio, dests := newTestDestinations(3)
	rng := rand.New(rand.NewSource(1))

	g := New(rucio, idgen, rng, dests, RoundRobin,
		gcfg.Fixed(3), gcfg.Fixed(1), gcfg.Fixed(100), nil, 10)

	g.OnUpdate(0)

	// NumReplicaRatio is empty => 1 replica per file; round robin assigns
	// disk0, disk1, disk2 in order across the 3 files created this tick.
	want := []*core.StorageElement{dests[0], dests[1], dests[2]}
	for i, f := range rucio.Files() {
		if f.Replicas()[0].StorageElement != want[i] {
			t.Fatalf("file %d: expected destination %v, got %v", i, want[i].Name, f.Replicas()[0].StorageElement.Name)
		}
	}
}

func TestGeneratorSkipsNonPositiveFileSize(t *testing.T) {
	idgen, rucio, dests := newTestDestinations(1)
	rng := rand.New(rand.NewSource(1))

	g := New(rucio, idgen, rng, dests, RoundRobin,
		gcfg.Fixed(1), gcfg.Fixed(0), gcfg.Fixed(100), nil, 10)

	g.OnUpdate(0)

	if len(rucio.Files()) != 0 {
		t.Fatalf("expected 0 files created for non-positive size, got %d", len(rucio.Files()))
	}
}

func TestGeneratorClampsReplicaCountToDestinationCount(t *testing.T) {
	idgen, rucio, dests := newTestDestinations(2)
	rng := rand.New(rand.NewSource(1))

	// ratio table requests 5 replicas but only 2 destinations exist.
	g := New(rucio, idgen, rng, dests, RoundRobin,
		gcfg.Fixed(1), gcfg.Fixed(1), gcfg.Fixed(100), []float64{0, 0, 0, 0, 1}, 10)

	g.OnUpdate(0)

	if len(rucio.Files()) != 1 {
		t.Fatalf("expected 1 file, got %d", len(rucio.Files()))
	}
	if n := rucio.Files()[0].NumReplicas(); n != 2 {
		t.Fatalf("expected replica count clamped to 2 destinations, got %d", n)
	}
}

func TestGeneratorLifetimeNeverLessThanOne(t *testing.T) {
	idgen, rucio, dests := newTestDestinations(1)
	rng := rand.New(rand.NewSource(1))

	g := New(rucio, idgen, rng, dests, RoundRobin,
		gcfg.Fixed(1), gcfg.Fixed(1), gcfg.Fixed(0), nil, 10)

	g.OnUpdate(0)

	f := rucio.Files()[0]
	if f.ExpiresAt <= 0 {
		t.Fatalf("expected lifetime clamped to at least 1 tick, got ExpiresAt=%d", f.ExpiresAt)
	}
}
