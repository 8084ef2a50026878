/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package reaper

import (
	"testing"

	"github.com/gacspp/gacsim/core"
)

func newTestGrid() (*core.IDGen, *core.Rucio, *core.StorageElement) {
	idgen := core.NewIDGen()
	rucio := core.NewRucio(idgen)
	site := core.NewGridSite(idgen.Next(), "site", "CERN", 0)
	se := site.CreateStorageElement(idgen.Next(), "disk")
	rucio.AddGridSite(site)
	return idgen, rucio, se
}

func TestReaperSweepsExpiredFilesSerially(t *testing.T) {
	idgen, rucio, se := newTestGrid()
	for i := 0; i < 5; i++ {
		f := rucio.CreateFile(core.MiB, 0, 10)
		if _, err := se.CreateReplica(f, 0, idgen); err != nil {
			t.Fatalf("CreateReplica: %v", err)
		}
	}
	// One file with a later expiry must survive.
	survivor := rucio.CreateFile(core.MiB, 0, 1000)
	if _, err := se.CreateReplica(survivor, 0, idgen); err != nil {
		t.Fatalf("CreateReplica survivor: %v", err)
	}

	r := New(rucio, 10, 1)
	r.OnUpdate(15)

	if len(rucio.Files()) != 1 {
		t.Fatalf("expected 1 surviving file, got %d", len(rucio.Files()))
	}
	if rucio.Files()[0] != survivor {
		t.Fatalf("expected the later-expiring file to survive")
	}
	if r.NextCallTick() != 25 {
		t.Fatalf("expected rearm at tick 25, got %d", r.NextCallTick())
	}
}

func TestReaperSweepParallelMatchesSerialResult(t *testing.T) {
	idgen, rucio, se := newTestGrid()
	for i := 0; i < 20; i++ {
		f := rucio.CreateFile(core.MiB, 0, 10)
		if _, err := se.CreateReplica(f, 0, idgen); err != nil {
			t.Fatalf("CreateReplica: %v", err)
		}
	}
	survivor := rucio.CreateFile(core.MiB, 0, 1000)
	if _, err := se.CreateReplica(survivor, 0, idgen); err != nil {
		t.Fatalf("CreateReplica survivor: %v", err)
	}

	r := New(rucio, 10, 4)
	removed := r.sweep(15)

	if removed != 20 {
		t.Fatalf("expected 20 files removed by parallel sweep, got %d", removed)
	}
	if len(rucio.Files()) != 1 || rucio.Files()[0] != survivor {
		t.Fatalf("expected only the survivor left")
	}
}

func TestReaperNoExpiredFilesIsNoop(t *testing.T) {
	idgen, rucio, se := newTestGrid()
	f := rucio.CreateFile(core.MiB, 0, 1000)
	if _, err := se.CreateReplica(f, 0, idgen); err != nil {
		t.Fatalf("CreateReplica: %v", err)
	}

	r := New(rucio, 5, 1)
	r.OnUpdate(1)

	if len(rucio.Files()) != 1 {
		t.Fatalf("expected file to survive, got %d files", len(rucio.Files()))
	}
}
