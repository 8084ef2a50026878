/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "testing"

func newTestTopology() (*IDGen, *Rucio, *GridSite, *StorageElement) {
	idgen := NewIDGen()
	rucio := NewRucio(idgen)
	site := NewGridSite(idgen.Next(), "siteA", "CERN", 0)
	se := site.CreateStorageElement(idgen.Next(), "diskA")
	rucio.AddGridSite(site)
	return idgen, rucio, site, se
}

func TestCreateFileAndReplica(t *testing.T) {
	idgen, rucio, _, se := newTestTopology()

	f := rucio.CreateFile(1*GiB, 0, 100)
	if f.Size != 1*GiB || f.ExpiresAt != 100 {
		t.Fatalf("unexpected file: %+v", f)
	}

	r, err := se.CreateReplica(f, 0, idgen)
	if err != nil {
		t.Fatalf("CreateReplica: %v", err)
	}
	if r.File != f {
		t.Fatalf("replica.File invariant violated")
	}
	if r.CurrentSize > f.Size {
		t.Fatalf("replica.CurrentSize exceeds file size")
	}
	if se.Allocated() != f.Size {
		t.Fatalf("expected allocated == file size, got %d", se.Allocated())
	}

	applied := r.Increase(f.Size, 1)
	if applied != f.Size {
		t.Fatalf("expected full increase, got %d", applied)
	}
	if !r.IsComplete() {
		t.Fatalf("replica should be complete")
	}
	if se.Used() != f.Size || se.Allocated() != 0 {
		t.Fatalf("expected used=%d allocated=0, got used=%d allocated=%d", f.Size, se.Used(), se.Allocated())
	}

	_ = rucio
}

func TestReplicaIncreaseClipsToFileSize(t *testing.T) {
	idgen, _, _, se := newTestTopology()
	f := NewFile(1, 0, 100, 100)
	r, err := se.CreateReplica(f, 0, idgen)
	if err != nil {
		t.Fatalf("CreateReplica: %v", err)
	}

	applied := r.Increase(150, 1)
	if applied != 100 {
		t.Fatalf("expected clipped delta 100, got %d", applied)
	}
	if r.CurrentSize != f.Size {
		t.Fatalf("current size must clamp to file size")
	}

	// A further increase beyond a now-complete replica is a no-op.
	if got := r.Increase(10, 2); got != 0 {
		t.Fatalf("expected 0 delta past completion, got %d", got)
	}
}

func TestStorageElementQuotaExceeded(t *testing.T) {
	idgen, _, _, se := newTestTopology()
	se.Limit = 50
	f := NewFile(1, 0, 100, 100)

	if _, err := se.CreateReplica(f, 0, idgen); err != ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestUniqueReplicaPerFile(t *testing.T) {
	idgen, _, _, se := newTestTopology()
	se.Policy = UniqueReplicaPerFile
	f := NewFile(1, 0, 100, 10)

	if _, err := se.CreateReplica(f, 0, idgen); err != nil {
		t.Fatalf("first CreateReplica: %v", err)
	}
	if _, err := se.CreateReplica(f, 0, idgen); err != ErrDuplicateReplica {
		t.Fatalf("expected ErrDuplicateReplica, got %v", err)
	}
}

func TestRemoveReplicaReleasesStorage(t *testing.T) {
	idgen, _, _, se := newTestTopology()
	f := NewFile(1, 0, 100, 100)
	r, err := se.CreateReplica(f, 0, idgen)
	if err != nil {
		t.Fatalf("CreateReplica: %v", err)
	}
	r.Increase(60, 1)

	se.RemoveReplica(r, 2, false)
	if se.Used() != 0 || se.Allocated() != 0 {
		t.Fatalf("expected used=0 allocated=0 after removal, got used=%d allocated=%d", se.Used(), se.Allocated())
	}
	if f.NumReplicas() != 0 {
		t.Fatalf("file should have no replicas left")
	}
}

func TestRucioReaperRemovesExpiredFiles(t *testing.T) {
	idgen, rucio, _, se := newTestTopology()
	for i := 0; i < 5; i++ {
		f := rucio.CreateFile(1*MiB, 0, 10)
		if _, err := se.CreateReplica(f, 0, idgen); err != nil {
			t.Fatalf("CreateReplica: %v", err)
		}
	}

	removed := rucio.RunReaper(15)
	if removed != 5 {
		t.Fatalf("expected 5 removed, got %d", removed)
	}
	if len(rucio.Files()) != 0 {
		t.Fatalf("expected no files left, got %d", len(rucio.Files()))
	}
	if se.Used() != 0 || se.Allocated() != 0 {
		t.Fatalf("expected storage element drained, got used=%d allocated=%d", se.Used(), se.Allocated())
	}
}

func TestFileExpiryNeverShortened(t *testing.T) {
	f := NewFile(1, 0, 100, 10)
	f.ExtendExpiry(50)
	if f.ExpiresAt != 100 {
		t.Fatalf("expiry must never shorten, got %d", f.ExpiresAt)
	}
	f.ExtendExpiry(200)
	if f.ExpiresAt != 200 {
		t.Fatalf("expiry should extend to 200, got %d", f.ExpiresAt)
	}
}

func TestNetworkLinkCapacityAndThroughput(t *testing.T) {
	idgen, _, _, se := newTestTopology()
	dst := NewStorageElement(idgen.Next(), "diskB", se.Site)
	link := se.CreateNetworkLink(idgen.Next(), dst, 100)
	link.MaxNumActiveTransfers = 1

	if !link.HasCapacity() {
		t.Fatalf("expected capacity for first transfer")
	}
	link.IncActive()
	if link.HasCapacity() {
		t.Fatalf("expected no capacity once bound is reached")
	}
	if link.PerTransferBandwidth() != 100 {
		t.Fatalf("single active transfer should get full bandwidth regardless of IsThroughput")
	}

	link.IncActive()
	if link.PerTransferBandwidth() != 50 {
		t.Fatalf("expected bandwidth split across 2 active transfers, got %d", link.PerTransferBandwidth())
	}

	link.IsThroughput = true
	if link.PerTransferBandwidth() != 100 {
		t.Fatalf("throughput links must not divide bandwidth")
	}
}
