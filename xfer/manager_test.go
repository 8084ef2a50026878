/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"testing"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
)

// fakeSink is a minimal in-memory output.Sink for tests that only need to
// observe whether rows were queued, not their exact content.
type fakeSink struct {
	queuedBatches int
	queuedRows    int
}

func (s *fakeSink) CreateTable(name string, columns []output.ColumnDecl) error { return nil }
func (s *fakeSink) InsertRow(table string, row []output.Value) error           { return nil }
func (s *fakeSink) PrepareInsert(table string, columns []string, wildcardChar byte) (*output.PreparedInsert, error) {
	return &output.PreparedInsert{Table: table, Columns: columns, WildcardChar: wildcardChar}, nil
}
func (s *fakeSink) QueueInserts(pi *output.PreparedInsert, vc *output.ValuesContainer) error {
	s.queuedBatches++
	s.queuedRows += vc.NumRows()
	return nil
}
func (s *fakeSink) Close() error { return nil }

// topology builds a two-element, single-link test grid: src -> dst at the
// given bandwidth, with a fresh IDGen and Rucio.
type topology struct {
	idgen *core.IDGen
	rucio *core.Rucio
	src   *core.StorageElement
	dst   *core.StorageElement
	link  *core.NetworkLink
}

func newTopology(bandwidth core.Space) *topology {
	idgen := core.NewIDGen()
	rucio := core.NewRucio(idgen)
	site := core.NewGridSite(idgen.Next(), "site", "CERN", 0)
	src := site.CreateStorageElement(idgen.Next(), "src")
	dst := site.CreateStorageElement(idgen.Next(), "dst")
	rucio.AddGridSite(site)
	link := src.CreateNetworkLink(idgen.Next(), dst, bandwidth)
	return &topology{idgen: idgen, rucio: rucio, src: src, dst: dst, link: link}
}

func (tp *topology) newFileWithSrcReplica(size core.Space, now core.Tick) (*core.File, *core.Replica) {
	f := tp.rucio.CreateFile(size, now, 100000)
	sr, err := tp.src.CreateReplica(f, now, tp.idgen)
	if err != nil {
		panic(err)
	}
	sr.Increase(size, now)
	return f, sr
}

func TestBandwidthManagerCompletesTransferWhenDstFull(t *testing.T) {
	tp := newTopology(100)
	sink := &fakeSink{}
	m, err := NewBandwidthManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewBandwidthManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(1000, 0)
	dstRepl, err := tp.dst.CreateReplica(f, 0, tp.idgen)
	if err != nil {
		t.Fatalf("CreateReplica dst: %v", err)
	}

	tr, ok := m.CreateTransfer(srcRepl, dstRepl, 0, false)
	if !ok || tr == nil {
		t.Fatalf("expected transfer to be created")
	}
	if tp.link.NumActive() != 1 {
		t.Fatalf("expected link active count 1, got %d", tp.link.NumActive())
	}

	// 10 ticks at bandwidth 100/s, single active transfer => full 100/s,
	// moving 1000 bytes total, exactly completing the 1000-byte file.
	for tick := core.Tick(1); tick <= 10; tick++ {
		m.OnUpdate(tick)
	}

	if m.NumCompleted() != 1 {
		t.Fatalf("expected 1 completed transfer, got %d", m.NumCompleted())
	}
	if !dstRepl.IsComplete() {
		t.Fatalf("expected dst replica complete")
	}
	if tp.link.NumActive() != 0 {
		t.Fatalf("expected link active count back to 0 after completion")
	}
	if sink.queuedRows != 1 {
		t.Fatalf("expected exactly 1 completed-transfer row queued, got %d", sink.queuedRows)
	}
}

func TestBandwidthManagerSharesBandwidthAcrossActiveTransfers(t *testing.T) {
	tp := newTopology(100)
	sink := &fakeSink{}
	m, err := NewBandwidthManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewBandwidthManager: %v", err)
	}

	f1, s1 := tp.newFileWithSrcReplica(10000, 1)
	d1, err := tp.dst.CreateReplica(f1, 1, tp.idgen)
	if err != nil {
		t.Fatalf("CreateReplica d1: %v", err)
	}
	f2, s2 := tp.newFileWithSrcReplica(10000, 1)
	d2, err := tp.dst.CreateReplica(f2, 1, tp.idgen)
	if err != nil {
		t.Fatalf("CreateReplica d2: %v", err)
	}

	// Created at tick 1 so both start active at the same OnUpdate(1) that
	// promotes them; OnUpdate(2) is then the first tick that actually
	// progresses them, with a clean elapsed=1.
	if _, ok := m.CreateTransfer(s1, d1, 1, false); !ok {
		t.Fatalf("expected first transfer to be created")
	}
	if _, ok := m.CreateTransfer(s2, d2, 1, false); !ok {
		t.Fatalf("expected second transfer to be created")
	}

	m.OnUpdate(1) // promotes both to active; progressActive runs on the (still empty) prior active list
	m.OnUpdate(2) // progresses both at once, splitting the 100 bytes/s link

	// Bandwidth split across 2 active transfers: 50 bytes over 1 elapsed tick each.
	if d1.CurrentSize != 50 || d2.CurrentSize != 50 {
		t.Fatalf("expected 50 bytes applied to each replica, got d1=%d d2=%d", d1.CurrentSize, d2.CurrentSize)
	}
}

func TestBandwidthManagerRejectsWhenLinkAtCapacity(t *testing.T) {
	tp := newTopology(100)
	tp.link.MaxNumActiveTransfers = 1
	sink := &fakeSink{}
	m, err := NewBandwidthManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewBandwidthManager: %v", err)
	}

	f1, s1 := tp.newFileWithSrcReplica(1000, 0)
	d1, _ := tp.dst.CreateReplica(f1, 0, tp.idgen)
	if _, ok := m.CreateTransfer(s1, d1, 0, false); !ok {
		t.Fatalf("expected first transfer to be created")
	}

	f2, s2 := tp.newFileWithSrcReplica(1000, 0)
	d2, _ := tp.dst.CreateReplica(f2, 0, tp.idgen)
	if _, ok := m.CreateTransfer(s2, d2, 0, false); ok {
		t.Fatalf("expected second transfer to be rejected: link at capacity")
	}
}

func TestBandwidthManagerFailsTransferWhenReplicaRemoved(t *testing.T) {
	tp := newTopology(100)
	sink := &fakeSink{}
	m, err := NewBandwidthManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewBandwidthManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(1000, 0)
	dstRepl, _ := tp.dst.CreateReplica(f, 0, tp.idgen)

	if _, ok := m.CreateTransfer(srcRepl, dstRepl, 0, false); !ok {
		t.Fatalf("expected transfer to be created")
	}
	m.OnUpdate(1)

	// Removing the destination replica mid-transfer must fail it, per the
	// ReplicaPreRemoveListener contract.
	tp.dst.RemoveReplica(dstRepl, 2, false)

	m.OnUpdate(2)
	if m.NumFailed() != 1 {
		t.Fatalf("expected 1 failed transfer, got %d", m.NumFailed())
	}
	if tp.link.NumActive() != 0 {
		t.Fatalf("expected link active count back to 0 after failure")
	}
}

func TestBandwidthManagerDeletesSrcOnComplete(t *testing.T) {
	tp := newTopology(1000)
	sink := &fakeSink{}
	m, err := NewBandwidthManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewBandwidthManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(1000, 1)
	dstRepl, _ := tp.dst.CreateReplica(f, 1, tp.idgen)

	if _, ok := m.CreateTransfer(srcRepl, dstRepl, 1, true); !ok {
		t.Fatalf("expected transfer to be created")
	}
	m.OnUpdate(1) // promotes to active; BandwidthManager progresses active before promoting queued, so no progress yet
	m.OnUpdate(2) // first tick that actually progresses the now-active transfer

	if !dstRepl.IsComplete() {
		t.Fatalf("expected dst replica complete after reaching full bandwidth for one elapsed tick")
	}
	if f.NumReplicas() != 1 {
		t.Fatalf("expected only the dst replica left after src deletion, got %d", f.NumReplicas())
	}
}

func TestFixedTimeManagerCompletesOverFixedDuration(t *testing.T) {
	tp := newTopology(1) // bandwidth irrelevant to FixedTimeManager
	sink := &fakeSink{}
	m, err := NewFixedTimeManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewFixedTimeManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(1000, 0)
	dstRepl, _ := tp.dst.CreateReplica(f, 0, tp.idgen)

	tr, ok := m.CreateTransfer(srcRepl, dstRepl, 0, 0, 10)
	if !ok || tr == nil {
		t.Fatalf("expected transfer to be created")
	}
	if tr.IncreasePerTick != 100 {
		t.Fatalf("expected 1000/10 = 100 bytes/tick, got %d", tr.IncreasePerTick)
	}

	for tick := core.Tick(1); tick <= 10; tick++ {
		m.OnUpdate(tick)
	}

	if m.NumCompleted() != 1 {
		t.Fatalf("expected 1 completed transfer, got %d", m.NumCompleted())
	}
	if !dstRepl.IsComplete() {
		t.Fatalf("expected dst replica complete")
	}
}

func TestFixedTimeManagerHonoursStartDelay(t *testing.T) {
	tp := newTopology(1)
	sink := &fakeSink{}
	m, err := NewFixedTimeManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewFixedTimeManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(1000, 0)
	dstRepl, _ := tp.dst.CreateReplica(f, 0, tp.idgen)

	if _, ok := m.CreateTransfer(srcRepl, dstRepl, 0, 5, 10); !ok {
		t.Fatalf("expected transfer to be created")
	}

	// Before start_delay elapses, the transfer stays queued and the dst
	// replica must not grow.
	m.OnUpdate(3)
	if dstRepl.CurrentSize != 0 {
		t.Fatalf("expected no progress before start delay, got %d", dstRepl.CurrentSize)
	}
	if m.NumActive() != 0 {
		t.Fatalf("expected 0 active transfers before start delay, got %d", m.NumActive())
	}

	m.OnUpdate(5)
	if m.NumActive() != 1 {
		t.Fatalf("expected transfer promoted to active at start_at=5, got %d active", m.NumActive())
	}
}

func TestFixedTimeManagerMeanDurationTracksCompletions(t *testing.T) {
	tp := newTopology(1)
	sink := &fakeSink{}
	m, err := NewFixedTimeManager(tp.idgen, sink)
	if err != nil {
		t.Fatalf("NewFixedTimeManager: %v", err)
	}

	f, srcRepl := tp.newFileWithSrcReplica(100, 0)
	dstRepl, _ := tp.dst.CreateReplica(f, 0, tp.idgen)
	if _, ok := m.CreateTransfer(srcRepl, dstRepl, 0, 0, 4); !ok {
		t.Fatalf("expected transfer to be created")
	}

	for tick := core.Tick(1); tick <= 4; tick++ {
		m.OnUpdate(tick)
	}

	// Promoted to active at tick 1 (the first OnUpdate at or after StartAt),
	// completed at tick 4: recorded duration is 4-1=3.
	if m.MeanDuration() != 3 {
		t.Fatalf("expected mean duration 3, got %v", m.MeanDuration())
	}

	m.ResetCounters()
	if m.MeanDuration() != 0 {
		t.Fatalf("expected mean duration reset to 0, got %v", m.MeanDuration())
	}
	if m.NumCompleted() != 0 || m.NumFailed() != 0 {
		t.Fatalf("expected counters reset")
	}
}

func TestBuildRejectsUnknownManagerKind(t *testing.T) {
	tp := newTopology(1)
	sink := &fakeSink{}
	if _, err := Build("bogus", tp.idgen, sink); err == nil {
		t.Fatalf("expected error for unknown manager kind")
	}
}

func TestBuildConstructsBothKinds(t *testing.T) {
	tp := newTopology(1)
	sink := &fakeSink{}
	if _, err := Build(KindBandwidth, tp.idgen, sink); err != nil {
		t.Fatalf("Build(bandwidth): %v", err)
	}
	if _, err := Build(KindFixedTime, tp.idgen, sink); err != nil {
		t.Fatalf("Build(fixedTime): %v", err)
	}
}
