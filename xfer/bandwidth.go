/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
	"github.com/golang/glog"
)

// BandwidthManager is the bandwidth-shared transfer manager
// (CTransferManager in original_source): every active transfer on a link
// divides the link's bandwidth, unless the link is marked is_throughput
// (spec.md §4.4.1). It progresses active transfers before promoting newly
// queued ones within the same tick (Open Question (b), resolved this way
// per DESIGN.md).
type BandwidthManager struct {
	base

	idgen *core.IDGen
	sink  output.Sink
	pi    *output.PreparedInsert

	queued []*Transfer
	active []*Transfer
}

// NewBandwidthManager constructs a manager ticking every tick, sharing one
// prepared Transfers insert across its whole lifetime (spec.md §4.4: "both
// use a single shared prepared insert statement for the Transfers table").
func NewBandwidthManager(idgen *core.IDGen, sink output.Sink) (*BandwidthManager, error) {
	pi, err := sink.PrepareInsert("Transfers", transfersColumns, '?')
	if err != nil {
		return nil, err
	}
	return &BandwidthManager{
		base:  newBase("bandwidth-manager", 1, 0),
		idgen: idgen,
		sink:  sink,
		pi:    pi,
	}, nil
}

var transfersColumns = []string{
	"id", "src_storage_id", "dst_storage_id", "file_id",
	"src_replica_id", "dst_replica_id", "queued_at", "started_at",
	"finished_at", "traffic",
}

func (m *BandwidthManager) NumActive() int { return len(m.active) }

// CreateTransfer queues a transfer from src to dst over the link already
// configured between their storage elements. It returns ok=false rather
// than asserting when the link has no spare capacity (Open Question (a)):
// the caller (a transfer generator) decides whether to retry next tick, try
// a different destination, or drop the candidate.
func (m *BandwidthManager) CreateTransfer(src, dst *core.Replica, now core.Tick, deleteSrcOnComplete bool) (*Transfer, bool) {
	link, ok := src.StorageElement.GetNetworkLink(dst.StorageElement)
	if !ok || !link.HasCapacity() {
		return nil, false
	}

	t := &Transfer{
		ID:                  m.idgen.Next(),
		Src:                 src,
		Dst:                 dst,
		Link:                link,
		QueuedAt:            now,
		StartAt:             now,
		LastUpdated:         now,
		DeleteSrcOnComplete: deleteSrcOnComplete,
		state:               stateQueued,
	}
	link.IncActive()
	src.StorageElement.OnOperation(core.OpGet, now)
	src.SetPreRemoveListener(t)
	dst.SetPreRemoveListener(t)
	m.queued = append(m.queued, t)
	return t, true
}

func (m *BandwidthManager) OnUpdate(now core.Tick) {
	m.progressActive(now)
	m.promoteQueued(now)
	m.Rearm(now + m.tickFreq)
}

func (m *BandwidthManager) promoteQueued(now core.Tick) {
	remaining := m.queued[:0]
	for _, t := range m.queued {
		if t.StartAt <= now {
			t.state = stateActive
			t.startedAt = now
			m.active = append(m.active, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	m.queued = remaining
}

func (m *BandwidthManager) progressActive(now core.Tick) {
	if len(m.active) == 0 {
		return
	}
	vc := m.pi.CreateValuesContainer(len(m.active))
	kept := m.active[:0]
	for _, t := range m.active {
		if t.state == stateFailed {
			m.failTransfer(t, now)
			continue
		}

		elapsed := now - t.LastUpdated
		bw := t.Link.PerTransferBandwidth()
		delta := core.Space(uint64(bw) * uint64(elapsed))
		applied := t.Dst.Increase(delta, now)
		t.traffic += applied
		t.Link.AddTraffic(applied)
		t.LastUpdated = now

		if t.state == stateFailed {
			m.failTransfer(t, now)
			continue
		}

		if t.Dst.IsComplete() {
			m.completeTransfer(t, now, vc)
			continue
		}
		kept = append(kept, t)
	}
	m.active = kept
	if !vc.IsEmpty() {
		if err := m.sink.QueueInserts(m.pi, vc); err != nil {
			glog.Errorf("bandwidth-manager: queue inserts: %v", err)
		}
	}
}

func (m *BandwidthManager) completeTransfer(t *Transfer, now core.Tick, vc *output.ValuesContainer) {
	t.state = stateCompleted
	t.detachListeners()
	t.Link.DecActive()
	t.Link.NumDone.Inc()
	m.recordCompletion(now - t.startedAt)
	appendTransferRow(vc, t, now)

	if t.DeleteSrcOnComplete {
		t.Src.StorageElement.RemoveReplica(t.Src, now, false)
	}
}

func (m *BandwidthManager) failTransfer(t *Transfer, now core.Tick) {
	t.detachListeners()
	t.Link.DecActive()
	t.Link.NumFailed.Inc()
	m.recordFailure()
}

func (m *BandwidthManager) Shutdown(now core.Tick) {
	glog.V(2).Infof("bandwidth-manager: shutdown at tick %d with %d active, %d queued", now, len(m.active), len(m.queued))
}

func appendTransferRow(vc *output.ValuesContainer, t *Transfer, now core.Tick) {
	vc.AddValue(output.U64(uint64(t.ID)))
	vc.AddValue(output.U64(uint64(t.Src.StorageElement.ID)))
	vc.AddValue(output.U64(uint64(t.Dst.StorageElement.ID)))
	vc.AddValue(output.U64(uint64(t.Dst.File.ID)))
	vc.AddValue(output.U64(uint64(t.Src.ID)))
	vc.AddValue(output.U64(uint64(t.Dst.ID)))
	vc.AddValue(output.U64(uint64(t.QueuedAt)))
	vc.AddValue(output.U64(uint64(t.startedAt)))
	vc.AddValue(output.U64(uint64(now)))
	vc.AddValue(output.U64(uint64(t.traffic)))
}
