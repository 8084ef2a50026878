/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"github.com/gacspp/gacsim/core"
)

// transferState tags where a Transfer sits in its state machine (spec.md
// §4.4): Queued --(start_at<=now)--> Active --(dst complete)--> Completed,
// or Active --(src or dst removed)--> Failed.
type transferState uint8

const (
	stateQueued transferState = iota
	stateActive
	stateCompleted
	stateFailed
)

// Transfer is one in-flight (or queued) copy of src onto dst over link. Both
// manager flavours share this shape; they differ only in how they compute
// Δ per tick (see BandwidthManager/FixedTimeManager).
type Transfer struct {
	ID   core.ID
	Src  *core.Replica
	Dst  *core.Replica
	Link *core.NetworkLink

	QueuedAt core.Tick
	StartAt  core.Tick

	LastUpdated core.Tick

	DeleteSrcOnComplete bool

	// IncreasePerTick is used only by FixedTimeManager; zero for
	// BandwidthManager, which derives Δ from link bandwidth each tick.
	IncreasePerTick core.Space

	state     transferState
	traffic   core.Space
	startedAt core.Tick
}

// PreRemoveReplica implements core.ReplicaPreRemoveListener: either replica
// being removed out from under an active transfer fails it immediately
// (spec.md §4.4 "src or dst removed"). Once failed it has no further
// interest in either replica, so it tells the caller not to keep it.
func (t *Transfer) PreRemoveReplica(r *core.Replica, now core.Tick) (keep bool) {
	if t.state == stateCompleted || t.state == stateFailed {
		return false
	}
	t.state = stateFailed
	return false
}

func (t *Transfer) detachListeners() {
	t.Src.ClearPreRemoveListener(t)
	t.Dst.ClearPreRemoveListener(t)
}
