/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "go.uber.org/atomic"

// NetworkLink is a directed point-to-point edge between two StorageElements,
// owned by its source. Counters are mutated only by the TransferManager
// driving transfers over the link — the simulator is single-threaded
// end-to-end, so atomics here are cheap insurance, not a concurrency
// requirement (spec.md §5).
type NetworkLink struct {
	ID  ID
	Src *StorageElement
	Dst *StorageElement

	BandwidthBytesPerSecond Space

	// IsThroughput: if true, every active transfer independently enjoys
	// full bandwidth; if false, active transfers share bandwidth equally.
	IsThroughput bool

	// MaxNumActiveTransfers bounds concurrency; 0 = unbounded.
	MaxNumActiveTransfers uint32

	numActive atomic.Uint32
	NumDone   atomic.Uint32
	NumFailed atomic.Uint32
	UsedTraffic atomic.Uint64
}

// NumActive returns the current count of manager-tracked transfers over
// this link.
func (l *NetworkLink) NumActive() uint32 { return l.numActive.Load() }

// HasCapacity reports whether one more transfer may be queued.
func (l *NetworkLink) HasCapacity() bool {
	if l.MaxNumActiveTransfers == 0 {
		return true
	}
	return l.numActive.Load() < l.MaxNumActiveTransfers
}

// IncActive increments the active-transfer count; called when a transfer is
// queued (spec.md §4.4 "Queueing a transfer … increments the link's
// num_active").
func (l *NetworkLink) IncActive() { l.numActive.Inc() }

// DecActive decrements the active-transfer count on completion or failure.
func (l *NetworkLink) DecActive() { l.numActive.Dec() }

// AddTraffic accumulates bytes actually moved; reset at each billing
// boundary by the cloud cost accumulator (spec.md §3).
func (l *NetworkLink) AddTraffic(n Space) { l.UsedTraffic.Add(uint64(n)) }

// ResetTrafficCounters is called by the Cloud billing pass.
func (l *NetworkLink) ResetTrafficCounters() {
	l.UsedTraffic.Store(0)
	l.NumDone.Store(0)
	l.NumFailed.Store(0)
}

// PerTransferBandwidth returns the instantaneous bandwidth a single active
// transfer on this link gets right now.
func (l *NetworkLink) PerTransferBandwidth() Space {
	if l.IsThroughput {
		return l.BandwidthBytesPerSecond
	}
	active := l.numActive.Load()
	if active == 0 {
		return l.BandwidthBytesPerSecond
	}
	return Space(uint64(l.BandwidthBytesPerSecond) / uint64(active))
}
