// Package xfer implements the two interchangeable transfer managers
// (bandwidth-shared and fixed-duration) driving queued/active transfers
// across network links, with hooks for cancel-on-deletion (spec.md §4.4).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/sched"
)

// Manager is the common contract both transfer-manager flavours satisfy:
// completion counters, mean duration, and the Schedulable interface.
// CreateTransfer is intentionally NOT part of this interface — the two
// flavours take different parameters (spec.md §4.4: "Both … share the base
// contract … create_transfer(...)" is an overload, not a single signature).
// Callers that need to create transfers hold the concrete *BandwidthManager
// or *FixedTimeManager they were configured with.
type Manager interface {
	sched.Schedulable
	NumCompleted() uint32
	NumFailed() uint32
	SummedDuration() core.Tick
	NumActive() int
	MeanDuration() float64
	ResetCounters()
}

// base holds the fields and counters shared by both managers.
type base struct {
	sched.Base

	tickFreq core.Tick

	numCompleted   uint32
	numFailed      uint32
	summedDuration core.Tick
}

func newBase(name string, tickFreq, startTick core.Tick) base {
	return base{Base: sched.NewBase(name, startTick), tickFreq: tickFreq}
}

func (b *base) NumCompleted() uint32        { return b.numCompleted }
func (b *base) NumFailed() uint32           { return b.numFailed }
func (b *base) SummedDuration() core.Tick   { return b.summedDuration }

func (b *base) MeanDuration() float64 {
	if b.numCompleted == 0 {
		return 0
	}
	return float64(b.summedDuration) / float64(b.numCompleted)
}

// ResetCounters zeroes the completion counters; called by stats.Heartbeat
// after each interval snapshot (spec.md §4.9).
func (b *base) ResetCounters() {
	b.numCompleted = 0
	b.numFailed = 0
	b.summedDuration = 0
}

func (b *base) recordCompletion(duration core.Tick) {
	b.numCompleted++
	b.summedDuration += duration
}

func (b *base) recordFailure() {
	b.numFailed++
}

// Kind names the two manager flavours the spec's config section refers to
// by string ("bandwidth", "fixedTime"): spec.md §6.
const (
	KindBandwidth = "bandwidth"
	KindFixedTime = "fixedTime"
)
