// Package sched implements the event-driven simulation engine: a
// deterministic priority scheduler over virtual time driving schedulable
// tasks of heterogeneous cadence (spec.md §4.1).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sched

import "github.com/gacspp/gacsim/core"

// Schedulable is any object participating in the event loop. OnUpdate may
// mutate scheduler state, enqueue more schedulables, or re-arm itself by
// setting a NextCallTick greater than now; returning a tick no greater than
// now tells the scheduler this Schedulable is done and Shutdown will be
// called once before it's dropped.
type Schedulable interface {
	Name() string
	NextCallTick() core.Tick
	OnUpdate(now core.Tick)
	Shutdown(now core.Tick)
}

// Base provides the NextCallTick bookkeeping shared by every concrete
// Schedulable, mirroring the teacher's embedding-for-shared-fields
// convention (e.g. stats.statsRunner).
type Base struct {
	TagName string
	next    core.Tick
}

func NewBase(name string, firstTick core.Tick) Base {
	return Base{TagName: name, next: firstTick}
}

func (b *Base) Name() string             { return b.TagName }
func (b *Base) NextCallTick() core.Tick  { return b.next }
func (b *Base) Rearm(next core.Tick)     { b.next = next }
