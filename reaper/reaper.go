// Package reaper implements the periodic expiry sweep Schedulable
// (CReaperCaller in original_source; spec.md §4.7).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package reaper

import (
	"sync"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/sched"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// Reaper periodically invokes Rucio.RunReaper. Parallelism is a design
// hook (spec.md §9 names a future parallel reaper as an open question):
// when > 1, the expired-file scan itself is sharded across goroutines via
// errgroup; actual removal stays on the calling goroutine since Rucio's
// own file/replica slices are not safe for concurrent mutation. The
// single-threaded baseline (Parallelism <= 1) is what every shipped
// profile uses.
type Reaper struct {
	sched.Base

	Rucio       *core.Rucio
	TickFreq    core.Tick
	Parallelism int
}

func New(rucio *core.Rucio, tickFreq core.Tick, parallelism int) *Reaper {
	return &Reaper{
		Base:        sched.NewBase("reaper", tickFreq),
		Rucio:       rucio,
		TickFreq:    tickFreq,
		Parallelism: parallelism,
	}
}

func (r *Reaper) OnUpdate(now core.Tick) {
	removed := r.sweep(now)
	if removed > 0 {
		glog.V(2).Infof("reaper: removed %d file(s) at tick %d", removed, now)
	}
	r.Rearm(now + r.TickFreq)
}

func (r *Reaper) sweep(now core.Tick) int {
	if r.Parallelism <= 1 {
		return r.Rucio.RunReaper(now)
	}
	return r.sweepParallel(now)
}

// sweepParallel shards the file slice across Parallelism goroutines to
// find expired files concurrently, then removes them one at a time on the
// caller's goroutine.
func (r *Reaper) sweepParallel(now core.Tick) int {
	files := r.Rucio.Files()
	shards := make([][]*core.File, r.Parallelism)
	for i, f := range files {
		shard := i % r.Parallelism
		shards[shard] = append(shards[shard], f)
	}

	var mu sync.Mutex
	var expired []*core.File
	var g errgroup.Group
	for _, shard := range shards {
		shard := shard
		g.Go(func() error {
			var local []*core.File
			for _, f := range shard {
				if f.ExpiresAt <= now {
					local = append(local, f)
				}
			}
			if len(local) > 0 {
				mu.Lock()
				expired = append(expired, local...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range expired {
		r.Rucio.RemoveFile(f, now)
	}
	return len(expired)
}

func (r *Reaper) Shutdown(now core.Tick) {
	glog.V(2).Infof("reaper: shutdown at tick %d", now)
}
