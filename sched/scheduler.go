/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sched

import (
	"container/heap"
	"time"

	"github.com/gacspp/gacsim/core"
	"github.com/golang/glog"
)

// item wraps a Schedulable with an insertion sequence number so that ties in
// NextCallTick are broken by insertion order, matching spec.md §4.1's
// "ordered multiset keyed by next_call_tick (ties broken by insertion
// order)".
type item struct {
	s   Schedulable
	seq uint64
}

type pqueue []item

func (q pqueue) Len() int { return len(q) }
func (q pqueue) Less(i, j int) bool {
	ti, tj := q[i].s.NextCallTick(), q[j].s.NextCallTick()
	if ti != tj {
		return ti < tj
	}
	return q[i].seq < q[j].seq
}
func (q pqueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pqueue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *pqueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Scheduler is a single-threaded, cooperative priority queue of
// Schedulables ordered by NextCallTick. Exactly one Schedulable runs at a
// time; there is no preemption (spec.md §5).
type Scheduler struct {
	q           pqueue
	seq         uint64
	currentTick core.Tick

	// stepHook, if set, is called after every OnUpdate with the wall-clock
	// time it took. Used by stats.Heartbeat to track which Schedulable is
	// consuming the most real time per tick; nil by default, zero overhead
	// when unset.
	stepHook func(name string, elapsed time.Duration)
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.q)
	return s
}

// SetStepHook installs fn to be called with the wall-clock duration of every
// OnUpdate invocation. Passing nil disables timing.
func (s *Scheduler) SetStepHook(fn func(name string, elapsed time.Duration)) {
	s.stepHook = fn
}

// CurrentTick is the virtual time as of the last Step.
func (s *Scheduler) CurrentTick() core.Tick { return s.currentTick }

// Add enqueues a Schedulable.
func (s *Scheduler) Add(sched Schedulable) {
	heap.Push(&s.q, item{s: sched, seq: s.seq})
	s.seq++
}

// Len reports how many Schedulables remain queued.
func (s *Scheduler) Len() int { return s.q.Len() }

// Step pops the earliest Schedulable, advances current_tick to its
// NextCallTick, invokes OnUpdate, and either re-enqueues it (if it re-armed
// itself to a later tick) or shuts it down and drops it. Returns false when
// the queue is empty.
func (s *Scheduler) Step() bool {
	if s.q.Len() == 0 {
		return false
	}
	it := heap.Pop(&s.q).(item)
	next := it.s.NextCallTick()
	if next < s.currentTick {
		glog.Fatalf("scheduler: %s next_call_tick %d < current_tick %d", it.s.Name(), next, s.currentTick)
	}
	s.currentTick = next
	if s.stepHook != nil {
		start := time.Now()
		it.s.OnUpdate(s.currentTick)
		s.stepHook(it.s.Name(), time.Since(start))
	} else {
		it.s.OnUpdate(s.currentTick)
	}
	if it.s.NextCallTick() > s.currentTick {
		heap.Push(&s.q, item{s: it.s, seq: s.seq})
		s.seq++
	} else {
		it.s.Shutdown(s.currentTick)
	}
	return true
}

// Run drives the event loop until the queue drains or current_tick exceeds
// maxTick, then shuts down every remaining Schedulable (spec.md §4.1 step 2).
func (s *Scheduler) Run(maxTick core.Tick) {
	for s.q.Len() > 0 && s.currentTick <= maxTick {
		if !s.Step() {
			break
		}
	}
	s.ShutdownAll()
}

// ShutdownAll calls Shutdown on every remaining Schedulable and empties the
// queue, without advancing current_tick further.
func (s *Scheduler) ShutdownAll() {
	for s.q.Len() > 0 {
		it := heap.Pop(&s.q).(item)
		it.s.Shutdown(s.currentTick)
	}
}
