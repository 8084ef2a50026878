/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sched

import (
	"testing"
	"time"

	"github.com/gacspp/gacsim/core"
)

// recordingTask fires onUpdate and records every tick it was called at,
// rearming itself at +interval until armUntil, then goes dormant.
type recordingTask struct {
	Base
	interval   core.Tick
	armUntil   core.Tick
	calls      []core.Tick
	shutdownAt core.Tick
	didShut    bool
}

func newRecordingTask(name string, first, interval, armUntil core.Tick) *recordingTask {
	return &recordingTask{Base: NewBase(name, first), interval: interval, armUntil: armUntil}
}

func (t *recordingTask) OnUpdate(now core.Tick) {
	t.calls = append(t.calls, now)
	if now+t.interval <= t.armUntil {
		t.Rearm(now + t.interval)
	} else {
		t.Rearm(now)
	}
}

func (t *recordingTask) Shutdown(now core.Tick) {
	t.didShut = true
	t.shutdownAt = now
}

func TestSchedulerOrdersByNextCallTick(t *testing.T) {
	s := New()
	a := newRecordingTask("a", 10, 1000, 0)
	b := newRecordingTask("b", 5, 1000, 0)
	c := newRecordingTask("c", 7, 1000, 0)
	s.Add(a)
	s.Add(b)
	s.Add(c)

	for s.Len() > 0 {
		s.Step()
	}

	if b.calls[0] != 5 || c.calls[0] != 7 || a.calls[0] != 10 {
		t.Fatalf("expected ascending tick order 5,7,10; got b=%v c=%v a=%v", b.calls, c.calls, a.calls)
	}
}

func TestSchedulerBreaksTiesByInsertionOrder(t *testing.T) {
	s := New()
	first := newRecordingTask("first", 10, 1000, 0)
	second := newRecordingTask("second", 10, 1000, 0)
	s.Add(first)
	s.Add(second)

	s.Step()
	if len(first.calls) != 1 || len(second.calls) != 0 {
		t.Fatalf("expected the first-inserted schedulable to run first on a tie")
	}
	s.Step()
	if len(second.calls) != 1 {
		t.Fatalf("expected second to run next")
	}
}

func TestSchedulerRearmsAndShutsDown(t *testing.T) {
	s := New()
	task := newRecordingTask("periodic", 0, 10, 20)
	s.Add(task)

	s.Run(1000)

	if len(task.calls) != 3 {
		t.Fatalf("expected 3 calls (0, 10, 20), got %v", task.calls)
	}
	if !task.didShut {
		t.Fatalf("expected task to be shut down once it stopped rearming")
	}
	if task.shutdownAt != 20 {
		t.Fatalf("expected shutdown at tick 20, got %d", task.shutdownAt)
	}
}

func TestSchedulerRunStopsAtMaxTick(t *testing.T) {
	// Run checks current_tick <= maxTick *before* each Step, so the loop
	// always executes the first step whose scheduled tick lands beyond
	// maxTick — the boundary check is on the tick already reached, not the
	// tick about to run.
	s := New()
	task := newRecordingTask("forever", 0, 5, 1000000)
	s.Add(task)

	s.Run(12)

	want := []core.Tick{0, 5, 10, 15}
	if len(task.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, task.calls)
	}
	for i, c := range want {
		if task.calls[i] != c {
			t.Fatalf("expected calls %v, got %v", want, task.calls)
		}
	}
	if !task.didShut || task.shutdownAt != 15 {
		t.Fatalf("expected shutdown at tick 15, got shut=%v at=%d", task.didShut, task.shutdownAt)
	}
}

func TestSchedulerStepHookReceivesElapsed(t *testing.T) {
	s := New()
	task := newRecordingTask("timed", 0, 0, 0)
	s.Add(task)

	var gotName string
	var gotElapsed time.Duration
	called := false
	s.SetStepHook(func(name string, elapsed time.Duration) {
		called = true
		gotName = name
		gotElapsed = elapsed
	})

	s.Step()
	if !called {
		t.Fatalf("expected step hook to be invoked")
	}
	if gotName != "timed" {
		t.Fatalf("expected hook to receive task name, got %q", gotName)
	}
	if gotElapsed < 0 {
		t.Fatalf("expected non-negative elapsed duration, got %v", gotElapsed)
	}
}

func TestSchedulerShutdownAllDrainsQueueWithoutAdvancingTick(t *testing.T) {
	s := New()
	a := newRecordingTask("a", 100, 1000, 100000)
	b := newRecordingTask("b", 200, 1000, 100000)
	s.Add(a)
	s.Add(b)

	s.ShutdownAll()

	if s.Len() != 0 {
		t.Fatalf("expected queue drained, got len %d", s.Len())
	}
	if !a.didShut || !b.didShut {
		t.Fatalf("expected both schedulables shut down")
	}
	if s.CurrentTick() != 0 {
		t.Fatalf("expected ShutdownAll to not advance current tick, got %d", s.CurrentTick())
	}
}

func TestSchedulerStepReturnsFalseWhenEmpty(t *testing.T) {
	s := New()
	if s.Step() {
		t.Fatalf("expected Step on empty scheduler to return false")
	}
}
