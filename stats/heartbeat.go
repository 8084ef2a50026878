/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
)

// Heartbeat is a Schedulable that periodically logs and exports simulation
// progress: current tick, ticks advanced and wall-clock time elapsed,
// per-Schedulable wall time (via
// sched.Scheduler.SetStepHook), and every transfer manager's completion
// counters. It registers itself as the scheduler's step hook, so it must be
// constructed before the run starts.
type Heartbeat struct {
	sched.Base

	Scheduler *sched.Scheduler
	Managers  []xfer.Manager
	TickFreq  core.Tick
	RunID     string

	start      time.Time
	lastTick   core.Tick
	stepTimeMu sync.Mutex
	stepTime   map[string]time.Duration

	reg          *prometheus.Registry
	tickGauge    prometheus.Gauge
	mgrCompleted *prometheus.GaugeVec
	mgrFailed    *prometheus.GaugeVec
	mgrActive    *prometheus.GaugeVec
	mgrMeanDur   *prometheus.GaugeVec
}

func NewHeartbeat(scheduler *sched.Scheduler, managers []xfer.Manager, tickFreq core.Tick, runID string) *Heartbeat {
	h := &Heartbeat{
		Base:      sched.NewBase("heartbeat", tickFreq),
		Scheduler: scheduler,
		Managers:  managers,
		TickFreq:  tickFreq,
		RunID:     runID,
		start:     time.Now(),
		stepTime:  make(map[string]time.Duration, 16),
	}
	h.reg = prometheus.NewRegistry()
	h.tickGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gacsim", Name: "tick", Help: "current simulation tick",
	})
	h.mgrCompleted = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gacsim", Name: "transfers_completed", Help: "completed transfers since last reset",
	}, []string{"manager"})
	h.mgrFailed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gacsim", Name: "transfers_failed", Help: "failed transfers since last reset",
	}, []string{"manager"})
	h.mgrActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gacsim", Name: "transfers_active", Help: "currently active transfers",
	}, []string{"manager"})
	h.mgrMeanDur = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gacsim", Name: "transfer_mean_duration_ticks", Help: "mean transfer duration in ticks since last reset",
	}, []string{"manager"})
	h.reg.MustRegister(h.tickGauge, h.mgrCompleted, h.mgrFailed, h.mgrActive, h.mgrMeanDur)
	scheduler.SetStepHook(h.trackStep)
	return h
}

// Registry exposes the Prometheus registry for an external reader, such as
// a push-gateway client; this package does not serve it over HTTP.
func (h *Heartbeat) Registry() *prometheus.Registry { return h.reg }

func (h *Heartbeat) trackStep(name string, elapsed time.Duration) {
	h.stepTimeMu.Lock()
	h.stepTime[name] += elapsed
	h.stepTimeMu.Unlock()
}

func (h *Heartbeat) OnUpdate(now core.Tick) {
	h.tickGauge.Set(float64(now))

	for _, m := range h.Managers {
		h.mgrCompleted.WithLabelValues(m.Name()).Set(float64(m.NumCompleted()))
		h.mgrFailed.WithLabelValues(m.Name()).Set(float64(m.NumFailed()))
		h.mgrActive.WithLabelValues(m.Name()).Set(float64(m.NumActive()))
		h.mgrMeanDur.WithLabelValues(m.Name()).Set(m.MeanDuration())
	}

	wall := time.Since(h.start)
	glog.Infof("[%s] tick=%d (+%d) wall=%s %s", h.RunID, now, now-h.lastTick, wall.Round(time.Second), h.managerSummary())
	if slowest, dur := h.slowestSchedulable(); slowest != "" {
		glog.V(2).Infof("[%s] slowest schedulable since last heartbeat: %s (%s)", h.RunID, slowest, dur)
	}

	h.lastTick = now
	h.resetStepTime()
	for _, m := range h.Managers {
		m.ResetCounters()
	}
	h.Rearm(now + h.TickFreq)
}

func (h *Heartbeat) managerSummary() string {
	if len(h.Managers) == 0 {
		return ""
	}
	var total uint32
	for _, m := range h.Managers {
		total += m.NumCompleted()
	}
	return "completed=" + strconv.FormatUint(uint64(total), 10)
}

func (h *Heartbeat) slowestSchedulable() (string, time.Duration) {
	h.stepTimeMu.Lock()
	defer h.stepTimeMu.Unlock()
	var name string
	var max time.Duration
	for n, d := range h.stepTime {
		if d > max {
			max, name = d, n
		}
	}
	return name, max
}

func (h *Heartbeat) resetStepTime() {
	h.stepTimeMu.Lock()
	for k := range h.stepTime {
		delete(h.stepTime, k)
	}
	h.stepTimeMu.Unlock()
}

// topSchedulables returns up to n schedulable names sorted by accumulated
// wall time, descending.
func (h *Heartbeat) topSchedulables(n int) []string {
	h.stepTimeMu.Lock()
	names := make([]string, 0, len(h.stepTime))
	for name := range h.stepTime {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return h.stepTime[names[i]] > h.stepTime[names[j]] })
	h.stepTimeMu.Unlock()
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func (h *Heartbeat) Shutdown(now core.Tick) {
	glog.V(2).Infof("[%s] heartbeat: shutdown at tick %d", h.RunID, now)
}
