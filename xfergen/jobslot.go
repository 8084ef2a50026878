/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"math/rand"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
)

const jobSlotReplicaLifetime core.Tick = core.SecondsPerDay
const jobSlotRescheduleWindow core.Tick = 900

type slotWindow struct {
	FinishTick core.Tick
	Count      int
}

// JobSlotSource is a candidate source ranked by a configured priority,
// ties broken by the fastest link to it (spec.md §4.5.6 "best-priority
// source (ties broken by link-weight)").
type JobSlotSource struct {
	SE       *core.StorageElement
	Priority int
}

// JobSlotDst is one destination's slot budget and its rolling schedule of
// when occupied slots free up.
type JobSlotDst struct {
	Dst      *core.StorageElement
	MaxSlots int
	schedule []slotWindow
}

// JobSlotTransferGen is the simplest slot-based generator: each
// destination admits new transfers only as its slot budget allows,
// tracked via a small reschedule-window queue rather than per-transfer
// bookkeeping (spec.md §4.5.6).
type JobSlotTransferGen struct {
	sched.Base

	Dsts    []*JobSlotDst
	Sources []*JobSlotSource
	Files   *core.Rucio

	Manager *xfer.BandwidthManager
	IDGen   *core.IDGen
	Rng     *rand.Rand
}

func NewJobSlotTransferGen(dsts []*JobSlotDst, sources []*JobSlotSource, files *core.Rucio, mgr *xfer.BandwidthManager, idgen *core.IDGen, rng *rand.Rand) *JobSlotTransferGen {
	return &JobSlotTransferGen{
		Base:    sched.NewBase("job-slot-transfer-gen", 0),
		Dsts:    dsts,
		Sources: sources,
		Files:   files,
		Manager: mgr,
		IDGen:   idgen,
		Rng:     rng,
	}
}

func (g *JobSlotTransferGen) OnUpdate(now core.Tick) {
	for _, d := range g.Dsts {
		g.reclaim(d, now)

		occupied := 0
		for _, w := range d.schedule {
			occupied += w.Count
		}
		free := d.MaxSlots - occupied
		if free <= 0 {
			continue
		}
		admit := 1 + int(0.01*float64(d.MaxSlots))
		if free < admit {
			admit = free
		}

		created := g.createUpTo(d, admit, now)
		if created > 0 {
			g.scheduleSlots(d, now+jobSlotRescheduleWindow, created)
		}
	}
	g.Rearm(now + 1)
}

// scheduleSlots appends a (finishTick, count) window to d's schedule,
// merging into the last entry instead of appending a fresh one when it
// already shares the same finish tick (supplemented feature, see
// SPEC_FULL.md §6: the original merges adjacent same-finish-tick entries
// rather than letting the schedule grow one entry per admission).
func (g *JobSlotTransferGen) scheduleSlots(d *JobSlotDst, finishTick core.Tick, count int) {
	if n := len(d.schedule); n > 0 && d.schedule[n-1].FinishTick == finishTick {
		d.schedule[n-1].Count += count
		return
	}
	d.schedule = append(d.schedule, slotWindow{FinishTick: finishTick, Count: count})
}

func (g *JobSlotTransferGen) reclaim(d *JobSlotDst, now core.Tick) {
	kept := d.schedule[:0]
	for _, w := range d.schedule {
		if w.FinishTick > now {
			kept = append(kept, w)
		}
	}
	d.schedule = kept
}

func (g *JobSlotTransferGen) createUpTo(d *JobSlotDst, n int, now core.Tick) int {
	files := g.Files.Files()
	if len(files) == 0 {
		return 0
	}
	created := 0
	for i := 0; i < n; i++ {
		var file *core.File
		for attempt := 0; attempt < 10; attempt++ {
			cand := files[g.Rng.Intn(len(files))]
			if d.Dst.HasReplicaOf(cand.ID) {
				continue
			}
			file = cand
			break
		}
		if file == nil {
			continue
		}
		src := g.bestSource(file)
		if src == nil {
			continue
		}
		dstRepl, err := d.Dst.CreateReplica(file, now, g.IDGen)
		if err != nil {
			continue
		}
		dstRepl.ExpiresAt = now + jobSlotReplicaLifetime
		if _, ok := g.Manager.CreateTransfer(src, dstRepl, now, false); !ok {
			d.Dst.RemoveReplica(dstRepl, now, false)
			continue
		}
		created++
	}
	return created
}

// bestSource picks the best-priority source, ties broken by link weight
// (fastest outgoing link) and any remaining tie broken deterministically
// via HRW rather than by iteration order (spec.md §4.5.6).
func (g *JobSlotTransferGen) bestSource(file *core.File) *core.Replica {
	type candidate struct {
		name     string
		r        *core.Replica
		priority int
		bw       core.Space
	}
	var cands []candidate
	bestPriority := -1
	var bestBw core.Space
	for _, cand := range g.Sources {
		r := cand.SE.ReplicaOf(file.ID)
		if r == nil || !r.IsComplete() {
			continue
		}
		bw := maxLinkBandwidth(cand.SE)
		cands = append(cands, candidate{cand.SE.Name, r, cand.Priority, bw})
		if cand.Priority > bestPriority || (cand.Priority == bestPriority && bw > bestBw) {
			bestPriority, bestBw = cand.Priority, bw
		}
	}
	if len(cands) == 0 {
		return nil
	}
	names := make([]string, 0, len(cands))
	byName := make(map[string]*core.Replica, len(cands))
	for _, c := range cands {
		if c.priority == bestPriority && c.bw == bestBw {
			names = append(names, c.name)
			byName[c.name] = c.r
		}
	}
	return byName[hrwBreakTie(file.ID, names)]
}

func (g *JobSlotTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("job-slot-transfer-gen: shutdown at tick %d", now)
}
