/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"math/rand"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/gcfg"
	"github.com/gacspp/gacsim/output"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
)

// hcdcJobState tracks one derivation job through the hot/cold/derived-cache
// pipeline (spec.md §4.5.5).
type hcdcJobState uint8

const (
	hcdcWaitingLock hcdcJobState = iota
	hcdcQueued
	hcdcDownloading
	hcdcRunning
	hcdcUploading
)

type hcdcJob struct {
	state hcdcJobState
	file  *core.File

	hotReplica *core.Replica
	coldToHot  *xfer.Transfer // non-nil while a cold->hot stage-in is outstanding

	downloadedBytes core.Space

	runDuration core.Tick
	runElapsed  core.Tick

	uploads []*ioUpload
}

// HCDCTransferGen models the Hot/Cold/Derived-Cache tiering pipeline: an
// archive tier, a cold tier, a hot tier, a CPU staging link, and an output
// tier (spec.md §4.5.5).
type HCDCTransferGen struct {
	sched.Base

	Archive *core.StorageElement
	Cold    *core.StorageElement
	Hot     *core.StorageElement
	Output  *core.StorageElement

	// Cold->hot stage-ins go through Manager (it resolves the link from the
	// replicas' own storage elements); HotCPULink/CPUOutLink are tracked
	// directly because download/upload progress here bypasses xfer.Manager
	// entirely (each job's bandwidth share is computed inline below).
	HotCPULink *core.NetworkLink
	CPUOutLink *core.NetworkLink

	ProductionStartTime core.Tick

	NumJobSubmissionGen *gcfg.ValueGenerator
	JobDurationGen      *gcfg.ValueGenerator
	NumOutputGen        *gcfg.ValueGenerator
	OutputSizeGen       *gcfg.ValueGenerator
	NumCores            int

	DefaultHotLifetime  core.Tick
	DefaultColdLifetime core.Tick

	Manager *xfer.BandwidthManager
	Rucio   *core.Rucio
	IDGen   *core.IDGen
	Rng     *rand.Rand
	Sink    output.Sink

	// archiveByPopularity groups archive files by Popularity so the
	// preparation phase computes each group's weighted pre-staging chance
	// once per group; prepare still visits every archive file each tick
	// (spec.md: "popularity-indexed maps").
	archiveByPopularity map[uint32][]*core.File

	// skipCount tracks, per archive file, how many preparation-phase ticks
	// in a row it was rolled for and not chosen; each skip linearly raises
	// its selection chance next time so cold fills with a diverse set of
	// popular files instead of repeatedly rolling the same few (original:
	// TransferGenerators.cpp's preparation-phase decay).
	skipCount map[core.ID]int

	// waitingForSameFile coalesces jobs that are all blocked on the same
	// in-flight cold->hot stage-in so only one transfer is created per file.
	waitingForSameFile map[core.ID][]*hcdcJob

	// pendingDeletions defers removal of a fully-consumed hot replica until
	// a cold slot is free to receive it first, keyed by the tick the
	// deferred hot->cold stage-out was scheduled at (spec.md: "a
	// pending_deletions map indexed by expiry Tick").
	pendingDeletions map[core.Tick][]*core.Replica

	accumSubmit float64
	jobs        []*hcdcJob

	pi *output.PreparedInsert
}

func NewHCDCTransferGen(idgen *core.IDGen, rucio *core.Rucio, mgr *xfer.BandwidthManager, sink output.Sink, rng *rand.Rand) (*HCDCTransferGen, error) {
	pi, err := sink.PrepareInsert("Traces", tracesColumns, '?')
	if err != nil {
		return nil, err
	}
	return &HCDCTransferGen{
		Base:                sched.NewBase("hcdc-transfer-gen", 0),
		Manager:             mgr,
		Rucio:               rucio,
		IDGen:               idgen,
		Rng:                 rng,
		Sink:                sink,
		archiveByPopularity: make(map[uint32][]*core.File),
		skipCount:           make(map[core.ID]int),
		waitingForSameFile:  make(map[core.ID][]*hcdcJob),
		pendingDeletions:    make(map[core.Tick][]*core.Replica),
		pi:                  pi,
	}, nil
}

// TrackArchiveFile registers a file as available in the archive tier for
// popularity-weighted preparation-phase sampling.
func (g *HCDCTransferGen) TrackArchiveFile(f *core.File) {
	g.archiveByPopularity[f.Popularity] = append(g.archiveByPopularity[f.Popularity], f)
}

func (g *HCDCTransferGen) OnUpdate(now core.Tick) {
	if now < g.ProductionStartTime {
		g.prepare(now)
		g.Rearm(now + 1)
		return
	}

	g.submitJobs(now)
	g.progressWaitingLocks(now)
	g.activateQueued(now)
	g.progressDownloading(now)
	g.progressRunning(now)
	g.progressUploading(now)
	g.drainPendingDeletions(now)
	g.Rearm(now + 1)
}

// hcdcSkipDecayStep is how much a file's preparation-phase selection chance
// rises for every tick it is rolled for and not chosen (supplemented
// feature, see SPEC_FULL.md §6: "decays a file's pre-staging probability
// each time it is not chosen").
const hcdcSkipDecayStep = 0.05

// prepare runs during the preparation phase: popular archive files are
// pre-staged into cold storage with probability weighted by popularity,
// decayed by skipCount so repeatedly-skipped files eventually get a turn
// instead of the same few popular files being rolled forever (spec.md
// §4.5.5; SPEC_FULL.md §6).
func (g *HCDCTransferGen) prepare(now core.Tick) {
	for pop, files := range g.archiveByPopularity {
		base := float64(pop) / float64(pop+1)
		for _, f := range files {
			if g.Cold.HasReplicaOf(f.ID) {
				delete(g.skipCount, f.ID)
				continue
			}
			chance := base + hcdcSkipDecayStep*float64(g.skipCount[f.ID])
			if chance > 1 {
				chance = 1
			}
			if g.Rng.Float64() > chance {
				g.skipCount[f.ID]++
				continue
			}
			delete(g.skipCount, f.ID)
			if r, err := g.Cold.CreateReplica(f, now, g.IDGen); err == nil {
				r.Increase(r.File.Size, now)
				r.ExpiresAt = now + g.DefaultColdLifetime
			}
		}
	}
}

func (g *HCDCTransferGen) submitJobs(now core.Tick) {
	n := fracAccumulate(&g.accumSubmit, g.NumJobSubmissionGen.Sample(g.Rng))
	if n <= 0 {
		return
	}
	files := g.Rucio.Files()
	if len(files) == 0 {
		return
	}
	total := uint64(0)
	for _, f := range files {
		total += uint64(f.Popularity)
	}
	if total == 0 {
		return
	}
	for i := 0; i < n; i++ {
		f := weightedPickFile(g.Rng, files, total)
		if f == nil {
			continue
		}
		g.jobs = append(g.jobs, &hcdcJob{state: hcdcWaitingLock, file: f})
	}
}

func weightedPickFile(rng *rand.Rand, files []*core.File, total uint64) *core.File {
	target := uint64(rng.Int63n(int64(total))) + 1
	var acc uint64
	for _, f := range files {
		acc += uint64(f.Popularity)
		if acc >= target {
			return f
		}
	}
	return files[len(files)-1]
}

// progressWaitingLocks tries to lock each waiting job's input replica on
// hot storage. If present, it moves straight to Queued. If absent but
// present on cold, it enqueues a single cold->hot transfer per file,
// coalescing further waiters behind waitingForSameFile.
func (g *HCDCTransferGen) progressWaitingLocks(now core.Tick) {
	var remaining []*hcdcJob
	for _, j := range g.jobs {
		if j.state != hcdcWaitingLock {
			remaining = append(remaining, j)
			continue
		}
		if hot := g.Hot.ReplicaOf(j.file.ID); hot != nil && hot.IsComplete() {
			hot.UsageCounter++
			j.hotReplica = hot
			j.state = hcdcQueued
			remaining = append(remaining, j)
			continue
		}
		if waiters, already := g.waitingForSameFile[j.file.ID]; already {
			g.waitingForSameFile[j.file.ID] = append(waiters, j)
			continue // stays out of `remaining` until the stage-in resolves
		}
		cold := g.Cold.ReplicaOf(j.file.ID)
		if cold == nil || !cold.IsComplete() {
			remaining = append(remaining, j) // neither tier has it; try again next tick
			continue
		}
		hotRepl, err := g.Hot.CreateReplica(j.file, now, g.IDGen)
		if err != nil {
			remaining = append(remaining, j)
			continue
		}
		hotRepl.ExpiresAt = now + g.DefaultHotLifetime
		t, ok := g.Manager.CreateTransfer(cold, hotRepl, now, false)
		if !ok {
			g.Hot.RemoveReplica(hotRepl, now, false)
			remaining = append(remaining, j)
			continue
		}
		j.coldToHot = t
		g.waitingForSameFile[j.file.ID] = []*hcdcJob{j}
	}
	g.jobs = remaining
	g.resolveStageIns(now)
}

// resolveStageIns moves every waiter whose cold->hot transfer has
// completed back into the active job list, locked onto the new hot
// replica.
func (g *HCDCTransferGen) resolveStageIns(now core.Tick) {
	for fileID, waiters := range g.waitingForSameFile {
		lead := waiters[0]
		if lead.coldToHot == nil {
			continue
		}
		hot := g.Hot.ReplicaOf(fileID)
		if hot == nil || !hot.IsComplete() {
			continue
		}
		for _, w := range waiters {
			hot.UsageCounter++
			w.hotReplica = hot
			w.coldToHot = nil
			w.state = hcdcQueued
			g.jobs = append(g.jobs, w)
		}
		delete(g.waitingForSameFile, fileID)
	}
}

func (g *HCDCTransferGen) numActive() int {
	n := 0
	for _, j := range g.jobs {
		if j.state == hcdcDownloading || j.state == hcdcRunning || j.state == hcdcUploading {
			n++
		}
	}
	return n
}

func (g *HCDCTransferGen) activateQueued(now core.Tick) {
	free := g.NumCores - g.numActive()
	if free <= 0 {
		return
	}
	for _, j := range g.jobs {
		if free <= 0 {
			break
		}
		if j.state != hcdcQueued {
			continue
		}
		j.state = hcdcDownloading
		g.HotCPULink.IncActive()
		free--
	}
}

func (g *HCDCTransferGen) progressDownloading(now core.Tick) {
	bw := g.HotCPULink.PerTransferBandwidth()
	for _, j := range g.jobs {
		if j.state != hcdcDownloading {
			continue
		}
		applied := bw
		remaining := j.hotReplica.File.Size - j.downloadedBytes
		if applied > remaining {
			applied = remaining
		}
		j.downloadedBytes += applied
		g.HotCPULink.AddTraffic(applied)
		if j.downloadedBytes < j.hotReplica.File.Size {
			continue
		}
		g.HotCPULink.DecActive()
		j.state = hcdcRunning
		j.runDuration = core.Tick(g.JobDurationGen.Sample(g.Rng))
		if j.runDuration < 1 {
			j.runDuration = 1
		}
	}
}

func (g *HCDCTransferGen) progressRunning(now core.Tick) {
	for _, j := range g.jobs {
		if j.state != hcdcRunning {
			continue
		}
		j.runElapsed++
		if j.runElapsed < j.runDuration {
			continue
		}
		g.startUploads(j, now)
	}
}

func (g *HCDCTransferGen) startUploads(j *hcdcJob, now core.Tick) {
	n := int(g.NumOutputGen.Sample(g.Rng))
	if n < 1 {
		n = 1
	}
	j.state = hcdcUploading
	for i := 0; i < n; i++ {
		size := core.Space(g.OutputSizeGen.Sample(g.Rng))
		if size < 1 {
			size = 1
		}
		f := g.Rucio.CreateFile(size, now, core.SecondsPerDay)
		r, err := g.Output.CreateReplica(f, now, g.IDGen)
		if err != nil {
			continue
		}
		g.CPUOutLink.IncActive()
		j.uploads = append(j.uploads, &ioUpload{replica: r, startedAt: now})
	}
}

func (g *HCDCTransferGen) progressUploading(now core.Tick) {
	var active []*ioUpload
	for _, j := range g.jobs {
		if j.state == hcdcUploading {
			active = append(active, j.uploads...)
		}
	}
	if len(active) > 0 {
		bw := g.CPUOutLink.PerTransferBandwidth()
		for _, u := range active {
			applied := u.replica.Increase(bw, now)
			g.CPUOutLink.AddTraffic(applied)
			if u.replica.IsComplete() {
				g.CPUOutLink.DecActive()
			}
		}
	}

	var remaining []*hcdcJob
	for _, j := range g.jobs {
		if j.state != hcdcUploading {
			remaining = append(remaining, j)
			continue
		}
		pending := j.uploads[:0]
		for _, u := range j.uploads {
			if !u.replica.IsComplete() {
				pending = append(pending, u)
			}
		}
		j.uploads = pending
		if len(j.uploads) > 0 {
			remaining = append(remaining, j)
			continue
		}
		g.retireHotReplicaIfDone(j.hotReplica, now)
	}
	g.jobs = remaining
}

// retireHotReplicaIfDone checks whether hot's usage counter reached the
// file's popularity — every planned consumer has run — and if so queues it
// for deletion, deferred behind a hot->cold stage-out when cold has no
// room (spec.md §4.5.5 step 4).
func (g *HCDCTransferGen) retireHotReplicaIfDone(hot *core.Replica, now core.Tick) {
	if hot.UsageCounter < hot.File.Popularity {
		return
	}
	if g.Cold.HasReplicaOf(hot.File.ID) {
		g.Hot.RemoveReplica(hot, now, false)
		return
	}
	coldRepl, err := g.Cold.CreateReplica(hot.File, now, g.IDGen)
	if err != nil {
		// Cold has no room: defer the deletion and retry each tick via
		// drainPendingDeletions.
		g.pendingDeletions[now+1] = append(g.pendingDeletions[now+1], hot)
		return
	}
	coldRepl.ExpiresAt = now + g.DefaultColdLifetime
	if _, ok := g.Manager.CreateTransfer(hot, coldRepl, now, true); !ok {
		g.Cold.RemoveReplica(coldRepl, now, false)
		g.pendingDeletions[now+1] = append(g.pendingDeletions[now+1], hot)
	}
}

func (g *HCDCTransferGen) drainPendingDeletions(now core.Tick) {
	due, ok := g.pendingDeletions[now]
	if !ok {
		return
	}
	delete(g.pendingDeletions, now)
	for _, hot := range due {
		g.retireHotReplicaIfDone(hot, now)
	}
}

func (g *HCDCTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("hcdc-transfer-gen: shutdown at tick %d", now)
}
