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
	"github.com/golang/glog"
)

// ioJobState is the three-stage pipeline a JobIOTransferGen job passes
// through: cloud/disk input read, CPU-bound run, output write (spec.md
// §4.5.4).
type ioJobState uint8

const (
	ioDownloading ioJobState = iota
	ioRunning
	ioUploading
)

type ioUpload struct {
	replica   *core.Replica
	startedAt core.Tick
}

type ioJob struct {
	state ioJobState

	diskReplica   *core.Replica
	readRemaining core.Space
	readStartedAt core.Tick

	runDuration core.Tick
	runElapsed  core.Tick

	uploads []*ioUpload
}

// JobIOSite is one site's I/O-bound job pipeline: cloud storage -> disk ->
// CPU -> output, with a fixed core budget admitting new jobs.
type JobIOSite struct {
	Disk   *core.StorageElement
	Output *core.StorageElement

	DiskCPULink   *core.NetworkLink
	CPUOutputLink *core.NetworkLink

	CloudSources []*core.StorageElement // candidate sources to pre-stage new disk replicas from

	NumCores           int
	CoreFillRate       *gcfg.ValueGenerator
	DiskLimitThreshold float64 // fraction of Disk.Limit; below this, opportunistically pre-stage

	JobDurationGen *gcfg.ValueGenerator
	NumOutputGen   *gcfg.ValueGenerator
	OutputSizeGen  *gcfg.ValueGenerator

	accumFill float64
	jobs      []*ioJob
}

func (s *JobIOSite) numActive() int { return len(s.jobs) }

// JobIOTransferGen drives every configured JobIOSite's per-tick pipeline
// progress and emits Traces rows to sink.
type JobIOTransferGen struct {
	sched.Base

	Sites []*JobIOSite
	Rucio *core.Rucio
	IDGen *core.IDGen
	Rng   *rand.Rand

	Sink output.Sink
	pi   *output.PreparedInsert
}

func NewJobIOTransferGen(sites []*JobIOSite, rucio *core.Rucio, idgen *core.IDGen, rng *rand.Rand, sink output.Sink) (*JobIOTransferGen, error) {
	pi, err := sink.PrepareInsert("Traces", tracesColumns, '?')
	if err != nil {
		return nil, err
	}
	return &JobIOTransferGen{
		Base:  sched.NewBase("job-io-transfer-gen", 0),
		Sites: sites,
		Rucio: rucio,
		IDGen: idgen,
		Rng:   rng,
		Sink:  sink,
		pi:    pi,
	}, nil
}

var tracesColumns = []string{
	"id", "job_id", "storage_id", "file_id", "replica_id",
	"type", "started_at", "finished_at", "traffic",
}

const (
	traceTypeRead  = "READ"
	traceTypeWrite = "WRITE"
)

func (g *JobIOTransferGen) OnUpdate(now core.Tick) {
	vc := g.pi.CreateValuesContainer(len(g.Sites))
	for _, site := range g.Sites {
		g.progressDownloads(site, now, vc)
		g.progressRunning(site, now)
		g.progressUploads(site, now, vc)
		g.startNewJobs(site, now)
		g.maybePrestage(site, now)
	}
	if !vc.IsEmpty() {
		if err := g.Sink.QueueInserts(g.pi, vc); err != nil {
			glog.Errorf("job-io-transfer-gen: queue inserts: %v", err)
		}
	}
	g.Rearm(now + 1)
}

func (g *JobIOTransferGen) progressDownloads(site *JobIOSite, now core.Tick, vc *output.ValuesContainer) {
	var active []*ioJob
	for _, j := range site.jobs {
		if j.state == ioDownloading {
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		return
	}
	bw := site.DiskCPULink.PerTransferBandwidth()
	for _, j := range active {
		delta := bw
		if delta > j.readRemaining {
			delta = j.readRemaining
		}
		j.readRemaining -= delta
		site.DiskCPULink.AddTraffic(delta)
		if j.readRemaining > 0 {
			continue
		}
		site.DiskCPULink.DecActive()
		j.diskReplica.NumStagedIn++
		j.state = ioRunning
		j.runDuration = core.Tick(g.JobDurationGen.Sample(g.Rng))
		if j.runDuration < 1 {
			j.runDuration = 1
		}
		vc.AddValue(output.U64(uint64(g.IDGen.Next())))
		vc.AddValue(output.U64(0))
		vc.AddValue(output.U64(uint64(site.Disk.ID)))
		vc.AddValue(output.U64(uint64(j.diskReplica.File.ID)))
		vc.AddValue(output.U64(uint64(j.diskReplica.ID)))
		vc.AddValue(output.Str(traceTypeRead))
		vc.AddValue(output.U64(uint64(j.readStartedAt)))
		vc.AddValue(output.U64(uint64(now)))
		vc.AddValue(output.U64(uint64(j.diskReplica.File.Size)))
	}
}

func (g *JobIOTransferGen) progressRunning(site *JobIOSite, now core.Tick) {
	for _, j := range site.jobs {
		if j.state != ioRunning {
			continue
		}
		j.runElapsed++
		if j.runElapsed < j.runDuration {
			continue
		}
		g.startUploads(site, j, now)
	}
}

func (g *JobIOTransferGen) startUploads(site *JobIOSite, j *ioJob, now core.Tick) {
	n := int(g.NumOutputGen.Sample(g.Rng))
	if n < 1 {
		n = 1
	}
	j.state = ioUploading
	for i := 0; i < n; i++ {
		size := core.Space(g.OutputSizeGen.Sample(g.Rng))
		if size < 1 {
			size = 1
		}
		f := g.Rucio.CreateFile(size, now, core.SecondsPerDay)
		r, err := site.Output.CreateReplica(f, now, g.IDGen)
		if err != nil {
			continue
		}
		site.CPUOutputLink.IncActive()
		j.uploads = append(j.uploads, &ioUpload{replica: r, startedAt: now})
	}
	if len(j.uploads) == 0 {
		g.finishJob(site, j)
	}
}

func (g *JobIOTransferGen) progressUploads(site *JobIOSite, now core.Tick, vc *output.ValuesContainer) {
	var active []*ioUpload
	for _, j := range site.jobs {
		if j.state == ioUploading {
			active = append(active, j.uploads...)
		}
	}
	if len(active) == 0 {
		return
	}
	bw := site.CPUOutputLink.PerTransferBandwidth()
	for _, u := range active {
		applied := u.replica.Increase(bw, now)
		site.CPUOutputLink.AddTraffic(applied)
		if !u.replica.IsComplete() {
			continue
		}
		site.CPUOutputLink.DecActive()
		vc.AddValue(output.U64(uint64(g.IDGen.Next())))
		vc.AddValue(output.U64(0))
		vc.AddValue(output.U64(uint64(site.Output.ID)))
		vc.AddValue(output.U64(uint64(u.replica.File.ID)))
		vc.AddValue(output.U64(uint64(u.replica.ID)))
		vc.AddValue(output.Str(traceTypeWrite))
		vc.AddValue(output.U64(uint64(u.startedAt)))
		vc.AddValue(output.U64(uint64(now)))
		vc.AddValue(output.U64(uint64(u.replica.File.Size)))
	}

	for _, j := range site.jobs {
		if j.state != ioUploading {
			continue
		}
		remaining := j.uploads[:0]
		for _, u := range j.uploads {
			if !u.replica.IsComplete() {
				remaining = append(remaining, u)
			}
		}
		j.uploads = remaining
		if len(j.uploads) == 0 {
			g.finishJob(site, j)
		}
	}
}

func (g *JobIOTransferGen) finishJob(site *JobIOSite, done *ioJob) {
	kept := site.jobs[:0]
	for _, j := range site.jobs {
		if j != done {
			kept = append(kept, j)
		}
	}
	site.jobs = kept
}

func (g *JobIOTransferGen) startNewJobs(site *JobIOSite, now core.Tick) {
	free := site.NumCores - site.numActive()
	if free <= 0 {
		return
	}
	n := fracAccumulate(&site.accumFill, site.CoreFillRate.Sample(g.Rng))
	if n > free {
		n = free
	}
	if n <= 0 {
		return
	}

	var eligible []*core.Replica
	for _, r := range site.Disk.Replicas() {
		if r.IsComplete() && r.NumStagedIn < r.File.Popularity {
			eligible = append(eligible, r)
		}
	}
	for _, r := range pickNUniform(g.Rng, eligible, n) {
		site.DiskCPULink.IncActive()
		site.jobs = append(site.jobs, &ioJob{
			state:         ioDownloading,
			diskReplica:   r,
			readRemaining: r.File.Size,
			readStartedAt: now,
		})
	}
}

// maybePrestage pulls a new replica from a cloud source onto disk whenever
// disk usage falls under the configured threshold, so future jobs have
// input available without blocking on a cold pull (spec.md §4.5.4).
func (g *JobIOTransferGen) maybePrestage(site *JobIOSite, now core.Tick) {
	if site.Disk.Limit == 0 {
		return
	}
	usedFrac := float64(site.Disk.Used()+site.Disk.Allocated()) / float64(site.Disk.Limit)
	if usedFrac >= site.DiskLimitThreshold {
		return
	}
	for _, src := range site.CloudSources {
		for _, r := range completedReplicas(src) {
			if site.Disk.HasReplicaOf(r.File.ID) {
				continue
			}
			if staged, err := site.Disk.CreateReplica(r.File, now, g.IDGen); err == nil {
				// Pre-staging is treated as an instantaneous copy rather
				// than a tracked transfer: it exists to keep jobs fed with
				// disk-local input, not to be billed or logged as traffic.
				staged.Increase(staged.File.Size, now)
				return
			}
		}
	}
}

func (g *JobIOTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("job-io-transfer-gen: shutdown at tick %d", now)
}
