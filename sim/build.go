/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sim

import (
	"encoding/json"

	"github.com/gacspp/gacsim/cloud"
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/datagen"
	"github.com/gacspp/gacsim/gcfg"
	"github.com/gacspp/gacsim/output"
	"github.com/gacspp/gacsim/reaper"
	"github.com/gacspp/gacsim/stats"
	"github.com/gacspp/gacsim/xfer"
	"github.com/gacspp/gacsim/xfergen"
)

// Build constructs a Simulation from a decoded profile config (spec.md §6),
// wiring Rucio's sites/storage elements/links, every configured Cloud,
// every transfer manager and transfer generator named in pc.TransferCfgs,
// every data generator, the reaper, and a heartbeat. It switches on
// SchedulableConfig.Type directly rather than going through a string-keyed
// registry for generators, since each generator's config payload has a
// materially different shape (DESIGN.md "xfergen" ledger entry).
func Build(sink output.Sink, seed int64, pc *gcfg.ProfileConfig) (*Simulation, error) {
	for table, cols := range output.RequiredTables() {
		if err := sink.CreateTable(table, cols); err != nil {
			return nil, err
		}
	}

	s := New(sink, seed)
	s.MaxTick = core.Tick(pc.MaxTick)
	s.Rucio = core.NewRucio(s.IDGen)

	rowSink, err := newRowSinkListener(sink)
	if err != nil {
		return nil, err
	}
	s.Rucio.AddListener(rowSink)

	if err := s.buildRucio(pc.Rucio, rowSink); err != nil {
		return nil, err
	}
	for _, cc := range pc.Clouds {
		c, err := cloud.Build(cc.ID, cc.Name, cc.Config, s.IDGen, s.Rucio)
		if err != nil {
			return nil, err
		}
		for _, region := range c.Regions {
			for _, b := range region.Buckets() {
				b.StorageElement.AddListener(rowSink)
			}
		}
		s.Clouds = append(s.Clouds, c)
	}
	if err := s.buildLinks(pc.Links); err != nil {
		return nil, err
	}
	if err := s.emitTopologyRows(); err != nil {
		return nil, err
	}

	if err := s.buildTransferCfgs(pc.TransferCfgs); err != nil {
		return nil, err
	}
	if err := s.buildDataGens(pc.DataGens); err != nil {
		return nil, err
	}
	if err := s.buildReaper(pc.Reaper); err != nil {
		return nil, err
	}
	if err := s.buildBilling(); err != nil {
		return nil, err
	}
	s.buildHeartbeat()

	return s, nil
}

func (s *Simulation) buildRucio(rc gcfg.RucioConfig, rowSink *rowSinkListener) error {
	for _, siteCfg := range rc.Sites {
		site := core.NewGridSite(s.IDGen.Next(), siteCfg.Name, siteCfg.LocationName, siteCfg.MultiLocationIdx)
		site.CustomConfig = siteCfg.CustomConfig
		for _, seCfg := range siteCfg.StorageElements {
			se := site.CreateStorageElement(s.IDGen.Next(), seCfg.Name)
			se.Limit = core.Space(seCfg.Limit)
			if seCfg.AllowDuplicateReplicas {
				se.Policy = core.AllowDuplicateReplicas
			} else {
				se.Policy = core.UniqueReplicaPerFile
			}
			if len(seCfg.AccessLatency) > 0 {
				vg, err := gcfg.UnmarshalValueGenerator(seCfg.AccessLatency)
				if err != nil {
					return err
				}
				se.AccessLatency = func() float64 { return vg.Sample(s.Rng) }
			}
			se.AddListener(rowSink)
		}
		s.Rucio.AddGridSite(site)
	}
	return nil
}

func (s *Simulation) buildLinks(links map[string]map[string]gcfg.LinkConfig) error {
	for srcName, dsts := range links {
		src, ok := s.Rucio.GetStorageElementByName(srcName)
		if !ok {
			return gcfg.Errorf("links", "unknown source storage element %q", srcName)
		}
		for dstName, lc := range dsts {
			dst, ok := s.Rucio.GetStorageElementByName(dstName)
			if !ok {
				return gcfg.Errorf("links["+srcName+"]", "unknown destination storage element %q", dstName)
			}
			link := src.CreateNetworkLink(s.IDGen.Next(), dst, core.Space(lc.Bandwidth))
			link.IsThroughput = lc.Throughput
			link.MaxNumActiveTransfers = lc.MaxActiveTransfers
		}
	}
	return nil
}

// transferCfgEntry is the superset payload used by both manager-kind and
// generator-kind entries of pc.TransferCfgs: "name" identifies a manager so
// a later generator entry can reference it via "manager"; every other field
// is read only by the constructor matching its Type.
type transferCfgEntry struct {
	Name    string `json:"name"`
	Manager string `json:"manager"`

	Routes []struct {
		Src           string          `json:"src"`
		Dst           string          `json:"dst"`
		NumToGenerate json.RawMessage `json:"numToGenerate"`
	} `json:"routes"`

	CloudBufferRoutes []struct {
		Src                 string          `json:"src"`
		ReusageNumGen       json.RawMessage `json:"reusageNumGen"`
		PrimaryLink         string          `json:"primaryLink"`
		SecondaryLink       string          `json:"secondaryLink"`
		DeleteSrcOnComplete bool            `json:"deleteSrcOnComplete"`
	} `json:"cloudBufferRoutes"`

	BinRatios              []float64 `json:"binRatios"`
	Caches                 []string  `json:"caches"`
	Sources                []string  `json:"sources"`
	DefaultReplicaLifetime uint64    `json:"defaultReplicaLifetime"`
	CacheReplicaLifetime   uint64    `json:"cacheReplicaLifetime"`
	Dsts                   []struct {
		Dst       string  `json:"dst"`
		NumPerDay float64 `json:"numPerDay"`
	} `json:"dsts"`

	JobIOSites []struct {
		Disk               string          `json:"disk"`
		Output             string          `json:"output"`
		DiskCPULink        string          `json:"diskCpuLink"`
		CPUOutputLink      string          `json:"cpuOutputLink"`
		CloudSources       []string        `json:"cloudSources"`
		NumCores           int             `json:"numCores"`
		CoreFillRate       json.RawMessage `json:"coreFillRate"`
		DiskLimitThreshold float64         `json:"diskLimitThreshold"`
		JobDurationGen     json.RawMessage `json:"jobDurationGen"`
		NumOutputGen       json.RawMessage `json:"numOutputGen"`
		OutputSizeGen      json.RawMessage `json:"outputSizeGen"`
	} `json:"jobIOSites"`

	Archive             string          `json:"archive"`
	Cold                string          `json:"cold"`
	Hot                 string          `json:"hot"`
	Output              string          `json:"output"`
	HotCPULink          string          `json:"hotCpuLink"`
	CPUOutLink          string          `json:"cpuOutLink"`
	ProductionStartTime uint64          `json:"productionStartTime"`
	NumJobSubmissionGen json.RawMessage `json:"numJobSubmissionGen"`
	JobDurationGen      json.RawMessage `json:"jobDurationGen"`
	NumOutputGen        json.RawMessage `json:"numOutputGen"`
	OutputSizeGen       json.RawMessage `json:"outputSizeGen"`
	NumCores            int             `json:"numCores"`
	DefaultHotLifetime  uint64          `json:"defaultHotLifetime"`
	DefaultColdLifetime uint64          `json:"defaultColdLifetime"`

	JobSlotDsts []struct {
		Dst      string `json:"dst"`
		MaxSlots int    `json:"maxSlots"`
	} `json:"jobSlotDsts"`
	JobSlotSources []struct {
		SE       string `json:"se"`
		Priority int    `json:"priority"`
	} `json:"jobSlotSources"`
}

func (s *Simulation) storageElement(name string) (*core.StorageElement, error) {
	se, ok := s.Rucio.GetStorageElementByName(name)
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "unknown storage element %q", name)
	}
	return se, nil
}

func (s *Simulation) link(srcName, dstName string) (*core.NetworkLink, error) {
	if dstName == "" {
		return nil, nil
	}
	src, err := s.storageElement(srcName)
	if err != nil {
		return nil, err
	}
	dst, err := s.storageElement(dstName)
	if err != nil {
		return nil, err
	}
	link, ok := src.GetNetworkLink(dst)
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "no link %s -> %s", srcName, dstName)
	}
	return link, nil
}

func (s *Simulation) valueGen(raw json.RawMessage) (*gcfg.ValueGenerator, error) {
	if len(raw) == 0 {
		return gcfg.Fixed(0), nil
	}
	return gcfg.UnmarshalValueGenerator(raw)
}

// buildTransferCfgs processes pc.TransferCfgs in two passes: managers first
// (so generator entries can resolve a manager by name), then generators.
func (s *Simulation) buildTransferCfgs(cfgs []gcfg.SchedulableConfig) error {
	for _, sc := range cfgs {
		if sc.Type != xfer.KindBandwidth && sc.Type != xfer.KindFixedTime {
			continue
		}
		var entry transferCfgEntry
		if len(sc.Config) > 0 {
			if err := jsonUnmarshal(sc.Config, &entry); err != nil {
				return err
			}
		}
		mgr, err := xfer.Build(sc.Type, s.IDGen, s.Sink)
		if err != nil {
			return err
		}
		name := entry.Name
		if name == "" {
			name = sc.Type
		}
		s.Managers[name] = mgr
		s.Scheduler.Add(mgr)
	}

	for _, sc := range cfgs {
		switch sc.Type {
		case xfer.KindBandwidth, xfer.KindFixedTime:
			continue
		}
		if err := s.buildOneGenerator(sc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) bandwidthManager(name string) (*xfer.BandwidthManager, error) {
	mgr, ok := s.Managers[name]
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "unknown manager %q", name)
	}
	bm, ok := mgr.(*xfer.BandwidthManager)
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "manager %q is not a bandwidth manager", name)
	}
	return bm, nil
}

func (s *Simulation) fixedTimeManager(name string) (*xfer.FixedTimeManager, error) {
	mgr, ok := s.Managers[name]
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "unknown manager %q", name)
	}
	fm, ok := mgr.(*xfer.FixedTimeManager)
	if !ok {
		return nil, gcfg.Errorf("transferCfgs", "manager %q is not a fixed-time manager", name)
	}
	return fm, nil
}

func (s *Simulation) buildOneGenerator(sc gcfg.SchedulableConfig) error {
	var entry transferCfgEntry
	if len(sc.Config) > 0 {
		if err := jsonUnmarshal(sc.Config, &entry); err != nil {
			return err
		}
	}
	tickFreq := core.Tick(sc.TickFreq)
	if tickFreq == 0 {
		tickFreq = 1
	}

	switch sc.Type {
	case "fixed":
		bm, err := s.bandwidthManager(entry.Manager)
		if err != nil {
			return err
		}
		routes := make([]*xfergen.FixedRoute, 0, len(entry.Routes))
		for _, rc := range entry.Routes {
			src, err := s.storageElement(rc.Src)
			if err != nil {
				return err
			}
			dst, err := s.storageElement(rc.Dst)
			if err != nil {
				return err
			}
			vg, err := s.valueGen(rc.NumToGenerate)
			if err != nil {
				return err
			}
			routes = append(routes, &xfergen.FixedRoute{Src: src, Dst: dst, NumToGenerate: vg})
		}
		gen := xfergen.NewFixedTransferGen(routes, bm, s.IDGen, s.Rng, tickFreq)
		s.Scheduler.Add(gen)

	case "cloudBuffer":
		bm, err := s.bandwidthManager(entry.Manager)
		if err != nil {
			return err
		}
		routes := make([]*xfergen.CloudBufferRoute, 0, len(entry.CloudBufferRoutes))
		for _, rc := range entry.CloudBufferRoutes {
			src, err := s.storageElement(rc.Src)
			if err != nil {
				return err
			}
			primary, err := s.link(rc.Src, primaryDstFromLink(rc.PrimaryLink))
			if err != nil {
				return err
			}
			secondary, err := s.link(rc.Src, primaryDstFromLink(rc.SecondaryLink))
			if err != nil {
				return err
			}
			vg, err := s.valueGen(rc.ReusageNumGen)
			if err != nil {
				return err
			}
			routes = append(routes, &xfergen.CloudBufferRoute{
				Src: src, ReusageNumGen: vg, PrimaryLink: primary, SecondaryLink: secondary,
				DeleteSrcOnComplete: rc.DeleteSrcOnComplete,
			})
		}
		gen := xfergen.NewCloudBufferTransferGen(routes, bm, s.IDGen, s.Rng)
		s.Scheduler.Add(gen)

	case "cachedSrc":
		fm, err := s.fixedTimeManager(entry.Manager)
		if err != nil {
			return err
		}
		dsts := make([]*xfergen.CachedSrcDst, 0, len(entry.Dsts))
		for _, dc := range entry.Dsts {
			dst, err := s.storageElement(dc.Dst)
			if err != nil {
				return err
			}
			dsts = append(dsts, &xfergen.CachedSrcDst{Dst: dst, NumPerDay: dc.NumPerDay})
		}
		caches, err := s.storageElements(entry.Caches)
		if err != nil {
			return err
		}
		sources, err := s.storageElements(entry.Sources)
		if err != nil {
			return err
		}
		gen := xfergen.NewCachedSrcTransferGen(entry.BinRatios, dsts, caches, sources, fm, s.Rucio, s.IDGen, s.Rng,
			tickFreq, core.Tick(entry.DefaultReplicaLifetime), core.Tick(entry.CacheReplicaLifetime))
		s.Scheduler.Add(gen)

	case "jobIO":
		sites := make([]*xfergen.JobIOSite, 0, len(entry.JobIOSites))
		for _, jc := range entry.JobIOSites {
			disk, err := s.storageElement(jc.Disk)
			if err != nil {
				return err
			}
			out, err := s.storageElement(jc.Output)
			if err != nil {
				return err
			}
			diskCPU, err := s.link(jc.Disk, peerName(jc.DiskCPULink, jc.Disk))
			if err != nil {
				return err
			}
			cpuOut, err := s.link(jc.Disk, peerName(jc.CPUOutputLink, jc.Output))
			if err != nil {
				return err
			}
			cloudSrcs, err := s.storageElements(jc.CloudSources)
			if err != nil {
				return err
			}
			fillRate, err := s.valueGen(jc.CoreFillRate)
			if err != nil {
				return err
			}
			durGen, err := s.valueGen(jc.JobDurationGen)
			if err != nil {
				return err
			}
			numOutGen, err := s.valueGen(jc.NumOutputGen)
			if err != nil {
				return err
			}
			outSizeGen, err := s.valueGen(jc.OutputSizeGen)
			if err != nil {
				return err
			}
			sites = append(sites, &xfergen.JobIOSite{
				Disk: disk, Output: out, DiskCPULink: diskCPU, CPUOutputLink: cpuOut,
				CloudSources: cloudSrcs, NumCores: jc.NumCores, CoreFillRate: fillRate,
				DiskLimitThreshold: jc.DiskLimitThreshold, JobDurationGen: durGen,
				NumOutputGen: numOutGen, OutputSizeGen: outSizeGen,
			})
		}
		gen, err := xfergen.NewJobIOTransferGen(sites, s.Rucio, s.IDGen, s.Rng, s.Sink)
		if err != nil {
			return err
		}
		s.Scheduler.Add(gen)

	case "hcdc":
		bm, err := s.bandwidthManager(entry.Manager)
		if err != nil {
			return err
		}
		gen, err := xfergen.NewHCDCTransferGen(s.IDGen, s.Rucio, bm, s.Sink, s.Rng)
		if err != nil {
			return err
		}
		archive, err := s.storageElement(entry.Archive)
		if err != nil {
			return err
		}
		cold, err := s.storageElement(entry.Cold)
		if err != nil {
			return err
		}
		hot, err := s.storageElement(entry.Hot)
		if err != nil {
			return err
		}
		out, err := s.storageElement(entry.Output)
		if err != nil {
			return err
		}
		hotCPU, err := s.link(entry.Hot, peerName(entry.HotCPULink, entry.Hot))
		if err != nil {
			return err
		}
		cpuOut, err := s.link(entry.Hot, peerName(entry.CPUOutLink, entry.Output))
		if err != nil {
			return err
		}
		numSubGen, err := s.valueGen(entry.NumJobSubmissionGen)
		if err != nil {
			return err
		}
		durGen, err := s.valueGen(entry.JobDurationGen)
		if err != nil {
			return err
		}
		numOutGen, err := s.valueGen(entry.NumOutputGen)
		if err != nil {
			return err
		}
		outSizeGen, err := s.valueGen(entry.OutputSizeGen)
		if err != nil {
			return err
		}
		gen.Archive, gen.Cold, gen.Hot, gen.Output = archive, cold, hot, out
		gen.HotCPULink, gen.CPUOutLink = hotCPU, cpuOut
		gen.ProductionStartTime = core.Tick(entry.ProductionStartTime)
		gen.NumJobSubmissionGen, gen.JobDurationGen = numSubGen, durGen
		gen.NumOutputGen, gen.OutputSizeGen = numOutGen, outSizeGen
		gen.NumCores = entry.NumCores
		gen.DefaultHotLifetime = core.Tick(entry.DefaultHotLifetime)
		gen.DefaultColdLifetime = core.Tick(entry.DefaultColdLifetime)
		s.Scheduler.Add(gen)

	case "jobSlot":
		bm, err := s.bandwidthManager(entry.Manager)
		if err != nil {
			return err
		}
		dsts := make([]*xfergen.JobSlotDst, 0, len(entry.JobSlotDsts))
		for _, dc := range entry.JobSlotDsts {
			dst, err := s.storageElement(dc.Dst)
			if err != nil {
				return err
			}
			dsts = append(dsts, &xfergen.JobSlotDst{Dst: dst, MaxSlots: dc.MaxSlots})
		}
		sources := make([]*xfergen.JobSlotSource, 0, len(entry.JobSlotSources))
		for _, sc2 := range entry.JobSlotSources {
			se, err := s.storageElement(sc2.SE)
			if err != nil {
				return err
			}
			sources = append(sources, &xfergen.JobSlotSource{SE: se, Priority: sc2.Priority})
		}
		gen := xfergen.NewJobSlotTransferGen(dsts, sources, s.Rucio, bm, s.IDGen, s.Rng)
		s.Scheduler.Add(gen)

	default:
		return gcfg.Errorf("transferCfgs", "unknown schedulable type %q", sc.Type)
	}
	return nil
}

func (s *Simulation) storageElements(names []string) ([]*core.StorageElement, error) {
	out := make([]*core.StorageElement, 0, len(names))
	for _, n := range names {
		se, err := s.storageElement(n)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, nil
}

// peerName is a small helper for config entries that name a link only by
// its destination-side storage element (the source is implied by the
// surrounding site/job config).
func peerName(explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	return fallback
}

// primaryDstFromLink is a passthrough placeholder: cloud-buffer routes name
// a link by its destination storage element name directly.
func primaryDstFromLink(dstName string) string { return dstName }

func (s *Simulation) buildDataGens(cfgs []gcfg.SchedulableConfig) error {
	for _, sc := range cfgs {
		if err := s.buildOneDataGen(sc); err != nil {
			return err
		}
	}
	return nil
}

type dataGenCfg struct {
	Destinations    []string `json:"destinations"`
	Policy          string   `json:"policy"`
	NumFilesGen     json.RawMessage `json:"numFilesGen"`
	FileSizeGenGiB  json.RawMessage `json:"fileSizeGenGiB"`
	FileLifetimeGen json.RawMessage `json:"fileLifetimeGen"`
	NumReplicaRatio []float64       `json:"numReplicaRatio"`
}

func (s *Simulation) buildOneDataGen(sc gcfg.SchedulableConfig) error {
	var cfg dataGenCfg
	if len(sc.Config) > 0 {
		if err := jsonUnmarshal(sc.Config, &cfg); err != nil {
			return err
		}
	}
	dests, err := s.storageElements(cfg.Destinations)
	if err != nil {
		return err
	}
	policy := datagen.RoundRobin
	if cfg.Policy == "uniform" {
		policy = datagen.UniformRandom
	}
	numFiles, err := s.valueGen(cfg.NumFilesGen)
	if err != nil {
		return err
	}
	fileSize, err := s.valueGen(cfg.FileSizeGenGiB)
	if err != nil {
		return err
	}
	lifetime, err := s.valueGen(cfg.FileLifetimeGen)
	if err != nil {
		return err
	}
	tickFreq := core.Tick(sc.TickFreq)
	if tickFreq == 0 {
		tickFreq = 1
	}
	gen := datagen.New(s.Rucio, s.IDGen, s.Rng, dests, policy, numFiles, fileSize, lifetime, cfg.NumReplicaRatio, tickFreq)
	s.Scheduler.Add(gen)
	return nil
}

func (s *Simulation) buildReaper(sc gcfg.SchedulableConfig) error {
	tickFreq := core.Tick(sc.TickFreq)
	if tickFreq == 0 {
		tickFreq = core.SecondsPerDay
	}
	var cfg struct {
		Parallelism int `json:"parallelism"`
	}
	if len(sc.Config) > 0 {
		if err := jsonUnmarshal(sc.Config, &cfg); err != nil {
			return err
		}
	}
	r := reaper.New(s.Rucio, tickFreq, cfg.Parallelism)
	s.Reaper = r
	s.Scheduler.Add(r)
	return nil
}

func (s *Simulation) buildBilling() error {
	if len(s.Clouds) == 0 {
		return nil
	}
	bg, err := cloud.NewBillingGenerator(s.Clouds, s.Sink)
	if err != nil {
		return err
	}
	s.Scheduler.Add(bg)
	return nil
}

func (s *Simulation) buildHeartbeat() {
	managers := make([]xfer.Manager, 0, len(s.Managers))
	for _, m := range s.Managers {
		managers = append(managers, m)
	}
	hb := stats.NewHeartbeat(s.Scheduler, managers, core.SecondsPerDay, s.RunID)
	s.Heartbeat = hb
	s.Scheduler.Add(hb)
}

func jsonUnmarshal(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return gcfg.NewConfigError("transferCfgs", err)
	}
	return nil
}
