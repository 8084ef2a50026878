/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"encoding/binary"
	"math/rand"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// cacheBinFixedDuration is the fixed transfer length used for every
// cache-tier pull (spec.md §4.5.3 step 4: "enqueue a fixed-duration
// transfer of 60 ticks").
const cacheBinFixedDuration core.Tick = 60

// cacheBin is the i-th access-count bucket: files observed i+1 times.
type cacheBin struct {
	Ratio float64
	Files []*core.File
}

// CachedSrcDst is one destination this generator serves, sampling
// NumPerDay requests a (simulated) day across its bins.
type CachedSrcDst struct {
	Dst       *core.StorageElement
	NumPerDay float64
}

// CachedSrcTransferGen implements access-count-decay cache-aware source
// selection (spec.md §4.5.3): files migrate through bins as they are
// re-requested, and each bin controls what share of daily transfers draw
// from it.
type CachedSrcTransferGen struct {
	sched.Base

	Bins    []*cacheBin
	Dsts    []*CachedSrcDst
	Caches  []*core.StorageElement // cache-tier storage elements eligible to host a cache replica
	Sources []*core.StorageElement // ordinary (non-cache) candidate sources

	TickFreq               core.Tick
	DefaultReplicaLifetime core.Tick
	CacheReplicaLifetime   core.Tick

	Manager *xfer.FixedTimeManager
	Rucio   *core.Rucio
	IDGen   *core.IDGen
	Rng     *rand.Rand

	// seenBin maps a file id to its current bin index, the authoritative
	// index behind filter's fast membership pre-check.
	seenBin map[core.ID]int
	filter  *cuckoo.Filter

	nextCache int
}

// NewCachedSrcTransferGen constructs a generator over the given bin ratios
// (bins[i] is bin i, observed i+1 times).
func NewCachedSrcTransferGen(binRatios []float64, dsts []*CachedSrcDst, caches, sources []*core.StorageElement, mgr *xfer.FixedTimeManager, rucio *core.Rucio, idgen *core.IDGen, rng *rand.Rand, tickFreq, defaultLifetime, cacheLifetime core.Tick) *CachedSrcTransferGen {
	bins := make([]*cacheBin, len(binRatios))
	for i, r := range binRatios {
		bins[i] = &cacheBin{Ratio: r}
	}
	return &CachedSrcTransferGen{
		Base:                   sched.NewBase("cached-src-transfer-gen", 0),
		Bins:                   bins,
		Dsts:                   dsts,
		Caches:                 caches,
		Sources:                sources,
		TickFreq:               tickFreq,
		DefaultReplicaLifetime: defaultLifetime,
		CacheReplicaLifetime:   cacheLifetime,
		Manager:                mgr,
		Rucio:                  rucio,
		IDGen:                  idgen,
		Rng:                    rng,
		seenBin:                make(map[core.ID]int),
		filter:                 cuckoo.NewFilter(1 << 16),
	}
}

// TrackFile registers a newly created file into bin 0, making it eligible
// for cache-aware selection. Called by the owning DataGenerator (or
// whichever component mints new files this generator should consider).
func (g *CachedSrcTransferGen) TrackFile(f *core.File) {
	if len(g.Bins) == 0 {
		return
	}
	g.Bins[0].Files = append(g.Bins[0].Files, f)
	g.seenBin[f.ID] = 0
	g.filter.InsertUnique(fileIDKey(f.ID))
}

// PreRemoveFile implements core.FileActionListener: drop the file from
// whichever bin still references it so a dead file is never sampled.
func (g *CachedSrcTransferGen) PreRemoveFile(f *core.File, now core.Tick) {
	idx, ok := g.seenBin[f.ID]
	if !ok {
		return
	}
	bin := g.Bins[idx]
	for i, cand := range bin.Files {
		if cand == f {
			last := len(bin.Files) - 1
			bin.Files[i] = bin.Files[last]
			bin.Files = bin.Files[:last]
			break
		}
	}
	delete(g.seenBin, f.ID)
	g.filter.Delete(fileIDKey(f.ID))
}

func fileIDKey(id core.ID) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(id))
	return b
}

func (g *CachedSrcTransferGen) OnUpdate(now core.Tick) {
	for _, dst := range g.Dsts {
		for binIdx, bin := range g.Bins {
			if len(bin.Files) == 0 || bin.Ratio <= 0 {
				continue
			}
			n := int(dst.NumPerDay * float64(g.TickFreq) / float64(core.SecondsPerDay) * bin.Ratio)
			if n < 1 {
				n = 1
			}
			for i := 0; i < n; i++ {
				g.servOne(dst.Dst, binIdx, now)
			}
		}
	}
	g.Rearm(now + g.TickFreq)
}

func (g *CachedSrcTransferGen) servOne(dst *core.StorageElement, binIdx int, now core.Tick) {
	bin := g.Bins[binIdx]
	var file *core.File
	for attempt := 0; attempt < 10; attempt++ {
		if len(bin.Files) == 0 {
			return
		}
		cand := bin.Files[g.Rng.Intn(len(bin.Files))]
		if dst.HasReplicaOf(cand.ID) {
			continue
		}
		// Cheap probabilistic pre-check ahead of the authoritative seenBin
		// map lookup below (spec.md §4.5.3 step 2's "already on dst" guard
		// is the dst.HasReplicaOf check above; this one guards the bin
		// membership check instead).
		if !g.filter.Lookup(fileIDKey(cand.ID)) {
			continue
		}
		if _, ok := g.seenBin[cand.ID]; !ok {
			continue // stale: already removed elsewhere this tick
		}
		file = cand
		break
	}
	if file == nil {
		return
	}

	src, cacheHit, staging := g.selectSource(file)
	if staging {
		// A cache fill for this file is already in flight; don't pile on
		// another request until it resolves (original: treat an
		// incomplete cache replica as already-staging and skip the tick).
		return
	}
	if src == nil {
		return
	}

	if !cacheHit && binIdx < len(g.Bins)-1 {
		g.maybeCacheReplica(file, src, now)
	}

	dstRepl, err := dst.CreateReplica(file, now, g.IDGen)
	if err != nil {
		glog.V(3).Infof("cached-src-transfer-gen: %v", err)
		return
	}
	dstRepl.ExpiresAt = now + g.DefaultReplicaLifetime
	if _, ok := g.Manager.CreateTransfer(src, dstRepl, now, 0, cacheBinFixedDuration); !ok {
		dst.RemoveReplica(dstRepl, now, false)
		return
	}
	g.promote(file, binIdx)
}

// selectSource prefers a cache-resident replica (a "cache hit"). A cache
// replica that exists but hasn't finished its fill transfer yet reports
// staging=true: the caller must not request another cache fill or another
// output transfer for this file this tick (original: an in-flight cache
// replica is treated as already-staging). Absent any cache replica, it
// scans ordinary sources for a completed replica, preferring the one
// reachable over the highest-bandwidth link ("cheapest by link-weight"),
// ties broken deterministically via HRW rather than by iteration order.
func (g *CachedSrcTransferGen) selectSource(file *core.File) (src *core.Replica, cacheHit, staging bool) {
	for _, cache := range g.Caches {
		if r := cache.ReplicaOf(file.ID); r != nil {
			if r.IsComplete() {
				return r, true, false
			}
			return nil, false, true
		}
	}

	type candidate struct {
		name string
		r    *core.Replica
		bw   core.Space
	}
	var cands []candidate
	var bestBw core.Space
	for _, se := range g.Sources {
		r := se.ReplicaOf(file.ID)
		if r == nil || !r.IsComplete() {
			continue
		}
		bw := maxLinkBandwidth(se)
		cands = append(cands, candidate{se.Name, r, bw})
		if bw > bestBw {
			bestBw = bw
		}
	}
	if len(cands) == 0 {
		return nil, false, false
	}
	names := make([]string, 0, len(cands))
	byName := make(map[string]*core.Replica, len(cands))
	for _, c := range cands {
		if c.bw == bestBw {
			names = append(names, c.name)
			byName[c.name] = c.r
		}
	}
	return byName[hrwBreakTie(file.ID, names)], false, false
}

// maybeCacheReplica creates an empty cache replica for file (evicting the
// cache's oldest entry first if full) and enqueues the cold-fill transfer
// that actually populates it from src, the same source chosen for the
// output transfer (original: `CreateTransfer(bestSrcReplica, newCacheReplica,
// now, 0, 60)`, TransferGenerators.cpp:736-741).
func (g *CachedSrcTransferGen) maybeCacheReplica(file *core.File, src *core.Replica, now core.Tick) {
	if len(g.Caches) == 0 {
		return
	}
	cache := g.Caches[g.nextCache%len(g.Caches)]
	g.nextCache++
	if cache.HasReplicaOf(file.ID) {
		return
	}

	r, err := cache.CreateReplica(file, now, g.IDGen)
	if err == core.ErrQuotaExceeded {
		g.evictOne(cache, now)
		r, err = cache.CreateReplica(file, now, g.IDGen)
	}
	if err != nil {
		glog.V(3).Infof("cached-src-transfer-gen: cache replica: %v", err)
		return
	}
	// Cache replicas live only CacheReplicaLifetime ticks regardless of the
	// originating file's own expiry (spec.md §4.5.3).
	r.ExpiresAt = now + g.CacheReplicaLifetime
	if _, ok := g.Manager.CreateTransfer(src, r, now, 0, cacheBinFixedDuration); !ok {
		cache.RemoveReplica(r, now, false)
	}
}

// evictOne samples 5% of the cache's replicas (at least 1), marks the
// oldest sampled one expired, and removes it
// immediately so the freed slot is visible to the caller's retried
// CreateReplica (spec.md §4.5.3 "Cache eviction"; original: `ExpireReplica`
// calls `RemoveExpiredReplicas(now)` synchronously, TransferGenerators.cpp:641).
func (g *CachedSrcTransferGen) evictOne(cache *core.StorageElement, now core.Tick) {
	all := cache.Replicas()
	if len(all) == 0 {
		return
	}
	sampleN := len(all) / 20
	if sampleN < 1 {
		sampleN = 1
	}
	if sampleN > len(all) {
		sampleN = len(all)
	}
	sample := pickNUniform(g.Rng, all, sampleN)
	oldest := sample[0]
	for _, r := range sample[1:] {
		if r.CreatedAt < oldest.CreatedAt {
			oldest = r
		}
	}
	oldest.ExpiresAt = now
	g.Rucio.RemoveExpiredReplicasFromFile(oldest.File, now)
}

// promote moves file from bin binIdx to binIdx+1 (a file in the last bin
// stays put): spec.md §4.5.3 step 5.
func (g *CachedSrcTransferGen) promote(file *core.File, binIdx int) {
	if binIdx >= len(g.Bins)-1 {
		return
	}
	g.PreRemoveFile(file, 0)
	next := binIdx + 1
	g.Bins[next].Files = append(g.Bins[next].Files, file)
	g.seenBin[file.ID] = next
	g.filter.InsertUnique(fileIDKey(file.ID))
}

func (g *CachedSrcTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("cached-src-transfer-gen: shutdown at tick %d", now)
}
