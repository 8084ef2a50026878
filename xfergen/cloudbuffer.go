/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"math/rand"
	"sort"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/gcfg"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
)

// CloudBufferRoute models primary-buffer spillover from one source
// StorageElement: a reusage-rate generator decides how many of the
// source's replicas (ordered by descending popularity) get pushed toward
// PrimaryLink's destination each tick, falling back to SecondaryLink when
// the primary destination has no room (spec.md §4.5.2).
type CloudBufferRoute struct {
	Src                 *core.StorageElement
	ReusageNumGen       *gcfg.ValueGenerator
	PrimaryLink         *core.NetworkLink
	SecondaryLink       *core.NetworkLink // optional, nil if none configured
	DeleteSrcOnComplete bool

	accum float64
}

type CloudBufferTransferGen struct {
	sched.Base

	Routes  []*CloudBufferRoute
	Manager *xfer.BandwidthManager
	IDGen   *core.IDGen
	Rng     *rand.Rand
}

func NewCloudBufferTransferGen(routes []*CloudBufferRoute, mgr *xfer.BandwidthManager, idgen *core.IDGen, rng *rand.Rand) *CloudBufferTransferGen {
	return &CloudBufferTransferGen{
		Base:    sched.NewBase("cloud-buffer-transfer-gen", 0),
		Routes:  routes,
		Manager: mgr,
		IDGen:   idgen,
		Rng:     rng,
	}
}

func (g *CloudBufferTransferGen) OnUpdate(now core.Tick) {
	for _, route := range g.Routes {
		n := fracAccumulate(&route.accum, route.ReusageNumGen.Sample(g.Rng))
		if n == 0 {
			continue
		}
		candidates := completedReplicas(route.Src)
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].File.Popularity > candidates[j].File.Popularity
		})

		moved := 0
		for _, src := range candidates {
			if moved >= n {
				break
			}
			if g.tryRoute(route, src, now) {
				moved++
			}
		}
	}
	g.Rearm(now + 1)
}

// tryRoute attempts the primary link first; on quota failure it falls back
// to the secondary link if one is configured; if both fail, the candidate
// is simply left for a later tick (spec.md: "if both fail, the transfer is
// deferred").
func (g *CloudBufferTransferGen) tryRoute(route *CloudBufferRoute, src *core.Replica, now core.Tick) bool {
	if route.PrimaryLink.HasCapacity() {
		if g.attempt(route.PrimaryLink.Dst, src, route.DeleteSrcOnComplete, now) {
			return true
		}
	}
	if route.SecondaryLink != nil && route.SecondaryLink.HasCapacity() {
		if g.attempt(route.SecondaryLink.Dst, src, route.DeleteSrcOnComplete, now) {
			return true
		}
	}
	return false
}

func (g *CloudBufferTransferGen) attempt(dst *core.StorageElement, src *core.Replica, deleteSrc bool, now core.Tick) bool {
	file := src.File
	if dst.HasReplicaOf(file.ID) {
		return false
	}
	dstRepl, err := dst.CreateReplica(file, now, g.IDGen)
	if err != nil {
		return false
	}
	if _, ok := g.Manager.CreateTransfer(src, dstRepl, now, deleteSrc); !ok {
		dst.RemoveReplica(dstRepl, now, false)
		return false
	}
	return true
}

func (g *CloudBufferTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("cloud-buffer-transfer-gen: shutdown at tick %d", now)
}
