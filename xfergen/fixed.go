/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"math/rand"

	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/gcfg"
	"github.com/gacspp/gacsim/sched"
	"github.com/gacspp/gacsim/xfer"
	"github.com/golang/glog"
)

// FixedRoute is one (src, dst, rate) entry of a FixedTransferGen: src
// generates NumToGenerate (sampled per tick, fractionally accumulated)
// transfers toward dst every tick (spec.md §4.5.1).
type FixedRoute struct {
	Src            *core.StorageElement
	Dst            *core.StorageElement
	NumToGenerate  *gcfg.ValueGenerator
	accum          float64
}

// FixedTransferGen is the simplest transfer generator: a static table of
// routes, each independently sampling how many transfers to start this
// tick and picking that many completed replicas from its source uniformly
// at random.
type FixedTransferGen struct {
	sched.Base

	Routes  []*FixedRoute
	Manager *xfer.BandwidthManager
	IDGen   *core.IDGen
	Rng     *rand.Rand
}

func NewFixedTransferGen(routes []*FixedRoute, mgr *xfer.BandwidthManager, idgen *core.IDGen, rng *rand.Rand, tickFreq core.Tick) *FixedTransferGen {
	return &FixedTransferGen{
		Base:    sched.NewBase("fixed-transfer-gen", 0),
		Routes:  routes,
		Manager: mgr,
		IDGen:   idgen,
		Rng:     rng,
	}
}

func (g *FixedTransferGen) OnUpdate(now core.Tick) {
	for _, route := range g.Routes {
		n := fracAccumulate(&route.accum, route.NumToGenerate.Sample(g.Rng))
		if n == 0 {
			continue
		}
		candidates := completedReplicas(route.Src)
		if len(candidates) == 0 {
			continue
		}
		for _, src := range pickNUniform(g.Rng, candidates, n) {
			g.createOne(route.Dst, src, now)
		}
	}
	g.Rearm(now + 1)
}

func (g *FixedTransferGen) createOne(dst *core.StorageElement, src *core.Replica, now core.Tick) {
	file := src.File
	if dst.HasReplicaOf(file.ID) {
		return
	}
	dstRepl, err := dst.CreateReplica(file, now, g.IDGen)
	if err != nil {
		glog.V(3).Infof("fixed-transfer-gen: %v", err)
		return
	}
	if _, ok := g.Manager.CreateTransfer(src, dstRepl, now, false); !ok {
		dst.RemoveReplica(dstRepl, now, false)
	}
}

func (g *FixedTransferGen) Shutdown(now core.Tick) {
	glog.V(2).Infof("fixed-transfer-gen: shutdown at tick %d", now)
}
