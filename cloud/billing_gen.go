/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import (
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
	"github.com/gacspp/gacsim/sched"
	"github.com/golang/glog"
)

// BillingGenerator is a Schedulable ticked monthly: it rolls up every
// Cloud's bill and pushes one Bills row per cloud to the sink (spec.md
// §4.9).
type BillingGenerator struct {
	sched.Base

	Clouds []*Cloud
	Sink   output.Sink
	pi     *output.PreparedInsert
}

// NewBillingGenerator constructs a generator that first fires at
// core.SecondsPerMonth and thereafter every core.SecondsPerMonth ticks.
func NewBillingGenerator(clouds []*Cloud, sink output.Sink) (*BillingGenerator, error) {
	pi, err := sink.PrepareInsert("Bills", []string{"cloud_name", "month", "bill"}, '?')
	if err != nil {
		return nil, err
	}
	return &BillingGenerator{
		Base:   sched.NewBase("billing-generator", core.SecondsPerMonth),
		Clouds: clouds,
		Sink:   sink,
		pi:     pi,
	}, nil
}

func (g *BillingGenerator) OnUpdate(now core.Tick) {
	vc := g.pi.CreateValuesContainer(len(g.Clouds))
	for _, c := range g.Clouds {
		bill := c.ProcessBilling(now)
		glog.Infof("billing: %s", bill)
		vc.AddValue(output.Str(c.Name))
		vc.AddValue(output.U64(uint64(now)))
		vc.AddValue(output.Str(bill.String()))
	}
	if !vc.IsEmpty() {
		if err := g.Sink.QueueInserts(g.pi, vc); err != nil {
			glog.Errorf("billing-generator: queue inserts: %v", err)
		}
	}
	g.Rearm(now + core.SecondsPerMonth)
}

func (g *BillingGenerator) Shutdown(now core.Tick) {
	glog.V(2).Infof("billing-generator: shutdown at tick %d", now)
}
