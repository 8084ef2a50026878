/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import "github.com/gacspp/gacsim/core"

// Cloud owns Regions, SKU/price tables, and produces a monthly Bill
// (spec.md §3). The set of cloud providers is closed for this simulator
// (only a GCP-shaped implementation ships), so Cloud is a single concrete
// type parameterised by its network price tables rather than an interface
// hierarchy — spec.md §9's "tagged variants … when the set is closed".
type Cloud struct {
	Name    string
	Regions []*Region

	// NetworkPriceByMultiLocIdx resolves the tiered network-egress price
	// table for a given destination region's MultiLocationIdx, falling back
	// to DefaultNetworkPrice when no dedicated entry exists (supplemented
	// feature from original_source/CCloudGCP.cpp, see SPEC_FULL.md §6).
	NetworkPriceByMultiLocIdx map[uint8]TieredPrice
	DefaultNetworkPrice       TieredPrice
}

// NewCloud constructs an empty Cloud.
func NewCloud(name string) *Cloud {
	return &Cloud{
		Name: name,
		NetworkPriceByMultiLocIdx: make(map[uint8]TieredPrice),
	}
}

// AddRegion registers a region under this cloud.
func (c *Cloud) AddRegion(r *Region) { c.Regions = append(c.Regions, r) }

func (c *Cloud) networkPriceFor(site core.Site) TieredPrice {
	if site != nil {
		if p, ok := c.NetworkPriceByMultiLocIdx[site.MultiLocationIdx()]; ok {
			return p
		}
	}
	return c.DefaultNetworkPrice
}

// ProcessBilling rolls up every bucket's accrued storage cost, operation
// counters, and every outgoing link's traffic into one Bill, resetting all
// three per spec.md §4.8, then returns it. Called monthly by
// BillingGenerator.
func (c *Cloud) ProcessBilling(now core.Tick) *Bill {
	bill := &Bill{CloudName: c.Name, Month: now}

	for _, region := range c.Regions {
		for _, b := range region.buckets {
			bill.StorageCost += b.ReadAndResetStorageCost(now)

			classA, classB := b.ReadAndResetOperationCounts()
			bill.NumClassA += classA
			bill.NumClassB += classB
			bill.OperationCost += b.SKU.ClassAOpPrice.Cost(float64(classA))
			bill.OperationCost += b.SKU.ClassBOpPrice.Cost(float64(classB))

			for _, link := range b.NetworkLinks() {
				giB := float64(link.UsedTraffic.Load()) / baseUnitConversionFactor
				bill.EgressGiB += giB
				bill.NetworkCost += c.networkPriceFor(link.Dst.Site).Cost(giB)
				link.ResetTrafficCounters()
			}
		}
	}
	return bill
}
