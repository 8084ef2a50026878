/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import "github.com/gacspp/gacsim/core"

// Bill summarises storage cost, network egress cost, egress traffic
// volume, operation cost, and ClassA/ClassB counters for one billing period
// of one Cloud (spec.md §3, §4.8).
type Bill struct {
	CloudName string
	Month     core.Tick

	StorageCost   float64
	NetworkCost   float64
	EgressGiB     float64
	OperationCost float64
	NumClassA     uint64
	NumClassB     uint64
}

// Total is the sum of every cost component.
func (b *Bill) Total() float64 { return b.StorageCost + b.NetworkCost + b.OperationCost }

// String renders a human-readable summary, pushed to the sink as the
// `Bills.bill` column (spec.md §4.9).
func (b *Bill) String() string {
	return sprintfBill(b)
}

func sprintfBill(b *Bill) string {
	return "cloud=" + b.CloudName +
		" month=" + tickString(b.Month) +
		" storage=" + floatString(b.StorageCost) +
		" network=" + floatString(b.NetworkCost) +
		" egressGiB=" + floatString(b.EgressGiB) +
		" ops=" + floatString(b.OperationCost) +
		" classA=" + uintString(b.NumClassA) +
		" classB=" + uintString(b.NumClassB) +
		" total=" + floatString(b.Total())
}
