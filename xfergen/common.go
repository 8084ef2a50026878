// Package xfergen implements the transfer-generator Schedulables that
// decide, per tick, which transfers to create and hand off to a
// xfer.Manager (spec.md §4.5).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfergen

import (
	"math/rand"

	"github.com/gacspp/gacsim/core"
)

// completedReplicas returns the live replicas on se that hold the full
// file (candidates for a transfer source).
func completedReplicas(se *core.StorageElement) []*core.Replica {
	all := se.Replicas()
	out := make([]*core.Replica, 0, len(all))
	for _, r := range all {
		if r.IsComplete() {
			out = append(out, r)
		}
	}
	return out
}

// pickNUniform returns up to n distinct elements of replicas chosen
// uniformly at random, via a partial Fisher-Yates shuffle so it doesn't
// disturb replicas beyond the prefix it samples.
func pickNUniform(rng *rand.Rand, replicas []*core.Replica, n int) []*core.Replica {
	if n > len(replicas) {
		n = len(replicas)
	}
	pool := append([]*core.Replica(nil), replicas...)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// fracAccumulate adds a freshly sampled value to acc and returns how many
// whole transfers that buys this tick, keeping the leftover fraction in
// acc for next time (spec.md 4.5.1 "a decimal accumulator preserves
// fractional sampling across ticks").
func fracAccumulate(acc *float64, sampled float64) int {
	*acc += sampled
	n := int(*acc)
	*acc -= float64(n)
	return n
}

// maxLinkBandwidth is a storage element's "cost" for cheapest-source
// selection: the fastest outgoing link it offers (spec.md §4.5.3/§4.5.6
// "cheapest source by link-weight").
func maxLinkBandwidth(se *core.StorageElement) core.Space {
	var bw core.Space
	for _, l := range se.NetworkLinks() {
		if l.BandwidthBytesPerSecond > bw {
			bw = l.BandwidthBytesPerSecond
		}
	}
	return bw
}

// hrwBreakTie picks, among names (all tied on whatever primary criterion the
// caller already applied), the one core.HRWPickID selects for subject — a
// deterministic stand-in for "first one found" that doesn't depend on
// iteration order (core/hrw.go, grounded on the teacher's xxhash-based HRW
// destination hashing in cluster/map.go).
func hrwBreakTie(subject core.ID, names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return names[core.HRWPickID(subject, names)]
}
