/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// hrwSeed mirrors cmn.MLCG32 in the teacher's cluster/map.go: a fixed seed
// so that HRW scores are reproducible across a run (and across runs with the
// same inputs), matching the simulator's requirement for deterministic
// virtual time.
const hrwSeed = 0x45b4b5f9 // arbitrary, matches cmn.MLCG32's role only

// HRWScore computes a rendezvous-hashing (highest random weight) score for
// the pair (subject, candidate). Selecting the candidate with the maximal
// score across a fixed subject gives a deterministic, well-distributed
// "uniform at random" choice — the same technique the teacher uses
// (xxhash.ChecksumString64S) to map objects to cluster targets.
func HRWScore(subject string, candidate string) uint64 {
	return xxhash.ChecksumString64S(subject+"\x00"+candidate, hrwSeed)
}

// HRWPick returns the index of the candidate with the highest HRW score for
// subject. candidates must be non-empty.
func HRWPick(subject string, candidates []string) int {
	best := 0
	bestScore := HRWScore(subject, candidates[0])
	for i := 1; i < len(candidates); i++ {
		if s := HRWScore(subject, candidates[i]); s > bestScore {
			bestScore, best = s, i
		}
	}
	return best
}

// HRWPickID is a convenience wrapper for subjects keyed by an ID.
func HRWPickID(subject ID, candidates []string) int {
	return HRWPick(strconv.FormatUint(uint64(subject), 10), candidates)
}
