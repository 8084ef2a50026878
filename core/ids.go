// Package core implements the data/replica/storage model: files, replicas,
// storage elements, sites, network links, and the Rucio catalogue that owns
// them, per the back-reference invariants binding them together.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "go.uber.org/atomic"

// ID is a 64-bit identifier unique across every entity kind (files,
// replicas, storage elements, sites, network links) — not per-kind.
type ID uint64

// Tick is virtual simulated time; one tick conventionally equals one second.
type Tick uint64

const (
	SecondsPerDay   Tick = 24 * 60 * 60
	SecondsPerMonth Tick = 30 * SecondsPerDay
)

// Space is a byte count.
type Space uint64

const (
	KiB Space = 1 << 10
	MiB Space = 1 << 20
	GiB Space = 1 << 30
)

// IDGen hands out monotonically increasing unique identifiers spanning all
// entity kinds. A single process-wide instance is plumbed through
// SimulationContext rather than held as a package global, so the simulator
// stays testable without global teardown (spec.md §9 "Global mutable state").
type IDGen struct {
	next atomic.Uint64
}

// NewIDGen creates a generator that will hand out ids starting at 1.
func NewIDGen() *IDGen {
	return &IDGen{}
}

// Next returns the next unique id.
func (g *IDGen) Next() ID {
	return ID(g.next.Add(1))
}
