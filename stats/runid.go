// Package stats provides periodic reporting of simulation progress: a
// wall-clock/virtual-time heartbeat log, Prometheus gauges, and a run
// identifier (spec.md §4.9).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import "github.com/teris-io/shortid"

var sid *shortid.Shortid

func init() {
	s, err := shortid.New(1 /*worker*/, shortid.DefaultABC, 0)
	if err != nil {
		panic(err)
	}
	sid = s
}

// NewRunID returns a short, human-readable identifier tagging one
// simulation run, used to tell apart the log lines of repeated invocations
// of the same profile. It is not written into output rows.
func NewRunID() string {
	id, err := sid.Generate()
	if err != nil {
		return "run"
	}
	return id
}
