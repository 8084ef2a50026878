// Package main is the simulator's CLI entry point (spec.md §6 "CLI …
// handled by the enclosing shell, not the core"): it parses flags, loads
// the nested JSON config, builds the output sink, builds the Simulation,
// and runs it to completion.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/gacspp/gacsim/gcfg"
	"github.com/gacspp/gacsim/output"
	"github.com/gacspp/gacsim/sim"
	"github.com/golang/glog"
)

var (
	mainConfigPath = flag.String("config", "config.json", "path to the top-level simulation config")
	seed           = flag.Int64("seed", time.Now().UnixNano(), "single RNG seed for the whole run")
	cpuProfile     = flag.String("cpuprofile", "", "write cpu profile to `file`")
	memProfile     = flag.String("memprofile", "", "write memory profile to `file`")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	if s := *cpuProfile; s != "" {
		*cpuProfile = s + "." + strconv.Itoa(os.Getpid())
		f, err := os.Create(*cpuProfile)
		if err != nil {
			glog.Errorf("couldn't create cpu profile: %v", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Errorf("couldn't start cpu profile: %v", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	exitCode := runSimulation()

	if s := *memProfile; s != "" {
		*memProfile = s + "." + strconv.Itoa(os.Getpid())
		f, err := os.Create(*memProfile)
		if err != nil {
			glog.Errorf("couldn't create memory profile: %v", err)
			return 1
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			glog.Errorf("couldn't write memory profile: %v", err)
		}
	}

	return exitCode
}

// runSimulation loads config (spec.md §6), resolves the profile — a CLI
// positional argument overrides the main config's "profile" field — opens
// the default output.BuntSink, builds the Simulation, and runs it.
func runSimulation() int {
	mainCfg, err := gcfg.LoadMain(*mainConfigPath)
	if err != nil {
		glog.Errorf("load main config: %v", err)
		return 1
	}

	profilePath := mainCfg.Profile
	if args := flag.Args(); len(args) > 0 {
		profilePath = args[0]
	}
	profileCfg, err := gcfg.LoadProfile(profilePath)
	if err != nil {
		glog.Errorf("load profile %q: %v", profilePath, err)
		return 1
	}

	dbPath := mainCfg.Output.DBConnectionFile
	if dbPath == "" {
		dbPath = ":memory:"
	}
	queueLen := mainCfg.Output.InsertQueryBufferLen
	if queueLen <= 0 {
		queueLen = 4096
	}
	sink, err := output.OpenBuntSink(dbPath, queueLen)
	if err != nil {
		glog.Errorf("open output sink: %v", err)
		return 1
	}

	simulation, err := sim.Build(sink, *seed, profileCfg)
	if err != nil {
		glog.Errorf("build simulation: %v", err)
		_ = sink.Close()
		return 1
	}

	simulation.Run()
	return 0
}
