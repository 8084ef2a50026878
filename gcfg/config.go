/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcfg

import (
	"encoding/json"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// MainConfig is the top-level JSON document loaded once at startup
// (spec.md §6): { "profile": "<dir>", "output": {...} }. maxTick is read
// from the profile (ProfileConfig.MaxTick), not from this document.
// A CLI-supplied positional argument overrides Profile.
type MainConfig struct {
	Profile string       `json:"profile"`
	Output  OutputConfig `json:"output"`
}

// OutputConfig configures the out-of-core persistence sink (spec.md §6);
// the core only needs to know it has a dbConnectionFile, an init script,
// and a bound on how many rows to batch before flushing.
type OutputConfig struct {
	DBConnectionFile     string `json:"dbConnectionFile"`
	DBInitFileName       string `json:"dbInitFileName"`
	InsertQueryBufferLen int    `json:"insertQueryBufferLen"`
}

// ProfileConfig is the referenced profile document: sites/storage elements,
// clouds, links, and the schedulable factories to build.
type ProfileConfig struct {
	Rucio        RucioConfig          `json:"rucio"`
	Clouds       []CloudConfig        `json:"clouds"`
	Links        map[string]map[string]LinkConfig `json:"links"`
	TransferCfgs []SchedulableConfig  `json:"transferCfgs"`
	DataGens     []SchedulableConfig  `json:"dataGens"`
	Reaper       SchedulableConfig    `json:"reaper"`
	MaxTick      uint64               `json:"maxTick"`
}

// RucioConfig describes the grid side of the topology.
type RucioConfig struct {
	Sites []SiteConfig `json:"sites"`
}

// SiteConfig is one GridSite and its StorageElements.
type SiteConfig struct {
	Name             string                    `json:"name"`
	LocationName     string                    `json:"locationName"`
	MultiLocationIdx uint8                     `json:"multiLocationIdx"`
	CustomConfig     map[string]string         `json:"customConfig"`
	StorageElements  []StorageElementConfig    `json:"storageElements"`
}

// StorageElementConfig is one grid StorageElement.
type StorageElementConfig struct {
	Name                   string          `json:"name"`
	Limit                  uint64          `json:"limit"`
	AllowDuplicateReplicas bool            `json:"allowDuplicateReplicas"`
	AccessLatency          json.RawMessage `json:"accessLatency"`
}

// CloudConfig names a registered cloud factory (e.g. "gcp") plus its
// cloud-specific config (regions, SKU tables, price tables).
type CloudConfig struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

// LinkConfig is one edge of the `links` adjacency map.
type LinkConfig struct {
	Bandwidth          uint64 `json:"bandwidth"`
	Throughput         bool   `json:"throughput"`
	MaxActiveTransfers uint32 `json:"maxActiveTransfers"`
	ReceivingLink      string `json:"receivingLink"`
}

// SchedulableConfig names a transfer-manager/generator/reaper type by
// string (spec.md §6: "bandwidth", "fixedTime", "fixed", "hcdc",
// "cachedSrc", "cloudBuffer", "jobIO") plus its tick frequency and
// type-specific payload, decoded later by that type's own registry.
type SchedulableConfig struct {
	Type     string          `json:"type"`
	TickFreq uint64          `json:"tickFreq"`
	Config   json.RawMessage `json:"config"`
}

// LoadMain reads and decodes the top-level config document.
func LoadMain(path string) (*MainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError(path, err)
	}
	var mc MainConfig
	if err := jsoniter.Unmarshal(data, &mc); err != nil {
		return nil, NewConfigError(path, err)
	}
	return &mc, nil
}

// LoadProfile reads and decodes a referenced profile document.
func LoadProfile(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError(path, err)
	}
	var pc ProfileConfig
	if err := jsoniter.Unmarshal(data, &pc); err != nil {
		return nil, NewConfigError(path, err)
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return &pc, nil
}

// Validate checks structural consistency that isn't expressible in the JSON
// schema itself: duplicate site names, duplicate storage element names within
// a site, and cloud entries without an id. Links naming unknown storage
// elements are not checked here; sim.Build rejects them when it resolves
// the links. Implements cmn.Validator in the teacher's idiom.
func (pc *ProfileConfig) Validate() error {
	seen := make(map[string]bool)
	for _, site := range pc.Rucio.Sites {
		if seen[site.Name] {
			return Errorf("rucio.sites", "duplicate site name %q", site.Name)
		}
		seen[site.Name] = true
		seenSE := make(map[string]bool)
		for _, se := range site.StorageElements {
			if seenSE[se.Name] {
				return Errorf("rucio.sites["+site.Name+"]", "duplicate storage element name %q", se.Name)
			}
			seenSE[se.Name] = true
		}
	}
	for _, cloud := range pc.Clouds {
		if cloud.ID == "" {
			return Errorf("clouds", "cloud entry missing \"id\"")
		}
	}
	return nil
}
