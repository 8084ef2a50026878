/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import (
	"encoding/json"

	"github.com/gacspp/gacsim/core"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// priceTierCfg is the JSON shape of one PriceTier.
type priceTierCfg struct {
	Threshold     uint64 `json:"threshold"`
	UnitPriceNano uint64 `json:"unitPriceNano"`
}

func buildTieredPrice(cfg []priceTierCfg) TieredPrice {
	tp := make(TieredPrice, len(cfg))
	for i, t := range cfg {
		tp[i] = PriceTier{Threshold: t.Threshold, UnitPriceNano: t.UnitPriceNano}
	}
	return tp
}

type skuCfg struct {
	StoragePricePerGiBMonth []priceTierCfg `json:"storagePricePerGiBMonth"`
	ClassAOpPrice           []priceTierCfg `json:"classAOpPrice"`
	ClassBOpPrice           []priceTierCfg `json:"classBOpPrice"`
}

func (c *skuCfg) build() SKU {
	return SKU{
		StoragePricePerGiBMonth: buildTieredPrice(c.StoragePricePerGiBMonth),
		ClassAOpPrice:           buildTieredPrice(c.ClassAOpPrice),
		ClassBOpPrice:           buildTieredPrice(c.ClassBOpPrice),
	}
}

type bucketCfg struct {
	Name  string `json:"name"`
	Limit uint64 `json:"limit"`
	SKU   skuCfg `json:"sku"`
}

type regionCfg struct {
	Name             string      `json:"name"`
	Location         string      `json:"location"`
	MultiLocationIdx uint8       `json:"multiLocationIdx"`
	Buckets          []bucketCfg `json:"buckets"`
}

// gcpCfg is the GCP cloud factory's config payload (spec.md §6: "clouds[]
// (each with an id naming a registered cloud factory plus cloud-specific
// config including SKU tables and network-price tables keyed by
// multiLocationIdx)").
type gcpCfg struct {
	Regions                         []regionCfg               `json:"regions"`
	NetworkPriceByMultiLocationIdx  map[string][]priceTierCfg `json:"networkPriceByMultiLocationIdx"`
	DefaultNetworkPrice             []priceTierCfg            `json:"defaultNetworkPrice"`
}

// BuildGCP constructs a Cloud from a gcp-factory JSON payload, registering
// every bucket into rucio so transfer generators can resolve it by name
// (spec.md §4.2 GetStorageElementByName).
func BuildGCP(name string, raw json.RawMessage, idgen *core.IDGen, rucio *core.Rucio) (*Cloud, error) {
	var cfg gcpCfg
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cloud %q: gcp config", name)
	}
	c := NewCloud(name)
	c.DefaultNetworkPrice = buildTieredPrice(cfg.DefaultNetworkPrice)
	for idxStr, tiers := range cfg.NetworkPriceByMultiLocationIdx {
		idx, err := parseMultiLocIdx(idxStr)
		if err != nil {
			return nil, errors.Wrapf(err, "cloud %q: networkPriceByMultiLocationIdx", name)
		}
		c.NetworkPriceByMultiLocIdx[idx] = buildTieredPrice(tiers)
	}

	for _, rc := range cfg.Regions {
		region := NewRegion(idgen.Next(), rc.Name, rc.Location, rc.MultiLocationIdx)
		for _, bc := range rc.Buckets {
			bucket := region.CreateBucket(idgen.Next(), bc.Name, bc.SKU.build())
			bucket.Limit = core.Space(bc.Limit)
			rucio.IndexStorageElement(bucket.StorageElement)
		}
		c.AddRegion(region)
	}
	return c, nil
}

func parseMultiLocIdx(s string) (uint8, error) {
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.Errorf("not a number: %q", s)
		}
		v = v*10 + uint64(r-'0')
	}
	if v > 255 {
		return 0, errors.Errorf("out of range for uint8: %q", s)
	}
	return uint8(v), nil
}

// Factory builds a Cloud from a named factory id plus its raw config —
// aistore's xaction/xreg-style registry-by-string pattern, applied to cloud
// providers instead of xaction kinds (spec.md §6: "an id naming a
// registered cloud factory").
type Factory func(name string, raw json.RawMessage, idgen *core.IDGen, rucio *core.Rucio) (*Cloud, error)

var factories = map[string]Factory{
	"gcp": BuildGCP,
}

// RegisterFactory adds or overrides a cloud factory by id.
func RegisterFactory(id string, f Factory) { factories[id] = f }

// Build resolves id against the factory registry and constructs a Cloud.
func Build(id, name string, raw json.RawMessage, idgen *core.IDGen, rucio *core.Rucio) (*Cloud, error) {
	f, ok := factories[id]
	if !ok {
		return nil, errors.Errorf("cloud: unknown factory id %q", id)
	}
	return f(name, raw, idgen, rucio)
}
