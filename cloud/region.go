/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import "github.com/gacspp/gacsim/core"

// Region is a cloud site: a core.Site implementation that owns Buckets
// instead of plain StorageElements (spec.md §3 "Cloud … owned Regions").
type Region struct {
	ID               core.ID
	Name             string
	Location         string
	MultiLocIdx      uint8
	CustomConfig     map[string]string

	buckets []*Bucket
	elements []*core.StorageElement
}

func NewRegion(id core.ID, name, location string, multiLocIdx uint8) *Region {
	return &Region{ID: id, Name: name, Location: location, MultiLocIdx: multiLocIdx}
}

func (r *Region) GetID() core.ID               { return r.ID }
func (r *Region) GetName() string              { return r.Name }
func (r *Region) LocationName() string         { return r.Location }
func (r *Region) MultiLocationIdx() uint8      { return r.MultiLocIdx }
func (r *Region) StorageElements() []*core.StorageElement { return r.elements }
func (r *Region) Buckets() []*Bucket           { return r.buckets }

// CreateBucket creates a StorageElement, wraps it as a cost-tracked Bucket,
// and registers it on this region.
func (r *Region) CreateBucket(id core.ID, name string, sku SKU) *Bucket {
	se := core.NewStorageElement(id, name, r)
	b := NewBucket(se, sku)
	r.buckets = append(r.buckets, b)
	r.elements = append(r.elements, se)
	return b
}
