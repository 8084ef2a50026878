/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

// Site is the capability interface shared by GridSite and cloud.Region
// (spec.md §9: "tagged variants … with a capability interface where dynamic
// dispatch is needed for factory registration"). A closed two-member set
// (Grid, CloudRegion) would fit a Go sum type just as well, but StorageElement
// and the transfer generators only ever need to go from a Site to its
// StorageElements and back, so an interface is enough and lets cloud.Region
// live in its own package without an import cycle.
type Site interface {
	GetID() ID
	GetName() string
	LocationName() string
	MultiLocationIdx() uint8
	StorageElements() []*StorageElement
}

// GridSite is a grid computing site: a geographic/logical grouping of
// StorageElements with no cloud billing behaviour.
type GridSite struct {
	ID           ID
	Name         string
	Location     string
	MultiLocIdx  uint8
	CustomConfig map[string]string

	elements []*StorageElement
}

// NewGridSite constructs an empty GridSite.
func NewGridSite(id ID, name, location string, multiLocIdx uint8) *GridSite {
	return &GridSite{ID: id, Name: name, Location: location, MultiLocIdx: multiLocIdx}
}

func (s *GridSite) GetID() ID            { return s.ID }
func (s *GridSite) GetName() string      { return s.Name }
func (s *GridSite) LocationName() string { return s.Location }
func (s *GridSite) MultiLocationIdx() uint8 { return s.MultiLocIdx }
func (s *GridSite) StorageElements() []*StorageElement { return s.elements }

// CreateStorageElement creates and owns a new StorageElement on this site.
func (s *GridSite) CreateStorageElement(id ID, name string) *StorageElement {
	se := NewStorageElement(id, name, s)
	s.elements = append(s.elements, se)
	return se
}
