/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "github.com/golang/glog"

// Rucio is the master container of all Files and GridSites; it hosts the
// reaper algorithm and broadcasts file action events. It exclusively owns
// Files (a slice of owning pointers); listener lists are non-owning.
type Rucio struct {
	idgen *IDGen

	files      []*File
	sitesByName map[string]*GridSite
	storageByName map[string]*StorageElement

	listeners []FileActionListener
}

// NewRucio constructs an empty catalogue backed by idgen for new File ids.
func NewRucio(idgen *IDGen) *Rucio {
	return &Rucio{
		idgen:         idgen,
		sitesByName:   make(map[string]*GridSite),
		storageByName: make(map[string]*StorageElement),
	}
}

// AddListener registers a FileActionListener (e.g. a transfer generator
// that keeps per-file side state and wants to be told before a file
// disappears).
func (ru *Rucio) AddListener(l FileActionListener) { ru.listeners = append(ru.listeners, l) }

// AddGridSite registers a site (and indexes its storage elements) so that
// GetStorageElementByName can resolve config-time references.
func (ru *Rucio) AddGridSite(s *GridSite) {
	ru.sitesByName[s.Name] = s
	for _, se := range s.elements {
		ru.storageByName[se.Name] = se
	}
}

// IndexStorageElement makes se resolvable via GetStorageElementByName; call
// this for storage elements created after AddGridSite (or for cloud buckets,
// which aren't GridSite members).
func (ru *Rucio) IndexStorageElement(se *StorageElement) { ru.storageByName[se.Name] = se }

// GridSites returns every registered grid site.
func (ru *Rucio) GridSites() []*GridSite {
	out := make([]*GridSite, 0, len(ru.sitesByName))
	for _, s := range ru.sitesByName {
		out = append(out, s)
	}
	return out
}

// GetStorageElementByName resolves a storage element by its configured
// name, across grid sites and any cloud buckets that were indexed.
func (ru *Rucio) GetStorageElementByName(name string) (*StorageElement, bool) {
	se, ok := ru.storageByName[name]
	return se, ok
}

// Files returns every live file (owning slice — do not retain across a
// removal).
func (ru *Rucio) Files() []*File { return ru.files }

// CreateFile creates a new File and takes ownership of it.
func (ru *Rucio) CreateFile(size Space, now Tick, lifetime Tick) *File {
	f := NewFile(ru.idgen.Next(), now, now+lifetime, size)
	f.indexAtRucio = len(ru.files)
	ru.files = append(ru.files, f)
	return f
}

// RemoveFile removes f: every Replica is removed first (cascading through
// its owning StorageElement, which itself fires replica pre-remove
// listeners), then f itself is swap-removed from the catalogue.
func (ru *Rucio) RemoveFile(f *File, now Tick) {
	for _, l := range ru.listeners {
		l.PreRemoveFile(f, now)
	}
	// Removing replicas mutates f.replicas; iterate a snapshot.
	for _, r := range append([]*Replica(nil), f.replicas...) {
		r.StorageElement.RemoveReplica(r, now, false)
	}
	ru.swapRemoveFile(f)
}

func (ru *Rucio) swapRemoveFile(f *File) {
	idx := f.indexAtRucio
	last := len(ru.files) - 1
	if ru.files[idx] != f {
		// Defensive: should never happen if indexAtRucio is maintained
		// correctly; a mismatch here is a programmer error.
		for i, cand := range ru.files {
			if cand == f {
				idx = i
				break
			}
		}
	}
	ru.files[idx] = ru.files[last]
	ru.files[idx].indexAtRucio = idx
	ru.files[last] = nil
	ru.files = ru.files[:last]
}

// RemoveAllFiles removes every file, e.g. at simulation shutdown (spec.md
// §4.1 step 2).
func (ru *Rucio) RemoveAllFiles(now Tick) {
	for len(ru.files) > 0 {
		ru.RemoveFile(ru.files[len(ru.files)-1], now)
	}
}

// ExtractExpiredReplicas returns the replicas of f whose ExpiresAt has
// passed without removing them, for generators that want to take custody
// (spec.md §4.2).
func (ru *Rucio) ExtractExpiredReplicas(f *File, now Tick) []*Replica {
	return f.ExpiredReplicas(now)
}

// RemoveExpiredReplicasFromFile removes every expired replica of f; if the
// last replica vanishes, f itself is removed too.
func (ru *Rucio) RemoveExpiredReplicasFromFile(f *File, now Tick) {
	for _, r := range f.ExpiredReplicas(now) {
		r.StorageElement.RemoveReplica(r, now, false)
	}
	if f.NumReplicas() == 0 {
		ru.RemoveFile(f, now)
	}
}

// RunReaper sweeps every File whose ExpiresAt has passed, removing it (and
// cascading its replicas). Returns the number of files removed. Invoked
// periodically by reaper.Reaper.
func (ru *Rucio) RunReaper(now Tick) int {
	removed := 0
	// Walk backward over a swap-remove-mutated slice.
	for i := len(ru.files) - 1; i >= 0; i-- {
		if i >= len(ru.files) {
			continue
		}
		f := ru.files[i]
		if f.ExpiresAt <= now {
			ru.RemoveFile(f, now)
			removed++
		}
	}
	if removed > 0 {
		glog.V(3).Infof("rucio: reaper removed %d file(s) at tick %d", removed, now)
	}
	return removed
}
