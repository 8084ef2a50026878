/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// DuplicationPolicy selects whether a StorageElement may host more than one
// Replica of the same File. spec.md §9 re-architects the teacher's
// base/unique-replica delegate split as a single field rather than a
// subclass pair.
type DuplicationPolicy uint8

const (
	AllowDuplicateReplicas DuplicationPolicy = iota
	UniqueReplicaPerFile
)

// ErrQuotaExceeded is returned by CreateReplica when the target has no room
// left under its quota. Recovered locally by the caller (skip, retry
// elsewhere, or defer) — never fatal (spec.md §7).
var ErrQuotaExceeded = errors.New("storage element: quota exceeded")

// ErrDuplicateReplica is returned by CreateReplica when the element's
// DuplicationPolicy is UniqueReplicaPerFile and a replica of the file
// already exists there.
var ErrDuplicateReplica = errors.New("storage element: duplicate replica")

// StorageElement is a logical storage endpoint owning Replicas, tracking
// used/allocated space against an optional quota, and owning its outgoing
// NetworkLinks.
type StorageElement struct {
	ID   ID
	Name string
	Site Site // non-owning

	Limit Space // 0 = unlimited
	used      atomic.Uint64
	allocated atomic.Uint64

	AccessLatency ValueGeneratorFunc // sampled per access; may be nil

	Policy DuplicationPolicy

	replicas    []*Replica       // owning
	byFileID    map[ID][]*Replica // index for the unique-replica / lookup fast path

	links   []*NetworkLink // owning, keyed by dst id below
	linkIdx map[ID]int

	listeners []StorageElementActionListener

	// removeMu is the design hook named in spec.md §5/§9 for a future
	// parallel reaper; the single-threaded baseline never contends it.
	removeMu sync.Mutex
}

// ValueGeneratorFunc samples a numeric value; see gcfg.ValueGenerator for the
// concrete implementations (fixed/normal/exponential/...). Declared here as
// a function type so core has no import dependency on gcfg.
type ValueGeneratorFunc func() float64

// NewStorageElement constructs an unlimited, duplicate-allowing storage
// element; callers configure Limit/Policy/AccessLatency afterward.
func NewStorageElement(id ID, name string, site Site) *StorageElement {
	return &StorageElement{
		ID:       id,
		Name:     name,
		Site:     site,
		byFileID: make(map[ID][]*Replica),
		linkIdx:  make(map[ID]int),
	}
}

func (se *StorageElement) Used() Space      { return Space(se.used.Load()) }
func (se *StorageElement) Allocated() Space { return Space(se.allocated.Load()) }
func (se *StorageElement) Replicas() []*Replica { return se.replicas }

// AddListener registers a StorageElementActionListener (e.g. a
// TransferManager or the cloud cost accumulator).
func (se *StorageElement) AddListener(l StorageElementActionListener) {
	se.listeners = append(se.listeners, l)
}

func (se *StorageElement) fire(fn func(StorageElementActionListener)) {
	for _, l := range se.listeners {
		fn(l)
	}
}

// OnOperation fires a GET/INSERT operation event used for cloud operation
// billing (spec.md §4.8). Generators and transfer managers call this
// directly; it does not mutate storage.
func (se *StorageElement) OnOperation(op OperationKind, now Tick) {
	se.fire(func(l StorageElementActionListener) { l.OnOperation(se, op, now) })
}

// CreateReplica reserves file.Size bytes toward the quota and returns a new
// Replica, or an error (ErrQuotaExceeded, ErrDuplicateReplica) recoverable
// by the caller.
func (se *StorageElement) CreateReplica(file *File, now Tick, idgen *IDGen) (*Replica, error) {
	if se.Policy == UniqueReplicaPerFile {
		if existing := se.byFileID[file.ID]; len(existing) > 0 {
			return nil, ErrDuplicateReplica
		}
	}
	if se.Limit > 0 {
		if se.used.Load()+se.allocated.Load()+uint64(file.Size) > uint64(se.Limit) {
			return nil, ErrQuotaExceeded
		}
	}
	r := &Replica{
		ID:             idgen.Next(),
		File:           file,
		StorageElement: se,
		CreatedAt:      now,
		ExpiresAt:      file.ExpiresAt,
		IndexAtStorageElement: len(se.replicas),
	}
	se.replicas = append(se.replicas, r)
	se.byFileID[file.ID] = append(se.byFileID[file.ID], r)
	se.allocated.Add(uint64(file.Size))
	file.addReplica(r)

	se.fire(func(l StorageElementActionListener) { l.PostCreateReplica(se, r, now) })
	return r, nil
}

// onIncreaseReplica updates used/allocated accounting and fires
// PostCompleteReplica exactly once, when this call makes the replica
// complete. Called from Replica.Increase.
func (se *StorageElement) onIncreaseReplica(r *Replica, amount Space, now Tick, wasComplete bool) {
	se.used.Add(uint64(amount))
	if uint64(amount) <= se.allocated.Load() {
		se.allocated.Sub(uint64(amount))
	} else {
		se.allocated.Store(0)
	}
	if !wasComplete && r.IsComplete() {
		se.fire(func(l StorageElementActionListener) { l.PostCompleteReplica(se, r, now) })
	}
}

// RemoveReplica fires pre-remove listeners (both the broadcast
// StorageElementActionListener list and the replica's own single
// pre-remove listener), releases its storage, de-links it from its file,
// and swap-removes it from this element's owning slice. needLock guards the
// design-hook mutex used only by a future parallel reaper; the
// single-threaded baseline can safely pass false.
func (se *StorageElement) RemoveReplica(r *Replica, now Tick, needLock bool) {
	if needLock {
		se.removeMu.Lock()
		defer se.removeMu.Unlock()
	}

	se.fire(func(l StorageElementActionListener) { l.PreRemoveReplica(se, r, now) })
	if r.preRemoveListener != nil {
		if !r.preRemoveListener.PreRemoveReplica(r, now) {
			r.preRemoveListener = nil
		}
	}

	residual := r.File.Size - r.CurrentSize
	se.used.Sub(minU64(uint64(r.CurrentSize), se.used.Load()))
	se.allocated.Sub(minU64(uint64(residual), se.allocated.Load()))

	r.File.removeReplica(r)
	se.removeFromByFileID(r)
	se.swapRemove(r)
}

func (se *StorageElement) removeFromByFileID(r *Replica) {
	list := se.byFileID[r.File.ID]
	for i, cand := range list {
		if cand == r {
			last := len(list) - 1
			list[i] = list[last]
			list = list[:last]
			break
		}
	}
	if len(list) == 0 {
		delete(se.byFileID, r.File.ID)
	} else {
		se.byFileID[r.File.ID] = list
	}
}

func (se *StorageElement) swapRemove(r *Replica) {
	idx := r.IndexAtStorageElement
	last := len(se.replicas) - 1
	se.replicas[idx] = se.replicas[last]
	se.replicas[idx].IndexAtStorageElement = idx
	se.replicas[last] = nil
	se.replicas = se.replicas[:last]
}

// HasReplicaOf reports whether this element already hosts a replica of
// file, used by the unique-replica policy and by transfer generators
// checking "already on dst" (spec.md §4.5.3 step 2).
func (se *StorageElement) HasReplicaOf(fileID ID) bool {
	return len(se.byFileID[fileID]) > 0
}

// ReplicaOf returns one replica of file on this element, if any.
func (se *StorageElement) ReplicaOf(fileID ID) *Replica {
	list := se.byFileID[fileID]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// CreateNetworkLink creates a new outgoing link to dst; asserts that dst.ID
// is not already the destination of an existing outgoing link.
func (se *StorageElement) CreateNetworkLink(id ID, dst *StorageElement, bandwidth Space) *NetworkLink {
	if _, ok := se.linkIdx[dst.ID]; ok {
		panic(errors.Errorf("storage element %q: duplicate outgoing link to %q", se.Name, dst.Name))
	}
	l := &NetworkLink{ID: id, Src: se, Dst: dst, BandwidthBytesPerSecond: bandwidth}
	se.linkIdx[dst.ID] = len(se.links)
	se.links = append(se.links, l)
	return l
}

// GetNetworkLink returns the outgoing link to dst, if any.
func (se *StorageElement) GetNetworkLink(dst *StorageElement) (*NetworkLink, bool) {
	idx, ok := se.linkIdx[dst.ID]
	if !ok {
		return nil, false
	}
	return se.links[idx], true
}

// NetworkLinks returns all outgoing links owned by this element.
func (se *StorageElement) NetworkLinks() []*NetworkLink { return se.links }

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
