/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

// File is the logical data object. A File does not own its Replicas: the
// owning handle lives on the StorageElement that hosts each replica (spec.md
// §9 "single ownership with index back-references"). File.replicas is a
// non-owning back-reference list kept in sync by StorageElement.
type File struct {
	ID        ID
	CreatedAt Tick
	ExpiresAt Tick // mutable; may be extended, never shortened
	Size      Space
	Popularity uint32 // default 1; may be set by a generator

	replicas      []*Replica // non-owning
	indexAtRucio  int        // swap-remove index maintained by Rucio
}

// NewFile constructs a File with default popularity 1.
func NewFile(id ID, now, expiresAt Tick, size Space) *File {
	return &File{
		ID:         id,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		Size:       size,
		Popularity: 1,
	}
}

// Replicas returns the File's current (non-owning) replica back-references.
func (f *File) Replicas() []*Replica { return f.replicas }

// NumReplicas is the count of live replicas of this file.
func (f *File) NumReplicas() int { return len(f.replicas) }

// ExtendExpiry raises ExpiresAt if newExpiry is later; expiry is never
// shortened (spec.md §3 File invariant).
func (f *File) ExtendExpiry(newExpiry Tick) {
	if newExpiry > f.ExpiresAt {
		f.ExpiresAt = newExpiry
	}
}

// addReplica appends a non-owning back-reference; called by
// StorageElement.CreateReplica after it takes ownership.
func (f *File) addReplica(r *Replica) {
	f.replicas = append(f.replicas, r)
	// Invariant: f.ExpiresAt >= max(r.ExpiresAt for r in f.replicas).
	f.ExtendExpiry(r.ExpiresAt)
}

// removeReplica drops the back-reference via swap-remove. It does not touch
// the StorageElement's owning slice — callers go through
// StorageElement.RemoveReplica which calls this.
func (f *File) removeReplica(r *Replica) {
	for i, cand := range f.replicas {
		if cand == r {
			last := len(f.replicas) - 1
			f.replicas[i] = f.replicas[last]
			f.replicas[last] = nil
			f.replicas = f.replicas[:last]
			return
		}
	}
}

// ExpiredReplicas returns (without removing) the replicas whose ExpiresAt
// has passed, for generators that want to take custody before a reaper
// sweep would otherwise drop them (spec.md §4.2 "extract_expired_replicas").
func (f *File) ExpiredReplicas(now Tick) []*Replica {
	var out []*Replica
	for _, r := range f.replicas {
		if r.ExpiresAt <= now {
			out = append(out, r)
		}
	}
	return out
}
