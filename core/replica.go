/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

// Replica is a copy of a File resident at exactly one StorageElement.
// Ownership: the StorageElement holds the strong (owning) handle; File and
// any in-flight Transfer hold only this pointer as a non-owning reference
// (spec.md §9).
type Replica struct {
	ID        ID
	File      *File // non-owning back-reference
	StorageElement *StorageElement // non-owning back-reference
	CreatedAt Tick
	ExpiresAt Tick // <= File.ExpiresAt, or the file must be extended first

	CurrentSize Space // monotonic, clamped to File.Size

	// IndexAtStorageElement supports O(1) swap-remove from the owning
	// StorageElement's replica slice.
	IndexAtStorageElement int

	NumStagedIn  uint32 // usage bookkeeping for job-style generators
	UsageCounter uint32

	preRemoveListener ReplicaPreRemoveListener // single, optional
}

// IsComplete reports whether the replica holds the full file.
func (r *Replica) IsComplete() bool { return r.CurrentSize >= r.File.Size }

// SetPreRemoveListener attaches the single optional pre-remove listener
// (used by a TransferManager to fail an in-flight transfer). Attaching a new
// listener replaces any previous one — spec.md describes this as a single
// slot, not a broadcast list.
func (r *Replica) SetPreRemoveListener(l ReplicaPreRemoveListener) {
	r.preRemoveListener = l
}

// ClearPreRemoveListener detaches the listener if it is still l (a
// completed/failed transfer should stop being consulted once it's done with
// this replica, even if the replica outlives it).
func (r *Replica) ClearPreRemoveListener(l ReplicaPreRemoveListener) {
	if r.preRemoveListener == l {
		r.preRemoveListener = nil
	}
}

// Increase grows the replica's current size by amount, clamped so it never
// exceeds the file size, and reports the actually-applied delta (spec.md §8
// "increase(Δ) beyond file size clips and returns the clipped delta").
// It notifies the owning StorageElement via OnIncreaseReplica so used/
// allocated accounting and any cloud cost listeners stay in sync.
func (r *Replica) Increase(amount Space, now Tick) Space {
	maxDelta := r.File.Size - r.CurrentSize
	if amount > maxDelta {
		amount = maxDelta
	}
	if amount == 0 {
		return 0
	}
	wasComplete := r.IsComplete()
	r.CurrentSize += amount
	if r.StorageElement != nil {
		r.StorageElement.onIncreaseReplica(r, amount, now, wasComplete)
	}
	return amount
}
