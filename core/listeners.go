/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

// FileActionListener is notified before a File is removed from Rucio. The
// reaper and transfer generators that keep per-file side state (e.g. the
// cached-source bin index) register as listeners instead of polling.
type FileActionListener interface {
	PreRemoveFile(f *File, now Tick)
}

// StorageElementActionListener is notified of replica lifecycle events on a
// particular StorageElement. TransferManagers and cloud cost accounting
// register as listeners.
type StorageElementActionListener interface {
	PostCreateReplica(se *StorageElement, r *Replica, now Tick)
	PreRemoveReplica(se *StorageElement, r *Replica, now Tick)
	PostCompleteReplica(se *StorageElement, r *Replica, now Tick)
	OnOperation(se *StorageElement, op OperationKind, now Tick)
}

// OperationKind distinguishes write-like (ClassA) from read-like (ClassB)
// cloud operations for billing purposes (spec.md §4.8).
type OperationKind uint8

const (
	OpInsert OperationKind = iota // ClassA
	OpGet                         // ClassB
)

// ReplicaPreRemoveListener is a single, optional listener attached directly
// to a Replica — used by a TransferManager to learn that its destination (or
// source) replica is being removed mid-transfer so it can mark the transfer
// failed. Unlike FileActionListener/StorageElementActionListener this is not
// a broadcast list: spec.md §3 calls out "optional pre_remove_listener
// (single, for transfer cancellation)".
type ReplicaPreRemoveListener interface {
	// PreRemoveReplica is invoked synchronously before the replica's storage
	// is released. Returning false tells the replica it may drop the
	// listener reference immediately (the listener has no further interest).
	PreRemoveReplica(r *Replica, now Tick) (keep bool)
}
