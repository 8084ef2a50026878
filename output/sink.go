// Package output defines the persistence-sink contract the core depends on
// (spec.md §6) and a default embedded implementation, output.BuntSink. The
// real persistence/output pipeline (an async producer/consumer queue
// writing rows to a relational store) is explicitly out of scope for the
// core (spec.md §1); this package exists only so the simulator can be run
// and tested end to end without a live external database.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package output

import "github.com/pkg/errors"

// ErrSinkFull is returned by QueueInserts when the sink's internal queue
// could not accept the batch within its back-pressure budget. The core
// must not drop data silently (spec.md §7 "SinkFull"): callers that get
// this back should retry, not discard.
var ErrSinkFull = errors.New("output: sink queue full")

// ValueKind tags the polymorphic Value union (spec.md §6: "f64 | i32 | u32
// | u64 | string").
type ValueKind uint8

const (
	KindF64 ValueKind = iota
	KindI32
	KindU32
	KindU64
	KindString
)

// Value is one column value of one row.
type Value struct {
	Kind ValueKind
	F64  float64
	I32  int32
	U32  uint32
	U64  uint64
	Str  string
}

func F64(v float64) Value  { return Value{Kind: KindF64, F64: v} }
func I32(v int32) Value    { return Value{Kind: KindI32, I32: v} }
func U32(v uint32) Value   { return Value{Kind: KindU32, U32: v} }
func U64(v uint64) Value   { return Value{Kind: KindU64, U64: v} }
func Str(v string) Value   { return Value{Kind: KindString, Str: v} }

// ColumnDecl is one column of a CreateTable call; Type is a semantic hint
// ("id", "tick", "space", "string", "float"), not a SQL type — the sink
// implementation is free to map it however it likes.
type ColumnDecl struct {
	Name string
	Type string
}

// PreparedInsert is a reusable, column-shaped insert statement handle
// returned by Sink.PrepareInsert, shared across many ValuesContainers the
// way the reference shares one prepared statement per table across a whole
// TransferManager (spec.md §4.4).
type PreparedInsert struct {
	Table        string
	Columns      []string
	WildcardChar byte
}

// CreateValuesContainer allocates a ValuesContainer sized for reserveHint
// rows of this insert's arity.
func (pi *PreparedInsert) CreateValuesContainer(reserveHint int) *ValuesContainer {
	return &ValuesContainer{
		numCols: len(pi.Columns),
		values:  make([]Value, 0, reserveHint*len(pi.Columns)),
	}
}

// ValuesContainer accumulates whole rows (each exactly numCols values) for
// one batched QueueInserts call.
type ValuesContainer struct {
	numCols int
	values  []Value
}

// AddValue appends one column value to the row currently being built.
func (vc *ValuesContainer) AddValue(v Value) { vc.values = append(vc.values, v) }

// IsEmpty reports whether no value has been added yet.
func (vc *ValuesContainer) IsEmpty() bool { return len(vc.values) == 0 }

// NumRows is the count of complete rows currently buffered.
func (vc *ValuesContainer) NumRows() int {
	if vc.numCols == 0 {
		return 0
	}
	return len(vc.values) / vc.numCols
}

// GetSize returns the number of raw values buffered (rows * columns),
// mirroring the reference's ValuesContainer::GetSize used for queue
// back-pressure accounting.
func (vc *ValuesContainer) GetSize() int { return len(vc.values) }

// MergeIfPossible appends other's rows onto vc when they share the same
// column arity, returning whether the merge happened. Used by a producer
// that wants to coalesce several small batches before queuing.
func (vc *ValuesContainer) MergeIfPossible(other *ValuesContainer) bool {
	if other == nil || other.numCols != vc.numCols {
		return false
	}
	vc.values = append(vc.values, other.values...)
	return true
}

// Row returns the i-th row's values as a slice view (read-only).
func (vc *ValuesContainer) Row(i int) []Value {
	start := i * vc.numCols
	return vc.values[start : start+vc.numCols]
}

// Sink is the persistence contract the core depends on (spec.md §6): an
// append-only destination for typed row batches, with its own internal
// buffering and a consumer that is not part of the core contract.
type Sink interface {
	CreateTable(name string, columns []ColumnDecl) error
	InsertRow(table string, row []Value) error
	PrepareInsert(table string, columns []string, wildcardChar byte) (*PreparedInsert, error)
	// QueueInserts is a non-blocking push of vc onto the sink's internal
	// queue; the sink's own consumer drains it asynchronously. Returns
	// ErrSinkFull if the queue could not accept the batch within the
	// sink's configured back-pressure budget.
	QueueInserts(pi *PreparedInsert, vc *ValuesContainer) error
	Close() error
}

// RequiredTables are the schemas every Sink implementation must accept
// (spec.md §6).
func RequiredTables() map[string][]ColumnDecl {
	return map[string][]ColumnDecl{
		"Sites": {
			{"id", "id"}, {"name", "string"}, {"location_name", "string"}, {"kind", "string"},
		},
		"StorageElements": {
			{"id", "id"}, {"site_id", "id"}, {"name", "string"},
		},
		"NetworkLinks": {
			{"id", "id"}, {"src_storage_id", "id"}, {"dst_storage_id", "id"},
		},
		"Files": {
			{"id", "id"}, {"created_at", "tick"}, {"expired_at", "tick"}, {"filesize", "space"}, {"popularity", "u32"},
		},
		"Replicas": {
			{"id", "id"}, {"file_id", "id"}, {"storage_element_id", "id"}, {"created_at", "tick"}, {"expired_at", "tick"},
		},
		"Transfers": {
			{"id", "id"}, {"src_storage_id", "id"}, {"dst_storage_id", "id"}, {"file_id", "id"},
			{"src_replica_id", "id"}, {"dst_replica_id", "id"}, {"queued_at", "tick"}, {"started_at", "tick"},
			{"finished_at", "tick"}, {"traffic", "space"},
		},
		"Traces": {
			{"id", "id"}, {"job_id", "id"}, {"storage_id", "id"}, {"file_id", "id"}, {"replica_id", "id"},
			{"type", "string"}, {"started_at", "tick"}, {"finished_at", "tick"}, {"traffic", "space"},
		},
		"Bills": {
			{"cloud_name", "string"}, {"month", "tick"}, {"bill", "string"},
		},
	}
}
