/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package output

import (
	"testing"

	"github.com/tidwall/buntdb"
)

func countRows(t *testing.T, db *buntdb.DB, table string) int {
	t.Helper()
	n := 0
	if err := db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(table+":*", func(key, value string) bool {
			n++
			return true
		})
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return n
}

func TestBuntSinkCreateTableIsIdempotent(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()

	cols := []ColumnDecl{{Name: "id", Type: "id"}}
	if err := s.CreateTable("Sites", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.CreateTable("Sites", []ColumnDecl{{Name: "other", Type: "string"}}); err != nil {
		t.Fatalf("CreateTable (second call): %v", err)
	}
	if len(s.columns["Sites"]) != 1 || s.columns["Sites"][0].Name != "id" {
		t.Fatalf("expected second CreateTable call to be a no-op, got %+v", s.columns["Sites"])
	}
}

func TestBuntSinkInsertRowIsSynchronous(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()

	if err := s.CreateTable("Sites", []ColumnDecl{{Name: "id", Type: "id"}, {Name: "name", Type: "string"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.InsertRow("Sites", []Value{U64(1), Str("CERN")}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	// No queue involved, so the row must already be visible.
	if n := countRows(t, s.db, "Sites"); n != 1 {
		t.Fatalf("expected 1 row visible immediately, got %d", n)
	}
}

func TestBuntSinkPrepareInsertRejectsUnknownTable(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()

	if _, err := s.PrepareInsert("Transfers", []string{"id"}, '?'); err == nil {
		t.Fatalf("expected error for PrepareInsert on a table that was never created")
	}
}

func TestBuntSinkQueueInsertsWritesRowsAsynchronously(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()

	cols := []ColumnDecl{{Name: "id", Type: "id"}, {Name: "traffic", Type: "space"}}
	if err := s.CreateTable("Transfers", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	pi, err := s.PrepareInsert("Transfers", []string{"id", "traffic"}, '?')
	if err != nil {
		t.Fatalf("PrepareInsert: %v", err)
	}

	vc := pi.CreateValuesContainer(2)
	vc.AddValue(U64(1))
	vc.AddValue(U64(100))
	vc.AddValue(U64(2))
	vc.AddValue(U64(200))

	if err := s.QueueInserts(pi, vc); err != nil {
		t.Fatalf("QueueInserts: %v", err)
	}

	// Close drains the queue via the writer goroutine before returning, so
	// the rows are guaranteed visible afterwards without an arbitrary sleep.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := countRows(t, s.db, "Transfers"); n != 2 {
		t.Fatalf("expected 2 rows written by the async writer, got %d", n)
	}
}

func TestBuntSinkQueueInsertsSkipsEmptyContainer(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()

	if err := s.CreateTable("Traces", []ColumnDecl{{Name: "id", Type: "id"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	pi, err := s.PrepareInsert("Traces", []string{"id"}, '?')
	if err != nil {
		t.Fatalf("PrepareInsert: %v", err)
	}
	empty := pi.CreateValuesContainer(0)
	if err := s.QueueInserts(pi, empty); err != nil {
		t.Fatalf("expected nil error queuing an empty container, got %v", err)
	}
}

func TestBuntSinkQueueInsertsReturnsErrSinkFullWhenSaturated(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 1)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	defer s.Close()
	// Generous retry budget so the first two sends have time to land (one
	// picked up by the writer's in-flight batch, one sitting in the
	// capacity-1 channel buffer) despite goroutine-scheduling jitter.
	s.BackpressureRetries = 2000

	if err := s.CreateTable("Traces", []ColumnDecl{{Name: "id", Type: "id"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	pi, err := s.PrepareInsert("Traces", []string{"id"}, '?')
	if err != nil {
		t.Fatalf("PrepareInsert: %v", err)
	}

	// Block the writer goroutine by holding an open write transaction on the
	// same db, so queued batches pile up against the bounded channel.
	tx, err := s.db.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback()

	makeBatch := func(id uint64) *ValuesContainer {
		vc := pi.CreateValuesContainer(1)
		vc.AddValue(U64(id))
		return vc
	}

	// The writer can hold at most one batch in flight plus one buffered in
	// the capacity-1 channel while its db.Update is wedged on the held
	// write lock above; a third send has nowhere to go and must exhaust its
	// retry budget.
	if err := s.QueueInserts(pi, makeBatch(1)); err != nil {
		t.Fatalf("expected first QueueInserts to succeed, got %v", err)
	}
	if err := s.QueueInserts(pi, makeBatch(2)); err != nil {
		t.Fatalf("expected second QueueInserts to succeed, got %v", err)
	}
	if err := s.QueueInserts(pi, makeBatch(3)); err != ErrSinkFull {
		t.Fatalf("expected ErrSinkFull once the queue saturates, got %v", err)
	}
}

func TestBuntSinkCloseIsIdempotent(t *testing.T) {
	s, err := OpenBuntSink(":memory:", 4)
	if err != nil {
		t.Fatalf("OpenBuntSink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestValueConstructorsTagKind(t *testing.T) {
	cases := []struct {
		v    Value
		kind ValueKind
	}{
		{F64(1.5), KindF64},
		{I32(-2), KindI32},
		{U32(3), KindU32},
		{U64(4), KindU64},
		{Str("x"), KindString},
	}
	for _, c := range cases {
		if c.v.Kind != c.kind {
			t.Fatalf("expected kind %v, got %v", c.kind, c.v.Kind)
		}
	}
}

func TestValuesContainerMergeIfPossible(t *testing.T) {
	pi := &PreparedInsert{Table: "Traces", Columns: []string{"a", "b"}}
	vc := pi.CreateValuesContainer(1)
	vc.AddValue(U64(1))
	vc.AddValue(U64(2))

	other := pi.CreateValuesContainer(1)
	other.AddValue(U64(3))
	other.AddValue(U64(4))

	if ok := vc.MergeIfPossible(other); !ok {
		t.Fatalf("expected merge of equal-arity containers to succeed")
	}
	if vc.NumRows() != 2 {
		t.Fatalf("expected 2 merged rows, got %d", vc.NumRows())
	}

	mismatched := &ValuesContainer{numCols: 3}
	if ok := vc.MergeIfPossible(mismatched); ok {
		t.Fatalf("expected merge of mismatched arity containers to fail")
	}
}

func TestRequiredTablesCoversCoreTables(t *testing.T) {
	tables := RequiredTables()
	for _, name := range []string{"Sites", "StorageElements", "NetworkLinks", "Files", "Replicas", "Transfers", "Traces", "Bills"} {
		if _, ok := tables[name]; !ok {
			t.Fatalf("expected RequiredTables to include %q", name)
		}
	}
}
