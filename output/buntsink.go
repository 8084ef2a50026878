/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package output

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"go.uber.org/atomic"
)

// BuntSink is the default Sink implementation: one tidwall/buntdb bucket
// per table, written by a single consumer goroutine draining a bounded
// channel — the bounded channel + one-producer/one-consumer shape spec.md
// §9 asks for, backed by an embeddable store so the simulator runs end to
// end without a live Postgres instance (the real relational store is
// explicitly out of core scope, spec.md §1).
type BuntSink struct {
	db *buntdb.DB

	mu      sync.Mutex
	columns map[string][]ColumnDecl
	counter map[string]*atomic.Uint64

	queue chan *queuedBatch
	wg    sync.WaitGroup

	closeOnce sync.Once

	// BackpressureRetries bounds how long QueueInserts spin-sleeps before
	// giving up and returning ErrSinkFull (spec.md §7: back-pressure by
	// short sleep-spin, never a silent drop).
	BackpressureRetries int
}

// OpenBuntSink opens (or creates) the backing buntdb database at path — use
// ":memory:" for a purely in-process run — and starts the writer goroutine.
func OpenBuntSink(path string, queueLen int) (*BuntSink, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "output: opening buntdb")
	}
	s := &BuntSink{
		db:                  db,
		columns:             make(map[string][]ColumnDecl),
		counter:             make(map[string]*atomic.Uint64),
		queue:               make(chan *queuedBatch, queueLen),
		BackpressureRetries: 1000,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *BuntSink) CreateTable(name string, columns []ColumnDecl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.columns[name]; ok {
		return nil
	}
	s.columns[name] = columns
	s.counter[name] = atomic.NewUint64(0)
	return nil
}

func (s *BuntSink) nextID(table string) uint64 {
	s.mu.Lock()
	c, ok := s.counter[table]
	if !ok {
		c = atomic.NewUint64(0)
		s.counter[table] = c
	}
	s.mu.Unlock()
	return c.Add(1)
}

// InsertRow writes a single row synchronously — used for the low-volume,
// one-shot tables (Sites, StorageElements, NetworkLinks) rather than the
// high-volume Transfers/Traces rows, which go through QueueInserts.
func (s *BuntSink) InsertRow(table string, row []Value) error {
	id := s.nextID(table)
	key := rowKey(table, id)
	val := encodeRow(row)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, val, nil)
		return err
	})
}

func (s *BuntSink) PrepareInsert(table string, columns []string, wildcardChar byte) (*PreparedInsert, error) {
	if _, ok := s.columns[table]; !ok {
		return nil, errors.Errorf("output: PrepareInsert: unknown table %q (CreateTable not called)", table)
	}
	return &PreparedInsert{Table: table, Columns: columns, WildcardChar: wildcardChar}, nil
}

// QueueInserts is a non-blocking push; it falls back to a short spin-sleep
// loop bounded by BackpressureRetries before surfacing ErrSinkFull, per
// spec.md §7 ("the producer back-pressures by short sleep-spin until space
// appears … must not drop data silently").
func (s *BuntSink) QueueInserts(pi *PreparedInsert, vc *ValuesContainer) error {
	if vc.IsEmpty() {
		return nil
	}
	b := newQueuedBatch(pi, vc)
	for attempt := 0; attempt < s.BackpressureRetries; attempt++ {
		select {
		case s.queue <- b:
			return nil
		default:
			time.Sleep(time.Microsecond)
		}
	}
	return ErrSinkFull
}

func (s *BuntSink) run() {
	defer s.wg.Done()
	for b := range s.queue {
		if err := s.writeBatch(b); err != nil {
			glog.Errorf("output: bunt writer: %v", err)
		}
	}
}

func (s *BuntSink) writeBatch(b *queuedBatch) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		rows := len(b.values) / b.numCols
		for i := 0; i < rows; i++ {
			row := b.values[i*b.numCols : (i+1)*b.numCols]
			id := s.nextID(b.table)
			if _, _, err := tx.Set(rowKey(b.table, id), encodeRow(row), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BuntSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func rowKey(table string, id uint64) string {
	return fmt.Sprintf("%s:%020d", table, id)
}

func encodeRow(row []Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = encodeValue(v)
	}
	return strings.Join(parts, "\x1f")
}

func encodeValue(v Value) string {
	switch v.Kind {
	case KindF64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindI32:
		return strconv.FormatInt(int64(v.I32), 10)
	case KindU32:
		return strconv.FormatUint(uint64(v.U32), 10)
	case KindU64:
		return strconv.FormatUint(v.U64, 10)
	case KindString:
		return v.Str
	default:
		return ""
	}
}
