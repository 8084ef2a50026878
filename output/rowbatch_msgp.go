/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package output

import (
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// queuedBatch is what crosses the sink's internal queue boundary: a
// PreparedInsert's table/columns plus one ValuesContainer's values.
// QueueInserts sends it on the channel as a live Go struct; it is not
// encoded on that path. MarshalMsg/UnmarshalMsg below encode it as msgpack
// (github.com/tinylib/msgp/msgp), hand-written against the msgp runtime
// package with no codegen; nothing in the sink calls them.
type queuedBatch struct {
	table   string
	columns []string
	numCols int
	values  []Value
}

func newQueuedBatch(pi *PreparedInsert, vc *ValuesContainer) *queuedBatch {
	return &queuedBatch{
		table:   pi.Table,
		columns: pi.Columns,
		numCols: vc.numCols,
		values:  vc.values,
	}
}

// MarshalMsg implements msgp.Marshaler.
func (b *queuedBatch) MarshalMsg(dst []byte) ([]byte, error) {
	dst = msgp.AppendArrayHeader(dst, 4)
	dst = msgp.AppendString(dst, b.table)
	dst = msgp.AppendArrayHeader(dst, uint32(len(b.columns)))
	for _, c := range b.columns {
		dst = msgp.AppendString(dst, c)
	}
	dst = msgp.AppendInt(dst, b.numCols)
	dst = msgp.AppendArrayHeader(dst, uint32(len(b.values)))
	for _, v := range b.values {
		dst = appendValue(dst, v)
	}
	return dst, nil
}

func appendValue(dst []byte, v Value) []byte {
	dst = msgp.AppendUint8(dst, uint8(v.Kind))
	switch v.Kind {
	case KindF64:
		dst = msgp.AppendFloat64(dst, v.F64)
	case KindI32:
		dst = msgp.AppendInt32(dst, v.I32)
	case KindU32:
		dst = msgp.AppendUint32(dst, v.U32)
	case KindU64:
		dst = msgp.AppendUint64(dst, v.U64)
	case KindString:
		dst = msgp.AppendString(dst, v.Str)
	}
	return dst
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (b *queuedBatch) UnmarshalMsg(src []byte) ([]byte, error) {
	n, src, err := msgp.ReadArrayHeaderBytes(src)
	if err != nil {
		return src, err
	}
	if n != 4 {
		return src, errors.Errorf("output: queuedBatch: bad array header %d", n)
	}
	b.table, src, err = msgp.ReadStringBytes(src)
	if err != nil {
		return src, err
	}
	var nc uint32
	nc, src, err = msgp.ReadArrayHeaderBytes(src)
	if err != nil {
		return src, err
	}
	b.columns = make([]string, nc)
	for i := range b.columns {
		b.columns[i], src, err = msgp.ReadStringBytes(src)
		if err != nil {
			return src, err
		}
	}
	b.numCols, src, err = msgp.ReadIntBytes(src)
	if err != nil {
		return src, err
	}
	var nv uint32
	nv, src, err = msgp.ReadArrayHeaderBytes(src)
	if err != nil {
		return src, err
	}
	b.values = make([]Value, nv)
	for i := range b.values {
		b.values[i], src, err = readValue(src)
		if err != nil {
			return src, err
		}
	}
	return src, nil
}

func readValue(src []byte) (Value, []byte, error) {
	kind, src, err := msgp.ReadUint8Bytes(src)
	if err != nil {
		return Value{}, src, err
	}
	v := Value{Kind: ValueKind(kind)}
	switch v.Kind {
	case KindF64:
		v.F64, src, err = msgp.ReadFloat64Bytes(src)
	case KindI32:
		v.I32, src, err = msgp.ReadInt32Bytes(src)
	case KindU32:
		v.U32, src, err = msgp.ReadUint32Bytes(src)
	case KindU64:
		v.U64, src, err = msgp.ReadUint64Bytes(src)
	case KindString:
		v.Str, src, err = msgp.ReadStringBytes(src)
	default:
		err = errors.Errorf("output: unknown value kind %d", kind)
	}
	return v, src, err
}
