/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sim

import (
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
	"github.com/golang/glog"
)

// rowSinkListener pushes Files and Replicas rows to the sink at removal
// time, per spec.md §8 scenario S5 ("Files and Replicas sink rows for each
// are emitted prior to removal"). It registers as both a
// core.FileActionListener (on Rucio) and a core.StorageElementActionListener
// (on every StorageElement).
type rowSinkListener struct {
	sink    output.Sink
	filesPI *output.PreparedInsert
	replPI  *output.PreparedInsert
}

func newRowSinkListener(sink output.Sink) (*rowSinkListener, error) {
	filesPI, err := sink.PrepareInsert("Files",
		[]string{"id", "created_at", "expired_at", "filesize", "popularity"}, '?')
	if err != nil {
		return nil, err
	}
	replPI, err := sink.PrepareInsert("Replicas",
		[]string{"id", "file_id", "storage_element_id", "created_at", "expired_at"}, '?')
	if err != nil {
		return nil, err
	}
	return &rowSinkListener{sink: sink, filesPI: filesPI, replPI: replPI}, nil
}

func (l *rowSinkListener) PreRemoveFile(f *core.File, now core.Tick) {
	vc := l.filesPI.CreateValuesContainer(1)
	vc.AddValue(output.U64(uint64(f.ID)))
	vc.AddValue(output.U64(uint64(f.CreatedAt)))
	vc.AddValue(output.U64(uint64(f.ExpiresAt)))
	vc.AddValue(output.U64(uint64(f.Size)))
	vc.AddValue(output.U32(f.Popularity))
	if err := l.sink.QueueInserts(l.filesPI, vc); err != nil {
		glog.Errorf("rowsink: queue Files row for file %d: %v", f.ID, err)
	}
}

func (l *rowSinkListener) PostCreateReplica(se *core.StorageElement, r *core.Replica, now core.Tick) {
}

func (l *rowSinkListener) PostCompleteReplica(se *core.StorageElement, r *core.Replica, now core.Tick) {
}

func (l *rowSinkListener) OnOperation(se *core.StorageElement, op core.OperationKind, now core.Tick) {
}

func (l *rowSinkListener) PreRemoveReplica(se *core.StorageElement, r *core.Replica, now core.Tick) {
	vc := l.replPI.CreateValuesContainer(1)
	vc.AddValue(output.U64(uint64(r.ID)))
	vc.AddValue(output.U64(uint64(r.File.ID)))
	vc.AddValue(output.U64(uint64(se.ID)))
	vc.AddValue(output.U64(uint64(r.CreatedAt)))
	vc.AddValue(output.U64(uint64(r.ExpiresAt)))
	if err := l.sink.QueueInserts(l.replPI, vc); err != nil {
		glog.Errorf("rowsink: queue Replicas row for replica %d: %v", r.ID, err)
	}
}
