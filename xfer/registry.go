/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"github.com/gacspp/gacsim/core"
	"github.com/gacspp/gacsim/output"
	"github.com/pkg/errors"
)

// Build constructs a Manager of the named kind (KindBandwidth or
// KindFixedTime — spec.md §6's transferCfgs[].type). Callers that need to
// create transfers type-assert the returned Manager back to its concrete
// type, since BandwidthManager.CreateTransfer and
// FixedTimeManager.CreateTransfer take different parameters (manager.go).
func Build(kind string, idgen *core.IDGen, sink output.Sink) (Manager, error) {
	switch kind {
	case KindBandwidth:
		return NewBandwidthManager(idgen, sink)
	case KindFixedTime:
		return NewFixedTimeManager(idgen, sink)
	default:
		return nil, errors.Errorf("xfer: unknown manager kind %q", kind)
	}
}
