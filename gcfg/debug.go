/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcfg

import (
	"fmt"

	"github.com/golang/glog"
)

// Assert panics (a programmer error, per spec.md §7) if cond is false.
// Mirrors the teacher's cmn/debug.Assert, which isn't retrieved into the
// pack; this is the minimal equivalent.
func Assert(cond bool, msg string) {
	if !cond {
		glog.Errorf("assertion failed: %s", msg)
		panic(msg)
	}
}

// Assertf is Assert with a format string.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		glog.Errorf(format, args...)
		panic(fmt.Sprintf(format, args...))
	}
}
