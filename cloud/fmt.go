/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import (
	"strconv"

	"github.com/gacspp/gacsim/core"
)

func tickString(t core.Tick) string { return strconv.FormatUint(uint64(t), 10) }
func floatString(f float64) string  { return strconv.FormatFloat(f, 'f', 6, 64) }
func uintString(u uint64) string    { return strconv.FormatUint(u, 10) }
