// Package gcfg loads and validates the simulator's nested JSON configuration
// tree (spec.md §6) and provides the ValueGenerator family used throughout
// the core to sample cadence, sizes, and lifetimes.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gcfg

import "github.com/pkg/errors"

// ConfigError wraps a malformed-config condition: bad JSON, missing keys,
// references to unknown storage elements, duplicate names, inconsistent
// links. Fatal at startup — the core refuses to run if any are present
// (spec.md §7).
type ConfigError struct {
	Path string // dotted path into the config tree, best-effort
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err with path context.
func NewConfigError(path string, err error) *ConfigError {
	return &ConfigError{Path: path, Err: errors.WithStack(err)}
}

// Errorf builds a ConfigError from a format string, in the teacher's
// pkg/errors idiom.
func Errorf(path, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Path: path, Err: errors.Errorf(format, args...)}
}
