/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import "fmt"

// ConfigError reports a malformed or incompatible evaluation setup: a nil or
// invalid blueprint, transcript, or rubric. Configuration errors abort the
// run before any result exists and are never retried.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// HardFailure reports an unavailable upstream collaborator, such as the
// transcript source or the run store. A hard failure aborts the run with
// status failed_hard and no partial evaluation is ever persisted.
type HardFailure struct {
	// Op names the collaborator that was unavailable, e.g. "transcript
	// source" or "run store".
	Op  string
	Err error
}

func (e *HardFailure) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Op, e.Err)
}

func (e *HardFailure) Unwrap() error {
	return e.Err
}
