// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"errors"
	"fmt"
)

// InputRangeError rejects a run before any stage executes.
type InputRangeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputRangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputRangeError) Unwrap() error { return e.Err }

// StorageError wraps a read or write failure inside a stage.
type StorageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s stage: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsInputRange reports whether err is (or wraps) an *InputRangeError.
func IsInputRange(err error) bool {
	var ire *InputRangeError
	return errors.As(err, &ire)
}

// IsStorage reports whether err is (or wraps) a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(stage Stage, op string, err error) error {
	return &StorageError{Stage: stage, Op: op, Err: err}
}
