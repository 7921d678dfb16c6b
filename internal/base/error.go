// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker to indicate that data in a block chain or a store
// file is corrupted or truncated.
var ErrCorruption = errors.New("metastore: corruption")

// ErrAllocationFailure is a marker to indicate that the backing medium could
// not supply a new page or block (disk full, page table exhausted, I/O error).
var ErrAllocationFailure = errors.New("metastore: allocation failure")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if err == nil || errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkAllocationFailure marks the given error as an allocation failure.
func MarkAllocationFailure(err error) error {
	if errors.Is(err, ErrAllocationFailure) {
		return err
	}
	return errors.Mark(err, ErrAllocationFailure)
}

// IsAllocationFailure returns true if the given error indicates that a page
// or block could not be allocated.
func IsAllocationFailure(err error) bool {
	return errors.Is(err, ErrAllocationFailure)
}

// AssertionFailedf panics with an assertion failure. It is used for
// programming errors (caller misuse) that are not recoverable.
func AssertionFailedf(format string, args ...interface{}) {
	panic(errors.AssertionFailedf(format, args...))
}
