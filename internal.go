// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metastore

import (
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/metadata"
)

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger value.
var DefaultLogger = base.DefaultLogger

// BlockID exports the metadata.BlockID type.
type BlockID = metadata.BlockID

// BlockPointer exports the metadata.BlockPointer type.
type BlockPointer = metadata.BlockPointer

// MetaBlockPointer exports the metadata.MetaBlockPointer type.
type MetaBlockPointer = metadata.MetaBlockPointer

// Writer exports the metadata.Writer type.
type Writer = metadata.Writer

// Reader exports the metadata.Reader type.
type Reader = metadata.Reader

// InvalidPointer is the pointer reported by Root before any root has been
// set.
var InvalidPointer = metadata.InvalidPointer

// ErrCorruption is a marker to indicate that data in a file (the store's
// header or a block chain) is corrupted.
var ErrCorruption = base.ErrCorruption

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}

// IsAllocationFailure returns true if the given error indicates that a block
// could not be allocated.
func IsAllocationFailure(err error) bool {
	return base.IsAllocationFailure(err)
}
