// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metastore

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/metadata"
	"github.com/colmeta/metastore/pagestore"
	"github.com/colmeta/metastore/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the optional parameters for configuring a Store. These
// options apply to the Store at large; per-writer and per-reader options do
// not exist.
type Options struct {
	// BlockSize is the size of each metadata block, including the 8-byte
	// forward link. It must divide PageSize.
	//
	// The default value is 4096.
	BlockSize int

	// ErrorIfNotExists causes an error on Open if the store does not already
	// exist.
	ErrorIfNotExists bool

	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// MaxPages limits the number of pages the store may claim. Block
	// allocations that need a page beyond the limit fail with an error
	// satisfying IsAllocationFailure. Zero means unlimited.
	MaxPages uint64

	// PageSize is the unit in which the store grows its backing file. When
	// opening an existing store it must be zero or match the page size the
	// store was created with. Zero selects 256 KB for new stores and the
	// recorded page size for existing ones.
	PageSize int

	// Provider, if set, supplies pages instead of the file named by the
	// directory passed to Open. FS, PageSize, MaxPages and SyncLatency are
	// ignored. The Store takes ownership of the provider and closes it.
	Provider pagestore.Provider

	// ReadOnly indicates that the store should be opened in read-only mode.
	// Writers cannot allocate blocks and the root pointer cannot be changed.
	ReadOnly bool

	// SyncLatency, if set, observes the latency in seconds of every fsync of
	// the store's file.
	SyncLatency prometheus.Histogram
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
	}
	return n
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.BlockSize <= 0 {
		o.BlockSize = metadata.DefaultBlockSize
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// Validate verifies that the options are mutually consistent. For example,
// BlockSize must divide PageSize.
func (o *Options) Validate() error {
	var buf strings.Builder
	if o.BlockSize <= metadata.HeaderSize {
		fmt.Fprintf(&buf, "BlockSize (%d) must be > %d\n", o.BlockSize, metadata.HeaderSize)
	}
	pageSize := o.PageSize
	switch {
	case o.Provider != nil:
		pageSize = o.Provider.PageSize()
	case pageSize < 0:
		fmt.Fprintf(&buf, "PageSize (%d) must be >= 0\n", pageSize)
	}
	if pageSize > 0 && o.BlockSize > 0 {
		if pageSize%o.BlockSize != 0 {
			fmt.Fprintf(&buf, "PageSize (%s) must be a multiple of BlockSize (%s)\n",
				humanBytes(pageSize), humanBytes(o.BlockSize))
		} else if n := pageSize / o.BlockSize; n > metadata.MaxBlocksPerPage {
			fmt.Fprintf(&buf, "PageSize (%s) / BlockSize (%s) must be <= %d, got %d\n",
				humanBytes(pageSize), humanBytes(o.BlockSize), metadata.MaxBlocksPerPage, n)
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

func humanBytes(n int) string {
	return string(crhumanize.Bytes(uint64(n), crhumanize.Compact, crhumanize.OmitI))
}
