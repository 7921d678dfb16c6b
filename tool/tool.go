// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the introspection commands of the metastore
// command line tool.
package tool

import (
	"github.com/colmeta/metastore"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/vfs"
	"github.com/spf13/cobra"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	store    *storeT
	bitpack  *bitpackT
	bench    *benchT
	opts     metastore.Options
}

// Option is a functional option for configuring the tools.
type Option func(*T)

// FS sets the file system used to open stores.
func FS(fs vfs.FS) Option {
	return func(t *T) {
		t.opts.FS = fs
	}
}

// Logger sets the logger passed to opened stores.
func Logger(logger base.Logger) Option {
	return func(t *T) {
		t.opts.Logger = logger
	}
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{
		opts: metastore.Options{
			FS:               vfs.Default,
			Logger:           base.DefaultLogger,
			ReadOnly:         true,
			ErrorIfNotExists: true,
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	t.store = newStore(&t.opts)
	t.bitpack = newBitpack()
	t.bench = newBench(&t.opts)
	t.Commands = []*cobra.Command{
		t.store.Root,
		t.store.Chain,
		t.bitpack.Root,
		t.bench.Root,
	}
	return t
}
