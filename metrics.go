// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metastore

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
	"github.com/colmeta/metastore/metrics"
)

// Metrics holds metrics for various subsystems of the store such as the
// block manager and the underlying file.
type Metrics struct {
	// Blocks describes the pages claimed and the blocks carved out of them.
	Blocks metrics.BlockMetrics
	// Checkpoints is the number of successful Checkpoint calls.
	Checkpoints int64
	// Syncs is the number of fsyncs of the store's file. It is zero for
	// stores backed by a custom provider.
	Syncs int64
	// OpenWriters and OpenReaders are the streams opened and not yet
	// closed.
	OpenWriters int
	OpenReaders int
	// BytesWritten is the payload written by closed writers.
	BytesWritten uint64
	// BytesRead is the payload consumed by closed readers.
	BytesRead uint64
}

// String pretty-prints the metrics.
func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

var _ redact.SafeFormatter = &Metrics{}

// SafeFormat implements redact.SafeFormatter.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%v\n", m.Blocks)
	w.Printf("streams: %d writers  %d readers open\n", redact.Safe(m.OpenWriters), redact.Safe(m.OpenReaders))
	w.Printf("bytes: %s written  %s read\n",
		crhumanize.Bytes(m.BytesWritten, crhumanize.Compact, crhumanize.OmitI),
		crhumanize.Bytes(m.BytesRead, crhumanize.Compact, crhumanize.OmitI))
	w.Printf("checkpoints: %d  syncs: %d", redact.Safe(m.Checkpoints), redact.Safe(m.Syncs))
}
