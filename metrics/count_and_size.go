// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metrics contains the counters reported by the block manager and the
// store.
package metrics

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/colmeta/metastore/internal/invariants"
	"github.com/cockroachdb/redact"
)

// CountAndSize tracks the number and total size of a set of blocks or pages.
type CountAndSize struct {
	Count uint64
	Bytes uint64
}

// Inc adds a single item of the given size.
func (cs *CountAndSize) Inc(size uint64) {
	cs.Count++
	cs.Bytes += size
}

// Dec removes a single item of the given size.
func (cs *CountAndSize) Dec(size uint64) {
	cs.Count = invariants.SafeSub(cs.Count, 1)
	cs.Bytes = invariants.SafeSub(cs.Bytes, size)
}

// Add increases the count and size by the given amounts.
func (cs *CountAndSize) Add(other CountAndSize) {
	cs.Count += other.Count
	cs.Bytes += other.Bytes
}

// IsZero returns true if there are no items.
func (cs CountAndSize) IsZero() bool {
	return cs.Count == 0 && cs.Bytes == 0
}

func (cs CountAndSize) String() string {
	return redact.StringWithoutMarkers(cs)
}

// SafeFormat implements redact.SafeFormatter.
func (cs CountAndSize) SafeFormat(w redact.SafePrinter, verb rune) {
	w.Printf("%s (%s)", crhumanize.Count(cs.Count, crhumanize.Compact),
		crhumanize.Bytes(cs.Bytes, crhumanize.Compact, crhumanize.OmitI))
}

// BlockMetrics describes the blocks managed by a block manager.
type BlockMetrics struct {
	// Pages is the number of pages claimed from the page provider.
	Pages CountAndSize
	// InUse is the number of blocks handed out by AllocateHandle and not
	// freed since.
	InUse CountAndSize
	// Free is the number of blocks on the free list.
	Free CountAndSize
	// Pinned is the number of outstanding block handles.
	Pinned uint64
	// AllocationFailures is the number of failed block allocations.
	AllocationFailures uint64
}

func (m BlockMetrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m BlockMetrics) SafeFormat(w redact.SafePrinter, verb rune) {
	w.Printf("pages: %s\n", m.Pages)
	w.Printf("in-use: %s\n", m.InUse)
	w.Printf("free: %s\n", m.Free)
	w.Printf("pinned: %d  allocation-failures: %d", redact.Safe(m.Pinned), redact.Safe(m.AllocationFailures))
}
