// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package pagestore provides the fixed-size pages that metadata blocks are
// carved out of.
//
// A Provider hands out pinned pages: a pinned page's bytes stay addressable
// until it is unpinned. Two providers exist: MemProvider keeps every page in
// memory and FileProvider persists pages to a single file on a vfs.FS.
package pagestore

import "fmt"

// PageID identifies a page within a provider. Pages are numbered densely from
// zero in the order they were claimed.
type PageID uint64

// String implements fmt.Stringer.
func (id PageID) String() string {
	return fmt.Sprintf("page-%d", uint64(id))
}

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 256 << 10

// RootSize is the size of the opaque root record persisted by a provider.
const RootSize = 12

// Page is a pinned page. Data has length equal to the provider's page size and
// remains valid until the page is unpinned.
type Page struct {
	ID   PageID
	Data []byte
}

// Provider is the capability interface through which pages are claimed and
// accessed. Implementations are safe for concurrent use.
type Provider interface {
	// PageSize returns the size in bytes of every page.
	PageSize() int

	// NumPages returns the number of pages claimed so far. Every id in
	// [0, NumPages()) can be pinned.
	NumPages() uint64

	// Claim allocates a new zeroed page and returns it pinned. The returned
	// error is marked as an allocation failure (base.IsAllocationFailure)
	// when the medium cannot grow.
	Claim() (*Page, error)

	// Pin returns the page with the given id, reading it from the backing
	// medium if necessary.
	Pin(id PageID) (*Page, error)

	// Unpin releases a reference obtained from Claim or Pin. If dirty is true
	// the page contents were modified and will be persisted by the next Sync.
	Unpin(p *Page, dirty bool)

	// Root returns the root record last passed to SetRoot.
	Root() [RootSize]byte

	// SetRoot updates the root record. It is persisted by the next Sync.
	SetRoot(root [RootSize]byte) error

	// Sync persists dirty pages and the root record.
	Sync() error

	// Close syncs (unless read-only) and releases resources.
	Close() error
}
