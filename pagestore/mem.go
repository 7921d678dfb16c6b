// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pagestore

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/internal/base"
)

// MemProvider is a Provider that keeps every page in memory. It is used for
// ephemeral stores and tests.
type MemProvider struct {
	pageSize int
	maxPages uint64
	mu       struct {
		sync.Mutex
		pages  [][]byte
		pinned int
		root   [RootSize]byte
	}
}

var _ Provider = (*MemProvider)(nil)

// NewMemProvider returns a MemProvider with the given page size. If maxPages
// is non-zero, Claim fails with an allocation failure once maxPages pages
// exist.
func NewMemProvider(pageSize int, maxPages uint64) *MemProvider {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MemProvider{pageSize: pageSize, maxPages: maxPages}
}

// PageSize implements Provider.
func (p *MemProvider) PageSize() int { return p.pageSize }

// NumPages implements Provider.
func (p *MemProvider) NumPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.mu.pages))
}

// Claim implements Provider.
func (p *MemProvider) Claim() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxPages > 0 && uint64(len(p.mu.pages)) >= p.maxPages {
		return nil, base.MarkAllocationFailure(
			errors.Newf("pagestore: page limit %d reached", p.maxPages))
	}
	data := make([]byte, p.pageSize)
	id := PageID(len(p.mu.pages))
	p.mu.pages = append(p.mu.pages, data)
	p.mu.pinned++
	return &Page{ID: id, Data: data}, nil
}

// Pin implements Provider.
func (p *MemProvider) Pin(id PageID) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint64(id) >= uint64(len(p.mu.pages)) {
		return nil, base.CorruptionErrorf("pagestore: %s out of range (%d pages)", id, len(p.mu.pages))
	}
	p.mu.pinned++
	return &Page{ID: id, Data: p.mu.pages[id]}, nil
}

// Unpin implements Provider.
func (p *MemProvider) Unpin(page *Page, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mu.pinned == 0 {
		base.AssertionFailedf("pagestore: unpin of %s without matching pin", page.ID)
	}
	p.mu.pinned--
}

// Pinned returns the number of outstanding pins.
func (p *MemProvider) Pinned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.pinned
}

// Root implements Provider.
func (p *MemProvider) Root() [RootSize]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.root
}

// SetRoot implements Provider.
func (p *MemProvider) SetRoot(root [RootSize]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.root = root
	return nil
}

// Sync implements Provider.
func (p *MemProvider) Sync() error { return nil }

// Close implements Provider.
func (p *MemProvider) Close() error { return nil }
