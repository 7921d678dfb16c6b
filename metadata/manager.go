// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metadata implements chains of fixed-size metadata blocks.
//
// A Manager splits the pages of a pagestore.Provider into blocks and hands
// them out as exclusively owned Handles. A Writer presents an append-only byte
// stream that is transparently spread over a chain of blocks, and a Reader
// follows the same chain to read the stream back.
//
// Every block starts with an 8-byte little-endian forward link holding the id
// of the next block of the chain, or InvalidBlockID for the last block. The
// remaining bytes are payload:
//
//	+-------------------+-------------------------------+
//	| next BlockID (u64)| payload (BlockSize-8 bytes)   |
//	+-------------------+-------------------------------+
package metadata

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/internal/invariants"
	"github.com/colmeta/metastore/metrics"
	"github.com/colmeta/metastore/pagestore"
)

// HeaderSize is the size of the forward link at the start of every block.
const HeaderSize = 8

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 4096

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// BlockSize is the size of each block including its header. It must
	// divide the provider's page size.
	BlockSize int
	// Logger is used to report page claims and allocation failures.
	Logger base.Logger
}

// EnsureDefaults fills in default values for unset fields.
func (o *ManagerOptions) EnsureDefaults() {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
}

// Manager allocates metadata blocks from the pages of a provider. It is safe
// for concurrent use; Handles, Writers and Readers are not.
//
// Freed blocks are kept on an in-memory LIFO free list and reused by later
// allocations. Pages that existed when the Manager was created are treated as
// fully in use.
type Manager struct {
	provider      pagestore.Provider
	logger        base.Logger
	blockSize     int
	blocksPerPage int

	// syncMu is held for reading by Writers while they modify pinned block
	// bytes and for writing by Sync and Close while the provider copies
	// pages out.
	syncMu sync.RWMutex

	mu struct {
		sync.Mutex
		free  []BlockID
		pages swiss.Map[pagestore.PageID, *pinnedPage]
		// inUse is the number of blocks handed out by AllocateHandle and not
		// freed.
		inUse              uint64
		claimedPages       uint64
		pinned             uint64
		allocationFailures uint64
	}
}

// pinnedPage tracks a page pinned in the provider on behalf of one or more
// handles.
type pinnedPage struct {
	page  *pagestore.Page
	refs  int
	dirty bool
}

// NewManager returns a Manager allocating blocks from provider.
func NewManager(provider pagestore.Provider, opts ManagerOptions) (*Manager, error) {
	opts.EnsureDefaults()
	pageSize := provider.PageSize()
	switch {
	case opts.BlockSize <= HeaderSize:
		return nil, errors.Newf("metadata: block size %d must exceed the %d-byte header", opts.BlockSize, HeaderSize)
	case pageSize%opts.BlockSize != 0:
		return nil, errors.Newf("metadata: block size %d does not divide page size %d", opts.BlockSize, pageSize)
	case pageSize/opts.BlockSize > MaxBlocksPerPage:
		return nil, errors.Newf("metadata: page size %d holds more than %d blocks of %d bytes",
			pageSize, MaxBlocksPerPage, opts.BlockSize)
	}
	m := &Manager{
		provider:      provider,
		logger:        opts.Logger,
		blockSize:     opts.BlockSize,
		blocksPerPage: pageSize / opts.BlockSize,
	}
	m.mu.pages.Init(16)
	return m, nil
}

// BlockSize returns the size of each block including its header.
func (m *Manager) BlockSize() int { return m.blockSize }

// BlocksPerPage returns the number of blocks carved out of each page.
func (m *Manager) BlocksPerPage() int { return m.blocksPerPage }

// Provider returns the page provider backing the manager.
func (m *Manager) Provider() pagestore.Provider { return m.provider }

// Sync persists the provider's dirty pages. It waits for Writers that are
// modifying blocks and holds off new modifications until the provider is done.
func (m *Manager) Sync() error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	return m.provider.Sync()
}

// Close closes the provider.
func (m *Manager) Close() error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	return m.provider.Close()
}

// AllocateHandle claims an unused block and returns it pinned and exclusively
// owned by the caller. The block's contents are undefined. When a new page
// is needed and the provider cannot supply one, the returned error satisfies
// base.IsAllocationFailure.
func (m *Manager) AllocateHandle() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.mu.free) == 0 {
		if err := m.claimPageLocked(); err != nil {
			m.mu.allocationFailures++
			m.logger.Errorf("metadata: block allocation failed: %v", err)
			return nil, base.MarkAllocationFailure(err)
		}
	}
	id := m.mu.free[len(m.mu.free)-1]
	m.mu.free = m.mu.free[:len(m.mu.free)-1]
	pp, err := m.pinLocked(id.Page())
	if err != nil {
		m.mu.free = append(m.mu.free, id)
		m.mu.allocationFailures++
		return nil, base.MarkAllocationFailure(err)
	}
	m.mu.inUse++
	return m.newHandleLocked(id, pp, true /* writable */), nil
}

// claimPageLocked claims a new page from the provider and pushes its blocks
// onto the free list so that slot 0 is popped first.
func (m *Manager) claimPageLocked() error {
	page, err := m.provider.Claim()
	if err != nil {
		return err
	}
	m.mu.claimedPages++
	m.mu.pages.Put(page.ID, &pinnedPage{page: page, dirty: true})
	for slot := m.blocksPerPage - 1; slot >= 0; slot-- {
		m.mu.free = append(m.mu.free, MakeBlockID(page.ID, slot))
	}
	m.logger.Infof("metadata: claimed %s (%d blocks)", page.ID, m.blocksPerPage)
	return nil
}

// Pin returns a read-only handle on an existing block. An id that cannot
// refer to a block of the provider returns a corruption error.
func (m *Manager) Pin(ptr BlockPointer) (*Handle, error) {
	if err := m.checkBlockID(ptr.ID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pp, err := m.pinLocked(ptr.ID.Page())
	if err != nil {
		return nil, err
	}
	return m.newHandleLocked(ptr.ID, pp, false /* writable */), nil
}

// checkBlockID validates a block id read from storage.
func (m *Manager) checkBlockID(id BlockID) error {
	if !id.IsValid() {
		return base.CorruptionErrorf("metadata: invalid block id")
	}
	if id.Slot() >= m.blocksPerPage {
		return base.CorruptionErrorf("metadata: block %s: slot out of range (%d blocks per page)", id, m.blocksPerPage)
	}
	if n := m.provider.NumPages(); uint64(id.Page()) >= n {
		return base.CorruptionErrorf("metadata: block %s: page out of range (%d pages)", id, n)
	}
	return nil
}

func (m *Manager) pinLocked(id pagestore.PageID) (*pinnedPage, error) {
	pp, ok := m.mu.pages.Get(id)
	if !ok {
		page, err := m.provider.Pin(id)
		if err != nil {
			return nil, err
		}
		pp = &pinnedPage{page: page}
		m.mu.pages.Put(id, pp)
	}
	pp.refs++
	return pp, nil
}

func (m *Manager) newHandleLocked(id BlockID, pp *pinnedPage, writable bool) *Handle {
	m.mu.pinned++
	off := id.Slot() * m.blockSize
	return &Handle{
		m:        m,
		ptr:      BlockPointer{ID: id},
		pp:       pp,
		data:     pp.page.Data[off : off+m.blockSize : off+m.blockSize],
		writable: writable,
	}
}

func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pp := h.pp
	pp.refs--
	pp.dirty = pp.dirty || h.writable
	m.mu.pinned = invariants.SafeSub(m.mu.pinned, 1)
	if pp.refs == 0 {
		m.provider.Unpin(pp.page, pp.dirty)
		m.mu.pages.Delete(pp.page.ID)
	}
}

// Free returns a block to the free list. The block must not be part of a
// chain that is still reachable.
func (m *Manager) Free(ptr BlockPointer) error {
	if err := m.checkBlockID(ptr.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if invariants.Enabled {
		for _, id := range m.mu.free {
			if id == ptr.ID {
				base.AssertionFailedf("metadata: double free of block %s", ptr.ID)
			}
		}
	}
	m.mu.free = append(m.mu.free, ptr.ID)
	// Blocks of pages that predate the Manager were never counted.
	if m.mu.inUse > 0 {
		m.mu.inUse--
	}
	return nil
}

// ResolvePointer combines a block and an offset within it into a
// MetaBlockPointer. An offset at or beyond the block size is a programming
// error and panics.
func (m *Manager) ResolvePointer(ptr BlockPointer, offset uint32) MetaBlockPointer {
	if offset >= uint32(m.blockSize) {
		base.AssertionFailedf("metadata: offset %d out of range for block %s (block size %d)",
			offset, ptr.ID, m.blockSize)
	}
	return MetaBlockPointer{Block: ptr.ID, Offset: offset}
}

// Narrow drops the offset of a MetaBlockPointer.
func (m *Manager) Narrow(ptr MetaBlockPointer) BlockPointer {
	return BlockPointer{ID: ptr.Block}
}

// Metrics returns a snapshot of the block counters.
func (m *Manager) Metrics() metrics.BlockMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs := uint64(m.blockSize)
	ps := uint64(m.provider.PageSize())
	pages := m.provider.NumPages()
	return metrics.BlockMetrics{
		Pages:              metrics.CountAndSize{Count: pages, Bytes: pages * ps},
		InUse:              metrics.CountAndSize{Count: m.mu.inUse, Bytes: m.mu.inUse * bs},
		Free:               metrics.CountAndSize{Count: uint64(len(m.mu.free)), Bytes: uint64(len(m.mu.free)) * bs},
		Pinned:             m.mu.pinned,
		AllocationFailures: m.mu.allocationFailures,
	}
}

// Handle is a pinned block. Handles from AllocateHandle are exclusively owned
// and writable; handles from Pin are read-only. A Handle must be released
// exactly once.
type Handle struct {
	m        *Manager
	ptr      BlockPointer
	pp       *pinnedPage
	data     []byte
	writable bool
}

// Pointer returns the pointer to the handle's block.
func (h *Handle) Pointer() BlockPointer { return h.ptr }

// Data returns the block's bytes, header included. The slice of a read-only
// handle must not be modified, and the slice of a writable handle must not be
// modified concurrently with Sync.
func (h *Handle) Data() []byte { return h.data }

// Next returns the block's forward link.
func (h *Handle) Next() BlockID {
	return BlockID(binary.LittleEndian.Uint64(h.data[:HeaderSize]))
}

// SetNext overwrites the block's forward link.
func (h *Handle) SetNext(id BlockID) {
	if !h.writable {
		base.AssertionFailedf("metadata: SetNext on read-only handle of block %s", h.ptr.ID)
	}
	binary.LittleEndian.PutUint64(h.data[:HeaderSize], uint64(id))
}

// Release unpins the block.
func (h *Handle) Release() {
	if h.m == nil {
		base.AssertionFailedf("metadata: block %s released twice", h.ptr.ID)
	}
	h.m.release(h)
	h.m = nil
	h.data = nil
}
