// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/pagestore"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestManager(t *testing.T, pageSize, blockSize int, maxPages uint64) (*Manager, *pagestore.MemProvider) {
	t.Helper()
	p := pagestore.NewMemProvider(pageSize, maxPages)
	m, err := NewManager(p, ManagerOptions{BlockSize: blockSize, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	return m, p
}

func TestNewManagerOptions(t *testing.T) {
	p := pagestore.NewMemProvider(4096, 0)
	_, err := NewManager(p, ManagerOptions{BlockSize: 8})
	require.Error(t, err)
	_, err = NewManager(p, ManagerOptions{BlockSize: 1000})
	require.Error(t, err)
	_, err = NewManager(p, ManagerOptions{BlockSize: 16})
	require.ErrorContains(t, err, "more than 255 blocks")

	m, err := NewManager(pagestore.NewMemProvider(0, 0), ManagerOptions{Logger: base.NoopLogger{}})
	require.NoError(t, err)
	require.Equal(t, DefaultBlockSize, m.BlockSize())
	require.Equal(t, 64, m.BlocksPerPage())
}

func TestAllocateHandle(t *testing.T) {
	logger := &base.InMemLogger{}
	p := pagestore.NewMemProvider(256, 2)
	m, err := NewManager(p, ManagerOptions{BlockSize: 64, Logger: logger})
	require.NoError(t, err)

	var handles []*Handle
	for i := 0; i < 8; i++ {
		h, err := m.AllocateHandle()
		require.NoError(t, err)
		require.Len(t, h.Data(), 64)
		require.Equal(t, MakeBlockID(pagestore.PageID(i/4), i%4), h.Pointer().ID)
		handles = append(handles, h)
	}
	require.Equal(t, "metadata: claimed page-0 (4 blocks)\nmetadata: claimed page-1 (4 blocks)\n", logger.String())

	// Both pages are exhausted and the provider refuses a third.
	_, err = m.AllocateHandle()
	require.True(t, base.IsAllocationFailure(err), "%v", err)
	require.Equal(t, uint64(1), m.Metrics().AllocationFailures)

	// Handles on the same page do not alias.
	for i, h := range handles {
		h.Data()[HeaderSize] = byte(i)
	}
	for i, h := range handles {
		require.Equal(t, byte(i), h.Data()[HeaderSize])
	}
	require.Equal(t, 2, p.Pinned())
	for _, h := range handles {
		h.Release()
	}
	require.Equal(t, 0, p.Pinned())
	require.Panics(t, func() { handles[0].Release() })

	met := m.Metrics()
	require.Equal(t, uint64(8), met.InUse.Count)
	require.Equal(t, uint64(8*64), met.InUse.Bytes)
	require.Equal(t, uint64(0), met.Free.Count)
	require.Equal(t, uint64(2), met.Pages.Count)
	require.Equal(t, uint64(0), met.Pinned)
}

func TestFreeIsLIFO(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 1)
	var ids []BlockID
	for i := 0; i < 4; i++ {
		h, err := m.AllocateHandle()
		require.NoError(t, err)
		ids = append(ids, h.Pointer().ID)
		h.Release()
	}
	require.NoError(t, m.Free(BlockPointer{ID: ids[1]}))
	require.NoError(t, m.Free(BlockPointer{ID: ids[3]}))
	require.Equal(t, uint64(2), m.Metrics().Free.Count)

	h, err := m.AllocateHandle()
	require.NoError(t, err)
	require.Equal(t, ids[3], h.Pointer().ID)
	h.Release()
	h, err = m.AllocateHandle()
	require.NoError(t, err)
	require.Equal(t, ids[1], h.Pointer().ID)
	h.Release()

	require.True(t, base.IsCorruptionError(m.Free(BlockPointer{ID: InvalidBlockID})))
}

func TestPinValidatesBlockID(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 0)
	h, err := m.AllocateHandle()
	require.NoError(t, err)
	h.SetNext(InvalidBlockID)
	h.Release()

	for _, id := range []BlockID{InvalidBlockID, MakeBlockID(0, 4), MakeBlockID(1, 0), MakeBlockID(0, 200)} {
		_, err := m.Pin(BlockPointer{ID: id})
		require.True(t, base.IsCorruptionError(err), "%s: %v", id, err)
	}

	r, err := m.Pin(BlockPointer{ID: MakeBlockID(0, 0)})
	require.NoError(t, err)
	require.Equal(t, InvalidBlockID, r.Next())
	require.Panics(t, func() { r.SetNext(MakeBlockID(0, 1)) })
	r.Release()
}

func TestResolvePointer(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 0)
	bp := BlockPointer{ID: MakeBlockID(3, 1)}
	ptr := m.ResolvePointer(bp, 63)
	require.Equal(t, MetaBlockPointer{Block: bp.ID, Offset: 63}, ptr)
	require.Equal(t, bp, m.Narrow(ptr))

	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			require.True(t, errors.HasAssertionFailure(err))
		}()
		m.ResolvePointer(bp, 64)
	}()
}

func TestConcurrentAllocation(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 100
	m, p := newTestManager(t, 1024, 64, 0)

	var mu sync.Mutex
	seen := make(map[BlockID]int)
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			for j := 0; j < perGoroutine; j++ {
				h, err := m.AllocateHandle()
				if err != nil {
					return err
				}
				mu.Lock()
				seen[h.Pointer().ID]++
				mu.Unlock()
				if j%3 == 0 {
					h.Release()
					if err := m.Free(h.Pointer()); err != nil {
						return err
					}
					continue
				}
				h.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 0, p.Pinned())

	met := m.Metrics()
	require.Equal(t, met.InUse.Count+met.Free.Count, met.Pages.Count*16)
	// A block is only handed out again after it was freed.
	reused := 0
	for _, n := range seen {
		reused += n - 1
	}
	require.LessOrEqual(t, reused, goroutines*((perGoroutine+2)/3))
}

func TestConcurrentWriters(t *testing.T) {
	m, _ := newTestManager(t, 512, 64, 0)
	const writers = 6
	ptrs := make([]MetaBlockPointer, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			w := NewWriter(m)
			ptr, err := w.CurrentPointer()
			if err != nil {
				return err
			}
			ptrs[i] = ptr
			for j := 0; j < 200; j++ {
				if err := w.WriteUvarint(uint64(i*1000 + j)); err != nil {
					return err
				}
			}
			return w.Close()
		})
	}
	require.NoError(t, g.Wait())

	for i, ptr := range ptrs {
		r, err := NewReader(m, ptr)
		require.NoError(t, err)
		for j := 0; j < 200; j++ {
			v, err := r.ReadUvarint()
			require.NoError(t, err)
			require.Equal(t, uint64(i*1000+j), v)
		}
		require.NoError(t, r.Close())
	}
}
