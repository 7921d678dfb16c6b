// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"bytes"
	"fmt"
	"io"
	randv1 "math/rand"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/metamorphic"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/pagestore"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderDataDriven(t *testing.T) {
	type recordedPointer struct {
		ptr MetaBlockPointer
		pos int
	}
	var m *Manager
	var w *Writer
	var written []byte
	pointers := make(map[string]recordedPointer)

	writerState := func() string {
		return fmt.Sprintf("state=%s blocks=%d offset=%d", w.state, w.blocks, w.offset)
	}

	datadriven.RunTest(t, "testdata/writer_reader", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			var pageSize, blockSize int
			td.ScanArgs(t, "page-size", &pageSize)
			td.ScanArgs(t, "block-size", &blockSize)
			var err error
			m, err = NewManager(pagestore.NewMemProvider(pageSize, 0), ManagerOptions{
				BlockSize: blockSize,
				Logger:    base.NoopLogger{},
			})
			require.NoError(t, err)
			w = NewWriter(m)
			written = written[:0]
			clear(pointers)
			return fmt.Sprintf("blocks-per-page=%d", m.BlocksPerPage())

		case "new-writer":
			w = NewWriter(m)
			written = written[:0]
			return writerState()

		case "writer-state":
			return writerState()

		case "pointer":
			var name string
			td.ScanArgs(t, "name", &name)
			ptr, err := w.CurrentPointer()
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			pointers[name] = recordedPointer{ptr: ptr, pos: len(written)}
			return fmt.Sprintf("%s: %s\n%s", name, ptr, writerState())

		case "write":
			var data []byte
			if td.HasArg("n") {
				var n int
				td.ScanArgs(t, "n", &n)
				data = make([]byte, n)
				for i := range data {
					data[i] = byte(len(written)+i) % 251
				}
			} else {
				data = []byte(td.Input)
			}
			n, err := w.Write(data)
			written = append(written, data[:n]...)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return writerState()

		case "flush":
			require.NoError(t, w.Flush())
			return writerState()

		case "close-writer":
			require.NoError(t, w.Close())
			return writerState()

		case "read":
			var name string
			var n int
			td.ScanArgs(t, "name", &name)
			td.ScanArgs(t, "n", &n)
			rp, ok := pointers[name]
			require.True(t, ok, name)
			r, err := NewReader(m, rp.ptr)
			require.NoError(t, err)
			defer func() { require.NoError(t, r.Close()) }()
			buf, err := r.ReadFull(n)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			if !bytes.Equal(buf, written[rp.pos:rp.pos+n]) {
				return fmt.Sprintf("read %d bytes: mismatch", n)
			}
			return fmt.Sprintf("read %d bytes over %d blocks: match", n, r.Blocks())

		case "chain":
			var name string
			td.ScanArgs(t, "name", &name)
			var b strings.Builder
			err := WalkChain(m, m.Narrow(pointers[name].ptr), func(info BlockInfo) error {
				fmt.Fprintf(&b, "%s -> %s\n", info.ID, info.Next)
				return nil
			})
			if err != nil {
				fmt.Fprintf(&b, "error: %v\n", err)
			}
			return b.String()

		case "free-chain":
			var name string
			td.ScanArgs(t, "name", &name)
			require.NoError(t, FreeChain(m, m.Narrow(pointers[name].ptr)))
			return "ok"

		case "metrics":
			met := m.Metrics()
			return fmt.Sprintf("pages=%d in-use=%d free=%d pinned=%d",
				met.Pages.Count, met.InUse.Count, met.Free.Count, met.Pinned)

		default:
			td.Fatalf(t, "unknown command %q", td.Cmd)
			return ""
		}
	})
}

// TestRoundTrip writes a stream spanning many blocks and reads it back.
func TestRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, 4096, 512, 0)
	rng := rand.New(rand.NewPCG(0, 1))
	data := make([]byte, 10*m.BlockSize()+123)
	for i := range data {
		data[i] = byte(rng.Uint32())
	}

	w := NewWriter(m)
	start, err := w.CurrentPointer()
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, uint64(len(data)), w.BytesWritten())
	require.Equal(t, 11, w.Blocks())
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	require.Error(t, w.Close())

	r, err := NewReader(m, start)
	require.NoError(t, err)
	got, err := io.ReadAll(io.LimitReader(r, int64(len(data))))
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, 11, r.Blocks())
	require.NoError(t, r.Close())

	// The last block of the chain ends with the sentinel, and the bytes
	// after the end of the stream were zeroed by Flush.
	var blocks []BlockInfo
	require.NoError(t, WalkChain(m, m.Narrow(start), func(b BlockInfo) error {
		blocks = append(blocks, BlockInfo{ID: b.ID, Next: b.Next, Payload: bytes.Clone(b.Payload)})
		return nil
	}))
	require.Len(t, blocks, 11)
	last := blocks[len(blocks)-1]
	require.Equal(t, InvalidBlockID, last.Next)
	tail := len(data) - 10*(m.BlockSize()-HeaderSize)
	require.Equal(t, make([]byte, len(last.Payload)-tail), last.Payload[tail:])
	for i := 0; i < len(blocks)-1; i++ {
		require.Equal(t, blocks[i+1].ID, blocks[i].Next)
	}
}

// TestWriterLaziness checks that filling a block exactly does not claim the
// next block.
func TestWriterLaziness(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 0)
	w := NewWriter(m)
	require.Equal(t, writerUnclaimed, w.state)
	_, err := w.Write(nil)
	require.NoError(t, err)
	require.Equal(t, writerUnclaimed, w.state)
	require.Equal(t, uint64(0), m.Metrics().Pages.Count)

	_, err = w.Write(make([]byte, 64-HeaderSize))
	require.NoError(t, err)
	require.Equal(t, writerExhausted, w.state)
	require.Equal(t, 1, w.Blocks())
	require.Equal(t, uint64(1), m.Metrics().InUse.Count)

	p1, err := w.CurrentPointer()
	require.NoError(t, err)
	p2, err := w.CurrentPointer()
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, MetaBlockPointer{Block: MakeBlockID(0, 1), Offset: HeaderSize}, p1)
	require.Equal(t, 2, w.Blocks())
	bp, err := w.BlockPointer()
	require.NoError(t, err)
	require.Equal(t, BlockPointer{ID: MakeBlockID(0, 1)}, bp)
	require.NoError(t, w.Close())
}

func TestReadPastEndIsCorruption(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 0)
	w := NewWriter(m)
	require.NoError(t, w.WriteString("hello"))
	start := MetaBlockPointer{Block: MakeBlockID(0, 0), Offset: HeaderSize}
	require.NoError(t, w.Close())

	r, err := NewReader(m, start)
	require.NoError(t, err)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
	// The rest of the block is readable; the chain ends after it.
	require.NoError(t, r.Discard(64-HeaderSize-6))
	_, err = r.ReadByte()
	require.True(t, base.IsCorruptionError(err), "%v", err)
	// The error is sticky.
	_, err = r.Read(make([]byte, 1))
	require.True(t, base.IsCorruptionError(err), "%v", err)
	require.NoError(t, r.Close())

	for _, ptr := range []MetaBlockPointer{
		{Block: MakeBlockID(0, 0), Offset: 4},
		{Block: MakeBlockID(0, 0), Offset: 64},
		{Block: MakeBlockID(9, 0), Offset: HeaderSize},
		InvalidPointer,
	} {
		_, err := NewReader(m, ptr)
		require.True(t, base.IsCorruptionError(err), "%s: %v", ptr, err)
	}
}

func TestCorruptLinks(t *testing.T) {
	m, _ := newTestManager(t, 256, 64, 0)
	w := NewWriter(m)
	_, err := w.Write(make([]byte, 3*(64-HeaderSize)))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	setNext := func(slot int, next BlockID) {
		// Handles from AllocateHandle are writable; use the free list to get
		// one on a specific block.
		require.NoError(t, m.Free(BlockPointer{ID: MakeBlockID(0, slot)}))
		h, err := m.AllocateHandle()
		require.NoError(t, err)
		require.Equal(t, MakeBlockID(0, slot), h.Pointer().ID)
		h.SetNext(next)
		h.Release()
	}
	start := MetaBlockPointer{Block: MakeBlockID(0, 0), Offset: HeaderSize}

	for _, next := range []BlockID{MakeBlockID(0, 7), MakeBlockID(5, 0), BlockID(1) << 60} {
		setNext(1, next)
		r, err := NewReader(m, start)
		require.NoError(t, err)
		// Reading past the second block follows the corrupted link.
		_, err = r.ReadFull(2*(64-HeaderSize) + 1)
		require.True(t, base.IsCorruptionError(err), "%s: %v", next, err)
		require.NoError(t, r.Close())
	}

	// A cycle is detected by WalkChain.
	setNext(1, MakeBlockID(0, 0))
	err = WalkChain(m, BlockPointer{ID: MakeBlockID(0, 0)}, func(BlockInfo) error { return nil })
	require.True(t, base.IsCorruptionError(err), "%v", err)
	require.Contains(t, err.Error(), "cycle")

	// Errors from the callback stop the walk.
	errStop := errors.New("stop")
	var visited int
	err = WalkChain(m, BlockPointer{ID: MakeBlockID(0, 0)}, func(BlockInfo) error {
		visited++
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 1, visited)
}

// TestRolloverFailurePoisonsWriter checks that an allocation failure during
// rollover is returned by every later call.
func TestRolloverFailurePoisonsWriter(t *testing.T) {
	m, p := newTestManager(t, 128, 64, 1)
	w := NewWriter(m)
	start, err := w.CurrentPointer()
	require.NoError(t, err)
	n, err := w.Write(make([]byte, 200))
	require.True(t, base.IsAllocationFailure(err), "%v", err)
	require.Equal(t, 2*(64-HeaderSize), n)

	_, err = w.Write([]byte{1})
	require.True(t, base.IsAllocationFailure(err), "%v", err)
	_, err = w.CurrentPointer()
	require.True(t, base.IsAllocationFailure(err), "%v", err)
	require.True(t, base.IsAllocationFailure(w.Flush()))
	require.True(t, base.IsAllocationFailure(w.Close()))
	require.Equal(t, 0, p.Pinned())

	// The bytes written before the failure are linked and readable.
	r, err := NewReader(m, start)
	require.NoError(t, err)
	_, err = r.ReadFull(n)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestWriterEncoders(t *testing.T) {
	m, _ := newTestManager(t, 256, 32, 0)
	w := NewWriter(m)
	start, err := w.CurrentPointer()
	require.NoError(t, err)
	require.NoError(t, w.WriteUvarint(300))
	require.NoError(t, w.WriteUint64(0xdeadbeefcafef00d))
	require.NoError(t, w.WriteString(strings.Repeat("metadata", 10)))
	require.NoError(t, w.WritePointer(start))
	require.NoError(t, w.WriteString(""))
	require.NoError(t, w.Close())

	r, err := NewReader(m, start)
	require.NoError(t, err)
	v, err := r.ReadUvarint()
	require.NoError(t, err)
	require.Equal(t, uint64(300), v)
	v, err = r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafef00d), v)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("metadata", 10), s)
	ptr, err := r.ReadPointer()
	require.NoError(t, err)
	require.Equal(t, start, ptr)
	s, err = r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "", s)
	require.NoError(t, r.Close())
}

// TestRandomizedStreams interleaves random operations on several writers and
// checks every recorded pointer against the bytes written after it.
func TestRandomizedStreams(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	blockSize := 32 << rng.IntN(4)
	m, p := newTestManager(t, 1024, blockSize, 0)

	type stream struct {
		w        *Writer
		written  []byte
		pointers []int
		ptrs     []MetaBlockPointer
	}
	streams := make([]*stream, 3)
	for i := range streams {
		streams[i] = &stream{w: NewWriter(m)}
	}
	pick := func() *stream { return streams[rng.IntN(len(streams))] }
	write := func(n int) func() {
		return func() {
			s := pick()
			buf := make([]byte, rng.IntN(n))
			for i := range buf {
				buf[i] = byte(rng.Uint32())
			}
			_, err := s.w.Write(buf)
			require.NoError(t, err)
			s.written = append(s.written, buf...)
		}
	}

	nextOp := metamorphic.Weighted[func()]{
		{Weight: 10, Item: write(8)},
		{Weight: 5, Item: write(blockSize)},
		{Weight: 2, Item: write(4 * blockSize)},
		{Weight: 3, Item: func() {
			s := pick()
			ptr, err := s.w.CurrentPointer()
			require.NoError(t, err)
			s.ptrs = append(s.ptrs, ptr)
			s.pointers = append(s.pointers, len(s.written))
		}},
		{Weight: 1, Item: func() {
			require.NoError(t, pick().w.Flush())
		}},
		{Weight: 2, Item: func() {
			s := pick()
			if len(s.ptrs) == 0 {
				return
			}
			i := rng.IntN(len(s.ptrs))
			r, err := NewReader(m, s.ptrs[i])
			require.NoError(t, err)
			want := s.written[s.pointers[i]:]
			got, err := r.ReadFull(len(want))
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.NoError(t, r.Close())
		}},
	}.RandomDeck(randv1.New(randv1.NewSource(int64(seed))))

	for i := 0; i < 2000; i++ {
		nextOp()()
	}
	for _, s := range streams {
		require.NoError(t, s.w.Close())
	}
	require.Equal(t, 0, p.Pinned())
}

func TestPointersAcrossBlocks(t *testing.T) {
	m, _ := newTestManager(t, 256, 32, 0)
	w := NewWriter(m)
	start, err := w.CurrentPointer()
	require.NoError(t, err)
	// One leading byte makes every other pointer straddle a block boundary.
	_, err = w.Write([]byte{0xff})
	require.NoError(t, err)
	var ptrs []MetaBlockPointer
	for i := 0; i < 10; i++ {
		ptr, err := w.CurrentPointer()
		require.NoError(t, err)
		ptrs = append(ptrs, ptr)
		require.NoError(t, w.WritePointer(ptr))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(m, start)
	require.NoError(t, err)
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), b)
	for _, want := range ptrs {
		got, err := r.ReadPointer()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, r.Close())
}

func TestReaderClosed(t *testing.T) {
	m, p := newTestManager(t, 256, 32, 0)
	w := NewWriter(m)
	start, err := w.CurrentPointer()
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 50))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(m, start)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, 0, p.Pinned())

	require.ErrorIs(t, r.Close(), errReaderClosed)
	_, err = r.CurrentPointer()
	require.ErrorIs(t, err, errReaderClosed)
	require.ErrorIs(t, r.Discard(0), errReaderClosed)
	require.ErrorIs(t, r.Discard(40), errReaderClosed)
	_, err = r.Read(make([]byte, 1))
	require.ErrorIs(t, err, errReaderClosed)
}
