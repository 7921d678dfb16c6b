// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// writerState is the state of a Writer's current block.
type writerState uint8

const (
	// writerUnclaimed: no block has been claimed yet.
	writerUnclaimed writerState = iota
	// writerHasCapacity: the current block has at least one free byte.
	writerHasCapacity
	// writerExhausted: the current block is full. The next block is claimed
	// by the next Write or CurrentPointer call, not before.
	writerExhausted
	// writerClosed: Close has been called.
	writerClosed
)

func (s writerState) String() string {
	switch s {
	case writerUnclaimed:
		return "unclaimed"
	case writerHasCapacity:
		return "has-capacity"
	case writerExhausted:
		return "exhausted"
	case writerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errWriterClosed = errors.New("metadata: writer is closed")

// Writer appends a byte stream to a chain of blocks. Blocks are claimed
// lazily: a new block is only allocated when a byte has to be written to it or
// a pointer to it is requested.
//
// When a new block is claimed, the forward link of the previous block is
// updated to point at it, and the new block's link is set to InvalidBlockID.
// If claiming a block fails, the error is returned by every later call and the
// Writer must be closed.
//
// Block bytes are only modified while holding the Manager's sync lock for
// reading, so Manager.Sync may run while the Writer is open. A Writer itself
// is not safe for concurrent use.
type Writer struct {
	m        *Manager
	state    writerState
	handle   *Handle
	offset   int
	capacity int
	err      error

	bytesWritten uint64
	blocks       int
	scratch      [max(binary.MaxVarintLen64, EncodedPointerSize)]byte
}

var _ io.Writer = (*Writer)(nil)

// NewWriter returns a Writer allocating blocks from m.
func NewWriter(m *Manager) *Writer {
	return &Writer{m: m}
}

// ensureCapacity claims a new block unless the current one has room. It must
// be called with m.syncMu held for reading.
func (w *Writer) ensureCapacity() error {
	if w.err != nil {
		return w.err
	}
	switch w.state {
	case writerHasCapacity:
		return nil
	case writerUnclaimed, writerExhausted:
		return w.rollover()
	default:
		return errWriterClosed
	}
}

func (w *Writer) rollover() error {
	h, err := w.m.AllocateHandle()
	if err != nil {
		w.err = errors.Wrapf(err, "metadata: writer rollover after %d blocks", w.blocks)
		return w.err
	}
	h.SetNext(InvalidBlockID)
	if w.handle != nil {
		w.handle.SetNext(h.Pointer().ID)
		w.handle.Release()
	}
	w.handle = h
	w.offset = HeaderSize
	w.capacity = len(h.Data())
	w.state = writerHasCapacity
	w.blocks++
	return nil
}

// CurrentPointer returns the pointer to the next byte that will be written.
// If the current block is full (or none has been claimed) a new block is
// claimed first. Calling CurrentPointer repeatedly without writing returns the
// same pointer.
func (w *Writer) CurrentPointer() (MetaBlockPointer, error) {
	w.m.syncMu.RLock()
	defer w.m.syncMu.RUnlock()
	if err := w.ensureCapacity(); err != nil {
		return MetaBlockPointer{}, err
	}
	return w.m.ResolvePointer(w.handle.Pointer(), uint32(w.offset)), nil
}

// BlockPointer returns the block containing CurrentPointer.
func (w *Writer) BlockPointer() (BlockPointer, error) {
	ptr, err := w.CurrentPointer()
	if err != nil {
		return BlockPointer{}, err
	}
	return w.m.Narrow(ptr), nil
}

// Write appends p to the stream, claiming new blocks as needed. Filling the
// current block exactly does not claim the next one. Write implements
// io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.m.syncMu.RLock()
	defer w.m.syncMu.RUnlock()
	var n int
	for len(p) > 0 {
		if err := w.ensureCapacity(); err != nil {
			w.bytesWritten += uint64(n)
			return n, err
		}
		c := copy(w.handle.data[w.offset:w.capacity], p)
		w.offset += c
		n += c
		p = p[c:]
		if w.offset == w.capacity {
			w.state = writerExhausted
		}
	}
	w.bytesWritten += uint64(n)
	return n, nil
}

// WriteUvarint appends v as a uvarint.
func (w *Writer) WriteUvarint(v uint64) error {
	n := binary.PutUvarint(w.scratch[:], v)
	_, err := w.Write(w.scratch[:n])
	return err
}

// WriteUint64 appends v as 8 little-endian bytes.
func (w *Writer) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	_, err := w.Write(w.scratch[:8])
	return err
}

// WriteString appends s prefixed by its uvarint length.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteUvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// WritePointer appends an encoded MetaBlockPointer.
func (w *Writer) WritePointer(ptr MetaBlockPointer) error {
	ptr.Encode(w.scratch[:EncodedPointerSize])
	_, err := w.Write(w.scratch[:EncodedPointerSize])
	return err
}

// Flush zero-fills the unused bytes of the current block so that no stale
// data is left behind the end of the stream. It is never called implicitly.
func (w *Writer) Flush() error {
	if w.handle != nil && w.state != writerClosed {
		w.m.syncMu.RLock()
		clear(w.handle.data[w.offset:w.capacity])
		w.m.syncMu.RUnlock()
	}
	return w.err
}

// BytesWritten returns the number of bytes appended so far.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten }

// Blocks returns the number of blocks claimed so far.
func (w *Writer) Blocks() int { return w.blocks }

// Close releases the current block. It returns the error that poisoned the
// Writer, if any.
func (w *Writer) Close() error {
	if w.state == writerClosed {
		return errWriterClosed
	}
	if w.handle != nil {
		w.handle.Release()
		w.handle = nil
	}
	w.state = writerClosed
	return w.err
}
