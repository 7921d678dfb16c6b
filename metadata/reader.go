// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/internal/base"
)

var errReaderClosed = errors.New("metadata: reader is closed")

// Reader reads back a stream written by a Writer, starting at a pointer
// returned by Writer.CurrentPointer. It follows forward links when a block is
// exhausted; reaching the end of the chain while bytes are still requested is
// a corruption error. A Reader never modifies blocks.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	m        *Manager
	handle   *Handle
	offset   int
	capacity int
	err      error

	bytesRead uint64
	blocks    int
	scratch   [EncodedPointerSize]byte
}

var _ io.Reader = (*Reader)(nil)
var _ io.ByteReader = (*Reader)(nil)

// NewReader returns a Reader positioned at ptr.
func NewReader(m *Manager, ptr MetaBlockPointer) (*Reader, error) {
	if ptr.Offset < HeaderSize || ptr.Offset >= uint32(m.BlockSize()) {
		return nil, base.CorruptionErrorf("metadata: pointer %s: offset out of range", ptr)
	}
	h, err := m.Pin(m.Narrow(ptr))
	if err != nil {
		return nil, errors.Wrapf(err, "metadata: pointer %s", ptr)
	}
	return &Reader{
		m:        m,
		handle:   h,
		offset:   int(ptr.Offset),
		capacity: len(h.Data()),
		blocks:   1,
	}, nil
}

// advance moves to the next block of the chain.
func (r *Reader) advance() error {
	if r.err != nil {
		return r.err
	}
	cur := r.handle.Pointer().ID
	next := r.handle.Next()
	if next == InvalidBlockID {
		r.err = base.CorruptionErrorf("metadata: read past the end of the chain at block %s", cur)
		return r.err
	}
	h, err := r.m.Pin(BlockPointer{ID: next})
	if err != nil {
		r.err = errors.Wrapf(err, "metadata: following link of block %s", cur)
		return r.err
	}
	r.handle.Release()
	r.handle = h
	r.offset = HeaderSize
	r.capacity = len(h.Data())
	r.blocks++
	return nil
}

// Read fills p from the stream. It returns an error, rather than a short
// read, if the chain ends before p is filled. Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.handle == nil {
		return 0, errReaderClosed
	}
	var n int
	for len(p) > 0 {
		if r.offset == r.capacity {
			if err := r.advance(); err != nil {
				r.bytesRead += uint64(n)
				return n, err
			}
		}
		c := copy(p, r.handle.data[r.offset:r.capacity])
		r.offset += c
		n += c
		p = p[c:]
	}
	r.bytesRead += uint64(n)
	return n, nil
}

// ReadFull reads the next n bytes.
func (r *Reader) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if _, err := r.Read(r.scratch[:1]); err != nil {
		return 0, err
	}
	return r.scratch[0], nil
}

// ReadUvarint reads a uvarint written by Writer.WriteUvarint.
func (r *Reader) ReadUvarint() (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil && !base.IsCorruptionError(err) {
		err = base.MarkCorruptionError(errors.Wrap(err, "metadata: reading uvarint"))
	}
	return v, err
}

// ReadUint64 reads 8 little-endian bytes.
func (r *Reader) ReadUint64() (uint64, error) {
	if _, err := r.Read(r.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.scratch[:8]), nil
}

// ReadString reads a string written by Writer.WriteString.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return "", err
	}
	if n > math.MaxInt32 {
		return "", base.CorruptionErrorf("metadata: string length %d out of range", n)
	}
	buf, err := r.ReadFull(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadPointer reads a pointer written by Writer.WritePointer.
func (r *Reader) ReadPointer() (MetaBlockPointer, error) {
	if _, err := r.Read(r.scratch[:EncodedPointerSize]); err != nil {
		return MetaBlockPointer{}, err
	}
	return DecodeMetaBlockPointer(r.scratch[:])
}

// Discard skips the next n bytes.
func (r *Reader) Discard(n int) error {
	if r.handle == nil {
		return errReaderClosed
	}
	for n > 0 {
		if r.offset == r.capacity {
			if err := r.advance(); err != nil {
				return err
			}
		}
		c := min(n, r.capacity-r.offset)
		r.offset += c
		r.bytesRead += uint64(c)
		n -= c
	}
	return nil
}

// CurrentPointer returns the pointer to the next byte to be read. At the end
// of a block this moves to the next block of the chain.
func (r *Reader) CurrentPointer() (MetaBlockPointer, error) {
	if r.handle == nil {
		return MetaBlockPointer{}, errReaderClosed
	}
	if r.offset == r.capacity {
		if err := r.advance(); err != nil {
			return MetaBlockPointer{}, err
		}
	}
	return r.m.ResolvePointer(r.handle.Pointer(), uint32(r.offset)), nil
}

// BytesRead returns the number of bytes read so far.
func (r *Reader) BytesRead() uint64 { return r.bytesRead }

// Blocks returns the number of blocks visited so far.
func (r *Reader) Blocks() int { return r.blocks }

// Close releases the current block.
func (r *Reader) Close() error {
	if r.handle == nil {
		return errReaderClosed
	}
	r.handle.Release()
	r.handle = nil
	return nil
}
