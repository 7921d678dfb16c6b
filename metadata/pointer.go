// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/colmeta/metastore/pagestore"
)

// BlockID identifies a metadata block. The low 56 bits hold the id of the page
// containing the block and the high 8 bits hold the block's slot within that
// page.
type BlockID uint64

// InvalidBlockID is stored in the forward link of the last block of a chain.
// Its slot (255) is never a valid slot because a page never holds more than
// MaxBlocksPerPage blocks.
const InvalidBlockID BlockID = math.MaxUint64

const (
	slotShift = 56
	pageMask  = 1<<slotShift - 1

	// MaxBlocksPerPage is the maximum number of blocks a page can be split
	// into.
	MaxBlocksPerPage = 255
)

// MakeBlockID returns the id of the block in the given slot of a page.
func MakeBlockID(page pagestore.PageID, slot int) BlockID {
	return BlockID(uint64(page)&pageMask | uint64(slot)<<slotShift)
}

// Page returns the page containing the block.
func (id BlockID) Page() pagestore.PageID {
	return pagestore.PageID(uint64(id) & pageMask)
}

// Slot returns the index of the block within its page.
func (id BlockID) Slot() int {
	return int(uint64(id) >> slotShift)
}

// IsValid returns false for InvalidBlockID.
func (id BlockID) IsValid() bool {
	return id != InvalidBlockID
}

// String implements fmt.Stringer.
func (id BlockID) String() string {
	return redact.StringWithoutMarkers(id)
}

// SafeFormat implements redact.SafeFormatter.
func (id BlockID) SafeFormat(w redact.SafePrinter, _ rune) {
	if !id.IsValid() {
		w.Printf("invalid")
		return
	}
	w.Printf("%d.%d", redact.Safe(uint64(id.Page())), redact.Safe(id.Slot()))
}

// BlockPointer identifies a block without an offset inside it.
type BlockPointer struct {
	ID BlockID
}

// String implements fmt.Stringer.
func (p BlockPointer) String() string {
	return p.ID.String()
}

// MetaBlockPointer identifies a byte offset within a block. It is the pointer
// handed out by a Writer and accepted by a Reader.
type MetaBlockPointer struct {
	Block  BlockID
	Offset uint32
}

// InvalidPointer is the zero-length sentinel pointer.
var InvalidPointer = MetaBlockPointer{Block: InvalidBlockID}

// EncodedPointerSize is the size of an encoded MetaBlockPointer.
const EncodedPointerSize = 12

// IsValid returns true if the pointer refers to a block.
func (p MetaBlockPointer) IsValid() bool {
	return p.Block.IsValid()
}

// Encode writes the pointer to buf as a little-endian block id followed by a
// little-endian offset. buf must hold EncodedPointerSize bytes.
func (p MetaBlockPointer) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[:8], uint64(p.Block))
	binary.LittleEndian.PutUint32(buf[8:EncodedPointerSize], p.Offset)
}

// AppendEncoded appends the encoded pointer to buf.
func (p MetaBlockPointer) AppendEncoded(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Block))
	return binary.LittleEndian.AppendUint32(buf, p.Offset)
}

// DecodeMetaBlockPointer decodes a pointer written by Encode.
func DecodeMetaBlockPointer(buf []byte) (MetaBlockPointer, error) {
	if len(buf) < EncodedPointerSize {
		return MetaBlockPointer{}, errors.Newf("metadata: encoded pointer too short (%d bytes)", len(buf))
	}
	return MetaBlockPointer{
		Block:  BlockID(binary.LittleEndian.Uint64(buf)),
		Offset: binary.LittleEndian.Uint32(buf[8:]),
	}, nil
}

// String implements fmt.Stringer.
func (p MetaBlockPointer) String() string {
	return redact.StringWithoutMarkers(p)
}

// SafeFormat implements redact.SafeFormatter.
func (p MetaBlockPointer) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s+%d", p.Block, redact.Safe(p.Offset))
}

// ParseMetaBlockPointer parses the "page.slot+offset" form produced by
// String. "invalid+0" parses to InvalidPointer.
func ParseMetaBlockPointer(s string) (MetaBlockPointer, error) {
	blockStr, offStr, ok := strings.Cut(s, "+")
	if !ok {
		return MetaBlockPointer{}, errors.Newf("metadata: malformed pointer %q", s)
	}
	off, err := strconv.ParseUint(offStr, 10, 32)
	if err != nil {
		return MetaBlockPointer{}, errors.Wrapf(err, "metadata: malformed pointer %q", s)
	}
	if blockStr == "invalid" {
		return MetaBlockPointer{Block: InvalidBlockID, Offset: uint32(off)}, nil
	}
	pageStr, slotStr, ok := strings.Cut(blockStr, ".")
	if !ok {
		return MetaBlockPointer{}, errors.Newf("metadata: malformed pointer %q", s)
	}
	page, err := strconv.ParseUint(pageStr, 10, slotShift)
	if err != nil {
		return MetaBlockPointer{}, errors.Wrapf(err, "metadata: malformed pointer %q", s)
	}
	slot, err := strconv.ParseUint(slotStr, 10, 8)
	if err != nil || slot >= MaxBlocksPerPage {
		return MetaBlockPointer{}, errors.Newf("metadata: malformed pointer %q", s)
	}
	return MetaBlockPointer{
		Block:  MakeBlockID(pagestore.PageID(page), int(slot)),
		Offset: uint32(off),
	}, nil
}

var _ fmt.Stringer = MetaBlockPointer{}
