// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bitpack encodes arrays of fixed-width integers using the minimum
// number of bits per value.
//
// Values are processed in groups of GroupSize (32) elements. A group of
// width w occupies exactly 4*w bytes: the values are laid out as a single
// little-endian bit stream, least significant bit first, with value i
// occupying bits [i*w, (i+1)*w) of the group. A packed buffer carries no
// header; the width and the frame of reference are metadata that the caller
// stores next to the buffer.
//
// Decoding adds a frame of reference to every value with wraparound
// arithmetic, which lets encoders store deltas from a base value (see
// EncodeFOR).
package bitpack

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/colmeta/metastore/internal/invariants"
	"golang.org/x/exp/constraints"
)

// GroupSize is the number of values packed or unpacked together.
const GroupSize = 32

// Integer is the set of element types supported by the codec.
type Integer interface {
	constraints.Integer
}

// Width is a number of bits per packed value, in [0, 64].
type Width uint8

// String implements fmt.Stringer.
func (w Width) String() string {
	return fmt.Sprintf("%db", uint8(w))
}

// typeBits returns the number of bits in T.
func typeBits[T Integer]() Width {
	var x T
	return Width(unsafe.Sizeof(x) * 8)
}

// typeSize returns the size of T in bytes.
func typeSize[T Integer]() Width {
	var x T
	return Width(unsafe.Sizeof(x))
}

func isSigned[T Integer]() bool {
	var x T
	x--
	return x < 0
}

// minValue returns the most negative value representable by T (zero for
// unsigned types).
func minValue[T Integer]() T {
	if !isSigned[T]() {
		return 0
	}
	return T(uint64(1) << (typeBits[T]() - 1))
}

func widthMask(w Width) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<w - 1
}

// RoundUpToGroupSize rounds n up to the next multiple of GroupSize.
func RoundUpToGroupSize(n int) int {
	return (n + GroupSize - 1) / GroupSize * GroupSize
}

// RequiredSize returns the number of bytes needed to pack count values of the
// given width. Partial trailing groups are padded to a full group, so the
// result is always a multiple of GroupSize*width/8.
func RequiredSize(count int, width Width) int {
	return RoundUpToGroupSize(count) * int(width) / 8
}

// groupBytes returns the size of one packed group.
func groupBytes(width Width) int {
	return GroupSize * int(width) / 8
}

// EffectiveWidth returns the width that is actually used to pack values of
// type T that need w bits. When packing would save fewer bits than the size of
// the type in bytes, the full type width is used instead.
func EffectiveWidth[T Integer](w Width) Width {
	if w+typeSize[T]() > typeBits[T]() {
		return typeBits[T]()
	}
	return w
}

// MinimumBitWidth returns the smallest width that can represent every value
// in values, after applying EffectiveWidth. An empty or all-zero input
// returns 0.
func MinimumBitWidth[T Integer](values []T) Width {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return MinimumBitWidthRange(lo, hi)
}

// MinimumBitWidthRange is like MinimumBitWidth but takes the minimum and
// maximum of the input directly.
//
// For signed types the width includes a sign bit, and an input containing the
// most negative value of the type always requires the full type width.
func MinimumBitWidthRange[T Integer](lo, hi T) Width {
	var magnitude uint64
	var w Width
	if isSigned[T]() {
		if lo == minValue[T]() {
			return typeBits[T]()
		}
		m := int64(hi)
		if neg := -int64(lo); neg > m {
			m = neg
		}
		magnitude = uint64(m)
		w = 1
	} else {
		magnitude = uint64(hi)
	}
	if magnitude == 0 {
		return 0
	}
	w += Width(bits.Len64(magnitude))
	return EffectiveWidth[T](w)
}

func checkWidth[T Integer](width Width) {
	if width > typeBits[T]() {
		panic(fmt.Sprintf("bitpack: width %d exceeds %d-bit type", width, typeBits[T]()))
	}
}

// Pack encodes src into dst using width bits per value. dst must be at least
// RequiredSize(len(src), width) bytes. A trailing partial group is copied into
// a zeroed scratch group before packing, so the padding bits of the last group
// are always zero.
//
// Values must fit in width bits (see MinimumBitWidth); higher bits are
// discarded.
func Pack[T Integer](dst []byte, src []T, width Width) {
	checkWidth[T](width)
	if width == 0 {
		return
	}
	aligned := len(src) / GroupSize * GroupSize
	packAligned(dst, src[:aligned], width)
	if rem := src[aligned:]; len(rem) > 0 {
		var scratch [GroupSize]T
		copy(scratch[:], rem)
		PackGroup(dst[aligned/GroupSize*groupBytes(width):], &scratch, width)
	}
}

// PackAligned is like Pack but requires len(src) to be a multiple of
// GroupSize, which avoids the copy into the scratch group.
func PackAligned[T Integer](dst []byte, src []T, width Width) {
	if len(src)%GroupSize != 0 {
		panic(fmt.Sprintf("bitpack: PackAligned called with %d values", len(src)))
	}
	checkWidth[T](width)
	if width == 0 {
		return
	}
	packAligned(dst, src, width)
}

func packAligned[T Integer](dst []byte, src []T, width Width) {
	if len(src) == 0 {
		return
	}
	groups := unsafe.Slice((*[GroupSize]T)(unsafe.Pointer(unsafe.SliceData(src))), len(src)/GroupSize)
	n := groupBytes(width)
	_ = dst[len(groups)*n-1]
	for i := range groups {
		PackGroup(dst[i*n:], &groups[i], width)
	}
}

// PackGroup packs a single group of values into the first 4*width bytes of
// dst.
func PackGroup[T Integer](dst []byte, src *[GroupSize]T, width Width) {
	checkWidth[T](width)
	if width == 0 {
		return
	}
	mask := widthMask(width)
	w := uint(width)
	_ = dst[groupBytes(width)-1]
	var acc uint64
	var nbits uint
	pos := 0
	for _, v := range src {
		u := uint64(v) & mask
		acc |= u << nbits
		nbits += w
		if nbits >= 64 {
			binary.LittleEndian.PutUint64(dst[pos:], acc)
			pos += 8
			nbits -= 64
			// The high nbits bits of u did not fit in acc.
			acc = u >> (w - nbits)
		}
	}
	// A group is 32*width bits, so at most half a word remains.
	if nbits > 0 {
		if invariants.Enabled && nbits != 32 {
			panic(fmt.Sprintf("bitpack: %d trailing bits in group", nbits))
		}
		binary.LittleEndian.PutUint32(dst[pos:], uint32(acc))
	}
}

// Unpack decodes len(dst) values of the given width from src and adds
// frameOfReference to each of them with wraparound arithmetic. src must hold
// at least RequiredSize(len(dst), width) bytes.
//
// For signed types, values narrower than the type are sign extended from
// width bits unless skipSignExtension is set. Callers that stored unsigned
// deltas from a frame of reference (see EncodeFOR) skip sign extension.
func Unpack[T Integer](
	dst []T, src []byte, width Width, frameOfReference T, skipSignExtension bool,
) {
	checkWidth[T](width)
	aligned := len(dst) / GroupSize * GroupSize
	if aligned > 0 {
		groups := unsafe.Slice((*[GroupSize]T)(unsafe.Pointer(unsafe.SliceData(dst))), aligned/GroupSize)
		n := groupBytes(width)
		for i := range groups {
			UnpackGroup(&groups[i], src[i*n:], width, frameOfReference, skipSignExtension)
		}
	}
	if rem := dst[aligned:]; len(rem) > 0 {
		var scratch [GroupSize]T
		UnpackGroup(&scratch, src[aligned/GroupSize*groupBytes(width):], width, frameOfReference, skipSignExtension)
		copy(rem, scratch[:])
	}
}

// UnpackGroup decodes a single group. See Unpack.
func UnpackGroup[T Integer](
	dst *[GroupSize]T, src []byte, width Width, frameOfReference T, skipSignExtension bool,
) {
	checkWidth[T](width)
	if width == 0 {
		for i := range dst {
			dst[i] = frameOfReference
		}
		return
	}
	n := groupBytes(width)
	src = src[:n]
	mask := widthMask(width)
	w := uint(width)
	signExtend := !skipSignExtension && isSigned[T]() && width < typeBits[T]()
	shift := 64 - w

	var acc uint64
	var nbits uint
	pos := 0
	for i := range dst {
		var u uint64
		if nbits >= w {
			u = acc & mask
			acc >>= w
			nbits -= w
		} else {
			var next uint64
			var nextBits uint
			if n-pos >= 8 {
				next, nextBits = binary.LittleEndian.Uint64(src[pos:]), 64
				pos += 8
			} else {
				next, nextBits = uint64(binary.LittleEndian.Uint32(src[pos:])), 32
				pos += 4
			}
			u = (acc | next<<nbits) & mask
			consumed := w - nbits
			acc = next >> consumed
			nbits = nextBits - consumed
		}
		if signExtend {
			dst[i] = T(int64(u<<shift)>>shift) + frameOfReference
		} else {
			dst[i] = T(u) + frameOfReference
		}
	}
}
