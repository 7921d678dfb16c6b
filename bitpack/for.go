// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitpack

import "math/bits"

// SubtractFrameOfReference subtracts frameOfReference from every value in
// place, with wraparound arithmetic.
func SubtractFrameOfReference[T Integer](values []T, frameOfReference T) {
	for i := range values {
		values[i] -= frameOfReference
	}
}

// ApplyFrameOfReference adds frameOfReference to every value in place, with
// wraparound arithmetic.
func ApplyFrameOfReference[T Integer](values []T, frameOfReference T) {
	for i := range values {
		values[i] += frameOfReference
	}
}

// FORWidth returns the width needed to pack the deltas of values in [lo, hi]
// from lo. The deltas are treated as unsigned, so no sign bit is reserved.
func FORWidth[T Integer](lo, hi T) Width {
	delta := uint64(hi-lo) & widthMask(typeBits[T]())
	if delta == 0 {
		return 0
	}
	return EffectiveWidth[T](Width(bits.Len64(delta)))
}

// EncodeFOR packs src as unsigned deltas from its minimum value. It returns
// the frame of reference and the width that were used; both must be passed to
// DecodeFOR. dst must hold RequiredSize(len(src), width) bytes; callers that
// do not know the width up front can size dst with RequiredSize(len(src),
// 64).
//
// src is not modified.
func EncodeFOR[T Integer](dst []byte, src []T) (frameOfReference T, width Width) {
	if len(src) == 0 {
		return 0, 0
	}
	lo, hi := src[0], src[0]
	for _, v := range src[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	width = FORWidth(lo, hi)
	if width == 0 {
		return lo, 0
	}
	aligned := len(src) / GroupSize * GroupSize
	var scratch [GroupSize]T
	n := groupBytes(width)
	for i := 0; i < len(src); i += GroupSize {
		end := min(i+GroupSize, len(src))
		clear(scratch[:])
		copy(scratch[:], src[i:end])
		if i >= aligned {
			// Padding values must not wrap to large deltas.
			for j := end - i; j < GroupSize; j++ {
				scratch[j] = lo
			}
		}
		SubtractFrameOfReference(scratch[:], lo)
		PackGroup(dst[i/GroupSize*n:], &scratch, width)
	}
	return lo, width
}

// DecodeFOR decodes len(dst) values packed by EncodeFOR.
func DecodeFOR[T Integer](dst []T, src []byte, width Width, frameOfReference T) {
	Unpack(dst, src, width, frameOfReference, true /* skipSignExtension */)
}
