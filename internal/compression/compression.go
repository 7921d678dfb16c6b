// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression wraps the general-purpose block compressors that packed
// integer buffers are measured against.
package compression

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/minio/minlz"
)

// Algorithm identifies a compression algorithm.
type Algorithm uint8

const (
	NoCompression Algorithm = iota
	Snappy
	MinLZ
	Zstd

	NumAlgorithms
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case NoCompression:
		return "NoCompression"
	case Snappy:
		return "Snappy"
	case MinLZ:
		return "MinLZ"
	case Zstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Setting is an algorithm and a level. The level is ignored by algorithms
// without levels.
type Setting struct {
	Algorithm Algorithm
	Level     uint8
}

// String implements fmt.Stringer.
func (s Setting) String() string {
	if s.Algorithm == MinLZ || s.Algorithm == Zstd {
		return fmt.Sprintf("%s%d", s.Algorithm, s.Level)
	}
	return s.Algorithm.String()
}

// Predefined settings.
var (
	None          = Setting{Algorithm: NoCompression}
	SnappySetting = Setting{Algorithm: Snappy}
	MinLZFastest  = Setting{Algorithm: MinLZ, Level: minlz.LevelFastest}
	MinLZBalanced = Setting{Algorithm: MinLZ, Level: minlz.LevelBalanced}
	ZstdLevel1    = Setting{Algorithm: Zstd, Level: 1}
	ZstdLevel3    = Setting{Algorithm: Zstd, Level: 3}
)

// Presets lists the settings reported by analysis tools, in order.
var Presets = []Setting{None, SnappySetting, MinLZFastest, MinLZBalanced, ZstdLevel1, ZstdLevel3}

// ParseSetting parses the String form of one of the Presets.
func ParseSetting(s string) (Setting, error) {
	for _, p := range Presets {
		if p.String() == s {
			return p, nil
		}
	}
	return Setting{}, errors.Newf("unknown compression setting %q", s)
}

// Compressor compresses blocks. A Compressor must be closed after use.
type Compressor interface {
	// Compress appends the compressed form of src to dst[:0] (reusing dst's
	// capacity when possible) and returns it along with the setting used.
	Compress(dst, src []byte) ([]byte, Setting)
	Close()
}

// Decompressor decompresses blocks produced by a Compressor of the same
// algorithm. A Decompressor must be closed after use.
type Decompressor interface {
	// DecompressInto decompresses src into dst, which must have exactly the
	// length returned by DecompressedLen.
	DecompressInto(dst, src []byte) error
	// DecompressedLen returns the length of the decompressed form of b.
	DecompressedLen(b []byte) (decompressedLen int, err error)
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case NoCompression:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case MinLZ:
		return getMinlzCompressor(int(s.Level))
	case Zstd:
		return getZstdCompressor(int(s.Level))
	default:
		panic(errors.AssertionFailedf("invalid compression setting %s", s))
	}
}

// GetDecompressor returns a Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case NoCompression:
		return noopDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case MinLZ:
		return minlzDecompressor{}
	case Zstd:
		return getZstdDecompressor()
	default:
		panic(errors.AssertionFailedf("invalid compression algorithm %s", a))
	}
}

// Decompress decompresses b into a newly allocated buffer.
func Decompress(a Algorithm, b []byte) ([]byte, error) {
	d := GetDecompressor(a)
	defer d.Close()
	n, err := d.DecompressedLen(b)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.DecompressInto(buf, b); err != nil {
		return nil, err
	}
	return buf, nil
}
