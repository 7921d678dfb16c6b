// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !cgo

package compression

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/internal/base"
	"github.com/klauspost/compress/zstd"
)

type zstdCompressor struct {
	level int
	enc   *zstd.Encoder
}

var _ Compressor = (*zstdCompressor)(nil)

// zstdEncoders caches one encoder per level.
var zstdEncoders sync.Map

func getZstdCompressor(level int) *zstdCompressor {
	if e, ok := zstdEncoders.Load(level); ok {
		return &zstdCompressor{level: level, enc: e.(*zstd.Encoder)}
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(errors.Wrap(err, "zstd encoder"))
	}
	e, _ := zstdEncoders.LoadOrStore(level, enc)
	return &zstdCompressor{level: level, enc: e.(*zstd.Encoder)}
}

// UseStandardZstdLib indicates whether the zstd implementation is a port of the
// official one in the facebook/zstd repository. Compressed sizes differ
// between the two implementations.
const UseStandardZstdLib = false

// Compress prefixes the compressed payload with the uvarint length of b.
func (z *zstdCompressor) Compress(compressedBuf, b []byte) ([]byte, Setting) {
	compressedBuf = compressedBuf[:0]
	compressedBuf = binary.AppendUvarint(compressedBuf, uint64(len(b)))
	// EncodeAll is safe for concurrent use.
	return z.enc.EncodeAll(b, compressedBuf), Setting{Algorithm: Zstd, Level: uint8(z.level)}
}

func (z *zstdCompressor) Close() {}

type zstdDecompressor struct{}

var _ Decompressor = zstdDecompressor{}

var zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(errors.Wrap(err, "zstd decoder"))
	}
	return d
})

func (zstdDecompressor) DecompressInto(dst, src []byte) error {
	_, prefixLen := binary.Uvarint(src)
	if prefixLen <= 0 {
		return base.CorruptionErrorf("compression: zstd block has invalid length")
	}
	result, err := zstdDecoder().DecodeAll(src[prefixLen:], dst[:0])
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return base.CorruptionErrorf("compression: zstd decompressed into unexpected buffer: %p != %p",
			errors.Safe(result), errors.Safe(dst))
	}
	return nil
}

func (zstdDecompressor) DecompressedLen(b []byte) (decompressedLen int, err error) {
	return zstdDecodedLen(b)
}

func (zstdDecompressor) Close() {}

func getZstdDecompressor() zstdDecompressor {
	return zstdDecompressor{}
}
