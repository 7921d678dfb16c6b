// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"encoding/binary"

	"github.com/colmeta/metastore/internal/base"
)

// zstdDecodedLen returns the length prefix written by zstdCompressor.Compress.
func zstdDecodedLen(b []byte) (int, error) {
	decodedLenU64, varIntLen := binary.Uvarint(b)
	if varIntLen <= 0 {
		return 0, base.CorruptionErrorf("compression: zstd block has invalid length")
	}
	return int(decodedLenU64), nil
}
