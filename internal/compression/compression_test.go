// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/colmeta/metastore/internal/base"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundtrip(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	for _, s := range Presets {
		t.Run(s.String(), func(t *testing.T) {
			payload := make([]byte, 1+rng.IntN(10<<10 /* 10 KiB */))
			for i := range payload {
				payload[i] = byte(rng.Uint32())
			}
			// Create a randomly-sized buffer to house the compressed output. If it's
			// not sufficient, Compress should allocate one that is.
			compressedBuf := make([]byte, 1+rng.IntN(1<<10 /* 1 KiB */))
			compressor := GetCompressor(s)
			defer compressor.Close()
			compressed, st := compressor.Compress(compressedBuf, payload)
			require.Equal(t, s, st)
			got, err := Decompress(st.Algorithm, compressed)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestCompressibleInput(t *testing.T) {
	payload := bytes.Repeat([]byte{0x39, 0x00, 0x00, 0x00}, 4096)
	for _, s := range Presets[1:] {
		c := GetCompressor(s)
		compressed, _ := c.Compress(nil, payload)
		c.Close()
		require.Less(t, len(compressed), len(payload)/4, "%s", s)
	}
}

// TestDecompressionError tests that decompressing a value that does not
// decompress returns a corruption error.
func TestDecompressionError(t *testing.T) {
	defer leaktest.AfterTest(t)()
	rng := rand.New(rand.NewPCG(0, 1 /* fixed seed */))

	// Create a buffer to represent a faux zstd compressed block. It's prefixed
	// with a uvarint of the appropriate length, followed by garbage.
	fauxCompressed := make([]byte, 64+rng.IntN(10<<10 /* 10 KiB */))
	compressedPayloadLen := len(fauxCompressed) - binary.MaxVarintLen64
	n := binary.PutUvarint(fauxCompressed, uint64(compressedPayloadLen))
	fauxCompressed = fauxCompressed[:n+compressedPayloadLen]
	for i := range fauxCompressed[n:] {
		fauxCompressed[n+i] = byte(rng.Uint32())
	}

	v, err := Decompress(Zstd, fauxCompressed)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err), "%v", err)
	require.Nil(t, v)
}

func TestParseSetting(t *testing.T) {
	for _, s := range Presets {
		p, err := ParseSetting(s.String())
		require.NoError(t, err)
		require.Equal(t, s, p)
	}
	_, err := ParseSetting("lz4")
	require.Error(t, err)
	require.Equal(t, "unknown(9)", Algorithm(9).String())
}
