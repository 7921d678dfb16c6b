// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"testing"

	"github.com/cockroachdb/redact"
	"github.com/colmeta/metastore/pagestore"
	"github.com/stretchr/testify/require"
)

func TestBlockID(t *testing.T) {
	id := MakeBlockID(12345, 63)
	require.Equal(t, pagestore.PageID(12345), id.Page())
	require.Equal(t, 63, id.Slot())
	require.True(t, id.IsValid())
	require.Equal(t, "12345.63", id.String())

	require.False(t, InvalidBlockID.IsValid())
	require.Equal(t, "invalid", InvalidBlockID.String())
	require.Equal(t, 255, InvalidBlockID.Slot())
	require.Greater(t, InvalidBlockID.Slot(), MaxBlocksPerPage-1)

	// The largest legitimate id never collides with the sentinel.
	largest := MakeBlockID(pagestore.PageID(pageMask), MaxBlocksPerPage-1)
	require.NotEqual(t, InvalidBlockID, largest)
	require.Equal(t, "12345.63", redact.StringWithoutMarkers(id))
}

func TestMetaBlockPointerEncoding(t *testing.T) {
	ptr := MetaBlockPointer{Block: MakeBlockID(7, 2), Offset: 4000}
	var buf [EncodedPointerSize]byte
	ptr.Encode(buf[:])
	require.Equal(t, []byte{7, 0, 0, 0, 0, 0, 0, 2, 0xa0, 0x0f, 0, 0}, buf[:])
	require.Equal(t, buf[:], ptr.AppendEncoded(nil))

	decoded, err := DecodeMetaBlockPointer(buf[:])
	require.NoError(t, err)
	require.Equal(t, ptr, decoded)
	_, err = DecodeMetaBlockPointer(buf[:11])
	require.Error(t, err)

	InvalidPointer.Encode(buf[:])
	decoded, err = DecodeMetaBlockPointer(buf[:])
	require.NoError(t, err)
	require.False(t, decoded.IsValid())
}

func TestParseMetaBlockPointer(t *testing.T) {
	for _, s := range []string{"0.0+8", "7.2+4000", "72057594037927935.254+1", "invalid+0"} {
		ptr, err := ParseMetaBlockPointer(s)
		require.NoError(t, err, s)
		require.Equal(t, s, ptr.String())
	}
	for _, s := range []string{"", "0.0", "0+8", "0.255+8", "a.0+8", "0.0+x", "0.0+4294967296"} {
		_, err := ParseMetaBlockPointer(s)
		require.Error(t, err, s)
	}
}
