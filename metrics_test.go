// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metastore

import (
	"testing"

	"github.com/cockroachdb/redact"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/pagestore"
	"github.com/stretchr/testify/require"
)

func TestMetricsFormat(t *testing.T) {
	s, err := Open("", &Options{Provider: pagestore.NewMemProvider(4096, 0), BlockSize: 512, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	root := writeRecords(t, s, 100)
	require.NoError(t, s.Checkpoint(root))
	r, err := s.NewReader(root)
	require.NoError(t, err)

	m := s.Metrics()
	require.Equal(t, 1, m.OpenReaders)
	require.Equal(t, uint64(3), m.Blocks.InUse.Count)
	require.Equal(t, uint64(5), m.Blocks.Free.Count)
	require.Equal(t, uint64(1), m.Blocks.Pinned)

	str := m.String()
	require.Contains(t, str, "streams: 0 writers  1 readers open\n")
	require.Contains(t, str, "checkpoints: 1  syncs: 0")
	require.Contains(t, str, "pinned: 1  allocation-failures: 0")
	require.Contains(t, string(redact.Sprint(m)), "checkpoints: 1")
	require.NoError(t, s.CloseReader(r))
}
