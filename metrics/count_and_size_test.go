// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metrics

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/stretchr/testify/require"
)

func expect(t *testing.T, cs CountAndSize, expCount uint64, expBytes uint64) {
	t.Helper()
	require.Equal(t, expCount, cs.Count)
	require.Equal(t, expBytes, cs.Bytes)
}

func humanBytes(v uint64) string {
	return string(crhumanize.Bytes(v, crhumanize.Compact, crhumanize.OmitI))
}

func TestCountAndSize(t *testing.T) {
	var cs CountAndSize
	require.True(t, cs.IsZero())
	cs.Inc(4096)
	cs.Inc(4096)
	expect(t, cs, 2, 8192)
	cs.Dec(4096)
	expect(t, cs, 1, 4096)
	cs.Add(CountAndSize{Count: 9, Bytes: 9 * 4096})
	expect(t, cs, 10, 40960)
	require.False(t, cs.IsZero())
	require.Equal(t, fmt.Sprintf("10 (%s)", humanBytes(40960)), cs.String())
}

func TestBlockMetricsString(t *testing.T) {
	m := BlockMetrics{
		Pages:              CountAndSize{Count: 1, Bytes: 256 << 10},
		InUse:              CountAndSize{Count: 3, Bytes: 3 << 12},
		Free:               CountAndSize{Count: 61, Bytes: 61 << 12},
		Pinned:             1,
		AllocationFailures: 2,
	}
	require.Equal(t, fmt.Sprintf("pages: 1 (%s)\nin-use: 3 (%s)\nfree: 61 (%s)\npinned: 1  allocation-failures: 2",
		humanBytes(256<<10), humanBytes(3<<12), humanBytes(61<<12)), m.String())
}
