// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var slept time.Duration
	l := NewLimiterWithCustomTime(100, 100,
		func() time.Time { return now },
		func(d time.Duration) {
			slept += d
			now = now.Add(d)
		})
	require.Equal(t, 100.0, l.Rate())

	// The bucket starts full.
	l.Wait(100)
	require.Zero(t, slept)
	require.Zero(t, l.Throttled())

	// The next 50 tokens take half a second to refill.
	l.Wait(50)
	require.InDelta(t, float64(500*time.Millisecond), float64(slept), float64(time.Millisecond))
	require.GreaterOrEqual(t, l.Throttled(), 1)
}
