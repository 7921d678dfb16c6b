// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"time"

	"github.com/cockroachdb/crlib/crtime"
)

// SlowSyncThreshold is the duration above which a sync of the backing file is
// reported through the Logger.
const SlowSyncThreshold = 100 * time.Millisecond

// Stopwatch measures the elapsed time of an operation using the monotonic
// clock.
type Stopwatch struct {
	startTime crtime.Mono
}

// MakeStopwatch starts a new Stopwatch.
func MakeStopwatch() Stopwatch {
	return Stopwatch{startTime: crtime.NowMono()}
}

// Stop returns the time elapsed since the stopwatch was started.
func (w Stopwatch) Stop() time.Duration {
	return w.startTime.Elapsed()
}
