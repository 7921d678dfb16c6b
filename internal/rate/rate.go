// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rate throttles the write load generated by the benchmark tools.
package rate

import (
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// Limiter throttles events to a rate of r tokens per second with bursts of at
// most b tokens. A token is usually a byte.
//
// Limiter is thread-safe.
type Limiter struct {
	mu struct {
		sync.Mutex
		tb    tokenbucket.TokenBucket
		rate  float64
		debts int
	}
	sleepFn func(d time.Duration)
}

// NewLimiter returns a Limiter allowing r tokens per second and bursts of b
// tokens. The bucket starts full.
func NewLimiter(r float64, b float64) *Limiter {
	l := &Limiter{sleepFn: time.Sleep}
	l.mu.tb.Init(tokenbucket.TokensPerSecond(r), tokenbucket.Tokens(b))
	l.mu.rate = r
	return l
}

// NewLimiterWithCustomTime is like NewLimiter but reads the time from nowFn
// and sleeps with sleepFn.
func NewLimiterWithCustomTime(
	r float64, b float64, nowFn func() time.Time, sleepFn func(d time.Duration),
) *Limiter {
	l := &Limiter{sleepFn: sleepFn}
	l.mu.tb.InitWithNowFn(tokenbucket.TokensPerSecond(r), tokenbucket.Tokens(b), nowFn)
	l.mu.rate = r
	return l
}

// Wait blocks until n tokens are available and consumes them. If n exceeds
// the burst, the bucket goes into debt and later calls wait longer.
func (l *Limiter) Wait(n float64) {
	for {
		l.mu.Lock()
		ok, d := l.mu.tb.TryToFulfill(tokenbucket.Tokens(n))
		if !ok {
			l.mu.debts++
		}
		l.mu.Unlock()
		if ok {
			return
		}
		l.sleepFn(d)
	}
}

// Rate returns the configured rate.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.rate
}

// Throttled returns the number of times Wait had to sleep.
func (l *Limiter) Throttled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.debts
}
