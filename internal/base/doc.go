// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental facilities shared by the metastore
// packages: the Logger interface, the error markers used to classify failures
// (corruption, allocation failure) and small timing helpers.
//
// # Errors
//
// Errors are constructed with github.com/cockroachdb/errors. Failures that
// indicate on-disk inconsistency are marked with ErrCorruption, failures of
// the backing medium to grow are marked with ErrAllocationFailure. Callers
// classify errors with IsCorruptionError and IsAllocationFailure, which see
// through any wrapping added on the way up. Programming errors (caller misuse)
// are reported as assertion failures and panic.
package base
