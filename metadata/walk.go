// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/colmeta/metastore/internal/base"
)

// BlockInfo describes one block of a chain visited by WalkChain.
type BlockInfo struct {
	ID   BlockID
	Next BlockID
	// Payload is the block's bytes after the header. It is only valid for
	// the duration of the callback.
	Payload []byte
}

// WalkChain calls fn for every block of the chain starting at start, in chain
// order. A link that refers to an invalid block or revisits a block of the
// chain is a corruption error. Iteration stops early if fn returns an error,
// which is returned.
func WalkChain(m *Manager, start BlockPointer, fn func(BlockInfo) error) error {
	var seen swiss.Map[BlockID, struct{}]
	seen.Init(8)
	for id := start.ID; id != InvalidBlockID; {
		if _, ok := seen.Get(id); ok {
			return base.CorruptionErrorf("metadata: cycle in chain starting at %s: block %s revisited", start.ID, id)
		}
		seen.Put(id, struct{}{})
		h, err := m.Pin(BlockPointer{ID: id})
		if err != nil {
			return errors.Wrapf(err, "metadata: walking chain starting at %s", start.ID)
		}
		info := BlockInfo{ID: id, Next: h.Next(), Payload: h.Data()[HeaderSize:]}
		err = fn(info)
		h.Release()
		if err != nil {
			return err
		}
		id = info.Next
	}
	return nil
}

// FreeChain returns every block of the chain starting at start to the free
// list.
func FreeChain(m *Manager, start BlockPointer) error {
	var ids []BlockID
	if err := WalkChain(m, start, func(b BlockInfo) error {
		ids = append(ids, b.ID)
		return nil
	}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.Free(BlockPointer{ID: id}); err != nil {
			return err
		}
	}
	return nil
}
