// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metastore provides a persistent, block-chained metadata store.
//
// A Store carves fixed-size blocks out of the pages of a single file (or of
// any pagestore.Provider). Writers append variable-length records to a chain
// of blocks without regard for block boundaries; Readers consume a chain
// starting from a MetaBlockPointer handed out by a Writer. The store keeps
// one root pointer in its header, which Checkpoint updates durably.
package metastore

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/metadata"
	"github.com/colmeta/metastore/pagestore"
)

// MetadataFilename is the name of the file holding a store inside its
// directory.
const MetadataFilename = "METADATA"

// Store ties a page provider and a block manager together. It is safe for
// concurrent use. The Writers and Readers it returns are not.
type Store struct {
	dirname  string
	opts     *Options
	provider pagestore.Provider
	manager  *metadata.Manager

	mu struct {
		sync.Mutex
		closed      bool
		checkpoints int64
		// writers and readers count the streams opened through the store and
		// not yet closed.
		writers int
		readers int
		// bytesWritten and bytesRead accumulate the payload bytes of closed
		// streams.
		bytesWritten uint64
		bytesRead    uint64
	}
}

// Open opens the store in the given directory, creating it if it does not
// exist and opts.ReadOnly and opts.ErrorIfNotExists are unset. When
// opts.Provider is set the directory is ignored and pages are taken from the
// provider.
func Open(dirname string, opts *Options) (*Store, error) {
	// Make a copy of the options so that we don't mutate the passed in options.
	opts = opts.Clone().EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		if !opts.ReadOnly && !opts.ErrorIfNotExists {
			if err := opts.FS.MkdirAll(dirname, 0755); err != nil {
				return nil, err
			}
		}
		fp, err := pagestore.Open(opts.FS, opts.FS.PathJoin(dirname, MetadataFilename), pagestore.FileOptions{
			PageSize:         opts.PageSize,
			MaxPages:         opts.MaxPages,
			ReadOnly:         opts.ReadOnly,
			ErrorIfNotExists: opts.ErrorIfNotExists,
			Logger:           opts.Logger,
			SyncLatency:      opts.SyncLatency,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "metastore: opening %q", dirname)
		}
		provider = fp
	}

	manager, err := metadata.NewManager(provider, metadata.ManagerOptions{
		BlockSize: opts.BlockSize,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, errors.CombineErrors(err, provider.Close())
	}
	s := &Store{
		dirname:  dirname,
		opts:     opts,
		provider: provider,
		manager:  manager,
	}
	if root := s.Root(); root.IsValid() {
		opts.Logger.Infof("metastore: opened %q with root %s", dirname, root)
	}
	return s, nil
}

// Manager returns the block manager of the store.
func (s *Store) Manager() *metadata.Manager {
	return s.manager
}

func (s *Store) checkOpen() error {
	if s.mu.closed {
		return errors.New("metastore: closed")
	}
	return nil
}

// NewWriter returns a Writer appending to a fresh chain of blocks. The
// Writer does not allocate a block until the first byte is written. The
// returned Writer must be closed with CloseWriter so that its blocks become
// durable at the next Checkpoint.
func (s *Store) NewWriter() (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.opts.ReadOnly {
		return nil, errors.New("metastore: cannot write to a read-only store")
	}
	s.mu.writers++
	return metadata.NewWriter(s.manager), nil
}

// CloseWriter flushes and closes w, which must have been returned by
// NewWriter.
func (s *Store) CloseWriter(w *Writer) error {
	err := w.Flush()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.writers--
	s.mu.bytesWritten += w.BytesWritten()
	return err
}

// NewReader returns a Reader positioned at ptr.
func (s *Store) NewReader(ptr MetaBlockPointer) (*Reader, error) {
	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.readers++
	s.mu.Unlock()

	r, err := metadata.NewReader(s.manager, ptr)
	if err != nil {
		s.mu.Lock()
		s.mu.readers--
		s.mu.Unlock()
		return nil, err
	}
	return r, nil
}

// CloseReader closes r, which must have been returned by NewReader.
func (s *Store) CloseReader(r *Reader) error {
	err := r.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.readers--
	s.mu.bytesRead += r.BytesRead()
	return err
}

// Root returns the root pointer recorded by the last SetRoot or Checkpoint,
// or InvalidPointer if none was ever recorded.
func (s *Store) Root() MetaBlockPointer {
	buf := s.provider.Root()
	// A zeroed root is what a freshly created store records. Offset zero
	// points into a block header, so no writer can hand it out.
	if buf == ([pagestore.RootSize]byte{}) {
		return InvalidPointer
	}
	ptr, err := metadata.DecodeMetaBlockPointer(buf[:])
	if err != nil {
		return InvalidPointer
	}
	return ptr
}

// SetRoot records ptr as the root pointer. The change becomes durable at the
// next Flush or Checkpoint.
func (s *Store) SetRoot(ptr MetaBlockPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	var buf [pagestore.RootSize]byte
	ptr.Encode(buf[:])
	return s.provider.SetRoot(buf)
}

// Flush writes all modified blocks of closed writers and the header to
// stable storage.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.manager.Sync()
}

// Checkpoint records ptr as the root pointer and makes it durable along with
// every block written by closed writers.
func (s *Store) Checkpoint(ptr MetaBlockPointer) error {
	if ptr.IsValid() && ptr.Offset < metadata.HeaderSize {
		return errors.Newf("metastore: root %s points into a block header", ptr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	var buf [pagestore.RootSize]byte
	ptr.Encode(buf[:])
	if err := s.provider.SetRoot(buf); err != nil {
		return err
	}
	if err := s.manager.Sync(); err != nil {
		return errors.Wrapf(err, "metastore: checkpoint of root %s", ptr)
	}
	s.mu.checkpoints++
	return nil
}

// FreeChain returns every block of the chain starting at ptr to the free
// list.
func (s *Store) FreeChain(ptr BlockPointer) error {
	if s.opts.ReadOnly {
		return errors.New("metastore: cannot free blocks of a read-only store")
	}
	return metadata.FreeChain(s.manager, ptr)
}

// Metrics returns metrics about the store.
func (s *Store) Metrics() *Metrics {
	m := &Metrics{Blocks: s.manager.Metrics()}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Checkpoints = s.mu.checkpoints
	m.OpenWriters = s.mu.writers
	m.OpenReaders = s.mu.readers
	m.BytesWritten = s.mu.bytesWritten
	m.BytesRead = s.mu.bytesRead
	if fp, ok := s.provider.(*pagestore.FileProvider); ok {
		m.Syncs = fp.Syncs()
	}
	return m
}

// Close flushes the store and releases the provider. Writers and readers
// still open are reported as leaked; their blocks are not made durable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return errors.New("metastore: already closed")
	}
	s.mu.closed = true
	if s.mu.writers+s.mu.readers > 0 {
		s.opts.Logger.Errorf("metastore: closing with %d writers and %d readers open",
			s.mu.writers, s.mu.readers)
	}
	return errors.Wrap(s.manager.Close(), "metastore: close")
}
