// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pagestore

import (
	"bytes"
	"encoding/binary"
	"io"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/swiss"
	"github.com/colmeta/metastore/internal/base"
	"github.com/colmeta/metastore/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

// The file starts with a header page. Only the first headerSize bytes of it
// are used:
//
//	+---------+---------+----------+-----------+--------+----------+
//	|  magic  | version | pageSize | pageCount |  root  | checksum |
//	| 8 bytes |   u32   |   u32    |    u64    |   12   |   u64    |
//	+---------+---------+----------+-----------+--------+----------+
//
// All integers are little-endian. The checksum is the xxhash64 of the
// preceding bytes. Page i is stored at file offset (i+1)*pageSize.
const (
	fileMagic      = "MTSTORE\x00"
	formatVersion  = 1
	headerSize     = 44
	checksumOffset = headerSize - 8
)

type fileHeader struct {
	pageSize  uint32
	pageCount uint64
	root      [RootSize]byte
}

func (h *fileHeader) encode(buf []byte) {
	_ = buf[headerSize-1]
	copy(buf[:8], fileMagic)
	binary.LittleEndian.PutUint32(buf[8:], formatVersion)
	binary.LittleEndian.PutUint32(buf[12:], h.pageSize)
	binary.LittleEndian.PutUint64(buf[16:], h.pageCount)
	copy(buf[24:checksumOffset], h.root[:])
	binary.LittleEndian.PutUint64(buf[checksumOffset:], xxhash.Sum64(buf[:checksumOffset]))
}

func (h *fileHeader) decode(buf []byte) error {
	if len(buf) < headerSize {
		return base.CorruptionErrorf("pagestore: header too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[:8], []byte(fileMagic)) {
		return base.CorruptionErrorf("pagestore: bad magic %q", buf[:8])
	}
	if sum, want := xxhash.Sum64(buf[:checksumOffset]), binary.LittleEndian.Uint64(buf[checksumOffset:]); sum != want {
		return base.CorruptionErrorf("pagestore: header checksum mismatch: computed %016x, stored %016x", sum, want)
	}
	if v := binary.LittleEndian.Uint32(buf[8:]); v != formatVersion {
		return base.CorruptionErrorf("pagestore: unsupported format version %d", v)
	}
	h.pageSize = binary.LittleEndian.Uint32(buf[12:])
	h.pageCount = binary.LittleEndian.Uint64(buf[16:])
	copy(h.root[:], buf[24:checksumOffset])
	if h.pageSize < headerSize {
		return base.CorruptionErrorf("pagestore: invalid page size %d", h.pageSize)
	}
	return nil
}

// FileOptions configures a FileProvider.
type FileOptions struct {
	// PageSize is the size of each page. When opening an existing file it
	// must be zero or match the page size recorded in the file.
	PageSize int

	// MaxPages limits the number of pages; zero means unlimited.
	MaxPages uint64

	// ReadOnly opens the file without write access. Claim and SetRoot fail.
	ReadOnly bool

	// ErrorIfNotExists causes Open to fail if the file does not exist instead
	// of creating it.
	ErrorIfNotExists bool

	// Logger receives informational messages such as slow syncs.
	Logger base.Logger

	// SyncLatency, if set, observes the duration in seconds of every fsync of
	// the file.
	SyncLatency prometheus.Histogram
}

// EnsureDefaults fills in default values for unset fields.
func (o *FileOptions) EnsureDefaults() {
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
}

// FileProvider is a Provider that stores pages in a single file.
//
// Pinned pages are cached in memory. Dirty pages stay cached until the next
// Sync writes them back; clean pages are dropped from the cache when their
// last pin is released. Callers must not modify pinned pages concurrently
// with Sync; metadata.Manager.Sync excludes its Writers while syncing.
type FileProvider struct {
	fs       vfs.FS
	path     string
	file     vfs.File
	opts     FileOptions
	pageSize int

	mu struct {
		sync.Mutex
		numPages uint64
		root     [RootSize]byte
		// headerDirty is set when numPages or root changed since the last
		// header write.
		headerDirty bool
		cache       swiss.Map[PageID, *cachedPage]
		syncs       int64
		closed      bool
	}
}

type cachedPage struct {
	page  Page
	refs  int
	dirty bool
}

var _ Provider = (*FileProvider)(nil)

// Open opens the page file at path, creating it if it does not exist (unless
// opts.ReadOnly or opts.ErrorIfNotExists is set).
func Open(fs vfs.FS, path string, opts FileOptions) (*FileProvider, error) {
	opts.EnsureDefaults()
	p := &FileProvider{fs: fs, path: path, opts: opts}
	p.mu.cache.Init(16)

	_, err := fs.Stat(path)
	switch {
	case err == nil:
		if err := p.openExisting(); err != nil {
			return nil, err
		}
	case oserror.IsNotExist(err):
		if opts.ReadOnly || opts.ErrorIfNotExists {
			return nil, errors.Wrapf(err, "pagestore: %q does not exist", path)
		}
		if err := p.create(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return p, nil
}

func (p *FileProvider) create() error {
	p.pageSize = p.opts.PageSize
	if p.pageSize == 0 {
		p.pageSize = DefaultPageSize
	}
	if p.pageSize < headerSize {
		return errors.Newf("pagestore: page size %d too small", p.pageSize)
	}
	f, err := p.fs.Create(p.path)
	if err != nil {
		return err
	}
	p.file = f
	if err := p.writeHeaderAndSync(); err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	p.opts.Logger.Infof("pagestore: created %s (page size %d)", p.path, p.pageSize)
	return nil
}

func (p *FileProvider) openExisting() error {
	var f vfs.File
	var err error
	if p.opts.ReadOnly {
		f, err = p.fs.Open(p.path)
	} else {
		f, err = p.fs.OpenReadWrite(p.path)
	}
	if err != nil {
		return err
	}
	var buf [headerSize]byte
	var h fileHeader
	if n, err := f.ReadAt(buf[:], 0); n < headerSize {
		if err == nil || errors.Is(err, io.EOF) {
			err = base.CorruptionErrorf("pagestore: %s: header truncated (%d bytes)", p.path, n)
		}
		return errors.CombineErrors(err, f.Close())
	}
	if err := h.decode(buf[:]); err != nil {
		return errors.CombineErrors(errors.Wrapf(err, "pagestore: %s", p.path), f.Close())
	}
	if p.opts.PageSize != 0 && p.opts.PageSize != int(h.pageSize) {
		return errors.CombineErrors(
			errors.Newf("pagestore: %s has page size %d, expected %d", p.path, h.pageSize, p.opts.PageSize),
			f.Close())
	}
	p.file = f
	p.pageSize = int(h.pageSize)
	p.mu.numPages = h.pageCount
	p.mu.root = h.root
	return nil
}

func (p *FileProvider) pageOffset(id PageID) int64 {
	return int64(id+1) * int64(p.pageSize)
}

// PageSize implements Provider.
func (p *FileProvider) PageSize() int { return p.pageSize }

// NumPages implements Provider.
func (p *FileProvider) NumPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.numPages
}

// Claim implements Provider.
func (p *FileProvider) Claim() (*Page, error) {
	if p.opts.ReadOnly {
		return nil, base.MarkAllocationFailure(errors.Newf("pagestore: %s is read-only", p.path))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opts.MaxPages > 0 && p.mu.numPages >= p.opts.MaxPages {
		return nil, base.MarkAllocationFailure(
			errors.Newf("pagestore: page limit %d reached", p.opts.MaxPages))
	}
	id := PageID(p.mu.numPages)
	if err := p.file.Preallocate(p.pageOffset(id), int64(p.pageSize)); err != nil {
		p.opts.Logger.Errorf("pagestore: unable to grow %s for %s: %v", p.path, id, err)
		return nil, base.MarkAllocationFailure(errors.Wrapf(err, "pagestore: claiming %s", id))
	}
	p.mu.numPages++
	p.mu.headerDirty = true
	cp := &cachedPage{page: Page{ID: id, Data: make([]byte, p.pageSize)}, refs: 1, dirty: true}
	p.mu.cache.Put(id, cp)
	return &cp.page, nil
}

// Pin implements Provider.
func (p *FileProvider) Pin(id PageID) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint64(id) >= p.mu.numPages {
		return nil, base.CorruptionErrorf("pagestore: %s out of range (%d pages)", id, p.mu.numPages)
	}
	if cp, ok := p.mu.cache.Get(id); ok {
		cp.refs++
		return &cp.page, nil
	}
	data := make([]byte, p.pageSize)
	if n, err := p.file.ReadAt(data, p.pageOffset(id)); n < len(data) {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, base.CorruptionErrorf("pagestore: %s: %s truncated (%d bytes)", p.path, id, n)
		}
		return nil, errors.Wrapf(err, "pagestore: reading %s", id)
	}
	cp := &cachedPage{page: Page{ID: id, Data: data}, refs: 1}
	p.mu.cache.Put(id, cp)
	return &cp.page, nil
}

// Unpin implements Provider.
func (p *FileProvider) Unpin(page *Page, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp, ok := p.mu.cache.Get(page.ID)
	if !ok || cp.refs == 0 {
		base.AssertionFailedf("pagestore: unpin of %s without matching pin", page.ID)
	}
	cp.refs--
	cp.dirty = cp.dirty || dirty
	if cp.refs == 0 && !cp.dirty {
		p.mu.cache.Delete(page.ID)
	}
}

// Pinned returns the number of outstanding pins.
func (p *FileProvider) Pinned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	p.mu.cache.All(func(_ PageID, cp *cachedPage) bool {
		n += cp.refs
		return true
	})
	return n
}

// Root implements Provider.
func (p *FileProvider) Root() [RootSize]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.root
}

// SetRoot implements Provider.
func (p *FileProvider) SetRoot(root [RootSize]byte) error {
	if p.opts.ReadOnly {
		return errors.Newf("pagestore: %s is read-only", p.path)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.root = root
	p.mu.headerDirty = true
	return nil
}

// Syncs returns the number of times the file has been synced.
func (p *FileProvider) Syncs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.syncs
}

// Sync implements Provider. Dirty pages are written in page order, followed
// by the header, followed by an fsync.
func (p *FileProvider) Sync() error {
	if p.opts.ReadOnly {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mu.closed {
		return errors.New("pagestore: sync of closed provider")
	}
	return p.syncLocked()
}

func (p *FileProvider) syncLocked() error {
	var dirty []PageID
	p.mu.cache.All(func(id PageID, cp *cachedPage) bool {
		if cp.dirty {
			dirty = append(dirty, id)
		}
		return true
	})
	if len(dirty) == 0 && !p.mu.headerDirty {
		return nil
	}
	slices.Sort(dirty)
	for _, id := range dirty {
		cp, _ := p.mu.cache.Get(id)
		if _, err := p.file.WriteAt(cp.page.Data, p.pageOffset(id)); err != nil {
			return errors.Wrapf(err, "pagestore: writing %s", id)
		}
		cp.dirty = false
		if cp.refs == 0 {
			p.mu.cache.Delete(id)
		}
	}
	if err := p.writeHeaderAndSync(); err != nil {
		return err
	}
	p.mu.headerDirty = false
	return nil
}

func (p *FileProvider) writeHeaderAndSync() error {
	h := fileHeader{
		pageSize:  uint32(p.pageSize),
		pageCount: p.mu.numPages,
		root:      p.mu.root,
	}
	var buf [headerSize]byte
	h.encode(buf[:])
	if _, err := p.file.WriteAt(buf[:], 0); err != nil {
		return errors.Wrap(err, "pagestore: writing header")
	}
	stopwatch := base.MakeStopwatch()
	err := p.file.Sync()
	elapsed := stopwatch.Stop()
	p.mu.syncs++
	if p.opts.SyncLatency != nil {
		p.opts.SyncLatency.Observe(elapsed.Seconds())
	}
	if elapsed > base.SlowSyncThreshold {
		p.opts.Logger.Infof("pagestore: sync of %s took %s", p.path, elapsed)
	}
	return errors.Wrap(err, "pagestore: sync")
}

// Close implements Provider.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mu.closed {
		return errors.New("pagestore: provider already closed")
	}
	p.mu.closed = true
	var err error
	if !p.opts.ReadOnly {
		err = p.syncLocked()
	}
	var pinned int
	p.mu.cache.All(func(_ PageID, cp *cachedPage) bool {
		pinned += cp.refs
		return true
	})
	if pinned > 0 {
		p.opts.Logger.Errorf("pagestore: closing %s with %d pinned pages", p.path, pinned)
	}
	return errors.CombineErrors(err, p.file.Close())
}
