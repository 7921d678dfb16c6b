// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

const sep = "/"

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	fs := &MemFS{}
	fs.mu.nodes = make(map[string]*memNode)
	fs.mu.dirs = map[string]struct{}{sep: {}}
	return fs
}

// MemFS implements FS. Paths are cleaned and treated as absolute, so "a/b" and
// "/a/b" refer to the same file.
//
// Data that has been written but not synced is tracked separately so that
// ResetToSyncedState can simulate a crash that loses unsynced writes.
type MemFS struct {
	mu struct {
		sync.Mutex
		nodes map[string]*memNode
		dirs  map[string]struct{}
	}
}

var _ FS = (*MemFS)(nil)

type memNode struct {
	name string
	mu   struct {
		sync.Mutex
		data       []byte
		syncedData []byte
		modTime    time.Time
	}
	refs atomic.Int32
}

func cleanPath(name string) string {
	return path.Clean(sep + name)
}

func (y *MemFS) parentExists(fullname string) bool {
	_, ok := y.mu.dirs[path.Dir(fullname)]
	return ok
}

// Create implements FS.Create.
func (y *MemFS) Create(name string) (File, error) {
	fullname := cleanPath(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.parentExists(fullname) {
		return nil, &os.PathError{Op: "create", Path: name, Err: oserror.ErrNotExist}
	}
	if _, ok := y.mu.dirs[fullname]; ok {
		return nil, &os.PathError{Op: "create", Path: name, Err: errors.New("is a directory")}
	}
	n := &memNode{name: path.Base(fullname)}
	n.mu.modTime = time.Now()
	y.mu.nodes[fullname] = n
	n.refs.Add(1)
	return &memFile{n: n, fs: y, read: true, write: true}, nil
}

func (y *MemFS) open(name string, write bool) (File, error) {
	fullname := cleanPath(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.mu.nodes[fullname]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: oserror.ErrNotExist}
	}
	n.refs.Add(1)
	return &memFile{n: n, fs: y, read: true, write: write}, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(name string) (File, error) {
	return y.open(name, false /* write */)
}

// OpenReadWrite implements FS.OpenReadWrite.
func (y *MemFS) OpenReadWrite(name string) (File, error) {
	return y.open(name, true /* write */)
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(name string) error {
	fullname := cleanPath(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if _, ok := y.mu.nodes[fullname]; ok {
		delete(y.mu.nodes, fullname)
		return nil
	}
	if _, ok := y.mu.dirs[fullname]; ok && fullname != sep {
		prefix := fullname + sep
		for k := range y.mu.nodes {
			if strings.HasPrefix(k, prefix) {
				return &os.PathError{Op: "remove", Path: name, Err: oserror.ErrExist}
			}
		}
		delete(y.mu.dirs, fullname)
		return nil
	}
	return &os.PathError{Op: "remove", Path: name, Err: oserror.ErrNotExist}
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	fullname := cleanPath(dirname)
	y.mu.Lock()
	defer y.mu.Unlock()
	for d := fullname; d != sep; d = path.Dir(d) {
		if _, ok := y.mu.nodes[d]; ok {
			return &os.PathError{Op: "mkdir", Path: dirname, Err: errors.New("not a directory")}
		}
		y.mu.dirs[d] = struct{}{}
	}
	return nil
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	fullname := cleanPath(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if n, ok := y.mu.nodes[fullname]; ok {
		return n.stat(), nil
	}
	if _, ok := y.mu.dirs[fullname]; ok {
		return &memFileInfo{name: path.Base(fullname), isDir: true}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: oserror.ErrNotExist}
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// ResetToSyncedState discards all unsynced file contents, simulating a crash.
func (y *MemFS) ResetToSyncedState() {
	y.mu.Lock()
	defer y.mu.Unlock()
	for _, n := range y.mu.nodes {
		n.mu.Lock()
		n.mu.data = append(n.mu.data[:0:0], n.mu.syncedData...)
		n.mu.Unlock()
	}
}

// CrashClone returns a new MemFS holding only the synced contents of the
// receiver's files. The receiver is unaffected and may continue to be used.
func (y *MemFS) CrashClone() *MemFS {
	c := NewMem()
	y.mu.Lock()
	defer y.mu.Unlock()
	for d := range y.mu.dirs {
		c.mu.dirs[d] = struct{}{}
	}
	for name, n := range y.mu.nodes {
		n.mu.Lock()
		cn := &memNode{name: n.name}
		cn.mu.data = append([]byte(nil), n.mu.syncedData...)
		cn.mu.syncedData = append([]byte(nil), n.mu.syncedData...)
		cn.mu.modTime = n.mu.modTime
		n.mu.Unlock()
		c.mu.nodes[name] = cn
	}
	return c
}

// OpenFiles returns the number of files that have been opened and not yet
// closed.
func (y *MemFS) OpenFiles() int {
	y.mu.Lock()
	defer y.mu.Unlock()
	var count int
	for _, n := range y.mu.nodes {
		count += int(n.refs.Load())
	}
	return count
}

// String dumps the file names and sizes, sorted by name. Used by tests.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()
	names := make([]string, 0, len(y.mu.nodes))
	for k := range y.mu.nodes {
		names = append(names, k)
	}
	slices.Sort(names)
	var b strings.Builder
	for _, k := range names {
		n := y.mu.nodes[k]
		n.mu.Lock()
		b.WriteString(k)
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(len(n.mu.data)))
		b.WriteString("\n")
		n.mu.Unlock()
	}
	return b.String()
}

func (n *memNode) stat() *memFileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{name: n.name, size: int64(len(n.mu.data)), modTime: n.mu.modTime}
}

type memFile struct {
	n           *memNode
	fs          *MemFS
	read, write bool
	closed      atomic.Bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	if f.closed.Swap(true) {
		return errors.New("vfs: file already closed")
	}
	f.n.refs.Add(-1)
	return nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.read {
		return 0, errors.New("vfs: file was not opened for reading")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.mu.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	if !f.write {
		return 0, errors.New("vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(f.n.mu.data)) {
		f.n.mu.data = append(f.n.mu.data, make([]byte, end-int64(len(f.n.mu.data)))...)
	}
	f.n.mu.modTime = time.Now()
	return copy(f.n.mu.data[off:], p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return f.n.stat(), nil
}

func (f *memFile) Sync() error {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.mu.syncedData = append(f.n.mu.syncedData[:0], f.n.mu.data...)
	return nil
}

func (f *memFile) Truncate(size int64) error {
	if !f.write {
		return errors.New("vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if size <= int64(len(f.n.mu.data)) {
		f.n.mu.data = f.n.mu.data[:size]
	} else {
		f.n.mu.data = append(f.n.mu.data, make([]byte, size-int64(len(f.n.mu.data)))...)
	}
	return nil
}

func (f *memFile) Preallocate(offset, length int64) error {
	return nil
}

// memFileInfo implements os.FileInfo for a memNode.
type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string { return f.name }

func (f *memFileInfo) Size() int64 { return f.size }

func (f *memFileInfo) Mode() os.FileMode {
	if f.isDir {
		return os.ModeDir | 0755
	}
	return 0755
}

func (f *memFileInfo) ModTime() time.Time { return f.modTime }

func (f *memFileInfo) IsDir() bool { return f.isDir }

func (f *memFileInfo) Sys() interface{} { return nil }
