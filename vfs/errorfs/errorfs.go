// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errorfs wraps a vfs.FS and injects errors into its operations. It is
// used by tests to exercise the allocation failure and I/O error paths of the
// page provider.
package errorfs

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/vfs"
)

// ErrInjected is an error artificially injected for testing fs error paths.
var ErrInjected = errors.New("injected error")

// Op describes a filesystem operation.
type Op struct {
	// Kind describes the particular kind of operation being performed.
	Kind OpKind
	// Path is the path of the file being operated on.
	Path string
	// Offset is the offset of an operation. It's set for OpFileReadAt and
	// OpFileWriteAt operations.
	Offset int64
}

// OpKind is an enum describing the type of operation.
type OpKind int

const (
	// OpCreate describes a create file operation.
	OpCreate OpKind = iota
	// OpOpen describes a file open operation.
	OpOpen
	// OpRemove describes a remove file operation.
	OpRemove
	// OpMkdirAll describes a make directory (including parents) operation.
	OpMkdirAll
	// OpStat describes a path-based stat operation.
	OpStat
	// OpFileClose describes a file close operation.
	OpFileClose
	// OpFileReadAt describes a file read-at operation.
	OpFileReadAt
	// OpFileWriteAt describes a file write-at operation.
	OpFileWriteAt
	// OpFileStat describes a file stat operation.
	OpFileStat
	// OpFileSync describes a file sync operation.
	OpFileSync
	// OpFileTruncate describes a file truncate operation.
	OpFileTruncate
	// OpFilePreallocate describes a file preallocate operation.
	OpFilePreallocate
)

var opKindStrings = [...]string{
	OpCreate:          "create",
	OpOpen:            "open",
	OpRemove:          "remove",
	OpMkdirAll:        "mkdir-all",
	OpStat:            "stat",
	OpFileClose:       "close",
	OpFileReadAt:      "read-at",
	OpFileWriteAt:     "write-at",
	OpFileStat:        "file-stat",
	OpFileSync:        "sync",
	OpFileTruncate:    "truncate",
	OpFilePreallocate: "preallocate",
}

func (o OpKind) String() string {
	if int(o) < len(opKindStrings) {
		return opKindStrings[o]
	}
	return fmt.Sprintf("OpKind(%d)", int(o))
}

// ReadOrWrite returns the operation's kind.
func (o OpKind) ReadOrWrite() OpReadWrite {
	switch o {
	case OpOpen, OpStat, OpFileClose, OpFileReadAt, OpFileStat:
		return OpIsRead
	default:
		return OpIsWrite
	}
}

// OpReadWrite is an enum describing whether an operation is a read or a write
// operation.
type OpReadWrite int

const (
	// OpIsRead describes read operations.
	OpIsRead OpReadWrite = iota
	// OpIsWrite describes write operations.
	OpIsWrite
)

// String implements fmt.Stringer.
func (kind OpReadWrite) String() string {
	switch kind {
	case OpIsRead:
		return "Reads"
	case OpIsWrite:
		return "Writes"
	default:
		panic(fmt.Sprintf("unrecognized OpReadWrite %d", kind))
	}
}

// Injector injects errors into FS operations.
type Injector interface {
	fmt.Stringer
	// MaybeError is invoked by an errorfs before an operation is executed. It
	// is passed the kind of operation and the path of the subject file or
	// directory.
	MaybeError(op Op) error
}

// InjectorFunc implements the Injector interface for a function with
// MaybeError's signature.
type InjectorFunc func(Op) error

// String implements fmt.Stringer.
func (f InjectorFunc) String() string { return "<opaque func>" }

// MaybeError implements Injector.
func (f InjectorFunc) MaybeError(op Op) error { return f(op) }

// Always returns an Injector that injects ErrInjected into every operation
// accepted by pred.
func Always(pred func(Op) bool) Injector {
	return InjectorFunc(func(op Op) error {
		if pred(op) {
			return ErrInjected
		}
		return nil
	})
}

// Reads matches all read operations.
func Reads(op Op) bool { return op.Kind.ReadOrWrite() == OpIsRead }

// Writes matches all write operations.
func Writes(op Op) bool { return op.Kind.ReadOrWrite() == OpIsWrite }

// OfKind returns a predicate matching operations of the given kinds.
func OfKind(kinds ...OpKind) func(Op) bool {
	return func(op Op) bool {
		for _, k := range kinds {
			if op.Kind == k {
				return true
			}
		}
		return false
	}
}

// OnIndex is a convenience function for constructing a InjectIndex
// that returns an error on the indexth operation accepted by pred.
func OnIndex(index int32, pred func(Op) bool) *InjectIndex {
	ii := &InjectIndex{pred: pred}
	ii.index.Store(index)
	return ii
}

// InjectIndex implements Injector, injecting an error at a specific index.
type InjectIndex struct {
	index atomic.Int32
	pred  func(Op) bool
}

// String implements fmt.Stringer.
func (ii *InjectIndex) String() string {
	return fmt.Sprintf("(OnIndex %d)", ii.index.Load())
}

// Index returns the index at which the error will be injected.
func (ii *InjectIndex) Index() int32 { return ii.index.Load() }

// SetIndex sets the index at which the error will be injected.
func (ii *InjectIndex) SetIndex(v int32) { ii.index.Store(v) }

// MaybeError implements the Injector interface.
func (ii *InjectIndex) MaybeError(op Op) error {
	if ii.pred != nil && !ii.pred(op) {
		return nil
	}
	if ii.index.Add(-1) == -1 {
		return errors.WithStack(ErrInjected)
	}
	return nil
}

// Toggle wraps an Injector. By default, Toggle injects nothing. When toggled on
// through its On method, it forwards MaybeError calls to the wrapped Injector.
type Toggle struct {
	Injector
	on atomic.Bool
}

// String implements fmt.Stringer.
func (t *Toggle) String() string {
	return fmt.Sprintf("(Toggle %t %s)", t.on.Load(), t.Injector.String())
}

// On enables error injection.
func (t *Toggle) On() { t.on.Store(true) }

// Off disables error injection.
func (t *Toggle) Off() { t.on.Store(false) }

// MaybeError implements Injector.
func (t *Toggle) MaybeError(op Op) error {
	if !t.on.Load() {
		return nil
	}
	return t.Injector.MaybeError(op)
}

// FS implements vfs.FS, injecting errors into operations.
type FS struct {
	fs  vfs.FS
	inj Injector
}

// Wrap wraps an existing vfs.FS implementation, returning a new vfs.FS
// implementation that shadows operations to the provided FS. It uses the
// provided Injector for deciding when to inject errors. If an error is
// injected, FS propagates the error instead of shadowing the operation.
func Wrap(fs vfs.FS, inj Injector) *FS {
	return &FS{fs: fs, inj: inj}
}

var _ vfs.FS = (*FS)(nil)

func (fs *FS) maybeError(kind OpKind, path string) error {
	return fs.inj.MaybeError(Op{Kind: kind, Path: path})
}

// Create implements FS.Create.
func (fs *FS) Create(name string) (vfs.File, error) {
	if err := fs.maybeError(OpCreate, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// Open implements FS.Open.
func (fs *FS) Open(name string) (vfs.File, error) {
	if err := fs.maybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// OpenReadWrite implements FS.OpenReadWrite.
func (fs *FS) OpenReadWrite(name string) (vfs.File, error) {
	if err := fs.maybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.OpenReadWrite(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// Remove implements FS.Remove.
func (fs *FS) Remove(name string) error {
	if err := fs.maybeError(OpRemove, name); err != nil {
		return err
	}
	return fs.fs.Remove(name)
}

// MkdirAll implements FS.MkdirAll.
func (fs *FS) MkdirAll(dir string, perm os.FileMode) error {
	if err := fs.maybeError(OpMkdirAll, dir); err != nil {
		return err
	}
	return fs.fs.MkdirAll(dir, perm)
}

// Stat implements FS.Stat.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	if err := fs.maybeError(OpStat, name); err != nil {
		return nil, err
	}
	return fs.fs.Stat(name)
}

// PathBase implements FS.PathBase.
func (fs *FS) PathBase(p string) string {
	return fs.fs.PathBase(p)
}

// PathJoin implements FS.PathJoin.
func (fs *FS) PathJoin(elem ...string) string {
	return fs.fs.PathJoin(elem...)
}

type errorFile struct {
	path string
	file vfs.File
	inj  Injector
}

func (f *errorFile) Close() error {
	// We don't inject errors during close as those calls should never fail in
	// practice.
	return f.file.Close()
}

func (f *errorFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.inj.MaybeError(Op{Kind: OpFileReadAt, Path: f.path, Offset: off}); err != nil {
		return 0, err
	}
	return f.file.ReadAt(p, off)
}

func (f *errorFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.inj.MaybeError(Op{Kind: OpFileWriteAt, Path: f.path, Offset: off}); err != nil {
		return 0, err
	}
	return f.file.WriteAt(p, off)
}

func (f *errorFile) Stat() (os.FileInfo, error) {
	if err := f.inj.MaybeError(Op{Kind: OpFileStat, Path: f.path}); err != nil {
		return nil, err
	}
	return f.file.Stat()
}

func (f *errorFile) Sync() error {
	if err := f.inj.MaybeError(Op{Kind: OpFileSync, Path: f.path}); err != nil {
		return err
	}
	return f.file.Sync()
}

func (f *errorFile) Truncate(size int64) error {
	if err := f.inj.MaybeError(Op{Kind: OpFileTruncate, Path: f.path}); err != nil {
		return err
	}
	return f.file.Truncate(size)
}

func (f *errorFile) Preallocate(offset, length int64) error {
	if err := f.inj.MaybeError(Op{Kind: OpFilePreallocate, Path: f.path, Offset: offset}); err != nil {
		return err
	}
	return f.file.Preallocate(offset, length)
}
