// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

func testFS(t *testing.T, fs FS, dir string) {
	require.NoError(t, fs.MkdirAll(fs.PathJoin(dir, "a", "b"), 0755))
	name := fs.PathJoin(dir, "a", "b", "f")
	require.Equal(t, "f", fs.PathBase(name))

	_, err := fs.Stat(name)
	require.True(t, oserror.IsNotExist(err), "%v", err)
	_, err = fs.OpenReadWrite(name)
	require.True(t, oserror.IsNotExist(err), "%v", err)

	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 3)
	require.NoError(t, err)
	require.NoError(t, f.Preallocate(0, 16))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f, err = fs.Open(name)
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, []byte("\x00\x00\x00hello"), buf)
	require.NoError(t, f.Close())

	f, err = fs.OpenReadWrite(name)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4))
	fi, err := f.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 4, fi.Size())
	_, err = f.ReadAt(buf, 2)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Remove(name))
	_, err = fs.Stat(name)
	require.True(t, oserror.IsNotExist(err), "%v", err)
}

func TestDefaultFS(t *testing.T) {
	testFS(t, Default, t.TempDir())
}

func TestMemFS(t *testing.T) {
	fs := NewMem()
	testFS(t, fs, "")
	require.Equal(t, 0, fs.OpenFiles())

	_, err := fs.Create("missing/dir/f")
	require.True(t, oserror.IsNotExist(err), "%v", err)
}

func TestMemFSResetToSyncedState(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	_, err = f.WriteAt([]byte("def"), 3)
	require.NoError(t, err)
	require.Equal(t, "/f 6\n", fs.String())

	fs.ResetToSyncedState()
	require.Equal(t, "/f 3\n", fs.String())
	require.NoError(t, f.Close())
}

func TestMemFSCrashClone(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("d", 0755))
	f, err := fs.Create("d/f")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	_, err = f.WriteAt([]byte("def"), 3)
	require.NoError(t, err)

	c := fs.CrashClone()
	require.Equal(t, "/d/f 3\n", c.String())
	require.Equal(t, "/d/f 6\n", fs.String())
	require.NoError(t, f.Close())
	require.Zero(t, c.OpenFiles())

	g, err := c.Create("d/g")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.Equal(t, "/d/f 6\n", fs.String())
}

func TestMemFSReadOnly(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Error(t, f.Close())

	f, err = fs.Open("f")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("x"), 0)
	require.Error(t, err)
	require.NoError(t, f.Close())
}
