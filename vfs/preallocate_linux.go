// Copyright 2016 The etcd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package vfs

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func preallocExtend(fd uintptr, offset, length int64) error {
	err := unix.Fallocate(int(fd), 0 /* mode */, offset, length)
	if err != nil {
		var errno unix.Errno
		// Filesystems without fallocate support still get the file extended so
		// that later writes inside the range succeed.
		if errors.As(err, &errno) && (errno == unix.ENOTSUP || errno == unix.EOPNOTSUPP || errno == unix.EINTR) {
			return unix.Ftruncate(int(fd), offset+length)
		}
	}
	return err
}
