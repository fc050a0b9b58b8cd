// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Flush forces all written data, including the drive's own cache, to
// stable storage. msync on macOS does not flush the drive cache, so
// this uses F_FULLFSYNC instead.
func (f *File) Flush() error {
	if f.data == nil {
		return os.ErrClosed
	}
	if _, err := unix.FcntlInt(f.file.Fd(), unix.F_FULLFSYNC, 0); err != nil {
		return fmt.Errorf("F_FULLFSYNC %s: %w", f.file.Name(), err)
	}
	return nil
}

// EventualFlush issues a write barrier: writes before it reach storage
// before writes after it, but nothing is forced to stable storage now.
//
// TODO: F_BARRIERFSYNC is documented for write(2), not for stores into
// a shared mapping. Measure whether WriteAt should use pwrite on macOS
// so the barrier applies to page writes.
func (f *File) EventualFlush() error {
	if f.data == nil {
		return os.ErrClosed
	}
	if _, err := unix.FcntlInt(f.file.Fd(), unix.F_BARRIERFSYNC, 0); err != nil {
		return fmt.Errorf("F_BARRIERFSYNC %s: %w", f.file.Name(), err)
	}
	return nil
}
