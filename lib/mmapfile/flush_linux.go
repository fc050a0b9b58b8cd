// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Flush writes every dirty page of the mapped prefix of the file to
// stable storage and waits for completion.
func (f *File) Flush() error {
	if f.data == nil {
		return os.ErrClosed
	}
	length := f.mapped()
	if length == 0 {
		return nil
	}
	if err := unix.Msync(f.data[:length], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", f.file.Name(), err)
	}
	return nil
}

// EventualFlush is the same as Flush on Linux; there is no cheaper
// ordering-only primitive for mapped writes.
func (f *File) EventualFlush() error {
	return f.Flush()
}
