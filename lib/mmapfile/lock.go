// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package mmapfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyOpen is returned when another handle holds the exclusive
// lock on the file.
var ErrAlreadyOpen = errors.New("file is already open by another handle")

// FileLock is an exclusive advisory lock (flock) held on an open file.
// flock locks belong to the open file description, so two independent
// os.OpenFile calls on the same path conflict even within one process.
type FileLock struct {
	fd int
}

// LockFile takes a non-blocking exclusive lock on file. Contention is
// reported as [ErrAlreadyOpen]; any other failure wraps the system
// error.
func LockFile(file *os.File) (*FileLock, error) {
	fd := int(file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("locking %s: %w", file.Name(), ErrAlreadyOpen)
		}
		return nil, fmt.Errorf("locking %s: %w", file.Name(), err)
	}
	return &FileLock{fd: fd}, nil
}

// Unlock releases the lock. The lock is also released by the kernel
// when the file descriptor is closed.
func (l *FileLock) Unlock() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Flock(l.fd, unix.LOCK_UN)
	l.fd = -1
	if err != nil {
		return fmt.Errorf("unlocking file: %w", err)
	}
	return nil
}
