// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package mmapfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Options configures [Open].
type Options struct {
	// Capacity is the size of the memory mapping in bytes: the
	// largest length the file can be resized to. It must be positive
	// and fit in the platform int (on 32-bit targets the whole mapping
	// has to fit in the address space).
	Capacity int64

	// Create creates the file if it does not exist. [File.Created]
	// reports whether this Open made it.
	Create bool

	// Mode is the permission used when creating the file. Defaults
	// to 0o644.
	Mode os.FileMode
}

// File is a locked, memory-mapped file. See the package documentation
// for the mapping and durability model.
//
// ReadAt, Slice, and Len are safe to call concurrently with each
// other. Resize, Remap, WriteAt, and Close must be serialized by the
// caller.
type File struct {
	file     *os.File
	lock     *FileLock
	data     []byte
	capacity int64
	length   atomic.Int64
	created  bool
}

// Open locks and maps the file at path.
func Open(path string, options Options) (*File, error) {
	if err := checkCapacity(options.Capacity); err != nil {
		return nil, err
	}
	mode := options.Mode
	if mode == 0 {
		mode = 0o644
	}
	file, created, err := openOrCreate(path, options.Create, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	lock, err := LockFile(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		lock.Unlock()
		file.Close()
		return nil, fmt.Errorf("stating %s: %w", path, err)
	}

	data, err := mapFile(file, options.Capacity)
	if err != nil {
		lock.Unlock()
		file.Close()
		return nil, fmt.Errorf("memory-mapping %s: %w", path, err)
	}

	result := &File{
		file:     file,
		lock:     lock,
		data:     data,
		capacity: options.Capacity,
		created:  created,
	}
	result.length.Store(info.Size())
	return result, nil
}

// openOrCreate opens path read-write. With create set it first tries an
// exclusive create, so the returned flag is true only when this call
// made the file.
func openOrCreate(path string, create bool, mode os.FileMode) (*os.File, bool, error) {
	if create {
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
		if err == nil {
			return file, true, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, false, err
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR, mode)
	return file, false, err
}

func checkCapacity(capacity int64) error {
	if capacity <= 0 {
		return fmt.Errorf("mapping capacity must be positive, got %d", capacity)
	}
	if uint64(capacity) > uint64(math.MaxInt) {
		return fmt.Errorf("mapping capacity %d exceeds the address space of this platform (max %d)",
			capacity, math.MaxInt)
	}
	return nil
}

func mapFile(file *os.File, capacity int64) ([]byte, error) {
	return unix.Mmap(int(file.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.file.Name()
}

// Len returns the current file length in bytes.
func (f *File) Len() int64 {
	return f.length.Load()
}

// Created reports whether Open created the file.
func (f *File) Created() bool {
	return f.created
}

// Capacity returns the mapping size in bytes.
func (f *File) Capacity() int64 {
	return f.capacity
}

// Resize sets the file length. If newLength is smaller than the
// current length, the caller must ensure no slice into the truncated
// range is still in use.
func (f *File) Resize(newLength int64) error {
	if f.data == nil {
		return os.ErrClosed
	}
	if newLength < 0 || newLength > f.capacity {
		return fmt.Errorf("resize to %d bytes outside mapping capacity %d", newLength, f.capacity)
	}
	if err := f.file.Truncate(newLength); err != nil {
		return fmt.Errorf("resizing %s to %d bytes: %w", f.file.Name(), newLength, err)
	}
	f.length.Store(newLength)
	return nil
}

// Remap replaces the mapping with one of a different capacity. Every
// slice previously returned by Slice becomes invalid.
func (f *File) Remap(capacity int64) error {
	if f.data == nil {
		return os.ErrClosed
	}
	if err := checkCapacity(capacity); err != nil {
		return err
	}
	if capacity < f.length.Load() {
		return fmt.Errorf("remap capacity %d is smaller than file length %d", capacity, f.length.Load())
	}
	if err := unix.Munmap(f.data); err != nil {
		return fmt.Errorf("unmapping %s: %w", f.file.Name(), err)
	}
	f.data = nil
	data, err := mapFile(f.file, capacity)
	if err != nil {
		return fmt.Errorf("memory-mapping %s: %w", f.file.Name(), err)
	}
	f.data = data
	f.capacity = capacity
	return nil
}

// Slice returns the mapped bytes [offset, offset+length). The slice
// aliases the file: writes to it are writes to the file. It must not
// be used after Close or after a Resize that truncates its range.
func (f *File) Slice(offset, length int64) ([]byte, error) {
	if f.data == nil {
		return nil, os.ErrClosed
	}
	if offset < 0 || length < 0 || offset+length > f.mapped() {
		return nil, fmt.Errorf("range [%d, %d) outside mapped length %d",
			offset, offset+length, f.mapped())
	}
	return f.data[offset : offset+length : offset+length], nil
}

// mapped returns the number of bytes that are both in the file and in
// the mapping. A file opened with a capacity below its length exposes
// only the mapped prefix.
func (f *File) mapped() int64 {
	return min(f.length.Load(), int64(len(f.data)))
}

// ReadAt copies len(p) bytes starting at off out of the mapping.
func (f *File) ReadAt(p []byte, off int64) (readCount int, err error) {
	if f.data == nil {
		return 0, os.ErrClosed
	}
	length := f.mapped()
	if off < 0 || off >= length {
		return 0, io.EOF
	}

	// An I/O error on the backing storage surfaces as SIGBUS on access.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading %s at offset %d: %v", f.file.Name(), off, r)
		}
	}()

	readCount = copy(p, f.data[off:length])
	if readCount < len(p) {
		return readCount, io.EOF
	}
	return readCount, nil
}

// WriteAt copies p into the mapping at off. The write must fit inside
// the current file length; Resize first to extend it.
func (f *File) WriteAt(p []byte, off int64) (written int, err error) {
	if f.data == nil {
		return 0, os.ErrClosed
	}
	length := f.mapped()
	if off < 0 || off+int64(len(p)) > length {
		return 0, fmt.Errorf("write at offset %d with length %d exceeds mapped length %d",
			off, len(p), length)
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault writing %s at offset %d: %v", f.file.Name(), off, r)
		}
	}()

	written = copy(f.data[off:], p)
	return written, nil
}

// Close unmaps the file, releases the lock, and closes the descriptor.
// Close does not flush; call Flush first if the contents must be
// durable.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	var errs []error
	if f.data != nil {
		if err := unix.Munmap(f.data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping %s: %w", f.file.Name(), err))
		}
		f.data = nil
	}
	if err := f.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s: %w", f.file.Name(), err))
	}
	f.file = nil
	return errors.Join(errs...)
}
