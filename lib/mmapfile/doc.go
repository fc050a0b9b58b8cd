// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mmapfile provides an exclusively locked, memory-mapped file
// used as the backing store for a page store.
//
// The mapping is created once at a fixed capacity (the largest size the
// file may ever grow to) with PROT_READ|PROT_WRITE and MAP_SHARED.
// Growing or shrinking the file only changes its length with
// ftruncate; the address range stays the same, so byte slices handed
// out by [File.Slice] remain valid across [File.Resize] as long as they
// do not extend past the new length. Touching mapped bytes past the end
// of the file raises SIGBUS; [File.ReadAt] and [File.WriteAt] convert
// such faults into errors.
//
// Durability follows the platform:
//
//   - Linux: [File.Flush] and [File.EventualFlush] both call
//     msync(MS_SYNC) over the current file length.
//   - macOS: [File.Flush] issues fcntl(F_FULLFSYNC), which forces the
//     drive cache to stable storage. [File.EventualFlush] issues
//     fcntl(F_BARRIERFSYNC), which only orders writes.
//
// A [File] holds a non-blocking exclusive flock for its whole lifetime.
// A second [Open] of the same path, from this process or another,
// fails with [ErrAlreadyOpen].
package mmapfile
