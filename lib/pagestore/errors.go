// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import "errors"

var (
	// ErrOutOfSpace is returned when a layout cannot be built within
	// the available capacity, or when an allocation cannot be served
	// even after growing the file to its maximum capacity.
	ErrOutOfSpace = errors.New("out of space")

	// ErrCorrupted is returned when on-disk metadata fails validation:
	// bad magic, checksum mismatch, or fields that describe an
	// impossible layout.
	ErrCorrupted = errors.New("page store metadata corrupted")

	// ErrPageNotAllocated is returned when freeing or accessing a page
	// that is not currently allocated at the given order.
	ErrPageNotAllocated = errors.New("page not allocated")

	// ErrInvalidOrder is returned for a page order larger than any
	// region of the store can hold.
	ErrInvalidOrder = errors.New("invalid page order")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("page store closed")
)
