// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/zeebo/blake3"
)

// allocatorHeaderSize is the fixed prefix of a serialized allocator:
//
//	[0]      max order
//	[1:4]    zero
//	[4:8]    page capacity (uint32 LE)
//	[8:12]   usable page count (uint32 LE)
//	[12:16]  zero
//	[16:48]  BLAKE3 of everything after the header
//
// followed by, for each order from 0 to max order, the free bitmap and
// then the allocated bitmap.
const allocatorHeaderSize = 48

// allocatorMaxOrder returns the largest block order a region of the
// given capacity can hold.
func allocatorMaxOrder(capacity uint32) uint8 {
	if capacity == 0 {
		return 0
	}
	return uint8(min(bits.Len32(capacity)-1, MaxMaxPageOrder))
}

// BuddyRequiredSpace returns the serialized size of the allocator
// state for a region of capacity pages. It depends only on capacity,
// never on how many of those pages are currently usable, so every
// region of a store has the same header size.
func BuddyRequiredSpace(capacity uint32) uint64 {
	space := uint64(allocatorHeaderSize)
	maxOrder := allocatorMaxOrder(capacity)
	for order := uint8(0); order <= maxOrder; order++ {
		space += 2 * 8 * uint64(bitmapWords(capacity>>order))
	}
	return space
}

// BuddyAllocator tracks free and allocated pages within one region.
// A block of order k spans 1<<k pages and starts at a page index that
// is a multiple of 1<<k. Block indexes below are per order: block i
// of order k covers pages [i<<k, (i+1)<<k).
//
// BuddyAllocator is not safe for concurrent use.
type BuddyAllocator struct {
	capacity  uint32
	numPages  uint32
	maxOrder  uint8
	free      []bitmap
	allocated []bitmap
}

// NewBuddyAllocator returns an allocator for a region that can hold
// capacity pages, of which the first numPages are usable and free.
func NewBuddyAllocator(numPages, capacity uint32) (*BuddyAllocator, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("allocator capacity must be positive")
	}
	if numPages > capacity {
		return nil, fmt.Errorf("allocator page count %d exceeds capacity %d", numPages, capacity)
	}
	allocator := newEmptyAllocator(capacity)
	allocator.numPages = numPages
	allocator.addFreeRange(0, numPages)
	return allocator, nil
}

func newEmptyAllocator(capacity uint32) *BuddyAllocator {
	maxOrder := allocatorMaxOrder(capacity)
	allocator := &BuddyAllocator{
		capacity:  capacity,
		maxOrder:  maxOrder,
		free:      make([]bitmap, maxOrder+1),
		allocated: make([]bitmap, maxOrder+1),
	}
	for order := uint8(0); order <= maxOrder; order++ {
		allocator.free[order] = newBitmap(capacity >> order)
		allocator.allocated[order] = newBitmap(capacity >> order)
	}
	return allocator
}

// Capacity returns the page capacity of the region.
func (a *BuddyAllocator) Capacity() uint32 { return a.capacity }

// NumPages returns the number of usable pages.
func (a *BuddyAllocator) NumPages() uint32 { return a.numPages }

// MaxOrder returns the largest order this allocator can serve.
func (a *BuddyAllocator) MaxOrder() uint8 { return a.maxOrder }

// Alloc allocates a block of the given order and returns its block
// index. It reports false when no block of that order is free.
func (a *BuddyAllocator) Alloc(order uint8) (uint32, bool) {
	if order > a.maxOrder {
		return 0, false
	}
	for candidate := order; candidate <= a.maxOrder; candidate++ {
		index, found := a.free[candidate].first()
		if !found {
			continue
		}
		a.free[candidate].clear(index)
		// Split down to the requested order, freeing each upper half.
		for candidate > order {
			candidate--
			index *= 2
			a.free[candidate].set(index + 1)
		}
		a.allocated[order].set(index)
		return index, true
	}
	return 0, false
}

// IsAllocated reports whether block index of the given order is
// currently allocated.
func (a *BuddyAllocator) IsAllocated(index uint32, order uint8) bool {
	if order > a.maxOrder || !a.inBounds(index, order) {
		return false
	}
	return a.allocated[order].get(index)
}

// Free releases block index of the given order, merging it with its
// buddy as far up as possible.
func (a *BuddyAllocator) Free(index uint32, order uint8) error {
	if !a.IsAllocated(index, order) {
		return fmt.Errorf("block %d of order %d: %w", index, order, ErrPageNotAllocated)
	}
	a.allocated[order].clear(index)
	a.insertFree(index, order)
	return nil
}

// Resize grows the usable page count to newNumPages. The new pages
// are free. Shrinking is not supported.
func (a *BuddyAllocator) Resize(newNumPages uint32) error {
	if newNumPages > a.capacity {
		return fmt.Errorf("allocator page count %d exceeds capacity %d", newNumPages, a.capacity)
	}
	if newNumPages < a.numPages {
		return fmt.Errorf("shrinking allocator from %d to %d pages is not supported", a.numPages, newNumPages)
	}
	oldNumPages := a.numPages
	a.numPages = newNumPages
	a.addFreeRange(oldNumPages, newNumPages)
	return nil
}

// FreePages returns the number of free pages across all orders.
func (a *BuddyAllocator) FreePages() uint64 {
	var total uint64
	for order := uint8(0); order <= a.maxOrder; order++ {
		total += a.free[order].count() << order
	}
	return total
}

// HighestFreeOrder returns the order of the largest free block.
func (a *BuddyAllocator) HighestFreeOrder() (uint8, bool) {
	for order := int(a.maxOrder); order >= 0; order-- {
		if a.free[order].any() {
			return uint8(order), true
		}
	}
	return 0, false
}

func (a *BuddyAllocator) inBounds(index uint32, order uint8) bool {
	return (uint64(index)+1)<<order <= uint64(a.numPages)
}

// insertFree marks a block free, coalescing with free buddies.
func (a *BuddyAllocator) insertFree(index uint32, order uint8) {
	for order < a.maxOrder {
		buddy := index ^ 1
		if !a.inBounds(buddy, order) || !a.free[order].get(buddy) {
			break
		}
		a.free[order].clear(buddy)
		index >>= 1
		order++
	}
	a.free[order].set(index)
}

// addFreeRange frees pages [start, end) using the largest aligned
// blocks that fit. a.numPages must already cover end.
func (a *BuddyAllocator) addFreeRange(start, end uint32) {
	page := start
	for page < end {
		order := a.maxOrder
		for order > 0 && (page&(1<<order-1) != 0 || uint64(page)+1<<order > uint64(end)) {
			order--
		}
		a.insertFree(page>>order, order)
		page += 1 << order
	}
}

// MarshalTo serializes the allocator into dst, which must be at least
// BuddyRequiredSpace(Capacity()) bytes long.
func (a *BuddyAllocator) MarshalTo(dst []byte) error {
	required := BuddyRequiredSpace(a.capacity)
	if uint64(len(dst)) < required {
		return fmt.Errorf("allocator state needs %d bytes, buffer has %d", required, len(dst))
	}
	dst = dst[:required]
	clear(dst[:allocatorHeaderSize])
	dst[0] = a.maxOrder
	binary.LittleEndian.PutUint32(dst[4:8], a.capacity)
	binary.LittleEndian.PutUint32(dst[8:12], a.numPages)

	rest := dst[allocatorHeaderSize:]
	for order := uint8(0); order <= a.maxOrder; order++ {
		rest = a.free[order].encode(rest)
		rest = a.allocated[order].encode(rest)
	}
	checksum := blake3.Sum256(dst[allocatorHeaderSize:])
	copy(dst[16:48], checksum[:])
	return nil
}

// UnmarshalBuddyAllocator restores an allocator written by MarshalTo.
func UnmarshalBuddyAllocator(src []byte) (*BuddyAllocator, error) {
	if len(src) < allocatorHeaderSize {
		return nil, fmt.Errorf("allocator state is %d bytes, shorter than its header: %w", len(src), ErrCorrupted)
	}
	capacity := binary.LittleEndian.Uint32(src[4:8])
	numPages := binary.LittleEndian.Uint32(src[8:12])
	if capacity == 0 || numPages > capacity {
		return nil, fmt.Errorf("allocator state has %d pages for capacity %d: %w", numPages, capacity, ErrCorrupted)
	}
	if src[0] != allocatorMaxOrder(capacity) {
		return nil, fmt.Errorf("allocator state max order %d, want %d for capacity %d: %w",
			src[0], allocatorMaxOrder(capacity), capacity, ErrCorrupted)
	}
	required := BuddyRequiredSpace(capacity)
	if uint64(len(src)) < required {
		return nil, fmt.Errorf("allocator state is %d bytes, need %d: %w", len(src), required, ErrCorrupted)
	}
	src = src[:required]
	checksum := blake3.Sum256(src[allocatorHeaderSize:])
	if [32]byte(src[16:48]) != checksum {
		return nil, fmt.Errorf("allocator state checksum mismatch: %w", ErrCorrupted)
	}

	allocator := newEmptyAllocator(capacity)
	allocator.numPages = numPages
	rest := src[allocatorHeaderSize:]
	for order := uint8(0); order <= allocator.maxOrder; order++ {
		rest = allocator.free[order].decode(rest)
		rest = allocator.allocated[order].decode(rest)
	}
	return allocator, nil
}
