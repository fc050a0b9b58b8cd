// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"encoding/binary"
	"fmt"
)

// regionTrackerHeaderSize is the prefix of a serialized tracker: order
// count and region capacity, both uint32 LE.
const regionTrackerHeaderSize = 8

// RegionTrackerRequiredBytes returns the serialized size of a tracker
// covering regions regions and orders orders.
func RegionTrackerRequiredBytes(regions uint32, orders int) uint64 {
	return regionTrackerHeaderSize + uint64(orders)*8*uint64(bitmapWords(regions))
}

// RegionTracker records, per order, which regions have a free block of
// at least that order. It lets an allocation go straight to a region
// that can serve it instead of probing every allocator.
type RegionTracker struct {
	regions uint32
	orders  []bitmap
}

// NewRegionTracker returns an empty tracker with room for regions
// regions and orders orders. No region is marked free.
func NewRegionTracker(regions uint32, orders int) *RegionTracker {
	tracker := &RegionTracker{
		regions: regions,
		orders:  make([]bitmap, orders),
	}
	for order := range tracker.orders {
		tracker.orders[order] = newBitmap(regions)
	}
	return tracker
}

// Capacity returns the number of regions the tracker can record.
func (t *RegionTracker) Capacity() uint32 { return t.regions }

// MarkFree records that region has a free block of the given order,
// and therefore of every smaller order.
func (t *RegionTracker) MarkFree(order uint8, region uint32) {
	for o := 0; o <= int(order) && o < len(t.orders); o++ {
		t.orders[o].set(region)
	}
}

// MarkFull records that region has no free block of the given order
// or any larger order.
func (t *RegionTracker) MarkFull(order uint8, region uint32) {
	for o := int(order); o < len(t.orders); o++ {
		t.orders[o].clear(region)
	}
}

// FindFree returns the lowest-numbered region marked as having a free
// block of the given order.
func (t *RegionTracker) FindFree(order uint8) (uint32, bool) {
	if int(order) >= len(t.orders) {
		return 0, false
	}
	return t.orders[order].first()
}

// update sets the tracker bits for region from its allocator.
func (t *RegionTracker) update(region uint32, allocator *BuddyAllocator) {
	highest, hasFree := allocator.HighestFreeOrder()
	if !hasFree {
		t.MarkFull(0, region)
		return
	}
	t.MarkFree(highest, region)
	t.MarkFull(highest+1, region)
}

// MarshalTo serializes the tracker into dst, which must be at least
// RegionTrackerRequiredBytes(Capacity(), orders) bytes.
func (t *RegionTracker) MarshalTo(dst []byte) error {
	required := RegionTrackerRequiredBytes(t.regions, len(t.orders))
	if uint64(len(dst)) < required {
		return fmt.Errorf("region tracker needs %d bytes, buffer has %d", required, len(dst))
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(t.orders)))
	binary.LittleEndian.PutUint32(dst[4:8], t.regions)
	rest := dst[regionTrackerHeaderSize:]
	for _, orderBitmap := range t.orders {
		rest = orderBitmap.encode(rest)
	}
	return nil
}

// UnmarshalRegionTracker restores a tracker written by MarshalTo.
func UnmarshalRegionTracker(src []byte) (*RegionTracker, error) {
	if len(src) < regionTrackerHeaderSize {
		return nil, fmt.Errorf("region tracker is %d bytes: %w", len(src), ErrCorrupted)
	}
	orders := binary.LittleEndian.Uint32(src[0:4])
	regions := binary.LittleEndian.Uint32(src[4:8])
	if orders == 0 || orders > MaxMaxPageOrder+1 {
		return nil, fmt.Errorf("region tracker has %d orders: %w", orders, ErrCorrupted)
	}
	required := RegionTrackerRequiredBytes(regions, int(orders))
	if uint64(len(src)) < required {
		return nil, fmt.Errorf("region tracker is %d bytes, need %d: %w", len(src), required, ErrCorrupted)
	}
	tracker := NewRegionTracker(regions, int(orders))
	rest := src[regionTrackerHeaderSize:]
	for _, orderBitmap := range tracker.orders {
		rest = orderBitmap.decode(rest)
	}
	return tracker, nil
}
