// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"errors"
	"testing"
)

func TestRegionTrackerRequiredBytes(t *testing.T) {
	if got := RegionTrackerRequiredBytes(1, 21); got != 8+21*8 {
		t.Errorf("RegionTrackerRequiredBytes(1, 21) = %d, want %d", got, 8+21*8)
	}
	if got := RegionTrackerRequiredBytes(65, 21); got != 8+21*16 {
		t.Errorf("RegionTrackerRequiredBytes(65, 21) = %d, want %d", got, 8+21*16)
	}
}

func TestRegionTrackerMarkAndFind(t *testing.T) {
	tracker := NewRegionTracker(128, MaxMaxPageOrder+1)

	if _, ok := tracker.FindFree(0); ok {
		t.Fatal("empty tracker should find nothing")
	}

	tracker.MarkFree(4, 70)
	for order := uint8(0); order <= 4; order++ {
		region, ok := tracker.FindFree(order)
		if !ok || region != 70 {
			t.Errorf("FindFree(%d) = (%d, %v), want (70, true)", order, region, ok)
		}
	}
	if _, ok := tracker.FindFree(5); ok {
		t.Error("FindFree(5) should find nothing")
	}

	tracker.MarkFree(2, 3)
	if region, _ := tracker.FindFree(1); region != 3 {
		t.Errorf("FindFree(1) = %d, want lowest region 3", region)
	}
	if region, _ := tracker.FindFree(3); region != 70 {
		t.Errorf("FindFree(3) = %d, want 70", region)
	}

	tracker.MarkFull(2, 70)
	if region, _ := tracker.FindFree(1); region != 3 {
		t.Errorf("after MarkFull(2, 70): FindFree(1) = %d, want 3", region)
	}
	if _, ok := tracker.FindFree(2); !ok {
		t.Error("region 3 still has an order-2 block")
	}
	if _, ok := tracker.FindFree(3); ok {
		t.Error("no region has an order-3 block after MarkFull")
	}
	if _, ok := tracker.FindFree(MaxMaxPageOrder + 1); ok {
		t.Error("FindFree above the tracked orders should find nothing")
	}
}

func TestRegionTrackerFollowsAllocator(t *testing.T) {
	tracker := NewRegionTracker(4, MaxMaxPageOrder+1)
	allocator := newAllocator(t, 16, 16)
	tracker.update(2, allocator)

	if region, ok := tracker.FindFree(4); !ok || region != 2 {
		t.Fatalf("FindFree(4) = (%d, %v), want (2, true)", region, ok)
	}
	allocator.Alloc(0)
	tracker.update(2, allocator)
	if _, ok := tracker.FindFree(4); ok {
		t.Error("order-4 block was split; tracker should not report it")
	}
	if _, ok := tracker.FindFree(3); !ok {
		t.Error("an order-3 block is still free")
	}
}

func TestRegionTrackerSerialization(t *testing.T) {
	tracker := NewRegionTracker(100, MaxMaxPageOrder+1)
	tracker.MarkFree(7, 99)
	tracker.MarkFree(0, 1)

	buffer := make([]byte, RegionTrackerRequiredBytes(100, MaxMaxPageOrder+1))
	if err := tracker.MarshalTo(buffer); err != nil {
		t.Fatalf("MarshalTo: %v", err)
	}
	restored, err := UnmarshalRegionTracker(buffer)
	if err != nil {
		t.Fatalf("UnmarshalRegionTracker: %v", err)
	}
	if restored.Capacity() != 100 {
		t.Errorf("Capacity = %d, want 100", restored.Capacity())
	}
	if region, ok := restored.FindFree(7); !ok || region != 99 {
		t.Errorf("FindFree(7) = (%d, %v), want (99, true)", region, ok)
	}
	if region, _ := restored.FindFree(0); region != 1 {
		t.Errorf("FindFree(0) = %d, want 1", region)
	}

	if _, err := UnmarshalRegionTracker(buffer[:20]); !errors.Is(err, ErrCorrupted) {
		t.Errorf("truncated tracker error = %v, want ErrCorrupted", err)
	}
}
