// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"fmt"
	"math"
)

const (
	// DBHeaderSize is the size of the fixed database header at the
	// start of the file. The region tracker follows it.
	DBHeaderSize = 512

	// MaxMaxPageOrder is the largest page order any store supports:
	// a block of order k spans 1<<k pages.
	MaxMaxPageOrder = 20

	// MinUsablePages is the smallest number of data pages a region
	// (and therefore a database) may have.
	MinUsablePages = 10
)

func roundUpToMultiple(value, multiple uint64) uint64 {
	if value%multiple == 0 {
		return value
	}
	return value + multiple - value%multiple
}

// RegionLayout describes one region: header pages holding the
// allocator state, followed by data pages.
type RegionLayout struct {
	numPages    uint32
	headerPages uint32
	pageSize    uint32
}

// NewRegionLayout returns a RegionLayout with the given fields.
func NewRegionLayout(numPages, headerPages, pageSize uint32) RegionLayout {
	return RegionLayout{numPages: numPages, headerPages: headerPages, pageSize: pageSize}
}

// regionHeaderPages returns the number of pages needed for the
// allocator state of a region of pageCapacity pages.
func regionHeaderPages(pageCapacity, pageSize uint32) uint32 {
	headerSize := BuddyRequiredSpace(pageCapacity)
	return uint32(roundUpToMultiple(headerSize, uint64(pageSize)) / uint64(pageSize))
}

// CalculateRegionLayout sizes a region that fits in availableSpace
// bytes and offers up to desiredUsableBytes of data pages. It reports
// false when fewer than MinUsablePages pages would result.
func CalculateRegionLayout(availableSpace, desiredUsableBytes uint64, pageCapacity, pageSize uint32) (RegionLayout, bool) {
	headerPages := regionHeaderPages(pageCapacity, pageSize)
	page := uint64(pageSize)
	headerBytes := uint64(headerPages) * page
	if desiredUsableBytes/page < MinUsablePages {
		return RegionLayout{}, false
	}
	if availableSpace < headerBytes+MinUsablePages*page {
		return RegionLayout{}, false
	}
	usedSpace := min(desiredUsableBytes+headerBytes, availableSpace)
	numPages := min((usedSpace-headerBytes)/page, uint64(pageCapacity))
	if numPages < MinUsablePages {
		return RegionLayout{}, false
	}
	return RegionLayout{
		numPages:    uint32(numPages),
		headerPages: headerPages,
		pageSize:    pageSize,
	}, true
}

// FullRegionLayout returns the layout of a region holding exactly
// pageCapacity pages. pageCapacity must be at least MinUsablePages.
func FullRegionLayout(pageCapacity, pageSize uint32) RegionLayout {
	return RegionLayout{
		numPages:    pageCapacity,
		headerPages: regionHeaderPages(pageCapacity, pageSize),
		pageSize:    pageSize,
	}
}

// NumPages returns the number of data pages.
func (r RegionLayout) NumPages() uint32 { return r.numPages }

// HeaderPages returns the number of allocator header pages.
func (r RegionLayout) HeaderPages() uint32 { return r.headerPages }

// PageSize returns the page size in bytes.
func (r RegionLayout) PageSize() uint32 { return r.pageSize }

// HeaderBytes returns the size of the allocator header in bytes.
func (r RegionLayout) HeaderBytes() uint64 {
	return uint64(r.headerPages) * uint64(r.pageSize)
}

// UsableBytes returns the size of the data section in bytes.
func (r RegionLayout) UsableBytes() uint64 {
	return uint64(r.numPages) * uint64(r.pageSize)
}

// Len returns the total size of the region in bytes.
func (r RegionLayout) Len() uint64 {
	return r.HeaderBytes() + r.UsableBytes()
}

// DataSection returns the [start, end) byte offsets of the data pages,
// relative to the start of the region.
func (r RegionLayout) DataSection() (start, end uint64) {
	return r.HeaderBytes(), r.HeaderBytes() + r.UsableBytes()
}

// DatabaseLayout describes a whole file: a superheader (database
// header plus region tracker, padded to whole pages) followed by zero
// or more full regions and an optional trailing partial region. All
// regions have the same header size.
type DatabaseLayout struct {
	superheaderPages   uint32
	regionTrackerStart uint64
	regionTrackerEnd   uint64
	fullRegion         RegionLayout
	numFullRegions     uint32
	trailingRegion     RegionLayout
	hasTrailingRegion  bool
}

// NewDatabaseLayout assembles a layout from stored fields. A trailing
// region with zero pages means there is none.
func NewDatabaseLayout(superheaderPages uint32, regionTrackerLen uint64, numFullRegions uint32,
	fullRegion RegionLayout, trailingRegion RegionLayout) DatabaseLayout {
	return DatabaseLayout{
		superheaderPages:   superheaderPages,
		regionTrackerStart: DBHeaderSize,
		regionTrackerEnd:   DBHeaderSize + regionTrackerLen,
		fullRegion:         fullRegion,
		numFullRegions:     numFullRegions,
		trailingRegion:     trailingRegion,
		hasTrailingRegion:  trailingRegion.numPages > 0,
	}
}

// CalculateDatabaseLayout lays out a file of at most dbCapacity bytes
// offering desiredUsableBytes of data pages (clamped to dbCapacity).
// The region tracker is sized for as many regions as dbCapacity could
// ever hold, so growing the layout later with the same capacity never
// moves the superheader or existing regions.
func CalculateDatabaseLayout(dbCapacity, desiredUsableBytes uint64, pageCapacity, pageSize uint32) (DatabaseLayout, error) {
	if err := validateGeometry(pageCapacity, pageSize); err != nil {
		return DatabaseLayout{}, err
	}
	desiredUsableBytes = min(desiredUsableBytes, dbCapacity)
	page := uint64(pageSize)
	fullRegion := FullRegionLayout(pageCapacity, pageSize)

	minHeaderSize := DBHeaderSize + RegionTrackerRequiredBytes(1, MaxMaxPageOrder+1)
	if dbCapacity <= minHeaderSize {
		return DatabaseLayout{}, fmt.Errorf("capacity %d cannot hold the database header: %w", dbCapacity, ErrOutOfSpace)
	}
	maxRegions := (dbCapacity - minHeaderSize + fullRegion.Len() - 1) / fullRegion.Len()
	if maxRegions > math.MaxUint32 {
		return DatabaseLayout{}, fmt.Errorf("capacity %d needs %d regions, more than a layout can address", dbCapacity, maxRegions)
	}
	dbHeaderBytes := DBHeaderSize + RegionTrackerRequiredBytes(uint32(maxRegions), MaxMaxPageOrder+1)
	superheaderBytes := roundUpToMultiple(dbHeaderBytes, page)
	if dbCapacity < superheaderBytes+MinUsablePages*page {
		return DatabaseLayout{}, fmt.Errorf("capacity %d is below the minimum of %d bytes: %w",
			dbCapacity, superheaderBytes+MinUsablePages*page, ErrOutOfSpace)
	}

	layout := DatabaseLayout{
		superheaderPages:   uint32(superheaderBytes / page),
		regionTrackerStart: DBHeaderSize,
		regionTrackerEnd:   dbHeaderBytes,
		fullRegion:         fullRegion,
	}
	regionSpace := dbCapacity - superheaderBytes

	if desiredUsableBytes <= fullRegion.UsableBytes() || regionSpace <= fullRegion.Len() {
		region, ok := CalculateRegionLayout(regionSpace, desiredUsableBytes, pageCapacity, pageSize)
		if !ok {
			return DatabaseLayout{}, fmt.Errorf("no region of at least %d pages fits %d usable bytes in capacity %d: %w",
				MinUsablePages, desiredUsableBytes, dbCapacity, ErrOutOfSpace)
		}
		layout.trailingRegion = region
		layout.hasTrailingRegion = true
		return layout, nil
	}

	maxFullRegions := regionSpace / fullRegion.Len()
	desiredFullRegions := desiredUsableBytes / fullRegion.UsableBytes()
	numFullRegions := min(maxFullRegions, desiredFullRegions)
	remainingSpace := regionSpace - numFullRegions*fullRegion.Len()
	remainingDesired := desiredUsableBytes - numFullRegions*fullRegion.UsableBytes()

	layout.numFullRegions = uint32(numFullRegions)
	if trailing, ok := CalculateRegionLayout(remainingSpace, remainingDesired, pageCapacity, pageSize); ok {
		if trailing.headerPages != fullRegion.headerPages {
			panic(fmt.Sprintf("pagestore: trailing region has %d header pages, full regions have %d",
				trailing.headerPages, fullRegion.headerPages))
		}
		layout.trailingRegion = trailing
		layout.hasTrailingRegion = true
	}
	return layout, nil
}

// validateGeometry checks page size and region capacity.
func validateGeometry(pageCapacity, pageSize uint32) error {
	if pageSize < DBHeaderSize || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("page size %d must be a power of two of at least %d", pageSize, DBHeaderSize)
	}
	if pageCapacity < MinUsablePages {
		return fmt.Errorf("region page capacity %d is below the minimum of %d", pageCapacity, MinUsablePages)
	}
	return nil
}

// FullRegionLayout returns the layout shared by all full regions.
func (d DatabaseLayout) FullRegionLayout() RegionLayout { return d.fullRegion }

// TrailingRegionLayout returns the trailing partial region, if any.
func (d DatabaseLayout) TrailingRegionLayout() (RegionLayout, bool) {
	return d.trailingRegion, d.hasTrailingRegion
}

// NumFullRegions returns the number of full regions.
func (d DatabaseLayout) NumFullRegions() uint32 { return d.numFullRegions }

// NumRegions returns the number of regions including the trailing one.
func (d DatabaseLayout) NumRegions() uint32 {
	if d.hasTrailingRegion {
		return d.numFullRegions + 1
	}
	return d.numFullRegions
}

// PageSize returns the page size in bytes.
func (d DatabaseLayout) PageSize() uint32 { return d.fullRegion.pageSize }

// Len returns the file length the layout occupies.
func (d DatabaseLayout) Len() uint64 {
	last := d.NumRegions() - 1
	return d.RegionBaseAddress(last) + d.RegionLayout(last).Len()
}

// UsableBytes returns the total size of all data sections.
func (d DatabaseLayout) UsableBytes() uint64 {
	var trailing uint64
	if d.hasTrailingRegion {
		trailing = d.trailingRegion.UsableBytes()
	}
	return uint64(d.numFullRegions)*d.fullRegion.UsableBytes() + trailing
}

// SuperheaderPages returns the number of pages before region 0.
func (d DatabaseLayout) SuperheaderPages() uint32 { return d.superheaderPages }

// SuperheaderBytes returns the byte size of the superheader.
func (d DatabaseLayout) SuperheaderBytes() uint64 {
	return uint64(d.superheaderPages) * uint64(d.fullRegion.pageSize)
}

// RegionTrackerRange returns the [start, end) byte range of the
// serialized region tracker.
func (d DatabaseLayout) RegionTrackerRange() (start, end uint64) {
	return d.regionTrackerStart, d.regionTrackerEnd
}

// MaxRegions returns how many regions the region tracker has room for.
func (d DatabaseLayout) MaxRegions() uint32 {
	words := (d.regionTrackerEnd - d.regionTrackerStart - regionTrackerHeaderSize) / 8 / (MaxMaxPageOrder + 1)
	return uint32(min(words*64, math.MaxUint32))
}

// RegionBaseAddress returns the byte offset of region's first header
// page. It panics if region is out of range.
func (d DatabaseLayout) RegionBaseAddress(region uint32) uint64 {
	if region >= d.NumRegions() {
		panic(fmt.Sprintf("pagestore: region %d out of range (%d regions)", region, d.NumRegions()))
	}
	return d.SuperheaderBytes() + uint64(region)*d.fullRegion.Len()
}

// RegionLayout returns the layout of region. It panics if region is
// out of range.
func (d DatabaseLayout) RegionLayout(region uint32) RegionLayout {
	if region >= d.NumRegions() {
		panic(fmt.Sprintf("pagestore: region %d out of range (%d regions)", region, d.NumRegions()))
	}
	if region == d.numFullRegions {
		return d.trailingRegion
	}
	return d.fullRegion
}
