// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// headerMagic identifies a page store file.
var headerMagic = [8]byte{'p', 'a', 'g', 'e', 's', 't', 'o', 'r'}

// formatVersion is bumped on any incompatible change to the on-disk
// format.
const formatVersion = 1

// Database header layout (all integers little-endian):
//
//	[0:8]     magic
//	[8:12]    format version
//	[12:16]   page size
//	[16:20]   region page capacity
//	[20:24]   region header pages
//	[24:28]   full region count
//	[28:32]   trailing region pages (0 = no trailing region)
//	[32:40]   maximum file capacity
//	[40:48]   region tracker length
//	[48:52]   superheader pages
//	[52:64]   zero
//	[64:96]   BLAKE3 of the region tracker bytes
//	[96:480]  zero
//	[480:512] BLAKE3 of bytes [0:480]
const (
	headerChecksumOffset = DBHeaderSize - 32
	trackerChecksumStart = 64
	trackerChecksumEnd   = 96
)

// header is the decoded database header.
type header struct {
	pageSize           uint32
	regionPageCapacity uint32
	regionHeaderPages  uint32
	numFullRegions     uint32
	trailingPages      uint32
	maxCapacity        uint64
	trackerLen         uint64
	superheaderPages   uint32
	trackerChecksum    [32]byte
}

func newHeader(layout DatabaseLayout, regionPageCapacity uint32, maxCapacity uint64) header {
	trackerStart, trackerEnd := layout.RegionTrackerRange()
	var trailingPages uint32
	if trailing, ok := layout.TrailingRegionLayout(); ok {
		trailingPages = trailing.NumPages()
	}
	return header{
		pageSize:           layout.PageSize(),
		regionPageCapacity: regionPageCapacity,
		regionHeaderPages:  layout.FullRegionLayout().HeaderPages(),
		numFullRegions:     layout.NumFullRegions(),
		trailingPages:      trailingPages,
		maxCapacity:        maxCapacity,
		trackerLen:         trackerEnd - trackerStart,
		superheaderPages:   layout.SuperheaderPages(),
	}
}

// encode writes the header into dst[:DBHeaderSize].
func (h header) encode(dst []byte) {
	dst = dst[:DBHeaderSize]
	clear(dst)
	copy(dst[0:8], headerMagic[:])
	binary.LittleEndian.PutUint32(dst[8:12], formatVersion)
	binary.LittleEndian.PutUint32(dst[12:16], h.pageSize)
	binary.LittleEndian.PutUint32(dst[16:20], h.regionPageCapacity)
	binary.LittleEndian.PutUint32(dst[20:24], h.regionHeaderPages)
	binary.LittleEndian.PutUint32(dst[24:28], h.numFullRegions)
	binary.LittleEndian.PutUint32(dst[28:32], h.trailingPages)
	binary.LittleEndian.PutUint64(dst[32:40], h.maxCapacity)
	binary.LittleEndian.PutUint64(dst[40:48], h.trackerLen)
	binary.LittleEndian.PutUint32(dst[48:52], h.superheaderPages)
	copy(dst[trackerChecksumStart:trackerChecksumEnd], h.trackerChecksum[:])
	checksum := blake3.Sum256(dst[:headerChecksumOffset])
	copy(dst[headerChecksumOffset:], checksum[:])
}

// decodeHeader parses and validates a database header. It checks the
// magic, version, and checksum, and that the fields describe a
// consistent layout; it does not check the region tracker checksum.
func decodeHeader(src []byte) (header, error) {
	if len(src) < DBHeaderSize {
		return header{}, fmt.Errorf("file is %d bytes, shorter than the database header: %w", len(src), ErrCorrupted)
	}
	src = src[:DBHeaderSize]
	if [8]byte(src[0:8]) != headerMagic {
		return header{}, fmt.Errorf("bad magic %q: %w", src[0:8], ErrCorrupted)
	}
	if version := binary.LittleEndian.Uint32(src[8:12]); version != formatVersion {
		return header{}, fmt.Errorf("unsupported format version %d (want %d)", version, formatVersion)
	}
	if [32]byte(src[headerChecksumOffset:]) != blake3.Sum256(src[:headerChecksumOffset]) {
		return header{}, fmt.Errorf("database header checksum mismatch: %w", ErrCorrupted)
	}

	h := header{
		pageSize:           binary.LittleEndian.Uint32(src[12:16]),
		regionPageCapacity: binary.LittleEndian.Uint32(src[16:20]),
		regionHeaderPages:  binary.LittleEndian.Uint32(src[20:24]),
		numFullRegions:     binary.LittleEndian.Uint32(src[24:28]),
		trailingPages:      binary.LittleEndian.Uint32(src[28:32]),
		maxCapacity:        binary.LittleEndian.Uint64(src[32:40]),
		trackerLen:         binary.LittleEndian.Uint64(src[40:48]),
		superheaderPages:   binary.LittleEndian.Uint32(src[48:52]),
		trackerChecksum:    [32]byte(src[trackerChecksumStart:trackerChecksumEnd]),
	}
	if err := validateGeometry(h.regionPageCapacity, h.pageSize); err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if h.regionHeaderPages != regionHeaderPages(h.regionPageCapacity, h.pageSize) {
		return header{}, fmt.Errorf("region header pages %d do not match capacity %d: %w",
			h.regionHeaderPages, h.regionPageCapacity, ErrCorrupted)
	}
	if h.numFullRegions == 0 && h.trailingPages == 0 {
		return header{}, fmt.Errorf("header describes no regions: %w", ErrCorrupted)
	}
	if h.trailingPages > h.regionPageCapacity {
		return header{}, fmt.Errorf("trailing region has %d pages, capacity is %d: %w",
			h.trailingPages, h.regionPageCapacity, ErrCorrupted)
	}
	if DBHeaderSize+h.trackerLen > uint64(h.superheaderPages)*uint64(h.pageSize) {
		return header{}, fmt.Errorf("region tracker of %d bytes overflows %d superheader pages: %w",
			h.trackerLen, h.superheaderPages, ErrCorrupted)
	}
	return h, nil
}

// layout rebuilds the database layout the header describes.
func (h header) layout() DatabaseLayout {
	full := FullRegionLayout(h.regionPageCapacity, h.pageSize)
	var trailing RegionLayout
	if h.trailingPages > 0 {
		trailing = NewRegionLayout(h.trailingPages, h.regionHeaderPages, h.pageSize)
	}
	return NewDatabaseLayout(h.superheaderPages, h.trackerLen, h.numFullRegions, full, trailing)
}
