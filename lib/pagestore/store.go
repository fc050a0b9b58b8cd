// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pagestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/pagestore/lib/mmapfile"
)

// Defaults applied by Options for zero fields.
const (
	DefaultPageSize           = 4096
	DefaultRegionPageCapacity = 1 << 14
	DefaultInitialBytes       = 1 << 20
	DefaultMaxCapacity        = 1 << 30
)

// Options configures Create and Open.
type Options struct {
	// PageSize is the page size in bytes: a power of two of at least
	// DBHeaderSize. Ignored by Open, which reads it from the file.
	PageSize uint32

	// RegionPageCapacity is the number of pages in a full region.
	// Ignored by Open.
	RegionPageCapacity uint32

	// InitialBytes is the usable size the file starts with. Ignored
	// by Open.
	InitialBytes uint64

	// MaxCapacity bounds the file size and sizes the memory mapping.
	// Ignored by Open, which uses the capacity recorded at Create.
	MaxCapacity uint64

	// Logger receives growth and lifecycle events. Nil discards them.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RegionPageCapacity == 0 {
		o.RegionPageCapacity = DefaultRegionPageCapacity
	}
	if o.InitialBytes == 0 {
		o.InitialBytes = DefaultInitialBytes
	}
	if o.MaxCapacity == 0 {
		o.MaxCapacity = DefaultMaxCapacity
	}
	// A region needs at least MinUsablePages pages.
	o.InitialBytes = max(o.InitialBytes, MinUsablePages*uint64(o.PageSize))
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Store is a page store backed by a single memory-mapped file. Pages
// are handed out by per-region buddy allocators; a region tracker
// picks the region for each allocation. When no region can serve a
// request the file grows, up to the capacity fixed at creation.
//
// Allocator state is kept in memory and written to the file's headers
// by Flush, EventualFlush, and Close. Page contents are written
// directly through the slices returned by Page.
//
// Store is safe for concurrent use. Writes to the same page from
// several goroutines must be synchronized by the caller.
type Store struct {
	mu                 sync.Mutex
	file               *mmapfile.File
	layout             DatabaseLayout
	regionPageCapacity uint32
	maxCapacity        uint64
	allocators         []*BuddyAllocator
	tracker            *RegionTracker
	dirty              bool
	closed             bool
	logger             *slog.Logger
}

// Create creates a new store at path. It fails if a non-empty file
// already exists there.
func Create(path string, options Options) (*Store, error) {
	options = options.withDefaults()
	layout, err := CalculateDatabaseLayout(options.MaxCapacity, options.InitialBytes,
		options.RegionPageCapacity, options.PageSize)
	if err != nil {
		return nil, fmt.Errorf("laying out %s: %w", path, err)
	}

	file, err := mmapfile.Open(path, mmapfile.Options{Capacity: int64(options.MaxCapacity), Create: true})
	if err != nil {
		return nil, err
	}
	if file.Len() != 0 {
		file.Close()
		return nil, fmt.Errorf("creating %s: %w", path, os.ErrExist)
	}
	if err := file.Resize(int64(layout.Len())); err != nil {
		abandonCreate(file)
		return nil, err
	}

	store := &Store{
		file:               file,
		layout:             layout,
		regionPageCapacity: options.RegionPageCapacity,
		maxCapacity:        options.MaxCapacity,
		tracker:            NewRegionTracker(layout.MaxRegions(), MaxMaxPageOrder+1),
		dirty:              true,
		logger:             options.Logger.With("path", path),
	}
	for region := uint32(0); region < layout.NumRegions(); region++ {
		if err := store.addRegion(region); err != nil {
			abandonCreate(file)
			return nil, err
		}
	}
	if err := store.writeMetadata(); err != nil {
		abandonCreate(file)
		return nil, err
	}
	if err := file.Flush(); err != nil {
		abandonCreate(file)
		return nil, err
	}
	store.dirty = false

	store.logger.Info("page store created",
		"page_size", layout.PageSize(),
		"regions", layout.NumRegions(),
		"usable_bytes", layout.UsableBytes(),
		"max_capacity", options.MaxCapacity,
	)
	return store, nil
}

// abandonCreate closes a file that Create could not initialize. The
// file is removed only if Create made it; an empty file that was
// already there is truncated back to empty and left in place.
func abandonCreate(file *mmapfile.File) {
	name := file.Name()
	if !file.Created() {
		file.Resize(0)
		file.Close()
		return
	}
	file.Close()
	os.Remove(name)
}

// Open opens an existing store at path.
func Open(path string, options Options) (*Store, error) {
	options = options.withDefaults()

	// Map just the header first; the real capacity is stored in it.
	file, err := mmapfile.Open(path, mmapfile.Options{Capacity: DBHeaderSize})
	if err != nil {
		return nil, err
	}
	store, err := openFile(file, options)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	store.logger.Info("page store opened",
		"regions", store.layout.NumRegions(),
		"usable_bytes", store.layout.UsableBytes(),
	)
	return store, nil
}

func openFile(file *mmapfile.File, options Options) (*Store, error) {
	headerBytes := make([]byte, DBHeaderSize)
	if _, err := file.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading database header: %w: %w", ErrCorrupted, err)
	}
	h, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	layout := h.layout()
	if h.maxCapacity < layout.Len() {
		return nil, fmt.Errorf("layout needs %d bytes but capacity is %d: %w", layout.Len(), h.maxCapacity, ErrCorrupted)
	}
	if uint64(file.Len()) < layout.Len() {
		return nil, fmt.Errorf("file is %d bytes, layout needs %d: %w", file.Len(), layout.Len(), ErrCorrupted)
	}
	if err := file.Remap(int64(h.maxCapacity)); err != nil {
		return nil, err
	}

	trackerStart, trackerEnd := layout.RegionTrackerRange()
	trackerBytes, err := file.Slice(int64(trackerStart), int64(trackerEnd-trackerStart))
	if err != nil {
		return nil, err
	}
	if blake3.Sum256(trackerBytes) != h.trackerChecksum {
		return nil, fmt.Errorf("region tracker checksum mismatch: %w", ErrCorrupted)
	}
	tracker, err := UnmarshalRegionTracker(trackerBytes)
	if err != nil {
		return nil, err
	}
	if tracker.Capacity() < layout.NumRegions() {
		return nil, fmt.Errorf("region tracker covers %d regions, layout has %d: %w",
			tracker.Capacity(), layout.NumRegions(), ErrCorrupted)
	}

	store := &Store{
		file:               file,
		layout:             layout,
		regionPageCapacity: h.regionPageCapacity,
		maxCapacity:        h.maxCapacity,
		tracker:            tracker,
		logger:             options.Logger.With("path", file.Name()),
	}
	for region := uint32(0); region < layout.NumRegions(); region++ {
		state, err := store.allocatorBytes(region)
		if err != nil {
			return nil, err
		}
		allocator, err := UnmarshalBuddyAllocator(state)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", region, err)
		}
		if allocator.Capacity() != h.regionPageCapacity || allocator.NumPages() != layout.RegionLayout(region).NumPages() {
			return nil, fmt.Errorf("region %d allocator has %d/%d pages, layout says %d/%d: %w",
				region, allocator.NumPages(), allocator.Capacity(),
				layout.RegionLayout(region).NumPages(), h.regionPageCapacity, ErrCorrupted)
		}
		store.allocators = append(store.allocators, allocator)
	}
	return store, nil
}

// addRegion creates the allocator for a region that the current
// layout has but the store does not yet track.
func (s *Store) addRegion(region uint32) error {
	allocator, err := NewBuddyAllocator(s.layout.RegionLayout(region).NumPages(), s.regionPageCapacity)
	if err != nil {
		return fmt.Errorf("region %d: %w", region, err)
	}
	s.allocators = append(s.allocators, allocator)
	s.tracker.update(region, allocator)
	return nil
}

func (s *Store) allocatorBytes(region uint32) ([]byte, error) {
	return s.file.Slice(int64(s.layout.RegionBaseAddress(region)), int64(BuddyRequiredSpace(s.regionPageCapacity)))
}

// Allocate returns a free block of the given order, growing the file
// if no region has one.
func (s *Store) Allocate(order uint8) (PageNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PageNumber{}, ErrClosed
	}
	if order > allocatorMaxOrder(s.regionPageCapacity) {
		return PageNumber{}, fmt.Errorf("order %d exceeds region maximum %d: %w",
			order, allocatorMaxOrder(s.regionPageCapacity), ErrInvalidOrder)
	}

	for {
		region, found := s.tracker.FindFree(order)
		if found && region < uint32(len(s.allocators)) {
			allocator := s.allocators[region]
			index, ok := allocator.Alloc(order)
			s.tracker.update(region, allocator)
			if ok {
				s.dirty = true
				return PageNumber{Region: region, Index: index, Order: order}, nil
			}
			continue
		}
		if err := s.grow(order); err != nil {
			return PageNumber{}, err
		}
	}
}

// grow extends the layout so that at least one more block of order
// fits, doubling the usable size where capacity allows.
func (s *Store) grow(order uint8) error {
	current := s.layout.UsableBytes()
	requested := uint64(s.layout.PageSize()) << order
	desired := max(current*2, current+requested)

	next, err := CalculateDatabaseLayout(s.maxCapacity, desired, s.regionPageCapacity, s.layout.PageSize())
	if err != nil {
		return fmt.Errorf("growing page store: %w", err)
	}
	if next.UsableBytes() <= current {
		return fmt.Errorf("page store is at its capacity of %d bytes: %w", s.maxCapacity, ErrOutOfSpace)
	}
	if next.SuperheaderPages() != s.layout.SuperheaderPages() || next.NumRegions() < s.layout.NumRegions() {
		return fmt.Errorf("grown layout is incompatible with the current one (%d regions -> %d)",
			s.layout.NumRegions(), next.NumRegions())
	}

	if err := s.file.Resize(int64(next.Len())); err != nil {
		return fmt.Errorf("growing page store: %w", err)
	}
	previous := s.layout
	s.layout = next
	for region := uint32(0); region < next.NumRegions(); region++ {
		if region >= uint32(len(s.allocators)) {
			if err := s.addRegion(region); err != nil {
				return err
			}
			continue
		}
		allocator := s.allocators[region]
		if pages := next.RegionLayout(region).NumPages(); pages != allocator.NumPages() {
			if err := allocator.Resize(pages); err != nil {
				return fmt.Errorf("region %d: %w", region, err)
			}
			s.tracker.update(region, allocator)
		}
	}
	s.dirty = true

	s.logger.Info("page store grown",
		"regions_before", previous.NumRegions(),
		"regions_after", next.NumRegions(),
		"usable_bytes_before", previous.UsableBytes(),
		"usable_bytes_after", next.UsableBytes(),
		"file_bytes", next.Len(),
	)
	return nil
}

// Free releases a block returned by Allocate.
func (s *Store) Free(page PageNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if page.Region >= uint32(len(s.allocators)) {
		return fmt.Errorf("page %s: region out of range: %w", page, ErrPageNotAllocated)
	}
	allocator := s.allocators[page.Region]
	if err := allocator.Free(page.Index, page.Order); err != nil {
		return fmt.Errorf("page %s: %w", page, err)
	}
	s.tracker.update(page.Region, allocator)
	s.dirty = true
	return nil
}

// Page returns the bytes of an allocated block. The slice aliases the
// file and stays valid until the block is freed or the store is
// closed; growth does not move it.
func (s *Store) Page(page PageNumber) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if page.Region >= uint32(len(s.allocators)) || !s.allocators[page.Region].IsAllocated(page.Index, page.Order) {
		return nil, fmt.Errorf("page %s: %w", page, ErrPageNotAllocated)
	}
	offset, length := page.address(s.layout)
	return s.file.Slice(int64(offset), int64(length))
}

// Layout returns the current database layout.
func (s *Store) Layout() DatabaseLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// Stats summarizes the size and occupancy of a store.
type Stats struct {
	PageSize           uint32 `json:"page_size"`
	RegionPageCapacity uint32 `json:"region_page_capacity"`
	Regions            uint32 `json:"regions"`
	FullRegions        uint32 `json:"full_regions"`
	FileBytes          uint64 `json:"file_bytes"`
	MaxCapacity        uint64 `json:"max_capacity"`
	UsableBytes        uint64 `json:"usable_bytes"`
	FreeBytes          uint64 `json:"free_bytes"`
}

// Stats returns current size and occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var freePages uint64
	for _, allocator := range s.allocators {
		freePages += allocator.FreePages()
	}
	return Stats{
		PageSize:           s.layout.PageSize(),
		RegionPageCapacity: s.regionPageCapacity,
		Regions:            s.layout.NumRegions(),
		FullRegions:        s.layout.NumFullRegions(),
		FileBytes:          s.layout.Len(),
		MaxCapacity:        s.maxCapacity,
		UsableBytes:        s.layout.UsableBytes(),
		FreeBytes:          freePages * uint64(s.layout.PageSize()),
	}
}

// writeMetadata serializes every allocator, the region tracker, and
// the database header into the mapping. Caller holds s.mu.
func (s *Store) writeMetadata() error {
	for region, allocator := range s.allocators {
		state, err := s.allocatorBytes(uint32(region))
		if err != nil {
			return err
		}
		if err := allocator.MarshalTo(state); err != nil {
			return fmt.Errorf("region %d: %w", region, err)
		}
	}

	trackerStart, trackerEnd := s.layout.RegionTrackerRange()
	trackerBytes, err := s.file.Slice(int64(trackerStart), int64(trackerEnd-trackerStart))
	if err != nil {
		return err
	}
	if err := s.tracker.MarshalTo(trackerBytes); err != nil {
		return err
	}

	h := newHeader(s.layout, s.regionPageCapacity, s.maxCapacity)
	h.trackerChecksum = blake3.Sum256(trackerBytes)
	headerBytes, err := s.file.Slice(0, DBHeaderSize)
	if err != nil {
		return err
	}
	h.encode(headerBytes)
	return nil
}

// Flush writes allocator state and makes the whole file durable.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked(s.file.Flush)
}

// EventualFlush writes allocator state and orders it after earlier
// writes without waiting for stable storage where the platform allows.
func (s *Store) EventualFlush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked(s.file.EventualFlush)
}

func (s *Store) flushLocked(sync func() error) error {
	if s.dirty {
		if err := s.writeMetadata(); err != nil {
			return err
		}
	}
	if err := sync(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes and closes the store. Slices returned by Page are
// invalid afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.flushLocked(s.file.Flush)
	closeErr := s.file.Close()
	s.logger.Info("page store closed")
	return errors.Join(flushErr, closeErr)
}
