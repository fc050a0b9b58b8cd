// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pagestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bureau-foundation/pagestore/lib/mmapfile"
)

// smallOptions keeps test files at a few megabytes: 64-page regions,
// 16 initial pages, and a 4 MiB ceiling (1007 data pages).
func smallOptions() Options {
	return Options{
		PageSize:           4096,
		RegionPageCapacity: 64,
		InitialBytes:       16 * 4096,
		MaxCapacity:        4 << 20,
	}
}

func createStore(t *testing.T, options Options) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.pgs")
	store, err := Create(path, options)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestCreateInitialLayout(t *testing.T) {
	store, path := createStore(t, smallOptions())

	stats := store.Stats()
	if stats.Regions != 1 || stats.FullRegions != 0 {
		t.Errorf("regions = %d (full %d), want 1 (full 0)", stats.Regions, stats.FullRegions)
	}
	if stats.UsableBytes != 16*4096 || stats.FreeBytes != 16*4096 {
		t.Errorf("usable/free = %d/%d, want %d/%d", stats.UsableBytes, stats.FreeBytes, 16*4096, 16*4096)
	}
	// Superheader page, region header page, 16 data pages.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 18*4096 || uint64(info.Size()) != stats.FileBytes {
		t.Errorf("file size = %d, stats say %d, want %d", info.Size(), stats.FileBytes, 18*4096)
	}
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.pgs")
	if err := os.WriteFile(path, []byte("not a page store"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Create(path, smallOptions()); !errors.Is(err, os.ErrExist) {
		t.Fatalf("Create over existing file error = %v, want os.ErrExist", err)
	}
	contents, _ := os.ReadFile(path)
	if string(contents) != "not a page store" {
		t.Error("Create modified the existing file")
	}
}

func TestCreateOverEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.pgs")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := Create(path, smallOptions())
	if err != nil {
		t.Fatalf("Create over an empty file: %v", err)
	}
	store.Close()
	if _, err := Open(path, Options{}); err != nil {
		t.Errorf("Open after Create: %v", err)
	}
}

func TestAbandonCreateKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()

	existing := filepath.Join(dir, "existing.pgs")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	file, err := mmapfile.Open(existing, mmapfile.Options{Capacity: 1 << 20, Create: true})
	if err != nil {
		t.Fatalf("mmapfile.Open: %v", err)
	}
	if err := file.Resize(8192); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	abandonCreate(file)
	info, err := os.Stat(existing)
	if err != nil {
		t.Fatalf("abandoned Create removed a file it did not create: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("abandoned Create left %d bytes in the existing file, want 0", info.Size())
	}

	fresh := filepath.Join(dir, "fresh.pgs")
	file, err = mmapfile.Open(fresh, mmapfile.Options{Capacity: 1 << 20, Create: true})
	if err != nil {
		t.Fatalf("mmapfile.Open: %v", err)
	}
	abandonCreate(file)
	if _, err := os.Stat(fresh); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("abandoned Create left its own file behind: %v", err)
	}
}

func TestCreateRejectsBadOptions(t *testing.T) {
	options := smallOptions()
	options.PageSize = 1000
	path := filepath.Join(t.TempDir(), "store.pgs")
	if _, err := Create(path, options); err == nil {
		t.Fatal("Create with a bad page size should fail")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed Create left a file behind: %v", err)
	}
}

func TestAllocateWriteReopen(t *testing.T) {
	store, path := createStore(t, smallOptions())

	page, err := store.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	data, err := store.Page(page)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(data) != 4*4096 {
		t.Fatalf("order-2 page is %d bytes, want %d", len(data), 4*4096)
	}
	copy(data, "hello, pages")
	copy(data[len(data)-4:], "tail")

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	data, err = reopened.Page(page)
	if err != nil {
		t.Fatalf("Page after reopen: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("hello, pages")) || !bytes.HasSuffix(data, []byte("tail")) {
		t.Error("page contents did not survive reopen")
	}
	if got := reopened.Stats().FreeBytes; got != (16-4)*4096 {
		t.Errorf("FreeBytes after reopen = %d, want %d", got, (16-4)*4096)
	}

	// The allocation is still held: a second order-2 block is distinct.
	other, err := reopened.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate after reopen: %v", err)
	}
	if other == page {
		t.Errorf("Allocate after reopen returned the held page %s", page)
	}
}

func TestPagesDoNotOverlap(t *testing.T) {
	store, _ := createStore(t, smallOptions())

	var pages []PageNumber
	for i := 0; i < 40; i++ {
		page, err := store.Allocate(uint8(i % 3))
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		pages = append(pages, page)
	}
	for i, page := range pages {
		data, err := store.Page(page)
		if err != nil {
			t.Fatalf("Page(%s): %v", page, err)
		}
		for j := range data {
			data[j] = byte(i)
		}
	}
	for i, page := range pages {
		data, _ := store.Page(page)
		for j, value := range data {
			if value != byte(i) {
				t.Fatalf("page %s byte %d = %d, want %d: pages overlap", page, j, value, i)
			}
		}
	}
}

func TestAllocateGrowsFile(t *testing.T) {
	store, path := createStore(t, smallOptions())

	for i := 0; i < 200; i++ {
		if _, err := store.Allocate(0); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	stats := store.Stats()
	if stats.UsableBytes < 200*4096 {
		t.Errorf("UsableBytes = %d, want at least %d", stats.UsableBytes, 200*4096)
	}
	if stats.Regions < 4 {
		t.Errorf("Regions = %d, want at least 4 after 200 pages with 64-page regions", stats.Regions)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if uint64(info.Size()) != stats.FileBytes {
		t.Errorf("file size %d, stats say %d", info.Size(), stats.FileBytes)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open grown file: %v", err)
	}
	defer reopened.Close()
	if got := reopened.Stats(); got != stats {
		t.Errorf("stats after reopen = %+v, want %+v", got, stats)
	}
}

func TestAllocateOutOfSpace(t *testing.T) {
	store, _ := createStore(t, smallOptions())

	allocated := 0
	for {
		_, err := store.Allocate(0)
		if errors.Is(err, ErrOutOfSpace) {
			break
		}
		if err != nil {
			t.Fatalf("Allocate #%d: %v", allocated, err)
		}
		allocated++
		if allocated > 2000 {
			t.Fatal("Allocate never ran out of space")
		}
	}
	if allocated != 1007 {
		t.Errorf("allocated %d pages before running out, want 1007", allocated)
	}
	stats := store.Stats()
	if stats.FreeBytes != 0 {
		t.Errorf("FreeBytes = %d, want 0", stats.FreeBytes)
	}
	if stats.FileBytes > stats.MaxCapacity {
		t.Errorf("file grew to %d past capacity %d", stats.FileBytes, stats.MaxCapacity)
	}
}

func TestAllocateInvalidOrder(t *testing.T) {
	store, _ := createStore(t, smallOptions())
	// 64-page regions hold blocks up to order 6.
	if _, err := store.Allocate(7); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Allocate(7) error = %v, want ErrInvalidOrder", err)
	}
	if _, err := store.Allocate(6); err != nil {
		t.Errorf("Allocate(6): %v", err)
	}
}

func TestFreeAndReuse(t *testing.T) {
	store, _ := createStore(t, smallOptions())

	page, err := store.Allocate(1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	before := store.Stats().FreeBytes
	if err := store.Free(page); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if after := store.Stats().FreeBytes; after != before+2*4096 {
		t.Errorf("FreeBytes after Free = %d, want %d", after, before+2*4096)
	}
	if err := store.Free(page); !errors.Is(err, ErrPageNotAllocated) {
		t.Errorf("double Free error = %v, want ErrPageNotAllocated", err)
	}
	if _, err := store.Page(page); !errors.Is(err, ErrPageNotAllocated) {
		t.Errorf("Page of freed block error = %v, want ErrPageNotAllocated", err)
	}
	if err := store.Free(PageNumber{Region: 99}); !errors.Is(err, ErrPageNotAllocated) {
		t.Errorf("Free in missing region error = %v, want ErrPageNotAllocated", err)
	}
}

func TestOpenWhileOpen(t *testing.T) {
	_, path := createStore(t, smallOptions())
	if _, err := Open(path, Options{}); !errors.Is(err, mmapfile.ErrAlreadyOpen) {
		t.Fatalf("Open of an open store error = %v, want ErrAlreadyOpen", err)
	}
}

func TestOpenDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
	}{
		{name: "magic", offset: 0},
		{name: "header field", offset: 20},
		{name: "region tracker", offset: DBHeaderSize + 10},
		{name: "allocator state", offset: 4096 + allocatorHeaderSize + 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store, path := createStore(t, smallOptions())
			if err := store.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			flipByte(t, path, test.offset)

			_, err := Open(path, Options{})
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("Open error = %v, want ErrCorrupted", err)
			}
		})
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	store, path := createStore(t, smallOptions())
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.Truncate(path, 8192); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if _, err := Open(path, Options{}); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Open of truncated file error = %v, want ErrCorrupted", err)
	}
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if _, err := Open(path, Options{}); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Open of empty file error = %v, want ErrCorrupted", err)
	}
}

func flipByte(t *testing.T, path string, offset int64) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer file.Close()
	value := make([]byte, 1)
	if _, err := file.ReadAt(value, offset); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	value[0] ^= 0xFF
	if _, err := file.WriteAt(value, offset); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	store, _ := createStore(t, smallOptions())
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := store.Allocate(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate after Close error = %v, want ErrClosed", err)
	}
	if err := store.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close error = %v, want ErrClosed", err)
	}
}

func TestEventualFlush(t *testing.T) {
	store, path := createStore(t, smallOptions())
	page, err := store.Allocate(0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := store.EventualFlush(); err != nil {
		t.Fatalf("EventualFlush: %v", err)
	}

	// The header written by EventualFlush is readable by a fresh
	// decode of the on-disk bytes.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	start := h.layout().RegionBaseAddress(page.Region)
	allocator, err := UnmarshalBuddyAllocator(raw[start:])
	if err != nil {
		t.Fatalf("UnmarshalBuddyAllocator: %v", err)
	}
	if !allocator.IsAllocated(page.Index, page.Order) {
		t.Error("on-disk allocator state does not include the allocation")
	}
}

func TestConcurrentAllocate(t *testing.T) {
	store, _ := createStore(t, smallOptions())

	const workers = 8
	const perWorker = 50
	results := make(chan PageNumber, workers*perWorker)
	var waitGroup sync.WaitGroup
	for w := 0; w < workers; w++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for i := 0; i < perWorker; i++ {
				page, err := store.Allocate(0)
				if err != nil {
					t.Errorf("Allocate: %v", err)
					return
				}
				results <- page
			}
		}()
	}
	waitGroup.Wait()
	close(results)

	seen := make(map[PageNumber]bool)
	for page := range results {
		if seen[page] {
			t.Fatalf("page %s allocated twice", page)
		}
		seen[page] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("allocated %d distinct pages, want %d", len(seen), workers*perWorker)
	}
}
