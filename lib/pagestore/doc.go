// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pagestore implements a page store over a single
// memory-mapped file: the layout arithmetic that divides a file into
// regions, a buddy allocator per region, a region tracker that finds a
// region able to serve an allocation, and the [Store] that ties them
// together on top of a memory-mapped file from lib/mmapfile.
//
// # File layout
//
// A file starts with a superheader: the fixed [DBHeaderSize]-byte
// database header followed by the serialized region tracker, padded to
// a whole number of pages. Regions follow back to back. Every region
// begins with the same number of header pages holding its allocator
// state, followed by its data pages. All regions but the last hold
// exactly the region page capacity; the last (trailing) region may be
// shorter, or absent when the file is an exact number of full regions.
//
//	+-------------+----------+------------+----------+------------+-----+
//	| superheader | r0 hdr   | r0 pages   | r1 hdr   | r1 pages   | ... |
//	+-------------+----------+------------+----------+------------+-----+
//
// The region tracker is sized at creation for every region the
// maximum capacity could hold, and the allocator header size depends
// only on the region page capacity. Growing a file therefore never
// moves anything: it extends the trailing region, turns it into a full
// region, or appends new regions.
//
// # Integrity
//
// The database header, the region tracker, and every allocator state
// carry BLAKE3 checksums. [Open] verifies all of them and rejects a
// file whose recorded layout is inconsistent with its length.
//
// # Snapshots
//
// [Store.WriteSnapshot] streams a copy of the file, optionally LZ4 or
// zstd compressed, and [RestoreSnapshot] turns such a stream back into
// a store file.
package pagestore
