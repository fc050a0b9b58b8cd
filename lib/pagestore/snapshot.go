// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pagestore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression identifies how a snapshot payload is encoded. The values
// are stored in snapshot headers; changing them breaks compatibility
// with existing snapshots.
type Compression uint8

const (
	// CompressionNone stores the file bytes as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 uses an LZ4 frame. Fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses a zstd stream at the default level. Free
	// pages are zero, so sparse stores compress very well.
	CompressionZstd Compression = 2
)

// String returns the name used by ParseCompression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

var snapshotMagic = [8]byte{'p', 'g', 's', 'n', 'a', 'p', '0', '1'}

// Snapshot header:
//
//	[0:8]    magic
//	[8]      compression
//	[9:16]   zero
//	[16:24]  uncompressed length (uint64 LE)
//	[24:56]  BLAKE3 of the uncompressed bytes
const snapshotHeaderSize = 56

// WriteSnapshot writes a self-describing copy of the whole store file
// to w. Allocator state is written into the file first, so the
// snapshot is consistent with every Allocate and Free that returned
// before the call. The store is locked for the duration.
func (s *Store) WriteSnapshot(w io.Writer, compression Compression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if compression > CompressionZstd {
		return fmt.Errorf("unsupported compression: %d", compression)
	}
	if s.dirty {
		if err := s.writeMetadata(); err != nil {
			return err
		}
	}
	data, err := s.file.Slice(0, s.file.Len())
	if err != nil {
		return err
	}

	var header [snapshotHeaderSize]byte
	copy(header[0:8], snapshotMagic[:])
	header[8] = byte(compression)
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(data)))
	checksum := blake3.Sum256(data)
	copy(header[24:56], checksum[:])
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}

	payload, err := compressWriter(w, compression)
	if err != nil {
		return err
	}
	if _, err := payload.Write(data); err != nil {
		payload.Close()
		return fmt.Errorf("writing %s snapshot payload: %w", compression, err)
	}
	if err := payload.Close(); err != nil {
		return fmt.Errorf("finishing %s snapshot payload: %w", compression, err)
	}

	s.logger.Info("snapshot written",
		"compression", compression.String(),
		"bytes", len(data),
	)
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", compression)
	}
}

func decompressReader(r io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported snapshot compression: %d: %w", compression, ErrCorrupted)
	}
}

// RestoreSnapshot writes the snapshot read from r to a new file at
// path and opens it. path must not exist. On any failure the partial
// file is removed.
func RestoreSnapshot(r io.Reader, path string, options Options) (*Store, error) {
	var header [snapshotHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	if [8]byte(header[0:8]) != snapshotMagic {
		return nil, fmt.Errorf("not a page store snapshot (magic %q): %w", header[0:8], ErrCorrupted)
	}
	compression := Compression(header[8])
	length := binary.LittleEndian.Uint64(header[16:24])
	want := [32]byte(header[24:56])

	payload, release, err := decompressReader(r, compression)
	if err != nil {
		return nil, err
	}
	defer release()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeRestoredFile(file, payload, length, want); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}

	store, err := Open(path, options)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return store, nil
}

func writeRestoredFile(file *os.File, payload io.Reader, length uint64, want [32]byte) error {
	hasher := blake3.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), io.LimitReader(payload, int64(length)))
	if err != nil {
		return fmt.Errorf("restoring snapshot payload: %w", err)
	}
	if uint64(written) != length {
		return fmt.Errorf("snapshot payload is %d bytes, header says %d: %w", written, length, ErrCorrupted)
	}
	if [32]byte(hasher.Sum(nil)) != want {
		return fmt.Errorf("snapshot checksum mismatch: %w", ErrCorrupted)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", file.Name(), err)
	}
	return nil
}
