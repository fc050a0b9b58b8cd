// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"encoding/binary"
	"math/bits"
)

// bitmap is a fixed-length bit set stored as little-endian 64-bit
// words, the same representation used on disk.
type bitmap []uint64

func bitmapWords(bitCount uint32) int {
	return int((uint64(bitCount) + 63) / 64)
}

func newBitmap(bitCount uint32) bitmap {
	return make(bitmap, bitmapWords(bitCount))
}

func (b bitmap) get(index uint32) bool {
	return b[index/64]&(1<<(index%64)) != 0
}

func (b bitmap) set(index uint32) {
	b[index/64] |= 1 << (index % 64)
}

func (b bitmap) clear(index uint32) {
	b[index/64] &^= 1 << (index % 64)
}

// first returns the index of the lowest set bit.
func (b bitmap) first() (uint32, bool) {
	for wordIndex, word := range b {
		if word != 0 {
			return uint32(wordIndex*64 + bits.TrailingZeros64(word)), true
		}
	}
	return 0, false
}

func (b bitmap) count() uint64 {
	var total uint64
	for _, word := range b {
		total += uint64(bits.OnesCount64(word))
	}
	return total
}

func (b bitmap) any() bool {
	for _, word := range b {
		if word != 0 {
			return true
		}
	}
	return false
}

func (b bitmap) byteLen() int {
	return len(b) * 8
}

// encode writes the words into dst, which must be at least byteLen()
// bytes, and returns the remainder.
func (b bitmap) encode(dst []byte) []byte {
	for _, word := range b {
		binary.LittleEndian.PutUint64(dst, word)
		dst = dst[8:]
	}
	return dst
}

// decode fills the words from src and returns the remainder.
func (b bitmap) decode(src []byte) []byte {
	for i := range b {
		b[i] = binary.LittleEndian.Uint64(src)
		src = src[8:]
	}
	return src
}
