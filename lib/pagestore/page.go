// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"fmt"
	"strconv"
	"strings"
)

// PageNumber identifies an allocated block: the region it lives in,
// its block index at its order, and the order itself. A block of order
// k spans 1<<k pages.
type PageNumber struct {
	Region uint32
	Index  uint32
	Order  uint8
}

// String formats the page number as "region:index/order".
func (p PageNumber) String() string {
	return fmt.Sprintf("%d:%d/%d", p.Region, p.Index, p.Order)
}

// ParsePageNumber parses the format produced by PageNumber.String.
func ParsePageNumber(text string) (PageNumber, error) {
	regionText, rest, found := strings.Cut(text, ":")
	if !found {
		return PageNumber{}, fmt.Errorf("page number %q: want region:index/order", text)
	}
	indexText, orderText, found := strings.Cut(rest, "/")
	if !found {
		return PageNumber{}, fmt.Errorf("page number %q: want region:index/order", text)
	}
	region, err := strconv.ParseUint(regionText, 10, 32)
	if err != nil {
		return PageNumber{}, fmt.Errorf("page number %q: region: %w", text, err)
	}
	index, err := strconv.ParseUint(indexText, 10, 32)
	if err != nil {
		return PageNumber{}, fmt.Errorf("page number %q: index: %w", text, err)
	}
	order, err := strconv.ParseUint(orderText, 10, 8)
	if err != nil {
		return PageNumber{}, fmt.Errorf("page number %q: order: %w", text, err)
	}
	if order > MaxMaxPageOrder {
		return PageNumber{}, fmt.Errorf("page number %q: order %d above %d: %w", text, order, MaxMaxPageOrder, ErrInvalidOrder)
	}
	return PageNumber{Region: uint32(region), Index: uint32(index), Order: uint8(order)}, nil
}

// address returns the byte offset and length of the page within a
// file laid out by layout.
func (p PageNumber) address(layout DatabaseLayout) (offset, length uint64) {
	region := layout.RegionLayout(p.Region)
	pageSize := uint64(layout.PageSize())
	offset = layout.RegionBaseAddress(p.Region) + region.HeaderBytes() + (uint64(p.Index)<<p.Order)*pageSize
	return offset, pageSize << p.Order
}
