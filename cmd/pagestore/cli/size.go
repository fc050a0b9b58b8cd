// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// ByteSize is a pflag.Value holding a byte count written the way
// people write sizes: "4KiB", "16 MiB", "1GB", or a plain number.
type ByteSize uint64

var _ pflag.Value = (*ByteSize)(nil)

// String formats the size with IEC units.
func (s *ByteSize) String() string {
	return humanize.IBytes(uint64(*s))
}

// Set parses a size.
func (s *ByteSize) Set(value string) error {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", value, err)
	}
	*s = ByteSize(size)
	return nil
}

// Type names the value in flag usage.
func (s *ByteSize) Type() string {
	return "size"
}
