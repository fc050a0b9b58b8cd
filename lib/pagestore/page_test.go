// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import "testing"

func TestParsePageNumber(t *testing.T) {
	page := PageNumber{Region: 3, Index: 17, Order: 2}
	if got := page.String(); got != "3:17/2" {
		t.Fatalf("String() = %q, want 3:17/2", got)
	}
	parsed, err := ParsePageNumber("3:17/2")
	if err != nil {
		t.Fatalf("ParsePageNumber: %v", err)
	}
	if parsed != page {
		t.Errorf("ParsePageNumber = %+v, want %+v", parsed, page)
	}

	for _, input := range []string{"", "3", "3:17", "3/2", "a:1/0", "1:b/0", "1:1/c", "1:1/21", "-1:0/0"} {
		if _, err := ParsePageNumber(input); err == nil {
			t.Errorf("ParsePageNumber(%q) should fail", input)
		}
	}
}

func TestPageAddress(t *testing.T) {
	layout, err := CalculateDatabaseLayout(4<<20, 200*4096, 64, 4096)
	if err != nil {
		t.Fatalf("CalculateDatabaseLayout: %v", err)
	}
	// Region 2 starts after the superheader page and two 65-page regions;
	// its data follows one header page.
	offset, length := PageNumber{Region: 2, Index: 3, Order: 1}.address(layout)
	wantOffset := uint64(4096 + 2*65*4096 + 4096 + 3*2*4096)
	if offset != wantOffset || length != 2*4096 {
		t.Errorf("address = (%d, %d), want (%d, %d)", offset, length, wantOffset, 2*4096)
	}
}
