// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Pagestore creates, inspects, and maintains page store files, and
// runs the forbidden-pattern scan used in CI.
//
// Store commands take the file from --store, falling back to
// store.path in the configuration. Sizes accept human-readable values
// ("4KiB", "64 MiB"). Configuration comes from --config, else the
// file named by PAGESTORE_CONFIG, else built-in defaults; explicit
// flags override it.
//
//	pagestore layout --max-capacity 1GiB --size 64MiB
//	pagestore create --store data.pgs --size 16MiB
//	pagestore alloc --store data.pgs --order 2 --count 4
//	pagestore free --store data.pgs 0:12/2
//	pagestore info --store data.pgs --json
//	pagestore snapshot --store data.pgs --output data.snap --compression zstd
//	pagestore restore --store copy.pgs data.snap
//	pagestore lint --rules ci/forbidden.yaml .
//
// lint exits 1 when it finds a forbidden pattern and 2 when it cannot
// scan. Every other command exits 1 on error.
package main
