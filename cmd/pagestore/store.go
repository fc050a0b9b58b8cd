// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pagestore/cmd/pagestore/cli"
	"github.com/bureau-foundation/pagestore/lib/config"
	"github.com/bureau-foundation/pagestore/lib/pagestore"
)

// geometryFlags override the store geometry from the configuration.
// Zero values mean "use the configuration".
type geometryFlags struct {
	pageSize    cli.ByteSize
	regionPages uint32
	size        cli.ByteSize
	maxCapacity cli.ByteSize
}

func (g *geometryFlags) register(flagSet *pflag.FlagSet) {
	flagSet.Var(&g.pageSize, "page-size", "page size, a power of two of at least 512 bytes (default from config)")
	flagSet.Uint32Var(&g.regionPages, "region-pages", 0, "pages in a full region (default from config)")
	flagSet.Var(&g.size, "size", "initial usable size (default from config)")
	flagSet.Var(&g.maxCapacity, "max-capacity", "maximum file size (default from config)")
}

func (g *geometryFlags) options(cfg *config.Config, logger *slog.Logger) (pagestore.Options, error) {
	pageSize, err := cfg.Store.PageSizeBytes()
	if err != nil {
		return pagestore.Options{}, err
	}
	initial, err := cfg.Store.InitialSizeBytes()
	if err != nil {
		return pagestore.Options{}, err
	}
	maxCapacity, err := cfg.Store.MaxCapacityBytes()
	if err != nil {
		return pagestore.Options{}, err
	}
	options := pagestore.Options{
		PageSize:           uint32(pageSize),
		RegionPageCapacity: cfg.Store.RegionPageCapacity,
		InitialBytes:       initial,
		MaxCapacity:        maxCapacity,
		Logger:             logger,
	}
	if g.pageSize != 0 {
		if g.pageSize > 1<<30 {
			return pagestore.Options{}, fmt.Errorf("--page-size %s is too large", g.pageSize.String())
		}
		options.PageSize = uint32(g.pageSize)
	}
	if g.regionPages != 0 {
		options.RegionPageCapacity = g.regionPages
	}
	if g.size != 0 {
		options.InitialBytes = uint64(g.size)
	}
	if g.maxCapacity != 0 {
		options.MaxCapacity = uint64(g.maxCapacity)
	}
	return options, nil
}

// layoutReport is the output of the layout command.
type layoutReport struct {
	PageSize           uint32 `json:"page_size"`
	RegionPageCapacity uint32 `json:"region_page_capacity"`
	RegionHeaderPages  uint32 `json:"region_header_pages"`
	SuperheaderPages   uint32 `json:"superheader_pages"`
	RegionTrackerStart uint64 `json:"region_tracker_start"`
	RegionTrackerEnd   uint64 `json:"region_tracker_end"`
	MaxRegions         uint32 `json:"max_regions"`
	FullRegions        uint32 `json:"full_regions"`
	TrailingPages      uint32 `json:"trailing_region_pages"`
	UsableBytes        uint64 `json:"usable_bytes"`
	FileBytes          uint64 `json:"file_bytes"`
	MaxCapacity        uint64 `json:"max_capacity"`
}

func newLayoutReport(layout pagestore.DatabaseLayout, regionPageCapacity uint32, maxCapacity uint64) layoutReport {
	trackerStart, trackerEnd := layout.RegionTrackerRange()
	report := layoutReport{
		PageSize:           layout.PageSize(),
		RegionPageCapacity: regionPageCapacity,
		RegionHeaderPages:  layout.FullRegionLayout().HeaderPages(),
		SuperheaderPages:   layout.SuperheaderPages(),
		RegionTrackerStart: trackerStart,
		RegionTrackerEnd:   trackerEnd,
		MaxRegions:         layout.MaxRegions(),
		FullRegions:        layout.NumFullRegions(),
		UsableBytes:        layout.UsableBytes(),
		FileBytes:          layout.Len(),
		MaxCapacity:        maxCapacity,
	}
	if trailing, ok := layout.TrailingRegionLayout(); ok {
		report.TrailingPages = trailing.NumPages()
	}
	return report
}

func (r layoutReport) write(w io.Writer) error {
	trailing := "none"
	if r.TrailingPages > 0 {
		trailing = fmt.Sprintf("%d pages", r.TrailingPages)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "page size:\t%s\n", humanize.IBytes(uint64(r.PageSize)))
	fmt.Fprintf(tw, "region capacity:\t%d pages (%d header)\n", r.RegionPageCapacity, r.RegionHeaderPages)
	fmt.Fprintf(tw, "superheader:\t%d pages\n", r.SuperheaderPages)
	fmt.Fprintf(tw, "region tracker:\t[%d, %d) for up to %d regions\n", r.RegionTrackerStart, r.RegionTrackerEnd, r.MaxRegions)
	fmt.Fprintf(tw, "full regions:\t%d\n", r.FullRegions)
	fmt.Fprintf(tw, "trailing region:\t%s\n", trailing)
	fmt.Fprintf(tw, "usable:\t%s (%d bytes)\n", humanize.IBytes(r.UsableBytes), r.UsableBytes)
	fmt.Fprintf(tw, "file:\t%s (%d bytes) of %s\n", humanize.IBytes(r.FileBytes), r.FileBytes, humanize.IBytes(r.MaxCapacity))
	return tw.Flush()
}

func (a *app) layoutCommand() *cli.Command {
	var (
		common   commonFlags
		geometry geometryFlags
		jsonOut  bool
	)
	return &cli.Command{
		Name:    "layout",
		Summary: "Show the file layout for a geometry",
		Description: "Compute the file layout a store with the given geometry would have, " +
			"without creating anything.",
		Usage: "pagestore layout [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("layout", pflag.ContinueOnError)
			common.register(flagSet)
			geometry.register(flagSet)
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, logger, err := a.setup(&common, "layout")
			if err != nil {
				return err
			}
			options, err := geometry.options(cfg, logger)
			if err != nil {
				return err
			}
			layout, err := pagestore.CalculateDatabaseLayout(options.MaxCapacity, options.InitialBytes,
				options.RegionPageCapacity, options.PageSize)
			if err != nil {
				return err
			}
			report := newLayoutReport(layout, options.RegionPageCapacity, options.MaxCapacity)
			if jsonOut {
				return cli.WriteJSON(a.stdout, report)
			}
			return report.write(a.stdout)
		},
	}
}

func (a *app) createCommand() *cli.Command {
	var (
		common   commonFlags
		geometry geometryFlags
		path     string
	)
	return &cli.Command{
		Name:    "create",
		Summary: "Create a store file",
		Usage:   "pagestore create [flags]",
		Examples: []cli.Example{
			{
				Description: "Create a store that starts at 16 MiB and may grow to 4 GiB",
				Command:     "pagestore create --store data.pgs --size 16MiB --max-capacity 4GiB",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			common.register(flagSet)
			geometry.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file (default store.path from config)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, logger, err := a.setup(&common, "create")
			if err != nil {
				return err
			}
			options, err := geometry.options(cfg, logger)
			if err != nil {
				return err
			}
			store, err := pagestore.Create(storePath(path, cfg), options)
			if err != nil {
				return err
			}
			stats := store.Stats()
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "created %s: %s usable in %d region(s), file %s of %s\n",
				storePath(path, cfg), humanize.IBytes(stats.UsableBytes), stats.Regions,
				humanize.IBytes(stats.FileBytes), humanize.IBytes(stats.MaxCapacity))
			return nil
		},
	}
}

func (a *app) infoCommand() *cli.Command {
	var (
		common  commonFlags
		path    string
		jsonOut bool
	)
	return &cli.Command{
		Name:    "info",
		Summary: "Show store size and occupancy",
		Usage:   "pagestore info [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file (default store.path from config)")
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, logger, err := a.setup(&common, "info")
			if err != nil {
				return err
			}
			store, err := pagestore.Open(storePath(path, cfg), pagestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			stats := store.Stats()
			if err := store.Close(); err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(a.stdout, stats)
			}
			used := stats.UsableBytes - stats.FreeBytes
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "store:\t%s\n", storePath(path, cfg))
			fmt.Fprintf(tw, "page size:\t%s\n", humanize.IBytes(uint64(stats.PageSize)))
			fmt.Fprintf(tw, "regions:\t%d (%d full, %d pages each)\n", stats.Regions, stats.FullRegions, stats.RegionPageCapacity)
			fmt.Fprintf(tw, "file:\t%s of %s\n", humanize.IBytes(stats.FileBytes), humanize.IBytes(stats.MaxCapacity))
			fmt.Fprintf(tw, "usable:\t%s\n", humanize.IBytes(stats.UsableBytes))
			fmt.Fprintf(tw, "allocated:\t%s (%.1f%%)\n", humanize.IBytes(used), 100*float64(used)/float64(stats.UsableBytes))
			fmt.Fprintf(tw, "free:\t%s\n", humanize.IBytes(stats.FreeBytes))
			return tw.Flush()
		},
	}
}

func (a *app) allocCommand() *cli.Command {
	var (
		common  commonFlags
		path    string
		order   uint8
		count   int
		jsonOut bool
	)
	return &cli.Command{
		Name:    "alloc",
		Summary: "Allocate blocks and print their page numbers",
		Description: "Allocate blocks of 2^order pages, growing the file if needed, and print " +
			"each page number as region:index/order.",
		Usage: "pagestore alloc [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("alloc", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file (default store.path from config)")
			flagSet.Uint8Var(&order, "order", 0, "block order: each block spans 2^order pages")
			flagSet.IntVarP(&count, "count", "n", 1, "number of blocks")
			flagSet.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			cfg, logger, err := a.setup(&common, "alloc")
			if err != nil {
				return err
			}
			store, err := pagestore.Open(storePath(path, cfg), pagestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			var pages []string
			for range count {
				page, err := store.Allocate(order)
				if err != nil {
					store.Close()
					return err
				}
				pages = append(pages, page.String())
			}
			if err := store.Close(); err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(a.stdout, pages)
			}
			for _, page := range pages {
				fmt.Fprintln(a.stdout, page)
			}
			return nil
		},
	}
}

func (a *app) freeCommand() *cli.Command {
	var (
		common commonFlags
		path   string
	)
	return &cli.Command{
		Name:    "free",
		Summary: "Free blocks by page number",
		Usage:   "pagestore free [flags] PAGE...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("free", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file (default store.path from config)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one page number is required")
			}
			pages := make([]pagestore.PageNumber, len(args))
			for i, arg := range args {
				page, err := pagestore.ParsePageNumber(arg)
				if err != nil {
					return err
				}
				pages[i] = page
			}
			cfg, logger, err := a.setup(&common, "free")
			if err != nil {
				return err
			}
			store, err := pagestore.Open(storePath(path, cfg), pagestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			for _, page := range pages {
				if err := store.Free(page); err != nil {
					store.Close()
					return err
				}
			}
			return store.Close()
		},
	}
}
