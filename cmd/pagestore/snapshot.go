// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pagestore/cmd/pagestore/cli"
	"github.com/bureau-foundation/pagestore/lib/pagestore"
)

// countingWriter counts bytes on their way to w.
type countingWriter struct {
	w     io.Writer
	count int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

func (a *app) snapshotCommand() *cli.Command {
	var (
		common      commonFlags
		path        string
		output      string
		compression string
	)
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Write a compressed, checksummed copy of a store",
		Usage:   "pagestore snapshot [flags] --output FILE",
		Examples: []cli.Example{
			{
				Description: "Stream a zstd snapshot to another host",
				Command:     "pagestore snapshot --store data.pgs --output - | ssh backup 'cat > data.snap'",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file (default store.path from config)")
			flagSet.StringVarP(&output, "output", "o", "", "snapshot file to write, - for stdout")
			flagSet.StringVar(&compression, "compression", "", "none, lz4, or zstd (default store.snapshot_compression from config)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			cfg, logger, err := a.setup(&common, "snapshot")
			if err != nil {
				return err
			}
			if compression == "" {
				compression = cfg.Store.SnapshotCompression
			}
			codec, err := pagestore.ParseCompression(compression)
			if err != nil {
				return err
			}

			store, err := pagestore.Open(storePath(path, cfg), pagestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			if output == "-" {
				return store.WriteSnapshot(a.stdout, codec)
			}
			written, err := writeSnapshotFile(store, output, codec)
			if err != nil {
				return err
			}
			stats := store.Stats()
			fmt.Fprintf(a.stdout, "wrote %s: %s snapshot of %s, %s\n", output, codec,
				humanize.IBytes(stats.FileBytes), humanize.IBytes(uint64(written)))
			return nil
		},
	}
}

// writeSnapshotFile writes to a temporary file beside output and
// renames it into place, so output is never left half-written.
func writeSnapshotFile(store *pagestore.Store, output string, codec pagestore.Compression) (int64, error) {
	temporary := output + ".tmp"
	file, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	buffered := bufio.NewWriterSize(file, 1<<20)
	counter := &countingWriter{w: buffered}
	err = store.WriteSnapshot(counter, codec)
	if err == nil {
		err = buffered.Flush()
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(temporary, output)
	}
	if err != nil {
		return 0, errors.Join(err, os.Remove(temporary))
	}
	return counter.count, nil
}

func (a *app) restoreCommand() *cli.Command {
	var (
		common commonFlags
		path   string
	)
	return &cli.Command{
		Name:    "restore",
		Summary: "Restore a snapshot into a new store file",
		Usage:   "pagestore restore [flags] SNAPSHOT",
		Description: "Restore SNAPSHOT (- for stdin) into the file named by --store, which must not exist. " +
			"The snapshot checksum is verified before the store is opened.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("restore", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVarP(&path, "store", "s", "", "store file to create (default store.path from config)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one snapshot file is required")
			}
			cfg, logger, err := a.setup(&common, "restore")
			if err != nil {
				return err
			}

			var input io.Reader = a.stdin
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = bufio.NewReaderSize(file, 1<<20)
			}

			destination := storePath(path, cfg)
			store, err := pagestore.RestoreSnapshot(input, destination, pagestore.Options{Logger: logger})
			if err != nil {
				return err
			}
			stats := store.Stats()
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "restored %s: %s in %d region(s), %s free\n", destination,
				humanize.IBytes(stats.FileBytes), stats.Regions, humanize.IBytes(stats.FreeBytes))
			return nil
		},
	}
}
