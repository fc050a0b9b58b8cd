// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "PAGESTORE_CONFIG"

// Config is the configuration for the pagestore command.
type Config struct {
	// Store configures the page store file the store commands open.
	Store StoreConfig `yaml:"store"`

	// Lint configures the forbidden-pattern scan.
	Lint LintConfig `yaml:"lint"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log"`
}

// StoreConfig configures a page store. Sizes are human-readable byte
// counts ("4KiB", "1 GiB", "65536").
type StoreConfig struct {
	// Path is the store file.
	Path string `yaml:"path"`

	// PageSize is the page size for new stores.
	// Default: 4KiB
	PageSize string `yaml:"page_size"`

	// RegionPageCapacity is the number of pages in a full region for
	// new stores.
	// Default: 16384
	RegionPageCapacity uint32 `yaml:"region_page_capacity"`

	// InitialSize is the usable size a new store starts with.
	// Default: 1MiB
	InitialSize string `yaml:"initial_size"`

	// MaxCapacity bounds the file size of a new store.
	// Default: 1GiB
	MaxCapacity string `yaml:"max_capacity"`

	// SnapshotCompression is used by the snapshot command when no
	// --compression flag is given. One of none, lz4, zstd.
	// Default: zstd
	SnapshotCompression string `yaml:"snapshot_compression"`
}

// LintConfig configures the forbidden-pattern scan.
type LintConfig struct {
	// Root is the directory scanned.
	// Default: .
	Root string `yaml:"root"`

	// RulesFile is a YAML rule file. Empty means the built-in rules.
	RulesFile string `yaml:"rules_file"`

	// Workers bounds concurrent file reads. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// LogConfig configures the command logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text, or json.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration, the base that a config
// file is decoded over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			Path:                filepath.Join(homeDir, ".cache", "pagestore", "default.pgs"),
			PageSize:            "4KiB",
			RegionPageCapacity:  16384,
			InitialSize:         "1MiB",
			MaxCapacity:         "1GiB",
			SnapshotCompression: "zstd",
		},
		Lint: LintConfig{
			Root: ".",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by PAGESTORE_CONFIG.
// It fails if the variable is unset; there is no discovery.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your pagestore.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. Fields absent from the file
// keep their defaults. ${VAR} and ${VAR:-default} in path fields are
// expanded; environment variables override nothing else.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Lint.Root = expandVars(c.Lint.Root, vars)
	c.Lint.RulesFile = expandVars(c.Lint.RulesFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	compressions = []string{"none", "lz4", "zstd"}
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"auto", "text", "json"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	for _, size := range []struct {
		field string
		value string
	}{
		{"store.page_size", c.Store.PageSize},
		{"store.initial_size", c.Store.InitialSize},
		{"store.max_capacity", c.Store.MaxCapacity},
	} {
		if _, err := parseSize(size.field, size.value); err != nil {
			errs = append(errs, err)
		}
	}
	if pageSize, err := c.Store.PageSizeBytes(); err == nil && (pageSize < 512 || pageSize&(pageSize-1) != 0) {
		errs = append(errs, fmt.Errorf("store.page_size %s must be a power of two of at least 512 bytes", c.Store.PageSize))
	}
	if c.Store.RegionPageCapacity < 10 {
		errs = append(errs, fmt.Errorf("store.region_page_capacity must be at least 10, got %d", c.Store.RegionPageCapacity))
	}
	if !slices.Contains(compressions, c.Store.SnapshotCompression) {
		errs = append(errs, fmt.Errorf("store.snapshot_compression must be one of: %v", compressions))
	}

	if c.Lint.Root == "" {
		errs = append(errs, fmt.Errorf("lint.root is required"))
	}
	if c.Lint.Workers < 0 {
		errs = append(errs, fmt.Errorf("lint.workers must not be negative, got %d", c.Lint.Workers))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}

func parseSize(field, value string) (uint64, error) {
	if value == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return size, nil
}

// PageSizeBytes returns PageSize in bytes.
func (s StoreConfig) PageSizeBytes() (uint64, error) {
	return parseSize("store.page_size", s.PageSize)
}

// InitialSizeBytes returns InitialSize in bytes.
func (s StoreConfig) InitialSizeBytes() (uint64, error) {
	return parseSize("store.initial_size", s.InitialSize)
}

// MaxCapacityBytes returns MaxCapacity in bytes.
func (s StoreConfig) MaxCapacityBytes() (uint64, error) {
	return parseSize("store.max_capacity", s.MaxCapacity)
}

// SlogLevel returns Level as a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
