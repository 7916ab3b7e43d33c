package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codedrift/driftscan/internal/scan"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	Root     string      `yaml:"root"`
	DBPath   string      `yaml:"db_path"`
	HTTPAddr string      `yaml:"http_addr"`
	Schedule string      `yaml:"schedule"`
	LogLevel string      `yaml:"log_level"`
	Scan     ScanOptions `yaml:"scan"`
}

// ScanOptions mirrors scan.Options in YAML form. Booleans that default to
// true are pointers so an explicit false survives decoding.
type ScanOptions struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	Threads        int      `yaml:"threads"`
	ExtraIgnore    []string `yaml:"extra_ignore"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	ComputeHashes  *bool    `yaml:"compute_hashes"`
	ForceFullScan  bool     `yaml:"force_full_scan"`
	SkipBinary     *bool    `yaml:"skip_binary"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.DBPath == "" {
		c.DBPath = "driftscan.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Scan.MaxFileSize == 0 {
		c.Scan.MaxFileSize = scan.DefaultMaxFileSize
	}
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the scanner
// can run without one.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ScanOptions converts the YAML form to scan.Options, resolving the
// default-true booleans.
func (c *Config) ScanOptions() scan.Options {
	opts := scan.Options{
		Root:           c.Root,
		MaxFileSize:    c.Scan.MaxFileSize,
		Threads:        c.Scan.Threads,
		ExtraIgnore:    c.Scan.ExtraIgnore,
		FollowSymlinks: c.Scan.FollowSymlinks,
		ForceFullScan:  c.Scan.ForceFullScan,
		ComputeHashes:  true,
		SkipBinary:     true,
	}
	if c.Scan.ComputeHashes != nil {
		opts.ComputeHashes = *c.Scan.ComputeHashes
	}
	if c.Scan.SkipBinary != nil {
		opts.SkipBinary = *c.Scan.SkipBinary
	}
	return opts
}
