package scan

import (
	"errors"
	"fmt"
	"runtime"
)

// Diff status values.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// ErrInvalidConfig wraps option validation failures. A scan with invalid
// options never starts.
var ErrInvalidConfig = errors.New("invalid scan options")

// Candidate is a file emitted by the walker: path plus the stat metadata the
// hasher needs to decide whether contents must be read.
type Candidate struct {
	Path       string // root-relative, slash-separated
	Size       int64
	MtimeSecs  int64
	MtimeNanos int32
	Language   string // empty when the extension is unknown
}

// Entry is a Candidate with its content fingerprint attached. Immutable once
// the differ has run.
type Entry struct {
	Candidate
	Hash     uint64
	CacheHit bool // classified via mtime equality; contents were not read
	Hashed   bool // fingerprint computed this scan (false on cache hit or fast mode)
}

// FileError records a non-fatal per-file failure. Affected paths appear in no
// diff set.
type FileError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"` // "walk" or "hash"
	Err   string `json:"error"`
}

// Stats aggregates counters for one scan.
type Stats struct {
	TotalFiles          int            `json:"total_files"`
	TotalBytes          int64          `json:"total_bytes"`
	DiscoveryMs         int64          `json:"discovery_ms"`
	HashMs              int64          `json:"hash_ms"`
	DiffMs              int64          `json:"diff_ms"`
	CacheHitRate        float64        `json:"cache_hit_rate"`
	FilesSkippedLarge   int            `json:"files_skipped_large"`
	FilesSkippedIgnored int            `json:"files_skipped_ignored"`
	Languages           map[string]int `json:"languages"`
}

// Diff is the scanner's output: four disjoint path sets, the per-file error
// list, and aggregate statistics. The sets are unordered; callers must not
// depend on iteration order.
type Diff struct {
	Added     []string    `json:"added"`
	Modified  []string    `json:"modified"`
	Removed   []string    `json:"removed"`
	Unchanged []string    `json:"unchanged"`
	Errors    []FileError `json:"errors"`
	Stats     Stats       `json:"stats"`
	Status    string      `json:"status"` // StatusComplete or StatusPartial
}

// Summary is the aggregate view that crosses a host boundary: counts only,
// no path lists. Full lists stay in the cache store.
type Summary struct {
	Added      int            `json:"added"`
	Modified   int            `json:"modified"`
	Removed    int            `json:"removed"`
	Unchanged  int            `json:"unchanged"`
	Errors     int            `json:"errors"`
	TotalBytes int64          `json:"total_bytes"`
	DurationMs int64          `json:"duration_ms"`
	Status     string         `json:"status"`
	Languages  map[string]int `json:"languages"`
}

// Summary reduces the diff to its host-facing aggregate.
func (d *Diff) Summary() Summary {
	return Summary{
		Added:      len(d.Added),
		Modified:   len(d.Modified),
		Removed:    len(d.Removed),
		Unchanged:  len(d.Unchanged),
		Errors:     len(d.Errors),
		TotalBytes: d.Stats.TotalBytes,
		DurationMs: d.Stats.DiscoveryMs + d.Stats.HashMs + d.Stats.DiffMs,
		Status:     d.Status,
		Languages:  d.Stats.Languages,
	}
}

// DefaultMaxFileSize is the size cutoff applied when none is configured.
// Files strictly larger are skipped and counted.
const DefaultMaxFileSize int64 = 1 << 20 // 1 MiB

// Options holds the per-scan configuration.
type Options struct {
	Root           string
	MaxFileSize    int64    // bytes; must be positive
	Threads        int      // 0 = auto-detect core count
	ExtraIgnore    []string // gitignore-syntax patterns on top of defaults
	FollowSymlinks bool
	ComputeHashes  bool
	ForceFullScan  bool     // disable the mtime short-circuit
	SkipBinary     bool     // skip files with a null byte in the first 8 KiB
}

// DefaultOptions returns the options a bare scan of root uses.
func DefaultOptions(root string) Options {
	return Options{
		Root:          root,
		MaxFileSize:   DefaultMaxFileSize,
		ComputeHashes: true,
		SkipBinary:    true,
	}
}

// Validate reports fatal configuration errors.
func (o Options) Validate() error {
	if o.Root == "" {
		return fmt.Errorf("%w: root is empty", ErrInvalidConfig)
	}
	if o.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max_file_size must be positive, got %d", ErrInvalidConfig, o.MaxFileSize)
	}
	if o.Threads < 0 {
		return fmt.Errorf("%w: threads %d is negative", ErrInvalidConfig, o.Threads)
	}
	return nil
}

// effectiveThreads resolves thread auto-detection.
func (o Options) effectiveThreads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}
