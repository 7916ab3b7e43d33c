package scan

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Progress holds live counters updated by the walker and hasher workers.
// All fields are atomic so they can be written from worker goroutines and
// read from the HTTP handler without locks.
type Progress struct {
	FilesDiscovered atomic.Int64
	FilesProcessed  atomic.Int64 // hashed or cache-hit
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	BytesRead       atomic.Int64
	SkippedLarge    atomic.Int64
	SkippedIgnored  atomic.Int64
	Errors          atomic.Int64
}

// errorCollector gathers per-file errors from worker goroutines. Contention
// is rare because errors are rare.
type errorCollector struct {
	mu       sync.Mutex
	errs     []FileError
	progress *Progress
}

func newErrorCollector(p *Progress) *errorCollector {
	return &errorCollector{progress: p}
}

// report records one per-file failure. Safe for concurrent use.
func (c *errorCollector) report(path, stage string, err error) {
	slog.Warn("scan: file error", "path", path, "stage", stage, "error", err)
	c.progress.Errors.Add(1)
	c.mu.Lock()
	c.errs = append(c.errs, FileError{Path: path, Stage: stage, Err: err.Error()})
	c.mu.Unlock()
}

// list returns the collected errors.
func (c *errorCollector) list() []FileError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FileError(nil), c.errs...)
}
