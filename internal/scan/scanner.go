package scan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Scanner runs the two-phase scan pipeline against a project root and a
// metadata store.
type Scanner struct {
	db   *sql.DB
	opts Options
	sink EventSink
}

// New creates a Scanner. A nil sink defaults to NopSink.
func New(db *sql.DB, opts Options, sink EventSink) *Scanner {
	if sink == nil {
		sink = NopSink{}
	}
	return &Scanner{db: db, opts: opts, sink: sink}
}

// Scan discovers, hashes, and diffs the project tree, commits the cache
// mutations, and returns the diff.
//
// Cancelling ctx is not an error: workers stop at their next poll, completed
// work is committed, and the diff comes back with Status=partial. Fatal
// conditions (invalid options, unreadable root, storage failure) return an
// error, fire ScanError, and leave the snapshot unchanged.
func (s *Scanner) Scan(ctx context.Context) (*Diff, error) {
	return s.run(ctx, &Progress{})
}

// run is Scan with an externally owned Progress, so the Manager can expose
// live counters while the scan is in flight.
func (s *Scanner) run(ctx context.Context, progress *Progress) (*Diff, error) {
	if err := s.opts.Validate(); err != nil {
		s.sink.ScanError(err)
		return nil, err
	}
	errs := newErrorCollector(progress)

	snapshot, err := loadSnapshot(ctx, s.db)
	if err != nil {
		s.sink.ScanError(err)
		return nil, err
	}

	discoverStart := time.Now()
	candidates, err := walk(ctx, s.opts, progress, errs)
	if err != nil {
		s.sink.ScanError(err)
		return nil, err
	}
	discoveryMs := time.Since(discoverStart).Milliseconds()

	s.sink.ScanStarted(s.opts.Root, len(candidates))

	hashStart := time.Now()
	entries := runHashers(ctx, s.opts, candidates, snapshot, progress, s.sink, errs)
	hashMs := time.Since(hashStart).Milliseconds()

	discovered := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		discovered[c.Path] = struct{}{}
	}
	// A path that failed during the walk is still present on disk; keep it
	// out of removed so it appears in no diff set.
	for _, fe := range errs.list() {
		discovered[fe.Path] = struct{}{}
	}

	diffStart := time.Now()
	d, upserts, deletes := diffEntries(s.opts, entries, discovered, snapshot)
	d.Errors = errs.list()
	d.Stats.DiscoveryMs = discoveryMs
	d.Stats.HashMs = hashMs
	d.Stats.DiffMs = time.Since(diffStart).Milliseconds()
	d.Stats.FilesSkippedLarge = int(progress.SkippedLarge.Load())
	d.Stats.FilesSkippedIgnored = int(progress.SkippedIgnored.Load())
	if ctx.Err() != nil {
		d.Status = StatusPartial
	}

	// Background context: a cancelled scan still persists completed work.
	if err := commitDiff(context.Background(), s.db, upserts, deletes); err != nil {
		s.sink.ScanError(err)
		return nil, err
	}

	slog.Info("scan finished",
		"root", s.opts.Root,
		"status", d.Status,
		"added", len(d.Added),
		"modified", len(d.Modified),
		"removed", len(d.Removed),
		"unchanged", len(d.Unchanged),
		"errors", len(d.Errors),
		"cache_hit_rate", fmt.Sprintf("%.2f", d.Stats.CacheHitRate))

	s.sink.ScanComplete(d)
	return d, nil
}

// DiscoverOnly runs phase 1 alone: walker output without hashing, diffing, or
// any cache mutation.
func (s *Scanner) DiscoverOnly(ctx context.Context) ([]Candidate, []FileError, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, nil, err
	}
	progress := &Progress{}
	errs := newErrorCollector(progress)
	candidates, err := walk(ctx, s.opts, progress, errs)
	if err != nil {
		return nil, nil, err
	}
	return candidates, errs.list(), nil
}
