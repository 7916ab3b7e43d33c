package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	ID          int64
	StartedAt   time.Time
	TriggeredBy string
	Progress    *Progress
}

// Manager enforces a single-active-scan invariant and exposes start/cancel.
// It records every run in scan_history. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	db   *sql.DB
	opts Options
	sink EventSink

	active   *ActiveScan
	cancelFn context.CancelFunc
}

// NewManager creates a Manager. A nil sink defaults to NopSink.
func NewManager(db *sql.DB, opts Options, sink EventSink) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	return &Manager{db: db, opts: opts, sink: sink}
}

// UpdateOptions replaces the options used for future scans. It does not
// affect a currently running scan.
func (m *Manager) UpdateOptions(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
}

// Start launches an asynchronous scan. Returns an ActiveScan snapshot or
// ErrAlreadyRunning if a scan is already in progress.
func (m *Manager) Start(parentCtx context.Context, triggeredBy string) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	// Create the scan_history record now so the ID is available immediately
	// in the HTTP response, before the goroutine begins executing.
	startedAt := time.Now()
	scanID, err := insertScanRecord(m.db, m.opts.Root, startedAt, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	progress := &Progress{}
	scanCtx, cancel := context.WithCancel(parentCtx)

	active := &ActiveScan{
		ID:          scanID,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
		Progress:    progress,
	}
	m.active = active
	m.cancelFn = cancel

	scanner := New(m.db, m.opts, m.sink)

	go func() {
		d, err := scanner.run(scanCtx, progress)

		var status string
		if err != nil {
			status = "failed"
			slog.Error("scan run error", "id", scanID, "error", err)
		} else {
			status = d.Status
		}
		if finalErr := finaliseScanRecord(m.db, scanID, status, startedAt, d); finalErr != nil {
			slog.Error("finalise scan record", "id", scanID, "error", finalErr)
		}

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
	}()

	return active, nil
}

// Cancel sets the cancellation flag for the running scan. The scan itself
// still finishes (with a partial diff) and clears the active slot.
// Returns ErrNoActiveScan if idle.
func (m *Manager) Cancel() (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveScan
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// Active returns a snapshot of the running scan, or nil when idle.
func (m *Manager) Active() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// MarkStaleScansFailed marks any scan_history rows still in 'running' state
// as 'failed'. Called once at startup in case a previous process crashed
// mid-scan.
func MarkStaleScansFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE scan_history
		SET status = 'failed', finished_at = ?
		WHERE status = 'running'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark stale scans failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scans as failed", "count", n)
	}
	return nil
}

func insertScanRecord(db *sql.DB, root string, startedAt time.Time, triggeredBy string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO scan_history (root, started_at, status, triggered_by)
		VALUES (?, ?, 'running', ?)`,
		root, startedAt.Unix(), triggeredBy)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// finaliseScanRecord writes the outcome of a scan. d may be nil on failure.
func finaliseScanRecord(db *sql.DB, scanID int64, status string, startedAt time.Time, d *Diff) error {
	finishedAt := time.Now()
	if d == nil {
		_, err := db.Exec(`
			UPDATE scan_history SET status = ?, finished_at = ?, duration_ms = ?
			WHERE id = ?`,
			status, finishedAt.Unix(), finishedAt.Sub(startedAt).Milliseconds(), scanID)
		return err
	}
	_, err := db.Exec(`
		UPDATE scan_history
		SET status          = ?,
		    finished_at     = ?,
		    duration_ms     = ?,
		    files_added     = ?,
		    files_modified  = ?,
		    files_removed   = ?,
		    files_unchanged = ?,
		    files_errored   = ?,
		    skipped_large   = ?,
		    skipped_ignored = ?,
		    total_bytes     = ?,
		    cache_hit_rate  = ?,
		    discovery_ms    = ?,
		    hash_ms         = ?,
		    diff_ms         = ?
		WHERE id = ?`,
		status, finishedAt.Unix(), finishedAt.Sub(startedAt).Milliseconds(),
		len(d.Added), len(d.Modified), len(d.Removed), len(d.Unchanged),
		len(d.Errors),
		d.Stats.FilesSkippedLarge, d.Stats.FilesSkippedIgnored,
		d.Stats.TotalBytes, d.Stats.CacheHitRate,
		d.Stats.DiscoveryMs, d.Stats.HashMs, d.Stats.DiffMs,
		scanID)
	return err
}
