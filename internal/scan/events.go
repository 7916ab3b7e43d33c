package scan

import "log/slog"

// EventSink receives scan lifecycle notifications. Implementations must be
// safe to invoke from multiple worker goroutines simultaneously.
//
// Ordering: ScanStarted fires exactly once before any ScanProgress call;
// ScanProgress fires zero or more times with non-decreasing processed values;
// exactly one of ScanComplete or ScanError fires last. ScanError is reserved
// for fatal conditions; per-file errors surface only in the returned Diff.
type EventSink interface {
	ScanStarted(root string, total int)
	ScanProgress(processed, total int64)
	ScanComplete(d *Diff)
	ScanError(err error)
}

// NopSink is the default sink: all notifications are discarded.
type NopSink struct{}

func (NopSink) ScanStarted(string, int)   {}
func (NopSink) ScanProgress(int64, int64) {}
func (NopSink) ScanComplete(*Diff)        {}
func (NopSink) ScanError(error)           {}

var _ EventSink = NopSink{}

// LogSink reports lifecycle events through slog.
type LogSink struct{}

func (LogSink) ScanStarted(root string, total int) {
	slog.Info("scan started", "root", root, "files", total)
}

func (LogSink) ScanProgress(processed, total int64) {
	slog.Debug("scan progress", "processed", processed, "total", total)
}

func (LogSink) ScanComplete(d *Diff) {
	slog.Info("scan complete",
		"status", d.Status,
		"added", len(d.Added),
		"modified", len(d.Modified),
		"removed", len(d.Removed),
		"unchanged", len(d.Unchanged),
		"errors", len(d.Errors))
}

func (LogSink) ScanError(err error) {
	slog.Error("scan failed", "error", err)
}

var _ EventSink = LogSink{}
