package scan

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Metadata is one row of the persisted snapshot: the scanner's view of a file
// as of the last committed scan.
type Metadata struct {
	Path          string
	Hash          uint64
	MtimeSecs     int64
	MtimeNanos    int32
	Size          int64
	LastIndexedAt int64 // unix seconds, advisory
}

// loadSnapshot reads the full file_metadata table into a map keyed by path.
// The differ works against this consistent snapshot regardless of what the
// scan later commits.
func loadSnapshot(ctx context.Context, db *sql.DB) (map[string]Metadata, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path, content_hash, mtime_secs, mtime_nanos, file_size, last_indexed_at
		FROM file_metadata`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]Metadata)
	for rows.Next() {
		var m Metadata
		var hash int64
		if err := rows.Scan(&m.Path, &hash, &m.MtimeSecs, &m.MtimeNanos, &m.Size, &m.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("load snapshot: scan row: %w", err)
		}
		m.Hash = uint64(hash)
		snapshot[m.Path] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snapshot, nil
}

// commitDiff applies all cache mutations of one scan in a single transaction:
// upserts for added, modified, and mtime-refreshed unchanged entries, deletes
// for removed paths. On error the transaction rolls back and the snapshot is
// unchanged.
//
// The caller passes context.Background() for cancelled scans: work completed
// before cancellation is persisted normally.
func commitDiff(ctx context.Context, db *sql.DB, upserts []Entry, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit diff: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO file_metadata
				(path, content_hash, mtime_secs, mtime_nanos, file_size, last_indexed_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("commit diff: prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range upserts {
			if _, err := stmt.ExecContext(ctx,
				e.Path, int64(e.Hash), e.MtimeSecs, e.MtimeNanos, e.Size, now,
			); err != nil {
				return fmt.Errorf("commit diff: upsert %q: %w", e.Path, err)
			}
		}
	}

	if len(deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM file_metadata WHERE path = ?`)
		if err != nil {
			return fmt.Errorf("commit diff: prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, p := range deletes {
			if _, err := stmt.ExecContext(ctx, p); err != nil {
				return fmt.Errorf("commit diff: delete %q: %w", p, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diff: %w", err)
	}
	return nil
}
