package scan

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"

	internaldb "github.com/codedrift/driftscan/internal/db"
)

// mustOpenDB opens a temp file SQLite database with the full schema applied.
func mustOpenDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := internaldb.RunMigrations(db); err != nil {
		db.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// writeTree creates files under root. Keys are root-relative slash paths,
// values are contents. Parent directories are created as needed.
func writeTree(tb testing.TB, root string, files map[string]string) {
	tb.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			tb.Fatalf("mkdir for %q: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			tb.Fatalf("write %q: %v", rel, err)
		}
	}
}

// testScanner builds a Scanner over a fresh temp DB for root.
func testScanner(tb testing.TB, root string, mutate ...func(*Options)) *Scanner {
	tb.Helper()
	opts := DefaultOptions(root)
	opts.Threads = 2
	for _, m := range mutate {
		m(&opts)
	}
	return New(mustOpenDB(tb), opts, nil)
}

// mustScan runs a scan and fails the test on error.
func mustScan(tb testing.TB, s *Scanner) *Diff {
	tb.Helper()
	d, err := s.Scan(context.Background())
	if err != nil {
		tb.Fatalf("scan: %v", err)
	}
	return d
}

// wantSet asserts that got contains exactly the given paths, in any order.
func wantSet(tb testing.TB, name string, got []string, want ...string) {
	tb.Helper()
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	if len(g) != len(w) {
		tb.Errorf("%s: got %v, want %v", name, g, w)
		return
	}
	for i := range g {
		if g[i] != w[i] {
			tb.Errorf("%s: got %v, want %v", name, g, w)
			return
		}
	}
}

// assertDisjoint fails if any path appears in more than one diff set.
func assertDisjoint(tb testing.TB, d *Diff) {
	tb.Helper()
	seen := map[string]string{}
	for _, set := range []struct {
		name  string
		paths []string
	}{
		{"added", d.Added},
		{"modified", d.Modified},
		{"removed", d.Removed},
		{"unchanged", d.Unchanged},
	} {
		for _, p := range set.paths {
			if prev, ok := seen[p]; ok {
				tb.Errorf("path %q in both %s and %s", p, prev, set.name)
			}
			seen[p] = set.name
		}
	}
}

// cachedPaths returns all paths currently in file_metadata.
func cachedPaths(tb testing.TB, db *sql.DB) map[string]Metadata {
	tb.Helper()
	snapshot, err := loadSnapshot(context.Background(), db)
	if err != nil {
		tb.Fatalf("load snapshot: %v", err)
	}
	return snapshot
}

// failingSink fails the test if the scanner reports a fatal error.
type failingSink struct {
	NopSink
	tb testing.TB
}

func (s failingSink) ScanError(err error) {
	s.tb.Errorf("unexpected fatal scan error: %v", err)
}
