package scan

import "testing"

func discoveredSet(entries []Entry, extra ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range entries {
		set[e.Path] = struct{}{}
	}
	for _, p := range extra {
		set[p] = struct{}{}
	}
	return set
}

func TestDifferClassification(t *testing.T) {
	opts := DefaultOptions("/p")

	snapshot := map[string]Metadata{
		"hit.txt":     {Path: "hit.txt", Hash: 10, MtimeSecs: 100},
		"touched.txt": {Path: "touched.txt", Hash: 20, MtimeSecs: 100},
		"changed.txt": {Path: "changed.txt", Hash: 30, MtimeSecs: 100},
		"deleted.txt": {Path: "deleted.txt", Hash: 40, MtimeSecs: 100},
	}
	entries := []Entry{
		{Candidate: Candidate{Path: "new.txt", MtimeSecs: 200}, Hash: 1, Hashed: true},
		{Candidate: Candidate{Path: "hit.txt", MtimeSecs: 100}, Hash: 10, CacheHit: true},
		{Candidate: Candidate{Path: "touched.txt", MtimeSecs: 150}, Hash: 20, Hashed: true},
		{Candidate: Candidate{Path: "changed.txt", MtimeSecs: 150}, Hash: 31, Hashed: true},
	}

	d, upserts, deletes := diffEntries(opts, entries, discoveredSet(entries), snapshot)

	wantSet(t, "added", d.Added, "new.txt")
	wantSet(t, "modified", d.Modified, "changed.txt")
	wantSet(t, "removed", d.Removed, "deleted.txt")
	wantSet(t, "unchanged", d.Unchanged, "hit.txt", "touched.txt")
	assertDisjoint(t, d)

	// Upserts: the new row, the touched row's mtime refresh, the changed row.
	var upsertPaths []string
	for _, e := range upserts {
		upsertPaths = append(upsertPaths, e.Path)
	}
	wantSet(t, "upserts", upsertPaths, "new.txt", "touched.txt", "changed.txt")
	wantSet(t, "deletes", deletes, "deleted.txt")

	if d.Stats.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", d.Stats.TotalFiles)
	}
	if d.Stats.CacheHitRate != 0.25 {
		t.Errorf("CacheHitRate = %f, want 0.25", d.Stats.CacheHitRate)
	}
}

func TestDifferFastModeMtimeOnly(t *testing.T) {
	opts := DefaultOptions("/p")
	opts.ComputeHashes = false

	snapshot := map[string]Metadata{
		"same.txt":    {Path: "same.txt", Hash: 1, MtimeSecs: 100, MtimeNanos: 5},
		"touched.txt": {Path: "touched.txt", Hash: 2, MtimeSecs: 100},
	}
	entries := []Entry{
		// Fast mode still classifies a bit-identical mtime as unchanged via
		// the cache-hit path.
		{Candidate: Candidate{Path: "same.txt", MtimeSecs: 100, MtimeNanos: 5}, Hash: 1, CacheHit: true},
		// Any mtime difference is modified without confirmation.
		{Candidate: Candidate{Path: "touched.txt", MtimeSecs: 101}},
		{Candidate: Candidate{Path: "new.txt", MtimeSecs: 50}},
	}

	d, upserts, deletes := diffEntries(opts, entries, discoveredSet(entries), snapshot)

	wantSet(t, "added", d.Added, "new.txt")
	wantSet(t, "modified", d.Modified, "touched.txt")
	wantSet(t, "unchanged", d.Unchanged, "same.txt")
	if len(d.Removed) != 0 {
		t.Errorf("removed = %v, want empty", d.Removed)
	}
	// No fingerprints are written in fast mode.
	if len(upserts) != 0 {
		t.Errorf("fast mode produced %d upserts, want 0", len(upserts))
	}
	if len(deletes) != 0 {
		t.Errorf("deletes = %v, want empty", deletes)
	}
}

func TestDifferErroredAndUnprocessedNotRemoved(t *testing.T) {
	opts := DefaultOptions("/p")

	// erratic.txt was discovered but failed to hash; pending.txt was
	// discovered but never processed before cancellation. Neither may appear
	// anywhere, including removed.
	snapshot := map[string]Metadata{
		"erratic.txt": {Path: "erratic.txt", Hash: 1, MtimeSecs: 1},
		"pending.txt": {Path: "pending.txt", Hash: 2, MtimeSecs: 1},
		"gone.txt":    {Path: "gone.txt", Hash: 3, MtimeSecs: 1},
	}
	var entries []Entry

	d, _, deletes := diffEntries(opts, entries, discoveredSet(entries, "erratic.txt", "pending.txt"), snapshot)

	wantSet(t, "removed", d.Removed, "gone.txt")
	wantSet(t, "deletes", deletes, "gone.txt")
	if len(d.Added)+len(d.Modified)+len(d.Unchanged) != 0 {
		t.Errorf("unexpected classifications: %+v", d)
	}
}

func TestDifferEmptyEverything(t *testing.T) {
	opts := DefaultOptions("/p")
	d, upserts, deletes := diffEntries(opts, nil, map[string]struct{}{}, map[string]Metadata{})
	if len(d.Added)+len(d.Modified)+len(d.Removed)+len(d.Unchanged) != 0 {
		t.Errorf("empty scan produced classifications: %+v", d)
	}
	if len(upserts) != 0 || len(deletes) != 0 {
		t.Error("empty scan produced cache mutations")
	}
	if d.Stats.CacheHitRate != 0 {
		t.Errorf("CacheHitRate = %f, want 0", d.Stats.CacheHitRate)
	}
}

func TestDifferLanguageBreakdown(t *testing.T) {
	opts := DefaultOptions("/p")
	entries := []Entry{
		{Candidate: Candidate{Path: "a.go", Language: "go"}, Hashed: true},
		{Candidate: Candidate{Path: "b.go", Language: "go"}, Hashed: true},
		{Candidate: Candidate{Path: "c.ts", Language: "typescript"}, Hashed: true},
		{Candidate: Candidate{Path: "README", Language: ""}, Hashed: true},
	}
	d, _, _ := diffEntries(opts, entries, discoveredSet(entries), nil)
	if d.Stats.Languages["go"] != 2 || d.Stats.Languages["typescript"] != 1 {
		t.Errorf("languages = %v", d.Stats.Languages)
	}
	if _, ok := d.Stats.Languages[""]; ok {
		t.Error("empty language tag must not be tallied")
	}
}
