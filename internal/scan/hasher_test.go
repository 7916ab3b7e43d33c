package scan

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestFingerprintStableAndContentSensitive(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	b := Fingerprint([]byte("hello"))
	c := Fingerprint([]byte("HELLO"))

	if a != b {
		t.Errorf("identical content produced different fingerprints: %x vs %x", a, b)
	}
	if a == c {
		t.Errorf("different content produced identical fingerprints: %x", a)
	}
	if Fingerprint(nil) != Fingerprint([]byte{}) {
		t.Error("empty content fingerprint is unstable")
	}
}

func TestHasherCacheHitSkipsRead(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello"})

	opts := DefaultOptions(root)
	opts.Threads = 1
	progress := &Progress{}
	errs := newErrorCollector(progress)

	candidates, err := walk(context.Background(), opts, progress, errs)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	c := candidates[0]

	// Snapshot row with bit-identical mtime and a sentinel hash that real
	// hashing could not produce for this content.
	const sentinel = uint64(0xdeadbeef)
	snapshot := map[string]Metadata{
		"a.txt": {Path: "a.txt", Hash: sentinel, MtimeSecs: c.MtimeSecs, MtimeNanos: c.MtimeNanos, Size: c.Size},
	}

	entries := runHashers(context.Background(), opts, candidates, snapshot, progress, NopSink{}, errs)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if !e.CacheHit {
		t.Error("expected a cache hit for bit-identical mtime")
	}
	if e.Hash != sentinel {
		t.Errorf("cache hit should inherit the cached fingerprint, got %x", e.Hash)
	}
	if progress.CacheHits.Load() != 1 {
		t.Errorf("CacheHits = %d, want 1", progress.CacheHits.Load())
	}
}

func TestHasherForceFullScanIgnoresMtime(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello"})

	opts := DefaultOptions(root)
	opts.Threads = 1
	opts.ForceFullScan = true
	progress := &Progress{}
	errs := newErrorCollector(progress)

	candidates, err := walk(context.Background(), opts, progress, errs)
	if err != nil {
		t.Fatal(err)
	}
	c := candidates[0]
	snapshot := map[string]Metadata{
		"a.txt": {Path: "a.txt", Hash: 1, MtimeSecs: c.MtimeSecs, MtimeNanos: c.MtimeNanos},
	}

	entries := runHashers(context.Background(), opts, candidates, snapshot, progress, NopSink{}, errs)
	if entries[0].CacheHit {
		t.Error("force_full_scan must disable the mtime short-circuit")
	}
	if !entries[0].Hashed {
		t.Error("force_full_scan entry should carry a freshly computed hash")
	}
	if entries[0].Hash != Fingerprint([]byte("hello")) {
		t.Errorf("hash = %x, want fingerprint of file content", entries[0].Hash)
	}
}

func TestHasherFastModeReadsNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello"})

	opts := DefaultOptions(root)
	opts.Threads = 1
	opts.ComputeHashes = false
	progress := &Progress{}
	errs := newErrorCollector(progress)

	candidates, err := walk(context.Background(), opts, progress, errs)
	if err != nil {
		t.Fatal(err)
	}

	entries := runHashers(context.Background(), opts, candidates, nil, progress, NopSink{}, errs)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Hashed {
		t.Error("fast mode must not hash")
	}
	if progress.BytesRead.Load() != 0 {
		t.Errorf("fast mode read %d bytes, want 0", progress.BytesRead.Load())
	}
}

func TestHasherMissingFileIsPerFileError(t *testing.T) {
	root := t.TempDir()

	opts := DefaultOptions(root)
	opts.Threads = 1
	progress := &Progress{}
	errs := newErrorCollector(progress)

	vanished := []Candidate{{Path: "gone.txt", MtimeSecs: time.Now().Unix()}}
	entries := runHashers(context.Background(), opts, vanished, nil, progress, NopSink{}, errs)
	if len(entries) != 0 {
		t.Errorf("got %d entries for a vanished file, want 0", len(entries))
	}
	list := errs.list()
	if len(list) != 1 || list[0].Path != "gone.txt" || list[0].Stage != "hash" {
		t.Errorf("errors = %v, want one hash error for gone.txt", list)
	}
}

// progressRecorder records ScanProgress calls.
type progressRecorder struct {
	NopSink
	calls chan [2]int64
}

func (r *progressRecorder) ScanProgress(processed, total int64) {
	r.calls <- [2]int64{processed, total}
}

func TestHasherProgressEveryHundred(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 250; i++ {
		files[fmt.Sprintf("f%04d.txt", i)] = "x"
	}
	writeTree(t, root, files)

	opts := DefaultOptions(root)
	opts.Threads = 1
	progress := &Progress{}
	errs := newErrorCollector(progress)

	candidates, err := walk(context.Background(), opts, progress, errs)
	if err != nil {
		t.Fatal(err)
	}

	rec := &progressRecorder{calls: make(chan [2]int64, 16)}
	runHashers(context.Background(), opts, candidates, nil, progress, rec, errs)
	close(rec.calls)

	var got [][2]int64
	for c := range rec.calls {
		got = append(got, c)
	}
	if len(got) != 2 {
		t.Fatalf("got %d progress calls for 250 files, want 2", len(got))
	}
	if got[0] != [2]int64{100, 250} || got[1] != [2]int64{200, 250} {
		t.Errorf("progress calls = %v, want [100 250] then [200 250]", got)
	}
}
