package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/xxh3"
)

// progressEvery is the completion interval between ScanProgress callbacks.
const progressEvery = 100

// Fingerprint computes the 64-bit content fingerprint of data. It is stable
// across processes and platforms; collisions are not a security concern.
func Fingerprint(data []byte) uint64 {
	return xxh3.Hash(data)
}

// runHashers runs phase 2: attach fingerprints to candidates using the
// two-level mtime-then-hash strategy.
//
// A candidate whose cached row has bit-identical mtime components inherits the
// cached fingerprint without a read (unless ForceFullScan). Otherwise the file
// is read in full and hashed, except in fast mode (ComputeHashes=false), where
// the entry passes through unhashed and the differ flags mtime changes as
// modified without confirmation.
//
// File reads run on opts.effectiveThreads() workers; no more than that many
// file bodies are held at once. Each worker checks ctx between files and stops
// without reading once it is cancelled, so a cancelled scan returns fewer
// entries than candidates.
func runHashers(ctx context.Context, opts Options, candidates []Candidate, snapshot map[string]Metadata, progress *Progress, sink EventSink, errs *errorCollector) []Entry {
	total := int64(len(candidates))
	in := make(chan Candidate)
	out := make(chan Entry, len(candidates))

	// reportMu keeps ScanProgress calls monotonically non-decreasing even
	// when two workers cross the reporting threshold close together.
	var reportMu sync.Mutex
	var lastReported int64

	var wg sync.WaitGroup
	for i := 0; i < opts.effectiveThreads(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range in {
				if ctx.Err() != nil {
					return
				}
				e, ok := hashOne(opts, c, snapshot, progress, errs)
				if !ok {
					continue
				}
				out <- e
				n := progress.FilesProcessed.Add(1)
				if n%progressEvery == 0 {
					reportMu.Lock()
					if n > lastReported {
						lastReported = n
						sink.ScanProgress(n, total)
					}
					reportMu.Unlock()
				}
			}
		}()
	}

	go func() {
		defer close(in)
		for _, c := range candidates {
			select {
			case in <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)

	entries := make([]Entry, 0, len(candidates))
	for e := range out {
		entries = append(entries, e)
	}
	return entries
}

// hashOne resolves a single candidate. Returns ok=false when the file could
// not be read; the error is recorded and the path surfaces only in the error
// list.
func hashOne(opts Options, c Candidate, snapshot map[string]Metadata, progress *Progress, errs *errorCollector) (Entry, bool) {
	cached, inCache := snapshot[c.Path]

	if inCache && !opts.ForceFullScan &&
		cached.MtimeSecs == c.MtimeSecs && cached.MtimeNanos == c.MtimeNanos {
		progress.CacheHits.Add(1)
		return Entry{Candidate: c, Hash: cached.Hash, CacheHit: true}, true
	}
	progress.CacheMisses.Add(1)

	if !opts.ComputeHashes {
		// Fast mode: the differ classifies by mtime alone and no fingerprints
		// are written back.
		return Entry{Candidate: c}, true
	}

	data, err := os.ReadFile(filepath.Join(opts.Root, filepath.FromSlash(c.Path)))
	if err != nil {
		errs.report(c.Path, "hash", err)
		return Entry{}, false
	}
	progress.BytesRead.Add(int64(len(data)))
	return Entry{Candidate: c, Hash: Fingerprint(data), Hashed: true}, true
}
