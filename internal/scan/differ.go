package scan

// diffEntries compares the processed entries and the full discovered path set
// against the cached snapshot.
//
// Classification per discovered entry:
//   - not in cache: added
//   - mtime identical (cache hit): unchanged
//   - mtime differs, fingerprint equals cached: unchanged, mtime refreshed
//   - mtime differs, fingerprint differs: modified
//   - fast mode, mtime differs: modified without confirmation
//
// Cached paths absent from the discovered set are removed. The discovered set
// covers every candidate, including ones that errored or were never processed
// before cancellation, so those paths are never misreported as removed; they
// simply appear in no output set.
//
// Returns the diff plus the cache mutations: upserts (rows to write) and
// deletes. In fast mode no rows are upserted since the only fingerprint
// available would be absent or stale.
func diffEntries(opts Options, entries []Entry, discovered map[string]struct{}, snapshot map[string]Metadata) (*Diff, []Entry, []string) {
	d := &Diff{Status: StatusComplete}
	var upserts []Entry
	var deletes []string

	var cacheHits int
	languages := make(map[string]int)

	for _, e := range entries {
		d.Stats.TotalBytes += e.Size
		if e.Language != "" {
			languages[e.Language]++
		}

		cached, inCache := snapshot[e.Path]
		switch {
		case !inCache:
			d.Added = append(d.Added, e.Path)
			if opts.ComputeHashes {
				upserts = append(upserts, e)
			}
		case e.CacheHit:
			cacheHits++
			d.Unchanged = append(d.Unchanged, e.Path)
		case !opts.ComputeHashes:
			if cached.MtimeSecs == e.MtimeSecs && cached.MtimeNanos == e.MtimeNanos {
				d.Unchanged = append(d.Unchanged, e.Path)
			} else {
				d.Modified = append(d.Modified, e.Path)
			}
		case e.Hash == cached.Hash:
			// Touched but contentually identical; refresh the row's mtime.
			d.Unchanged = append(d.Unchanged, e.Path)
			upserts = append(upserts, e)
		default:
			d.Modified = append(d.Modified, e.Path)
			upserts = append(upserts, e)
		}
	}

	for p := range snapshot {
		if _, ok := discovered[p]; !ok {
			d.Removed = append(d.Removed, p)
			deletes = append(deletes, p)
		}
	}

	d.Stats.TotalFiles = len(entries)
	d.Stats.Languages = languages
	if len(entries) > 0 {
		d.Stats.CacheHitRate = float64(cacheHits) / float64(len(entries))
	}
	return d, upserts, deletes
}
