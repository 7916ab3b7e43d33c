package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// binarySniffBytes is how much of a file is read to decide whether it is
// binary (contains a null byte).
const binarySniffBytes = 8 * 1024

// dirQueue is an unbounded, concurrency-safe queue of directories awaiting
// enumeration. It tracks a pending counter so walkers know when all work is
// done.
//
// Termination protocol:
//   - Push increments pending BEFORE enqueuing (caller must own the increment).
//   - Done decrements pending AFTER all children of a directory have been
//     pushed. When pending reaches 0, Done closes the queue and broadcasts.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []walkItem
	head    int // index of the next item to pop; avoids O(n) re-slicing
	pending atomic.Int64
	closed  bool
}

// walkItem is a directory to enumerate together with the ignore chain active
// at its depth.
type walkItem struct {
	dir   string // root-relative slash path; "" is the root itself
	rules *ruleNode
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a directory. Must be called after incrementing pending.
func (q *dirQueue) Push(it walkItem) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns (zero, false) when the queue is closed and empty.
func (q *dirQueue) Pop() (walkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return walkItem{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = walkItem{} // release references so GC can collect them
	q.head++
	// Compact when we've consumed at least 1 000 items and head has passed
	// the midpoint, keeping the backing array from growing without bound.
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Done must be called once per directory after all its child directories have
// been pushed. Decrements pending; if pending reaches 0, closes the queue.
func (q *dirQueue) Done() {
	if q.pending.Add(-1) == 0 {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}
}

// walker runs phase 1: parallel discovery with ignore evaluation and
// size/binary filtering.
type walker struct {
	opts     Options
	progress *Progress
	errs     *errorCollector

	// visited tracks canonical directory paths when following symlinks so
	// cycles terminate. Guarded by visitedMu.
	visitedMu sync.Mutex
	visited   map[string]struct{}
}

// walk traverses opts.Root and returns the candidate list. Per-entry I/O
// failures are reported to errs and do not abort the walk; an unreadable root
// is fatal. The returned slice is fully materialised so phase 2 can report
// progress against a known total.
func walk(ctx context.Context, opts Options, progress *Progress, errs *errorCollector) ([]Candidate, error) {
	// The root must be enumerable; everything below it degrades to per-path
	// errors.
	if _, err := os.ReadDir(opts.Root); err != nil {
		return nil, fmt.Errorf("read root %q: %w", opts.Root, err)
	}

	w := &walker{opts: opts, progress: progress, errs: errs}
	if opts.FollowSymlinks {
		w.visited = make(map[string]struct{})
		w.markVisited(opts.Root)
	}

	q := newDirQueue()
	q.pending.Add(1)
	q.Push(walkItem{dir: "", rules: rootRules(opts.ExtraIgnore)})

	out := make(chan Candidate, 1024)
	var wg sync.WaitGroup
	for i := 0; i < opts.effectiveThreads(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.worker(ctx, q, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	var candidates []Candidate
	for c := range out {
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// worker pops directories from q, enumerates them, enqueues subdirectories
// (incrementing pending first), emits candidate files, then calls q.Done().
func (w *walker) worker(ctx context.Context, q *dirQueue, out chan<- Candidate) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		it, ok := q.Pop()
		if !ok {
			return
		}

		absDir := filepath.Join(w.opts.Root, filepath.FromSlash(it.dir))
		rules := loadDirRules(it.rules, absDir, it.dir)

		entries, err := os.ReadDir(absDir)
		if err != nil {
			w.errs.report(it.dir, "walk", err)
			q.Done()
			continue
		}

		for _, entry := range entries {
			rel := path.Join(it.dir, entry.Name())

			isDir := entry.IsDir()
			if entry.Type()&fs.ModeSymlink != 0 {
				if !w.opts.FollowSymlinks {
					continue
				}
				target, err := os.Stat(filepath.Join(absDir, entry.Name()))
				if err != nil {
					w.errs.report(rel, "walk", err)
					continue
				}
				if target.IsDir() {
					isDir = true
				} else if target.Mode().IsRegular() {
					w.emitFile(ctx, rules, rel, target, out)
					continue
				} else {
					continue
				}
			}

			if isDir {
				if rules.excluded(rel, true) {
					continue
				}
				// When following symlinks, every directory is registered by
				// canonical path; revisiting one (a cycle, or two links to the
				// same tree) skips it with no error.
				if w.opts.FollowSymlinks && w.markVisited(filepath.Join(absDir, entry.Name())) {
					continue
				}
				// Increment BEFORE pushing so pending is never zero prematurely.
				q.pending.Add(1)
				q.Push(walkItem{dir: rel, rules: rules})
				continue
			}

			if !entry.Type().IsRegular() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				w.errs.report(rel, "walk", err)
				continue
			}
			w.emitFile(ctx, rules, rel, info, out)
		}

		q.Done()
	}
}

// emitFile applies the per-file filters and sends a Candidate. info may come
// from the directory entry or, for a followed symlink, from its target.
func (w *walker) emitFile(ctx context.Context, rules *ruleNode, rel string, info fs.FileInfo, out chan<- Candidate) {
	if rules.excluded(rel, false) {
		w.progress.SkippedIgnored.Add(1)
		return
	}
	if info.Size() > w.opts.MaxFileSize {
		w.progress.SkippedLarge.Add(1)
		return
	}
	if w.opts.SkipBinary {
		binary, err := w.isBinary(rel)
		if err != nil {
			w.errs.report(rel, "walk", err)
			return
		}
		if binary {
			w.progress.SkippedIgnored.Add(1)
			return
		}
	}

	mtime := info.ModTime()
	w.progress.FilesDiscovered.Add(1)
	select {
	case out <- Candidate{
		Path:       rel,
		Size:       info.Size(),
		MtimeSecs:  mtime.Unix(),
		MtimeNanos: int32(mtime.Nanosecond()),
		Language:   DetectLanguage(rel),
	}:
	case <-ctx.Done():
	}
}

// isBinary reads the first binarySniffBytes of the file and reports whether
// they contain a null byte.
func (w *walker) isBinary(rel string) (bool, error) {
	f, err := os.Open(filepath.Join(w.opts.Root, filepath.FromSlash(rel)))
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, binarySniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}

// markVisited records a directory's canonical path. Reports true if it was
// already present.
func (w *walker) markVisited(abs string) bool {
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		canonical = abs
	}
	w.visitedMu.Lock()
	defer w.visitedMu.Unlock()
	if _, ok := w.visited[canonical]; ok {
		return true
	}
	w.visited[canonical] = struct{}{}
	return false
}
