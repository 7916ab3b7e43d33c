package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codedrift/driftscan/internal/scan"
	"github.com/codedrift/driftscan/internal/scheduler"
)

type handlers struct {
	db      *sql.DB
	mgr     *scan.Manager
	sched   *scheduler.Scheduler
	version string
}

// ListResponse is the standard paginated list envelope.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorBody is the standard error envelope.
type ErrorBody struct {
	Error APIError `json:"error"`
}

// APIError holds a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON serialises v as JSON with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode", "error", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		Error: APIError{Code: code, Message: message},
	})
}

// status handles GET /api/status.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		Version     string     `json:"version"`
		Scanning    bool       `json:"scanning"`
		ScanID      *int64     `json:"scan_id,omitempty"`
		StartedAt   *string    `json:"started_at,omitempty"`
		TriggeredBy *string    `json:"triggered_by,omitempty"`
		Discovered  int64      `json:"files_discovered"`
		Processed   int64      `json:"files_processed"`
		CacheHits   int64      `json:"cache_hits"`
		NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	}

	resp := statusResponse{Version: h.version, NextRunAt: h.sched.NextRunAt()}
	if active := h.mgr.Active(); active != nil {
		resp.Scanning = true
		resp.ScanID = &active.ID
		s := active.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
		resp.TriggeredBy = &active.TriggeredBy
		resp.Discovered = active.Progress.FilesDiscovered.Load()
		resp.Processed = active.Progress.FilesProcessed.Load()
		resp.CacheHits = active.Progress.CacheHits.Load()
	}
	writeJSON(w, http.StatusOK, resp)
}

// scanCreate handles POST /api/scans.
func (h *handlers) scanCreate(w http.ResponseWriter, r *http.Request) {
	// The scan outlives this request; only Manager.Cancel stops it.
	active, err := h.mgr.Start(context.WithoutCancel(r.Context()), "manual")
	if err != nil {
		if errors.Is(err, scan.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "SCAN_ALREADY_RUNNING", "A scan is already in progress")
			return
		}
		slog.Error("scans: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start scan")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":           active.ID,
		"status":       "running",
		"started_at":   active.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by": active.TriggeredBy,
	})
}

// scanCancel handles DELETE /api/scans/current. The scan winds down
// cooperatively; its history row finishes as 'partial'.
func (h *handlers) scanCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mgr.Cancel()
	if err != nil {
		if errors.Is(err, scan.ErrNoActiveScan) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SCAN", "No scan is currently running")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         snap.ID,
		"status":     "cancelling",
		"started_at": snap.StartedAt.UTC().Format(time.RFC3339),
	})
}

type scanItem struct {
	ID             int64   `json:"id"`
	Root           string  `json:"root"`
	StartedAt      string  `json:"started_at"`
	FinishedAt     *string `json:"finished_at"`
	Status         string  `json:"status"`
	TriggeredBy    string  `json:"triggered_by"`
	DurationMs     int64   `json:"duration_ms"`
	FilesAdded     int64   `json:"files_added"`
	FilesModified  int64   `json:"files_modified"`
	FilesRemoved   int64   `json:"files_removed"`
	FilesUnchanged int64   `json:"files_unchanged"`
	FilesErrored   int64   `json:"files_errored"`
	SkippedLarge   int64   `json:"skipped_large"`
	SkippedIgnored int64   `json:"skipped_ignored"`
	TotalBytes     int64   `json:"total_bytes"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	DiscoveryMs    int64   `json:"discovery_ms"`
	HashMs         int64   `json:"hash_ms"`
	DiffMs         int64   `json:"diff_ms"`
}

const scanColumns = `id, root, started_at, finished_at, status, triggered_by,
	duration_ms, files_added, files_modified, files_removed, files_unchanged,
	files_errored, skipped_large, skipped_ignored, total_bytes, cache_hit_rate,
	discovery_ms, hash_ms, diff_ms`

func scanRowInto(scanner interface{ Scan(...any) error }, it *scanItem) error {
	var startedAt int64
	var finishedAt sql.NullInt64
	if err := scanner.Scan(
		&it.ID, &it.Root, &startedAt, &finishedAt, &it.Status, &it.TriggeredBy,
		&it.DurationMs, &it.FilesAdded, &it.FilesModified, &it.FilesRemoved,
		&it.FilesUnchanged, &it.FilesErrored, &it.SkippedLarge, &it.SkippedIgnored,
		&it.TotalBytes, &it.CacheHitRate, &it.DiscoveryMs, &it.HashMs, &it.DiffMs,
	); err != nil {
		return err
	}
	it.StartedAt = time.Unix(startedAt, 0).UTC().Format(time.RFC3339)
	if finishedAt.Valid {
		s := time.Unix(finishedAt.Int64, 0).UTC().Format(time.RFC3339)
		it.FinishedAt = &s
	}
	return nil
}

// scanList handles GET /api/scans, newest first.
func (h *handlers) scanList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	rows, err := h.db.QueryContext(r.Context(),
		`SELECT `+scanColumns+` FROM scan_history ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		slog.Error("scans list: query", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	defer rows.Close()

	items := []scanItem{}
	for rows.Next() {
		var it scanItem
		if err := scanRowInto(rows, &it); err != nil {
			slog.Error("scans list: scan row", "error", err)
			continue
		}
		items = append(items, it)
	}

	var total int
	h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM scan_history`).Scan(&total)

	writeJSON(w, http.StatusOK, ListResponse[scanItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// scanGet handles GET /api/scans/:id.
func (h *handlers) scanGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scan ID")
		return
	}

	var it scanItem
	row := h.db.QueryRowContext(r.Context(),
		`SELECT `+scanColumns+` FROM scan_history WHERE id = ?`, id)
	if err := scanRowInto(row, &it); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// summary handles GET /api/summary: the aggregate view of the most recent
// finished scan. Full path lists stay in the store and come from /api/files.
func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	var it scanItem
	row := h.db.QueryRowContext(r.Context(),
		`SELECT `+scanColumns+` FROM scan_history
		 WHERE status != 'running' ORDER BY started_at DESC LIMIT 1`)
	if err := scanRowInto(row, &it); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "NO_SCANS", "No finished scans yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	langs := map[string]int{}
	rows, err := h.db.QueryContext(r.Context(), `SELECT path FROM file_metadata`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var p string
			if rows.Scan(&p) == nil {
				if lang := scan.DetectLanguage(p); lang != "" {
					langs[lang]++
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"added":       it.FilesAdded,
		"modified":    it.FilesModified,
		"removed":     it.FilesRemoved,
		"unchanged":   it.FilesUnchanged,
		"errors":      it.FilesErrored,
		"total_bytes": it.TotalBytes,
		"duration_ms": it.DurationMs,
		"status":      it.Status,
		"languages":   langs,
	})
}

// fileList handles GET /api/files: pages through the cached snapshot,
// optionally filtered by path prefix or language.
func (h *handlers) fileList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	prefix := r.URL.Query().Get("prefix")
	language := r.URL.Query().Get("language")

	where := []string{"1=1"}
	args := []any{}
	if prefix != "" {
		where = append(where, "path LIKE ?")
		args = append(args, prefix+"%")
	}

	type fileItem struct {
		Path          string `json:"path"`
		ContentHash   string `json:"content_hash"`
		Size          int64  `json:"size"`
		MtimeSecs     int64  `json:"mtime_secs"`
		MtimeNanos    int32  `json:"mtime_nanos"`
		LastIndexedAt int64  `json:"last_indexed_at"`
		Language      string `json:"language,omitempty"`
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT path, content_hash, mtime_secs, mtime_nanos, file_size, last_indexed_at
		FROM file_metadata
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY path LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	defer rows.Close()

	items := []fileItem{}
	for rows.Next() {
		var it fileItem
		var hash int64
		if err := rows.Scan(&it.Path, &hash, &it.MtimeSecs, &it.MtimeNanos, &it.Size, &it.LastIndexedAt); err != nil {
			continue
		}
		it.Language = scan.DetectLanguage(it.Path)
		if language != "" && it.Language != language {
			continue
		}
		it.ContentHash = strconv.FormatUint(uint64(hash), 16)
		items = append(items, it)
	}

	var total int
	h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM file_metadata`).Scan(&total)

	writeJSON(w, http.StatusOK, ListResponse[fileItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// duplicateList handles GET /api/duplicates: groups of cached paths sharing a
// content hash, served off the content_hash index.
func (h *handlers) duplicateList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	type dupGroup struct {
		ContentHash string   `json:"content_hash"`
		Size        int64    `json:"size"`
		Paths       []string `json:"paths"`
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT m.content_hash, m.file_size, m.path
		FROM file_metadata m
		JOIN (
			SELECT content_hash FROM file_metadata
			GROUP BY content_hash HAVING COUNT(*) > 1
			ORDER BY content_hash LIMIT ? OFFSET ?
		) d ON d.content_hash = m.content_hash
		ORDER BY m.content_hash, m.path`,
		limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	defer rows.Close()

	groups := []dupGroup{}
	byHash := map[int64]int{}
	for rows.Next() {
		var hash, size int64
		var p string
		if err := rows.Scan(&hash, &size, &p); err != nil {
			continue
		}
		idx, ok := byHash[hash]
		if !ok {
			idx = len(groups)
			byHash[hash] = idx
			groups = append(groups, dupGroup{
				ContentHash: strconv.FormatUint(uint64(hash), 16),
				Size:        size,
			})
		}
		groups[idx].Paths = append(groups[idx].Paths, p)
	}

	writeJSON(w, http.StatusOK, ListResponse[dupGroup]{
		Items:  groups,
		Total:  len(groups),
		Limit:  limit,
		Offset: offset,
	})
}

// parsePagination extracts limit and offset from query parameters.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return
}
