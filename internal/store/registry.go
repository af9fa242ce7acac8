package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no cgo
)

// IngestStats tracks Index Manager (C6) ingestion activity.
type IngestStats struct {
	Added        int
	Updated      int
	Removed      int
	LastIngestAt time.Time
	LastErrors   []IngestError // bounded ring, most recent last
}

// IngestError records a single failed ingest attempt.
type IngestError struct {
	Path string
	Err  string
	At   time.Time
}

// maxIngestErrors bounds the ring buffer retained in IngestStats.
const maxIngestErrors = 20

// QueryStats tracks Query Engine (C8) activity.
type QueryStats struct {
	QueryCount      int
	ReloadCount     int
	AvgResponseTime time.Duration // exponential moving average
	CacheHits       int
	CacheMisses     int
}

// Registry is the document registry (C5): the canonical set of absolute
// paths currently indexed, plus the ingest/query statistics the Index
// Manager and Query Engine persist across restarts. All three live in one
// SQLite database so a single file backs every piece of mutable state that
// isn't BM25 postings or HNSW vectors.
type Registry struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id     TEXT PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_stats (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	added    INTEGER NOT NULL DEFAULT 0,
	updated  INTEGER NOT NULL DEFAULT 0,
	removed  INTEGER NOT NULL DEFAULT 0,
	last_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ingest_errors (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	err  TEXT NOT NULL,
	at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	doc_id   TEXT NOT NULL,
	path     TEXT NOT NULL,
	content  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

CREATE TABLE IF NOT EXISTS query_stats (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	query_count       INTEGER NOT NULL DEFAULT 0,
	reload_count      INTEGER NOT NULL DEFAULT 0,
	avg_response_ns   INTEGER NOT NULL DEFAULT 0,
	cache_hits        INTEGER NOT NULL DEFAULT 0,
	cache_misses      INTEGER NOT NULL DEFAULT 0
);
`

// OpenRegistry opens (creating if necessary) the SQLite-backed document
// registry at path, in WAL mode for concurrent multi-process access.
func OpenRegistry(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; modernc.org/sqlite serializes through one connection
	// to avoid SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO ingest_stats (id) VALUES (1)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed ingest_stats: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO query_stats (id) VALUES (1)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed query_stats: %w", err)
	}

	return &Registry{db: db, path: path}, nil
}

// Register records docID/path as indexed, replacing any prior entry for
// the same docID. Returns true if this is a new registration (no prior row
// for docID existed), which the Index Manager uses to distinguish "add"
// from "update" ingest events.
func (r *Registry) Register(ctx context.Context, docID, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE doc_id = ?`, docID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing registration: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, path, indexed_at) VALUES (?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET path = excluded.path, indexed_at = excluded.indexed_at`,
		docID, path, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("register document: %w", err)
	}

	return exists == 0, nil
}

// Unregister removes docID from the registry. Not-found is not an error.
func (r *Registry) Unregister(ctx context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("unregister document: %w", err)
	}
	return nil
}

// Contains reports whether docID is currently registered.
func (r *Registry) Contains(ctx context.Context, docID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE doc_id = ?`, docID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return count > 0, nil
}

// DocIDForPath returns the doc-id registered for path, if any.
func (r *Registry) DocIDForPath(ctx context.Context, path string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docID string
	err := r.db.QueryRowContext(ctx, `SELECT doc_id FROM documents WHERE path = ?`, path).Scan(&docID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup doc id: %w", err)
	}
	return docID, true, nil
}

// AllDocIDs returns every registered doc-id (for C4.6's cross-store
// consistency check).
func (r *Registry) AllDocIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT doc_id FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("query doc ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// snippetMaxLen bounds how much chunk content a SearchResult carries.
const snippetMaxLen = 280

// UpsertChunks records the path and content for chunks, so later searches
// can resolve a composite chunk ID (e.g. "doc-1#2") to a display path and
// snippet without re-reading the source document from disk.
func (r *Registry) UpsertChunks(ctx context.Context, docID, path string, chunks []*Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, doc_id, path, content) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET path = excluded.path, content = excluded.content`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, docID, path, c.Content); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteChunksForDoc removes every chunk row belonging to docID.
func (r *Registry) DeleteChunksForDoc(ctx context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("delete chunks for doc: %w", err)
	}
	return nil
}

// ChunkIDsForDoc returns every composite chunk ID registered for docID, in
// no particular order. Used to drive retriever deletes before a re-add.
func (r *Registry) ChunkIDsForDoc(ctx context.Context, docID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return nil, fmt.Errorf("chunk ids for doc: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DocSnippet resolves a doc-id to its source path and a bounded snippet of
// one of its chunks, for display in search results. C3 and C4 both return
// per-document results now, so retrieval results are keyed by doc-id rather
// than by composite chunk-id; the lowest chunk-id (ordinal 0, when present)
// is used as the representative snippet.
func (r *Registry) DocSnippet(ctx context.Context, docID string) (path, snippet string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var content string
	err = r.db.QueryRowContext(ctx,
		`SELECT path, content FROM chunks WHERE doc_id = ? ORDER BY chunk_id ASC LIMIT 1`, docID).
		Scan(&path, &content)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup doc snippet: %w", err)
	}

	if len(content) > snippetMaxLen {
		content = content[:snippetMaxLen]
	}
	return path, content, nil
}

// ChunkSnippet resolves a composite chunk ID to its source path and a
// bounded snippet of its content, for display in search results.
func (r *Registry) ChunkSnippet(ctx context.Context, chunkID string) (path, snippet string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var content string
	err = r.db.QueryRowContext(ctx, `SELECT path, content FROM chunks WHERE chunk_id = ?`, chunkID).
		Scan(&path, &content)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup chunk snippet: %w", err)
	}

	if len(content) > snippetMaxLen {
		content = content[:snippetMaxLen]
	}
	return path, content, nil
}

// Count returns the number of registered documents.
func (r *Registry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// RecordIngest updates IngestStats for a single add/update/remove event
// and, on failure, appends to the bounded error ring.
func (r *Registry) RecordIngest(ctx context.Context, kind string, ingestErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var column string
	switch kind {
	case "add":
		column = "added"
	case "update":
		column = "updated"
	case "remove":
		column = "removed"
	default:
		return fmt.Errorf("unknown ingest kind %q", kind)
	}

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE ingest_stats SET %s = %s + 1, last_at = ? WHERE id = 1`, column, column),
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update ingest_stats: %w", err)
	}

	if ingestErr == nil {
		return nil
	}
	return r.appendIngestErrorLocked(ctx, ingestErr)
}

func (r *Registry) appendIngestErrorLocked(ctx context.Context, ingestErr error) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO ingest_errors (path, err, at) VALUES (?, ?, ?)`,
		"", ingestErr.Error(), time.Now().Unix()); err != nil {
		return fmt.Errorf("record ingest error: %w", err)
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM ingest_errors WHERE id NOT IN (
			SELECT id FROM ingest_errors ORDER BY id DESC LIMIT ?
		)`, maxIngestErrors)
	if err != nil {
		return fmt.Errorf("trim ingest_errors: %w", err)
	}
	return nil
}

// IngestStats returns the current ingest statistics.
func (r *Registry) IngestStats(ctx context.Context) (*IngestStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &IngestStats{}
	var lastAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT added, updated, removed, last_at FROM ingest_stats WHERE id = 1`).
		Scan(&stats.Added, &stats.Updated, &stats.Removed, &lastAt)
	if err != nil {
		return nil, fmt.Errorf("read ingest_stats: %w", err)
	}
	if lastAt > 0 {
		stats.LastIngestAt = time.Unix(lastAt, 0)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT path, err, at FROM ingest_errors ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("read ingest_errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ie IngestError
		var at int64
		if err := rows.Scan(&ie.Path, &ie.Err, &at); err != nil {
			return nil, fmt.Errorf("scan ingest_error: %w", err)
		}
		ie.At = time.Unix(at, 0)
		stats.LastErrors = append(stats.LastErrors, ie)
	}
	return stats, rows.Err()
}

// RecordQuery updates QueryStats with the latency of a single query and
// whether it was served from cache, using an exponential moving average
// with smoothing factor alpha.
const queryEMAAlpha = 0.1

func (r *Registry) RecordQuery(ctx context.Context, latency time.Duration, cacheHit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	var avgNS int64
	err := r.db.QueryRowContext(ctx,
		`SELECT query_count, avg_response_ns FROM query_stats WHERE id = 1`).Scan(&count, &avgNS)
	if err != nil {
		return fmt.Errorf("read query_stats: %w", err)
	}

	newAvg := float64(latency.Nanoseconds())
	if count > 0 {
		newAvg = queryEMAAlpha*float64(latency.Nanoseconds()) + (1-queryEMAAlpha)*float64(avgNS)
	}

	hitDelta, missDelta := 0, 0
	if cacheHit {
		hitDelta = 1
	} else {
		missDelta = 1
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE query_stats SET query_count = query_count + 1, avg_response_ns = ?,
		 cache_hits = cache_hits + ?, cache_misses = cache_misses + ? WHERE id = 1`,
		int64(newAvg), hitDelta, missDelta)
	if err != nil {
		return fmt.Errorf("update query_stats: %w", err)
	}
	return nil
}

// RecordReload increments the reload counter.
func (r *Registry) RecordReload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `UPDATE query_stats SET reload_count = reload_count + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("update reload count: %w", err)
	}
	return nil
}

// QueryStats returns the current query statistics.
func (r *Registry) QueryStats(ctx context.Context) (*QueryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueryStats{}
	var avgNS int64
	err := r.db.QueryRowContext(ctx,
		`SELECT query_count, reload_count, avg_response_ns, cache_hits, cache_misses FROM query_stats WHERE id = 1`).
		Scan(&stats.QueryCount, &stats.ReloadCount, &avgNS, &stats.CacheHits, &stats.CacheMisses)
	if err != nil {
		return nil, fmt.Errorf("read query_stats: %w", err)
	}
	stats.AvgResponseTime = time.Duration(avgNS)
	return stats, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
