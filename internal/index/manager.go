// Package index implements the Index Manager (C6): the end-to-end
// ingestion contract that turns a changed file path into updated
// lexical/vector retriever state, registry stats, and a notification to
// interested listeners.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/nullstride/archivist/internal/chunk"
	"github.com/nullstride/archivist/internal/config"
	ierrors "github.com/nullstride/archivist/internal/errors"
	"github.com/nullstride/archivist/internal/extract"
	"github.com/nullstride/archivist/internal/scanner"
	"github.com/nullstride/archivist/internal/store"
	"github.com/nullstride/archivist/pkg/indexer"
)

// supportedExtensions mirrors the extractor's supported set (C1): bulk
// scanning skips everything else before it ever reaches extraction.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

// Listener is notified synchronously after every successful IngestPath or
// RemovePath, whether or not that call ran a checkpoint. A panicking listener is recovered and logged; it must never abort the
// remaining listeners or propagate out of the manager.
type Listener func(docID string)

// ManagerConfig configures the Index Manager.
type ManagerConfig struct {
	RootDir          string
	Chunk            config.ChunkConfig
	AutosaveInterval config.IndexConfig
	LockPath         string // advisory checkpoint lock file path
	BM25Path         string // lexical index persistence path
	VectorPath       string // vector store persistence path (directory)
}

// Manager owns the extract-remove-add ingestion pipeline for a single
// doc path, bulk initial scans, and periodic checkpointing.
type Manager struct {
	cfg       ManagerConfig
	extractor *extract.Extractor
	hybrid    *indexer.HybridIndexer
	registry  *store.Registry
	logger    *slog.Logger

	mu        sync.Mutex
	inFlight  map[string]bool
	listeners []Listener

	lock *flock.Flock
}

// NewManager builds a Manager. hybrid must already wrap the configured
// lexical and vector indexers; registry must already be open.
func NewManager(cfg ManagerConfig, extractor *extract.Extractor, hybrid *indexer.HybridIndexer, registry *store.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var lock *flock.Flock
	if cfg.LockPath != "" {
		lock = flock.New(cfg.LockPath)
	}
	return &Manager{
		cfg:       cfg,
		extractor: extractor,
		hybrid:    hybrid,
		registry:  registry,
		logger:    logger,
		inFlight:  make(map[string]bool),
		lock:      lock,
	}
}

// OnIndexUpdated registers a listener invoked after every successful
// IngestPath or RemovePath. Not safe to call concurrently with IngestPath/RemovePath.
func (m *Manager) OnIndexUpdated(l Listener) {
	m.listeners = append(m.listeners, l)
}

// docID derives the stable identifier for a path. Paths are relative to
// RootDir and used verbatim — the registry maps doc-id to path 1:1.
func docIDFor(path string) string {
	return path
}

// IngestPath runs the extract-remove-add ingestion contract for path,
// relative to cfg.RootDir, and autosaves-checkpoints on success. autosave
// controls whether step 5 (flock-guarded save) runs; bulk scans disable it
// per-file and checkpoint once at the end instead.
func (m *Manager) IngestPath(ctx context.Context, path string, autosave bool) error {
	if !m.beginInFlight(path) {
		return nil // already being processed; the debouncer already subsumed this event
	}
	defer m.endInFlight(path)

	docID := docIDFor(path)
	absPath := filepath.Join(m.cfg.RootDir, path)

	text := m.extractor.Extract(ctx, absPath)
	if text == "" {
		return nil // not an error: no indexable content
	}

	existed, err := m.registry.Contains(ctx, docID)
	if err != nil {
		return fmt.Errorf("index manager: check registry: %w", err)
	}

	if err := m.removeFromRetrievers(ctx, docID); err != nil {
		m.logger.Warn("index manager: remove before add failed", "doc_id", docID, "err", err)
	}

	chunks := chunk.ToChunks(docID, text, m.cfg.Chunk)
	if len(chunks) == 0 {
		err := ierrors.New(ierrors.CodeNoChunks, fmt.Sprintf("document %q produced no chunks", docID), nil)
		m.logger.Warn("index manager: chunking produced no chunks", "doc_id", docID, "err", err)
		return err
	}

	if err := m.hybrid.Index(ctx, chunks); err != nil {
		// Partial-failure policy: log and do not roll back. The next
		// successful ingest of the same path converges state, since
		// remove-then-add is idempotent.
		m.logger.Warn("index manager: add failed, state may be inconsistent until next ingest", "doc_id", docID, "err", err)
		return fmt.Errorf("index manager: add: %w", err)
	}

	if _, err := m.registry.Register(ctx, docID, path); err != nil {
		m.logger.Warn("index manager: registry upsert failed", "doc_id", docID, "err", err)
	}
	if err := m.registry.UpsertChunks(ctx, docID, path, chunks); err != nil {
		m.logger.Warn("index manager: chunk upsert failed", "doc_id", docID, "err", err)
	}

	kind := "added"
	if existed {
		kind = "updated"
	}
	if err := m.registry.RecordIngest(ctx, kind, nil); err != nil {
		m.logger.Warn("index manager: record ingest stat failed", "err", err)
	}

	if autosave {
		if err := m.checkpoint(); err != nil {
			m.logger.Warn("index manager: checkpoint failed", "err", err)
		}
	}

	m.notify(docID)
	return nil
}

// RemovePath deletes a path's chunks from every retriever and the
// registry, and records a "removed" stat.
func (m *Manager) RemovePath(ctx context.Context, path string, autosave bool) error {
	if !m.beginInFlight(path) {
		return nil
	}
	defer m.endInFlight(path)

	docID := docIDFor(path)

	if err := m.removeFromRetrievers(ctx, docID); err != nil {
		m.logger.Warn("index manager: remove failed", "doc_id", docID, "err", err)
	}
	if err := m.registry.DeleteChunksForDoc(ctx, docID); err != nil {
		m.logger.Warn("index manager: chunk delete failed", "doc_id", docID, "err", err)
	}
	if err := m.registry.Unregister(ctx, docID); err != nil {
		m.logger.Warn("index manager: unregister failed", "doc_id", docID, "err", err)
	}
	if err := m.registry.RecordIngest(ctx, "removed", nil); err != nil {
		m.logger.Warn("index manager: record ingest stat failed", "err", err)
	}

	if autosave {
		if err := m.checkpoint(); err != nil {
			m.logger.Warn("index manager: checkpoint failed", "err", err)
		}
	}

	m.notify(docID)
	return nil
}

// removeFromRetrievers deletes every chunk composite ID belonging to
// docID from the BM25 and vector retrievers. Missing IDs are not errors.
// The registry's chunks table, not the retrievers themselves, tracks which
// composite IDs belong to a given doc.
func (m *Manager) removeFromRetrievers(ctx context.Context, docID string) error {
	ids, err := m.registry.ChunkIDsForDoc(ctx, docID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return m.hybrid.Delete(ctx, ids)
}

func (m *Manager) beginInFlight(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[path] {
		return false
	}
	m.inFlight[path] = true
	return true
}

func (m *Manager) endInFlight(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, path)
}

// checkpoint saves both retrievers under the advisory flock so a second
// process sharing DataDir cannot interleave a checkpoint write.
func (m *Manager) checkpoint() error {
	if m.lock != nil {
		locked, err := m.lock.TryLock()
		if err != nil {
			return fmt.Errorf("index manager: acquire checkpoint lock: %w", err)
		}
		if !locked {
			return nil // another process is checkpointing; skip this round
		}
		defer func() { _ = m.lock.Unlock() }()
	}

	if err := m.hybrid.Save(m.cfg.BM25Path, m.cfg.VectorPath); err != nil {
		return fmt.Errorf("index manager: save: %w", err)
	}
	return nil
}

// Checkpoint runs a forced checkpoint outside the per-ingest autosave
// flow, e.g. after a bulk scan or on a periodic autosave tick.
func (m *Manager) Checkpoint() error {
	return m.checkpoint()
}

// notify invokes every registered listener, recovering individual panics
// so one broken listener cannot abort the rest or crash the ingestor.
func (m *Manager) notify(docID string) {
	for _, l := range m.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("index manager: listener panicked", "doc_id", docID, "recovered", r)
				}
			}()
			l(docID)
		}()
	}
}

// BulkScan walks cfg.RootDir respecting .gitignore and excludePatterns,
// ingesting every supported, within-size-cap file concurrently with a
// bounded worker pool, then checkpoints once.
//
// Directory traversal and exclusion filtering are delegated to
// internal/scanner's Scanner, which already implements gitignore-aware
// walking with an LRU-cached matcher per directory; BulkScan narrows its
// output to the extensions C1 actually knows how to extract.
func (m *Manager) BulkScan(ctx context.Context, excludePatterns []string, maxFileSize int64, maxWorkers int) error {
	sc, err := scanner.New()
	if err != nil {
		return fmt.Errorf("index manager: create scanner: %w", err)
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          m.cfg.RootDir,
		ExcludePatterns:  excludePatterns,
		RespectGitignore: true,
		Workers:          maxWorkers,
		MaxFileSize:      maxFileSize,
	})
	if err != nil {
		return fmt.Errorf("index manager: bulk scan walk: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}
	for res := range results {
		if res.Error != nil {
			m.logger.Warn("index manager: bulk scan walk error", "err", res.Error)
			continue
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(res.File.Path))] {
			continue
		}
		path := res.File.Path
		g.Go(func() error {
			return m.IngestPath(gctx, path, false)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("index manager: bulk scan ingest: %w", err)
	}

	return m.checkpoint()
}
