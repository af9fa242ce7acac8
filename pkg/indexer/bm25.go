package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nullstride/archivist/internal/store"
)

// ErrNilStore is returned when attempting to create a BM25Indexer without a store.
var ErrNilStore = errors.New("BM25 store is required")

// BM25Indexer provides BM25-based keyword indexing for code chunks.
//
// It wraps a [store.BM25Index] and provides a higher-level interface
// that operates on [store.Chunk] objects (domain model) rather than
// raw documents (storage model).
//
// BM25Indexer is safe for concurrent use. All methods may be called
// from multiple goroutines simultaneously.
type BM25Indexer struct {
	store  store.BM25Index
	mu     sync.RWMutex
	closed bool
}

// Option configures a BM25Indexer.
type Option func(*BM25Indexer)

// WithStore sets the BM25 store backend.
//
// This is a required option; NewBM25Indexer will return an error
// if no store is provided.
func WithStore(s store.BM25Index) Option {
	return func(i *BM25Indexer) {
		i.store = s
	}
}

// NewBM25Indexer creates a new BM25 indexer with the given options.
//
// At minimum, WithStore must be provided:
//
//	indexer, err := NewBM25Indexer(WithStore(bm25Store))
//
// Returns ErrNilStore if no store is provided.
func NewBM25Indexer(opts ...Option) (*BM25Indexer, error) {
	i := &BM25Indexer{}

	for _, opt := range opts {
		opt(i)
	}

	if i.store == nil {
		return nil, ErrNilStore
	}

	return i, nil
}

// Index adds chunks to the BM25 index.
//
// C3 operates on whole documents, not chunks: chunks are grouped by their
// parent DocID and concatenated (in ordinal order) into one [store.Document]
// per doc-id, so the postings and doc-length tables stay keyed by real
// document identifiers rather than by composite chunk id.
//
// Empty or nil slices are no-ops that return nil.
//
// This method is thread-safe.
func (i *BM25Indexer) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := documentsFromChunks(chunks)

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Index(ctx, docs); err != nil {
		return fmt.Errorf("BM25 index: %w", err)
	}

	return nil
}

// documentsFromChunks groups chunks by DocID and joins their content in
// ordinal order into a single per-document [store.Document].
func documentsFromChunks(chunks []*store.Chunk) []*store.Document {
	byDoc := make(map[string][]*store.Chunk, len(chunks))
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, seen := byDoc[c.DocID]; !seen {
			order = append(order, c.DocID)
		}
		byDoc[c.DocID] = append(byDoc[c.DocID], c)
	}

	docs := make([]*store.Document, 0, len(order))
	for _, docID := range order {
		group := byDoc[docID]
		sort.Slice(group, func(a, b int) bool { return group[a].Ordinal < group[b].Ordinal })

		parts := make([]string, len(group))
		for j, c := range group {
			parts[j] = c.Content
		}
		docs = append(docs, &store.Document{
			ID:      docID,
			Content: strings.Join(parts, "\n"),
		})
	}
	return docs
}

// Delete removes documents from the BM25 index.
//
// ids may be composite chunk IDs ("doc-id#ordinal", as produced for the
// vector store) or plain doc-ids; each is resolved to its owning doc-id via
// [store.DocIDOf] and deduplicated before deleting, since the BM25 index is
// keyed by doc-id, not by chunk.
//
// Non-existent IDs are silently ignored (no error).
// Empty or nil slices are no-ops that return nil.
//
// This method is thread-safe.
func (i *BM25Indexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(ids))
	docIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		docID := store.DocIDOf(id)
		if _, ok := seen[docID]; ok {
			continue
		}
		seen[docID] = struct{}{}
		docIDs = append(docIDs, docID)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Delete(ctx, docIDs); err != nil {
		return fmt.Errorf("BM25 delete: %w", err)
	}

	return nil
}

// Clear removes all content from the BM25 index.
//
// This method is thread-safe.
func (i *BM25Indexer) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Clear(ctx); err != nil {
		return fmt.Errorf("BM25 clear: %w", err)
	}

	return nil
}

// Stats returns current index statistics.
//
// This method is thread-safe. The returned stats are a snapshot;
// values may change immediately after if other goroutines modify the index.
func (i *BM25Indexer) Stats() IndexStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	storeStats := i.store.Stats()
	return IndexStats{
		DocumentCount: storeStats.DocumentCount,
		TermCount:     storeStats.TermCount,
		AvgDocLength:  storeStats.AvgDocLength,
	}
}

// Save persists the underlying BM25 index to path.
//
// This method is thread-safe.
func (i *BM25Indexer) Save(path string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if err := i.store.Save(path); err != nil {
		return fmt.Errorf("BM25 save: %w", err)
	}
	return nil
}

// Load replaces the underlying BM25 index with the one persisted at path.
//
// This method is thread-safe.
func (i *BM25Indexer) Load(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Load(path); err != nil {
		return fmt.Errorf("BM25 load: %w", err)
	}
	return nil
}

// Close releases all resources held by the indexer.
//
// This method is idempotent; calling it multiple times is safe.
// After Close, other methods may return errors.
//
// This method is thread-safe.
func (i *BM25Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}

	i.closed = true

	if err := i.store.Close(); err != nil {
		return fmt.Errorf("BM25 close: %w", err)
	}

	return nil
}

// Ensure BM25Indexer implements Indexer at compile time.
var _ Indexer = (*BM25Indexer)(nil)
