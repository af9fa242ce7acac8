// Package store provides the persistence layer: the hand-rolled BM25
// lexical index, the HNSW-backed vector index, and the SQLite-backed
// document registry.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Chunk is a retrievable unit of content produced by the chunker (C2):
// a contiguous, overlapping slice of a document's extracted text.
type Chunk struct {
	ID        string // composite "doc-id#ordinal"
	DocID     string // parent document ID
	Ordinal   int    // position among the document's chunks, 0-indexed
	Content   string
	StartByte int
	EndByte   int
	CreatedAt time.Time
}

// ChunkID builds the composite "doc-id#ordinal" key shared by the HNSW
// vector store and the registry's chunks table.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", docID, ordinal)
}

// DocIDOf extracts the document ID from a composite "doc-id#ordinal" key
// built by ChunkID. IDs that are already plain doc-ids (no '#') are
// returned unchanged.
func DocIDOf(compositeKey string) string {
	if idx := strings.LastIndexByte(compositeKey, '#'); idx >= 0 {
		return compositeKey[:idx]
	}
	return compositeKey
}

// Document represents a document to be indexed in the lexical store.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search scored by Okapi BM25.
type BM25Index interface {
	// Index adds documents to the index.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, scored by BM25.
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// Clear removes every document from the index.
	Clear(ctx context.Context) error

	// AllIDs returns all document IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.5,
		B:  0.75,
	}
}

// VectorResult represents a single vector search result, grouped to one
// entry per document (the highest-scoring matching chunk).
type VectorResult struct {
	ID       string  // Document ID
	Distance float32 // Lower is more similar
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding vector dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean), or
	// "dot" (dot product).
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// VectorStore provides semantic search using the HNSW algorithm.
type VectorStore interface {
	// Add inserts vectors with their composite IDs. If an ID exists, it is
	// replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by composite ID.
	Delete(ctx context.Context, ids []string) error

	// Clear removes every vector from the store.
	Clear(ctx context.Context) error

	// AllIDs returns all vector IDs in the store (for consistency checks).
	AllIDs() []string

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
