package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	ierrors "github.com/nullstride/archivist/internal/errors"
)

// LexicalIndex is a hand-rolled Okapi BM25 index: an inverted index of
// term -> docID -> term frequency, scored with the classic
//
//	IDF(q) * tf*(k1+1) / (tf + k1*(1-b+b*|D|/avgdl))
//
// formula. Index/Delete only mark the index stale; avgDocLength is
// recomputed lazily on the next Search (P-REBUILD).
type LexicalIndex struct {
	mu sync.RWMutex

	config BM25Config

	postings  map[string]map[string]int // term -> docID -> term frequency
	docLength map[string]int            // docID -> token count

	totalLength  int
	avgDocLength float64
	stale        bool

	closed bool
}

// gobLexicalIndex is the persisted representation of a LexicalIndex.
type gobLexicalIndex struct {
	Config    BM25Config
	Postings  map[string]map[string]int
	DocLength map[string]int
}

// NewLexicalIndex creates an empty BM25 index with the given parameters.
func NewLexicalIndex(cfg BM25Config) *LexicalIndex {
	if cfg.K1 == 0 {
		cfg.K1 = 1.5
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	return &LexicalIndex{
		config:    cfg,
		postings:  make(map[string]map[string]int),
		docLength: make(map[string]int),
	}
}

// Index adds or replaces documents in the index.
func (idx *LexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	for _, doc := range docs {
		tokens := Tokenize(doc.Content)
		if len(tokens) == 0 {
			return ierrors.New(ierrors.CodeEmptyTokens,
				fmt.Sprintf("document %q tokenized to no terms", doc.ID), nil)
		}

		idx.removeDocLocked(doc.ID)

		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		for term, count := range tf {
			postings, ok := idx.postings[term]
			if !ok {
				postings = make(map[string]int)
				idx.postings[term] = postings
			}
			postings[doc.ID] = count
		}

		idx.docLength[doc.ID] = len(tokens)
		idx.totalLength += len(tokens)
	}

	idx.stale = true
	return nil
}

// removeDocLocked removes doc's postings and length entry. Callers must
// hold idx.mu for writing.
func (idx *LexicalIndex) removeDocLocked(docID string) {
	if length, exists := idx.docLength[docID]; exists {
		idx.totalLength -= length
		delete(idx.docLength, docID)
	}
	for term, postings := range idx.postings {
		if _, exists := postings[docID]; exists {
			delete(postings, docID)
			if len(postings) == 0 {
				delete(idx.postings, term)
			}
		}
	}
}

// Delete removes documents from the index.
func (idx *LexicalIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	for _, id := range docIDs {
		idx.removeDocLocked(id)
	}
	idx.stale = true
	return nil
}

// Clear removes every document from the index.
func (idx *LexicalIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	idx.postings = make(map[string]map[string]int)
	idx.docLength = make(map[string]int)
	idx.totalLength = 0
	idx.avgDocLength = 0
	idx.stale = false
	return nil
}

// rebuildLocked recomputes avgDocLength. Callers must hold idx.mu.
func (idx *LexicalIndex) rebuildLocked() {
	if len(idx.docLength) == 0 {
		idx.avgDocLength = 0
	} else {
		idx.avgDocLength = float64(idx.totalLength) / float64(len(idx.docLength))
	}
	idx.stale = false
}

// Search tokenizes query, scores every document containing at least one
// query term with BM25, and returns the top limit results ordered by score
// descending, then by doc ID ascending to break ties deterministically.
func (idx *LexicalIndex) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil, fmt.Errorf("lexical index is closed")
	}
	if idx.stale {
		idx.rebuildLocked()
	}
	avgdl := idx.avgDocLength
	n := len(idx.docLength)
	idx.mu.Unlock()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, ierrors.New(ierrors.CodeEmptyQuery, "query tokenized to no terms", nil)
	}
	if n == 0 {
		return []*BM25Result{}, nil
	}

	scores := make(map[string]float64)
	matched := make(map[string]map[string]struct{})

	for _, term := range terms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := len(postings)
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for docID, tf := range postings {
			dl := float64(idx.docLength[docID])
			denom := float64(tf) + idx.config.K1*(1-idx.config.B+idx.config.B*dl/avgdl)
			scores[docID] += idf * (float64(tf) * (idx.config.K1 + 1) / denom)

			if matched[docID] == nil {
				matched[docID] = make(map[string]struct{})
			}
			matched[docID][term] = struct{}{}
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for docID, score := range scores {
		terms := make([]string, 0, len(matched[docID]))
		for t := range matched[docID] {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, &BM25Result{
			DocID:        docID,
			Score:        score,
			MatchedTerms: terms,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// AllIDs returns every indexed document ID.
func (idx *LexicalIndex) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	ids := make([]string, 0, len(idx.docLength))
	for id := range idx.docLength {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats returns index statistics, rebuilding avgDocLength if stale.
func (idx *LexicalIndex) Stats() *IndexStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return &IndexStats{}
	}
	if idx.stale {
		idx.rebuildLocked()
	}

	return &IndexStats{
		DocumentCount: len(idx.docLength),
		TermCount:     len(idx.postings),
		AvgDocLength:  idx.avgDocLength,
	}
}

// Save persists the index to path using a temp-file-then-rename so a crash
// mid-write never leaves a truncated artifact.
func (idx *LexicalIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	snapshot := gobLexicalIndex{
		Config:    idx.config,
		Postings:  idx.postings,
		DocLength: idx.docLength,
	}

	if err := gob.NewEncoder(file).Encode(snapshot); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode lexical index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load replaces the index contents with the artifact at path.
func (idx *LexicalIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open lexical index: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snapshot gobLexicalIndex
	if err := gob.NewDecoder(file).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode lexical index: %w", err)
	}

	idx.config = snapshot.Config
	idx.postings = snapshot.Postings
	idx.docLength = snapshot.DocLength
	idx.totalLength = 0
	for _, l := range idx.docLength {
		idx.totalLength += l
	}
	idx.stale = true

	return nil
}

// Close releases the index. Subsequent operations return an error.
func (idx *LexicalIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

var _ BM25Index = (*LexicalIndex)(nil)
