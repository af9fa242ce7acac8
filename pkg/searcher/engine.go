package searcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nullstride/archivist/internal/store"
)

// Mode selects which retriever(s) the Query Engine consults.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeLex    Mode = "lexical"
	ModeVector Mode = "vector"
)

// SearchResult is a single Query Engine response entry.
type SearchResult struct {
	Rank           int
	ID             string
	Path           string
	FileName       string
	Score          float64
	Origin         Origin
	Snippet        string
	MatchedTerms   []string
	PreFusionScore float64
}

// EngineConfig configures the Query Engine (C8).
type EngineConfig struct {
	// SearchTimeout bounds a single retriever's Search call.
	SearchTimeout time.Duration

	// CacheTTL is the freshness window for cached results; an LRU hit
	// older than this is treated as a miss.
	CacheTTL time.Duration

	// CacheSize is the LRU capacity in entries.
	CacheSize int

	// IndexCheckInterval is the minimum time between on-disk artifact
	// mtime checks that might trigger an automatic ForceReload.
	IndexCheckInterval time.Duration

	// ParallelSearch runs the BM25 and vector searches concurrently via
	// errgroup when true; sequentially otherwise.
	ParallelSearch bool

	// PerRetrieverCandidates is how many results each retriever is asked
	// for before fusion truncates to the caller's requested k.
	PerRetrieverCandidates int
}

// DefaultEngineConfig returns sensible Query Engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SearchTimeout:          30 * time.Second,
		CacheTTL:               5 * time.Minute,
		CacheSize:              256,
		IndexCheckInterval:     2 * time.Second,
		ParallelSearch:         true,
		PerRetrieverCandidates: 20,
	}
}

type cacheKey struct {
	query string
	k     int
	wLex  float64
	wVec  float64
	mode  Mode
}

type cacheEntry struct {
	results []SearchResult
	at      time.Time
}

// artifactSource is the on-disk file a retriever reloads from.
type artifactSource struct {
	path    string
	reload  func() error
	lastMod time.Time
}

// Engine is the Query Engine (C8): it fuses BM25 and vector search (via
// FusionSearcher/C9), caches results with an LRU+TTL policy, watches the
// on-disk index artifacts for out-of-process updates, and persists query
// statistics through the document registry (C5).
type Engine struct {
	mu sync.RWMutex

	bm25Searcher   Searcher
	vectorSearcher Searcher
	fusionConfig   FusionConfig

	registry *store.Registry
	cache    *lru.Cache[cacheKey, cacheEntry]
	cfg      EngineConfig

	autoReload atomic.Bool
	lastCheck  time.Time
	artifacts  []*artifactSource
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineBM25Searcher sets the lexical retriever.
func WithEngineBM25Searcher(s Searcher) EngineOption {
	return func(e *Engine) { e.bm25Searcher = s }
}

// WithEngineVectorSearcher sets the semantic retriever.
func WithEngineVectorSearcher(s Searcher) EngineOption {
	return func(e *Engine) { e.vectorSearcher = s }
}

// WithEngineFusionConfig sets the default C9 fusion configuration; a given
// call's w_lex/w_vec override BM25Weight/SemanticWeight for that call only.
func WithEngineFusionConfig(cfg FusionConfig) EngineOption {
	return func(e *Engine) { e.fusionConfig = cfg }
}

// WithEngineRegistry sets the document registry used for snippet lookup
// and query-statistics persistence.
func WithEngineRegistry(r *store.Registry) EngineOption {
	return func(e *Engine) { e.registry = r }
}

// WithEngineConfig sets the engine's operating parameters.
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithReloadableArtifact registers an on-disk index artifact path whose
// mtime is checked on a schedule; when it advances, reload is invoked and
// the query cache is invalidated.
func WithReloadableArtifact(path string, reload func() error) EngineOption {
	return func(e *Engine) {
		e.artifacts = append(e.artifacts, &artifactSource{path: path, reload: reload})
	}
}

// NewEngine creates a Query Engine. At least one of BM25Searcher or
// VectorSearcher must be set.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		fusionConfig: DefaultFusionConfig(),
		cfg:          DefaultEngineConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.bm25Searcher == nil && e.vectorSearcher == nil {
		return nil, ErrNoSearchers
	}

	cache, err := lru.New[cacheKey, cacheEntry](e.cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	e.cache = cache
	e.autoReload.Store(true)

	return e, nil
}

// SetAutoReload enables or disables the periodic on-disk artifact check.
func (e *Engine) SetAutoReload(enabled bool) {
	e.autoReload.Store(enabled)
}

// SearchHybrid runs both retrievers and fuses with weights wLex/wVec,
// overriding the engine's default fusion weights for this call only.
func (e *Engine) SearchHybrid(ctx context.Context, query string, k int, wLex, wVec float64) ([]SearchResult, error) {
	return e.search(ctx, query, ModeHybrid, k, wLex, wVec)
}

// SearchLexicalOnly runs only the BM25 retriever.
func (e *Engine) SearchLexicalOnly(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return e.search(ctx, query, ModeLex, k, e.fusionConfig.BM25Weight, e.fusionConfig.SemanticWeight)
}

// SearchVectorOnly runs only the vector retriever.
func (e *Engine) SearchVectorOnly(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return e.search(ctx, query, ModeVector, k, e.fusionConfig.BM25Weight, e.fusionConfig.SemanticWeight)
}

// CompareResult holds the Hybrid/Lexical/Vector outcome for the same query,
// for side-by-side inspection (the `compare` operation).
type CompareResult struct {
	Hybrid []SearchResult
	Lex    []SearchResult
	Vector []SearchResult
}

// Compare runs all three search modes for the same query.
func (e *Engine) Compare(ctx context.Context, query string, k int) (*CompareResult, error) {
	hybrid, err := e.SearchHybrid(ctx, query, k, e.fusionConfig.BM25Weight, e.fusionConfig.SemanticWeight)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	lex, err := e.SearchLexicalOnly(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	vec, err := e.SearchVectorOnly(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return &CompareResult{Hybrid: hybrid, Lex: lex, Vector: vec}, nil
}

func (e *Engine) search(ctx context.Context, query string, mode Mode, k int, wLex, wVec float64) ([]SearchResult, error) {
	e.maybeAutoReload(ctx)

	key := cacheKey{query: query, k: k, wLex: wLex, wVec: wVec, mode: mode}
	if cached, ok := e.cacheGet(key); ok {
		return cached, nil
	}

	start := time.Now()
	raw, err := e.runSearch(ctx, query, mode, k, wLex, wVec)
	if err != nil {
		return nil, err
	}

	results := e.toSearchResults(ctx, raw, k)

	e.cache.Add(key, cacheEntry{results: results, at: time.Now()})
	e.recordQuery(ctx, time.Since(start), false)

	return results, nil
}

func (e *Engine) cacheGet(key cacheKey) ([]SearchResult, bool) {
	entry, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.at) >= e.cfg.CacheTTL {
		e.cache.Remove(key)
		return nil, false
	}
	e.recordQuery(context.Background(), 0, true)
	return entry.results, true
}

func (e *Engine) recordQuery(ctx context.Context, latency time.Duration, cacheHit bool) {
	if e.registry == nil {
		return
	}
	_ = e.registry.RecordQuery(ctx, latency, cacheHit)
}

func (e *Engine) runSearch(ctx context.Context, query string, mode Mode, k int, wLex, wVec float64) ([]Result, error) {
	candidates := e.cfg.PerRetrieverCandidates
	if candidates < k {
		candidates = k
	}

	switch mode {
	case ModeLex:
		return e.searchOne(ctx, e.bm25Searcher, query, candidates)
	case ModeVector:
		return e.searchOne(ctx, e.vectorSearcher, query, candidates)
	default:
		return e.searchHybridRaw(ctx, query, candidates, wLex, wVec)
	}
}

func (e *Engine) searchOne(ctx context.Context, s Searcher, query string, limit int) ([]Result, error) {
	if s == nil {
		return []Result{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	return s.Search(ctx, query, limit)
}

func (e *Engine) searchHybridRaw(ctx context.Context, query string, limit int, wLex, wVec float64) ([]Result, error) {
	var bm25Results, vectorResults []Result
	var bm25Err, vectorErr error

	run := func() {
		if e.cfg.ParallelSearch {
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				bm25Results, bm25Err = e.searchOne(gctx, e.bm25Searcher, query, limit)
				return nil
			})
			g.Go(func() error {
				vectorResults, vectorErr = e.searchOne(gctx, e.vectorSearcher, query, limit)
				return nil
			})
			_ = g.Wait()
			return
		}
		bm25Results, bm25Err = e.searchOne(ctx, e.bm25Searcher, query, limit)
		vectorResults, vectorErr = e.searchOne(ctx, e.vectorSearcher, query, limit)
	}
	run()

	if bm25Err != nil && vectorErr != nil {
		return nil, fmt.Errorf("all searchers failed: lexical: %v, vector: %v", bm25Err, vectorErr)
	}
	if bm25Err != nil {
		return vectorResults, nil
	}
	if vectorErr != nil {
		return bm25Results, nil
	}

	cfg := e.fusionConfig
	cfg.BM25Weight = wLex
	cfg.SemanticWeight = wVec
	fusion := &FusionSearcher{bm25: e.bm25Searcher, vector: e.vectorSearcher, config: cfg}
	return fusion.fuseResults(bm25Results, vectorResults), nil
}

func (e *Engine) toSearchResults(ctx context.Context, raw []Result, k int) []SearchResult {
	if k > 0 && len(raw) > k {
		raw = raw[:k]
	}

	results := make([]SearchResult, len(raw))
	for i, r := range raw {
		sr := SearchResult{
			Rank:           i + 1,
			ID:             r.ID,
			Score:          r.Score,
			Origin:         r.Origin,
			MatchedTerms:   r.MatchedTerms,
			PreFusionScore: r.PreFusionScore,
		}
		if e.registry != nil {
			if path, snippet, err := e.registry.DocSnippet(ctx, r.ID); err == nil {
				sr.Path = path
				sr.Snippet = snippet
				sr.FileName = fileNameOf(path)
			}
		}
		results[i] = sr
	}
	return results
}

func fileNameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ForceReload reloads every registered artifact and invalidates the cache
// regardless of mtime, keeping previously-loaded state on any failure
// rather than replacing good state with nothing.
func (e *Engine) ForceReload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, a := range e.artifacts {
		if err := a.reload(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if info, statErr := os.Stat(a.path); statErr == nil {
			a.lastMod = info.ModTime()
		}
	}

	e.cache.Purge()
	if e.registry != nil {
		_ = e.registry.RecordReload(ctx)
	}

	return firstErr
}

// maybeAutoReload checks on-disk artifact mtimes at most once per
// IndexCheckInterval, reloading and invalidating the cache if any advanced.
func (e *Engine) maybeAutoReload(ctx context.Context) {
	if !e.autoReload.Load() || len(e.artifacts) == 0 {
		return
	}

	e.mu.Lock()
	if time.Since(e.lastCheck) < e.cfg.IndexCheckInterval {
		e.mu.Unlock()
		return
	}
	e.lastCheck = time.Now()

	stale := false
	for _, a := range e.artifacts {
		info, err := os.Stat(a.path)
		if err != nil {
			continue
		}
		if info.ModTime().After(a.lastMod) {
			stale = true
			break
		}
	}
	e.mu.Unlock()

	if stale {
		_ = e.ForceReload(ctx)
	}
}
