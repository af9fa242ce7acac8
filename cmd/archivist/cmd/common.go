// Package cmd provides the Archivist CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nullstride/archivist/internal/config"
	"github.com/nullstride/archivist/internal/embed"
	"github.com/nullstride/archivist/internal/extract"
	"github.com/nullstride/archivist/internal/index"
	"github.com/nullstride/archivist/internal/logging"
	"github.com/nullstride/archivist/internal/store"
	"github.com/nullstride/archivist/pkg/indexer"
	"github.com/nullstride/archivist/pkg/searcher"
)

// artifact paths, relative to DataDir, shared by every command that opens
// the index.
const (
	bm25FileName       = "bm25.gob"
	vectorDirName      = "vectors"
	metadataFileName   = "metadata.db"
	checkpointLockFile = "checkpoint.lock"
)

// projectPaths resolves the project root (from cwd or an explicit arg) and
// the data directory nested under it.
type projectPaths struct {
	root    string
	dataDir string
}

func resolveProject(path string) (projectPaths, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return projectPaths{}, fmt.Errorf("resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}

	return projectPaths{root: root, dataDir: filepath.Join(root, ".archivist")}, nil
}

// loadConfig reads the project config, falling back to defaults when absent.
func loadConfig(root string) *config.Config {
	cfg, err := config.Load(filepath.Join(root, ".archivist.yaml"))
	if err != nil {
		slog.Warn("config load failed, using defaults", "err", err)
		return config.Defaults()
	}
	return cfg
}

// setupFileLogging wires file-only logging under dataDir so CLI output stays
// clean of log lines; returns a cleanup func safe to defer unconditionally.
func setupFileLogging(dataDir string) func() {
	logger, cleanup, err := logging.Setup(logging.DefaultConfig(dataDir))
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// ingestComponents bundles everything IngestPath/BulkScan/watch-dispatch need.
type ingestComponents struct {
	manager  *index.Manager
	registry *store.Registry
	hybrid   *indexer.HybridIndexer
	embedder embed.Embedder
}

// buildIngestComponents wires the extractor, chunker-driven hybrid indexer,
// registry, and index manager for paths under pp, loading any persisted
// artifacts that already exist.
func buildIngestComponents(ctx context.Context, pp projectPaths, cfg *config.Config) (*ingestComponents, error) {
	if err := os.MkdirAll(pp.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	registry, err := store.OpenRegistry(filepath.Join(pp.dataDir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	lexIdx := store.NewLexicalIndex(store.BM25Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B, MinScore: cfg.Lexical.MinScore})
	bm25Indexer, err := indexer.NewBM25Indexer(indexer.WithStore(lexIdx))
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("create bm25 indexer: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embed.Provider), cfg.Embed.Model)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vecStore, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	vecIndexer, err := indexer.NewVectorIndexer(indexer.WithEmbedder(embedder), indexer.WithVectorStore(vecStore))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector indexer: %w", err)
	}

	hybrid, err := indexer.NewHybridIndexer(indexer.WithBM25(bm25Indexer), indexer.WithVector(vecIndexer))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create hybrid indexer: %w", err)
	}

	bm25Path := filepath.Join(pp.dataDir, bm25FileName)
	vectorPath := filepath.Join(pp.dataDir, vectorDirName)
	if err := hybrid.Load(bm25Path, vectorPath); err != nil {
		slog.Warn("load existing index failed, starting from empty state", "err", err)
	}

	extractor := extract.New(cfg.Extract, nil)

	mgr := index.NewManager(index.ManagerConfig{
		RootDir:          pp.root,
		Chunk:            cfg.Chunk,
		AutosaveInterval: cfg.Index,
		LockPath:         filepath.Join(pp.dataDir, checkpointLockFile),
		BM25Path:         bm25Path,
		VectorPath:       vectorPath,
	}, extractor, hybrid, registry, nil)

	return &ingestComponents{manager: mgr, registry: registry, hybrid: hybrid, embedder: embedder}, nil
}

func (ic *ingestComponents) Close() {
	_ = ic.embedder.Close()
	_ = ic.registry.Close()
}

// buildQueryAPI wires a read-only QueryAPI over whatever is currently
// persisted under pp.dataDir, without constructing an index manager.
func buildQueryAPI(ctx context.Context, pp projectPaths, cfg *config.Config) (*searcher.API, func(), error) {
	registry, err := store.OpenRegistry(filepath.Join(pp.dataDir, metadataFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}

	lexIdx := store.NewLexicalIndex(store.BM25Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B, MinScore: cfg.Lexical.MinScore})
	bm25Path := filepath.Join(pp.dataDir, bm25FileName)
	if err := lexIdx.Load(bm25Path); err != nil {
		slog.Warn("bm25 load failed, starting empty", "err", err)
	}
	bm25Searcher, err := searcher.NewBM25Searcher(searcher.WithBM25Store(lexIdx))
	if err != nil {
		_ = registry.Close()
		return nil, nil, fmt.Errorf("create bm25 searcher: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embed.Provider), cfg.Embed.Model)
	if err != nil {
		_ = registry.Close()
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	vecStore, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("create vector store: %w", err)
	}
	vectorPath := filepath.Join(pp.dataDir, vectorDirName)
	if err := vecStore.Load(vectorPath); err != nil {
		slog.Warn("vector store load failed, starting empty", "err", err)
	}
	vecSearcher, err := searcher.NewVectorSearcher(searcher.WithSearchEmbedder(embedder), searcher.WithSearchVectorStore(vecStore))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("create vector searcher: %w", err)
	}

	engine, err := searcher.NewEngine(
		searcher.WithEngineBM25Searcher(bm25Searcher),
		searcher.WithEngineVectorSearcher(vecSearcher),
		searcher.WithEngineRegistry(registry),
		searcher.WithEngineFusionConfig(searcher.FusionConfig{
			BM25Weight:       cfg.Fusion.BM25Weight,
			SemanticWeight:   cfg.Fusion.SemanticWeight,
			RRFConstant:      cfg.Fusion.RRFK,
			MaxInput:         cfg.Fusion.PerRetrieverCandidates,
			NormalizeWeights: cfg.Fusion.NormalizeWeights,
			MinScore:         cfg.Fusion.MinScore,
		}),
		searcher.WithReloadableArtifact(bm25Path, func() error { return lexIdx.Load(bm25Path) }),
		searcher.WithReloadableArtifact(vectorPath, func() error { return vecStore.Load(vectorPath) }),
	)
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}

	extractor := extract.New(cfg.Extract, nil)
	api := searcher.NewAPI(engine, extractor, pp.root, cfg.Extract.MaxFileSize)

	cleanup := func() {
		_ = embedder.Close()
		_ = registry.Close()
	}
	return api, cleanup, nil
}

// serveComponents bundles the manager and API for a long-running serve
// process. Unlike buildIngestComponents/buildQueryAPI, the BM25 and vector
// stores here are shared between the ingest and query sides, so a write from
// the watcher is immediately visible to the next query with no artifact
// reload round-trip.
type serveComponents struct {
	manager  *index.Manager
	api      *searcher.API
	registry *store.Registry
	embedder embed.Embedder
}

func buildServeComponents(ctx context.Context, pp projectPaths, cfg *config.Config) (*serveComponents, error) {
	if err := os.MkdirAll(pp.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	registry, err := store.OpenRegistry(filepath.Join(pp.dataDir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	bm25Path := filepath.Join(pp.dataDir, bm25FileName)
	vectorPath := filepath.Join(pp.dataDir, vectorDirName)

	lexIdx := store.NewLexicalIndex(store.BM25Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B, MinScore: cfg.Lexical.MinScore})
	if err := lexIdx.Load(bm25Path); err != nil {
		slog.Warn("bm25 load failed, starting empty", "err", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embed.Provider), cfg.Embed.Model)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vecStore, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if err := vecStore.Load(vectorPath); err != nil {
		slog.Warn("vector store load failed, starting empty", "err", err)
	}

	bm25Indexer, err := indexer.NewBM25Indexer(indexer.WithStore(lexIdx))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create bm25 indexer: %w", err)
	}
	vecIndexer, err := indexer.NewVectorIndexer(indexer.WithEmbedder(embedder), indexer.WithVectorStore(vecStore))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector indexer: %w", err)
	}
	hybrid, err := indexer.NewHybridIndexer(indexer.WithBM25(bm25Indexer), indexer.WithVector(vecIndexer))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create hybrid indexer: %w", err)
	}

	extractor := extract.New(cfg.Extract, nil)
	mgr := index.NewManager(index.ManagerConfig{
		RootDir:          pp.root,
		Chunk:            cfg.Chunk,
		AutosaveInterval: cfg.Index,
		LockPath:         filepath.Join(pp.dataDir, checkpointLockFile),
		BM25Path:         bm25Path,
		VectorPath:       vectorPath,
	}, extractor, hybrid, registry, nil)

	bm25Searcher, err := searcher.NewBM25Searcher(searcher.WithBM25Store(lexIdx))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create bm25 searcher: %w", err)
	}
	vecSearcher, err := searcher.NewVectorSearcher(searcher.WithSearchEmbedder(embedder), searcher.WithSearchVectorStore(vecStore))
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector searcher: %w", err)
	}

	engine, err := searcher.NewEngine(
		searcher.WithEngineBM25Searcher(bm25Searcher),
		searcher.WithEngineVectorSearcher(vecSearcher),
		searcher.WithEngineRegistry(registry),
		searcher.WithEngineFusionConfig(searcher.FusionConfig{
			BM25Weight:       cfg.Fusion.BM25Weight,
			SemanticWeight:   cfg.Fusion.SemanticWeight,
			RRFConstant:      cfg.Fusion.RRFK,
			MaxInput:         cfg.Fusion.PerRetrieverCandidates,
			NormalizeWeights: cfg.Fusion.NormalizeWeights,
			MinScore:         cfg.Fusion.MinScore,
		}),
	)
	if err != nil {
		_ = registry.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	api := searcher.NewAPI(engine, extractor, pp.root, cfg.Extract.MaxFileSize)

	return &serveComponents{manager: mgr, api: api, registry: registry, embedder: embedder}, nil
}

func (sc *serveComponents) Close() {
	_ = sc.embedder.Close()
	_ = sc.registry.Close()
}
