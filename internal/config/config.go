// Package config loads and validates the process configuration described
// in the design document's ambient stack section: a single nested struct
// tree unmarshalled from YAML, defaulted before any file is read so a
// missing or partial config file still produces a runnable process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nullstride/archivist/internal/errors"
)

// Config is the complete process configuration, one nested struct per
// subsystem.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Watch    WatchConfig    `yaml:"watch"`
	Extract  ExtractConfig  `yaml:"extract"`
	Chunk    ChunkConfig    `yaml:"chunk"`
	Embed    EmbedConfig    `yaml:"embed"`
	Lexical  LexicalConfig  `yaml:"lexical"`
	Vector   VectorConfig   `yaml:"vector"`
	Debounce DebounceConfig `yaml:"debounce"`
	Fusion   FusionConfig   `yaml:"fusion"`
	Query    QueryConfig    `yaml:"query"`
	Notify   NotifyConfig   `yaml:"notify"`
	Index    IndexConfig    `yaml:"index"`
}

// WatchConfig configures the watched directory tree (C7).
type WatchConfig struct {
	Root            string   `yaml:"root"`
	Recursive       bool     `yaml:"recursive"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// ExtractConfig configures the document extractor (C1).
type ExtractConfig struct {
	MaxFileSize int64         `yaml:"max_file_size"`
	PDFTimeout  time.Duration `yaml:"pdf_timeout"`
}

// ChunkConfig configures the sliding-window chunker (C2).
type ChunkConfig struct {
	Size     int `yaml:"size"`
	Overlap  int `yaml:"overlap"`
	MinChunk int `yaml:"min_chunk"`
}

// EmbedConfig configures batch encoding against the (externally supplied)
// embedding model.
type EmbedConfig struct {
	Provider  string `yaml:"provider"` // ollama | mlx | static
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"`
}

// LexicalConfig configures the BM25 retriever (C3).
type LexicalConfig struct {
	K1       float64 `yaml:"k1"`
	B        float64 `yaml:"b"`
	MinScore float64 `yaml:"min_score"`
}

// VectorConfig configures the ANN retriever (C4).
type VectorConfig struct {
	MinSimilarity  float64 `yaml:"min_similarity"`
	DistanceMetric string  `yaml:"distance_metric"` // cosine | l2 | dot
}

// DebounceConfig configures the per-path watch debouncer (C7).
type DebounceConfig struct {
	RebuildDelay time.Duration `yaml:"rebuild_delay"`
}

// FusionConfig configures the RRF reranker (C9).
type FusionConfig struct {
	RRFK                   int     `yaml:"rrf_k"`
	PerRetrieverCandidates int     `yaml:"per_retriever_candidates"`
	FinalResultCount       int     `yaml:"final_result_count"`
	NormalizeWeights       bool    `yaml:"normalize_weights"`
	MinScore               float64 `yaml:"min_score"`
	BM25Weight             float64 `yaml:"bm25_weight"`
	SemanticWeight         float64 `yaml:"semantic_weight"`
}

// QueryConfig configures the query engine (C8).
type QueryConfig struct {
	SearchTimeout      time.Duration `yaml:"search_timeout"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheSize          int           `yaml:"cache_size"`
	IndexCheckInterval time.Duration `yaml:"index_check_interval"`
	ParallelSearch     bool          `yaml:"parallel_search"`
}

// NotifyConfig configures the update notifier (C10).
type NotifyConfig struct {
	CooldownPeriod time.Duration `yaml:"cooldown_period"`
}

// IndexConfig configures the index manager (C6).
type IndexConfig struct {
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	MaxWorkers       int           `yaml:"max_workers"`
}

// Defaults returns a Config populated with every default named in the
// design document's configuration surface table.
func Defaults() *Config {
	return &Config{
		DataDir: ".archivist",
		Watch: WatchConfig{
			Root:      ".",
			Recursive: true,
		},
		Extract: ExtractConfig{
			MaxFileSize: 10 * 1024 * 1024,
			PDFTimeout:  60 * time.Second,
		},
		Chunk: ChunkConfig{
			Size:     500,
			Overlap:  100,
			MinChunk: 100,
		},
		Embed: EmbedConfig{
			Provider:  "ollama",
			BatchSize: 32,
		},
		Lexical: LexicalConfig{
			K1:       1.5,
			B:        0.75,
			MinScore: 0.1,
		},
		Vector: VectorConfig{
			MinSimilarity:  0.3,
			DistanceMetric: "cosine",
		},
		Debounce: DebounceConfig{
			RebuildDelay: 750 * time.Millisecond,
		},
		Fusion: FusionConfig{
			RRFK:                   60,
			PerRetrieverCandidates: 20,
			FinalResultCount:       10,
			NormalizeWeights:       true,
			BM25Weight:             0.35,
			SemanticWeight:         0.65,
		},
		Query: QueryConfig{
			SearchTimeout:      30 * time.Second,
			CacheTTL:           5 * time.Minute,
			CacheSize:          256,
			IndexCheckInterval: 2 * time.Second,
			ParallelSearch:     true,
		},
		Notify: NotifyConfig{
			CooldownPeriod: 5 * time.Second,
		},
		Index: IndexConfig{
			AutosaveInterval: 30 * time.Second,
			MaxWorkers:       runtime.NumCPU(),
		},
	}
}

// Load reads path (if it exists) as YAML, overlaying Defaults(), and
// validates the result. A missing file is not an error — Defaults() alone
// is a runnable configuration.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, errors.Wrap(errors.CodeConfigInvalid, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeConfigInvalid, fmt.Sprintf("parsing %s: %v", path, err), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the boundary conditions named in the design document's
// testable properties (§8): strict chunk-overlap/chunk-size ordering,
// weight and probability ranges, and positive durations.
func (c *Config) Validate() error {
	if c.Chunk.Overlap < 0 {
		return errors.New(errors.CodeConfigInvalid, "chunk.overlap must be non-negative", nil)
	}
	if c.Chunk.Overlap >= c.Chunk.Size {
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("chunk.overlap (%d) must be strictly less than chunk.size (%d)", c.Chunk.Overlap, c.Chunk.Size), nil).
			WithSuggestion("reduce chunk.overlap or increase chunk.size")
	}
	if c.Chunk.MinChunk < 0 {
		return errors.New(errors.CodeConfigInvalid, "chunk.min_chunk must be non-negative", nil)
	}
	if c.Extract.MaxFileSize <= 0 {
		return errors.New(errors.CodeConfigInvalid, "extract.max_file_size must be positive", nil)
	}
	if c.Extract.PDFTimeout <= 0 {
		return errors.New(errors.CodeConfigInvalid, "extract.pdf_timeout must be positive", nil)
	}
	if c.Lexical.K1 < 0 {
		return errors.New(errors.CodeConfigInvalid, "lexical.k1 must be non-negative", nil)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return errors.New(errors.CodeConfigInvalid, "lexical.b must be in [0,1]", nil)
	}
	switch c.Vector.DistanceMetric {
	case "cosine", "l2", "dot":
	default:
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("vector.distance_metric must be cosine, l2, or dot, got %q", c.Vector.DistanceMetric), nil)
	}
	if c.Fusion.RRFK <= 0 {
		return errors.New(errors.CodeConfigInvalid, "fusion.rrf_k must be positive", nil)
	}
	if c.Fusion.PerRetrieverCandidates <= 0 {
		return errors.New(errors.CodeConfigInvalid, "fusion.per_retriever_candidates must be positive", nil)
	}
	if c.Fusion.BM25Weight < 0 || c.Fusion.SemanticWeight < 0 {
		return errors.New(errors.CodeConfigInvalid, "fusion weights must be non-negative", nil)
	}
	if c.Query.SearchTimeout <= 0 {
		return errors.New(errors.CodeConfigInvalid, "query.search_timeout must be positive", nil)
	}
	if c.Index.MaxWorkers <= 0 {
		return errors.New(errors.CodeConfigInvalid, "index.max_workers must be positive", nil)
	}
	return nil
}

// WriteYAML serializes c to path, overwriting any existing file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.CodePersistFailed, err)
	}
	return nil
}

// FindProjectRoot walks up from start looking for a .git directory or an
// existing archivist config/data directory, falling back to start itself.
func FindProjectRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err)
	}

	dir := abs
	for {
		if dirExists(filepath.Join(dir, ".git")) || dirExists(filepath.Join(dir, ".archivist")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
