package searcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nullstride/archivist/internal/errors"
	"github.com/nullstride/archivist/internal/extract"
)

// QueryAPI is the query surface (C11) consumed in-process by the CLI.
// Wire framing and transport are out of scope; this interface exists so
// cmd/archivist's subcommands depend on a narrow contract rather than the
// full Engine.
type QueryAPI interface {
	// Search runs mode (ModeHybrid/ModeLex/ModeVector) against query,
	// returning at most maxResults entries. wLex/wVec override the
	// engine's default fusion weights, a zero value keeping the default
	// for that weight; both are ignored outside ModeHybrid.
	Search(ctx context.Context, query string, mode Mode, maxResults int, wLex, wVec float64) ([]SearchResult, error)

	// GetFileContent returns the extracted text of path, subject to the
	// same extension/size checks ingestion applies. Fails with a
	// CodeNotFound/CodeUnsupported/CodeTooLarge/CodeExtractionFailed
	// *errors.IndexError.
	GetFileContent(ctx context.Context, path string) (string, error)
}

// API implements QueryAPI over an Engine and the same Extractor (C1)
// ingestion uses, so ad-hoc content fetches apply identical policy.
type API struct {
	engine      *Engine
	extractor   *extract.Extractor
	rootDir     string
	maxFileSize int64
}

// NewAPI builds a QueryAPI. rootDir anchors relative paths passed to
// GetFileContent; maxFileSize mirrors the extractor's own cap, checked
// separately here so an oversized file reports CodeTooLarge rather than
// the extractor's opaque CodeExtractionFailed.
func NewAPI(engine *Engine, extractor *extract.Extractor, rootDir string, maxFileSize int64) *API {
	return &API{engine: engine, extractor: extractor, rootDir: rootDir, maxFileSize: maxFileSize}
}

func (a *API) Search(ctx context.Context, query string, mode Mode, maxResults int, wLex, wVec float64) ([]SearchResult, error) {
	switch mode {
	case ModeLex:
		return a.engine.SearchLexicalOnly(ctx, query, maxResults)
	case ModeVector:
		return a.engine.SearchVectorOnly(ctx, query, maxResults)
	default:
		if wLex == 0 {
			wLex = a.engine.fusionConfig.BM25Weight
		}
		if wVec == 0 {
			wVec = a.engine.fusionConfig.SemanticWeight
		}
		return a.engine.SearchHybrid(ctx, query, maxResults, wLex, wVec)
	}
}

func (a *API) GetFileContent(ctx context.Context, path string) (string, error) {
	full := filepath.Join(a.rootDir, path)

	info, err := os.Stat(full)
	if err != nil {
		return "", errors.New(errors.CodeNotFound, "file not found: "+path, err)
	}
	if info.IsDir() {
		return "", errors.New(errors.CodeUnsupported, "path is a directory: "+path, nil)
	}

	ext := strings.ToLower(filepath.Ext(full))
	if ext != ".txt" && ext != ".md" && ext != ".pdf" {
		return "", errors.New(errors.CodeUnsupported, "unsupported file extension: "+ext, nil)
	}
	if a.maxFileSize > 0 && info.Size() > a.maxFileSize {
		return "", errors.New(errors.CodeTooLarge, "file exceeds max size: "+path, nil)
	}

	content := a.extractor.Extract(ctx, full)
	if content == "" {
		return "", errors.New(errors.CodeExtractionFailed, "no extractable content: "+path, nil)
	}
	return content, nil
}

var _ QueryAPI = (*API)(nil)
