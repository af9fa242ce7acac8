package searcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullstride/archivist/internal/config"
	"github.com/nullstride/archivist/internal/extract"
)

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()

	root := t.TempDir()
	bm25 := &stubSearcher{results: []Result{{ID: "a", Score: 1.0, Origin: OriginLexical}}}
	vec := &stubSearcher{results: []Result{{ID: "b", Score: 0.9, Origin: OriginVector}}}

	e, err := NewEngine(WithEngineBM25Searcher(bm25), WithEngineVectorSearcher(vec))
	require.NoError(t, err)

	ext := extract.New(config.ExtractConfig{MaxFileSize: 1024, PDFTimeout: time.Second}, nil)

	return NewAPI(e, ext, root, 1024), root
}

func TestAPI_Search_DispatchesByMode(t *testing.T) {
	a, _ := newTestAPI(t)

	lex, err := a.Search(context.Background(), "q", ModeLex, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, lex, 1)
	require.Equal(t, "a", lex[0].ID)

	vec, err := a.Search(context.Background(), "q", ModeVector, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, vec, 1)
	require.Equal(t, "b", vec[0].ID)

	hybrid, err := a.Search(context.Background(), "q", ModeHybrid, 10, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, hybrid, 2)
}

func TestAPI_GetFileContent_ReturnsTextForSupportedFile(t *testing.T) {
	a, root := newTestAPI(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello world"), 0o644))

	content, err := a.GetFileContent(context.Background(), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", content)
}

func TestAPI_GetFileContent_NotFound(t *testing.T) {
	a, _ := newTestAPI(t)

	_, err := a.GetFileContent(context.Background(), "missing.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERR_205_NOT_FOUND")
}

func TestAPI_GetFileContent_UnsupportedExtension(t *testing.T) {
	a, root := newTestAPI(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.bin"), []byte("data"), 0o644))

	_, err := a.GetFileContent(context.Background(), "doc.bin")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERR_204_UNSUPPORTED")
}

func TestAPI_GetFileContent_TooLarge(t *testing.T) {
	a, root := newTestAPI(t)
	big := make([]byte, 2048)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))

	_, err := a.GetFileContent(context.Background(), "big.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERR_203_TOO_LARGE")
}

func TestAPI_GetFileContent_EmptyFileIsExtractionFailed(t *testing.T) {
	a, root := newTestAPI(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.txt"), []byte(""), 0o644))

	_, err := a.GetFileContent(context.Background(), "empty.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ERR_201_EXTRACTION_FAILED")
}
