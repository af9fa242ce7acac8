package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/nullstride/archivist/internal/errors"
)

func TestLexicalIndex_IndexAndSearch_ReturnsMatchingDoc(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a#0", Content: "the quick brown fox jumps over the lazy dog"},
		{ID: "b#0", Content: "a completely unrelated sentence about gardening"},
	}))

	results, err := idx.Search(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a#0", results[0].DocID)
	assert.ElementsMatch(t, []string{"quick", "fox"}, results[0].MatchedTerms)
}

func TestLexicalIndex_Search_RanksHigherTermFrequencyFirst(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "low#0", Content: "dog mentioned once here"},
		{ID: "high#0", Content: "dog dog dog dog everywhere dog"},
	}))

	results, err := idx.Search(ctx, "dog", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high#0", results[0].DocID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestLexicalIndex_Search_NoMatchReturnsEmpty(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a#0", Content: "hello world"},
	}))

	results, err := idx.Search(ctx, "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLexicalIndex_Search_EmptyIndexReturnsEmpty(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	results, err := idx.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLexicalIndex_Search_RespectsLimit(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	docs := make([]*Document, 0, 5)
	for i := 0; i < 5; i++ {
		docs = append(docs, &Document{ID: string(rune('a' + i)), Content: "shared term"})
	}
	require.NoError(t, idx.Index(ctx, docs))

	results, err := idx.Search(ctx, "shared", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLexicalIndex_Index_ReplacesExistingDoc(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{{ID: "a#0", Content: "apples"}}))
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "a#0", Content: "oranges"}}))

	results, err := idx.Search(ctx, "apples", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "oranges", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestLexicalIndex_Delete_RemovesDoc(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a#0", Content: "hello world"},
		{ID: "b#0", Content: "hello moon"},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"a#0"}))

	results, err := idx.Search(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b#0", results[0].DocID)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b#0"}, ids)
}

func TestLexicalIndex_Clear_RemovesAllDocs(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{{ID: "a#0", Content: "hello"}}))
	require.NoError(t, idx.Clear(ctx))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	stats := idx.Stats()
	assert.Equal(t, 0, stats.DocumentCount)
	assert.Equal(t, 0, stats.TermCount)
}

func TestLexicalIndex_Stats_ReportsDocAndTermCounts(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a#0", Content: "alpha beta"},
		{ID: "b#0", Content: "beta gamma"},
	}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 3, stats.TermCount) // alpha, beta, gamma
	assert.InDelta(t, 2.0, stats.AvgDocLength, 0.001)
}

func TestLexicalIndex_SaveAndLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25.gob")

	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a#0", Content: "the quick brown fox"},
		{ID: "b#0", Content: "the lazy dog sleeps"},
	}))
	require.NoError(t, idx.Save(path))

	loaded := NewLexicalIndex(DefaultBM25Config())
	require.NoError(t, loaded.Load(path))

	results, err := loaded.Search(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a#0", results[0].DocID)
}

func TestLexicalIndex_Load_MissingFileErrors(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	err := idx.Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestLexicalIndex_Save_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "bm25.gob")

	idx := NewLexicalIndex(DefaultBM25Config())
	require.NoError(t, idx.Index(context.Background(), []*Document{{ID: "a#0", Content: "hello"}}))
	require.NoError(t, idx.Save(path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestLexicalIndex_Index_EmptyTokensFails(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()

	err := idx.Index(ctx, []*Document{{ID: "a#0", Content: "   \t  "}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrEmptyTokens)
}

func TestLexicalIndex_Search_EmptyQueryFails(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "a#0", Content: "hello world"}}))

	_, err := idx.Search(ctx, "   ", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrEmptyQuery)
}

func TestLexicalIndex_ClosedIndex_RejectsOperations(t *testing.T) {
	idx := NewLexicalIndex(DefaultBM25Config())
	require.NoError(t, idx.Close())

	ctx := context.Background()
	assert.Error(t, idx.Index(ctx, []*Document{{ID: "a#0", Content: "hello"}}))
	assert.Error(t, idx.Delete(ctx, []string{"a#0"}))
	assert.Error(t, idx.Clear(ctx))
	_, searchErr := idx.Search(ctx, "hello", 10)
	assert.Error(t, searchErr)
	_, idsErr := idx.AllIDs()
	assert.Error(t, idsErr)
}
