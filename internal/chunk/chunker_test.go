package chunk

import (
	"strconv"
	"strings"
	"testing"

	"github.com/nullstride/archivist/internal/config"
)

func cfg(size, overlap, minChunk int) config.ChunkConfig {
	return config.ChunkConfig{Size: size, Overlap: overlap, MinChunk: minChunk}
}

func TestSplit_EmptyTextReturnsNoChunks(t *testing.T) {
	if got := Split("", cfg(10, 2, 1)); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSplit_ShortTextBelowMinChunkIsDropped(t *testing.T) {
	got := Split("ab", cfg(10, 2, 5))
	if len(got) != 0 {
		t.Fatalf("expected no chunks, got %v", got)
	}
}

func TestSplit_ExactMinChunkLengthIsKept(t *testing.T) {
	text := strings.Repeat("a", 5)
	got := Split(text, cfg(10, 2, 5))
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %v", got)
	}
}

func TestSplit_StepsByWindowMinusOverlap(t *testing.T) {
	text := strings.Repeat("x", 25)
	got := Split(text, cfg(10, 2, 1))
	// windows start at 0, 8, 16, 24
	if len(got) != 4 {
		t.Fatalf("expected 4 windows, got %d: %v", len(got), got)
	}
}

func TestSplit_LastWindowIsNotPadded(t *testing.T) {
	text := strings.Repeat("x", 22)
	got := Split(text, cfg(10, 2, 1))
	last := got[len(got)-1]
	if len(last) > 10 {
		t.Fatalf("last window should never exceed window size, got len %d", len(last))
	}
}

func TestSplit_IsDeterministic(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog, repeatedly, to pad length"
	c := cfg(15, 3, 2)
	a := Split(text, c)
	b := Split(text, c)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic output: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic output at index %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestSplit_ZeroOverlapStepsByFullSize(t *testing.T) {
	text := strings.Repeat("y", 20)
	got := Split(text, cfg(10, 0, 1))
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
}

func TestToChunks_AssignsContiguousOrdinalsAndCompositeIDs(t *testing.T) {
	text := strings.Repeat("z", 30)
	chunks := ToChunks("doc-1", text, cfg(10, 2, 1))
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Fatalf("expected ordinal %d, got %d", i, c.Ordinal)
		}
		if c.DocID != "doc-1" {
			t.Fatalf("expected doc-1, got %s", c.DocID)
		}
		wantID := "doc-1#" + strconv.Itoa(i)
		if c.ID != wantID {
			t.Fatalf("expected ID %s, got %s", wantID, c.ID)
		}
	}
}

func TestToChunks_EmptyTextReturnsEmptySlice(t *testing.T) {
	chunks := ToChunks("doc-1", "", cfg(10, 2, 1))
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
