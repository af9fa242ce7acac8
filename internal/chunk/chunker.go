// Package chunk implements the chunker (C2): a deterministic sliding
// window over extracted document text.
//
// This is a deliberate narrowing from this codebase's original
// tree-sitter-aware chunker (function/class-boundary splitting per
// language): the corpus here is prose/Markdown/PDF text, which carries no
// AST to split along, so a plain character-window chunker is what the
// domain calls for.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/nullstride/archivist/internal/config"
	"github.com/nullstride/archivist/internal/store"
)

// Split produces the ordered sequence of windows over text using a
// sliding window of width cfg.Size characters stepping cfg.Size-cfg.Overlap
// characters. A window is emitted only if its trimmed length is at least
// cfg.MinChunk. The last window is never padded. Split is pure: the same
// (text, cfg) always yields the same sequence.
func Split(text string, cfg config.ChunkConfig) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 || cfg.Size <= 0 {
		return nil
	}

	step := cfg.Size - cfg.Overlap
	if step <= 0 {
		step = 1
	}

	var windows []string
	for start := 0; start < n; start += step {
		end := start + cfg.Size
		if end > n {
			end = n
		}

		window := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(window) >= cfg.MinChunk {
			windows = append(windows, window)
		}

		if end == n {
			break
		}
	}

	return windows
}

// ToChunks runs Split over text and wraps each surviving window as a
// store.Chunk keyed "docID#ordinal", in document order.
func ToChunks(docID, text string, cfg config.ChunkConfig) []*store.Chunk {
	windows := Split(text, cfg)
	chunks := make([]*store.Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, &store.Chunk{
			ID:      store.ChunkID(docID, i),
			DocID:   docID,
			Ordinal: i,
			Content: w,
		})
	}
	return chunks
}
