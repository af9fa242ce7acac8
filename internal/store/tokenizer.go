package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text on whitespace and punctuation, lowercases each
// token, and suppresses empty tokens. Unlike source-code tokenizers this
// does not split camelCase or snake_case identifiers: the indexed corpus
// is prose, Markdown, and PDF text, not source code.
func Tokenize(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		lower := strings.ToLower(t)
		if lower != "" {
			result = append(result, lower)
		}
	}
	return result
}
