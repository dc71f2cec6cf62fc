// Package tokenizer provides text normalisation for the recipe index. It
// lower-cases input and splits on non-alphanumeric boundaries, which strips
// punctuation as a side effect.
//
// The same tokenizer must be applied at index time and query time; any
// asymmetry breaks retrieval.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercased terms. Empty or whitespace-only input
// yields an empty slice.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
