// Package fulltext extracts indexable text from document content and feeds
// it back as an idempotent property update. Extraction runs outside the
// editing transaction; a lost job leaves stale fulltext, never corrupt
// documents.
package fulltext

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Parse normalizes raw text for indexing: HTML tags stripped, entities
// unescaped, split on whitespace and punctuation, lowercased, rejoined with
// single spaces.
func Parse(raw string) string {
	text := tagPattern.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, " ")
}
