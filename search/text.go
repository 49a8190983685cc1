package search

import (
	"strings"
	"unicode/utf8"
)

// minKeywordLength is the rune length a query token must exceed to count
// toward the keyword boost.
const minKeywordLength = 3

// queryTokens lower-cases query and returns its whitespace-delimited
// tokens longer than minKeywordLength. Repeated tokens are kept.
func queryTokens(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) > minKeywordLength {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// countMatches returns how many tokens occur in content.
// content must already be lower-cased.
func countMatches(content string, tokens []string) int {
	matches := 0
	for _, token := range tokens {
		if strings.Contains(content, token) {
			matches++
		}
	}
	return matches
}
