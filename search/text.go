package search

import "strings"

// stopWords are ignored when deciding whether a chunk quotes the query.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "how": true,
	"which": true, "does": true,
}

// tokenizeAndFilter lowercases the words of text, trims their punctuation
// and drops stop words.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}*#`_"))

		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// containsAllQueryWords reports whether every significant query word occurs
// in the chunk. A query made only of stop words never matches.
func containsAllQueryWords(chunk, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}

	chunkWords := tokenizeAndFilter(chunk)
	present := make(map[string]bool, len(chunkWords))
	for _, word := range chunkWords {
		present[word] = true
	}

	for _, word := range queryWords {
		if !present[word] {
			return false
		}
	}

	return true
}
