package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		query string
		want  bool
	}{
		{"all words present", "Badger stores keys in an LSM tree.", "LSM tree badger", true},
		{"stop words ignored", "Badger stores keys.", "what are the keys", true},
		{"missing word", "Badger stores keys.", "badger values", false},
		{"punctuation and markdown", "## **Sitemaps** (XML)", "sitemaps xml", true},
		{"only stop words", "the and of", "the of", false},
		{"empty query", "anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.chunk, tt.query))
		})
	}
}
