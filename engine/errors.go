package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrLedgerRequired is returned when no loader ledger is provided.
	ErrLedgerRequired = errors.New("loader ledger required")

	// ErrUnsupportedDescriptor is returned for descriptor kinds a call cannot ingest.
	ErrUnsupportedDescriptor = errors.New("unsupported descriptor for this operation")

	// ErrUnsupportedContent is returned for files that are not UTF-8 text.
	ErrUnsupportedContent = errors.New("content is not text")

	// ErrEmptySitemap is returned when a sitemap lists no pages.
	ErrEmptySitemap = errors.New("sitemap lists no pages")

	// ErrNothingLoaded is returned when every page of a sitemap failed to load.
	ErrNothingLoaded = errors.New("no sitemap page could be loaded")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
