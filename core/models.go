package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Loader type names reported in IngestionOutcome.LoaderType and used as
// unique id prefixes.
const (
	LoaderTypeLocalPath = "LocalPathLoader"
	LoaderTypeWeb       = "WebLoader"
	LoaderTypeSitemap   = "SitemapLoader"
	LoaderTypeText      = "TextLoader"
)

// UniqueIDFor returns the loader id for a source. The same loader type and
// source always produce the same id.
func UniqueIDFor(loaderType, source string) string {
	return fmt.Sprintf("%s_%016x", loaderType, uint64(IDFromContent(loaderType+"\x00"+source)))
}

// DescriptorKind tags the variant held by a ContentDescriptor.
type DescriptorKind int

const (
	// KindFile is a single local file.
	KindFile DescriptorKind = iota + 1
	// KindDirectory is a local directory walked recursively.
	KindDirectory
	// KindURL is a single web page.
	KindURL
	// KindSitemap is a sitemap whose pages are crawled.
	KindSitemap
	// KindNote is free-form text supplied inline.
	KindNote
)

func (k DescriptorKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindURL:
		return "url"
	case KindSitemap:
		return "sitemap"
	case KindNote:
		return "note"
	default:
		return fmt.Sprintf("DescriptorKind(%d)", int(k))
	}
}

// ContentDescriptor describes one item a caller wants ingested. Only the
// fields belonging to Kind are meaningful; build values with File, Directory,
// URL, Sitemap or Note.
type ContentDescriptor struct {
	Kind DescriptorKind

	// Path is set for KindFile and KindDirectory.
	Path string
	// SizeBytes is the file size for KindFile. Zero means unknown.
	SizeBytes uint64
	// Address is set for KindURL and KindSitemap.
	Address string
	// Text is set for KindNote.
	Text string

	// ItemID is the caller's identifier for the item, echoed in progress events.
	ItemID string
}

// File describes a local file of the given size.
func File(path string, sizeBytes uint64) ContentDescriptor {
	return ContentDescriptor{Kind: KindFile, Path: path, SizeBytes: sizeBytes}
}

// Directory describes a local directory.
func Directory(path string) ContentDescriptor {
	return ContentDescriptor{Kind: KindDirectory, Path: path}
}

// URL describes a single web page.
func URL(address string) ContentDescriptor {
	return ContentDescriptor{Kind: KindURL, Address: address}
}

// Sitemap describes a sitemap document.
func Sitemap(address string) ContentDescriptor {
	return ContentDescriptor{Kind: KindSitemap, Address: address}
}

// Note describes inline text.
func Note(text string) ContentDescriptor {
	return ContentDescriptor{Kind: KindNote, Text: text}
}

// WithItemID returns a copy of d carrying the caller's item id.
func (d ContentDescriptor) WithItemID(id string) ContentDescriptor {
	d.ItemID = id
	return d
}

// Source returns the path, address or text identifying the content.
func (d ContentDescriptor) Source() string {
	switch d.Kind {
	case KindFile, KindDirectory:
		return d.Path
	case KindURL, KindSitemap:
		return d.Address
	case KindNote:
		return d.Text
	default:
		return ""
	}
}

// NoteBytes is the UTF-8 encoded length of a note's text.
func (d ContentDescriptor) NoteBytes() uint64 {
	return uint64(len(d.Text))
}

// IngestionOutcome is the result of ingesting one descriptor. The zero value
// is the sentinel outcome reported for failed units.
type IngestionOutcome struct {
	EntriesAdded uint
	UniqueID     string
	UniqueIDs    []string // completion order, directories only
	LoaderType   string
}

// IsZero reports whether o is the sentinel outcome.
func (o IngestionOutcome) IsZero() bool {
	return o.EntriesAdded == 0 && o.UniqueID == "" && len(o.UniqueIDs) == 0 && o.LoaderType == ""
}

// EmbeddingParams selects the embedding model used by a knowledge base.
type EmbeddingParams struct {
	Provider   string // "openai" or "ollama"
	Host       string
	Model      string
	APIKey     string
	Dimensions int // expected vector length, 0 to accept any
	BatchSize  int
}

// BaseParams identifies a knowledge base and carries the settings needed to
// open it. It is looked up per request and never retained by the scheduler.
type BaseParams struct {
	ID           string
	Embedding    EmbeddingParams
	ChunkSize    int
	ChunkOverlap int
}

// Chunk is a ranked search hit.
type Chunk struct {
	Content    string
	Score      float32
	UniqueID   string
	LoaderType string
	Source     string
	Position   int
}

// LoaderRecord is the ledger entry for one ingested source.
type LoaderRecord struct {
	BaseID       string
	UniqueID     string
	LoaderType   string
	Source       string
	EntriesAdded uint64
	AddedAt      time.Time
}
