package core

import (
	"strings"
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestUniqueIDFor(t *testing.T) {
	id := UniqueIDFor(LoaderTypeLocalPath, "/docs/a.txt")

	if !strings.HasPrefix(id, LoaderTypeLocalPath+"_") {
		t.Errorf("UniqueIDFor() = %q, want %s_ prefix", id, LoaderTypeLocalPath)
	}
	if len(id) != len(LoaderTypeLocalPath)+1+16 {
		t.Errorf("UniqueIDFor() = %q, want 16 hex digits after prefix", id)
	}
	if id != UniqueIDFor(LoaderTypeLocalPath, "/docs/a.txt") {
		t.Errorf("UniqueIDFor() is not deterministic")
	}
	if id == UniqueIDFor(LoaderTypeLocalPath, "/docs/b.txt") {
		t.Errorf("UniqueIDFor() collided for different sources")
	}
	if UniqueIDFor(LoaderTypeWeb, "x") == UniqueIDFor(LoaderTypeText, "x") {
		t.Errorf("UniqueIDFor() ignored the loader type")
	}
}

func TestDescriptorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		descriptor ContentDescriptor
		wantKind   DescriptorKind
		wantSource string
	}{
		{"file", File("/a.txt", 10), KindFile, "/a.txt"},
		{"directory", Directory("/docs"), KindDirectory, "/docs"},
		{"url", URL("https://example.com"), KindURL, "https://example.com"},
		{"sitemap", Sitemap("https://example.com/sitemap.xml"), KindSitemap, "https://example.com/sitemap.xml"},
		{"note", Note("hello"), KindNote, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.descriptor.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", tt.descriptor.Kind, tt.wantKind)
			}
			if got := tt.descriptor.Source(); got != tt.wantSource {
				t.Errorf("Source() = %q, want %q", got, tt.wantSource)
			}
		})
	}
}

func TestNoteBytes_CountsUTF8(t *testing.T) {
	if got := Note("héllo").NoteBytes(); got != 6 {
		t.Errorf("NoteBytes() = %d, want 6", got)
	}
}

func TestIngestionOutcome_IsZero(t *testing.T) {
	if !(IngestionOutcome{}).IsZero() {
		t.Errorf("zero outcome should report IsZero")
	}
	if (IngestionOutcome{LoaderType: LoaderTypeText}).IsZero() {
		t.Errorf("outcome with loader type should not report IsZero")
	}
}

func TestWithItemID_DoesNotMutate(t *testing.T) {
	d := Note("x")
	tagged := d.WithItemID("item-1")
	if d.ItemID != "" {
		t.Errorf("WithItemID mutated the receiver")
	}
	if tagged.ItemID != "item-1" {
		t.Errorf("ItemID = %q, want item-1", tagged.ItemID)
	}
}
