// ABOUTME: Test suite for OPML parsing and writing
// ABOUTME: Covers folders, toggle attributes, duplicate feeds and round-trip integrity

package opml

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOPML(t *testing.T) {
	opmlData := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head>
    <title>Syndicated Feeds</title>
  </head>
  <body>
    <outline text="Partners">
      <outline type="rss" text="Partner A" xmlUrl="https://a.example.com/feed" htmlUrl="https://a.example.com" />
      <outline type="rss" text="Partner B" xmlUrl="https://b.example.com/feed" ingest="false" display="false" />
    </outline>
    <outline type="rss" text="No Folder Feed" xmlUrl="https://example.com/feed" />
  </body>
</opml>`

	doc, err := Parse(bytes.NewBufferString(opmlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if doc.Title != "Syndicated Feeds" {
		t.Errorf("Title = %q, want %q", doc.Title, "Syndicated Feeds")
	}

	feeds := doc.AllFeeds()
	if len(feeds) != 3 {
		t.Fatalf("AllFeeds() returned %d feeds, want 3", len(feeds))
	}

	a := feeds[0]
	if a.Folder != "Partners" || a.SiteURL != "https://a.example.com" {
		t.Errorf("feed A = %+v", a)
	}
	if a.Ingest != nil || a.Display != nil {
		t.Errorf("absent toggles should be nil, got ingest=%v display=%v", a.Ingest, a.Display)
	}

	b := feeds[1]
	if b.Ingest == nil || *b.Ingest {
		t.Errorf("feed B ingest should be false, got %v", b.Ingest)
	}
	if b.Display == nil || *b.Display {
		t.Errorf("feed B display should be false, got %v", b.Display)
	}

	if feeds[2].Folder != "" {
		t.Errorf("root feed folder = %q", feeds[2].Folder)
	}
}

func TestParseOPML_BadToggle(t *testing.T) {
	opmlData := `<opml version="2.0"><head><title>x</title></head><body>
<outline type="rss" text="Bad" xmlUrl="https://example.com/feed" ingest="sometimes" />
</body></opml>`

	if _, err := Parse(strings.NewReader(opmlData)); err == nil {
		t.Error("expected error for invalid ingest attribute")
	}
}

func TestOPML_AddFeed(t *testing.T) {
	doc := NewDocument("Test Document")

	if err := doc.AddFeed(Feed{URL: "https://example.com/feed", Title: "Example Feed"}); err != nil {
		t.Fatalf("AddFeed() error = %v", err)
	}
	if err := doc.AddFeed(Feed{URL: "https://example.com/feed", Title: "Again"}); err == nil {
		t.Error("AddFeed() with duplicate URL should fail")
	}

	if err := doc.AddFeed(Feed{URL: "https://example.com/tech", Title: "Tech", Folder: "Tech"}); err != nil {
		t.Fatalf("AddFeed() to folder error = %v", err)
	}
	if err := doc.AddFeed(Feed{URL: "https://example.com/tech2", Title: "Tech 2", Folder: "Tech"}); err != nil {
		t.Fatalf("AddFeed() to existing folder error = %v", err)
	}

	if len(doc.Outlines) != 2 {
		t.Errorf("expected root feed plus one folder, got %d outlines", len(doc.Outlines))
	}
	if len(doc.Outlines[1].Children) != 2 {
		t.Errorf("folder should hold 2 feeds, got %d", len(doc.Outlines[1].Children))
	}
}

func TestOPML_RoundTrip(t *testing.T) {
	off := false
	on := true

	doc := NewDocument("Round Trip Test")
	doc.AddFeed(Feed{URL: "https://example.com/feed1", Title: "Feed 1", Folder: "Folder A", SiteURL: "https://example.com/1"})
	doc.AddFeed(Feed{URL: "https://example.com/feed2", Title: "Feed 2", Folder: "Folder A", Ingest: &off})
	doc.AddFeed(Feed{URL: "https://example.com/feed3", Title: "Feed 3", Display: &off, Ingest: &on})

	tmpFile := filepath.Join(t.TempDir(), "nested", "feeds.opml")
	if err := doc.WriteFile(tmpFile); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc2, err := ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	if doc2.Title != doc.Title {
		t.Errorf("Title = %q, want %q", doc2.Title, doc.Title)
	}

	feeds1 := doc.AllFeeds()
	feeds2 := doc2.AllFeeds()
	if len(feeds2) != len(feeds1) {
		t.Fatalf("AllFeeds() = %d feeds, want %d", len(feeds2), len(feeds1))
	}

	for i, f1 := range feeds1 {
		f2 := feeds2[i]
		if f1.URL != f2.URL || f1.Title != f2.Title || f1.Folder != f2.Folder || f1.SiteURL != f2.SiteURL {
			t.Errorf("feed %d: got %+v, want %+v", i, f2, f1)
		}
		if formatToggle(f1.Ingest) != formatToggle(f2.Ingest) {
			t.Errorf("feed %d ingest: got %q, want %q", i, formatToggle(f2.Ingest), formatToggle(f1.Ingest))
		}
		if formatToggle(f1.Display) != formatToggle(f2.Display) {
			t.Errorf("feed %d display: got %q, want %q", i, formatToggle(f2.Display), formatToggle(f1.Display))
		}
	}
}

func TestOPML_Write(t *testing.T) {
	doc := NewDocument("Test")
	off := false
	doc.AddFeed(Feed{URL: "https://example.com/feed", Title: "Example", Display: &off})

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{`<?xml version="1.0"`, `<opml version="2.0">`, `xmlUrl="https://example.com/feed"`, `display="false"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s", want)
		}
	}
	if strings.Contains(output, "ingest=") {
		t.Error("unset ingest should be omitted")
	}
}
