// ABOUTME: Test suite for group and item models
// ABOUTME: Covers key derivation, cache headers, field diffs and state parsing

package models

import (
	"testing"
	"time"

	"github.com/harper/syndicate/internal/hash"
)

func TestNewSourceGroup(t *testing.T) {
	url := "https://example.com/feed.xml"
	g := NewSourceGroup(url, "Example", "https://example.com/")

	if g.GroupKey != hash.Key(url) {
		t.Errorf("GroupKey = %q, want hash of feed URL", g.GroupKey)
	}
	if g.ID == "" {
		t.Error("expected group ID to be generated, got empty string")
	}
	if g.CreatedAt.IsZero() || g.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if g.Link() != "https://example.com/" {
		t.Errorf("Link() = %q, want site link", g.Link())
	}
}

func TestSourceGroup_SetCacheHeaders(t *testing.T) {
	g := NewSourceGroup("https://example.com/feed.xml", "Example", "")

	etag := `"abc123"`
	lastModified := "Mon, 02 Jan 2006 15:04:05 GMT"
	g.SetCacheHeaders(etag, lastModified)

	if g.ETag == nil || *g.ETag != etag {
		t.Errorf("expected ETag to be %q, got %v", etag, g.ETag)
	}
	if g.LastModified == nil || *g.LastModified != lastModified {
		t.Errorf("expected LastModified to be %q, got %v", lastModified, g.LastModified)
	}

	// Empty values leave existing headers alone
	g.SetCacheHeaders("", "")
	if g.ETag == nil || *g.ETag != etag {
		t.Error("empty etag should not clear the stored value")
	}
	if g.Link() != g.FeedURL {
		t.Error("Link() should fall back to the feed URL without a site link")
	}
}

func TestNewSyndicatedItem(t *testing.T) {
	published := time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fields := ItemFields{Title: "Holiday Break", Body: "<p>b</p>", Summary: "s", SourcePermalink: "https://example.com/p"}

	item := NewSyndicatedItem("group", "guid-1", fields, published, now)

	if item.ItemKey != hash.Key("guid-1") {
		t.Errorf("ItemKey = %q, want hash of guid", item.ItemKey)
	}
	if item.Slug != item.ItemKey {
		t.Errorf("Slug = %q, want item key", item.Slug)
	}
	if item.State != StatePublished {
		t.Errorf("State = %q, want published", item.State)
	}
	if !item.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", item.PublishedAt, published)
	}
	if !item.ModifiedAt.Equal(now) {
		t.Errorf("ModifiedAt = %v, want %v", item.ModifiedAt, now)
	}
	if !item.Fields().Equal(fields) {
		t.Error("Fields() should round-trip the supplied fields")
	}
}

func TestItemFields_Diff(t *testing.T) {
	base := ItemFields{Title: "t", Body: "b", Summary: "s", SourcePermalink: "p"}

	tests := []struct {
		name   string
		change func(f *ItemFields)
		want   []string
	}{
		{"unchanged", func(f *ItemFields) {}, nil},
		{"title", func(f *ItemFields) { f.Title = "t2" }, []string{FieldTitle}},
		{"summary and permalink", func(f *ItemFields) {
			f.Summary = "s2"
			f.SourcePermalink = "p2"
		}, []string{FieldSummary, FieldPermalink}},
		{"body", func(f *ItemFields) { f.Body = "b2" }, []string{FieldBody}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.change(&other)
			got := base.Diff(other)
			if len(got) != len(tt.want) {
				t.Fatalf("Diff() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Diff()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if base.Equal(other) != (len(tt.want) == 0) {
				t.Error("Equal() disagrees with Diff()")
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"published", StatePublished, false},
		{"Expired", StateExpired, false},
		{"suppressed", StateSuppressed, false},
		{"draft", StateSuppressed, false},
		{"trash", StateSuppressed, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseState(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrefixedTitle(t *testing.T) {
	if got := PrefixedTitle("WordPress News", "Holiday Break"); got != "WordPress News: Holiday Break" {
		t.Errorf("PrefixedTitle() = %q", got)
	}
	if got := PrefixedTitle("", "Holiday Break"); got != "Holiday Break" {
		t.Errorf("PrefixedTitle() without group = %q", got)
	}
	if TrashedSlug("abc") != "abc__trashed" {
		t.Errorf("TrashedSlug() = %q", TrashedSlug("abc"))
	}
}
