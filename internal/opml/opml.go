// ABOUTME: OPML reading and writing for the feed registry
// ABOUTME: Outlines carry site links plus ingest and display toggles as extra attributes

package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Document represents an OPML document with a title and hierarchical outlines
type Document struct {
	Title    string
	Outlines []Outline
	feedURLs map[string]bool
}

// Outline represents a node in the OPML tree structure.
// Can be either a folder (with Children) or a feed (with XMLURL).
type Outline struct {
	Text     string
	Title    string
	Type     string
	XMLURL   string
	HTMLURL  string
	Ingest   *bool
	Display  *bool
	Children []Outline
}

// Feed is a flattened feed outline with its folder.
// Ingest and Display are nil when the attribute is absent.
type Feed struct {
	URL     string
	Title   string
	Folder  string
	SiteURL string
	Ingest  *bool
	Display *bool
}

type opmlXML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    headXML  `xml:"head"`
	Body    bodyXML  `xml:"body"`
}

type headXML struct {
	Title string `xml:"title"`
}

type bodyXML struct {
	Outlines []outlineXML `xml:"outline"`
}

type outlineXML struct {
	Text     string       `xml:"text,attr"`
	Title    string       `xml:"title,attr,omitempty"`
	Type     string       `xml:"type,attr,omitempty"`
	XMLURL   string       `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string       `xml:"htmlUrl,attr,omitempty"`
	Ingest   string       `xml:"ingest,attr,omitempty"`
	Display  string       `xml:"display,attr,omitempty"`
	Children []outlineXML `xml:"outline,omitempty"`
}

// NewDocument creates a new empty OPML document with the given title
func NewDocument(title string) *Document {
	return &Document{
		Title:    title,
		Outlines: []Outline{},
		feedURLs: make(map[string]bool),
	}
}

// Parse reads OPML data from an io.Reader and returns a Document
func Parse(r io.Reader) (*Document, error) {
	var opml opmlXML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&opml); err != nil {
		return nil, fmt.Errorf("failed to decode OPML: %w", err)
	}

	doc := &Document{
		Title:    opml.Head.Title,
		Outlines: make([]Outline, len(opml.Body.Outlines)),
	}

	for i, outline := range opml.Body.Outlines {
		o, err := convertOutlineFromXML(outline)
		if err != nil {
			return nil, err
		}
		doc.Outlines[i] = o
	}

	doc.rebuildURLIndex()
	return doc, nil
}

// ParseFile reads OPML data from a file and returns a Document
func ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

func (d *Document) rebuildURLIndex() {
	d.feedURLs = make(map[string]bool)
	for _, feed := range d.AllFeeds() {
		d.feedURLs[feed.URL] = true
	}
}

// AllFeeds returns a flat list of all feeds in the document with their folder information
func (d *Document) AllFeeds() []Feed {
	feeds := make([]Feed, 0, len(d.Outlines))
	for _, outline := range d.Outlines {
		feeds = append(feeds, collectFeeds(outline, "")...)
	}
	return feeds
}

// AddFeed adds a feed to the document, in its folder when one is set.
// Returns an error if a feed with the same URL already exists.
func (d *Document) AddFeed(feed Feed) error {
	if d.feedURLs == nil {
		d.rebuildURLIndex()
	}
	if d.feedURLs[feed.URL] {
		return fmt.Errorf("feed with URL %s already exists", feed.URL)
	}

	outline := Outline{
		Text:    feed.Title,
		Title:   feed.Title,
		Type:    "rss",
		XMLURL:  feed.URL,
		HTMLURL: feed.SiteURL,
		Ingest:  feed.Ingest,
		Display: feed.Display,
	}

	if feed.Folder == "" {
		d.Outlines = append(d.Outlines, outline)
	} else {
		folderIndex := -1
		for i, o := range d.Outlines {
			if o.Text == feed.Folder && o.XMLURL == "" {
				folderIndex = i
				break
			}
		}

		if folderIndex == -1 {
			d.Outlines = append(d.Outlines, Outline{
				Text:     feed.Folder,
				Children: []Outline{outline},
			})
		} else {
			d.Outlines[folderIndex].Children = append(d.Outlines[folderIndex].Children, outline)
		}
	}

	d.feedURLs[feed.URL] = true
	return nil
}

// Write writes the OPML document to an io.Writer
func (d *Document) Write(w io.Writer) error {
	opml := opmlXML{
		Version: "2.0",
		Head: headXML{
			Title: d.Title,
		},
		Body: bodyXML{
			Outlines: make([]outlineXML, len(d.Outlines)),
		},
	}

	for i, outline := range d.Outlines {
		opml.Body.Outlines[i] = convertOutlineToXML(outline)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	if err := encoder.Encode(opml); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	return nil
}

// WriteFile writes the OPML document to a file
func (d *Document) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return d.Write(file)
}

func convertOutlineFromXML(x outlineXML) (Outline, error) {
	ingest, err := parseToggle(x.Ingest)
	if err != nil {
		return Outline{}, fmt.Errorf("outline %q ingest: %w", x.Text, err)
	}
	display, err := parseToggle(x.Display)
	if err != nil {
		return Outline{}, fmt.Errorf("outline %q display: %w", x.Text, err)
	}

	o := Outline{
		Text:     x.Text,
		Title:    x.Title,
		Type:     x.Type,
		XMLURL:   x.XMLURL,
		HTMLURL:  x.HTMLURL,
		Ingest:   ingest,
		Display:  display,
		Children: make([]Outline, len(x.Children)),
	}

	for i, child := range x.Children {
		c, err := convertOutlineFromXML(child)
		if err != nil {
			return Outline{}, err
		}
		o.Children[i] = c
	}

	return o, nil
}

func convertOutlineToXML(o Outline) outlineXML {
	x := outlineXML{
		Text:     o.Text,
		Title:    o.Title,
		Type:     o.Type,
		XMLURL:   o.XMLURL,
		HTMLURL:  o.HTMLURL,
		Ingest:   formatToggle(o.Ingest),
		Display:  formatToggle(o.Display),
		Children: make([]outlineXML, len(o.Children)),
	}

	for i, child := range o.Children {
		x.Children[i] = convertOutlineToXML(child)
	}

	return x
}

func parseToggle(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatToggle(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func collectFeeds(outline Outline, folder string) []Feed {
	var feeds []Feed

	if outline.XMLURL != "" {
		feeds = append(feeds, Feed{
			URL:     outline.XMLURL,
			Title:   getOutlineTitle(outline),
			Folder:  folder,
			SiteURL: outline.HTMLURL,
			Ingest:  outline.Ingest,
			Display: outline.Display,
		})
	}

	childFolder := folder
	if outline.XMLURL == "" && len(outline.Children) > 0 {
		childFolder = outline.Text
	}

	for _, child := range outline.Children {
		feeds = append(feeds, collectFeeds(child, childFolder)...)
	}

	return feeds
}

func getOutlineTitle(outline Outline) string {
	if outline.Title != "" {
		return outline.Title
	}
	return outline.Text
}
