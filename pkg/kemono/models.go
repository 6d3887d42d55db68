package kemono

import (
	"fmt"
	"time"
)

// Target identifies one creator on one site, the immutable input to a
// crawl run.
type Target struct {
	Site    string // host, e.g. "kemono.su"
	Service string // e.g. "patreon"
	Creator string // creator id on the service
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s:%s", t.Site, t.Service, t.Creator)
}

// PostsLegacyResponse is the shape of one page from the posts-legacy
// listing endpoint.
type PostsLegacyResponse struct {
	Props             Props           `json:"props"`
	Results           []Post          `json:"results"`
	ResultPreviews    [][]ServerEntry `json:"result_previews"`
	ResultAttachments [][]ServerEntry `json:"result_attachments"`
}

// Props carries creator-level metadata returned with every page
type Props struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Post is a single post as returned by the listing endpoint
type Post struct {
	ID          string       `json:"id"`
	User        string       `json:"user"`
	Service     string       `json:"service"`
	Title       string       `json:"title"`
	Published   string       `json:"published"`
	File        Attachment   `json:"file"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is a file reference inside a post. The path alone does not
// locate the bytes; the serving host comes from the matching ServerEntry.
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// IsZero reports whether the attachment carries no file reference
func (a Attachment) IsZero() bool {
	return a.Path == ""
}

// ServerEntry maps a file path to the file server that holds its bytes
type ServerEntry struct {
	Server string `json:"server"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

// publishedLayouts are the timestamp formats seen in post metadata
var publishedLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// PublishedTime parses the post's published timestamp. The second
// return is false when the field is absent or unparseable.
func (p *Post) PublishedTime() (time.Time, bool) {
	if p.Published == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, p.Published); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FlattenedEntries merges the per-post preview and attachment server
// entries into one lookup list, previews first.
func (r *PostsLegacyResponse) FlattenedEntries() []ServerEntry {
	var entries []ServerEntry
	for _, group := range r.ResultPreviews {
		entries = append(entries, group...)
	}
	for _, group := range r.ResultAttachments {
		entries = append(entries, group...)
	}
	return entries
}

// ServerIndex builds a path-to-server lookup from the page's flattened
// entries. Earlier entries win when a path repeats.
func (r *PostsLegacyResponse) ServerIndex() map[string]string {
	index := make(map[string]string)
	for _, entry := range r.FlattenedEntries() {
		if entry.Path == "" || entry.Server == "" {
			continue
		}
		if _, seen := index[entry.Path]; !seen {
			index[entry.Path] = entry.Server
		}
	}
	return index
}

// Creator is the profile metadata assembled from a listing page,
// used for the optional profile info side file.
type Creator struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Service   string `json:"service"`
	Site      string `json:"site"`
	PostCount int    `json:"post_count"`
}
