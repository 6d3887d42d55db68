package metadata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"kemonograb/pkg/kemono"
	"kemonograb/pkg/storage"

	"github.com/spf13/afero"
)

// Post info format names, matching the output.post_info_format config values
const (
	FormatMarkdown = "md"
	FormatText     = "txt"
)

const profileFileName = "profile.json"

// PostInfo is the human-readable summary written next to a post's files
type PostInfo struct {
	ID        string
	Title     string
	Service   string
	Published string
	Link      string
	Files     []string
}

// Profile is the creator-level metadata side file, written once per run
// at the creator root
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Service   string    `json:"service"`
	Site      string    `json:"site"`
	URL       string    `json:"url"`
	PostCount int       `json:"post_count"`
	SavedAt   time.Time `json:"saved_at"`
}

// NewPostInfo assembles the info file contents for one post. File names
// are listed in the order the extractor produced them.
func NewPostInfo(t kemono.Target, post *kemono.Post, fileNames []string) *PostInfo {
	info := &PostInfo{
		ID:      post.ID,
		Title:   strings.TrimSpace(post.Title),
		Service: post.Service,
		Link:    kemono.PostURL(t, post.ID),
		Files:   fileNames,
	}

	if info.Service == "" {
		info.Service = t.Service
	}

	// Show a parsed timestamp when possible, otherwise pass the raw
	// field through untouched
	if ts, ok := post.PublishedTime(); ok {
		info.Published = ts.Format("2006-01-02 15:04")
	} else {
		info.Published = post.Published
	}

	return info
}

// Markdown renders the post info as info.md content
func (p *PostInfo) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.displayTitle())
	fmt.Fprintf(&b, "- **Post ID:** %s\n", p.ID)
	fmt.Fprintf(&b, "- **Service:** %s\n", p.Service)
	if p.Published != "" {
		fmt.Fprintf(&b, "- **Published:** %s\n", p.Published)
	}
	fmt.Fprintf(&b, "- **Link:** %s\n", p.Link)

	b.WriteString("\n## Files\n\n")
	if len(p.Files) == 0 {
		b.WriteString("No files.\n")
		return b.String()
	}
	for _, name := range p.Files {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

// Text renders the post info as info.txt content
func (p *PostInfo) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", p.displayTitle())
	fmt.Fprintf(&b, "Post ID: %s\n", p.ID)
	fmt.Fprintf(&b, "Service: %s\n", p.Service)
	if p.Published != "" {
		fmt.Fprintf(&b, "Published: %s\n", p.Published)
	}
	fmt.Fprintf(&b, "Link: %s\n", p.Link)

	b.WriteString("\nFiles:\n")
	if len(p.Files) == 0 {
		b.WriteString("  (none)\n")
		return b.String()
	}
	for _, name := range p.Files {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

func (p *PostInfo) displayTitle() string {
	if p.Title == "" {
		return "(untitled)"
	}
	return p.Title
}

// NewProfile builds the profile side file from a listing page's creator
// metadata, filling gaps from the crawl target.
func NewProfile(t kemono.Target, c kemono.Creator) *Profile {
	profile := &Profile{
		ID:        c.ID,
		Name:      c.Name,
		Service:   c.Service,
		Site:      c.Site,
		URL:       kemono.ProfileURL(t),
		PostCount: c.PostCount,
		SavedAt:   time.Now(),
	}

	if profile.ID == "" {
		profile.ID = t.Creator
	}
	if profile.Service == "" {
		profile.Service = t.Service
	}
	if profile.Site == "" {
		profile.Site = t.Site
	}

	return profile
}

// Writer places info and profile files inside one creator's output tree.
// Writes are idempotent overwrites, so re-running a crawl refreshes the
// side files without touching downloaded media.
type Writer struct {
	fs     afero.Fs
	layout *storage.Layout
	target kemono.Target
	format string
}

// NewWriter builds a writer for the given layout. Unknown formats fall
// back to markdown, matching the config default.
func NewWriter(layout *storage.Layout, target kemono.Target, format string) *Writer {
	if format != FormatText {
		format = FormatMarkdown
	}
	return &Writer{
		fs:     layout.Fs(),
		layout: layout,
		target: target,
		format: format,
	}
}

// InfoFileName returns the post info file name for the writer's format
func (w *Writer) InfoFileName() string {
	return "info." + w.format
}

// PostInfoPath returns where WritePostInfo places a post's info file
func (w *Writer) PostInfoPath(postID string) string {
	return filepath.Join(w.layout.PostDir(postID), w.InfoFileName())
}

// WritePostInfo renders and writes the info file for one post. It
// creates the post directory itself so posts without any files still
// get their summary written.
func (w *Writer) WritePostInfo(post *kemono.Post, fileNames []string) error {
	info := NewPostInfo(w.target, post, fileNames)

	var content string
	if w.format == FormatText {
		content = info.Text()
	} else {
		content = info.Markdown()
	}

	dir := w.layout.PostDir(post.ID)
	if err := w.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create post directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, w.InfoFileName())
	if err := afero.WriteFile(w.fs, path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write post info %s: %w", path, err)
	}
	return nil
}

// ProfilePath returns where WriteProfile places the creator profile
func (w *Writer) ProfilePath() string {
	return filepath.Join(w.layout.CreatorRoot(), profileFileName)
}

// WriteProfile writes the creator profile JSON at the creator root
func (w *Writer) WriteProfile(creator kemono.Creator) error {
	profile := NewProfile(w.target, creator)

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	data = append(data, '\n')

	root := w.layout.CreatorRoot()
	if err := w.fs.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create creator directory %s: %w", root, err)
	}

	if err := afero.WriteFile(w.fs, w.ProfilePath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// ReadProfile loads a previously written profile file
func ReadProfile(fs afero.Fs, path string) (*Profile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}
