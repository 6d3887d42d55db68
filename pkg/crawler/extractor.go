package crawler

import (
	"path"

	"kemonograb/pkg/kemono"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/storage"
)

// FileDescriptor is one downloadable file derived from a post: where to
// get the bytes and what to call them locally.
type FileDescriptor struct {
	URL      string
	FileName string
	PostID   string
}

// Extractor reduces a post to its ordered file descriptors. Extraction
// is deterministic: the same post yields the same descriptors with the
// same names on every run, which is what lets resume logic line up
// ledger entries with files on disk.
type Extractor struct {
	logger logger.Logger
}

// NewExtractor builds an extractor.
func NewExtractor(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{logger: log}
}

// Extract walks the post's inline file and attachment list in order and
// normalizes each entry to a FileDescriptor. servers is the page's
// path-to-server index; entries with no usable path or no known server
// are dropped, and identical URLs within the post collapse to one
// descriptor. A post without files yields an empty slice, not an error.
//
// Names are sanitized for local use; when a name is already taken by an
// earlier descriptor of the same post, a zero-padded index taken from
// the entry's position is suffixed before the extension, so "x.jpg"
// twice becomes x.jpg and x_01.jpg on every run.
func (e *Extractor) Extract(post *kemono.Post, servers map[string]string) []FileDescriptor {
	entries := make([]kemono.Attachment, 0, len(post.Attachments)+1)
	if !post.File.IsZero() {
		entries = append(entries, post.File)
	}
	entries = append(entries, post.Attachments...)

	var descriptors []FileDescriptor
	seenURL := make(map[string]bool)
	taken := make(map[string]bool)

	for i, entry := range entries {
		if entry.Path == "" {
			continue
		}

		server, ok := servers[entry.Path]
		if !ok {
			e.logger.DebugWithFields("No file server for attachment - skipping", map[string]interface{}{
				"post": post.ID,
				"path": entry.Path,
			})
			continue
		}

		fileURL := kemono.FileURL(server, entry.Path)
		if seenURL[fileURL] {
			e.logger.DebugWithFields("Duplicate file URL within post - skipping", map[string]interface{}{
				"post": post.ID,
				"url":  fileURL,
			})
			continue
		}
		seenURL[fileURL] = true

		name := storage.SanitizeFileName(entry.Name)
		if name == "" {
			name = storage.SanitizeFileName(path.Base(entry.Path))
		}
		if name == "" || name == "." {
			e.logger.WarnWithFields("Attachment has no usable name - skipping", map[string]interface{}{
				"post": post.ID,
				"path": entry.Path,
			})
			continue
		}

		if taken[name] {
			name = storage.IndexedName(name, i)
		}
		taken[name] = true

		descriptors = append(descriptors, FileDescriptor{
			URL:      fileURL,
			FileName: name,
			PostID:   post.ID,
		})
	}

	return descriptors
}
