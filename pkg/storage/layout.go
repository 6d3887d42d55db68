package storage

import (
	"os"
	"path/filepath"

	errs "kemonograb/pkg/errors"

	"github.com/spf13/afero"
)

const (
	postsDirName = "posts"
	tempPrefix   = ".tmp-"
)

// Layout maps (post, filename) pairs to paths under one creator's output
// tree:
//
//	<root>/<site>/<service>/<creator dir>/posts/<post id>/<filename>
//
// Paths are pure functions of their inputs, so every run derives the same
// location for the same file. Temp files sit next to their final path and
// promotion is a same-filesystem rename.
type Layout struct {
	fs         afero.Fs
	root       string
	site       string
	service    string
	creatorDir string
}

// NewLayout builds the layout for one creator on the OS filesystem.
func NewLayout(root, site, service, displayName, creatorID string) *Layout {
	return NewLayoutWithFS(afero.NewOsFs(), root, site, service, displayName, creatorID)
}

// NewLayoutWithFS is NewLayout on an explicit filesystem, used by tests.
func NewLayoutWithFS(fs afero.Fs, root, site, service, displayName, creatorID string) *Layout {
	return &Layout{
		fs:         fs,
		root:       root,
		site:       SanitizeDirName(site),
		service:    SanitizeDirName(service),
		creatorDir: CreatorDir(displayName, creatorID),
	}
}

// CreatorRoot returns the creator's top-level directory.
func (l *Layout) CreatorRoot() string {
	return filepath.Join(l.root, l.site, l.service, l.creatorDir)
}

// PostDir returns the directory holding one post's files.
func (l *Layout) PostDir(postID string) string {
	return filepath.Join(l.CreatorRoot(), postsDirName, SanitizeDirName(postID))
}

// FilePath returns the final path for a file. Callers pass names already
// sanitized by the extractor.
func (l *Layout) FilePath(postID, fileName string) string {
	return filepath.Join(l.PostDir(postID), fileName)
}

// TempPath returns the in-transfer sibling of FilePath.
func (l *Layout) TempPath(postID, fileName string) string {
	return filepath.Join(l.PostDir(postID), tempPrefix+fileName)
}

// CreateTemp creates the post directory and opens a fresh temp file for
// writing. Any leftover temp content from an interrupted run is truncated;
// transfers always restart from byte zero.
func (l *Layout) CreateTemp(postID, fileName string) (afero.File, error) {
	dir := l.PostDir(postID)
	if err := l.fs.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Newf(errs.ErrorTypeLocalIO, "failed to create post directory %s: %v", dir, err)
	}

	file, err := l.fs.Create(l.TempPath(postID, fileName))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeLocalIO, "failed to create temp file for %s: %v", fileName, err)
	}
	return file, nil
}

// Promote renames a completed temp file onto its final path. The rename is
// atomic on the same filesystem, so readers never observe partial data at
// the final location.
func (l *Layout) Promote(postID, fileName string) error {
	if err := l.fs.Rename(l.TempPath(postID, fileName), l.FilePath(postID, fileName)); err != nil {
		return errs.Newf(errs.ErrorTypeLocalIO, "failed to promote %s: %v", fileName, err)
	}
	return nil
}

// DiscardTemp removes a failed transfer's temp file. Missing files are not
// an error.
func (l *Layout) DiscardTemp(postID, fileName string) error {
	if err := l.fs.Remove(l.TempPath(postID, fileName)); err != nil && !os.IsNotExist(err) {
		return errs.Newf(errs.ErrorTypeLocalIO, "failed to remove temp file for %s: %v", fileName, err)
	}
	return nil
}

// Stat reports the size of a final file, or false when it does not exist.
func (l *Layout) Stat(postID, fileName string) (int64, bool) {
	info, err := l.fs.Stat(l.FilePath(postID, fileName))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// Fs exposes the underlying filesystem for collaborators that write
// alongside downloaded files, like the post info writer.
func (l *Layout) Fs() afero.Fs {
	return l.fs
}
