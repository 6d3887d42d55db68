package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// fileNameSanitizer strips the characters that break path creation on
// common filesystems and swaps spaces for underscores.
var fileNameSanitizer = strings.NewReplacer(
	"\\", "",
	"/", "",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	" ", "_",
)

// dirNameSanitizer keeps directory components from escaping their parent.
var dirNameSanitizer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
)

// SanitizeFileName normalizes a remote-supplied file name for local use.
// May return an empty string when the name had no usable characters.
func SanitizeFileName(name string) string {
	return fileNameSanitizer.Replace(name)
}

// SanitizeDirName normalizes a single directory component.
func SanitizeDirName(name string) string {
	return dirNameSanitizer.Replace(name)
}

// CreatorDir builds the directory name for a creator, "<name> - <id>".
// Falls back to the bare id when the display name is empty.
func CreatorDir(displayName, creatorID string) string {
	name := strings.TrimSpace(SanitizeDirName(displayName))
	id := SanitizeDirName(creatorID)
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s - %s", name, id)
}

// IndexedName inserts a zero-padded position before the extension,
// producing names like photo_03.jpg. The index comes from the
// attachment's position in its post, so the same attachment gets the
// same name on every run.
func IndexedName(name string, index int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%02d%s", base, index, ext)
}
