// Package storage owns the on-disk layout of downloaded files.
//
// Every file lands at
//
//	<output root>/<site>/<service>/<creator dir>/posts/<post id>/<filename>
//
// where the creator directory is "<display name> - <creator id>". The path
// for a given (post, filename) pair is a pure function of its inputs, which
// is what lets an interrupted run resume into exactly the same tree.
//
// Transfers stream into a ".tmp-" prefixed sibling of the final path and are
// promoted with a single rename once verified, so a partially written file
// is never visible at a final location.
//
// The package also holds the filename policy: sanitizing remote names and
// suffixing positional indexes onto duplicates.
//
// Usage:
//
//	layout := storage.NewLayout(root, "kemono", "patreon", profile.Name, target.Creator)
//
//	file, err := layout.CreateTemp(post.ID, desc.FileName)
//	if err != nil {
//	    return err
//	}
//	// stream the response body into file, then:
//	if err := layout.Promote(post.ID, desc.FileName); err != nil {
//	    return err
//	}
package storage
