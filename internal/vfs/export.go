package vfs

import (
	"path"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// ExportPoint mirrors the VFS subtree below URI to Destination.
type ExportPoint struct {
	URI         string `toml:"uri" validate:"required,startswith=/"`
	Destination string `toml:"destination" validate:"required"`
}

// Target maps a VFS path below the export point to its destination path.
// Folders keep their trailing separator.
func (p ExportPoint) Target(vfsPath string) string {
	rel := strings.TrimPrefix(vfsPath, AddTrailingSeparator(p.URI))
	if vfsPath == p.URI || AddTrailingSeparator(vfsPath) == AddTrailingSeparator(p.URI) {
		rel = ""
	}
	target := path.Join(p.Destination, rel)
	if strings.HasSuffix(vfsPath, "/") {
		target = AddTrailingSeparator(target)
	}
	return target
}

// ExportPoints is the configured set of export points.
type ExportPoints []ExportPoint

// Match returns the export point with the longest URI that is a prefix of
// vfsPath.
func (e ExportPoints) Match(vfsPath string) (ExportPoint, bool) {
	var best ExportPoint
	found := false
	for _, p := range e {
		if !IsDescendant(vfsPath, AddTrailingSeparator(p.URI)) && AddTrailingSeparator(vfsPath) != AddTrailingSeparator(p.URI) {
			continue
		}
		if !found || len(p.URI) > len(best.URI) {
			best = p
			found = true
		}
	}
	return best, found
}

// TranscodeContent converts UTF-8 content into the named encoding. Unknown
// encodings and unencodable content fall back to the raw bytes.
func TranscodeContent(content []byte, encoding string) []byte {
	if encoding == "" {
		return content
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return content
	}
	out, err := enc.NewEncoder().Bytes(content)
	if err != nil {
		return content
	}
	return out
}
