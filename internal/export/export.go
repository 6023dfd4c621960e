// Package export implements the flat-file projections of the online tree
// that the publisher keeps in sync.
package export

import (
	"fmt"
	"strings"

	"vfs-go/internal/vfs"
)

// target resolves the destination-relative path of vfsPath. Folders keep
// their trailing separator. Targets climbing above the destination root are
// rejected.
func target(vfsPath string, point vfs.ExportPoint) (string, error) {
	t := point.Target(vfsPath)
	if t == ".." || strings.HasPrefix(t, "../") {
		return "", fmt.Errorf("export target %q of %s escapes the destination", t, vfsPath)
	}
	return t, nil
}

func isFolder(vfsPath string) bool {
	return strings.HasSuffix(vfsPath, "/")
}
