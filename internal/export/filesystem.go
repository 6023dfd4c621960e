package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"vfs-go/internal/vfs"
)

// FileSystemMirror writes exports below a local root directory, typically
// the document root of a static web server.
type FileSystemMirror struct {
	root string
}

var _ vfs.ExportMirror = (*FileSystemMirror)(nil)

// NewFileSystemMirror creates root if needed.
func NewFileSystemMirror(root string) (*FileSystemMirror, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating export root: %w", err)
	}
	return &FileSystemMirror{root: root}, nil
}

func (m *FileSystemMirror) local(vfsPath string, point vfs.ExportPoint) (string, error) {
	t, err := target(vfsPath, point)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.root, filepath.FromSlash(t)), nil
}

func (m *FileSystemMirror) CreateFolder(_ context.Context, vfsPath string, point vfs.ExportPoint) error {
	dir, err := m.local(vfsPath, point)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating export folder %s: %w", dir, err)
	}
	return nil
}

func (m *FileSystemMirror) WriteFile(_ context.Context, vfsPath string, point vfs.ExportPoint, content []byte) error {
	dest, err := m.local(vfsPath, point)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating export folder for %s: %w", dest, err)
	}
	return writeAtomic(dest, bytes.NewReader(content))
}

// RemoveResource deletes the exported file or folder tree. A target that is
// already gone is not an error.
func (m *FileSystemMirror) RemoveResource(_ context.Context, vfsPath string, point vfs.ExportPoint) error {
	dest, err := m.local(vfsPath, point)
	if err != nil {
		return err
	}
	if filepath.Clean(dest) == filepath.Clean(m.root) {
		return fmt.Errorf("refusing to remove export root %s", m.root)
	}
	if err := os.RemoveAll(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing export %s: %w", dest, err)
	}
	return nil
}

// writeAtomic writes r to a temp file next to dest and renames it into
// place, so readers never see a partial page.
func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".export-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	done := false
	defer func() {
		if !done {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", dest, err)
	}
	done = true
	return nil
}
