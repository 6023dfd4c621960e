package export

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"vfs-go/internal/vfs"
)

// MemoryMirror keeps the exported tree in a map keyed by target path.
// It is meant for tests and dry runs.
type MemoryMirror struct {
	mu      sync.Mutex
	entries map[string][]byte
	failErr error
}

var _ vfs.ExportMirror = (*MemoryMirror)(nil)

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{entries: make(map[string][]byte)}
}

// FailWith makes every later call return err. A nil err restores normal
// operation.
func (m *MemoryMirror) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryMirror) CreateFolder(_ context.Context, vfsPath string, point vfs.ExportPoint) error {
	return m.put(vfsPath, point, nil)
}

func (m *MemoryMirror) WriteFile(_ context.Context, vfsPath string, point vfs.ExportPoint, content []byte) error {
	return m.put(vfsPath, point, slices.Clone(content))
}

func (m *MemoryMirror) put(vfsPath string, point vfs.ExportPoint, content []byte) error {
	t, err := target(vfsPath, point)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return fmt.Errorf("exporting %s: %w", vfsPath, m.failErr)
	}
	m.entries[t] = content
	return nil
}

// RemoveResource drops the target of vfsPath. Removing a folder drops
// everything below it.
func (m *MemoryMirror) RemoveResource(_ context.Context, vfsPath string, point vfs.ExportPoint) error {
	t, err := target(vfsPath, point)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return fmt.Errorf("removing export of %s: %w", vfsPath, m.failErr)
	}
	delete(m.entries, t)
	if isFolder(t) {
		for k := range m.entries {
			if strings.HasPrefix(k, t) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// File returns the content exported to target.
func (m *MemoryMirror) File(target string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.entries[target]
	if !ok || isFolder(target) {
		return nil, false
	}
	return slices.Clone(content), true
}

// Targets lists every exported folder and file, sorted.
func (m *MemoryMirror) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
