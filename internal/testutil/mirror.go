package testutil

import (
	"vfs-go/internal/export"
)

// NewTestMirror creates an in-memory export mirror for testing.
func NewTestMirror() *export.MemoryMirror {
	return export.NewMemoryMirror()
}
