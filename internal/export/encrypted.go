package export

import (
	"context"
	"fmt"

	"vfs-go/internal/encryption"
	"vfs-go/internal/vfs"
)

// SealedSuffix is appended to the target of every encrypted file.
const SealedSuffix = ".age"

// EncryptedMirror seals file content before handing it to the wrapped
// mirror. Folder operations pass through unchanged.
type EncryptedMirror struct {
	next vfs.ExportMirror
	enc  encryption.Encryptor
}

var _ vfs.ExportMirror = (*EncryptedMirror)(nil)

func NewEncryptedMirror(next vfs.ExportMirror, enc encryption.Encryptor) *EncryptedMirror {
	return &EncryptedMirror{next: next, enc: enc}
}

func (m *EncryptedMirror) CreateFolder(ctx context.Context, vfsPath string, point vfs.ExportPoint) error {
	return m.next.CreateFolder(ctx, vfsPath, point)
}

func (m *EncryptedMirror) WriteFile(ctx context.Context, vfsPath string, point vfs.ExportPoint, content []byte) error {
	sealed, err := encryption.Seal(m.enc, content)
	if err != nil {
		return fmt.Errorf("encrypting export of %s: %w", vfsPath, err)
	}
	return m.next.WriteFile(ctx, vfsPath+SealedSuffix, point, sealed)
}

func (m *EncryptedMirror) RemoveResource(ctx context.Context, vfsPath string, point vfs.ExportPoint) error {
	if isFolder(vfsPath) {
		return m.next.RemoveResource(ctx, vfsPath, point)
	}
	return m.next.RemoveResource(ctx, vfsPath+SealedSuffix, point)
}
