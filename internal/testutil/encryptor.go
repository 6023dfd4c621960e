package testutil

import (
	"vfs-go/internal/encryption"
)

// NewTestEncryptor creates a keyless encryptor for testing.
func NewTestEncryptor() encryption.Encryptor {
	return encryption.NewTestEncryptor()
}
