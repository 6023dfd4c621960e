package encryption

import (
	"fmt"

	"vfs-go/internal/config"
)

// NewEncryptorFromConfig selects the encryptor named by cfg.Type; age is the
// default.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
