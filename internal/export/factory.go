package export

import (
	"context"
	"fmt"

	"vfs-go/internal/config"
	"vfs-go/internal/encryption"
	"vfs-go/internal/vfs"
)

// NewMirrorFromConfig builds the mirror selected by cfg.Type. With
// cfg.Encrypt set the mirror is wrapped in an EncryptedMirror, which needs
// a configured encryptor.
func NewMirrorFromConfig(ctx context.Context, cfg config.ExportConfig, enc encryption.Encryptor, logger vfs.Logger) (vfs.ExportMirror, error) {
	var mirror vfs.ExportMirror
	switch cfg.Type {
	case "none", "":
		return vfs.NopMirror{}, nil
	case "memory":
		mirror = NewMemoryMirror()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem export requires root")
		}
		fsMirror, err := NewFileSystemMirror(cfg.Root)
		if err != nil {
			return nil, err
		}
		mirror = fsMirror
	case "s3":
		s3Mirror, err := NewS3Mirror(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		mirror = s3Mirror
	default:
		return nil, fmt.Errorf("unknown export type: %q", cfg.Type)
	}

	if !cfg.Encrypt {
		return mirror, nil
	}
	if enc == nil || !enc.IsConfigured() {
		return nil, fmt.Errorf("encrypted export requires keys; run 'vfs config keys init'")
	}
	return NewEncryptedMirror(mirror, enc), nil
}
