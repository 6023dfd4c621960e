package encryption

import (
	"bytes"
	"path/filepath"
	"testing"

	"vfs-go/internal/config"
)

func newAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "vfs.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "vfs.key"),
	})
}

func TestAgeEncryptor_IsConfigured(t *testing.T) {
	t.Parallel()
	e := newAgeEncryptor(t)
	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}
	if err := e.Setup("export-pass"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
}

func TestAgeEncryptor_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "page", input: []byte("<html><body>news</body></html>")},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large", input: bytes.Repeat([]byte("sitemap "), 8192)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newAgeEncryptor(t)
			if err := e.Setup("export-pass"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			sealed, err := Seal(e, tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(sealed, tt.input) {
				t.Error("sealed output contains the plaintext")
			}

			d, err := e.Unlock("export-pass")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			got, err := Open(d, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("Open() returned %d bytes, want %d", len(got), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_ReloadsPublicKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "vfs.pub"),
		PrivateKeyPath: filepath.Join(dir, "vfs.key"),
	}
	if err := NewAgeEncryptor(cfg).Setup("export-pass"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// A second encryptor reads the key written by the first.
	e := NewAgeEncryptor(cfg)
	sealed, err := Seal(e, []byte("robots.txt"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	d, err := e.Unlock("export-pass")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	got, err := Open(d, sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != "robots.txt" {
		t.Errorf("Open() = %q", got)
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()
		e := newAgeEncryptor(t)
		if err := e.Setup("right"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() with wrong passphrase succeeded")
		}
	})

	t.Run("encrypt without keys", func(t *testing.T) {
		t.Parallel()
		if _, err := Seal(newAgeEncryptor(t), []byte("x")); err == nil {
			t.Error("Seal() without keys succeeded")
		}
	})

	t.Run("unlock without keys", func(t *testing.T) {
		t.Parallel()
		if _, err := newAgeEncryptor(t).Unlock("x"); err == nil {
			t.Error("Unlock() without keys succeeded")
		}
	})
}
