// Package encryption seals exported content for mirrors that leave the
// host, such as an S3 bucket shared with a CDN.
package encryption

import (
	"bytes"
	"fmt"
	"io"
)

// Encryptor encrypts with a public key and decrypts once unlocked with the
// passphrase protecting the private key.
type Encryptor interface {
	// Setup generates the key pair. Run once by `vfs config keys init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w. Only the
	// public key is needed.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (Decryptor, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Decryptor holds an unlocked private key.
type Decryptor interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Seal encrypts content in memory.
func Seal(e Encryptor, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(content), &buf); err != nil {
		return nil, fmt.Errorf("sealing content: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts sealed content in memory.
func Open(d Decryptor, sealed []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Decrypt(bytes.NewReader(sealed), &buf); err != nil {
		return nil, fmt.Errorf("opening content: %w", err)
	}
	return buf.Bytes(), nil
}
