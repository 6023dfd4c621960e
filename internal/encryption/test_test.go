package encryption

import (
	"bytes"
	"testing"

	"vfs-go/internal/config"
)

func TestTestEncryptor_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewTestEncryptor()

			sealed, err := Seal(e, tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if !bytes.HasPrefix(sealed, stubHeader) {
				t.Errorf("Seal() = %q, want header prefix", sealed)
			}
			if bytes.Equal(sealed, tt.input) {
				t.Error("sealed output equals input")
			}

			d, err := e.Unlock("")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			got, err := Open(d, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("Open() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestTestEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := NewTestEncryptor()
	if err := e.Setup("x"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.setupCalled || !e.IsConfigured() {
		t.Error("Setup() not recorded or encryptor not configured")
	}
}

func TestTestDecryptor_RejectsForeignContent(t *testing.T) {
	t.Parallel()

	for _, input := range [][]byte{nil, []byte("VF"), []byte("plain old content")} {
		if _, err := Open(testDecryptor{}, input); err == nil {
			t.Errorf("Open(%q) succeeded", input)
		}
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{typ: "", want: "age"},
		{typ: "age", want: "age"},
		{typ: "test", want: "test"},
		{typ: "rot13", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewEncryptorFromConfig() succeeded")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}
			var got string
			switch e.(type) {
			case *AgeEncryptor:
				got = "age"
			case *TestEncryptor:
				got = "test"
			}
			if got != tt.want {
				t.Errorf("NewEncryptorFromConfig(%q) = %T", tt.typ, e)
			}
		})
	}
}
