// Package cryptobox encrypts secret values at rest with XChaCha20-Poly1305.
//
// A Box is built from a 32 byte key, usually loaded from a key file with
// LoadOrGenerate. Ciphertexts carry their random nonce as a prefix, so the
// same plaintext never encrypts to the same bytes twice.
package cryptobox

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// KeyFileMode is the permission used when a key file is created.
const KeyFileMode fs.FileMode = 0o600

var (
	// ErrInvalidKey is returned for keys of the wrong length or encoding.
	ErrInvalidKey = errors.New("cryptobox: invalid key")
	// ErrCiphertextTooShort is returned when a ciphertext cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("cryptobox: ciphertext too short")
)

// Box seals and opens secret values with a single key.
type Box struct {
	aead cipher.AEAD
}

// New returns a Box for key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Box{aead: aead}, nil
}

// GenerateKey returns a new random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptobox: generate key: %w", err)
	}
	return key, nil
}

// LoadOrGenerate reads the key stored at path, or generates a new key and
// persists it with KeyFileMode when no file exists yet. The file holds the
// key in URL-safe base64.
func LoadOrGenerate(path string) (*Box, error) {
	key, err := readKey(path)
	if errors.Is(err, fs.ErrNotExist) {
		key, err = writeNewKey(path)
	}
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt seals plaintext. The result is nonce || ciphertext || tag.
func (b *Box) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptobox: nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt. Any tampering, truncation or
// key mismatch yields a DecryptionFailure.
func (b *Box) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := b.aead.NonceSize()
	if len(ciphertext) < ns+b.aead.Overhead() {
		return nil, storeerr.DecryptionFailure(ErrCiphertextTooShort)
	}
	plaintext, err := b.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, storeerr.DecryptionFailure(err)
	}
	return plaintext, nil
}

func readKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := base64.URLEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, path, err)
	}
	return key, nil
}

// writeNewKey writes a fresh key to a temp file and links it into place, so
// path either does not exist or holds a complete key. When another process
// links first, its key is used.
func writeNewKey(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("cryptobox: create key dir: %w", err)
		}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("cryptobox: create key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeKeyFile(tmp, key); err != nil {
		return nil, fmt.Errorf("cryptobox: write key file: %w", err)
	}

	err = os.Link(tmp.Name(), path)
	if errors.Is(err, fs.ErrExist) {
		return readKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("cryptobox: create key file: %w", err)
	}
	return key, nil
}

func writeKeyFile(f *os.File, key []byte) error {
	if err := f.Chmod(KeyFileMode); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteString(base64.URLEncoding.EncodeToString(key)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
