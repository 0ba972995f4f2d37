package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// FormatVersion is the first byte of every sealed blob. It is bound into the
// GCM additional data, so rewriting it fails authentication.
const FormatVersion byte = 0x01

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher seals and opens blobs with AES-256-GCM.
// Layout: version(1) || nonce(12) || ciphertext+tag.
type Cipher struct {
	gcm cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.gcm.Overhead())
	out = append(out, FormatVersion)
	out = append(out, nonce...)
	return c.gcm.Seal(out, nonce, plaintext, []byte{FormatVersion}), nil
}

// Open authenticates and decrypts a blob produced by Seal. Any modification
// of the blob yields ErrCorrupt.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(blob) < 1+nonceSize+c.gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCorrupt)
	}
	if blob[0] != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, blob[0])
	}

	nonce, ciphertext := blob[1:1+nonceSize], blob[1+nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}
