package keys

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/atlas-agent/atlas/internal/envelope"
)

const (
	// VaultFile is the file name used by FileBackend inside its directory.
	VaultFile = "secrets.vault"

	vaultPermission = 0o600
	saltSize        = 32

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// FileBackend keeps secrets in a passphrase-protected vault file for hosts
// without an OS keychain. The vault is salt || envelope-sealed JSON map; the
// sealing key is derived from the passphrase with scrypt.
type FileBackend struct {
	path       string
	passphrase []byte
	costN      int

	mu sync.Mutex
}

// NewFileBackend opens (or prepares) the vault in dir.
func NewFileBackend(dir, passphrase string) (*FileBackend, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: file secret backend requires a passphrase", ErrKeyUnavailable)
	}
	return &FileBackend{
		path:       filepath.Join(dir, VaultFile),
		passphrase: []byte(passphrase),
		costN:      scryptN,
	}, nil
}

func (b *FileBackend) Get(_ context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	secrets, err := b.load()
	if err != nil {
		return "", unavailable("vault read", name, err)
	}
	v, ok := secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (b *FileBackend) Set(_ context.Context, name, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	secrets, err := b.load()
	if err != nil {
		return unavailable("vault read", name, err)
	}
	secrets[name] = value
	if err := b.save(secrets); err != nil {
		return unavailable("vault write", name, err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	secrets, err := b.load()
	if err != nil {
		return unavailable("vault read", name, err)
	}
	if _, ok := secrets[name]; !ok {
		return nil
	}
	delete(secrets, name)
	if err := b.save(secrets); err != nil {
		return unavailable("vault write", name, err)
	}
	return nil
}

func (b *FileBackend) load() (map[string]string, error) {
	info, err := os.Stat(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat vault: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("vault %s has insecure permissions %o (fix with: chmod 600 %s)", b.path, perm, b.path)
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("reading vault: %w", err)
	}
	if len(data) <= saltSize {
		return nil, errors.New("vault is truncated")
	}

	c, err := b.cipher(data[:saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Open(data[saltSize:])
	if err != nil {
		return nil, fmt.Errorf("wrong passphrase or damaged vault: %w", err)
	}

	secrets := map[string]string{}
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("decoding vault: %w", err)
	}
	return secrets, nil
}

func (b *FileBackend) save(secrets map[string]string) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	c, err := b.cipher(salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encoding vault: %w", err)
	}
	sealed, err := c.Seal(plaintext)
	if err != nil {
		return err
	}

	if err := envelope.WriteFile(b.path, append(salt, sealed...), vaultPermission); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	return nil
}

func (b *FileBackend) cipher(salt []byte) (*envelope.Cipher, error) {
	key, err := scrypt.Key(b.passphrase, salt, b.costN, scryptR, scryptP, envelope.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	return envelope.NewCipher(key)
}
