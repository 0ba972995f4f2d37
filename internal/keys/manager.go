package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// DefaultNamespace is the namespace shared by chat history, memories and todos.
	DefaultNamespace = "default"

	// KeySize is the data key length in bytes (AES-256).
	KeySize = 32

	// Secret names.
	DataKeySecret    = "data_key"
	APITokenSecret   = "api_token"
	SigningKeySecret = "api_signing_key"
)

// Manager resolves and lazily creates data keys. Keys are cached for the
// process lifetime; there is no persistence logic besides the Backend.
type Manager struct {
	backend Backend

	mu    sync.Mutex
	cache map[string][]byte
}

func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		cache:   make(map[string][]byte),
	}
}

// SecretName returns the backend name holding the data key for namespace.
func SecretName(namespace string) string {
	if namespace == "" || namespace == DefaultNamespace {
		return DataKeySecret
	}
	return DataKeySecret + "." + namespace
}

// GetOrCreateKey returns the 256-bit key for namespace, generating and storing
// a new one when the backend has none. Any backend failure other than "not
// found" is reported as ErrKeyUnavailable.
func (m *Manager) GetOrCreateKey(ctx context.Context, namespace string) ([]byte, error) {
	return m.getOrCreate(ctx, SecretName(namespace))
}

// SigningKey returns the HMAC key for API bearer tokens, creating it on first use.
func (m *Manager) SigningKey(ctx context.Context) ([]byte, error) {
	return m.getOrCreate(ctx, SigningKeySecret)
}

func (m *Manager) getOrCreate(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.cache[name]; ok {
		return clone(key), nil
	}

	encoded, err := m.backend.Get(ctx, name)
	switch {
	case err == nil:
		key, decErr := decodeKey(encoded)
		if decErr != nil {
			return nil, fmt.Errorf("%w: secret %q: %w", ErrKeyUnavailable, name, decErr)
		}
		m.cache[name] = key
		return clone(key), nil
	case errors.Is(err, ErrSecretNotFound):
	default:
		return nil, unavailable("get", name, err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := m.backend.Set(ctx, name, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, unavailable("set", name, err)
	}
	slog.Info("generated new key", "secret", name)

	m.cache[name] = key
	return clone(key), nil
}

// DeleteKey removes the key for namespace. Every envelope sealed with it
// becomes permanently unreadable.
func (m *Manager) DeleteKey(ctx context.Context, namespace string) error {
	name := SecretName(namespace)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.backend.Delete(ctx, name); err != nil {
		return unavailable("delete", name, err)
	}
	delete(m.cache, name)
	slog.Warn("deleted key", "secret", name)
	return nil
}

// GetSecret returns a named opaque secret such as the model API token.
// Absent secrets yield ErrSecretNotFound; a broken backend yields ErrKeyUnavailable.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	v, err := m.backend.Get(ctx, name)
	if errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	if err != nil {
		return "", unavailable("get", name, err)
	}
	return strings.TrimSpace(v), nil
}

func (m *Manager) SetSecret(ctx context.Context, name, value string) error {
	if err := m.backend.Set(ctx, name, value); err != nil {
		return unavailable("set", name, err)
	}
	return nil
}

func (m *Manager) DeleteSecret(ctx context.Context, name string) error {
	if err := m.backend.Delete(ctx, name); err != nil {
		return unavailable("delete", name, err)
	}
	return nil
}

// decodeKey accepts standard or URL-safe base64, the latter being how keys
// written by earlier releases were encoded.
func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, errors.New("stored key is not valid base64")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("stored key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
