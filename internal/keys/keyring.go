package keys

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringBackend stores secrets in the OS keychain (Secret Service, macOS
// Keychain, Windows Credential Manager). Each secret lives under service
// "<service>/<name>" with user "<name>".
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a backend namespaced under service.
func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{service: service}
}

func (b *KeyringBackend) serviceFor(name string) string {
	return b.service + "/" + name
}

func (b *KeyringBackend) Get(_ context.Context, name string) (string, error) {
	v, err := keyring.Get(b.serviceFor(name), name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", unavailable("keyring get", name, err)
	}
	return v, nil
}

func (b *KeyringBackend) Set(_ context.Context, name, value string) error {
	if err := keyring.Set(b.serviceFor(name), name, value); err != nil {
		return unavailable("keyring set", name, err)
	}
	return nil
}

// Delete removes a secret. Deleting an absent secret is not an error.
func (b *KeyringBackend) Delete(_ context.Context, name string) error {
	err := keyring.Delete(b.serviceFor(name), name)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return unavailable("keyring delete", name, err)
}
