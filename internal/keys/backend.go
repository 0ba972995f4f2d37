// Package keys resolves the symmetric data keys and other named secrets the
// agent needs from a platform secret store.
package keys

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSecretNotFound is returned by a Backend when no value is stored under a name.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrKeyUnavailable means the secret store cannot be used at all (not
	// installed, locked, permission denied, unreadable). It is fatal for every
	// encrypted-store operation and is never retried.
	ErrKeyUnavailable = errors.New("key unavailable")
)

// Backend is a platform secret store holding opaque string values by name.
// Implementations return ErrSecretNotFound for absent names.
type Backend interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
}

func unavailable(op, name string, err error) error {
	if errors.Is(err, ErrKeyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %q: %w", ErrKeyUnavailable, op, name, err)
}
