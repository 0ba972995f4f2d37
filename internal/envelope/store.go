// Package envelope implements the encrypted JSON document store backing chat
// history, memories and todos.
//
// Every document is sealed with AES-256-GCM under a key obtained from a
// KeyProvider and replaced atomically: the new ciphertext goes to a temporary
// file in the destination directory, is fsynced, and is renamed over the
// destination. A reader therefore sees either the previous or the new version,
// never a partial one.
package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/atlas-agent/atlas/internal/metrics"
)

// KeyProvider supplies the data key for a namespace.
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context, namespace string) ([]byte, error)
}

// Store reads and writes sealed documents. Writers to the same path are
// serialized; reads take no lock.
type Store struct {
	keys      KeyProvider
	namespace string

	// rename is swapped in tests to simulate a crash before commit.
	rename func(oldpath, newpath string) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(keys KeyProvider, namespace string) *Store {
	return &Store{
		keys:      keys,
		namespace: namespace,
		rename:    os.Rename,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(path string) func() {
	key := filepath.Clean(path)

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) cipher(ctx context.Context) (*Cipher, error) {
	key, err := s.keys.GetOrCreateKey(ctx, s.namespace)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// Read decrypts the document at path into doc. It returns ErrNotFound when
// the file is absent and ErrCorrupt when authentication or decoding fails.
func (s *Store) Read(ctx context.Context, path string, doc any) error {
	return s.read(ctx, path, doc)
}

// WriteAtomic seals doc and atomically replaces the file at path.
func (s *Store) WriteAtomic(ctx context.Context, path string, doc any) error {
	unlock := s.lock(path)
	defer unlock()
	return s.write(ctx, path, doc)
}

// Remove deletes the file at path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	unlock := s.lock(path)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", ErrStorage, path, err)
	}
	return nil
}

// Update runs a read-modify-write cycle on the document at path while
// holding the path lock. A missing file starts from the zero value of T.
// If fn returns ErrSkipWrite the file is left untouched and Update returns nil.
func Update[T any](ctx context.Context, s *Store, path string, fn func(doc *T) error) error {
	unlock := s.lock(path)
	defer unlock()

	var doc T
	if err := s.read(ctx, path, &doc); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		return err
	}
	return s.write(ctx, path, doc)
}

func (s *Store) read(ctx context.Context, path string, doc any) error {
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrStorage, path, err)
	}

	c, err := s.cipher(ctx)
	if err != nil {
		return err
	}
	plaintext, err := c.Open(blob)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(plaintext, doc); err != nil {
		return fmt.Errorf("%w: %s: decoding document: %v", ErrCorrupt, path, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, path string, doc any) (err error) {
	store := filepath.Base(path)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.StoreWritesTotal.WithLabelValues(store, status).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	c, err := s.cipher(ctx)
	if err != nil {
		return err
	}
	sealed, err := c.Seal(plaintext)
	if err != nil {
		return err
	}

	return writeFile(path, sealed, 0o600, s.rename)
}
