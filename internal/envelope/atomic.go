package envelope

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile replaces path with data durably: data goes to a temp file in the
// same directory, is fsynced, renamed over path, and the directory is synced.
// Failures wrap ErrStorage and leave no temp file behind.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	return writeFile(path, data, perm, os.Rename)
}

func writeFile(path string, data []byte, perm fs.FileMode, rename func(oldpath, newpath string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: setting temp file mode: %w", ErrStorage, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: writing temp file: %w", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: syncing temp file: %w", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrStorage, err)
	}
	if err := rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", ErrStorage, path, err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform allows fsync on a
// directory handle.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
