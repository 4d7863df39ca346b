package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FilePerms restricts the state file to owner-only read/write because it
// holds OAuth2 refresh tokens.
const FilePerms = 0o600

// DirPerms is used when creating the state directory.
const DirPerms = 0o700

// FileStore is a Store persisted as a TOML document. Every mutation is
// written through to disk atomically.
type FileStore struct {
	mem  *MemoryStore
	path string
}

// Open loads the TOML state file at path. A missing file yields an empty
// store; the file is created on the first Set.
func Open(path string) (*FileStore, error) {
	data := make(map[string]any)

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("store: reading %s: %w", path, err)
	default:
		if _, decErr := toml.Decode(string(raw), &data); decErr != nil {
			return nil, fmt.Errorf("store: decoding %s: %w", path, decErr)
		}
	}

	return &FileStore{mem: NewMemoryStore(data), path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value at path and whether it exists.
func (s *FileStore) Get(path string) (any, bool) {
	return s.mem.Get(path)
}

// Set stores value at path and persists the whole document.
func (s *FileStore) Set(path string, value any) error {
	if err := s.mem.Set(path, value); err != nil {
		return err
	}

	return s.save()
}

// Delete removes path and persists the whole document.
func (s *FileStore) Delete(path string) error {
	if err := s.mem.Delete(path); err != nil {
		return err
	}

	return s.save()
}

// save writes the store atomically (write-to-temp + fsync + rename) with
// 0600 permissions. Never logs values.
func (s *FileStore) save() error {
	s.mem.mu.RLock()

	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).Encode(map[string]any(s.mem.data))

	s.mem.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("store: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("store: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("store: setting permissions: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("store: renaming: %w", err)
	}

	success = true

	return nil
}
