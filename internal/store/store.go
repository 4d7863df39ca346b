// Package store implements the key-path store that holds persisted drive
// state: the current drive, each drive's provider, working path, provider
// fields and OAuth2 credentials. Keys are dot-separated paths into a tree of
// nested maps, e.g. "drives.work.auth.accessToken".
package store

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
)

// Store is a key-path get/set service. Implementations must treat a missing
// intermediate map as an absent key rather than an error.
type Store interface {
	Get(path string) (any, bool)
	Set(path string, value any) error
	Delete(path string) error
}

// ErrInvalidKey is returned for empty keys or keys with empty segments.
var ErrInvalidKey = errors.New("store: invalid key")

// tree is the nested map shared by MemoryStore and FileStore.
type tree map[string]any

func splitKey(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, path)
		}
	}

	return parts, nil
}

func (t tree) get(parts []string) (any, bool) {
	var cur any = map[string]any(t)

	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}

		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

func (t tree) set(parts []string, value any) {
	m := map[string]any(t)

	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}

		m = next
	}

	m[parts[len(parts)-1]] = value
}

func (t tree) delete(parts []string) {
	m := map[string]any(t)

	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			return
		}

		m = next
	}

	delete(m, parts[len(parts)-1])
}

// asMap accepts both map[string]any and tree so values decoded from TOML and
// values written through Set are traversed the same way.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case tree:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data tree
}

// NewMemoryStore returns an empty MemoryStore seeded with a copy of initial.
func NewMemoryStore(initial map[string]any) *MemoryStore {
	data := make(tree, len(initial))
	maps.Copy(data, initial)

	return &MemoryStore{data: data}
}

// Get returns the value at path and whether it exists.
func (s *MemoryStore) Get(path string) (any, bool) {
	parts, err := splitKey(path)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data.get(parts)
}

// Set stores value at path, creating intermediate maps as needed.
func (s *MemoryStore) Set(path string, value any) error {
	parts, err := splitKey(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.set(parts, value)

	return nil
}

// Delete removes path. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(path string) error {
	parts, err := splitKey(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.delete(parts)

	return nil
}

// GetString returns the string at path, or "" if absent or not a string.
func GetString(s Store, path string) string {
	v, ok := s.Get(path)
	if !ok {
		return ""
	}

	str, _ := v.(string)

	return str
}

// GetInt64 returns the integer at path, or 0 if absent. TOML decodes integers
// as int64; values set in memory may be any integer type.
func GetInt64(s Store, path string) int64 {
	v, ok := s.Get(path)
	if !ok {
		return 0
	}

	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// GetMap returns a shallow copy of the map at path, or nil if absent.
func GetMap(s Store, path string) map[string]any {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}

	m, ok := asMap(v)
	if !ok {
		return nil
	}

	return maps.Clone(m)
}
