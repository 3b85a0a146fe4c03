// Package filestore provides the key-value persistence port implementations:
// a JSON file on disk for the service, and an in-memory map for tests.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// namespace prefixes every key so the state file can never collide with
// unrelated data a deployment might share the path with.
const namespace = "ccg:"

// FileStore is a file-backed domain.Store. The whole map is rewritten on
// every Set; the data set is a handful of small slots, not a database.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	data map[string]string
}

// New opens (or lazily creates) the store at path. A missing or unreadable
// file starts empty rather than failing: persisted state is a convenience,
// never a requirement.
func New(path string, logger *slog.Logger) *FileStore {
	s := &FileStore{
		path:   path,
		logger: logger,
		data:   make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("state file unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn("state file corrupt, starting empty", "path", path, "error", err)
		s.data = make(map[string]string)
	}
	return s
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[namespace+key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[namespace+key] = value

	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Memory is an in-memory domain.Store for tests.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[namespace+key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace+key] = value
	return nil
}
