package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoPath is returned when a file store is opened without a path.
var ErrNoPath = errors.New("memory: file path required")

// FileStore is a MemoryStore persisted to a JSON file after every append.
type FileStore struct {
	mem  *MemoryStore
	path string
	mu   sync.Mutex // serializes writes
}

type fileSnapshot struct {
	Records map[string][]Record `json:"records"`
}

// NewFileStore opens path, loading existing records if the file exists.
func NewFileStore(path string, max int) (*FileStore, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	s := &FileStore{mem: NewMemoryStore(max), path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append stores r and rewrites the file when r is new.
func (s *FileStore) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem.mu.Lock()
	added := s.mem.appendLocked(r)
	s.mem.mu.Unlock()

	if !added {
		return nil
	}
	return s.save()
}

// Recent returns up to n records for agentID, oldest first.
func (s *FileStore) Recent(ctx context.Context, agentID string, n int) ([]Record, error) {
	return s.mem.Recent(ctx, agentID, n)
}

// HasAuthor reports whether author has any record for agentID.
func (s *FileStore) HasAuthor(ctx context.Context, agentID, author string) (bool, error) {
	return s.mem.HasAuthor(ctx, agentID, author)
}

// Close is a no-op; every append is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileSnapshot{Records: s.mem.snapshot()}, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("memory: create directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("memory: replace file: %w", err)
	}
	return nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memory: read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("memory: decode %s: %w", s.path, err)
	}

	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	for _, list := range snap.Records {
		for _, r := range list {
			s.mem.appendLocked(r)
		}
	}
	return nil
}

var _ Store = (*FileStore)(nil)
