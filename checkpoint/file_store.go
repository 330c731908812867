package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON file per task under a directory.
//
// Writes truncate and rewrite the file in place. There is no temp file and
// no rename, so a crash mid-write can leave a corrupt checkpoint; Load then
// reports ErrInvalid.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "checkpoints"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the checkpoint directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(taskID string) (string, error) {
	if taskID == "" || taskID == "." || taskID == ".." || filepath.Base(taskID) != taskID {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	return filepath.Join(s.dir, taskID+".json"), nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	path, err := s.path(cp.TaskID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, taskID string) (*Checkpoint, error) {
	path, err := s.path(taskID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cp, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, taskID string) error {
	path, err := s.path(taskID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
