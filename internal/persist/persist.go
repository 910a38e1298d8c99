// Package persist stores the stream configuration set as a single JSON
// document. Only configuration is persisted; operational state (samples,
// health, incidents) is rebuilt from live probing after a restart.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// FileStore reads and writes the streams document at a fixed path.
//
// Thread-safe: writes are serialized and go through a temp-file rename
// so a crash mid-write cannot corrupt the document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted streams. A missing file is not an error: it
// returns a nil slice.
func (f *FileStore) Load() ([]model.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read streams file: %w", err)
	}

	var streams []model.Stream
	if err := json.Unmarshal(data, &streams); err != nil {
		return nil, fmt.Errorf("parse streams file %s: %w", f.path, err)
	}
	return streams, nil
}

// Save writes the full stream set, replacing the document.
func (f *FileStore) Save(streams []model.Stream) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(streams, "", "  ")
	if err != nil {
		return fmt.Errorf("encode streams: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write streams file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace streams file: %w", err)
	}
	return nil
}
