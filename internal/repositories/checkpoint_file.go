package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sayu-ops/internal/models"
)

// FileCheckpointStore keeps checkpoints in a JSON file for sinks that cannot share a
// transaction with ops_checkpoints. Every save rewrites the file through a rename.
type FileCheckpointStore struct {
	path string
	mu   sync.Mutex
}

func NewFileCheckpointStore(path string) *FileCheckpointStore {
	return &FileCheckpointStore{path: path}
}

func fileKey(runKey, table string) string {
	return runKey + "/" + table
}

func (s *FileCheckpointStore) load() (map[string]models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}

	all := map[string]models.Checkpoint{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode checkpoints %s: %w", s.path, err)
	}
	return all, nil
}

func (s *FileCheckpointStore) write(all map[string]models.Checkpoint) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoints-*.json")
	if err != nil {
		return fmt.Errorf("write checkpoints: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoints: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoints: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write checkpoints: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileCheckpointStore) Get(_ context.Context, runKey, table string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	cp, ok := all[fileKey(runKey, table)]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *FileCheckpointStore) Save(_ context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC()
	all[fileKey(cp.RunKey, cp.Table)] = cp
	return s.write(all)
}

func (s *FileCheckpointStore) Delete(_ context.Context, runKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return 0, err
	}
	var n int64
	for k, cp := range all {
		if cp.RunKey == runKey {
			delete(all, k)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.write(all)
}

// List returns the checkpoints of runKey ordered by table.
func (s *FileCheckpointStore) List(_ context.Context, runKey string) ([]models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []models.Checkpoint
	for _, cp := range all {
		if cp.RunKey == runKey {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}
