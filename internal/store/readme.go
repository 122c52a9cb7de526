package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadmeStore writes per-commit README files under one subdirectory
// per model. Workers hold disjoint models, so two workers never write
// into the same subdirectory.
type ReadmeStore struct {
	Root string
}

func NewReadmeStore(root string) *ReadmeStore {
	return &ReadmeStore{Root: root}
}

// Save persists one commit's README under modelDir and returns the
// stored path. The subdirectory is created on first use.
func (s *ReadmeStore) Save(modelDir, commitID string, content []byte) (string, error) {
	dir := filepath.Join(s.Root, modelDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create readme dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, commitID+"_README.md")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write readme %s: %w", path, err)
	}
	return path, nil
}
