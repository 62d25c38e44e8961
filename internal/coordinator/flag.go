package coordinator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FlagStore persists the needs-resume flag so it survives a restart.
type FlagStore interface {
	Get() (bool, error)
	Set(v bool) error
}

// FileFlag stores the flag as the presence of a file.
type FileFlag struct {
	path string
}

// NewFileFlag stores the flag as name inside dir.
func NewFileFlag(dir, name string) (*FileFlag, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileFlag{path: filepath.Join(dir, name)}, nil
}

// Get implements FlagStore.
func (f *FileFlag) Get() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Set implements FlagStore.
func (f *FileFlag) Set(v bool) error {
	if !v {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(f.path, []byte("1\n"), 0o644)
}

// MemFlag is an in-memory FlagStore.
type MemFlag struct {
	mu sync.Mutex
	v  bool
}

// Get implements FlagStore.
func (m *MemFlag) Get() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, nil
}

// Set implements FlagStore.
func (m *MemFlag) Set(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = v
	return nil
}
