// Package history persists the conversation between runs as
// zstd-compressed JSON. Persistence is best effort.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// DefaultMaxMessages bounds how many messages are kept on disk.
const DefaultMaxMessages = 200

// ErrCorrupted is returned when the history file cannot be decoded.
var ErrCorrupted = errors.New("history file corrupted")

// Store saves and loads a conversation at a fixed path.
type Store struct {
	path        string
	maxMessages int

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type document struct {
	Version  int              `json:"version"`
	Messages []ttypes.Message `json:"messages"`
}

// NewStore creates a store writing to path. maxMessages <= 0 uses
// DefaultMaxMessages.
func NewStore(path string, maxMessages int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Store{path: path, maxMessages: maxMessages, encoder: enc, decoder: dec}, nil
}

// Path returns the file the store writes.
func (s *Store) Path() string { return s.path }

// Load returns the saved conversation, or nothing if there is none.
func (s *Store) Load() ([]ttypes.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return doc.Messages, nil
}

// Save replaces the saved conversation, keeping the newest messages.
func (s *Store) Save(messages []ttypes.Message) error {
	if len(messages) > s.maxMessages {
		messages = messages[len(messages)-s.maxMessages:]
	}
	raw, err := json.Marshal(document{Version: 1, Messages: messages})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, s.encoder.EncodeAll(raw, nil))
}

// Clear deletes the saved conversation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close releases the codec resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoder.Close()
	return s.encoder.Close()
}

// writeFileAtomic writes to a temp file first, then renames.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
