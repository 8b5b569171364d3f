// Package file provides JSONL-backed store implementations. Records are
// written one JSON object per line so operators can inspect or grep the files
// directly.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// DeadLetterStore persists dead-letter entries as a JSONL file. Save rewrites
// the whole file through a temp-file rename so a crash never leaves a
// half-written queue.
type DeadLetterStore struct {
	mu   sync.Mutex
	path string
}

// NewDeadLetterStore creates a file-backed dead-letter store at path.
func NewDeadLetterStore(path string) *DeadLetterStore {
	return &DeadLetterStore{path: path}
}

// Compile-time interface check.
var _ storage.DeadLetterStore = (*DeadLetterStore)(nil)

// Load returns all entries in insertion order. A missing file is an empty queue.
func (s *DeadLetterStore) Load(_ context.Context) ([]*domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dead-letter file: %w", err)
	}

	var entries []*domain.DeadLetterEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e domain.DeadLetterEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse dead-letter line %d: %w", line, err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dead-letter file: %w", err)
	}

	return entries, nil
}

// Save replaces the stored entries with the given list.
func (s *DeadLetterStore) Save(_ context.Context, entries []*domain.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	for _, e := range entries {
		if e == nil {
			return storage.ErrInvalidInput
		}
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal dead-letter entry: %w", err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create dead-letter dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write dead-letter file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace dead-letter file: %w", err)
	}
	return nil
}
