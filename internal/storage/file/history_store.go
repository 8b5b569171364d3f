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

// HistoryStore persists history chain entries as an append-only JSONL file.
type HistoryStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// NewHistoryStore creates a file-backed history store at path.
func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{path: path}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

func (s *HistoryStore) ensureOpenLocked() error {
	if s.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	s.file = f
	s.w = bufio.NewWriter(f)
	return nil
}

// Append adds one entry to the end of the chain file and flushes it, so the
// record is visible to tailers immediately.
func (s *HistoryStore) Append(_ context.Context, e *domain.HistoryEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpenLocked(); err != nil {
		return fmt.Errorf("open history file: %w", err)
	}

	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("write history entry: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write history entry: %w", err)
	}
	return s.w.Flush()
}

// Last returns the most recent entry.
func (s *HistoryStore) Last(_ context.Context) (*domain.HistoryEntry, error) {
	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.ErrNotFound
	}
	return entries[len(entries)-1], nil
}

// Tail returns up to n most recent entries in chain order (oldest first).
func (s *HistoryStore) Tail(_ context.Context, n int) ([]*domain.HistoryEntry, error) {
	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	return entries[len(entries)-n:], nil
}

// Close flushes buffered appends and closes the file.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			firstErr = err
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.w = nil
	s.file = nil
	return firstErr
}

func (s *HistoryStore) readAll() ([]*domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return nil, fmt.Errorf("flush history file: %w", err)
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var entries []*domain.HistoryEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e domain.HistoryEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse history line %d: %w", line, err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history file: %w", err)
	}

	return entries, nil
}
