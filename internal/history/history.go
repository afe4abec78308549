// Package history keeps the local, append-only record of finished exam
// sessions and the cumulative set of missed question ids. Both live as
// JSON files; a missing or unreadable file degrades to empty state rather
// than failing, since history is a best-effort convenience.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"quizbank/internal/model"
)

const (
	historyFile = "history.json"
	missedFile  = "wrong_note.json"
)

// Ledger persists exam results and missed question ids under one directory.
type Ledger struct {
	historyPath string
	missedPath  string
	mu          sync.Mutex
}

// New creates a ledger rooted at dir, creating the directory if needed.
func New(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Ledger{
		historyPath: filepath.Join(dir, historyFile),
		missedPath:  filepath.Join(dir, missedFile),
	}, nil
}

// Append prepends a result to the stored history, keeping the list
// most-recent-first, and rewrites the file.
func (l *Ledger) Append(result model.SessionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	results := loadJSON[[]model.SessionResult](l.historyPath)
	results = append([]model.SessionResult{result}, results...)
	return writeJSON(l.historyPath, results)
}

// RecordMissed unions the given ids into the stored missed-question set.
// The union is idempotent; recording the same ids twice changes nothing.
func (l *Ledger) RecordMissed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	missed := loadJSON[[]int64](l.missedPath)
	for _, id := range ids {
		if !slices.Contains(missed, id) {
			missed = append(missed, id)
		}
	}
	slices.Sort(missed)
	return writeJSON(l.missedPath, missed)
}

// History returns the stored results, most recent first. Absent or corrupt
// storage yields an empty list.
func (l *Ledger) History() []model.SessionResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loadJSON[[]model.SessionResult](l.historyPath)
}

// Missed returns the stored missed-question id set.
func (l *Ledger) Missed() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loadJSON[[]int64](l.missedPath)
}

func loadJSON[T any](path string) T {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Debug("ignoring corrupt ledger file", "path", path, "error", err)
		var empty T
		return empty
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
