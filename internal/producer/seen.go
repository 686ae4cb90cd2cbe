// Package producer turns external observations (dropped files, unread
// mail, flagged chat messages) into task files in Needs_Action. Each
// producer keeps a durable seen-set under the vault's State directory so
// a restart never re-ingests what an earlier run already turned into a
// task.

package producer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SeenSet is a persistent set of already-ingested source identifiers.
// Every Mark rewrites the whole file; the sets stay small enough (one
// entry per email or message ever seen) that this beats partial-write
// corruption handling.
type SeenSet struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	ids map[string]struct{}
}

type seenFile struct {
	ProcessedIDs []string `json:"processed_ids"`
	LastUpdated  string   `json:"last_updated"`
}

// LoadSeenSet opens the set stored at path, starting empty when the file
// is missing. A corrupt file also starts empty: re-ingesting is the safe
// direction because downstream stages dedup again before acting.
func LoadSeenSet(path string) (*SeenSet, error) {
	s := &SeenSet{path: path, now: time.Now, ids: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("producer: read seen-set %s: %w", path, err)
	}
	var parsed seenFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return s, nil
	}
	for _, id := range parsed.ProcessedIDs {
		s.ids[id] = struct{}{}
	}
	return s, nil
}

// Seen reports whether id was already ingested.
func (s *SeenSet) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Mark records id and persists the set immediately, so a crash between
// creating a task and the next poll cannot double-ingest.
func (s *SeenSet) Mark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}

	out := seenFile{
		ProcessedIDs: make([]string, 0, len(s.ids)),
		LastUpdated:  s.now().Format(time.RFC3339),
	}
	for id := range s.ids {
		out.ProcessedIDs = append(out.ProcessedIDs, id)
	}
	sort.Strings(out.ProcessedIDs)

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("producer: encode seen-set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("producer: ensure state dir: %w", err)
	}
	if err := os.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("producer: write seen-set: %w", err)
	}
	return nil
}
