// Package journal persists pipeline events to one JSON file per calendar
// day. Every component appends here; nothing ever deletes. The
// read-append-rewrite cycle is deliberately not safe against two processes
// writing the same day file in the same instant. This is an accepted limitation
// of the no-coordinator design, not something to paper over with locks.

package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one journal record.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Journal appends events to daily files under the vault's Logs directory.
type Journal struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// Option customizes a Journal during construction.
type Option func(*Journal)

// WithClock overrides the clock used for event timestamps and day rollover.
func WithClock(clock func() time.Time) Option {
	return func(j *Journal) {
		j.now = clock
	}
}

// New creates a journal writing under dir.
func New(dir string, opts ...Option) *Journal {
	j := &Journal{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append records an event in today's file. Best effort: the caller's work
// already happened, so a journal failure is returned for logging but must
// never unwind a pipeline step.
func (j *Journal) Append(eventType string, data map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	path := j.dayPath(now)
	events, err := readDay(path)
	if err != nil {
		// A corrupt day file is abandoned rather than blocking new events.
		events = nil
	}
	events = append(events, Event{Type: eventType, Timestamp: now, Data: data})

	encoded, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: encode events: %w", err)
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("journal: ensure log dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Day returns the events recorded on a given date. A missing day file is
// an empty day, not an error.
func (j *Journal) Day(date time.Time) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	events, err := readDay(j.dayPath(date))
	if err != nil {
		return nil, fmt.Errorf("journal: read day %s: %w", date.Format(dayLayout), err)
	}
	return events, nil
}

const dayLayout = "2006-01-02"

func (j *Journal) dayPath(date time.Time) string {
	return filepath.Join(j.dir, date.Format(dayLayout)+".json")
}

func readDay(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}
