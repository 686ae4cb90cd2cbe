package briefing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tealdesk/aide/internal/logging"
)

type fakeSummarizer struct {
	reply string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(context.Context, string, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func seedDone(t *testing.T, dir, name, typ string) {
	t.Helper()
	content := "---\ntype: " + typ + "\nstatus: done\n---\narchived\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestDailyCountsByType(t *testing.T) {
	done := t.TempDir()
	out := t.TempDir()
	seedDone(t, done, "a_APPROVED_post.md", "social_post")
	seedDone(t, done, "b_APPROVED_mail.md", "email_reply")
	seedDone(t, done, "c_APPROVED_pay.md", "payment")
	seedDone(t, done, "d_INVALID_junk.md", "mystery")
	// Cleared residue of an archive that already exists; must not be
	// counted a second time.
	seedDone(t, done, "e_DUPLICATE_post.md", "social_post")

	g := New(done, out, nil, logging.Discard{}, WithClock(fixedClock()))
	path, err := g.Daily(context.Background())
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if filepath.Base(path) != "2026-02-03_daily.md" {
		t.Fatalf("path = %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(content)
	for _, want := range []string{
		"Total tasks: 4",
		"Posts published: 1",
		"Emails processed: 1",
		"Payments flagged: 1",
		"Other: 1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("briefing missing %q:\n%s", want, text)
		}
	}
}

func TestEmptyWindowWritesNothing(t *testing.T) {
	done := t.TempDir()
	out := t.TempDir()
	g := New(done, out, nil, logging.Discard{}, WithClock(fixedClock()))
	path, err := g.Daily(context.Background())
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if path != "" {
		t.Fatalf("path = %s, want none", path)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Fatalf("briefings dir = %v", entries)
	}
}

func TestWeeklyUsesSummarizerNarrative(t *testing.T) {
	done := t.TempDir()
	out := t.TempDir()
	seedDone(t, done, "a_APPROVED_post.md", "social_post")

	sum := &fakeSummarizer{reply: "Strong week: one post shipped."}
	g := New(done, out, sum, logging.Discard{}, WithClock(fixedClock()))
	path, err := g.Weekly(context.Background())
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if sum.calls != 1 {
		t.Fatalf("summarizer calls = %d", sum.calls)
	}
	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "Strong week: one post shipped.") {
		t.Fatalf("narrative missing:\n%s", content)
	}
	if filepath.Base(path) != "2026-02-03_weekly_ceo.md" {
		t.Fatalf("path = %s", path)
	}
}

func TestSummarizerFailureFallsBackToStats(t *testing.T) {
	done := t.TempDir()
	out := t.TempDir()
	seedDone(t, done, "a_APPROVED_mail.md", "email_reply")

	sum := &fakeSummarizer{err: errors.New("model offline")}
	g := New(done, out, sum, logging.Discard{}, WithClock(fixedClock()))
	path, err := g.Daily(context.Background())
	if err != nil {
		t.Fatalf("daily must not fail with the summarizer down: %v", err)
	}
	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "Activity Summary") {
		t.Fatalf("stats fallback missing:\n%s", content)
	}
}
