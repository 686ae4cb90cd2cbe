// Package briefing summarizes recently archived work into markdown
// reports under the vault's Briefings directory. With a summarizer
// configured the report carries a model-written narrative; without one it
// falls back to the bare statistics, which is still a valid briefing.

package briefing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/task"
)

// Summarizer turns a prompt into a narrative. reason.Client satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, system, user string) (string, error)
}

// Stats counts archived tasks by type over the briefing window.
type Stats struct {
	Total    int
	Posts    int
	Emails   int
	Files    int
	Chats    int
	Payments int
	Other    int
}

// Generator builds daily and weekly briefings from the Done archive.
type Generator struct {
	doneDir      string
	briefingsDir string
	summarizer   Summarizer
	log          logging.Printer
	now          func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for windows and file names.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) { g.now = clock }
}

// New wires a briefing generator. summarizer may be nil.
func New(doneDir, briefingsDir string, summarizer Summarizer, log logging.Printer, opts ...Option) *Generator {
	g := &Generator{
		doneDir:      doneDir,
		briefingsDir: briefingsDir,
		summarizer:   summarizer,
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Daily writes the last-24-hours briefing and returns its path. An empty
// window produces no file and no error.
func (g *Generator) Daily(ctx context.Context) (string, error) {
	return g.generate(ctx, 24*time.Hour, "daily", "Daily Briefing")
}

// Weekly writes the last-7-days briefing for Monday morning review.
func (g *Generator) Weekly(ctx context.Context) (string, error) {
	return g.generate(ctx, 7*24*time.Hour, "weekly_ceo", "Weekly CEO Briefing")
}

func (g *Generator) generate(ctx context.Context, window time.Duration, kind, title string) (string, error) {
	names, stats, err := g.recentDone(window)
	if err != nil {
		return "", err
	}
	if stats.Total == 0 {
		g.log.Printf("briefing: nothing archived in the last %s, skipping %s", window, kind)
		return "", nil
	}

	summary := g.statsSummary(stats)
	if g.summarizer != nil {
		narrative, sumErr := g.narrative(ctx, names, stats, kind)
		if sumErr != nil {
			g.log.Printf("briefing: summarizer failed, using statistics only: %v", sumErr)
		} else {
			summary = narrative
		}
	}

	now := g.now()
	name := fmt.Sprintf("%s_%s.md", now.Format("2006-01-02"), kind)
	path := filepath.Join(g.briefingsDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "---\ntype: %s\ngenerated: %s\nperiod: last %s\n---\n", kind, now.Format(task.TimeLayout), window)
	fmt.Fprintf(&b, "# %s\n\n**Generated:** %s\n\n", title, now.Format("2006-01-02 15:04"))
	b.WriteString("## Statistics\n")
	fmt.Fprintf(&b, "- Total tasks: %d\n", stats.Total)
	fmt.Fprintf(&b, "- Posts published: %d\n", stats.Posts)
	fmt.Fprintf(&b, "- Emails processed: %d\n", stats.Emails)
	fmt.Fprintf(&b, "- Files processed: %d\n", stats.Files)
	fmt.Fprintf(&b, "- Chat messages: %d\n", stats.Chats)
	fmt.Fprintf(&b, "- Payments flagged: %d\n", stats.Payments)
	fmt.Fprintf(&b, "\n---\n\n%s\n", summary)

	if err := os.MkdirAll(g.briefingsDir, 0o755); err != nil {
		return "", fmt.Errorf("briefing: ensure briefings dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("briefing: write %s: %w", name, err)
	}
	g.log.Printf("briefing: wrote %s", name)
	return path, nil
}

// recentDone lists Done task files modified within the window, newest
// first, and tallies them by type from their frontmatter.
func (g *Generator) recentDone(window time.Duration) ([]string, Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(g.doneDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("briefing: list done: %w", err)
	}
	cutoff := g.now().Add(-window)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		// DUPLICATE entries are cleared residue of work already archived
		// under another name; counting them would double-report.
		if strings.Contains(entry.Name(), "_DUPLICATE_") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil || info.ModTime().Before(cutoff) {
			continue
		}
		names = append(names, entry.Name())
		stats.Total++

		data, readErr := os.ReadFile(filepath.Join(g.doneDir, entry.Name()))
		if readErr != nil {
			stats.Other++
			continue
		}
		parsed, parseErr := task.Parse(entry.Name(), string(data))
		if parseErr != nil {
			stats.Other++
			continue
		}
		switch parsed.Type {
		case task.TypeSocialPost:
			stats.Posts++
		case task.TypeEmail:
			stats.Emails++
		case task.TypeFileDrop:
			stats.Files++
		case task.TypeChatMessage:
			stats.Chats++
		case task.TypePayment:
			stats.Payments++
		default:
			stats.Other++
		}
	}
	return names, stats, nil
}

func (g *Generator) narrative(ctx context.Context, names []string, stats Stats, kind string) (string, error) {
	listed := names
	if len(listed) > 20 {
		listed = listed[:20]
	}
	user := fmt.Sprintf(`Summarize these completed tasks in a CEO-friendly %s briefing.

Statistics:
%s

Recent completed tasks:
- %s

Provide:
1. Executive summary (2-3 sentences)
2. Key accomplishments
3. Any patterns or insights
4. Suggested focus for the next period

Keep it concise and professional.`, kind, g.statsSummary(stats), strings.Join(listed, "\n- "))
	return g.summarizer.Summarize(ctx, fmt.Sprintf("You are a business analyst creating a %s briefing.", kind), user)
}

func (g *Generator) statsSummary(stats Stats) string {
	return fmt.Sprintf(`## Activity Summary

- Total tasks completed: %d
- Posts published: %d
- Emails processed: %d
- Files processed: %d
- Chat messages: %d
- Payments flagged: %d
- Other: %d`, stats.Total, stats.Posts, stats.Emails, stats.Files, stats.Chats, stats.Payments, stats.Other)
}
