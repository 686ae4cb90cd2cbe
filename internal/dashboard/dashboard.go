// Package dashboard maintains the human-facing Dashboard.md counters.
// Updates are read-modify-write on a markdown file and strictly best
// effort: a missing or mangled dashboard never fails the pipeline step
// that tried to record progress on it.

package dashboard

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Counter names the dashboard tallies the pipeline maintains.
type Counter string

const (
	CounterApproved        Counter = "approved"
	CounterRejected        Counter = "rejected"
	CounterPending         Counter = "pending"
	CounterPosts           Counter = "posts"
	CounterEmails          Counter = "emails"
	CounterPaymentsFlagged Counter = "payments_flagged"
)

var counterLabels = map[Counter]string{
	CounterApproved:        "Approved",
	CounterRejected:        "Rejected",
	CounterPending:         "Pending",
	CounterPosts:           "Posts Published",
	CounterEmails:          "Emails Processed",
	CounterPaymentsFlagged: "Payments Flagged",
}

const activityHeader = "## Recent Activity"

// Dashboard wraps the markdown file holding the counters.
type Dashboard struct {
	path string
	now  func() time.Time
}

// Option customizes a Dashboard.
type Option func(*Dashboard)

// WithClock overrides the clock used for activity timestamps.
func WithClock(clock func() time.Time) Option {
	return func(d *Dashboard) { d.now = clock }
}

// New wraps the dashboard file at path.
func New(path string, opts ...Option) *Dashboard {
	d := &Dashboard{path: path, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ensure seeds a fresh dashboard if none exists yet.
func (d *Dashboard) Ensure() error {
	if _, err := os.Stat(d.path); err == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("# Aide Dashboard\n\n## Counters\n")
	for _, c := range []Counter{
		CounterApproved, CounterRejected, CounterPending,
		CounterPosts, CounterEmails, CounterPaymentsFlagged,
	} {
		fmt.Fprintf(&b, "- %s: 0\n", counterLabels[c])
	}
	b.WriteString("\n" + activityHeader + "\n")
	return os.WriteFile(d.path, []byte(b.String()), 0o644)
}

// Increment bumps a counter by one. Unknown counters and missing
// dashboards are silently ignored.
func (d *Dashboard) Increment(counter Counter) {
	label, ok := counterLabels[counter]
	if !ok {
		return
	}
	content, err := os.ReadFile(d.path)
	if err != nil {
		return
	}
	pattern := regexp.MustCompile(`(- ` + regexp.QuoteMeta(label) + `:\s*)(\d+)`)
	updated := pattern.ReplaceAllStringFunc(string(content), func(match string) string {
		groups := pattern.FindStringSubmatch(match)
		current, convErr := strconv.Atoi(groups[2])
		if convErr != nil {
			return match
		}
		return groups[1] + strconv.Itoa(current+1)
	})
	_ = os.WriteFile(d.path, []byte(updated), 0o644)
}

// Value reads a counter's current value, zero when absent.
func (d *Dashboard) Value(counter Counter) int {
	label, ok := counterLabels[counter]
	if !ok {
		return 0
	}
	content, err := os.ReadFile(d.path)
	if err != nil {
		return 0
	}
	pattern := regexp.MustCompile(`- ` + regexp.QuoteMeta(label) + `:\s*(\d+)`)
	match := pattern.FindStringSubmatch(string(content))
	if match == nil {
		return 0
	}
	value, _ := strconv.Atoi(match[1])
	return value
}

// AddActivity prepends an entry to the Recent Activity section.
func (d *Dashboard) AddActivity(action, details, outcome string) {
	content, err := os.ReadFile(d.path)
	if err != nil {
		return
	}
	if len(details) > 100 {
		details = details[:100]
	}
	entry := fmt.Sprintf("- [%s] %s %s: %s", d.now().Format("2006-01-02 15:04"), outcome, action, details)
	text := string(content)
	if idx := strings.Index(text, activityHeader); idx >= 0 {
		insertAt := idx + len(activityHeader)
		text = text[:insertAt] + "\n" + entry + text[insertAt:]
	} else {
		text += "\n" + activityHeader + "\n" + entry + "\n"
	}
	_ = os.WriteFile(d.path, []byte(text), 0o644)
}
