package producer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
)

// Message is one unread mail as reported by a MailSource.
type Message struct {
	ID      string
	From    string
	To      string
	Subject string
	Date    string
	Snippet string
}

// MailSource fetches unread important mail. Implementations own the
// provider API and its authentication; the producer only turns messages
// into tasks.
type MailSource interface {
	Fetch(ctx context.Context) ([]Message, error)
}

// Mail polls a MailSource and creates an email_reply task per unread
// message, deduplicated by message ID across restarts.
type Mail struct {
	source         MailSource
	queue          store.Queue
	seen           *SeenSet
	jnl            *journal.Journal
	log            logging.Printer
	urgentKeywords []string
	knownContacts  []string
	now            func() time.Time
}

// MailOption customizes a Mail producer.
type MailOption func(*Mail)

// WithMailClock overrides the clock used in task names and headers.
func WithMailClock(clock func() time.Time) MailOption {
	return func(m *Mail) { m.now = clock }
}

// WithKnownContacts sets sender fragments that raise a mail's priority.
func WithKnownContacts(contacts []string) MailOption {
	return func(m *Mail) {
		m.knownContacts = make([]string, len(contacts))
		for i, c := range contacts {
			m.knownContacts[i] = strings.ToLower(strings.TrimSpace(c))
		}
	}
}

// NewMail wires a mail producer. urgentKeywords come from the vault
// config's chat section; the same words flag urgent mail.
func NewMail(source MailSource, queue store.Queue, seen *SeenSet, jnl *journal.Journal, log logging.Printer, urgentKeywords []string, opts ...MailOption) *Mail {
	m := &Mail{
		source:         source,
		queue:          queue,
		seen:           seen,
		jnl:            jnl,
		log:            log,
		urgentKeywords: urgentKeywords,
		knownContacts:  []string{"boss@", "manager@", "hr@", "support@", "billing@"},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PollOnce fetches unread mail and creates tasks for the new ones,
// returning how many it created. A fetch failure is returned so the
// caller can log and retry next cycle; it never wedges anything.
func (m *Mail) PollOnce(ctx context.Context) (int, error) {
	messages, err := m.source.Fetch(ctx)
	if err != nil {
		m.logEvent("mail_error", map[string]any{"error": err.Error()})
		return 0, fmt.Errorf("producer: fetch mail: %w", err)
	}
	created := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if msg.ID == "" || m.seen.Seen(msg.ID) {
			continue
		}
		if m.createTask(msg) {
			created++
		}
	}
	return created, nil
}

func (m *Mail) createTask(msg Message) bool {
	now := m.now()
	priority := m.priority(msg)
	risk := task.RiskMedium
	if priority == "urgent" {
		risk = task.RiskHigh
	}

	t := task.New(task.NewName(now, task.TypeEmail, msg.ID), task.TypeEmail, risk, now,
		fmt.Sprintf(`## Email Content
%s

## Suggested Actions
- [ ] Reply to sender
- [ ] Forward if needed
- [ ] Archive after processing

## Notes
`, msg.Snippet))
	t.Header["from"] = msg.From
	t.Header["subject"] = msg.Subject
	t.Header["received"] = now.Format(task.TimeLayout)
	t.Header["priority"] = priority

	if err := m.queue.Enqueue(store.StageNeedsAction, t.Name, t.Serialize()); err != nil {
		m.log.Printf("producer: create task for mail %s: %v", msg.ID, err)
		return false
	}
	if err := m.seen.Mark(msg.ID); err != nil {
		m.log.Printf("producer: mark mail %s seen: %v", msg.ID, err)
	}
	m.logEvent("email_processed", map[string]any{
		"email_id":  msg.ID,
		"from":      msg.From,
		"subject":   msg.Subject,
		"priority":  priority,
		"task_file": t.Name,
	})
	return true
}

// priority ranks a message: urgent keyword in the subject beats a known
// contact beats the default.
func (m *Mail) priority(msg Message) string {
	subject := strings.ToLower(msg.Subject)
	for _, kw := range m.urgentKeywords {
		if kw != "" && strings.Contains(subject, kw) {
			return "urgent"
		}
	}
	sender := strings.ToLower(msg.From)
	for _, contact := range m.knownContacts {
		if contact != "" && strings.Contains(sender, contact) {
			return "high"
		}
	}
	return "medium"
}

func (m *Mail) logEvent(eventType string, data map[string]any) {
	if m.jnl == nil {
		return
	}
	if err := m.jnl.Append(eventType, data); err != nil {
		m.log.Printf("producer: journal: %v", err)
	}
}
