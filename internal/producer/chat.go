package producer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/config"
	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
)

// ChatMessage is one unread message as reported by a ChatSource.
type ChatMessage struct {
	Chat      string
	Text      string
	Timestamp string
}

// ChatSource lists currently unread messages. Implementations own the
// messaging platform session; the producer only filters and files them.
type ChatSource interface {
	Unread(ctx context.Context) ([]ChatMessage, error)
}

// Chat polls a ChatSource and creates a chat_message task for every
// unread message matching the configured keywords. Messages with no
// keyword hit are skipped without being marked seen, so a later edit
// that adds a keyword still gets picked up.
type Chat struct {
	source ChatSource
	queue  store.Queue
	seen   *SeenSet
	jnl    *journal.Journal
	log    logging.Printer
	cfg    config.ChatConfig
	now    func() time.Time
}

// ChatOption customizes a Chat producer.
type ChatOption func(*Chat)

// WithChatClock overrides the clock used in task names and headers.
func WithChatClock(clock func() time.Time) ChatOption {
	return func(c *Chat) { c.now = clock }
}

// NewChat wires a chat producer with the vault's keyword configuration.
func NewChat(source ChatSource, queue store.Queue, seen *SeenSet, jnl *journal.Journal, log logging.Printer, cfg config.ChatConfig, opts ...ChatOption) *Chat {
	c := &Chat{
		source: source,
		queue:  queue,
		seen:   seen,
		jnl:    jnl,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PollOnce fetches unread messages and files the keyword matches,
// returning how many tasks it created.
func (c *Chat) PollOnce(ctx context.Context) (int, error) {
	messages, err := c.source.Unread(ctx)
	if err != nil {
		c.logEvent("chat_error", map[string]any{"error": err.Error()})
		return 0, fmt.Errorf("producer: fetch chat: %w", err)
	}
	created := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		key := msg.Chat + ":" + msg.Timestamp
		if c.seen.Seen(key) {
			continue
		}
		matched := c.matchKeywords(msg.Text)
		if len(matched) == 0 {
			continue
		}
		if c.createTask(msg, key, matched) {
			created++
		}
	}
	return created, nil
}

func (c *Chat) matchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range c.cfg.Keywords {
		if kw != "" && strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func (c *Chat) createTask(msg ChatMessage, key string, matched []string) bool {
	now := c.now()
	priority := "high"
	risk := task.RiskMedium
	for _, kw := range matched {
		for _, urgent := range c.cfg.UrgentKeywords {
			if kw == urgent {
				priority = "urgent"
				risk = task.RiskHigh
			}
		}
	}

	preview := msg.Text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}

	t := task.New(task.NewName(now, task.TypeChatMessage, msg.Chat), task.TypeChatMessage, risk, now,
		fmt.Sprintf(`## Message Content
%s

## Suggested Actions
- [ ] Draft reply
- [ ] Check if invoice/payment needed
- [ ] Notify human if payment involved

## Notes
`, msg.Text))
	t.Header["from"] = msg.Chat
	t.Header["message_preview"] = preview
	t.Header["received"] = now.Format(task.TimeLayout)
	t.Header["priority"] = priority
	t.Header["keywords_matched"] = strings.Join(matched, ", ")

	if err := c.queue.Enqueue(store.StageNeedsAction, t.Name, t.Serialize()); err != nil {
		c.log.Printf("producer: create task for chat %s: %v", msg.Chat, err)
		return false
	}
	if err := c.seen.Mark(key); err != nil {
		c.log.Printf("producer: mark chat %s seen: %v", key, err)
	}
	c.logEvent("chat_message", map[string]any{
		"chat":      msg.Chat,
		"keywords":  matched,
		"task_file": t.Name,
	})
	return true
}

func (c *Chat) logEvent(eventType string, data map[string]any) {
	if c.jnl == nil {
		return
	}
	if err := c.jnl.Append(eventType, data); err != nil {
		c.log.Printf("producer: journal: %v", err)
	}
}
