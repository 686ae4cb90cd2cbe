package producer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
	"github.com/tealdesk/aide/internal/watch"
)

// settleDelay gives a freshly dropped file a moment to finish being
// written before a task is cut for it.
const settleDelay = 100 * time.Millisecond

// FileDrop watches the Inbox drop folder and creates a file_drop task for
// every new file. The dropped file itself stays in Inbox; the task file
// is what moves through the pipeline.
type FileDrop struct {
	inbox string
	queue store.Queue
	seen  *SeenSet
	jnl   *journal.Journal
	log   logging.Printer
	now   func() time.Time
	sleep func(time.Duration)
}

// FileDropOption customizes a FileDrop producer.
type FileDropOption func(*FileDrop)

// WithFileDropClock overrides the clock used in task names and headers.
func WithFileDropClock(clock func() time.Time) FileDropOption {
	return func(f *FileDrop) { f.now = clock }
}

// WithFileDropSettle overrides the settle sleep so tests run instantly.
func WithFileDropSettle(sleep func(time.Duration)) FileDropOption {
	return func(f *FileDrop) { f.sleep = sleep }
}

// NewFileDrop wires a drop-folder producer over inbox.
func NewFileDrop(inbox string, queue store.Queue, seen *SeenSet, jnl *journal.Journal, log logging.Printer, opts ...FileDropOption) *FileDrop {
	f := &FileDrop{
		inbox: inbox,
		queue: queue,
		seen:  seen,
		jnl:   jnl,
		log:   log,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ScanOnce ingests every not-yet-seen file currently in the Inbox and
// returns how many tasks it created. One bad file never stops the scan.
func (f *FileDrop) ScanOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(f.inbox)
	if err != nil {
		return 0, fmt.Errorf("producer: list inbox: %w", err)
	}
	created := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if f.process(entry.Name()) {
			created++
		}
	}
	return created, nil
}

// Notify is the push path for a single file-creation event.
func (f *FileDrop) Notify(_ context.Context, name string) {
	if strings.HasPrefix(name, ".") {
		return
	}
	f.sleep(settleDelay)
	f.process(name)
}

// Watch runs the producer until the context is cancelled, pairing push
// events with a periodic rescan exactly like the approval gate does.
func (f *FileDrop) Watch(ctx context.Context, notifier *watch.Notifier, rescanEvery time.Duration) error {
	if _, err := f.ScanOnce(ctx); err != nil {
		f.log.Printf("producer: initial inbox scan: %v", err)
	}

	events := make(chan watch.Event, 16)
	go notifier.Run(ctx, func(ev watch.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	ticker := time.NewTicker(rescanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			f.Notify(ctx, ev.Name)
		case <-ticker.C:
			if _, err := f.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				f.log.Printf("producer: inbox rescan: %v", err)
			}
		}
	}
}

func (f *FileDrop) process(name string) bool {
	if f.seen.Seen(name) {
		return false
	}
	now := f.now()
	t := task.New(task.NewName(now, task.TypeFileDrop, name), task.TypeFileDrop, task.RiskMedium, now,
		fmt.Sprintf(`## File Details
- **original_name**: %s
- **detected**: %s

## Suggested Actions
- [ ] Review file
- [ ] Process and respond

## Notes
`, name, now.Format(task.TimeLayout)))
	t.Header["original_name"] = name
	t.Header["received"] = now.Format(task.TimeLayout)

	if err := f.queue.Enqueue(store.StageNeedsAction, t.Name, t.Serialize()); err != nil {
		f.log.Printf("producer: create task for %s: %v", name, err)
		return false
	}
	if err := f.seen.Mark(name); err != nil {
		f.log.Printf("producer: mark %s seen: %v", name, err)
	}
	f.logEvent("file_detected", map[string]any{"original_file": name, "task_file": t.Name})
	f.log.Printf("producer: inbox file %s -> %s", name, t.Name)
	return true
}

func (f *FileDrop) logEvent(eventType string, data map[string]any) {
	if f.jnl == nil {
		return
	}
	if err := f.jnl.Append(eventType, data); err != nil {
		f.log.Printf("producer: journal: %v", err)
	}
}
