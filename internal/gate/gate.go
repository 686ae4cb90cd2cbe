// Package gate mediates the human-reviewed transitions. It watches the
// Approved and Rejected stages through two complementary mechanisms, a
// push notifier on file creation and a periodic full rescan, and funnels
// both into a single dedup check so a task's handler runs at most once
// even when both mechanisms see the same file.

package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tealdesk/aide/internal/dashboard"
	"github.com/tealdesk/aide/internal/executor"
	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
)

// Outcome prefixes stamped onto Done file names for audit ordering.
const (
	OutcomeApproved  = "APPROVED"
	OutcomeRejected  = "REJECTED"
	OutcomeFailed    = "FAILED"
	OutcomeInvalid   = "INVALID"
	OutcomeDuplicate = "DUPLICATE"
)

// settleDelay gives a freshly created file a moment to finish being
// written before we read it. A heuristic against partial reads, not a
// correctness guarantee; correctness comes from the Done-existence check.
const settleDelay = 100 * time.Millisecond

// Gate processes operator decisions.
type Gate struct {
	queue store.Queue
	exec  *executor.Executor
	jnl   *journal.Journal
	dash  *dashboard.Dashboard
	log   logging.Printer
	now   func() time.Time
	sleep func(time.Duration)

	mu sync.Mutex
	// processed is the fast-path dedup cache. The durable source of truth
	// is the Done-stage existence check in alreadyDone.
	processed map[string]struct{}
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock overrides the clock used for Done prefixes.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.now = clock }
}

// WithSettle overrides the settle sleep so tests run instantly.
func WithSettle(sleep func(time.Duration)) Option {
	return func(g *Gate) { g.sleep = sleep }
}

// New wires an approval gate. dash may be nil.
func New(queue store.Queue, exec *executor.Executor, jnl *journal.Journal, dash *dashboard.Dashboard, log logging.Printer, opts ...Option) *Gate {
	g := &Gate{
		queue:     queue,
		exec:      exec,
		jnl:       jnl,
		dash:      dash,
		log:       log,
		now:       time.Now,
		sleep:     time.Sleep,
		processed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ScanOnce rescans both decision stages, the pull half of the detection
// scheme. Errors on one file never stop the rest of the scan.
func (g *Gate) ScanOnce(ctx context.Context) error {
	if err := g.scanStage(ctx, store.StageApproved); err != nil {
		return err
	}
	return g.scanStage(ctx, store.StageRejected)
}

func (g *Gate) scanStage(ctx context.Context, stage store.Stage) error {
	names, err := g.queue.List(stage)
	if err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.Process(ctx, stage, name)
	}
	return nil
}

// Notify is the push half: the change notifier calls it for every file
// creation event it sees. Duplicate and stale events are harmless; they
// hit the same dedup gate as the rescan.
func (g *Gate) Notify(ctx context.Context, stage store.Stage, name string) {
	if stage != store.StageApproved && stage != store.StageRejected {
		return
	}
	if !strings.HasSuffix(name, ".md") {
		return
	}
	g.sleep(settleDelay)
	g.Process(ctx, stage, name)
}

// Process handles one decided file end to end. Every path that claims the
// file routes it to Done exactly once; losing the claim race to another
// actor is treated as already handled.
func (g *Gate) Process(ctx context.Context, stage store.Stage, name string) {
	if !g.claim(stage, name) {
		return
	}
	if g.alreadyDone(name) {
		// Residue from a copy-then-delete move or a previous run. The real
		// archive already exists; clearing the stage copy under a DUPLICATE
		// marker keeps the stage clean without running the handler again.
		g.log.Printf("gate: %s already archived, clearing duplicate", name)
		g.archive(name, stage, OutcomeDuplicate)
		g.logEvent("approval_duplicate", map[string]any{"file": name, "stage": string(stage)})
		return
	}

	t, _, err := g.queue.Read(stage, name)
	if errors.Is(err, store.ErrGone) {
		return
	}
	if errors.Is(err, task.ErrUnparseable) {
		g.archive(name, stage, OutcomeInvalid)
		g.logEvent("approval_invalid", map[string]any{"file": name, "stage": string(stage)})
		return
	}
	if err != nil {
		g.log.Printf("gate: read %s: %v", name, err)
		g.release(stage, name)
		return
	}

	switch stage {
	case store.StageApproved:
		g.processApproved(ctx, t)
	case store.StageRejected:
		g.processRejected(t)
	}
}

func (g *Gate) processApproved(ctx context.Context, t task.Task) {
	outcome := g.exec.Handle(ctx, t)

	result := OutcomeApproved
	if !outcome.Success {
		result = OutcomeFailed
	}
	g.archive(t.Name, store.StageApproved, result)

	data := map[string]any{"type": string(t.Type), "file": t.Name, "success": outcome.Success}
	for k, v := range outcome.Detail {
		data[k] = v
	}
	g.logEvent("approval_executed", data)

	if g.dash != nil {
		if outcome.Success {
			g.dash.Increment(dashboard.CounterApproved)
		}
		switch t.Type {
		case task.TypeSocialPost:
			g.dash.Increment(dashboard.CounterPosts)
		case task.TypeEmail:
			g.dash.Increment(dashboard.CounterEmails)
		case task.TypePayment:
			g.dash.Increment(dashboard.CounterPaymentsFlagged)
		}
		g.dash.AddActivity(string(t.Type), t.Name, result)
	}
}

func (g *Gate) processRejected(t task.Task) {
	g.archive(t.Name, store.StageRejected, OutcomeRejected)
	g.logEvent("approval_rejected", map[string]any{"type": string(t.Type), "file": t.Name})
	if g.dash != nil {
		g.dash.Increment(dashboard.CounterRejected)
		g.dash.AddActivity(string(t.Type), t.Name, OutcomeRejected)
	}
}

// archive moves a file to Done under its outcome- and timestamp-prefixed
// audit name. A move that loses to a concurrent actor is already handled.
func (g *Gate) archive(name string, from store.Stage, outcome string) {
	doneName := fmt.Sprintf("%s_%s_%s", g.now().Format("20060102_150405"), outcome, name)
	if err := g.queue.MoveAs(name, from, store.StageDone, doneName); err != nil {
		if errors.Is(err, store.ErrGone) {
			return
		}
		g.log.Printf("gate: archive %s: %v", name, err)
		return
	}
	g.log.Printf("gate: %s -> Done/%s", name, doneName)
}

// claim reserves a path in the in-memory dedup set. False means this
// process already handled (or is handling) the file.
func (g *Gate) claim(stage store.Stage, name string) bool {
	key := string(stage) + "/" + name
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.processed[key]; seen {
		return false
	}
	g.processed[key] = struct{}{}
	return true
}

func (g *Gate) release(stage store.Stage, name string) {
	key := string(stage) + "/" + name
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.processed, key)
}

// alreadyDone is the durable dedup check that survives restarts: if a
// Done entry whose name ends with this file's name exists, some run of
// some process already archived it.
func (g *Gate) alreadyDone(name string) bool {
	done, err := g.queue.List(store.StageDone)
	if err != nil {
		return false
	}
	for _, archived := range done {
		if strings.HasSuffix(archived, "_"+name) {
			return true
		}
	}
	return false
}

func (g *Gate) logEvent(eventType string, data map[string]any) {
	if g.jnl == nil {
		return
	}
	if err := g.jnl.Append(eventType, data); err != nil {
		g.log.Printf("gate: journal: %v", err)
	}
}
