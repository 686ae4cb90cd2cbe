// Package planner consumes newly produced tasks from Needs_Action,
// obtains a plan and risk classification from the reasoning collaborator,
// and routes each task onward. Per task the machine is
// Received -> Analyzing -> {approval path | direct path} -> Archived.

package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/reason"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
)

// Planner drives one poll loop over Needs_Action.
type Planner struct {
	queue store.Queue
	// reasoner may be nil: the pipeline must never stall on reasoner
	// unavailability, so a nil reasoner takes the fixed fallback plan.
	reasoner reason.Reasoner
	journal  *journal.Journal
	log      logging.Printer
	now      func() time.Time
}

// Option customizes a Planner.
type Option func(*Planner)

// WithClock overrides the clock used for artifact names and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Planner) { p.now = clock }
}

// New wires a planner. reasoner may be nil for offline operation.
func New(queue store.Queue, reasoner reason.Reasoner, jnl *journal.Journal, log logging.Printer, opts ...Option) *Planner {
	p := &Planner{queue: queue, reasoner: reasoner, journal: jnl, log: log, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce processes every task currently visible in Needs_Action. Errors
// inside one task are logged and journaled but never abort the pass; a
// reasoner that is down simply leaves its task in place for the next
// cycle. The returned count is how many tasks reached a terminal routing.
func (p *Planner) RunOnce(ctx context.Context) (int, error) {
	names, err := p.queue.List(store.StageNeedsAction)
	if err != nil {
		return 0, fmt.Errorf("planner: %w", err)
	}
	processed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := p.processTask(ctx, name); err != nil {
			p.log.Printf("planner: %s: %v", name, err)
			p.logEvent("task_error", map[string]any{"task_file": name, "error": err.Error()})
			continue
		}
		processed++
	}
	return processed, nil
}

func (p *Planner) processTask(ctx context.Context, name string) error {
	t, raw, err := p.queue.Read(store.StageNeedsAction, name)
	if errors.Is(err, store.ErrGone) {
		// Another planner instance won the race. Already handled.
		return nil
	}
	if errors.Is(err, task.ErrUnparseable) {
		// Malformed headers are archived as invalid rather than dropped or
		// retried forever.
		return p.archiveInvalid(name)
	}
	if err != nil {
		return err
	}

	analysis, err := p.analyze(ctx, name, raw)
	if err != nil {
		// Task stays in Needs_Action; the next cycle retries the whole
		// analysis. Deliberately not moved anywhere.
		return fmt.Errorf("analysis failed, leaving task in place: %w", err)
	}

	planName, err := p.writePlan(name, analysis)
	if err != nil {
		return err
	}
	p.log.Printf("planner: created plan %s for %s (risk=%s approval=%v)", planName, name, analysis.Risk, analysis.RequiresApproval)

	if analysis.RequiresApproval {
		if err := p.stageForApproval(planName, name, t, analysis); err != nil {
			return err
		}
	}

	// The original is unconditionally archived, even when a live copy was
	// just staged for approval. Both representations exist on purpose.
	doneName := fmt.Sprintf("%s_%s", p.now().Format("20060102_150405"), name)
	if err := p.queue.MoveAs(name, store.StageNeedsAction, store.StageDone, doneName); err != nil && !errors.Is(err, store.ErrGone) {
		return err
	}

	p.logEvent("task_processed", map[string]any{
		"task_file":         name,
		"plan_file":         planName,
		"risk_level":        string(analysis.Risk),
		"requires_approval": analysis.RequiresApproval,
		"done_file":         doneName,
	})
	return nil
}

// analyze calls the reasoner, falling back to a fixed low-effort plan when
// none is configured. HIGH risk always forces the approval path, whatever
// the transcript claimed.
func (p *Planner) analyze(ctx context.Context, name, raw string) (reason.Analysis, error) {
	if p.reasoner == nil {
		return fallbackAnalysis(name), nil
	}
	analysis, err := p.reasoner.Analyze(ctx, name, raw)
	if err != nil {
		return reason.Analysis{}, err
	}
	if analysis.Risk == task.RiskHigh {
		analysis.RequiresApproval = true
	}
	return analysis, nil
}

func fallbackAnalysis(name string) reason.Analysis {
	text := fmt.Sprintf(`## Objective
Review and complete the task: %s

## Steps
- [ ] Review task details
- [ ] Execute required actions
- [ ] Document results

## Risk Assessment
Risk Level: MEDIUM (reasoner unavailable)

## Requires Approval: NO
`, name)
	return reason.Analysis{PlanText: text, Risk: task.RiskMedium, RequiresApproval: false}
}

// writePlan persists the plan artifact in Plans. The plan's lifecycle is
// independent of its source task from here on.
func (p *Planner) writePlan(taskName string, analysis reason.Analysis) (string, error) {
	now := p.now()
	base := strings.TrimSuffix(taskName, ".md")
	planName := fmt.Sprintf("PLAN_%s_%s.md", base, now.Format("20060102_150405"))

	header := map[string]string{
		"type":       "plan",
		"source":     taskName,
		"risk_level": string(analysis.Risk),
		"status":     string(task.StatusPending),
		"created":    now.Format(task.TimeLayout),
	}
	approvalLine := "NO"
	if analysis.RequiresApproval {
		approvalLine = "YES"
	}
	body := fmt.Sprintf("## Requires Approval: %s\n\n## Full Analysis\n%s\n", approvalLine, analysis.PlanText)
	if err := p.queue.Enqueue(store.StagePlans, planName, task.WriteFrontMatter(header, body)); err != nil {
		return "", err
	}
	return planName, nil
}

// stageForApproval copies the plan and the original task into
// Pending_Approval, stamping the approval metadata the gate and the human
// reviewer need. Copies, not moves: the original still gets archived.
func (p *Planner) stageForApproval(planName, taskName string, t task.Task, analysis reason.Analysis) error {
	now := p.now()
	stamp := now.Format("20060102_150405")

	approval := task.New(fmt.Sprintf("%s_%s", stamp, planName), t.Type, analysis.Risk, now, approvalBody(taskName, analysis))
	approval = approval.WithExpiry(now.Add(24 * time.Hour))
	if err := p.queue.Enqueue(store.StagePendingApproval, approval.Name, approval.Serialize()); err != nil {
		return err
	}

	if p.queue.Exists(store.StageNeedsAction, taskName) {
		copyName := fmt.Sprintf("%s_%s", stamp, taskName)
		if err := p.queue.Copy(taskName, store.StageNeedsAction, store.StagePendingApproval, copyName); err != nil && !errors.Is(err, store.ErrGone) {
			return err
		}
	}

	p.logEvent("approval_request_created", map[string]any{
		"type":       string(t.Type),
		"risk_level": string(analysis.Risk),
		"file":       approval.Name,
	})
	return nil
}

func approvalBody(taskName string, analysis reason.Analysis) string {
	return fmt.Sprintf(`## Action Required

- **source_task**: %s
- **risk**: %s

## Plan
%s

## To Approve
Move this file to the Approved folder to execute this action.

## To Reject
Move this file to the Rejected folder to decline this action.
`, taskName, analysis.Risk, analysis.PlanText)
}

func (p *Planner) archiveInvalid(name string) error {
	doneName := fmt.Sprintf("%s_INVALID_%s", p.now().Format("20060102_150405"), name)
	if err := p.queue.MoveAs(name, store.StageNeedsAction, store.StageDone, doneName); err != nil && !errors.Is(err, store.ErrGone) {
		return err
	}
	p.log.Printf("planner: archived unparseable task %s as %s", name, doneName)
	p.logEvent("task_invalid", map[string]any{"task_file": name, "done_file": doneName})
	return nil
}

func (p *Planner) logEvent(eventType string, data map[string]any) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Append(eventType, data); err != nil {
		p.log.Printf("planner: journal: %v", err)
	}
}
