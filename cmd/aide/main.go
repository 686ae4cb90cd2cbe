// Command aide runs the vault pipeline. Every role (inbox producer,
// planner, approval gate, scheduler, review screen) is a subcommand over
// the same vault directory, so each can run as its own OS process and the
// filesystem stays the only coordination point between them.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/tealdesk/aide/internal/briefing"
	"github.com/tealdesk/aide/internal/config"
	"github.com/tealdesk/aide/internal/dashboard"
	"github.com/tealdesk/aide/internal/executor"
	"github.com/tealdesk/aide/internal/gate"
	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/planner"
	"github.com/tealdesk/aide/internal/producer"
	"github.com/tealdesk/aide/internal/reason"
	"github.com/tealdesk/aide/internal/schedule"
	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/task"
	"github.com/tealdesk/aide/internal/tui"
	"github.com/tealdesk/aide/internal/watch"
)

func main() {
	app := &cli.App{
		Name:  "aide",
		Usage: "filesystem-vault pipeline for human-approved task execution",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "vault directory (default ~/AideVault)",
				EnvVars: []string{"AIDE_VAULT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "Watch the vault: inbox producer plus approval gate, until signalled",
				Action: runWatch,
			},
			{
				Name:   "scan",
				Usage:  "One gate pass over Approved and Rejected, then exit",
				Action: runScan,
			},
			{
				Name:  "plan",
				Usage: "Analyze Needs_Action tasks into plans and approval requests",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "loop",
						Usage: "keep polling instead of a single pass",
					},
				},
				Action: runPlan,
			},
			{
				Name:  "create",
				Usage: "Create an approval request directly in Pending_Approval",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Value: "generic",
						Usage: "task type (file_drop, email_reply, chat_message, social_post, payment, generic)",
					},
					&cli.StringFlag{
						Name:  "risk",
						Value: "MEDIUM",
						Usage: "risk level (LOW, MEDIUM, HIGH)",
					},
					&cli.StringFlag{
						Name:  "note",
						Usage: "free-text description of the task",
					},
				},
				Action: runCreate,
			},
			{
				Name:   "list",
				Usage:  "List pending approvals with type, risk, and age",
				Action: runList,
			},
			{
				Name:      "approve",
				Usage:     "Approve a pending file by name",
				ArgsUsage: "FILE",
				Action:    runApprove,
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending file by name",
				ArgsUsage: "FILE",
				Action:    runReject,
			},
			{
				Name:  "jobs",
				Usage: "Run the scheduler (briefings, planner, gate rescans)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "run every job once and exit",
					},
				},
				Action: runJobs,
			},
			{
				Name:   "review",
				Usage:  "Interactive review of Pending_Approval",
				Action: runReview,
			},
		},
		Action: runWatch,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "aide: %v\n", err)
		os.Exit(1)
	}
}

// app holds the shared wiring every subcommand starts from.
type app struct {
	cfg   *config.Config
	log   *logging.Logger
	queue *store.Dir
	jnl   *journal.Journal
	dash  *dashboard.Dashboard
}

func setup(c *cli.Context) (*app, error) {
	cfg, err := config.New(c.String("vault"))
	if err != nil {
		return nil, err
	}
	if err := config.InitVaultDirs(cfg.VaultDir); err != nil {
		return nil, fmt.Errorf("initialize vault %s: %w", cfg.VaultDir, err)
	}
	log, err := logging.New(cfg.LogsDir())
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:   cfg,
		log:   log,
		queue: store.NewDir(cfg.VaultDir),
		jnl:   journal.New(cfg.LogsDir()),
		dash:  dashboard.New(cfg.DashboardPath()),
	}
	if err := a.dash.Ensure(); err != nil {
		// The dashboard is a convenience surface; a broken one is logged,
		// never fatal.
		log.Printf("main: dashboard: %v", err)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "aide: close log: %v\n", err)
	}
}

// reasonClient returns the configured reasoner client, or nil when no API
// key is set. Callers pass nil straight through; the planner and briefing
// generator both degrade to their offline fallbacks.
func (a *app) reasonClient() *reason.Client {
	if !a.cfg.Vault.Reasoner.Enabled() {
		a.log.Printf("main: no reasoner configured, running with fallback analysis")
		return nil
	}
	client, err := reason.NewClient(a.cfg.Vault.Reasoner, a.log, reason.WithFailureDir(a.cfg.LogsDir()))
	if err != nil {
		a.log.Printf("main: reasoner: %v", err)
		return nil
	}
	return client
}

func (a *app) newPlanner() *planner.Planner {
	// An interface holding a typed nil pointer is not nil, so the client
	// is only assigned when it exists.
	var reasoner reason.Reasoner
	if client := a.reasonClient(); client != nil {
		reasoner = client
	}
	return planner.New(a.queue, reasoner, a.jnl, a.log)
}

func (a *app) newGate() *gate.Gate {
	return gate.New(a.queue, executor.New(nil, a.log), a.jnl, a.dash, a.log)
}

func (a *app) newBriefing() *briefing.Generator {
	var summarizer briefing.Summarizer
	if client := a.reasonClient(); client != nil {
		summarizer = client
	}
	return briefing.New(
		a.queue.Path(store.StageDone, ""),
		a.cfg.BriefingsDir(),
		summarizer,
		a.log,
	)
}

func (a *app) newFileDrop() (*producer.FileDrop, error) {
	seen, err := producer.LoadSeenSet(filepath.Join(a.cfg.StateDir(), "processed_files.json"))
	if err != nil {
		return nil, err
	}
	return producer.NewFileDrop(a.cfg.InboxDir(), a.queue, seen, a.jnl, a.log), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func watchStages(a *app, stages ...store.Stage) (*watch.Notifier, error) {
	paths := make([]string, len(stages))
	for i, stage := range stages {
		paths[i] = a.queue.Path(stage, "")
	}
	return watch.NewNotifier(a.log, paths...)
}

func runWatch(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	g := a.newGate()
	gateNotifier, err := watchStages(a, store.StageApproved, store.StageRejected)
	if err != nil {
		return err
	}
	defer gateNotifier.Close()

	drop, err := a.newFileDrop()
	if err != nil {
		return err
	}
	inboxNotifier, err := watch.NewNotifier(a.log, a.cfg.InboxDir())
	if err != nil {
		return err
	}
	defer inboxNotifier.Close()

	fmt.Printf("Watching vault %s (ctrl+c to stop)\n", a.cfg.VaultDir)
	a.log.Printf("main: watch started on %s", a.cfg.VaultDir)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := g.Watch(ctx, gateNotifier, a.cfg.Vault.Intervals.Approval); err != nil {
			a.log.Printf("main: gate watch: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := drop.Watch(ctx, inboxNotifier, a.cfg.Vault.Intervals.Planner); err != nil {
			a.log.Printf("main: inbox watch: %v", err)
		}
	}()
	wg.Wait()

	a.log.Printf("main: watch stopped")
	fmt.Println("Stopped.")
	return nil
}

func runScan(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	return a.newGate().ScanOnce(c.Context)
}

func runPlan(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	p := a.newPlanner()
	if !c.Bool("loop") {
		n, err := p.RunOnce(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Planned %d task(s)\n", n)
		return nil
	}

	ctx, stop := signalContext(c.Context)
	defer stop()
	fmt.Printf("Planning every %s (ctrl+c to stop)\n", a.cfg.Vault.Intervals.Planner)
	ticker := time.NewTicker(a.cfg.Vault.Intervals.Planner)
	defer ticker.Stop()
	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.log.Printf("main: plan pass: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runCreate(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	typ := task.ParseType(c.String("type"))
	risk := task.ParseRisk(c.String("risk"))
	note := strings.TrimSpace(c.String("note"))
	if note == "" {
		note = "Manually created task."
	}

	now := time.Now()
	slug := note
	if idx := strings.IndexByte(slug, ' '); idx > 0 && idx < 30 {
		slug = slug[:idx]
	}
	name := task.NewName(now, typ, slug)
	body := fmt.Sprintf("## Notes\n\n%s\n", note)
	t := task.New(name, typ, risk, now, body).WithExpiry(now.Add(24 * time.Hour))

	if err := a.queue.Enqueue(store.StagePendingApproval, name, t.Serialize()); err != nil {
		return err
	}
	if err := a.jnl.Append("task_created", map[string]any{"file": name, "source": "cli"}); err != nil {
		a.log.Printf("main: journal: %v", err)
	}
	fmt.Printf("Created %s\n", a.queue.Path(store.StagePendingApproval, name))
	return nil
}

func runList(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	names, err := a.queue.List(store.StagePendingApproval)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}
	fmt.Printf("%-55s %-14s %-8s %s\n", "FILE", "TYPE", "RISK", "AGE")
	for _, name := range names {
		t, _, readErr := a.queue.Read(store.StagePendingApproval, name)
		if errors.Is(readErr, store.ErrGone) {
			continue
		}
		age := "?"
		if !t.CreatedAt.IsZero() {
			age = time.Since(t.CreatedAt).Round(time.Minute).String()
		}
		fmt.Printf("%-55s %-14s %-8s %s\n", name, t.Type, t.Risk, age)
	}
	return nil
}

func runApprove(c *cli.Context) error {
	return decide(c, store.StageApproved, "APPROVED")
}

func runReject(c *cli.Context) error {
	return decide(c, store.StageRejected, "REJECTED")
}

func decide(c *cli.Context, to store.Stage, action string) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("a pending file name is required")
	}
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.queue.Move(filepath.Base(name), store.StagePendingApproval, to); err != nil {
		if errors.Is(err, store.ErrGone) {
			return fmt.Errorf("%s is not pending (already decided?)", name)
		}
		return err
	}
	if err := a.jnl.Append("approval_action", map[string]any{"file": filepath.Base(name), "action": action}); err != nil {
		a.log.Printf("main: journal: %v", err)
	}
	fmt.Printf("%s %s; the gate will pick it up on its next pass\n", action, name)
	return nil
}

func runJobs(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	p := a.newPlanner()
	g := a.newGate()
	briefings := a.newBriefing()

	s := schedule.New(a.log)
	s.Add("daily-briefing", schedule.DailyAt(8, 0), func(ctx context.Context) error {
		_, err := briefings.Daily(ctx)
		return err
	})
	s.Add("weekly-ceo-briefing", schedule.WeeklyAt(time.Sunday, 21, 0), func(ctx context.Context) error {
		_, err := briefings.Weekly(ctx)
		return err
	})
	s.Add("plan-needs-action", schedule.Every(a.cfg.Vault.Intervals.Planner), func(ctx context.Context) error {
		_, err := p.RunOnce(ctx)
		return err
	})
	s.Add("approval-scan", schedule.Every(a.cfg.Vault.Intervals.Approval), g.ScanOnce)

	if c.Bool("once") {
		s.RunAll(c.Context)
		return nil
	}

	ctx, stop := signalContext(c.Context)
	defer stop()
	fmt.Println("Scheduler running (ctrl+c to stop)")
	return s.Run(ctx)
}

func runReview(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	program := tea.NewProgram(
		tui.NewReview(a.queue, a.jnl, a.log),
		tea.WithAltScreen(),
		tea.WithContext(c.Context),
	)
	_, err = program.Run()
	return err
}
