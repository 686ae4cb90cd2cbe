package tui

import (
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
)

// runCommands feeds a command's messages back into the model until the
// chain settles, the way the bubbletea runtime would.
func runCommands(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		if i > 50 {
			t.Fatalf("command chain did not settle")
		}
		msg := cmd()
		if msg == nil {
			return m
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, sub := range batch {
				m = runCommands(t, m, sub)
			}
			return m
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			return m
		}
		m, cmd = m.Update(msg)
	}
	return m
}

func seedPending(t *testing.T, q store.Queue, name, typ, risk string) {
	t.Helper()
	content := "---\ntype: " + typ + "\nstatus: pending\nrisk: " + risk + "\n---\nDo the thing.\n"
	if err := q.Enqueue(store.StagePendingApproval, name, content); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func newReview(t *testing.T) (*Review, store.Queue, *journal.Journal) {
	t.Helper()
	q := store.NewDir(t.TempDir())
	jnl := journal.New(t.TempDir())
	r := NewReview(q, jnl, logging.Discard{})
	return r, q, jnl
}

func start(t *testing.T, r *Review) tea.Model {
	t.Helper()
	m := runCommands(t, r, r.Init())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func press(t *testing.T, m tea.Model, key rune) tea.Model {
	t.Helper()
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{key}})
	return runCommands(t, m, cmd)
}

func TestReviewListsPendingWithPreview(t *testing.T) {
	r, q, _ := newReview(t)
	seedPending(t, q, "20260203_090000_social_post_launch.md", "social_post", "MEDIUM")
	seedPending(t, q, "20260203_090100_payment_invoice.md", "payment", "HIGH")

	m := start(t, r)
	view := m.View()
	if !strings.Contains(view, "20260203_090000_social_post_launch.md") {
		t.Fatalf("view missing first pending item:\n%s", view)
	}
	if !strings.Contains(view, "Do the thing.") {
		t.Fatalf("view missing preview:\n%s", view)
	}
}

func TestApproveMovesFileAndJournals(t *testing.T) {
	r, q, jnl := newReview(t)
	seedPending(t, q, "20260203_090000_social_post_launch.md", "social_post", "MEDIUM")

	m := start(t, r)
	m = press(t, m, 'a')

	if q.Exists(store.StagePendingApproval, "20260203_090000_social_post_launch.md") {
		t.Fatalf("file still pending after approve")
	}
	if !q.Exists(store.StageApproved, "20260203_090000_social_post_launch.md") {
		t.Fatalf("file not in Approved after approve")
	}
	events, err := jnl.Day(time.Now())
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.Type == "approval_action" && ev.Data["action"] == "APPROVED" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no approval_action event: %+v", events)
	}
	if !strings.Contains(m.View(), "APPROVED 20260203_090000_social_post_launch.md") {
		t.Fatalf("status line missing:\n%s", m.View())
	}
}

func TestRejectMovesFileToRejected(t *testing.T) {
	r, q, _ := newReview(t)
	seedPending(t, q, "20260203_090000_payment_invoice.md", "payment", "HIGH")

	m := start(t, r)
	m = press(t, m, 'r')

	if !q.Exists(store.StageRejected, "20260203_090000_payment_invoice.md") {
		t.Fatalf("file not in Rejected after reject")
	}
	if !strings.Contains(m.View(), "No pending approvals.") {
		t.Fatalf("rejected file still listed:\n%s", m.View())
	}
}

func TestDecisionOnVanishedFileReportsHandledElsewhere(t *testing.T) {
	r, q, _ := newReview(t)
	seedPending(t, q, "20260203_090000_generic_task.md", "generic", "MEDIUM")

	m := start(t, r)
	// Another consumer grabs the file between listing and deciding.
	if err := os.Remove(q.Path(store.StagePendingApproval, "20260203_090000_generic_task.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	m = press(t, m, 'a')

	if !strings.Contains(m.View(), "already handled elsewhere") {
		t.Fatalf("missing race status:\n%s", m.View())
	}
	if q.Exists(store.StageApproved, "20260203_090000_generic_task.md") {
		t.Fatalf("vanished file appeared in Approved")
	}
}

func TestQuitKeysStopTheProgram(t *testing.T) {
	r, _, _ := newReview(t)
	m := start(t, r)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
}

func TestEmptyQueueShowsPlaceholder(t *testing.T) {
	r, _, _ := newReview(t)
	m := start(t, r)
	if !strings.Contains(m.View(), "No pending approvals.") {
		t.Fatalf("placeholder missing:\n%s", m.View())
	}
}
