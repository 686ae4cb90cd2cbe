// Package tui is the interactive review screen for Pending_Approval. It
// follows The Elm Architecture via bubbletea: the model holds all state,
// Update folds messages into it, View renders it. Approving or rejecting
// moves the file; the watching gate picks the decision up from there.

package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tealdesk/aide/internal/journal"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/store"
)

const previewLines = 30

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	previewBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	riskHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
)

// pendingItem implements list.Item for one file awaiting a decision.
type pendingItem struct {
	name string
	typ  string
	risk string
}

func (i pendingItem) Title() string { return i.name }
func (i pendingItem) Description() string {
	return fmt.Sprintf("type: %s · risk: %s", i.typ, i.risk)
}
func (i pendingItem) FilterValue() string { return i.name }

type refreshMsg struct {
	items    []pendingItem
	contents map[string]string
	err      error
}

type decisionMsg struct {
	name   string
	action string
	err    error
}

// Review is the pending-approval review model.
type Review struct {
	queue store.Queue
	jnl   *journal.Journal
	log   logging.Printer

	pending   list.Model
	contents  map[string]string
	statusMsg string
	err       error

	width  int
	height int
}

// NewReview builds the review screen over the vault queue. jnl may be nil.
func NewReview(queue store.Queue, jnl *journal.Journal, log logging.Printer) *Review {
	pending := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	pending.Title = "Pending Approval"
	pending.SetShowStatusBar(false)
	pending.SetFilteringEnabled(false)
	return &Review{
		queue:    queue,
		jnl:      jnl,
		log:      log,
		pending:  pending,
		contents: map[string]string{},
	}
}

// Init loads the pending list.
func (r *Review) Init() tea.Cmd {
	return r.refresh()
}

// Update folds one message into the model.
func (r *Review) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		r.pending.SetSize(max(20, msg.Width-4), max(5, msg.Height/2))
		return r, nil

	case refreshMsg:
		if msg.err != nil {
			r.err = msg.err
			return r, nil
		}
		r.err = nil
		r.contents = msg.contents
		items := make([]list.Item, len(msg.items))
		for i := range msg.items {
			items[i] = msg.items[i]
		}
		r.pending.SetItems(items)
		return r, nil

	case decisionMsg:
		if msg.err != nil {
			if errors.Is(msg.err, store.ErrGone) {
				r.statusMsg = fmt.Sprintf("%s was already handled elsewhere", msg.name)
			} else {
				r.statusMsg = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			}
		} else {
			r.statusMsg = fmt.Sprintf("%s %s", msg.action, msg.name)
		}
		return r, r.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return r, tea.Quit
		case "a":
			return r, r.decide(store.StageApproved, "APPROVED")
		case "r":
			return r, r.decide(store.StageRejected, "REJECTED")
		case "R":
			r.statusMsg = "Refreshing..."
			return r, r.refresh()
		}
	}

	var cmd tea.Cmd
	r.pending, cmd = r.pending.Update(msg)
	return r, cmd
}

// View renders the list, a preview of the selected file, and key hints.
func (r *Review) View() string {
	header := headerStyle.Render("⬡ AIDE · PENDING APPROVAL")
	if r.err != nil {
		return header + "\n" + fmt.Sprintf("error: %v", r.err)
	}

	sections := []string{header}
	if len(r.pending.Items()) == 0 {
		sections = append(sections, "No pending approvals.")
	} else {
		sections = append(sections, r.pending.View(), r.renderPreview())
	}
	footer := "a → approve    r → reject    R → refresh    q → quit"
	if r.statusMsg != "" {
		footer = r.statusMsg + "\n" + footer
	}
	sections = append(sections, footerStyle.Render(footer))
	return strings.Join(sections, "\n")
}

func (r *Review) renderPreview() string {
	item, ok := r.pending.SelectedItem().(pendingItem)
	if !ok {
		return ""
	}
	content, ok := r.contents[item.name]
	if !ok {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > previewLines {
		lines = append(lines[:previewLines], fmt.Sprintf("... (%d more lines)", len(lines)-previewLines))
	}
	body := strings.Join(lines, "\n")
	if strings.Contains(strings.ToUpper(item.risk), "HIGH") {
		body = riskHighStyle.Render("⚠ HIGH RISK") + "\n" + body
	}
	width := r.width - 4
	if width < 40 {
		width = 76
	}
	return previewBoxStyle.Width(width).Render(body)
}

func (r *Review) refresh() tea.Cmd {
	return func() tea.Msg {
		names, err := r.queue.List(store.StagePendingApproval)
		if err != nil {
			return refreshMsg{err: err}
		}
		items := make([]pendingItem, 0, len(names))
		contents := make(map[string]string, len(names))
		for _, name := range names {
			t, raw, readErr := r.queue.Read(store.StagePendingApproval, name)
			if errors.Is(readErr, store.ErrGone) {
				continue
			}
			item := pendingItem{name: name, typ: "unknown", risk: "MEDIUM"}
			if readErr == nil {
				item.typ = string(t.Type)
				item.risk = string(t.Risk)
			}
			items = append(items, item)
			contents[name] = raw
		}
		return refreshMsg{items: items, contents: contents}
	}
}

func (r *Review) decide(to store.Stage, action string) tea.Cmd {
	item, ok := r.pending.SelectedItem().(pendingItem)
	if !ok {
		r.statusMsg = "Nothing selected"
		return nil
	}
	name := item.name
	return func() tea.Msg {
		err := r.queue.Move(name, store.StagePendingApproval, to)
		if err == nil && r.jnl != nil {
			if jerr := r.jnl.Append("approval_action", map[string]any{"file": name, "action": action}); jerr != nil {
				r.log.Printf("tui: journal: %v", jerr)
			}
		}
		return decisionMsg{name: name, action: action, err: err}
	}
}
