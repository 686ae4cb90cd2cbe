package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/task"
)

type fakePoster struct {
	calls int
	err   error
	last  string
}

func (f *fakePoster) Post(_ context.Context, text string) error {
	f.calls++
	f.last = text
	return f.err
}

func newTask(typ task.Type, body string) task.Task {
	return task.New("t.md", typ, task.RiskMedium, time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC), body)
}

func TestPaymentNeverExecutes(t *testing.T) {
	poster := &fakePoster{}
	exec := New(poster, logging.Discard{})
	for _, risk := range []task.RiskLevel{task.RiskLow, task.RiskMedium, task.RiskHigh} {
		pay := newTask(task.TypePayment, "- **amount**: 1200 EUR\n- **recipient**: ACME GmbH\n")
		pay.Risk = risk
		outcome := exec.Handle(context.Background(), pay)
		if !outcome.Success {
			t.Fatalf("risk %s: payment outcome should be success-as-logged", risk)
		}
		if outcome.Detail["action"] != "manual review required" {
			t.Fatalf("risk %s: detail = %v", risk, outcome.Detail)
		}
		if outcome.Detail["amount"] != "1200 EUR" || outcome.Detail["recipient"] != "ACME GmbH" {
			t.Fatalf("payment details not extracted: %v", outcome.Detail)
		}
	}
	if poster.calls != 0 {
		t.Fatalf("payment handler touched an external poster %d times", poster.calls)
	}
}

func TestUnknownTypeSucceeds(t *testing.T) {
	exec := New(nil, logging.Discard{})
	unknown := newTask(task.TypeUnknown, "who knows")
	outcome := exec.Handle(context.Background(), unknown)
	if !outcome.Success {
		t.Fatal("unknown type must not block the pipeline")
	}
}

func TestSocialPostPublishes(t *testing.T) {
	poster := &fakePoster{}
	exec := New(poster, logging.Discard{})
	post := newTask(task.TypeSocialPost, "## Post Content\nShipping week!\n\n## Notes\nnone\n")
	outcome := exec.Handle(context.Background(), post)
	if !outcome.Success || poster.calls != 1 {
		t.Fatalf("outcome = %+v, calls = %d", outcome, poster.calls)
	}
	if poster.last != "Shipping week!" {
		t.Fatalf("posted text = %q", poster.last)
	}
}

func TestSocialPostFailureReported(t *testing.T) {
	poster := &fakePoster{err: errors.New("api down")}
	exec := New(poster, logging.Discard{})
	post := newTask(task.TypeSocialPost, "## Post Content\nhello\n")
	outcome := exec.Handle(context.Background(), post)
	if outcome.Success {
		t.Fatal("external API failure must surface as executor failure")
	}
}

func TestSocialPostWithoutPosterSimulates(t *testing.T) {
	exec := New(nil, logging.Discard{})
	post := newTask(task.TypeSocialPost, "## Post Content\nhello\n")
	outcome := exec.Handle(context.Background(), post)
	if !outcome.Success || outcome.Detail["action"] != "simulated publish" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestEmailReplyExtractsAddress(t *testing.T) {
	exec := New(nil, logging.Discard{})
	mail := newTask(task.TypeEmail, "from: client@example.com\nsubject: invoice overdue\n")
	outcome := exec.Handle(context.Background(), mail)
	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Detail["to"] != "client@example.com" || outcome.Detail["subject"] != "invoice overdue" {
		t.Fatalf("detail = %v", outcome.Detail)
	}
}
