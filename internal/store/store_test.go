package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tealdesk/aide/internal/task"
)

func newQueue(t *testing.T) *Dir {
	t.Helper()
	return NewDir(t.TempDir())
}

func TestEnqueueRefusesOverwrite(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StageNeedsAction, "a.md", "---\ntype: generic\n---\n"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	err := q.Enqueue(StageNeedsAction, "a.md", "other")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestMoveTransfersOwnership(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StagePendingApproval, "a.md", "content"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Move("a.md", StagePendingApproval, StageApproved); err != nil {
		t.Fatalf("move: %v", err)
	}
	if q.Exists(StagePendingApproval, "a.md") {
		t.Fatal("source still present after move")
	}
	if !q.Exists(StageApproved, "a.md") {
		t.Fatal("destination missing after move")
	}
}

func TestMoveRaceLossIsErrGone(t *testing.T) {
	q := newQueue(t)
	err := q.Move("never-existed.md", StageApproved, StageDone)
	if !errors.Is(err, ErrGone) {
		t.Fatalf("err = %v, want ErrGone", err)
	}
}

func TestMoveAsRenames(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StageApproved, "a.md", "x"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.MoveAs("a.md", StageApproved, StageDone, "20260203_093000_APPROVED_a.md"); err != nil {
		t.Fatalf("move as: %v", err)
	}
	if !q.Exists(StageDone, "20260203_093000_APPROVED_a.md") {
		t.Fatal("renamed destination missing")
	}
}

func TestCopyKeepsSource(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StageNeedsAction, "a.md", "x"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Copy("a.md", StageNeedsAction, StagePendingApproval, "copy_a.md"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !q.Exists(StageNeedsAction, "a.md") || !q.Exists(StagePendingApproval, "copy_a.md") {
		t.Fatal("copy should leave both files present")
	}
}

func TestListOrdersByModTimeAndSkipsNonTasks(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StageNeedsAction, "b.md", "x"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(StageNeedsAction, "a.md", "x"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := os.WriteFile(q.Path(StageNeedsAction, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(q.Path(StageNeedsAction, "b.md"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	names, err := q.List(StageNeedsAction)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "b.md" || names[1] != "a.md" {
		t.Fatalf("names = %v", names)
	}
}

func TestListMissingStageIsEmpty(t *testing.T) {
	q := newQueue(t)
	names, err := q.List(StageRejected)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names = %v", names)
	}
}

func TestReadReportsUnparseableWithRawContent(t *testing.T) {
	q := newQueue(t)
	if err := q.Enqueue(StageApproved, "junk.md", "no frontmatter here"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, raw, err := q.Read(StageApproved, "junk.md")
	if !errors.Is(err, task.ErrUnparseable) {
		t.Fatalf("err = %v, want ErrUnparseable", err)
	}
	if raw != "no frontmatter here" {
		t.Fatalf("raw = %q", raw)
	}
}

func TestPathStaysInsideStage(t *testing.T) {
	q := newQueue(t)
	got := q.Path(StageDone, "../../etc/passwd")
	if filepath.Base(got) != "passwd" || filepath.Base(filepath.Dir(got)) != "Done" {
		t.Fatalf("path = %q", got)
	}
}
