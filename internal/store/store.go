// Package store implements the vault's directory queue. Each stage is a
// directory; placing a file in a stage is enqueueing, and an atomic rename
// between stages is the ownership transfer that keeps independent
// processes from double-handling a task.

package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tealdesk/aide/internal/task"
)

var (
	// ErrExists reports an enqueue that would overwrite a task file.
	ErrExists = errors.New("store: task already exists")
	// ErrGone reports a move whose source vanished first. Losing that race
	// means another consumer already owns the task; it is not a failure.
	ErrGone = errors.New("store: task already handled elsewhere")
)

// Stage names the well-known vault directories.
type Stage string

const (
	StageInbox           Stage = "Inbox"
	StageNeedsAction     Stage = "Needs_Action"
	StagePlans           Stage = "Plans"
	StagePendingApproval Stage = "Pending_Approval"
	StageApproved        Stage = "Approved"
	StageRejected        Stage = "Rejected"
	StageDone            Stage = "Done"
)

// Stages lists every stage directory the queue manages.
func Stages() []Stage {
	return []Stage{
		StageInbox, StageNeedsAction, StagePlans, StagePendingApproval,
		StageApproved, StageRejected, StageDone,
	}
}

// Queue is the minimal surface the rest of the pipeline depends on, so a
// different durable queue could be substituted without touching the
// planner or the gate.
type Queue interface {
	Enqueue(stage Stage, name string, content string) error
	Move(name string, from, to Stage) error
	MoveAs(name string, from Stage, to Stage, newName string) error
	Copy(name string, from, to Stage, newName string) error
	List(stage Stage) ([]string, error)
	Read(stage Stage, name string) (task.Task, string, error)
	Exists(stage Stage, name string) bool
	Path(stage Stage, name string) string
}

// Dir is the filesystem-backed Queue rooted at the vault directory.
type Dir struct {
	root string
}

// NewDir opens a queue over root. Stage directories are created lazily by
// the writes that need them; config.InitVaultDirs handles the up-front
// bootstrap at process start.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Path resolves a task file inside a stage. An empty name resolves the
// stage directory itself.
func (d *Dir) Path(stage Stage, name string) string {
	if name == "" {
		return filepath.Join(d.root, string(stage))
	}
	return filepath.Join(d.root, string(stage), filepath.Base(name))
}

// Enqueue creates a new task file. The name must be unused; callers derive
// names from task.NewName so collisions are astronomically unlikely, and
// O_EXCL turns the remaining odds into a clean error instead of a silent
// overwrite.
func (d *Dir) Enqueue(stage Stage, name string, content string) error {
	path := d.Path(stage, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: ensure %s: %w", stage, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("store: enqueue %s/%s: %w", stage, name, ErrExists)
		}
		return fmt.Errorf("store: enqueue %s/%s: %w", stage, name, err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, content); err != nil {
		return fmt.Errorf("store: write %s/%s: %w", stage, name, err)
	}
	return nil
}

// Move transfers a task between stages keeping its name.
func (d *Dir) Move(name string, from, to Stage) error {
	return d.MoveAs(name, from, to, name)
}

// MoveAs transfers a task between stages under a new name. Rename within
// one volume is atomic; if the kernel reports a cross-device link the move
// degrades to copy-then-delete, which can leave the task briefly visible
// in both stages. Consumers tolerate that by checking their terminal stage
// before acting.
func (d *Dir) MoveAs(name string, from Stage, to Stage, newName string) error {
	src := d.Path(from, name)
	dst := d.Path(to, newName)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("store: ensure %s: %w", to, err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: move %s/%s: %w", from, name, ErrGone)
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if copyErr := d.copyFile(src, dst); copyErr != nil {
			if errors.Is(copyErr, fs.ErrNotExist) {
				return fmt.Errorf("store: move %s/%s: %w", from, name, ErrGone)
			}
			return fmt.Errorf("store: move %s/%s: %w", from, name, copyErr)
		}
		if rmErr := os.Remove(src); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("store: move %s/%s: remove source: %w", from, name, rmErr)
		}
		return nil
	}
	return fmt.Errorf("store: move %s/%s: %w", from, name, err)
}

// Copy duplicates a task into another stage without releasing ownership of
// the original.
func (d *Dir) Copy(name string, from, to Stage, newName string) error {
	dst := d.Path(to, newName)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("store: ensure %s: %w", to, err)
	}
	if err := d.copyFile(d.Path(from, name), dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: copy %s/%s: %w", from, name, ErrGone)
		}
		return fmt.Errorf("store: copy %s/%s: %w", from, name, err)
	}
	return nil
}

func (d *Dir) copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// List snapshots the markdown task files currently in a stage, oldest
// modification first. Each call re-enumerates from scratch; there is no
// cursor to lose across restarts.
func (d *Dir) List(stage Stage) ([]string, error) {
	entries, err := os.ReadDir(d.Path(stage, ""))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list %s: %w", stage, err)
	}
	type dated struct {
		name string
		mod  int64
	}
	tasks := make([]dated, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			// Raced with a concurrent move; the task belongs to someone else now.
			continue
		}
		tasks = append(tasks, dated{name: entry.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].mod != tasks[j].mod {
			return tasks[i].mod < tasks[j].mod
		}
		return tasks[i].name < tasks[j].name
	})
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.name
	}
	return names, nil
}

// Read loads and parses a task file, returning the parsed task plus the
// raw content. A header that cannot be parsed surfaces task.ErrUnparseable
// with the raw content intact so the caller can still archive the file.
func (d *Dir) Read(stage Stage, name string) (task.Task, string, error) {
	data, err := os.ReadFile(d.Path(stage, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return task.Task{}, "", fmt.Errorf("store: read %s/%s: %w", stage, name, ErrGone)
		}
		return task.Task{}, "", fmt.Errorf("store: read %s/%s: %w", stage, name, err)
	}
	parsed, parseErr := task.Parse(name, string(data))
	return parsed, string(data), parseErr
}

// Exists reports whether a task file is present in a stage.
func (d *Dir) Exists(stage Stage, name string) bool {
	_, err := os.Stat(d.Path(stage, name))
	return err == nil
}
