package reason

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LoopState is the explicit state of a bounded conversation loop.
type LoopState string

const (
	LoopWorking   LoopState = "working"
	LoopComplete  LoopState = "complete"
	LoopExhausted LoopState = "exhausted"
)

// Turn is one exchange in the accumulated conversation history.
type Turn struct {
	Role    string
	Content string
}

// StepFunc produces the next reply given the history so far.
type StepFunc func(ctx context.Context, history []Turn) (string, error)

// Loop drives a conversation until the completion predicate accepts a
// reply or the iteration ceiling is hit. Hitting the ceiling is a terminal
// Exhausted state with a durable failure artifact, never an endless loop.
type Loop struct {
	// MaxIterations is the hard ceiling. Values <= 0 default to 5.
	MaxIterations int
	// Done reports whether a reply completes the conversation.
	Done func(reply string) bool
	// FailureDir receives the exhaustion artifact. Empty disables it.
	FailureDir string
	now        func() time.Time
}

// NewLoop builds a loop with the given ceiling and completion predicate.
func NewLoop(maxIterations int, done func(string) bool, failureDir string) *Loop {
	return &Loop{MaxIterations: maxIterations, Done: done, FailureDir: failureDir, now: time.Now}
}

// LoopResult captures where the loop ended and everything that was said.
type LoopResult struct {
	State   LoopState
	History []Turn
	// Final is the last assistant reply, valid when State is LoopComplete.
	Final string
	// FailurePath is the artifact written on exhaustion, if any.
	FailurePath string
}

// Run iterates step until completion or exhaustion. A step error aborts
// the loop immediately and is returned as-is; exhaustion is not an error
// from Run's perspective; the caller inspects the state.
func (l *Loop) Run(ctx context.Context, step StepFunc) (LoopResult, error) {
	ceiling := l.MaxIterations
	if ceiling <= 0 {
		ceiling = 5
	}
	result := LoopResult{State: LoopWorking}
	for i := 0; i < ceiling; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("reason: loop cancelled: %w", err)
		}
		reply, err := step(ctx, result.History)
		if err != nil {
			return result, err
		}
		result.History = append(result.History, Turn{Role: "assistant", Content: reply})
		if l.Done == nil || l.Done(reply) {
			result.State = LoopComplete
			result.Final = reply
			return result, nil
		}
		result.History = append(result.History, Turn{
			Role:    "user",
			Content: "The previous answer was incomplete. Continue and finish the required sections.",
		})
	}
	result.State = LoopExhausted
	result.FailurePath = l.writeFailureArtifact(result.History)
	return result, nil
}

func (l *Loop) writeFailureArtifact(history []Turn) string {
	if l.FailureDir == "" {
		return ""
	}
	now := l.now
	if now == nil {
		now = time.Now
	}
	var b strings.Builder
	b.WriteString("---\ntype: loop_failure\ncreated: " + now().UTC().Format(time.RFC3339) + "\n---\n")
	b.WriteString("# Conversation exhausted iteration ceiling\n\n")
	for i, turn := range history {
		fmt.Fprintf(&b, "## Turn %d (%s)\n\n%s\n\n", i+1, turn.Role, turn.Content)
	}
	path := filepath.Join(l.FailureDir, fmt.Sprintf("LOOP_FAILED_%s.md", now().Format("20060102_150405")))
	if err := os.MkdirAll(l.FailureDir, 0o755); err != nil {
		return ""
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return ""
	}
	return path
}
