// Package executor performs (or deliberately refuses to perform) the
// real-world effect of an approved task. Dispatch is an exhaustive switch
// over the closed task.Type set; new variants are added here at compile
// time, not by string comparison scattered around the codebase.

package executor

import (
	"context"
	"strings"

	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/task"
)

// Outcome is what a handler reports back to the approval gate.
type Outcome struct {
	Success bool
	// Detail is structured context for the journal entry.
	Detail map[string]any
}

// Poster publishes a social post externally. Implementations do the HTTP
// work; a nil Poster simulates success so the pipeline runs offline.
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Executor dispatches approved tasks to their handlers.
type Executor struct {
	poster Poster
	log    logging.Printer
}

// New builds an executor. poster may be nil.
func New(poster Poster, log logging.Printer) *Executor {
	return &Executor{poster: poster, log: log}
}

// Handle runs the handler for the task's type. The two non-negotiables:
// payment tasks never trigger an automated payment (success means "logged
// for mandatory manual execution"), and unknown types never block the
// pipeline; they are logged and succeed so the task still reaches Done.
func (e *Executor) Handle(ctx context.Context, t task.Task) Outcome {
	switch t.Type {
	case task.TypePayment:
		return e.handlePayment(t)
	case task.TypeSocialPost:
		return e.handleSocialPost(ctx, t)
	case task.TypeEmail:
		return e.handleEmailReply(t)
	case task.TypeChatMessage:
		return e.handleChatMessage(t)
	case task.TypeFileDrop:
		return e.handleFileDrop(t)
	case task.TypeGeneric, task.TypeUnknown:
		return e.handleGeneric(t)
	default:
		// Unreachable while Type stays closed; treated like unknown anyway.
		return e.handleGeneric(t)
	}
}

// handlePayment never moves money. It extracts the details a human needs
// and reports success meaning "queued for mandatory manual execution".
// This rule is absolute and has no configuration escape hatch.
func (e *Executor) handlePayment(t task.Task) Outcome {
	amount := headerOrBodyField(t, "amount")
	recipient := headerOrBodyField(t, "recipient")
	e.log.Printf("executor: payment %s flagged for manual execution (amount=%s recipient=%s)", t.Name, amount, recipient)
	return Outcome{Success: true, Detail: map[string]any{
		"action":    "manual review required",
		"amount":    amount,
		"recipient": recipient,
	}}
}

func (e *Executor) handleSocialPost(ctx context.Context, t task.Task) Outcome {
	text := bodySection(t.Body, "Post Content")
	if text == "" {
		text = strings.TrimSpace(t.Body)
	}
	if text == "" {
		e.log.Printf("executor: social post %s has no content", t.Name)
		return Outcome{Success: false, Detail: map[string]any{"error": "no post content"}}
	}
	if e.poster == nil {
		e.log.Printf("executor: no poster configured, simulating publish of %s", t.Name)
		return Outcome{Success: true, Detail: map[string]any{"action": "simulated publish"}}
	}
	if err := e.poster.Post(ctx, text); err != nil {
		e.log.Printf("executor: publish %s failed: %v", t.Name, err)
		return Outcome{Success: false, Detail: map[string]any{"error": err.Error()}}
	}
	return Outcome{Success: true, Detail: map[string]any{"action": "published"}}
}

// handleEmailReply logs the reply for manual sending; there is no mail
// transport wired into the core.
func (e *Executor) handleEmailReply(t task.Task) Outcome {
	to := headerOrBodyField(t, "from")
	subject := headerOrBodyField(t, "subject")
	e.log.Printf("executor: email reply %s logged for manual send (to=%s subject=%s)", t.Name, to, subject)
	return Outcome{Success: true, Detail: map[string]any{
		"action":  "logged for manual send",
		"to":      to,
		"subject": subject,
	}}
}

func (e *Executor) handleChatMessage(t task.Task) Outcome {
	from := headerOrBodyField(t, "from")
	keywords := headerOrBodyField(t, "keywords_matched")
	e.log.Printf("executor: chat message %s logged for follow-up (from=%s keywords=%s)", t.Name, from, keywords)
	return Outcome{Success: true, Detail: map[string]any{
		"action":   "logged for follow-up",
		"from":     from,
		"keywords": keywords,
	}}
}

// handleFileDrop is a no-op: the planner already did the work when the
// file landed; completing here just archives the record.
func (e *Executor) handleFileDrop(t task.Task) Outcome {
	e.log.Printf("executor: file drop %s completed", t.Name)
	return Outcome{Success: true, Detail: map[string]any{"action": "completed"}}
}

func (e *Executor) handleGeneric(t task.Task) Outcome {
	e.log.Printf("executor: %s task %s logged for review", t.Type, t.Name)
	return Outcome{Success: true, Detail: map[string]any{"action": "logged for review", "type": string(t.Type)}}
}

// headerOrBodyField prefers a frontmatter key and falls back to a
// `key: value` line in the body, matching how producers write details.
func headerOrBodyField(t task.Task, key string) string {
	if v := strings.TrimSpace(t.Header[key]); v != "" {
		return v
	}
	prefix := key + ":"
	for _, line := range strings.Split(t.Body, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return ""
}

// bodySection returns the text under `## <heading>` up to the next heading.
func bodySection(body, heading string) string {
	lines := strings.Split(body, "\n")
	var collected []string
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			if inSection {
				break
			}
			inSection = strings.EqualFold(strings.TrimSpace(trimmed[3:]), heading)
			continue
		}
		if inSection {
			collected = append(collected, line)
		}
	}
	return strings.TrimSpace(strings.Join(collected, "\n"))
}
