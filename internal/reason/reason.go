// Package reason defines the interface to the external reasoning
// collaborator and the client that speaks to an OpenAI-compatible chat
// completions endpoint. The planner only depends on the Reasoner
// interface, so tests (and an offline pipeline) swap in fakes freely.

package reason

import (
	"context"
	"strings"

	"github.com/tealdesk/aide/internal/task"
)

// Analysis is the outcome of analyzing one task.
type Analysis struct {
	// PlanText is the full reasoning transcript, markdown from the model.
	PlanText string
	Risk     task.RiskLevel
	// RequiresApproval is the final decision after the HIGH-risk override.
	RequiresApproval bool
}

// Reasoner analyzes a task's text and proposes a plan with a risk
// classification. Implementations retry transient failures internally up
// to a small fixed bound; an error here means the whole invocation failed
// and the caller should leave the task for the next cycle.
type Reasoner interface {
	Analyze(ctx context.Context, taskName, taskText string) (Analysis, error)
}

// ParseAssessment extracts the risk classification and approval flag from
// a reasoner's free-text response. Explicit HIGH risk always forces the
// approval path, whatever else the text said.
func ParseAssessment(text string) (task.RiskLevel, bool) {
	upper := strings.ToUpper(text)

	risk := task.RiskLow
	switch {
	case strings.Contains(upper, "HIGH RISK"),
		strings.Contains(upper, "RISK_LEVEL: HIGH"),
		strings.Contains(upper, "RISK LEVEL: HIGH"),
		strings.Contains(upper, "**HIGH**"):
		risk = task.RiskHigh
	case strings.Contains(upper, "MEDIUM"):
		risk = task.RiskMedium
	}

	requiresApproval := strings.Contains(upper, "REQUIRES APPROVAL: YES") ||
		strings.Contains(upper, "REQUIRES APPROVAL: TRUE") ||
		strings.Contains(upper, "FLAG FOR HUMAN APPROVAL") ||
		strings.Contains(upper, "HUMAN APPROVAL REQUIRED")

	if risk == task.RiskHigh {
		requiresApproval = true
	}
	return risk, requiresApproval
}
