package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tealdesk/aide/internal/config"
	"github.com/tealdesk/aide/internal/logging"
)

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
	// assessmentTurns bounds the conversation nudging a model that replied
	// without a risk assessment.
	assessmentTurns = 3
	systemPrompt    = "You are a personal office assistant. Analyze the task and produce a " +
		"step-by-step action plan in markdown with checkboxes, an Objective section, a " +
		"Risk Assessment (LOW/MEDIUM/HIGH), and a 'Requires Approval: YES/NO' line. " +
		"Tasks involving money, messages to unknown contacts, or deletions are HIGH RISK " +
		"and must be flagged for human approval."
)

// Client calls an OpenAI-compatible chat completions endpoint with bounded
// retry on transient failure.
type Client struct {
	cfg        config.ReasonerConfig
	http       *http.Client
	log        logging.Printer
	sleep      func(time.Duration)
	failureDir string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithSleep overrides the retry delay function so tests run instantly.
func WithSleep(sleep func(time.Duration)) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithFailureDir sets where an exhausted analysis conversation leaves its
// transcript artifact.
func WithFailureDir(dir string) ClientOption {
	return func(c *Client) { c.failureDir = dir }
}

// NewClient builds a reasoner client from configuration.
func NewClient(cfg config.ReasonerConfig, log logging.Printer, opts ...ClientOption) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("reason: reasoner not configured (set AIDE_REASONER_KEY)")
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: 60 * time.Second},
		log:   log,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze drives a bounded conversation with the model until a reply
// carries a risk assessment. Transport failures are retried maxAttempts
// times with a fixed delay inside each turn; a model that never produces
// an assessment exhausts the loop, leaves a transcript artifact, and the
// task stays put for the next cycle.
func (c *Client) Analyze(ctx context.Context, taskName, taskText string) (Analysis, error) {
	prompt := fmt.Sprintf("Task file: %s\n\nTask content:\n%s\n", taskName, taskText)
	loop := NewLoop(assessmentTurns, hasAssessment, c.failureDir)
	result, err := loop.Run(ctx, func(ctx context.Context, history []Turn) (string, error) {
		messages := []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}
		for _, turn := range history {
			messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
		}
		return c.complete(ctx, messages)
	})
	if err != nil {
		return Analysis{}, err
	}
	if result.State == LoopExhausted {
		return Analysis{}, fmt.Errorf("reason: analyze %s: no risk assessment after %d turns", taskName, assessmentTurns)
	}
	risk, requiresApproval := ParseAssessment(result.Final)
	return Analysis{PlanText: result.Final, Risk: risk, RequiresApproval: requiresApproval}, nil
}

// hasAssessment accepts a reply that carries any risk wording; the precise
// level is extracted later by ParseAssessment.
func hasAssessment(reply string) bool {
	return strings.Contains(strings.ToUpper(reply), "RISK")
}

// Summarize sends an arbitrary system/user prompt pair to the model and
// returns the raw reply. Used by the briefing generator; task analysis
// goes through Analyze instead.
func (c *Client) Summarize(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", fmt.Errorf("reason: encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, attemptErr := c.completeOnce(ctx, payload)
		if attemptErr == nil {
			return reply, nil
		}
		lastErr = attemptErr
		c.log.Printf("reason: attempt %d/%d failed: %v", attempt, maxAttempts, attemptErr)
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			c.sleep(retryDelay)
		}
	}
	return "", fmt.Errorf("reason: analyze failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, payload []byte) (string, error) {
	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
