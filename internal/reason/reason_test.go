package reason

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tealdesk/aide/internal/config"
	"github.com/tealdesk/aide/internal/logging"
	"github.com/tealdesk/aide/internal/task"
)

func TestParseAssessment(t *testing.T) {
	cases := []struct {
		text     string
		risk     task.RiskLevel
		approval bool
	}{
		{"This is HIGH RISK, flag for human approval", task.RiskHigh, true},
		{"risk_level: high\nrequires approval: no", task.RiskHigh, true},
		{"Risk Assessment: MEDIUM\nRequires Approval: YES", task.RiskMedium, true},
		{"Risk Assessment: MEDIUM\nRequires Approval: NO", task.RiskMedium, false},
		{"All fine, routine work", task.RiskLow, false},
	}
	for _, tc := range cases {
		risk, approval := ParseAssessment(tc.text)
		if risk != tc.risk || approval != tc.approval {
			t.Fatalf("ParseAssessment(%q) = (%s, %v), want (%s, %v)", tc.text, risk, approval, tc.risk, tc.approval)
		}
	}
}

func TestHighRiskAlwaysRequiresApproval(t *testing.T) {
	risk, approval := ParseAssessment("**HIGH** danger but requires approval: no")
	if risk != task.RiskHigh || !approval {
		t.Fatalf("got (%s, %v), want HIGH risk to force approval", risk, approval)
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := config.ReasonerConfig{BaseURL: serverURL, Model: "test-model", APIKey: "test-key"}
	c, err := NewClient(cfg, logging.Discard{}, WithSleep(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClientAnalyzeParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"## Plan\nHIGH RISK payment, flag for human approval"}}]}`)
	}))
	defer server.Close()

	analysis, err := newTestClient(t, server.URL).Analyze(context.Background(), "a.md", "pay the invoice")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Risk != task.RiskHigh || !analysis.RequiresApproval {
		t.Fatalf("analysis = %+v", analysis)
	}
	if !strings.Contains(analysis.PlanText, "## Plan") {
		t.Fatalf("plan text = %q", analysis.PlanText)
	}
}

func TestClientRetriesThenFails(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Analyze(context.Background(), "a.md", "text")
	if err == nil {
		t.Fatal("expected failure after retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestClientRecoversOnRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Risk Assessment: LOW"}}]}`)
	}))
	defer server.Close()

	analysis, err := newTestClient(t, server.URL).Analyze(context.Background(), "a.md", "text")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Risk != task.RiskLow {
		t.Fatalf("risk = %s", analysis.Risk)
	}
}

func TestLoopCompletesOnMarker(t *testing.T) {
	loop := NewLoop(5, func(reply string) bool { return strings.Contains(reply, "Requires Approval:") }, "")
	var steps int
	result, err := loop.Run(context.Background(), func(_ context.Context, history []Turn) (string, error) {
		steps++
		if steps < 3 {
			return "still thinking", nil
		}
		return "Requires Approval: NO", nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != LoopComplete || steps != 3 {
		t.Fatalf("state = %s, steps = %d", result.State, steps)
	}
	if result.Final != "Requires Approval: NO" {
		t.Fatalf("final = %q", result.Final)
	}
}

func TestLoopExhaustionWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	loop := NewLoop(2, func(string) bool { return false }, dir)
	result, err := loop.Run(context.Background(), func(_ context.Context, _ []Turn) (string, error) {
		return "never done", nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != LoopExhausted {
		t.Fatalf("state = %s", result.State)
	}
	if result.FailurePath == "" {
		t.Fatal("no failure artifact written")
	}
	data, err := os.ReadFile(result.FailurePath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "type: loop_failure") {
		t.Fatalf("artifact = %q", data)
	}
}

func TestLoopStepErrorAborts(t *testing.T) {
	loop := NewLoop(5, nil, "")
	boom := errors.New("boom")
	_, err := loop.Run(context.Background(), func(_ context.Context, _ []Turn) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
