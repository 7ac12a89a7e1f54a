package triage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
)

const claudeTestModel = "claude-sonnet-4-20250514"

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	callIdx   int
	requests  []*LLMRequest
}

func (m *mockProvider) Send(_ context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return nil, ErrModelUnavailable
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

// classificationResponse builds a forced tool call carrying input.
func classificationResponse(input string) *LLMResponse {
	return &LLMResponse{
		Content: []ContentBlock{{
			Type:  "tool_use",
			ID:    "toolu_01",
			Name:  classificationToolName,
			Input: json.RawMessage(input),
		}},
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 400, OutputTokens: 60},
		Model:      claudeTestModel,
	}
}

// mockTool returns preconfigured Execute results.
type mockTool struct {
	name   string
	output json.RawMessage
	err    error
	panics bool
}

func (m *mockTool) Name() string                { return m.name }
func (m *mockTool) Description() string         { return "mock tool" }
func (m *mockTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if m.panics {
		panic("boom")
	}
	return m.output, m.err
}

// ruleSettings disables the model so runs are deterministic.
func ruleSettings() Settings {
	s := DefaultSettings()
	s.ModelEnabled = false
	return s
}

// fastSettings enables the model with millisecond backoff.
func fastSettings() Settings {
	s := DefaultSettings()
	s.Timeout = time.Second
	s.Backoff = time.Millisecond
	s.BackoffMax = 2 * time.Millisecond
	return s
}

// testRegistry builds every built-in tool over the embedded dataset.
func testRegistry(t *testing.T, cfg tools.Config) (*tools.Registry, *tools.Outbox) {
	t.Helper()
	ds, err := tools.DefaultDataset()
	if err != nil {
		t.Fatalf("DefaultDataset: %v", err)
	}
	if cfg.Enabled == nil {
		cfg.Enabled = tools.AllTools()
	}
	if cfg.Now == nil {
		cfg.Now = fixedClock
	}
	reg, outbox, err := tools.Build(cfg, ds)
	if err != nil {
		t.Fatalf("tools.Build: %v", err)
	}
	return reg, outbox
}

func newTestEngine(t *testing.T, provider Provider, settings Settings) (*Engine, *tools.Outbox) {
	t.Helper()
	reg, outbox := testRegistry(t, tools.Config{})
	return NewEngine(provider, reg, settings, log.Nop(), EngineHooks{}, WithClock(fixedClock)), outbox
}

func outageTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:            "T-1001",
		Subject:       "Production database down",
		Body:          "Our production database is not responding. All users are affected and we are losing money every minute.",
		CustomerEmail: "cto@bigcorp.com",
		Tier:          ticket.TierEnterprise,
		Region:        "us-east",
	}
}

func legalTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:            "T-1002",
		Subject:       "Refund demand",
		Body:          "I was charged twice and I want a refund immediately. This is unacceptable. If this isn't fixed today I'm contacting my lawyer.",
		CustomerEmail: "angry.customer@example.com",
		Tier:          ticket.TierPro,
	}
}

func passwordTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:            "T-1003",
		Subject:       "How do I reset my password?",
		Body:          "I forgot my password and can't find the reset link anywhere.",
		CustomerEmail: "new.user@example.com",
		CustomerName:  "Jordan Lee",
		Tier:          ticket.TierFree,
	}
}

func toolNames(calls []ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Tool
	}
	return names
}
