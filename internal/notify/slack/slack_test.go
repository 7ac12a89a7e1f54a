package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/triage"
)

func escalation() *triage.Verdict {
	return &triage.Verdict{
		TicketID:    "T-1001",
		Urgency:     triage.UrgencyCritical,
		IssueType:   triage.IssueOutage,
		Sentiment:   triage.SentimentNeutral,
		RiskSignals: []triage.RiskSignal{triage.RiskHighValueAccount},
		Action:      triage.ActionEscalateToHuman,
		Queue:       triage.QueueEnterpriseSuccess,
		Mode:        triage.ModeRuleFallback,
		Degraded:    true,
		Overrides:   []string{triage.OverrideRegionOutage},
		ToolCalls: []triage.ToolCall{
			{Tool: "knowledge_base_search", Success: true},
			{Tool: "jira_create", Success: false},
		},
		TriagedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		bodies <- got
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.Send(context.Background(), "01JN123", escalation()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := <-bodies

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, summary, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Escalation: T-1001") {
		t.Errorf("header text = %q", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for critical urgency")
	}

	summary := blocks[4].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.Contains(summary, triage.OverrideRegionOutage) || !strings.Contains(summary, "2 (1 failed)") {
		t.Errorf("summary = %q", summary)
	}

	ctxText := blocks[6].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(ctxText, "01JN123") || !strings.Contains(ctxText, "2026-02-26 14:23 UTC") {
		t.Errorf("context = %q", ctxText)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", nil)
	if err := n.Send(context.Background(), "id", &triage.Verdict{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestFieldsBlock_DegradedAndRisks(t *testing.T) {
	t.Parallel()

	fields := fieldsBlock(escalation())["fields"].([]map[string]any)
	var texts []string
	for _, f := range fields {
		texts = append(texts, f["text"].(string))
	}
	joined := strings.Join(texts, "\n")
	for _, want := range []string{"*Queue:* enterprise_success", "*Risks:* high_value_account", "rule_fallback (degraded)"} {
		if !strings.Contains(joined, want) {
			t.Errorf("fields missing %q:\n%s", want, joined)
		}
	}
}

func TestSummaryBlock_TruncatesLongReasoning(t *testing.T) {
	t.Parallel()

	v := escalation()
	v.Reasoning = strings.Repeat("é", 5000)

	text := summaryBlock(v)["text"].(map[string]any)["text"].(string)
	body := strings.TrimPrefix(text, "*Summary*\n\n")
	if n := len([]rune(body)); n != maxSummaryLen {
		t.Errorf("summary runes = %d, want %d", n, maxSummaryLen)
	}
	if !strings.HasSuffix(body, "...") {
		t.Error("truncated summary should end with ...")
	}
}

func TestUrgencyEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		urgency triage.Urgency
		want    string
	}{
		{triage.UrgencyCritical, "\U0001f534"},
		{triage.UrgencyHigh, "\U0001f7e0"},
		{triage.UrgencyMedium, "\U0001f7e1"},
		{triage.UrgencyLow, "\U0001f7e2"},
		{"", "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.urgency), func(t *testing.T) {
			t.Parallel()
			if got := urgencyEmoji(tt.urgency); got != tt.want {
				t.Errorf("urgencyEmoji(%q) = %q, want %q", tt.urgency, got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("T-1", "critical", "Reasoning here.", "id")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "high", "*bold* _italic_ ~strike~", "x")
	f.Add("ticket\x00\x01\x02", "sev\nline", "reason\ttab", "i\x00d")
	f.Add(strings.Repeat("A", 5000), "low", strings.Repeat("x", 10000), "01J")

	f.Fuzz(func(t *testing.T, ticketID, urgency, reasoning, triageID string) {
		v := escalation()
		v.TicketID = ticketID
		v.Urgency = triage.Urgency(urgency)
		v.Reasoning = reasoning

		// Must not panic
		msg := buildMessage(triageID, v)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}
		blocks, ok := decoded["blocks"].([]any)
		if !ok || len(blocks) != 7 {
			t.Fatalf("blocks = %v", decoded["blocks"])
		}
	})
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.Send(context.Background(), "01JN789", escalation())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
