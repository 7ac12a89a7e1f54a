// Package slack sends escalation notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/docket/internal/triage"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts triage verdicts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts a verdict to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, triageID string, v *triage.Verdict) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(triageID, v))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "escalation notification sent",
		"triage_id", triageID,
		"ticket_id", v.TicketID,
		"queue", v.Queue,
	)
	return nil
}

func buildMessage(triageID string, v *triage.Verdict) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("Ticket %s escalated to %s", v.TicketID, v.Queue),
		"blocks": []map[string]any{
			headerBlock(v),
			{"type": "divider"},
			fieldsBlock(v),
			{"type": "divider"},
			summaryBlock(v),
			{"type": "divider"},
			contextBlock(triageID, v),
		},
	}
}

func headerBlock(v *triage.Verdict) map[string]any {
	title := "Ticket Triaged"
	if v.Action == triage.ActionEscalateToHuman {
		title = "Escalation"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %s", urgencyEmoji(v.Urgency), title, v.TicketID),
		},
	}
}

func fieldsBlock(v *triage.Verdict) map[string]any {
	risks := "none"
	if len(v.RiskSignals) > 0 {
		parts := make([]string, len(v.RiskSignals))
		for i, r := range v.RiskSignals {
			parts[i] = string(r)
		}
		risks = strings.Join(parts, ", ")
	}

	mode := string(v.Mode)
	if v.Degraded {
		mode += " (degraded)"
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Urgency:* %s", v.Urgency)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Queue:* %s", v.Queue)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Issue:* %s", v.IssueType)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Sentiment:* %s", v.Sentiment)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Risks:* %s", risks)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Classifier:* %s", mode)},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(v *triage.Verdict) map[string]any {
	var b strings.Builder
	if v.Reasoning != "" {
		b.WriteString(v.Reasoning)
	}
	for _, o := range v.Overrides {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "• override: %s", o)
	}
	failed := 0
	for _, c := range v.ToolCalls {
		if !c.Success {
			failed++
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "• tool calls: %d (%d failed)", len(v.ToolCalls), failed)

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", truncate(b.String(), maxSummaryLen)),
		},
	}
}

func contextBlock(triageID string, v *triage.Verdict) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("docket • triage %s • %s", triageID, v.TriagedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}
	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func urgencyEmoji(u triage.Urgency) string {
	switch u {
	case triage.UrgencyCritical:
		return "\U0001f534" // red circle
	case triage.UrgencyHigh:
		return "\U0001f7e0" // orange circle
	case triage.UrgencyMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
