package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
)

const (
	classificationToolName = "record_classification"
	classifyMaxTokens      = 1024
)

// Settings is the resolved configuration the engine consumes. Binaries
// build it from flags and env; the engine never reads either.
type Settings struct {
	ModelEnabled bool
	MaxAttempts  int
	Timeout      time.Duration
	Backoff      time.Duration
	BackoffMax   time.Duration

	AutoRespondThreshold   float64
	HighValueLifetimeValue float64
	ChurnTicketThreshold   int

	Keywords KeywordSets
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		ModelEnabled:           true,
		MaxAttempts:            3,
		Timeout:                30 * time.Second,
		Backoff:                500 * time.Millisecond,
		BackoffMax:             5 * time.Second,
		AutoRespondThreshold:   0.7,
		HighValueLifetimeValue: 100000,
		ChurnTicketThreshold:   1,
		Keywords:               DefaultKeywordSets(),
	}
}

// ClassifyResult tags a Classification with the path that produced it.
type ClassifyResult struct {
	Classification
	Mode     Mode
	Degraded bool
	Reason   string

	Attempts  int
	Model     string
	TokensIn  int
	TokensOut int
	LLMTime   float64
}

// Classifier produces the initial Classification for a ticket, through the
// model when enabled and the keyword rules otherwise.
type Classifier struct {
	provider Provider
	rules    *RuleClassifier
	settings Settings
	logger   log.Logger
	hooks    EngineHooks
}

// NewClassifier builds a classifier. provider may be nil, in which case only
// the rule path is used.
func NewClassifier(provider Provider, settings Settings, logger log.Logger, hooks EngineHooks) *Classifier {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	return &Classifier{
		provider: provider,
		rules:    NewRuleClassifier(settings.Keywords),
		settings: settings,
		logger:   logger,
		hooks:    hooks,
	}
}

// Rules exposes the keyword classifier.
func (c *Classifier) Rules() *RuleClassifier { return c.rules }

// Classify never fails: model errors end in the rule fallback.
func (c *Classifier) Classify(ctx context.Context, t *ticket.Ticket) ClassifyResult {
	if !c.settings.ModelEnabled || c.provider == nil {
		return ClassifyResult{Classification: c.rules.Classify(t), Mode: ModeRuleFallback}
	}

	res := ClassifyResult{Mode: ModeModel}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.settings.Backoff
	b.MaxInterval = c.settings.BackoffMax

	op := func() (Classification, error) {
		res.Attempts++
		cl, err := c.attempt(ctx, t, res.Attempts, &res)
		if err != nil && !isTransient(err) {
			return cl, backoff.Permanent(err)
		}
		return cl, err
	}

	cl, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.settings.MaxAttempts)), //nolint:gosec // MaxAttempts >= 1
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn(ctx, "model classification failed, retrying",
				"ticket_id", t.ID,
				"attempt", res.Attempts,
				"retry_in", next.String(),
				"err", err.Error(),
			)
		}),
	)
	if err != nil {
		c.logger.Error(ctx, err, "model classification failed, using keyword rules",
			"ticket_id", t.ID,
			"attempts", res.Attempts,
		)
		res.Classification = c.rules.Classify(t)
		res.Mode = ModeRuleFallback
		res.Degraded = true
		res.Reason = fmt.Sprintf("model classification failed after %d attempt(s): %v", res.Attempts, err)
		return res
	}

	// keyword backstop: a risk the rules see is never dropped by a model miss
	cl.RiskSignals = MergeRisks(cl.RiskSignals, c.rules.RiskHints(t))
	res.Classification = cl
	return res
}

// attempt makes one bounded model call and parses the forced tool call.
func (c *Classifier) attempt(ctx context.Context, t *ticket.Ticket, seq int, res *ClassifyResult) (Classification, error) {
	actx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	actx, span := tracer().Start(actx, "classifier.model_call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "classifier.model_call"),
		attribute.String("docket.ticket.id", t.ID),
		attribute.Int("docket.classifier.attempt", seq),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.provider.Send(actx, &LLMRequest{
		MaxTokens:  classifyMaxTokens,
		System:     classifierSystemPrompt,
		Messages:   []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: buildTicketPrompt(t)}}}},
		Tools:      []tools.ToolDef{classificationTool},
		ToolChoice: classificationToolName,
	})
	elapsed := time.Since(start).Seconds()
	res.LLMTime += elapsed

	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrModelTimeout) {
			err = fmt.Errorf("%w: %w", ErrModelTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Classification{}, err
	}

	res.Model = resp.Model
	res.TokensIn += resp.Usage.InputTokens
	res.TokensOut += resp.Usage.OutputTokens
	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
		attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
	)
	if c.hooks.OnLLMCall != nil {
		c.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, elapsed)
	}

	cl, err := parseClassification(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Classification{}, err
	}
	return cl, nil
}

// modelClassification is the wire shape of the record_classification input.
type modelClassification struct {
	Urgency     string   `json:"urgency"`
	Product     string   `json:"product"`
	IssueType   string   `json:"issue_type"`
	Sentiment   string   `json:"sentiment"`
	RiskSignals []string `json:"risk_signals"`
	Reasoning   string   `json:"reasoning"`
	Confidence  *float64 `json:"confidence"`
}

func parseClassification(resp *LLMResponse) (Classification, error) {
	var input json.RawMessage
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == classificationToolName {
			input = block.Input
			break
		}
	}
	if len(input) == 0 {
		return Classification{}, fmt.Errorf("%w: no %s tool call (stop_reason=%s)", ErrMalformedResponse, classificationToolName, resp.StopReason)
	}

	var mc modelClassification
	if err := json.Unmarshal(input, &mc); err != nil {
		return Classification{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var errs []error
	urgency, err := ParseUrgency(mc.Urgency)
	errs = append(errs, err)
	issue, err := ParseIssueType(mc.IssueType)
	errs = append(errs, err)
	sentiment, err := ParseSentiment(mc.Sentiment)
	errs = append(errs, err)

	risks := make([]RiskSignal, 0, len(mc.RiskSignals))
	for _, s := range mc.RiskSignals {
		r, err := ParseRiskSignal(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		risks = append(risks, r)
	}
	if err := errors.Join(errs...); err != nil {
		return Classification{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return Classification{
		Urgency:     urgency,
		Product:     strings.TrimSpace(mc.Product),
		IssueType:   issue,
		Sentiment:   sentiment,
		RiskSignals: MergeRisks(risks),
		Reasoning:   mc.Reasoning,
		Confidence:  modelConfidence(mc.Confidence),
	}, nil
}

// modelConfidence accepts a reported confidence in 0..1 and substitutes the
// default for anything else.
func modelConfidence(c *float64) float64 {
	if c == nil || !(*c >= 0 && *c <= 1) {
		return DefaultModelConfidence
	}
	return *c
}

var classificationTool = tools.ToolDef{
	Name:        classificationToolName,
	Description: "Record the triage classification for the support ticket.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"urgency": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
			"product": {"type": "string", "description": "Product area the ticket concerns, empty if unclear"},
			"issue_type": {"type": "string", "enum": ["billing", "outage", "bug", "feature_request", "account", "other"]},
			"sentiment": {"type": "string", "enum": ["very_negative", "negative", "neutral", "positive", "very_positive"]},
			"risk_signals": {
				"type": "array",
				"items": {"type": "string", "enum": ["churn_risk", "charge_dispute", "legal_threat", "social_media_threat", "escalation_history", "high_value_account", "compliance_issue"]}
			},
			"reasoning": {"type": "string", "description": "One or two sentences explaining the classification"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1, "description": "Confidence in this classification"}
		},
		"required": ["urgency", "product", "issue_type", "sentiment", "risk_signals"]
	}`),
}

const classifierSystemPrompt = `You are a support triage classifier. Read the customer ticket and record exactly one classification with the record_classification tool.

Urgency:
- critical: production down, data loss, security breach, or an enterprise customer fully blocked
- high: core functionality broken, many users affected, or explicit urgency
- medium: degraded experience with a workaround
- low: questions, how-to requests and feature requests

Risk signals: flag churn_risk for cancellation or refund intent, legal_threat for any mention of lawyers or legal action, social_media_threat for threats to go public, charge_dispute for chargebacks or disputed charges, compliance_issue for regulatory concerns, high_value_account for enterprise customers.

Classify only from the ticket content. Do not invent facts.`

// buildTicketPrompt renders the ticket for the model.
func buildTicketPrompt(t *ticket.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket ID: %s\n", t.ID)
	fmt.Fprintf(&b, "Customer tier: %s\n", t.Tier)
	if t.Region != "" {
		fmt.Fprintf(&b, "Region: %s\n", t.Region)
	}
	if t.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", t.Channel)
	}
	fmt.Fprintf(&b, "Subject: %s\n\n%s\n", t.Subject, t.Body)
	if len(t.Metadata) > 0 {
		meta, _ := json.MarshalIndent(t.Metadata, "", "  ")
		fmt.Fprintf(&b, "\nMetadata:\n%s\n", meta)
	}
	return b.String()
}
