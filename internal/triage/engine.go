package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
)

const tracerName = "github.com/linnemanlabs/docket/internal/triage"

// tracer is resolved per call so tests can swap the global provider.
func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// ErrInvalidTicket is the only error Triage returns.
var ErrInvalidTicket = errors.New("invalid ticket")

// EngineHooks receives callbacks as a run progresses. Nil fields are skipped.
type EngineHooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, duration float64)
	OnToolCall func(name string, duration float64, inputBytes, outputBytes int, isError bool)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarises a finished run for metrics.
type CompleteEvent struct {
	Mode            Mode
	Degraded        bool
	Action          Action
	Urgency         Urgency
	Model           string
	Duration        float64
	LLMTime         float64
	ToolTime        float64
	TokensIn        int
	TokensOut       int
	Attempts        int
	ToolCalls       int
	FailedToolCalls int
	Overrides       []string
}

// Engine runs the triage pipeline: classify, gather, route, assemble.
type Engine struct {
	classifier   *Classifier
	orchestrator *Orchestrator
	policy       RoutingPolicy
	registry     *tools.Registry
	settings     Settings
	logger       log.Logger
	hooks        EngineHooks
	now          func() time.Time
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithClock replaces time.Now for verdict and tool-call timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires an engine. provider may be nil to run on keyword rules only.
func NewEngine(provider Provider, registry *tools.Registry, settings Settings, logger log.Logger, hooks EngineHooks, opts ...Option) *Engine {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	e := &Engine{
		registry: registry,
		settings: settings,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.classifier = NewClassifier(provider, settings, logger, hooks)
	e.orchestrator = NewOrchestrator(registry, logger, hooks, e.now)
	e.policy = NewRoutingPolicy(settings)
	return e
}

// Triage runs the full pipeline for one ticket. Once the ticket validates a
// verdict is always produced; caller cancellation does not abort the run.
func (e *Engine) Triage(ctx context.Context, in *ticket.Ticket) (*Verdict, error) {
	ctx = context.WithoutCancel(ctx)

	if in == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicket, ticket.ErrInvalid)
	}
	t := *in
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}

	start := time.Now()
	ctx, span := tracer().Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("docket.ticket.id", t.ID),
		attribute.String("docket.ticket.tier", string(t.Tier)),
	))
	defer span.End()

	L := e.logger.With("ticket_id", t.ID)

	cr := e.classifier.Classify(ctx, &t)
	if cr.Degraded {
		span.AddEvent("classifier.degraded", trace.WithAttributes(
			attribute.String("docket.degradation.reason", cr.Reason),
		))
	}
	L.Info(ctx, "ticket classified",
		"mode", cr.Mode,
		"degraded", cr.Degraded,
		"urgency", cr.Urgency,
		"issue_type", cr.IssueType,
		"sentiment", cr.Sentiment,
	)

	g, calls := e.orchestrator.Gather(ctx, &t, cr.Classification)
	d := e.policy.Route(&t, cr.Classification, &g)
	v := assemble(&t, cr, g, calls, d, e.settings.AutoRespondThreshold, e.now())

	var toolTime float64
	failed := 0
	for _, c := range calls {
		toolTime += c.DurationMS / 1000
		if !c.Success {
			failed++
		}
	}
	duration := time.Since(start).Seconds()

	span.SetAttributes(
		attribute.String("docket.classification.mode", string(v.Mode)),
		attribute.Bool("docket.classification.degraded", v.Degraded),
		attribute.String("docket.verdict.urgency", string(v.Urgency)),
		attribute.String("docket.verdict.action", string(v.Action)),
		attribute.String("docket.verdict.queue", string(v.Queue)),
		attribute.Int("docket.tool_calls", len(calls)),
		attribute.Int("docket.tool_calls.failed", failed),
	)

	L.Info(ctx, "triage complete",
		"urgency", v.Urgency,
		"action", v.Action,
		"queue", v.Queue,
		"overrides", v.Overrides,
		"tool_calls", len(calls),
		"failed_tool_calls", failed,
		"duration", duration,
	)

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			Mode:            v.Mode,
			Degraded:        v.Degraded,
			Action:          v.Action,
			Urgency:         v.Urgency,
			Model:           cr.Model,
			Duration:        duration,
			LLMTime:         cr.LLMTime,
			ToolTime:        toolTime,
			TokensIn:        cr.TokensIn,
			TokensOut:       cr.TokensOut,
			Attempts:        cr.Attempts,
			ToolCalls:       len(calls),
			FailedToolCalls: failed,
			Overrides:       v.Overrides,
		})
	}
	return v, nil
}

// Tools lists the definitions of the enabled tools.
func (e *Engine) Tools() []tools.ToolDef { return e.registry.ToToolDefs() }

// InvokeTool runs one registered tool directly. The returned ToolCall records
// tool failures; the error is only set for unknown tools.
func (e *Engine) InvokeTool(ctx context.Context, name string, input json.RawMessage) (ToolCall, error) {
	tc, err := e.orchestrator.InvokeTool(ctx, name, input)
	if err != nil {
		return tc, err
	}
	e.logger.Info(ctx, "tool invoked",
		"tool", name,
		"success", tc.Success,
		"duration_ms", tc.DurationMS,
	)
	return tc, nil
}
