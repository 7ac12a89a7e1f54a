package triage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
)

// ErrUnknownTool is returned by InvokeTool for names the registry does not hold.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolPanic marks a tool call that panicked.
var ErrToolPanic = errors.New("tool panicked")

const (
	escalationChannel = "#support-escalations"
	escalationProject = "SUPPORT"
	kbMaxResults      = 5
	kbQueryTerms      = 6
)

// Gathered holds the decoded outputs of the tools that succeeded. A nil
// field means the tool was skipped or failed.
type Gathered struct {
	KnowledgeBase []KBResult
	Customer      *tools.CustomerHistoryOutput
	Region        *tools.RegionStatusOutput
	Incidents     *tools.PagerDutyIncidentsOutput
	Issues        []tools.JiraCreateOutput
	Posted        *tools.SlackPostOutput
}

// TopKBScore returns the best knowledge-base relevance, or 0.
func (g *Gathered) TopKBScore() float64 {
	if len(g.KnowledgeBase) == 0 {
		return 0
	}
	return g.KnowledgeBase[0].RelevanceScore
}

// Orchestrator runs the fixed tool plan for one ticket.
type Orchestrator struct {
	registry *tools.Registry
	logger   log.Logger
	hooks    EngineHooks
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *tools.Registry, logger log.Logger, hooks EngineHooks, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{registry: registry, logger: logger, hooks: hooks, now: now}
}

// run is the per-ticket state of one Gather.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	ticket *ticket.Ticket
	calls  []ToolCall
	g      Gathered
}

// Gather executes the plan and returns what was learned plus the call log.
// Failures never stop the plan.
func (o *Orchestrator) Gather(ctx context.Context, t *ticket.Ticket, cl Classification) (Gathered, []ToolCall) {
	r := &run{o: o, ctx: ctx, ticket: t}

	// context
	var kb tools.KnowledgeBaseOutput
	if r.call(tools.NameKnowledgeBase, tools.KnowledgeBaseInput{
		Query:      knowledgeBaseQuery(t.Subject, t.Body, cl.IssueType),
		MaxResults: kbMaxResults,
	}, &kb) {
		results := slices.Clone(kb.Results)
		slices.SortStableFunc(results, func(a, b KBResult) int {
			return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
		})
		r.g.KnowledgeBase = results
	}
	if t.CustomerEmail != "" {
		var ch tools.CustomerHistoryOutput
		if r.call(tools.NameCustomerHistory, tools.CustomerHistoryInput{CustomerEmail: t.CustomerEmail}, &ch) {
			r.g.Customer = &ch
		}
	}

	// outage context
	if cl.IssueType == IssueOutage && t.Region != "" {
		var rs tools.RegionStatusOutput
		if r.call(tools.NameRegionStatus, tools.RegionStatusInput{Region: t.Region}, &rs) {
			r.g.Region = &rs
		}
	}

	// enterprise escalation
	jiraCreated := false
	if cl.Urgency == UrgencyCritical && t.IsEnterprise() {
		var inc tools.PagerDutyIncidentsOutput
		if r.call(tools.NamePagerDutyIncidents, tools.PagerDutyIncidentsInput{}, &inc) {
			r.g.Incidents = &inc
		}

		jiraCreated = r.createIssue(tools.JiraCreateInput{
			Project:     escalationProject,
			IssueType:   "Incident",
			Summary:     issueSummary("Critical", t),
			Description: truncate(t.Body, 10000),
			Priority:    "Highest",
			Labels:      []string{"escalation", "enterprise", string(cl.IssueType)},
		})

		var posted tools.SlackPostOutput
		if r.call(tools.NameSlackPost, tools.SlackPostInput{
			Channel:  escalationChannel,
			Title:    truncate("Critical enterprise ticket "+t.ID, 150),
			Message:  truncate(r.escalationMessage(cl), 4000),
			Severity: string(UrgencyCritical),
			TicketID: t.ID,
		}, &posted) {
			r.g.Posted = &posted
		}
	}

	// legal review
	if HasRisk(cl.RiskSignals, RiskLegalThreat) && !jiraCreated {
		r.createIssue(tools.JiraCreateInput{
			Project:     escalationProject,
			IssueType:   "Task",
			Summary:     issueSummary("Legal review", t),
			Description: truncate(t.Body, 10000),
			Priority:    "High",
			Labels:      []string{"legal"},
		})
	}

	return r.g, r.calls
}

// InvokeTool runs a single registered tool outside the plan.
func (o *Orchestrator) InvokeTool(ctx context.Context, name string, input json.RawMessage) (ToolCall, error) {
	tool, ok := o.registry.Get(name)
	if !ok {
		return ToolCall{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return o.execute(ctx, "", tool, input), nil
}

// createIssue reports whether jira_create was invoked, whatever its outcome.
func (r *run) createIssue(in tools.JiraCreateInput) bool {
	var out tools.JiraCreateOutput
	invoked := false
	if r.callTracked(tools.NameJiraCreate, in, &out, &invoked) {
		r.g.Issues = append(r.g.Issues, out)
	}
	return invoked
}

func (r *run) call(name string, in, out any) bool {
	var invoked bool
	return r.callTracked(name, in, out, &invoked)
}

// callTracked invokes name when it is registered, logs the call and decodes
// a successful output into out. Disabled tools leave no log entry.
func (r *run) callTracked(name string, in, out any, invoked *bool) bool {
	tool, ok := r.o.registry.Get(name)
	if !ok {
		return false
	}
	*invoked = true

	raw, err := json.Marshal(in)
	if err != nil {
		// typed inputs always marshal; record it anyway
		raw = json.RawMessage(`{}`)
	}

	tc := r.o.execute(r.ctx, r.ticket.ID, tool, raw)
	r.calls = append(r.calls, tc)
	if !tc.Success {
		return false
	}
	if err := json.Unmarshal(tc.Output, out); err != nil {
		r.o.logger.Warn(r.ctx, "tool output not understood, ignoring",
			"ticket_id", r.ticket.ID,
			"tool", name,
			"err", err.Error(),
		)
		return false
	}
	return true
}

// execute runs one tool with tracing, metrics and panic recovery.
func (o *Orchestrator) execute(ctx context.Context, ticketID string, tool tools.Tool, input json.RawMessage) ToolCall {
	name := tool.Name()
	tc := ToolCall{Tool: name, Input: input, Timestamp: o.now()}

	ctx, span := tracer().Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", name),
		attribute.String("docket.ticket.id", ticketID),
		attribute.String("docket.tool.input", string(input)),
	))
	defer span.End()
	span.AddEvent("tool.request", trace.WithAttributes(
		attribute.String("tool.request.body", string(input)),
	))

	start := time.Now()
	output, err := safeExecute(ctx, tool, input)
	elapsed := time.Since(start)
	tc.DurationMS = float64(elapsed.Microseconds()) / 1000

	if err != nil {
		tc.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn(ctx, "tool call failed",
			"ticket_id", ticketID,
			"tool", name,
			"err", err.Error(),
		)
	} else {
		tc.Success = true
		tc.Output = output
		span.AddEvent("tool.result", trace.WithAttributes(
			attribute.String("tool.result.body", string(output)),
		))
	}
	span.SetAttributes(attribute.Bool("docket.tool.is_error", err != nil))

	if o.hooks.OnToolCall != nil {
		o.hooks.OnToolCall(name, elapsed.Seconds(), len(input), len(output), err != nil)
	}
	return tc
}

func safeExecute(ctx context.Context, tool tools.Tool, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrToolPanic, rec)
		}
	}()
	return tool.Execute(ctx, input)
}

func (r *run) escalationMessage(cl Classification) string {
	t := r.ticket
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", nonEmpty(t.Subject, "(no subject)"))
	fmt.Fprintf(&b, "Customer: %s", nonEmpty(t.CustomerEmail, "unknown"))
	if t.Region != "" {
		fmt.Fprintf(&b, " (%s)", t.Region)
	}
	fmt.Fprintf(&b, "\nIssue: %s, urgency %s, sentiment %s", cl.IssueType, cl.Urgency, cl.Sentiment)
	for _, is := range r.g.Issues {
		fmt.Fprintf(&b, "\nJira: <%s|%s>", is.URL, is.Key)
	}
	if r.g.Incidents != nil && r.g.Incidents.HasCritical {
		fmt.Fprintf(&b, "\nPagerDuty: %d open incident(s), high urgency present", r.g.Incidents.Total)
	}
	return b.String()
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "can": true, "cannot": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "its": true, "me": true, "my": true, "no": true,
	"not": true, "of": true, "on": true, "or": true, "our": true, "please": true,
	"so": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"we": true, "what": true, "when": true, "why": true, "with": true, "you": true,
	"your": true, "help": true, "need": true, "still": true, "again": true,
}

var issueQueryTerm = map[IssueType]string{
	IssueOutage:         "outage",
	IssueAccount:        "account",
	IssueBilling:        "billing",
	IssueBug:            "error",
	IssueFeatureRequest: "feature",
}

// knowledgeBaseQuery keeps the first few meaningful subject terms and adds
// a term for the issue type. Body terms stand in when the subject has none.
func knowledgeBaseQuery(subject, body string, issue IssueType) string {
	terms := queryTerms(subject)
	if len(terms) == 0 {
		terms = queryTerms(body)
	}
	if extra, ok := issueQueryTerm[issue]; ok && !slices.Contains(terms, extra) {
		terms = append(terms, extra)
	}
	if len(terms) == 0 {
		return string(issue)
	}
	return truncate(strings.Join(terms, " "), 500)
}

func queryTerms(text string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, term := range tools.QueryTerms(text) {
		if stopWords[term] || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
		if len(terms) == kbQueryTerms {
			break
		}
	}
	return terms
}

func issueSummary(prefix string, t *ticket.Ticket) string {
	return truncate(fmt.Sprintf("%s: %s [%s]", prefix, nonEmpty(t.Subject, "ticket"), t.ID), 255)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
