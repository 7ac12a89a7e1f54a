package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/docket/internal/ticket"
)

// assemble merges classifier, tool and routing outputs into the verdict.
func assemble(t *ticket.Ticket, cr ClassifyResult, g Gathered, calls []ToolCall, d Decision, threshold float64, now time.Time) *Verdict {
	v := &Verdict{
		TicketID:          t.ID,
		Urgency:           d.Urgency,
		Product:           cr.Product,
		IssueType:         cr.IssueType,
		Sentiment:         cr.Sentiment,
		RiskSignals:       d.RiskSignals,
		Action:            d.Action,
		Queue:             d.Queue,
		KnowledgeBase:     g.KnowledgeBase,
		ToolCalls:         calls,
		Mode:              cr.Mode,
		Degraded:          cr.Degraded,
		DegradationReason: cr.Reason,
		ClassifierUrgency: cr.Urgency,
		Overrides:         d.Overrides,
		Reasoning:         cr.Reasoning,
		Confidence:        cr.Confidence,
		TriagedAt:         now.UTC(),
	}

	// keep JSON arrays as [] rather than null
	if v.RiskSignals == nil {
		v.RiskSignals = []RiskSignal{}
	}
	if v.KnowledgeBase == nil {
		v.KnowledgeBase = []KBResult{}
	}
	if v.ToolCalls == nil {
		v.ToolCalls = []ToolCall{}
	}

	if len(g.KnowledgeBase) > 0 && g.TopKBScore() >= threshold {
		v.SuggestedReply = draftReply(t, &g)
	}
	return v
}

// draftReply writes a customer reply around the top knowledge-base article.
func draftReply(t *ticket.Ticket, g *Gathered) string {
	top := g.KnowledgeBase[0]

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greetingName(t, g))
	if t.Subject != "" {
		fmt.Fprintf(&b, "Thanks for reaching out about %q. ", t.Subject)
	} else {
		b.WriteString("Thanks for reaching out. ")
	}
	b.WriteString("This article from our help center should help:\n\n")
	fmt.Fprintf(&b, "%s\n%s\n", top.Title, top.URL)
	if top.Snippet != "" {
		fmt.Fprintf(&b, "\n%s\n", top.Snippet)
	}
	b.WriteString("\nIf this doesn't resolve it, just reply to this message and a specialist will pick it up.\n\n")
	b.WriteString("Best regards,\nSupport Team")
	return b.String()
}

// greetingName prefers the CRM name, then the name on the ticket.
func greetingName(t *ticket.Ticket, g *Gathered) string {
	name := ""
	if g.Customer != nil && g.Customer.Found {
		name = g.Customer.Name
	}
	if name == "" {
		name = t.CustomerName
	}
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}
