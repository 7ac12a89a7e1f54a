package triage

import (
	"github.com/linnemanlabs/docket/internal/ticket"
)

// Overrides the routing policy can apply to the classifier's urgency.
const (
	OverrideLegalThreat  = "legal_threat_raises_urgency_to_high"
	OverrideRegionOutage = "region_outage_raises_urgency_to_critical"
)

// Decision is the routing policy's final word on a ticket.
type Decision struct {
	Urgency     Urgency
	Action      Action
	Queue       Queue
	RiskSignals []RiskSignal
	Overrides   []string
}

// RoutingPolicy turns a classification and tool evidence into an action.
// It has no side effects and the same inputs always give the same Decision.
type RoutingPolicy struct {
	AutoRespondThreshold   float64
	HighValueLifetimeValue float64
	ChurnTicketThreshold   int
}

// NewRoutingPolicy takes its thresholds from s.
func NewRoutingPolicy(s Settings) RoutingPolicy {
	return RoutingPolicy{
		AutoRespondThreshold:   s.AutoRespondThreshold,
		HighValueLifetimeValue: s.HighValueLifetimeValue,
		ChurnTicketThreshold:   s.ChurnTicketThreshold,
	}
}

// specialistIssues have a dedicated team that takes medium-urgency work.
var specialistIssues = map[IssueType]bool{
	IssueBilling: true,
	IssueBug:     true,
	IssueOutage:  true,
}

// Route applies the business rules. g may be nil when no tool ran.
func (p RoutingPolicy) Route(t *ticket.Ticket, cl Classification, g *Gathered) Decision {
	if g == nil {
		g = &Gathered{}
	}

	d := Decision{
		Urgency:     cl.Urgency,
		RiskSignals: MergeRisks(cl.RiskSignals, p.inferRisks(cl, g)),
	}

	// urgency only ever goes up
	if HasRisk(d.RiskSignals, RiskLegalThreat) && d.Urgency.Rank() < UrgencyHigh.Rank() {
		d.Urgency = UrgencyHigh
		d.Overrides = append(d.Overrides, OverrideLegalThreat)
	}
	if regionOutage(t, g) && d.Urgency != UrgencyCritical {
		d.Urgency = UrgencyCritical
		d.Overrides = append(d.Overrides, OverrideRegionOutage)
	}

	d.Action = p.action(t, cl.IssueType, d, g)
	d.Queue = queueFor(t, cl.IssueType, d.Action)
	return d
}

// inferRisks derives risk signals from CRM data.
func (p RoutingPolicy) inferRisks(cl Classification, g *Gathered) []RiskSignal {
	c := g.Customer
	if c == nil {
		return nil
	}
	var risks []RiskSignal
	if c.LifetimeValue >= p.HighValueLifetimeValue && p.HighValueLifetimeValue > 0 {
		risks = append(risks, RiskHighValueAccount)
	}
	if cl.Sentiment.IsNegative() && c.PastTicketCount > p.ChurnTicketThreshold {
		risks = append(risks, RiskChurn)
	}
	if c.IsAtRisk {
		risks = append(risks, RiskEscalationHistory)
	}
	return risks
}

func (p RoutingPolicy) action(t *ticket.Ticket, issue IssueType, d Decision, g *Gathered) Action {
	switch {
	case d.Urgency == UrgencyCritical,
		HasRisk(d.RiskSignals, RiskChurn) && t.IsEnterprise(),
		HasRisk(d.RiskSignals, RiskLegalThreat):
		return ActionEscalateToHuman
	case d.Urgency == UrgencyHigh,
		d.Urgency == UrgencyMedium && specialistIssues[issue]:
		return ActionRouteToSpecialist
	case len(g.KnowledgeBase) > 0 && g.TopKBScore() >= p.AutoRespondThreshold &&
		(d.Urgency == UrgencyLow || d.Urgency == UrgencyMedium):
		return ActionAutoRespond
	}
	return ActionRouteToSpecialist
}

func queueFor(t *ticket.Ticket, issue IssueType, action Action) Queue {
	switch {
	case action == ActionAutoRespond:
		return QueueNone
	case action == ActionEscalateToHuman && t.IsEnterprise():
		return QueueEnterpriseSuccess
	case issue == IssueBug, issue == IssueOutage:
		return QueueTier2
	case issue == IssueBilling:
		return QueueBilling
	}
	return QueueGeneral
}

// regionOutage reports an active outage in the ticket's own region.
func regionOutage(t *ticket.Ticket, g *Gathered) bool {
	return g.Region != nil && t.Region != "" && g.Region.Region == t.Region && g.Region.HasActiveOutage()
}
