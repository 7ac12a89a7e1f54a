package triage

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/linnemanlabs/docket/internal/tools"
)

// Urgency is an ordered severity level: low < medium < high < critical.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyOrder = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

// Rank orders urgencies; unknown values rank below low.
func (u Urgency) Rank() int { return slices.Index(urgencyOrder, u) }

// AtLeast returns the higher of u and floor.
func (u Urgency) AtLeast(floor Urgency) Urgency {
	if floor.Rank() > u.Rank() {
		return floor
	}
	return u
}

// ParseUrgency validates s as an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if u.Rank() < 0 {
		return "", fmt.Errorf("unknown urgency %q", s)
	}
	return u, nil
}

// IssueType is the broad category of a ticket.
type IssueType string

const (
	IssueBilling        IssueType = "billing"
	IssueOutage         IssueType = "outage"
	IssueBug            IssueType = "bug"
	IssueFeatureRequest IssueType = "feature_request"
	IssueAccount        IssueType = "account"
	IssueOther          IssueType = "other"
)

var issueTypes = []IssueType{IssueBilling, IssueOutage, IssueBug, IssueFeatureRequest, IssueAccount, IssueOther}

// ParseIssueType validates s as an IssueType.
func ParseIssueType(s string) (IssueType, error) {
	it := IssueType(s)
	if !slices.Contains(issueTypes, it) {
		return "", fmt.Errorf("unknown issue type %q", s)
	}
	return it, nil
}

// Sentiment is the customer's tone: very_negative < negative < neutral < positive < very_positive.
type Sentiment string

const (
	SentimentVeryNegative Sentiment = "very_negative"
	SentimentNegative     Sentiment = "negative"
	SentimentNeutral      Sentiment = "neutral"
	SentimentPositive     Sentiment = "positive"
	SentimentVeryPositive Sentiment = "very_positive"
)

var sentimentOrder = []Sentiment{
	SentimentVeryNegative, SentimentNegative, SentimentNeutral, SentimentPositive, SentimentVeryPositive,
}

// Rank orders sentiments; unknown values return -1.
func (s Sentiment) Rank() int { return slices.Index(sentimentOrder, s) }

// IsNegative reports negative or very_negative.
func (s Sentiment) IsNegative() bool {
	return s == SentimentNegative || s == SentimentVeryNegative
}

// ParseSentiment validates s as a Sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(s)
	if v.Rank() < 0 {
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
	return v, nil
}

// RiskSignal flags a business risk attached to a ticket.
type RiskSignal string

const (
	RiskChurn             RiskSignal = "churn_risk"
	RiskChargeDispute     RiskSignal = "charge_dispute"
	RiskLegalThreat       RiskSignal = "legal_threat"
	RiskSocialMedia       RiskSignal = "social_media_threat"
	RiskEscalationHistory RiskSignal = "escalation_history"
	RiskHighValueAccount  RiskSignal = "high_value_account"
	RiskComplianceIssue   RiskSignal = "compliance_issue"
)

// riskOrder is the canonical order risk signals are reported in.
var riskOrder = []RiskSignal{
	RiskChurn, RiskChargeDispute, RiskLegalThreat, RiskSocialMedia,
	RiskEscalationHistory, RiskHighValueAccount, RiskComplianceIssue,
}

// ParseRiskSignal validates s as a RiskSignal.
func ParseRiskSignal(s string) (RiskSignal, error) {
	r := RiskSignal(s)
	if !slices.Contains(riskOrder, r) {
		return "", fmt.Errorf("unknown risk signal %q", s)
	}
	return r, nil
}

// MergeRisks returns the de-duplicated union of the given sets in canonical order.
func MergeRisks(sets ...[]RiskSignal) []RiskSignal {
	seen := make(map[RiskSignal]bool)
	for _, set := range sets {
		for _, r := range set {
			seen[r] = true
		}
	}
	out := make([]RiskSignal, 0, len(seen))
	for _, r := range riskOrder {
		if seen[r] {
			out = append(out, r)
		}
	}
	return out
}

// HasRisk reports whether r is present in set.
func HasRisk(set []RiskSignal, r RiskSignal) bool { return slices.Contains(set, r) }

// Action is the recommended next step for a ticket.
type Action string

const (
	ActionAutoRespond       Action = "auto_respond"
	ActionRouteToSpecialist Action = "route_to_specialist"
	ActionEscalateToHuman   Action = "escalate_to_human"
)

// Queue is the specialist queue a ticket is routed to.
type Queue string

const (
	QueueNone              Queue = "none"
	QueueEnterpriseSuccess Queue = "enterprise_success"
	QueueTier2             Queue = "tier_2"
	QueueBilling           Queue = "billing_queue"
	QueueGeneral           Queue = "general"
)

// Mode records which classifier path produced a Classification.
type Mode string

const (
	ModeModel        Mode = "model"
	ModeRuleFallback Mode = "rule_fallback"
)

// Classification is the classifier's initial view of a ticket.
type Classification struct {
	Urgency     Urgency      `json:"urgency"`
	Product     string       `json:"product"`
	IssueType   IssueType    `json:"issue_type"`
	Sentiment   Sentiment    `json:"sentiment"`
	RiskSignals []RiskSignal `json:"risk_signals"`
	Reasoning   string       `json:"reasoning,omitempty"`
	// Confidence in the classification, 0..1.
	Confidence float64 `json:"confidence"`
}

// Confidence assigned when the source does not report one.
const (
	DefaultModelConfidence = 0.8
	RuleConfidence         = 0.6
)

// ToolCall records one tool invocation, successful or not.
type ToolCall struct {
	Tool       string          `json:"tool"`
	Input      json.RawMessage `json:"input"`
	Output     json.RawMessage `json:"output,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMS float64         `json:"duration_ms"`
}

// KBResult is a knowledge-base hit carried into the verdict.
type KBResult = tools.KnowledgeBaseResult

// Verdict is the final, read-only triage outcome for one ticket.
type Verdict struct {
	TicketID          string       `json:"ticket_id"`
	Urgency           Urgency      `json:"urgency"`
	Product           string       `json:"product"`
	IssueType         IssueType    `json:"issue_type"`
	Sentiment         Sentiment    `json:"sentiment"`
	RiskSignals       []RiskSignal `json:"risk_signals"`
	Action            Action       `json:"recommended_action"`
	Queue             Queue        `json:"recommended_specialist_queue"`
	KnowledgeBase     []KBResult   `json:"knowledge_base_results"`
	SuggestedReply    string       `json:"suggested_reply,omitempty"`
	ToolCalls         []ToolCall   `json:"tool_calls"`
	Mode              Mode         `json:"classification_mode"`
	Degraded          bool         `json:"degraded"`
	DegradationReason string       `json:"degradation_reason,omitempty"`
	ClassifierUrgency Urgency      `json:"classifier_urgency"`
	Overrides         []string     `json:"overrides,omitempty"`
	Reasoning         string       `json:"reasoning,omitempty"`
	Confidence        float64      `json:"confidence_score"`
	TriagedAt         time.Time    `json:"triaged_at"`
}
