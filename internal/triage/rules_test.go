package triage

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/docket/internal/ticket"
)

func TestRuleClassifier_Classify(t *testing.T) {
	t.Parallel()

	rc := NewRuleClassifier(DefaultKeywordSets())

	tests := []struct {
		name   string
		ticket *ticket.Ticket
		want   Classification
	}{
		{
			name:   "enterprise outage",
			ticket: outageTicket(),
			want: Classification{
				Urgency:     UrgencyCritical,
				Product:     "database",
				IssueType:   IssueOutage,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{RiskHighValueAccount},
			},
		},
		{
			name:   "refund with legal threat",
			ticket: legalTicket(),
			want: Classification{
				Urgency:     UrgencyHigh,
				IssueType:   IssueBilling,
				Sentiment:   SentimentVeryNegative,
				RiskSignals: []RiskSignal{RiskChurn, RiskLegalThreat},
			},
		},
		{
			name:   "password reset",
			ticket: passwordTicket(),
			want: Classification{
				Urgency:     UrgencyMedium,
				Product:     "authentication",
				IssueType:   IssueAccount,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{},
			},
		},
		{
			name: "happy feature request",
			ticket: &ticket.Ticket{
				ID: "F-1", Subject: "Feature request: dark mode",
				Body: "It would be nice to have a dark mode. Thanks, love the product!",
				Tier: ticket.TierPro,
			},
			want: Classification{
				Urgency:     UrgencyLow,
				IssueType:   IssueFeatureRequest,
				Sentiment:   SentimentVeryPositive,
				RiskSignals: []RiskSignal{},
			},
		},
		{
			name: "enterprise feature request floors at medium",
			ticket: &ticket.Ticket{
				ID: "F-2", Subject: "Idea", Body: "Could you add a roadmap page?",
				Tier: ticket.TierEnterprise,
			},
			want: Classification{
				Urgency:     UrgencyMedium,
				IssueType:   IssueFeatureRequest,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{RiskHighValueAccount},
			},
		},
		{
			name: "bug report",
			ticket: &ticket.Ticket{
				ID: "B-1", Subject: "Export button broken",
				Body: "The CSV export crashes with an error every time.",
				Tier: ticket.TierPro,
			},
			want: Classification{
				Urgency:     UrgencyMedium,
				IssueType:   IssueBug,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{},
			},
		},
		{
			name: "critical phrase",
			ticket: &ticket.Ticket{
				ID: "C-1", Subject: "Help", Body: "We had data loss after the migration.",
				Tier: ticket.TierPro,
			},
			want: Classification{
				Urgency:     UrgencyCritical,
				IssueType:   IssueAccount,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{},
			},
		},
		{
			name: "social and compliance",
			ticket: &ticket.Ticket{
				ID: "S-1", Subject: "Data request",
				Body: "Is your product GDPR compliant? If not I will post about this on Twitter.",
				Tier: ticket.TierFree,
			},
			want: Classification{
				Urgency:     UrgencyMedium,
				IssueType:   IssueAccount,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{RiskSocialMedia, RiskComplianceIssue},
			},
		},
		{
			name: "typographic apostrophe",
			ticket: &ticket.Ticket{
				ID: "A-1", Subject: "Dashboard", Body: "I can’t access my dashboard.",
				Tier: ticket.TierPro,
			},
			want: Classification{
				Urgency:     UrgencyHigh,
				Product:     "dashboard",
				IssueType:   IssueAccount,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{},
			},
		},
		{
			name: "metadata is searched",
			ticket: &ticket.Ticket{
				ID: "M-1", Subject: "Question", Body: "Please call me back.",
				Tier:     ticket.TierPro,
				Metadata: map[string]string{"note": "customer filed a chargeback"},
			},
			want: Classification{
				Urgency:     UrgencyMedium,
				IssueType:   IssueAccount,
				Sentiment:   SentimentNeutral,
				RiskSignals: []RiskSignal{RiskChargeDispute},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tk := *tt.ticket
			if err := tk.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			got := rc.Classify(&tk)
			if got.Confidence != RuleConfidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, RuleConfidence)
			}
			got.Reasoning, got.Confidence = "", 0
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRuleClassifier_WordBoundaries(t *testing.T) {
	t.Parallel()

	rc := NewRuleClassifier(DefaultKeywordSets())
	tk := &ticket.Ticket{ID: "W-1", Subject: "Downgrade", Body: "Please downgrade my plan; the breakdown was confusing."}

	if got := rc.Classify(tk).IssueType; got == IssueOutage {
		t.Errorf("issue type = %s, substring of a word must not match", got)
	}
}

func TestRuleClassifier_Deterministic(t *testing.T) {
	t.Parallel()

	rc := NewRuleClassifier(DefaultKeywordSets())
	tk := legalTicket()
	first := rc.Classify(tk)
	for range 10 {
		if diff := cmp.Diff(first, rc.Classify(tk)); diff != "" {
			t.Fatalf("classification changed between runs:\n%s", diff)
		}
	}
}

func TestRuleClassifier_EmptyKeywordSets(t *testing.T) {
	t.Parallel()

	rc := NewRuleClassifier(KeywordSets{})
	got := rc.Classify(outageTicket())

	if got.IssueType != IssueAccount || got.Urgency != UrgencyMedium || got.Sentiment != SentimentNeutral {
		t.Errorf("got %+v, want defaults", got)
	}
	if got.Product != "" {
		t.Errorf("product = %q, want empty", got.Product)
	}
	// enterprise tier is a hint even without keywords
	if !HasRisk(got.RiskSignals, RiskHighValueAccount) {
		t.Errorf("risk signals = %v, want high_value_account", got.RiskSignals)
	}
}

func TestMergeRisks_CanonicalOrder(t *testing.T) {
	t.Parallel()

	got := MergeRisks(
		[]RiskSignal{RiskComplianceIssue, RiskChurn},
		[]RiskSignal{RiskChurn, RiskLegalThreat},
		nil,
	)
	want := []RiskSignal{RiskChurn, RiskLegalThreat, RiskComplianceIssue}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeRisks (-want +got):\n%s", diff)
	}
}

func TestUrgency_AtLeastNeverLowers(t *testing.T) {
	t.Parallel()

	for _, u := range urgencyOrder {
		for _, floor := range urgencyOrder {
			got := u.AtLeast(floor)
			if got.Rank() < u.Rank() || got.Rank() < floor.Rank() {
				t.Errorf("%s.AtLeast(%s) = %s", u, floor, got)
			}
		}
	}
}

func FuzzRuleClassifier(f *testing.F) {
	f.Add("Production down", "everything is broken, lawyer incoming", "enterprise")
	f.Add("", "thanks!", "free")
	f.Add("café ✓", "can’t access", "???")

	rc := NewRuleClassifier(DefaultKeywordSets())
	f.Fuzz(func(t *testing.T, subject, body, tier string) {
		tk := &ticket.Ticket{ID: "fz", Subject: subject, Body: body, Tier: ticket.Tier(tier)}
		tk.Normalize()
		got := rc.Classify(tk)
		if got.Urgency.Rank() < 0 {
			t.Fatalf("invalid urgency %q", got.Urgency)
		}
		if got.Sentiment.Rank() < 0 {
			t.Fatalf("invalid sentiment %q", got.Sentiment)
		}
		if _, err := ParseIssueType(string(got.IssueType)); err != nil {
			t.Fatal(err)
		}
	})
}
