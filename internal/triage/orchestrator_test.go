package triage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
)

func TestGather_Plans(t *testing.T) {
	t.Parallel()

	rc := NewRuleClassifier(DefaultKeywordSets())

	tests := []struct {
		name   string
		ticket func() *ticket.Ticket
		want   []string
	}{
		{
			name:   "enterprise outage",
			ticket: outageTicket,
			want: []string{
				tools.NameKnowledgeBase, tools.NameCustomerHistory, tools.NameRegionStatus,
				tools.NamePagerDutyIncidents, tools.NameJiraCreate, tools.NameSlackPost,
			},
		},
		{
			name:   "legal threat",
			ticket: legalTicket,
			want:   []string{tools.NameKnowledgeBase, tools.NameCustomerHistory, tools.NameJiraCreate},
		},
		{
			name:   "password reset",
			ticket: passwordTicket,
			want:   []string{tools.NameKnowledgeBase, tools.NameCustomerHistory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, _ := testRegistry(t, tools.Config{})
			o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)

			tk := tt.ticket()
			_, calls := o.Gather(context.Background(), tk, rc.Classify(tk))
			if diff := cmp.Diff(tt.want, toolNames(calls)); diff != "" {
				t.Errorf("plan (-want +got):\n%s", diff)
			}
			for _, c := range calls {
				if !c.Success {
					t.Errorf("%s failed: %s", c.Tool, c.Error)
				}
				if !c.Timestamp.Equal(fixedNow) {
					t.Errorf("%s timestamp = %v", c.Tool, c.Timestamp)
				}
			}
		})
	}
}

func TestGather_EscalationArtifacts(t *testing.T) {
	t.Parallel()

	reg, outbox := testRegistry(t, tools.Config{})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)
	tk := outageTicket()

	g, _ := o.Gather(context.Background(), tk, NewRuleClassifier(DefaultKeywordSets()).Classify(tk))

	if len(g.Issues) != 1 || g.Issues[0].Key != "SUPPORT-1300" {
		t.Fatalf("issues = %+v", g.Issues)
	}
	if g.Posted == nil || g.Posted.Channel != escalationChannel {
		t.Fatalf("posted = %+v", g.Posted)
	}
	if g.Region == nil || !g.Region.HasActiveOutage() {
		t.Errorf("region = %+v, want us-east outage", g.Region)
	}
	if g.Incidents == nil || !g.Incidents.HasCritical {
		t.Errorf("incidents = %+v", g.Incidents)
	}

	msgs := outbox.Messages()
	if len(msgs) != 1 {
		t.Fatalf("outbox messages = %d, want 1", len(msgs))
	}
	// the slack post links the issue created just before it
	if !strings.Contains(msgs[0].Text, "SUPPORT-1300") {
		t.Errorf("slack text does not reference the jira issue: %q", msgs[0].Text)
	}
	issues := outbox.Issues()
	if len(issues) != 1 || issues[0].Priority != "Highest" || issues[0].IssueType != "Incident" {
		t.Errorf("outbox issues = %+v", issues)
	}
}

func TestGather_FailuresDoNotShortCircuit(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(&mockTool{name: tools.NameKnowledgeBase, err: errors.New("index offline")})
	reg.Register(&mockTool{name: tools.NameCustomerHistory, panics: true})
	reg.Register(&mockTool{name: tools.NameRegionStatus, output: json.RawMessage(`{"region":"us-east","overall_status":"major_outage"}`)})
	reg.Register(&mockTool{name: tools.NamePagerDutyIncidents, output: json.RawMessage(`not json`)})
	reg.Register(&mockTool{name: tools.NameJiraCreate, err: tools.ErrUnavailable})
	reg.Register(&mockTool{name: tools.NameSlackPost, output: json.RawMessage(`{"ok":true,"channel":"#support-escalations"}`)})

	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)
	cl := Classification{
		Urgency: UrgencyCritical, IssueType: IssueOutage,
		RiskSignals: []RiskSignal{RiskLegalThreat},
	}
	g, calls := o.Gather(context.Background(), outageTicket(), cl)

	want := []string{
		tools.NameKnowledgeBase, tools.NameCustomerHistory, tools.NameRegionStatus,
		tools.NamePagerDutyIncidents, tools.NameJiraCreate, tools.NameSlackPost,
	}
	if diff := cmp.Diff(want, toolNames(calls)); diff != "" {
		t.Fatalf("plan (-want +got):\n%s", diff)
	}

	if calls[0].Success || calls[0].Error != "index offline" {
		t.Errorf("kb call = %+v", calls[0])
	}
	if calls[1].Success || !strings.Contains(calls[1].Error, ErrToolPanic.Error()) || !strings.Contains(calls[1].Error, "boom") {
		t.Errorf("panicking call = %+v", calls[1])
	}
	if calls[1].Output != nil {
		t.Errorf("failed call carries output %s", calls[1].Output)
	}
	// executed fine but unreadable: logged as success, ignored for routing
	if !calls[3].Success || g.Incidents != nil {
		t.Errorf("pagerduty call = %+v incidents = %+v", calls[3], g.Incidents)
	}
	if calls[4].Success || !strings.Contains(calls[4].Error, tools.ErrUnavailable.Error()) {
		t.Errorf("jira call = %+v", calls[4])
	}
	if g.KnowledgeBase != nil || g.Customer != nil || len(g.Issues) != 0 {
		t.Errorf("failed tools leaked results: %+v", g)
	}
	if g.Region == nil || g.Posted == nil {
		t.Errorf("successful tools missing: region=%v posted=%v", g.Region, g.Posted)
	}
}

func TestGather_DisabledToolsLeaveNoEntry(t *testing.T) {
	t.Parallel()

	reg, _ := testRegistry(t, tools.Config{Enabled: []string{tools.NameKnowledgeBase, tools.NameSlackPost}})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)
	tk := outageTicket()

	_, calls := o.Gather(context.Background(), tk, NewRuleClassifier(DefaultKeywordSets()).Classify(tk))

	want := []string{tools.NameKnowledgeBase, tools.NameSlackPost}
	if diff := cmp.Diff(want, toolNames(calls)); diff != "" {
		t.Errorf("plan (-want +got):\n%s", diff)
	}
}

func TestGather_UnavailableJiraStillCountsAsInvoked(t *testing.T) {
	t.Parallel()

	reg, outbox := testRegistry(t, tools.Config{Unavailable: []string{tools.NameJiraCreate}})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)
	cl := Classification{
		Urgency: UrgencyCritical, IssueType: IssueOutage,
		RiskSignals: []RiskSignal{RiskLegalThreat},
	}

	_, calls := o.Gather(context.Background(), outageTicket(), cl)

	n := 0
	for _, c := range calls {
		if c.Tool == tools.NameJiraCreate {
			n++
			if c.Success {
				t.Error("jira_create should have failed")
			}
		}
	}
	if n != 1 {
		t.Errorf("jira_create invoked %d times, want 1", n)
	}
	if len(outbox.Issues()) != 0 {
		t.Error("failed jira_create reached the outbox")
	}
}

func TestGather_NoEmailSkipsCustomerHistory(t *testing.T) {
	t.Parallel()

	reg, _ := testRegistry(t, tools.Config{})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)
	tk := passwordTicket()
	tk.CustomerEmail = ""

	_, calls := o.Gather(context.Background(), tk, Classification{Urgency: UrgencyMedium, IssueType: IssueAccount})
	if diff := cmp.Diff([]string{tools.NameKnowledgeBase}, toolNames(calls)); diff != "" {
		t.Errorf("plan (-want +got):\n%s", diff)
	}
}

func TestGather_KnowledgeBaseSortedStable(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(&mockTool{name: tools.NameKnowledgeBase, output: json.RawMessage(`{"query":"q","results":[
		{"article_id":"A","relevance_score":0.3},
		{"article_id":"B","relevance_score":0.9},
		{"article_id":"C","relevance_score":0.9},
		{"article_id":"D","relevance_score":0.5}
	],"total_found":4}`)})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)

	g, _ := o.Gather(context.Background(), passwordTicket(), Classification{Urgency: UrgencyLow, IssueType: IssueAccount})

	var got []string
	for _, r := range g.KnowledgeBase {
		got = append(got, r.ArticleID)
	}
	if diff := cmp.Diff([]string{"B", "C", "D", "A"}, got); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if g.TopKBScore() != 0.9 {
		t.Errorf("top score = %v", g.TopKBScore())
	}
}

func TestGather_HooksSeeEveryCall(t *testing.T) {
	t.Parallel()

	var names []string
	var errs int
	hooks := EngineHooks{OnToolCall: func(name string, _ float64, in, _ int, isErr bool) {
		names = append(names, name)
		if in == 0 {
			t.Errorf("%s reported empty input", name)
		}
		if isErr {
			errs++
		}
	}}
	reg, _ := testRegistry(t, tools.Config{Unavailable: []string{tools.NameSlackPost}})
	o := NewOrchestrator(reg, log.Nop(), hooks, fixedClock)
	tk := outageTicket()

	_, calls := o.Gather(context.Background(), tk, NewRuleClassifier(DefaultKeywordSets()).Classify(tk))

	if diff := cmp.Diff(toolNames(calls), names); diff != "" {
		t.Errorf("hook names (-calls +hooks):\n%s", diff)
	}
	if errs != 1 {
		t.Errorf("error hooks = %d, want 1", errs)
	}
}

func TestInvokeTool(t *testing.T) {
	t.Parallel()

	reg, _ := testRegistry(t, tools.Config{})
	o := NewOrchestrator(reg, log.Nop(), EngineHooks{}, fixedClock)

	tc, err := o.InvokeTool(context.Background(), tools.NameJiraSearch, json.RawMessage(`{"jql":"labels = billing"}`))
	if err != nil {
		t.Fatalf("InvokeTool: %v", err)
	}
	if !tc.Success || !strings.Contains(string(tc.Output), "SUPPORT-1198") {
		t.Errorf("tool call = %+v", tc)
	}

	tc, err = o.InvokeTool(context.Background(), tools.NameSlackSearch, nil)
	if err != nil {
		t.Fatalf("InvokeTool: %v", err)
	}
	if tc.Success || string(tc.Input) != `{}` {
		t.Errorf("empty input should fail validation, got %+v", tc)
	}

	if _, err := o.InvokeTool(context.Background(), "query_logs", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestKnowledgeBaseQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subject string
		body    string
		issue   IssueType
		want    string
	}{
		{"How do I reset my password?", "", IssueAccount, "reset password account"},
		{"Production database down", "", IssueOutage, "production database down outage"},
		{"Billing question", "", IssueBilling, "billing question"},
		{"Export is broken", "", IssueBug, "export broken error"},
		{"", "", IssueOther, "other"},
		{"one two three four five six seven eight", "", IssueFeatureRequest, "one two three four five six feature"},
		{"", "How do I reset my password?", IssueAccount, "reset password account"},
		{"Help", "Charged twice this month", IssueBilling, "charged twice month billing"},
		{"", "alpha beta gamma delta epsilon zeta eta", IssueOther, "alpha beta gamma delta epsilon zeta"},
	}
	for _, tt := range tests {
		if got := knowledgeBaseQuery(tt.subject, tt.body, tt.issue); got != tt.want {
			t.Errorf("knowledgeBaseQuery(%q, %q, %s) = %q, want %q", tt.subject, tt.body, tt.issue, got, tt.want)
		}
	}
}
