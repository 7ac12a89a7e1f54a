package tools

import (
	"strings"
	"testing"
)

func TestBuild_EnabledOrderIsCanonical(t *testing.T) {
	t.Parallel()

	reg, outbox, err := Build(Config{
		Enabled: []string{NameSlackPost, NameCustomerHistory, NameKnowledgeBase},
	}, testDataset(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if outbox == nil {
		t.Fatal("expected outbox")
	}

	got := reg.Enabled()
	want := []string{NameKnowledgeBase, NameCustomerHistory, NameSlackPost}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Enabled() = %v, want %v", got, want)
	}
	if _, ok := reg.Get(NameJiraCreate); ok {
		t.Error("jira_create should not be registered")
	}
}

func TestBuild_AllTools(t *testing.T) {
	t.Parallel()

	reg, _, err := Build(Config{Enabled: AllTools()}, testDataset(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reg.Enabled()) != 9 {
		t.Errorf("enabled = %d, want 9", len(reg.Enabled()))
	}
	for _, def := range reg.ToToolDefs() {
		if def.Description == "" || len(def.InputSchema) == 0 {
			t.Errorf("tool %s missing description or schema", def.Name)
		}
	}
}

func TestBuild_OutboxLimit(t *testing.T) {
	t.Parallel()

	reg, outbox, err := Build(Config{Enabled: []string{NameJiraCreate}, OutboxLimit: -1}, testDataset(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	jc, _ := reg.Get(NameJiraCreate)
	execute(t, jc, `{"project":"SUPPORT","issue_type":"Task","summary":"x"}`, &JiraCreateOutput{})

	if len(outbox.Issues()) != 0 || outbox.Counts().Issues != 1 {
		t.Errorf("issues = %d count = %d, want counts only", len(outbox.Issues()), outbox.Counts().Issues)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)

	if _, _, err := Build(Config{Enabled: []string{"query_logs"}}, ds); err == nil {
		t.Error("expected error for unknown tool")
	}
	if _, _, err := Build(Config{Unavailable: []string{NameKnowledgeBase}}, ds); err == nil {
		t.Error("expected error for native tool marked unavailable")
	}
	if _, _, err := Build(Config{}, nil); err == nil {
		t.Error("expected error for nil dataset")
	}
}

func TestLoadDataset_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := LoadDataset(strings.NewReader("knowledge_base: []\nbogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadDataset_NormalisesKeys(t *testing.T) {
	t.Parallel()

	ds, err := LoadDataset(strings.NewReader(`
customers:
  " Someone@Example.COM ":
    name: Someone
    tier: pro
regions:
  EU-Central:
    overall_status: operational
`))
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if _, ok := ds.Customers["someone@example.com"]; !ok {
		t.Errorf("customer key not normalised: %v", ds.Customers)
	}
	if _, ok := ds.Regions["eu-central"]; !ok {
		t.Errorf("region key not normalised: %v", ds.Regions)
	}
}
