package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/docket/internal/triage"
)

// execute runs the root command with the model disabled and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(newApp())
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--model-enabled=false"))
	err := root.Execute()
	return out.String(), err
}

func decodeResults(t *testing.T, out string) []triageResult {
	t.Helper()
	var results []triageResult
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r triageResult
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode output: %v\n%s", err, out)
		}
		results = append(results, r)
	}
	return results
}

func TestTriage_Samples(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "triage", "--samples")
	if err != nil {
		t.Fatalf("triage --samples: %v", err)
	}
	results := decodeResults(t, out)

	got := map[string]triage.Action{}
	for _, r := range results {
		if r.Verdict == nil {
			t.Fatalf("ticket %s: no verdict, error %q", r.TicketID, r.Error)
		}
		if len(r.TriageID) != 26 {
			t.Errorf("ticket %s: triage id %q is not a ULID", r.TicketID, r.TriageID)
		}
		got[r.TicketID] = r.Verdict.Action
	}
	want := map[string]triage.Action{
		"T-1001": triage.ActionEscalateToHuman,
		"T-1002": triage.ActionEscalateToHuman,
		"T-1003": triage.ActionAutoRespond,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}
}

func TestTriage_StdinKeepsOrderAndReportsInvalid(t *testing.T) {
	t.Parallel()

	in := `
- ticket_id: A-1
  body: I forgot my password
  customer_tier: free
- ticket_id: A-2
  body: ""
- ticket_id: A-3
  body: The dashboard shows an error when I export
`
	out, err := execute(t, in, "triage", "--concurrency", "2")
	if err == nil || !strings.Contains(err.Error(), "1 of 3 tickets failed") {
		t.Fatalf("err = %v, want 1 of 3 failed", err)
	}

	results := decodeResults(t, out)
	var ids []string
	for _, r := range results {
		ids = append(ids, r.TicketID)
	}
	if diff := cmp.Diff([]string{"A-1", "A-2", "A-3"}, ids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if results[1].Verdict != nil || !strings.Contains(results[1].Error, "invalid ticket") {
		t.Errorf("A-2 = %+v, want invalid ticket error", results[1])
	}
	if results[0].Verdict == nil || results[2].Verdict == nil {
		t.Error("valid tickets must still produce verdicts")
	}
}

func TestTriage_JSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ticket.json")
	body := `{"ticket_id":"J-1","subject":"Invoice question","body":"Why was my invoice higher this month?","customer_tier":"pro"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "triage", path)
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	results := decodeResults(t, out)
	if len(results) != 1 || results[0].Verdict == nil {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Verdict.IssueType != triage.IssueBilling {
		t.Errorf("issue type = %q, want billing", results[0].Verdict.IssueType)
	}
}

func TestTriage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad concurrency", []string{"triage", "--samples", "--concurrency", "0"}, "--concurrency"},
		{"samples with files", []string{"triage", "--samples", "x.yaml"}, "does not take file arguments"},
		{"missing file", []string{"triage", filepath.Join(t.TempDir(), "nope.yaml")}, "nope.yaml"},
		{"bad tool name", []string{"triage", "--samples", "--tools", "query_logs"}, "unknown tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestToolsList(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "tools", "--tools", "knowledge_base_search,region_status")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "knowledge_base_search") || !strings.HasPrefix(lines[2], "region_status") {
		t.Errorf("unexpected listing:\n%s", out)
	}
	if !strings.Contains(lines[1], "answers the question directly.") {
		t.Errorf("knowledge base row lost the end of its description: %q", lines[1])
	}
}

func TestToolInvoke(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "tool", "knowledge_base_search", "--input", `{"query":"reset password"}`)
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	var call triage.ToolCall
	if err := json.Unmarshal([]byte(out), &call); err != nil {
		t.Fatalf("decode call: %v\n%s", err, out)
	}
	if !call.Success || !strings.Contains(string(call.Output), "KB-AUTH-001") {
		t.Errorf("call = %+v", call)
	}
}

func TestToolInvoke_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown tool", []string{"tool", "query_logs"}, "unknown or disabled tool"},
		{"invalid json", []string{"tool", "knowledge_base_search", "--input", "{"}, "not valid JSON"},
		{"tool failure", []string{"tool", "customer_history", "--input", "{}"}, "tool customer_history failed"},
		{"missing name", []string{"tool"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestModelEnabledNeedsKey(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	root := newRootCmd(newApp())
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"tools", "--model-enabled=true", "--claude-api-key", ""})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "CLAUDE_API_KEY") {
		t.Errorf("err = %v, want CLAUDE_API_KEY error", err)
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "commit=") {
		t.Errorf("version output = %q", out)
	}
}
