package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

const defaultJiraResults = 10

// JiraSearch runs a small JQL subset against the simulated tracker.
//
// Supported clauses, joined with AND:
//
//	text ~ "words"      summary contains every word
//	labels = name       issue carries the label
//	priority = High     exact priority
//	status = Open       exact status (also !=)
//	project = SUPPORT   key prefix
type JiraSearch struct {
	issues []JiraIssue
	sim    *Simulation
}

// JiraSearchInput is the jira_search payload.
type JiraSearchInput struct {
	JQL        string `json:"jql" validate:"required,max=1000"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=50"`
}

// JiraSearchOutput is the jira_search result.
type JiraSearchOutput struct {
	JQL    string      `json:"jql"`
	Issues []JiraIssue `json:"issues"`
	Total  int         `json:"total"`
}

// NewJiraSearch creates the tool over the dataset's issues.
func NewJiraSearch(ds *Dataset, sim *Simulation) *JiraSearch {
	return &JiraSearch{issues: ds.JiraIssues, sim: sim}
}

func (j *JiraSearch) Name() string { return NameJiraSearch }

func (j *JiraSearch) Description() string {
	return `Search Jira for existing issues using simplified JQL. Clauses are joined with AND:
text ~ "words", labels = x, priority = x, status = x (or !=), project = x.
Example: text ~ "dashboard timeout" AND status != Resolved`
}

func (j *JiraSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "jql": {"type": "string"},
            "max_results": {"type": "integer", "minimum": 1, "maximum": 50}
        },
        "required": ["jql"]
    }`)
}

type jqlClause struct {
	field string
	op    string
	value string
}

var (
	jqlAndRe    = regexp.MustCompile(`(?i)\s+AND\s+`)
	jqlClauseRe = regexp.MustCompile(`^(\w+)\s*(!=|=|~)\s*"?([^"]*)"?$`)
)

func parseJQL(jql string) ([]jqlClause, error) {
	parts := jqlAndRe.Split(strings.TrimSpace(jql), -1)
	clauses := make([]jqlClause, 0, len(parts))
	for _, p := range parts {
		m := jqlClauseRe.FindStringSubmatch(strings.TrimSpace(p))
		if m == nil {
			return nil, fmt.Errorf("%w: unparseable clause %q", ErrInvalidInput, p)
		}
		c := jqlClause{field: strings.ToLower(m[1]), op: m[2], value: strings.TrimSpace(m[3])}
		switch {
		case c.field == "text" && c.op == "~":
		case c.field == "status" && (c.op == "=" || c.op == "!="):
		case (c.field == "labels" || c.field == "priority" || c.field == "project") && c.op == "=":
		default:
			return nil, fmt.Errorf("%w: unsupported clause %q", ErrInvalidInput, p)
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func (c jqlClause) matches(is JiraIssue) bool {
	switch c.field {
	case "text":
		summary := strings.ToLower(is.Summary)
		for _, term := range QueryTerms(c.value) {
			if !strings.Contains(summary, term) {
				return false
			}
		}
		return true
	case "labels":
		return slices.ContainsFunc(is.Labels, func(l string) bool { return strings.EqualFold(l, c.value) })
	case "priority":
		return strings.EqualFold(is.Priority, c.value)
	case "status":
		eq := strings.EqualFold(is.Status, c.value)
		if c.op == "!=" {
			return !eq
		}
		return eq
	case "project":
		return strings.HasPrefix(strings.ToUpper(is.Key), strings.ToUpper(c.value)+"-")
	}
	return false
}

func (j *JiraSearch) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in JiraSearchInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	clauses, err := parseJQL(in.JQL)
	if err != nil {
		return nil, err
	}
	if err := j.sim.call(ctx, j.Name()); err != nil {
		return nil, err
	}
	if in.MaxResults == 0 {
		in.MaxResults = defaultJiraResults
	}

	found := []JiraIssue{}
	for _, is := range j.issues {
		ok := true
		for _, c := range clauses {
			if !c.matches(is) {
				ok = false
				break
			}
		}
		if ok {
			found = append(found, is)
		}
	}

	total := len(found)
	if len(found) > in.MaxResults {
		found = found[:in.MaxResults]
	}
	return encodeOutput(j.Name(), JiraSearchOutput{JQL: in.JQL, Issues: found, Total: total})
}

// JiraCreate simulates filing a Jira issue. Keys are allocated per Outbox.
type JiraCreate struct {
	sim    *Simulation
	outbox *Outbox
	now    func() time.Time
}

// JiraCreateInput is the jira_create payload.
type JiraCreateInput struct {
	Project     string   `json:"project" validate:"required,alphanum,uppercase,max=10"`
	IssueType   string   `json:"issue_type" validate:"required,oneof=Bug Task Story Incident"`
	Summary     string   `json:"summary" validate:"required,max=255"`
	Description string   `json:"description,omitempty" validate:"max=10000"`
	Priority    string   `json:"priority,omitempty" validate:"omitempty,oneof=Lowest Low Medium High Highest Critical"`
	Labels      []string `json:"labels,omitempty" validate:"omitempty,max=10,dive,required,max=50"`
}

// JiraCreateOutput is the jira_create result.
type JiraCreateOutput struct {
	Key       string    `json:"key"`
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJiraCreate creates the tool recording into outbox.
func NewJiraCreate(sim *Simulation, outbox *Outbox, now func() time.Time) *JiraCreate {
	if now == nil {
		now = time.Now
	}
	return &JiraCreate{sim: sim, outbox: outbox, now: now}
}

func (j *JiraCreate) Name() string { return NameJiraCreate }

func (j *JiraCreate) Description() string {
	return `Create a Jira issue to track follow-up work (bugs, incidents, legal or escalation tasks).`
}

func (j *JiraCreate) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "project": {"type": "string", "description": "Project key, e.g. SUPPORT."},
            "issue_type": {"type": "string", "enum": ["Bug", "Task", "Story", "Incident"]},
            "summary": {"type": "string", "maxLength": 255},
            "description": {"type": "string"},
            "priority": {"type": "string", "enum": ["Lowest", "Low", "Medium", "High", "Highest", "Critical"]},
            "labels": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["project", "issue_type", "summary"]
    }`)
}

func (j *JiraCreate) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in JiraCreateInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if err := j.sim.call(ctx, j.Name()); err != nil {
		return nil, err
	}

	created := j.outbox.addIssue(CreatedIssue{
		Project:   in.Project,
		IssueType: in.IssueType,
		Summary:   in.Summary,
		Priority:  in.Priority,
		Labels:    append([]string(nil), in.Labels...),
		CreatedAt: j.now().UTC(),
	})

	return encodeOutput(j.Name(), JiraCreateOutput{
		Key:       created.Key,
		ID:        created.ID,
		URL:       created.URL,
		Status:    "Open",
		CreatedAt: created.CreatedAt,
	})
}
