package tools

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mockdata.yaml
var defaultDataset []byte

// Dataset is the read-only backing data for the native and simulated tools.
// It is loaded once per engine configuration and never mutated afterwards.
type Dataset struct {
	KnowledgeBase []Article           `yaml:"knowledge_base"`
	Customers     map[string]Customer `yaml:"customers"`
	Regions       map[string]Region   `yaml:"regions"`
	SlackMessages []SlackMessage      `yaml:"slack_messages"`
	JiraIssues    []JiraIssue         `yaml:"jira_issues"`
	PagerDuty     PagerDutyData       `yaml:"pagerduty"`
}

// Article is a knowledge-base entry.
type Article struct {
	ID       string   `yaml:"id" json:"article_id"`
	Title    string   `yaml:"title" json:"title"`
	URL      string   `yaml:"url" json:"url"`
	Category string   `yaml:"category" json:"category"`
	Keywords []string `yaml:"keywords" json:"-"`
	Content  string   `yaml:"content" json:"-"`
}

// Customer is a CRM profile keyed by email in Dataset.Customers.
type Customer struct {
	Name                string       `yaml:"name"`
	Company             string       `yaml:"company"`
	Tier                string       `yaml:"tier"`
	Created             string       `yaml:"created"`
	LifetimeValue       float64      `yaml:"lifetime_value"`
	AverageSatisfaction *float64     `yaml:"average_satisfaction"`
	IsAtRisk            bool         `yaml:"is_at_risk"`
	Notes               string       `yaml:"notes"`
	PastTickets         []PastTicket `yaml:"past_tickets"`
}

// PastTicket summarises an earlier support interaction.
type PastTicket struct {
	ID           string `yaml:"id" json:"id"`
	Subject      string `yaml:"subject" json:"subject"`
	Status       string `yaml:"status" json:"status"`
	Created      string `yaml:"created" json:"created"`
	Satisfaction int    `yaml:"satisfaction" json:"satisfaction,omitempty"`
}

// Region is the status page view of one deployment region.
type Region struct {
	OverallStatus   string           `yaml:"overall_status"`
	Services        []ServiceStatus  `yaml:"services"`
	ActiveIncidents []RegionIncident `yaml:"active_incidents"`
}

type ServiceStatus struct {
	Name      string `yaml:"name" json:"name"`
	Status    string `yaml:"status" json:"status"`
	LatencyMS int    `yaml:"latency_ms" json:"latency_ms"`
}

type RegionIncident struct {
	ID               string   `yaml:"id" json:"id"`
	Title            string   `yaml:"title" json:"title"`
	Status           string   `yaml:"status" json:"status"`
	Severity         string   `yaml:"severity" json:"severity"`
	StartedAt        string   `yaml:"started_at" json:"started_at"`
	AffectedServices []string `yaml:"affected_services" json:"affected_services,omitempty"`
}

type SlackMessage struct {
	ID         string `yaml:"id" json:"id"`
	Channel    string `yaml:"channel" json:"channel"`
	User       string `yaml:"user" json:"user"`
	Text       string `yaml:"text" json:"text"`
	Timestamp  string `yaml:"timestamp" json:"timestamp"`
	ReplyCount int    `yaml:"reply_count" json:"reply_count"`
}

type JiraIssue struct {
	Key      string   `yaml:"key" json:"key"`
	Summary  string   `yaml:"summary" json:"summary"`
	Status   string   `yaml:"status" json:"status"`
	Priority string   `yaml:"priority" json:"priority"`
	Labels   []string `yaml:"labels" json:"labels"`
	Assignee string   `yaml:"assignee" json:"assignee,omitempty"`
	Created  string   `yaml:"created" json:"created"`
}

type PagerDutyData struct {
	Incidents []PagerDutyIncident       `yaml:"incidents"`
	OnCall    map[string]OnCallEngineer `yaml:"on_call"`
}

type PagerDutyIncident struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	ServiceID  string `yaml:"service_id" json:"service_id"`
	Urgency    string `yaml:"urgency" json:"urgency"`
	Status     string `yaml:"status" json:"status"`
	CreatedAt  string `yaml:"created_at" json:"created_at"`
	AssignedTo string `yaml:"assigned_to" json:"assigned_to,omitempty"`
}

type OnCallEngineer struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// DefaultDataset parses the embedded mock data.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(bytes.NewReader(defaultDataset))
}

// LoadDatasetFile parses a dataset from a YAML file on disk.
func LoadDatasetFile(path string) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadDataset(f)
}

// LoadDataset parses a YAML dataset. Unknown keys are rejected so typos surface at startup.
func LoadDataset(r io.Reader) (*Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	// lookups are case-insensitive
	customers := make(map[string]Customer, len(ds.Customers))
	for email, c := range ds.Customers {
		customers[strings.ToLower(strings.TrimSpace(email))] = c
	}
	ds.Customers = customers

	regions := make(map[string]Region, len(ds.Regions))
	for name, rg := range ds.Regions {
		regions[strings.ToLower(strings.TrimSpace(name))] = rg
	}
	ds.Regions = regions

	for i, a := range ds.KnowledgeBase {
		if a.ID == "" || a.Title == "" {
			return nil, fmt.Errorf("decode dataset: knowledge_base[%d] missing id or title", i)
		}
	}
	return &ds, nil
}
