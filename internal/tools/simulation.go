package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Simulation stands in for the network behaviour of third-party integrations.
type Simulation struct {
	latency     time.Duration
	unavailable map[string]bool
}

// NewSimulation returns a Simulation that delays every integration call by latency
// and fails calls to the named tools with ErrUnavailable.
func NewSimulation(latency time.Duration, unavailable []string) *Simulation {
	s := &Simulation{latency: latency, unavailable: make(map[string]bool, len(unavailable))}
	for _, name := range unavailable {
		s.unavailable[name] = true
	}
	return s
}

// call models one round-trip to the named integration.
func (s *Simulation) call(ctx context.Context, name string) error {
	if s == nil {
		return nil
	}
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
	if s.unavailable[name] {
		return fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	return nil
}

// DefaultOutboxLimit is the number of records of each kind NewOutbox retains.
const DefaultOutboxLimit = 1000

// Outbox records the side effects of simulated action tools so operators and
// tests can inspect what would have been sent. Totals are kept for the life of
// the outbox; only the most recent records of each kind are retained.
// Safe for concurrent use.
type Outbox struct {
	mu        sync.Mutex
	limit     int
	counts    OutboxCounts
	messages  []PostedMessage
	issues    []CreatedIssue
	incidents []CreatedIncident
}

// OutboxCounts are lifetime totals, including evicted records.
type OutboxCounts struct {
	Messages  int `json:"messages"`
	Issues    int `json:"issues"`
	Incidents int `json:"incidents"`
}

// NewOutbox returns an empty outbox retaining DefaultOutboxLimit records of each kind.
func NewOutbox() *Outbox { return NewOutboxLimit(DefaultOutboxLimit) }

// NewOutboxLimit returns an outbox retaining at most limit records of each
// kind, oldest evicted first. limit <= 0 keeps only the counts.
func NewOutboxLimit(limit int) *Outbox {
	if limit < 0 {
		limit = 0
	}
	return &Outbox{limit: limit}
}

// keepTail appends v and drops the oldest entries beyond limit.
func keepTail[T any](s []T, v T, limit int) []T {
	if limit == 0 {
		return nil
	}
	s = append(s, v)
	if drop := len(s) - limit; drop > 0 {
		clear(s[:drop])
		s = s[drop:]
	}
	return s
}

// PostedMessage is a Slack message accepted by slack_post.
type PostedMessage struct {
	MessageID string         `json:"message_id"`
	Channel   string         `json:"channel"`
	Text      string         `json:"text"`
	ThreadTS  string         `json:"thread_ts,omitempty"`
	Payload   map[string]any `json:"payload"`
	PostedAt  time.Time      `json:"posted_at"`
}

// CreatedIssue is a Jira issue accepted by jira_create.
type CreatedIssue struct {
	Key       string    `json:"key"`
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	IssueType string    `json:"issue_type"`
	Summary   string    `json:"summary"`
	Priority  string    `json:"priority,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatedIncident is a PagerDuty incident accepted by pagerduty_create.
type CreatedIncident struct {
	ID         string         `json:"id"`
	ServiceID  string         `json:"service_id"`
	Title      string         `json:"title"`
	Urgency    string         `json:"urgency"`
	Status     string         `json:"status"`
	AssignedTo OnCallEngineer `json:"assigned_to"`
	HTMLURL    string         `json:"html_url"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (o *Outbox) addMessage(m PostedMessage) PostedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts.Messages++
	m.MessageID = fmt.Sprintf("msg-%06d", o.counts.Messages)
	o.messages = keepTail(o.messages, m, o.limit)
	return m
}

// issue numbers continue after the highest key in the mock tracker
const firstIssueNumber = 1300

func (o *Outbox) addIssue(is CreatedIssue) CreatedIssue {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := firstIssueNumber + o.counts.Issues
	o.counts.Issues++
	is.Key = fmt.Sprintf("%s-%d", is.Project, n)
	is.ID = fmt.Sprintf("%d", 10000+n)
	is.URL = "https://company.atlassian.net/browse/" + is.Key
	o.issues = keepTail(o.issues, is, o.limit)
	return is
}

func (o *Outbox) addIncident(in CreatedIncident) CreatedIncident {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts.Incidents++
	in.ID = fmt.Sprintf("P-INC-SIM-%04d", o.counts.Incidents)
	in.HTMLURL = "https://company.pagerduty.com/incidents/" + in.ID
	o.incidents = keepTail(o.incidents, in, o.limit)
	return in
}

// Counts returns lifetime totals.
func (o *Outbox) Counts() OutboxCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts
}

// Messages returns a copy of the retained messages, oldest first.
func (o *Outbox) Messages() []PostedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PostedMessage(nil), o.messages...)
}

// Issues returns a copy of the retained issues, oldest first.
func (o *Outbox) Issues() []CreatedIssue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CreatedIssue(nil), o.issues...)
}

// Incidents returns a copy of the retained incidents, oldest first.
func (o *Outbox) Incidents() []CreatedIncident {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CreatedIncident(nil), o.incidents...)
}
