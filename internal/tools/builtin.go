package tools

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Built-in tool names.
const (
	NameKnowledgeBase      = "knowledge_base_search"
	NameCustomerHistory    = "customer_history"
	NameRegionStatus       = "region_status"
	NameSlackSearch        = "slack_search"
	NameSlackPost          = "slack_post"
	NameJiraSearch         = "jira_search"
	NameJiraCreate         = "jira_create"
	NamePagerDutyIncidents = "pagerduty_incidents"
	NamePagerDutyCreate    = "pagerduty_create"
)

// NativeTools answer from local data and never fail on valid input.
var NativeTools = []string{NameKnowledgeBase, NameCustomerHistory, NameRegionStatus}

// IntegrationTools stand in for third-party systems and go through a Simulation.
var IntegrationTools = []string{
	NameSlackSearch, NameSlackPost,
	NameJiraSearch, NameJiraCreate,
	NamePagerDutyIncidents, NamePagerDutyCreate,
}

// AllTools lists every built-in tool in registration order.
func AllTools() []string {
	return slices.Concat(NativeTools, IntegrationTools)
}

// Known reports whether name is a built-in tool.
func Known(name string) bool {
	return slices.Contains(NativeTools, name) || slices.Contains(IntegrationTools, name)
}

// Config selects which built-in tools an engine may use and how simulated
// integrations behave.
type Config struct {
	// Enabled tool names. Order does not matter; registration follows AllTools.
	Enabled []string
	// Latency added to every integration call.
	Latency time.Duration
	// Unavailable integrations fail with ErrUnavailable.
	Unavailable []string
	// Now stamps tool outputs; defaults to time.Now.
	Now func() time.Time
	// OutboxLimit caps retained outbox records of each kind. Zero means
	// DefaultOutboxLimit; negative keeps only the counts.
	OutboxLimit int
}

// Build constructs a registry holding the enabled tools over ds, plus the outbox
// the action tools record into.
func Build(cfg Config, ds *Dataset) (*Registry, *Outbox, error) {
	if ds == nil {
		return nil, nil, errors.New("tools: dataset is required")
	}

	var errs []error
	for _, name := range cfg.Enabled {
		if !Known(name) {
			errs = append(errs, fmt.Errorf("tools: unknown tool %q", name))
		}
	}
	for _, name := range cfg.Unavailable {
		if !slices.Contains(IntegrationTools, name) {
			errs = append(errs, fmt.Errorf("tools: %q is not a simulated integration", name))
		}
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	sim := NewSimulation(cfg.Latency, cfg.Unavailable)
	outbox := NewOutbox()
	if cfg.OutboxLimit != 0 {
		outbox = NewOutboxLimit(cfg.OutboxLimit)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctors := map[string]func() Tool{
		NameKnowledgeBase:      func() Tool { return NewKnowledgeBaseSearch(ds) },
		NameCustomerHistory:    func() Tool { return NewCustomerHistory(ds) },
		NameRegionStatus:       func() Tool { return NewRegionStatus(ds, now) },
		NameSlackSearch:        func() Tool { return NewSlackSearch(ds, sim) },
		NameSlackPost:          func() Tool { return NewSlackPost(sim, outbox, now) },
		NameJiraSearch:         func() Tool { return NewJiraSearch(ds, sim) },
		NameJiraCreate:         func() Tool { return NewJiraCreate(sim, outbox, now) },
		NamePagerDutyIncidents: func() Tool { return NewPagerDutyIncidents(ds, sim) },
		NamePagerDutyCreate:    func() Tool { return NewPagerDutyCreate(ds, sim, outbox, now) },
	}

	registry := NewRegistry()
	for _, name := range AllTools() {
		if slices.Contains(cfg.Enabled, name) {
			registry.Register(ctors[name]())
		}
	}
	return registry, outbox, nil
}
