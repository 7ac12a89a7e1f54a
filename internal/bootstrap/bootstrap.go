// Package bootstrap assembles a triage engine from resolved configuration.
// Both the HTTP server and the CLI build their engine here.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/docket/internal/cfg"
	"github.com/linnemanlabs/docket/internal/llm/claude"
	"github.com/linnemanlabs/docket/internal/tools"
	"github.com/linnemanlabs/docket/internal/triage"
)

// Options carries the process-level pieces the engine is wired with.
type Options struct {
	Logger log.Logger
	Hooks  triage.EngineHooks
	// HTTPClient is used for model calls, e.g. one with otelhttp transport.
	HTTPClient *http.Client
}

// Result is a wired engine plus the outbox its action tools record into.
type Result struct {
	Engine *triage.Engine
	Outbox *tools.Outbox
	// Provider is nil when the model is disabled.
	Provider triage.Provider
}

// Build loads the mock dataset, registers the enabled tools and, when the
// model is enabled, creates the Claude provider.
func Build(ctx context.Context, c *cfg.Config, opts Options) (*Result, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	ds, err := loadDataset(c.MockDataPath)
	if err != nil {
		return nil, err
	}

	registry, outbox, err := tools.Build(c.ToolConfig(), ds)
	if err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}
	for _, def := range registry.ToToolDefs() {
		L.Info(ctx, "registered tool", "name", def.Name)
	}

	var provider triage.Provider
	if c.ModelEnabled {
		copts := []claude.Option{claude.WithRateLimit(c.ModelRateLimit, 1)}
		if opts.HTTPClient != nil {
			copts = append(copts, claude.WithHTTPClient(opts.HTTPClient))
		}
		provider = claude.New(c.ClaudeAPIKey, c.ClaudeModel, copts...)
		L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", c.ClaudeModel)
	} else {
		L.Info(ctx, "model classification disabled, using keyword rules")
	}

	engine := triage.NewEngine(provider, registry, c.Settings(), L, opts.Hooks)
	return &Result{Engine: engine, Outbox: outbox, Provider: provider}, nil
}

func loadDataset(path string) (*tools.Dataset, error) {
	if path == "" {
		ds, err := tools.DefaultDataset()
		if err != nil {
			return nil, fmt.Errorf("load embedded dataset: %w", err)
		}
		return ds, nil
	}
	ds, err := tools.LoadDatasetFile(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, nil
}
