package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/docket/internal/tools"
	"github.com/linnemanlabs/docket/internal/triage"
)

// Client implements triage.Provider on top of the Anthropic Messages API.
// Retries are left to the classifier, so the SDK's own retry loop is off.
type Client struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
}

// Option adjusts a Client at construction.
type Option func(*config)

type config struct {
	baseURL    string
	httpClient *http.Client
	rps        float64
	burst      int
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the transport, e.g. one wrapped by otelhttp.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. rps <= 0 disables the cap.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rps = rps
		c.burst = burst
	}
}

// New creates a Claude client for the given API key and model name.
func New(apiKey, model string, opts ...Option) *Client {
	cfg := config{burst: 1}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	limit := rate.Inf
	if cfg.rps > 0 {
		limit = rate.Limit(cfg.rps)
	}
	if cfg.burst < 1 {
		cfg.burst = 1
	}

	return &Client{
		client:  anthropic.NewClient(reqOpts...),
		model:   model,
		limiter: rate.NewLimiter(limit, cfg.burst),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Send issues one Messages API call. Failures are mapped onto the triage
// error sentinels so the classifier can decide whether to retry.
func (c *Client) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", triage.ErrModelTimeout, ctx.Err())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", triage.ErrModelRateLimited, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}
	if req.ToolChoice != "" {
		params.ToolChoice = toolChoice(req.ToolChoice)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	return fromSDKResponse(msg), nil
}

// mapError classifies an SDK or transport failure.
func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d: %w", triage.ErrModelRateLimited, apiErr.StatusCode, err)
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return fmt.Errorf("%w: status %d: %w", triage.ErrModelTimeout, apiErr.StatusCode, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: status %d: %w", triage.ErrModelUnavailable, apiErr.StatusCode, err)
		}
		return fmt.Errorf("claude api error %d: %w", apiErr.StatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", triage.ErrModelTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", triage.ErrModelTimeout, err)
		}
		return fmt.Errorf("%w: %w", triage.ErrModelUnavailable, err)
	}
	return fmt.Errorf("send request: %w", err)
}

func toSDKMessages(msgs []triage.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case "tool_use":
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
			case "tool_result":
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toSDKTools(defs []tools.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		// a malformed schema degrades to an object without properties
		_ = json.Unmarshal(d.InputSchema, &schema)

		tp := &anthropic.ToolParam{
			Name: d.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if d.Description != "" {
			tp.Description = anthropic.String(d.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tp})
	}
	return out
}

// toolChoice forces the model to call the named tool.
func toolChoice(name string) anthropic.ToolChoiceUnionParam {
	return anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: name},
	}
}

func fromSDKResponse(msg *anthropic.Message) *triage.LLMResponse {
	resp := &triage.LLMResponse{
		StopReason: triage.StopReason(msg.StopReason),
		Usage: triage.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Model: string(msg.Model),
	}
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			resp.Content = append(resp.Content, triage.ContentBlock{Type: "text", Text: b.Text})
		case "tool_use":
			resp.Content = append(resp.Content, triage.ContentBlock{
				Type:  "tool_use",
				ID:    b.ID,
				Name:  b.Name,
				Input: json.RawMessage(b.Input),
			})
		}
	}
	return resp
}
