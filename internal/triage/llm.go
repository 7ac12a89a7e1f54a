package triage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/linnemanlabs/docket/internal/tools"
)

// Sentinel errors a Provider returns so the classifier can tell transient
// failures from permanent ones.
var (
	ErrModelTimeout      = errors.New("model call timed out")
	ErrModelRateLimited  = errors.New("model rate limited")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrMalformedResponse = errors.New("malformed model response")
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is the input to a Provider: conversation, tools, and an
// optional forced tool choice.
type LLMRequest struct {
	MaxTokens  int
	System     string
	Messages   []Message
	Tools      []tools.ToolDef
	ToolChoice string
}

// LLMResponse is the output of a Provider.
type LLMResponse struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Message is a single conversation message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// isTransient reports whether a provider error is worth retrying.
func isTransient(err error) bool {
	return errors.Is(err, ErrModelTimeout) ||
		errors.Is(err, ErrModelRateLimited) ||
		errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded)
}
