package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	defaultSlackResults = 10
	maxSlackTextLen     = 3000
)

// SlackSearch searches simulated Slack history.
type SlackSearch struct {
	messages []SlackMessage
	sim      *Simulation
}

// SlackSearchInput is the slack_search payload.
type SlackSearchInput struct {
	Query   string `json:"query" validate:"required,max=500"`
	Channel string `json:"channel,omitempty" validate:"omitempty,startswith=#,max=80"`
	Limit   int    `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
}

// SlackSearchMatch is a message with its match score.
type SlackSearchMatch struct {
	SlackMessage
	Score float64 `json:"score"`
}

// SlackSearchOutput is the slack_search result.
type SlackSearchOutput struct {
	Query      string             `json:"query"`
	Matches    []SlackSearchMatch `json:"matches"`
	TotalFound int                `json:"total_found"`
}

// NewSlackSearch creates the tool over the dataset's message history.
func NewSlackSearch(ds *Dataset, sim *Simulation) *SlackSearch {
	return &SlackSearch{messages: ds.SlackMessages, sim: sim}
}

func (s *SlackSearch) Name() string { return NameSlackSearch }

func (s *SlackSearch) Description() string {
	return `Search internal Slack channels for recent discussion about a customer, incident or product area.
Optionally restrict to one channel (e.g. "#incidents"). Results are ordered by match score.`
}

func (s *SlackSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "query": {"type": "string"},
            "channel": {"type": "string", "description": "Channel name including the leading #."},
            "limit": {"type": "integer", "minimum": 1, "maximum": 50}
        },
        "required": ["query"]
    }`)
}

func (s *SlackSearch) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in SlackSearchInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if err := s.sim.call(ctx, s.Name()); err != nil {
		return nil, err
	}
	if in.Limit == 0 {
		in.Limit = defaultSlackResults
	}

	terms := QueryTerms(in.Query)
	matches := []SlackSearchMatch{}
	for _, m := range s.messages {
		if in.Channel != "" && !strings.EqualFold(m.Channel, in.Channel) {
			continue
		}
		if score := scoreSlackMessage(m, terms); score > 0 {
			matches = append(matches, SlackSearchMatch{SlackMessage: m, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	total := len(matches)
	if len(matches) > in.Limit {
		matches = matches[:in.Limit]
	}
	return encodeOutput(s.Name(), SlackSearchOutput{Query: in.Query, Matches: matches, TotalFound: total})
}

func scoreSlackMessage(m SlackMessage, terms []string) float64 {
	text := strings.ToLower(m.Text)
	channel := strings.ToLower(m.Channel)
	user := strings.ToLower(m.User)

	var score float64
	for _, term := range terms {
		if strings.Contains(text, term) {
			score += 0.3
		}
		if strings.Contains(channel, term) {
			score += 0.1
		}
		if strings.Contains(user, term) {
			score += 0.1
		}
	}
	if score == 0 {
		return 0
	}
	// busy threads are more likely to hold the answer
	if m.ReplyCount > 5 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return float64(int(score*100+0.5)) / 100
}

// SlackPost simulates posting a Block Kit message to a channel.
// Accepted messages are recorded in the Outbox instead of being sent.
type SlackPost struct {
	sim    *Simulation
	outbox *Outbox
	now    func() time.Time
}

// SlackPostInput is the slack_post payload.
type SlackPostInput struct {
	Channel  string `json:"channel" validate:"required,startswith=#,max=80"`
	Title    string `json:"title,omitempty" validate:"max=150"`
	Message  string `json:"message" validate:"required,max=4000"`
	Severity string `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	TicketID string `json:"ticket_id,omitempty" validate:"max=128"`
	ThreadTS string `json:"thread_ts,omitempty" validate:"max=32"`
}

// SlackPostOutput is the slack_post result.
type SlackPostOutput struct {
	OK        bool      `json:"ok"`
	Channel   string    `json:"channel"`
	MessageID string    `json:"message_id"`
	TS        string    `json:"ts"`
	PostedAt  time.Time `json:"posted_at"`
}

// NewSlackPost creates the tool recording into outbox.
func NewSlackPost(sim *Simulation, outbox *Outbox, now func() time.Time) *SlackPost {
	if now == nil {
		now = time.Now
	}
	return &SlackPost{sim: sim, outbox: outbox, now: now}
}

func (s *SlackPost) Name() string { return NameSlackPost }

func (s *SlackPost) Description() string {
	return `Post a notification to a Slack channel, e.g. "#support-escalations". Use for escalations
that need a human to pick them up quickly.`
}

func (s *SlackPost) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "channel": {"type": "string", "description": "Channel name including the leading #."},
            "title": {"type": "string"},
            "message": {"type": "string", "maxLength": 4000},
            "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
            "ticket_id": {"type": "string"},
            "thread_ts": {"type": "string"}
        },
        "required": ["channel", "message"]
    }`)
}

func (s *SlackPost) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in SlackPostInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if err := s.sim.call(ctx, s.Name()); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	posted := s.outbox.addMessage(PostedMessage{
		Channel:  in.Channel,
		Text:     in.Message,
		ThreadTS: in.ThreadTS,
		Payload:  buildMessage(in, at),
		PostedAt: at,
	})

	return encodeOutput(s.Name(), SlackPostOutput{
		OK:        true,
		Channel:   posted.Channel,
		MessageID: posted.MessageID,
		TS:        fmt.Sprintf("%d.%06d", at.Unix(), at.Nanosecond()/1000),
		PostedAt:  at,
	})
}

func buildMessage(in SlackPostInput, at time.Time) map[string]any {
	return map[string]any{
		"channel": in.Channel,
		"text":    truncate(in.Message, maxSlackTextLen),
		"blocks": []map[string]any{
			headerBlock(in),
			{"type": "divider"},
			bodyBlock(in),
			{"type": "divider"},
			contextBlock(in, at),
		},
	}
}

func headerBlock(in SlackPostInput) map[string]any {
	title := in.Title
	if title == "" {
		title = "Support notification"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", severityEmoji(in.Severity), title),
		},
	}
}

func bodyBlock(in SlackPostInput) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": truncate(in.Message, maxSlackTextLen),
		},
	}
}

func contextBlock(in SlackPostInput, at time.Time) map[string]any {
	text := "docket • " + at.Format("2006-01-02 15:04 UTC")
	if in.TicketID != "" {
		text = fmt.Sprintf("docket • ticket %s • %s", in.TicketID, at.Format("2006-01-02 15:04 UTC"))
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "\U0001f534" // red circle
	case "high":
		return "\U0001f7e0" // orange circle
	case "medium":
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
