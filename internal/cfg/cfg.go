package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/docket/internal/tools"
	"github.com/linnemanlabs/docket/internal/triage"
)

// Config holds the application settings shared by the server and the CLI.
// Engine fields resolve into triage.Settings and tools.Config; the core never
// reads flags or the environment itself.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	SlackWebhookURL       string
	RecentVerdicts        int

	ClaudeAPIKey     string
	ClaudeModel      string
	ModelEnabled     bool
	ModelMaxAttempts int
	ModelTimeout     time.Duration
	ModelBackoff     time.Duration
	ModelBackoffMax  time.Duration
	ModelRateLimit   float64

	EnabledTools     string
	UnavailableTools string
	SimulatedLatency time.Duration
	OutboxLimit      int
	MockDataPath     string

	AutoRespondThreshold float64
	HighValueLTV         float64
	ChurnTicketThreshold int
}

// RegisterFlags binds every Config field to fs with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 routes (empty = no auth)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalation notifications")
	fs.IntVar(&c.RecentVerdicts, "recent-verdicts", 1000, "recent verdicts kept in memory for lookup (0 = lookup disabled, max 100000)")
	c.RegisterEngineFlags(fs)
}

// RegisterEngineFlags binds only the fields the triage engine consumes, for
// front ends that do not serve HTTP.
func (c *Config) RegisterEngineFlags(fs *flag.FlagSet) {
	d := triage.DefaultSettings()

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude model provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model used for classification")
	fs.BoolVar(&c.ModelEnabled, "model-enabled", d.ModelEnabled, "classify with the model (false = keyword rules only)")
	fs.IntVar(&c.ModelMaxAttempts, "model-max-attempts", d.MaxAttempts, "model attempts before falling back to rules (1..10)")
	fs.DurationVar(&c.ModelTimeout, "model-timeout", d.Timeout, "timeout for a single model call")
	fs.DurationVar(&c.ModelBackoff, "model-backoff", d.Backoff, "initial backoff between model attempts")
	fs.DurationVar(&c.ModelBackoffMax, "model-backoff-max", d.BackoffMax, "maximum backoff between model attempts")
	fs.Float64Var(&c.ModelRateLimit, "model-rate-limit", 0, "model requests per second (0 = unlimited)")

	fs.StringVar(&c.EnabledTools, "tools", strings.Join(tools.AllTools(), ","), "comma-separated list of enabled tools")
	fs.StringVar(&c.UnavailableTools, "unavailable-tools", "", "comma-separated integrations that simulate an outage")
	fs.DurationVar(&c.SimulatedLatency, "simulated-latency", 0, "latency added to every simulated integration call")
	fs.IntVar(&c.OutboxLimit, "outbox-limit", tools.DefaultOutboxLimit, "simulated messages, issues and incidents of each kind kept in memory (0 = counts only, max 100000)")
	fs.StringVar(&c.MockDataPath, "mock-data", "", "YAML mock dataset (empty = embedded dataset)")

	fs.Float64Var(&c.AutoRespondThreshold, "auto-respond-threshold", d.AutoRespondThreshold, "minimum knowledge-base relevance for auto_respond (0..1)")
	fs.Float64Var(&c.HighValueLTV, "high-value-ltv", d.HighValueLifetimeValue, "lifetime value at which an account counts as high value")
	fs.IntVar(&c.ChurnTicketThreshold, "churn-ticket-threshold", d.ChurnTicketThreshold, "past tickets above which negative sentiment signals churn")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.SlackWebhookURL != "" && !strings.HasPrefix(c.SlackWebhookURL, "https://") && !strings.HasPrefix(c.SlackWebhookURL, "http://") {
		errs = append(errs, fmt.Errorf("invalid SLACK_WEBHOOK_URL %q (must be an http(s) URL)", c.SlackWebhookURL))
	}
	if c.RecentVerdicts < 0 || c.RecentVerdicts > 100000 {
		errs = append(errs, fmt.Errorf("invalid RECENT_VERDICTS %d (must be 0..100000)", c.RecentVerdicts))
	}

	errs = append(errs, c.ValidateEngine())
	return errors.Join(errs...)
}

// ValidateEngine checks only the engine fields.
func (c *Config) ValidateEngine() error {
	var errs []error

	if c.ModelEnabled {
		// a missing key is not fatal when the model is off
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when MODEL_ENABLED is true"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required when MODEL_ENABLED is true"))
		}
	}
	if c.ModelMaxAttempts < 1 || c.ModelMaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid MODEL_MAX_ATTEMPTS %d (must be 1..10)", c.ModelMaxAttempts))
	}
	if c.ModelTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid MODEL_TIMEOUT %s (must be positive)", c.ModelTimeout))
	}
	if c.ModelBackoff < 0 || c.ModelBackoffMax < c.ModelBackoff {
		errs = append(errs, fmt.Errorf("invalid MODEL_BACKOFF %s / MODEL_BACKOFF_MAX %s (need 0 <= backoff <= max)", c.ModelBackoff, c.ModelBackoffMax))
	}
	if !(c.ModelRateLimit >= 0) {
		errs = append(errs, fmt.Errorf("invalid MODEL_RATE_LIMIT %g (must be >= 0)", c.ModelRateLimit))
	}
	if c.SimulatedLatency < 0 {
		errs = append(errs, fmt.Errorf("invalid SIMULATED_LATENCY %s (must be >= 0)", c.SimulatedLatency))
	}
	if c.OutboxLimit < 0 || c.OutboxLimit > 100000 {
		errs = append(errs, fmt.Errorf("invalid OUTBOX_LIMIT %d (must be 0..100000)", c.OutboxLimit))
	}
	for _, name := range splitList(c.EnabledTools) {
		if !tools.Known(name) {
			errs = append(errs, fmt.Errorf("TOOLS: unknown tool %q", name))
		}
	}
	for _, name := range splitList(c.UnavailableTools) {
		if !tools.Known(name) {
			errs = append(errs, fmt.Errorf("UNAVAILABLE_TOOLS: unknown tool %q", name))
		}
	}
	if !(c.AutoRespondThreshold >= 0 && c.AutoRespondThreshold <= 1) {
		errs = append(errs, fmt.Errorf("invalid AUTO_RESPOND_THRESHOLD %g (must be 0..1)", c.AutoRespondThreshold))
	}
	if !(c.HighValueLTV >= 0) {
		errs = append(errs, fmt.Errorf("invalid HIGH_VALUE_LTV %g (must be >= 0)", c.HighValueLTV))
	}
	if c.ChurnTicketThreshold < 0 {
		errs = append(errs, fmt.Errorf("invalid CHURN_TICKET_THRESHOLD %d (must be >= 0)", c.ChurnTicketThreshold))
	}

	return errors.Join(errs...)
}

// Settings resolves the engine settings. Keyword sets are not configurable
// from flags and keep their defaults.
func (c *Config) Settings() triage.Settings {
	s := triage.DefaultSettings()
	s.ModelEnabled = c.ModelEnabled
	s.MaxAttempts = c.ModelMaxAttempts
	s.Timeout = c.ModelTimeout
	s.Backoff = c.ModelBackoff
	s.BackoffMax = c.ModelBackoffMax
	s.AutoRespondThreshold = c.AutoRespondThreshold
	s.HighValueLifetimeValue = c.HighValueLTV
	s.ChurnTicketThreshold = c.ChurnTicketThreshold
	return s
}

// ToolConfig resolves the tool registry settings.
func (c *Config) ToolConfig() tools.Config {
	limit := c.OutboxLimit
	if limit == 0 {
		limit = -1 // counts only
	}
	return tools.Config{
		Enabled:     splitList(c.EnabledTools),
		Latency:     c.SimulatedLatency,
		Unavailable: splitList(c.UnavailableTools),
		OutboxLimit: limit,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
