package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage engine.
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriageDuration    *prometheus.HistogramVec
	TriageLLMTime     prometheus.Histogram
	TriageToolTime    prometheus.Histogram
	TriageToolCalls   prometheus.Histogram
	TriageAttempts    prometheus.Histogram
	DegradedTotal     prometheus.Counter
	OverridesTotal    *prometheus.CounterVec
	LLMCallsTotal     prometheus.Counter
	LLMTokensIn       prometheus.Counter
	LLMTokensOut      prometheus.Counter
	LLMDuration       prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	ToolInputBytes    *prometheus.HistogramVec
	ToolOutputBytes   *prometheus.HistogramVec
	FailedToolsPerRun prometheus.Histogram
	VerdictsByUrgency *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_triages_total",
			Help: "Total triage runs by classification mode and recommended action.",
		}, []string{"mode", "action"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"mode"}),
		TriageLLMTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_triage_llm_time_seconds",
			Help:    "Total model time per triage run in seconds, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}),
		TriageToolTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_triage_tool_time_seconds",
			Help:    "Total tool execution time per triage run in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
		TriageToolCalls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_triage_tool_calls",
			Help:    "Tool calls per triage run.",
			Buckets: prometheus.LinearBuckets(0, 1, 8), // 0 .. 7
		}),
		TriageAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_triage_model_attempts",
			Help:    "Model classification attempts per triage run.",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 .. 5
		}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docket_triage_degraded_total",
			Help: "Triage runs that fell back to keyword rules after model failure.",
		}),
		OverridesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_routing_overrides_total",
			Help: "Routing overrides applied by name.",
		}, []string{"override"}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docket_llm_calls_total",
			Help: "Total successful model provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docket_llm_tokens_input_total",
			Help: "Total model input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docket_llm_tokens_output_total",
			Help: "Total model output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_llm_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_tool_calls_total",
			Help: "Total tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_tool_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"tool"}),
		ToolInputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_tool_input_bytes",
			Help:    "Size of tool input in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B .. ~1MB
		}, []string{"tool"}),
		ToolOutputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_tool_output_bytes",
			Help:    "Size of tool output in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B .. ~1MB
		}, []string{"tool"}),
		FailedToolsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docket_triage_failed_tool_calls",
			Help:    "Failed tool calls per triage run.",
			Buckets: prometheus.LinearBuckets(0, 1, 8), // 0 .. 7
		}),
		VerdictsByUrgency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_verdicts_total",
			Help: "Verdicts by final urgency.",
		}, []string{"urgency"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.TriageLLMTime,
		m.TriageToolTime,
		m.TriageToolCalls,
		m.TriageAttempts,
		m.DegradedTotal,
		m.OverridesTotal,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
		m.ToolInputBytes,
		m.ToolOutputBytes,
		m.FailedToolsPerRun,
		m.VerdictsByUrgency,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnToolCall: func(name string, duration float64, inputBytes, outputBytes int, isError bool) {
			status := "success"
			if isError {
				status = "error"
			}
			m.ToolCallsTotal.WithLabelValues(name, status).Inc()
			m.ToolDuration.WithLabelValues(name).Observe(duration)
			m.ToolInputBytes.WithLabelValues(name).Observe(float64(inputBytes))
			m.ToolOutputBytes.WithLabelValues(name).Observe(float64(outputBytes))
		},
		OnComplete: func(e *CompleteEvent) {
			m.TriagesTotal.WithLabelValues(string(e.Mode), string(e.Action)).Inc()
			m.TriageDuration.WithLabelValues(string(e.Mode)).Observe(e.Duration)
			m.TriageLLMTime.Observe(e.LLMTime)
			m.TriageToolTime.Observe(e.ToolTime)
			m.TriageToolCalls.Observe(float64(e.ToolCalls))
			m.TriageAttempts.Observe(float64(e.Attempts))
			m.FailedToolsPerRun.Observe(float64(e.FailedToolCalls))
			m.VerdictsByUrgency.WithLabelValues(string(e.Urgency)).Inc()
			if e.Degraded {
				m.DegradedTotal.Inc()
			}
			for _, o := range e.Overrides {
				m.OverridesTotal.WithLabelValues(o).Inc()
			}
		},
	}
}
