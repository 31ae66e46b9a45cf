// Package metrics defines the Prometheus collectors for the PRIME
// orchestrator. Import for side effects; collectors register themselves
// via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research pipeline metrics
	ResearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_research_requests_total",
			Help: "Total research pipeline runs",
		},
		[]string{"mode", "depth", "status"}, // mode: sync|task
	)

	ResearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prime_research_duration_seconds",
			Help:    "End-to-end research pipeline duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode", "depth"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prime_research_stage_duration_seconds",
			Help:    "Per-stage research pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // planning|conducting|synthesizing
	)

	PlannerFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_planner_fallbacks_total",
			Help: "Planner parse fallbacks by tier",
		},
		[]string{"tier"}, // regex|single_question
	)

	ConductorDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prime_conductor_degraded_total",
			Help: "Conductor runs that returned an error-marker finding",
		},
	)

	// LLM client metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_llm_calls_total",
			Help: "Outbound LLM chat completions",
		},
		[]string{"kind", "status"}, // kind: chat|chat_with_tools
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_llm_tokens_total",
			Help: "Tokens consumed by outbound LLM calls",
		},
		[]string{"direction"}, // prompt|completion
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_tool_invocations_total",
			Help: "Tool invocations made inside tool-enabled chat",
		},
		[]string{"tool"},
	)

	// Task queue metrics
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prime_research_tasks_submitted_total",
			Help: "Background research tasks submitted",
		},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_research_tasks_completed_total",
			Help: "Background research tasks finished",
		},
		[]string{"status"}, // success|failure|cancelled
	)
)
