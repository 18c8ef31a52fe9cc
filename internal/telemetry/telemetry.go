// Package telemetry exposes the Prometheus instrumentation shared across the
// turn pipeline and the HTTP server.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts finished turns by terminal outcome
	// (answer, clarification, error).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hously",
		Name:      "turns_total",
		Help:      "Finished turns by terminal outcome.",
	}, []string{"outcome"})

	// TurnDuration observes wall time from submission to terminal event.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hously",
		Name:      "turn_duration_seconds",
		Help:      "Turn wall time from submission to terminal event.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// BranchesTotal counts agent branch completions by status.
	BranchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hously",
		Name:      "branches_total",
		Help:      "Agent branch completions by status.",
	}, []string{"status"})

	// ToolInvocations counts tool calls by tool name and result.
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hously",
		Name:      "tool_invocations_total",
		Help:      "Tool calls by tool and result.",
	}, []string{"tool", "result"})

	// RetrievalHits observes how many chunks cleared the similarity threshold
	// per retrieval.
	RetrievalHits = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hously",
		Name:      "retrieval_hits",
		Help:      "Chunks above the similarity threshold per retrieval.",
		Buckets:   prometheus.LinearBuckets(0, 1, 10),
	})

	// LLMCost accumulates estimated model spend in USD by pipeline phase.
	LLMCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hously",
		Name:      "llm_cost_usd_total",
		Help:      "Estimated model spend in USD by phase.",
	}, []string{"phase"})

	// CheckpointFailures counts snapshot writes that failed and terminated a
	// turn.
	CheckpointFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hously",
		Name:      "checkpoint_failures_total",
		Help:      "Snapshot writes that failed and terminated a turn.",
	})
)
