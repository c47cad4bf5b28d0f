// Package metrics exposes the Prometheus vectors the core updates as it
// routes, decomposes, coordinates, and dispatches tool calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Router metrics
	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_route_requests_total",
			Help: "Total number of requests routed, by resulting category and method",
		},
		[]string{"category", "method"},
	)

	RouteConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "core_route_confidence",
			Help:    "Confidence of the routing decision",
			Buckets: []float64{0.1, 0.3, 0.5, 0.65, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"method"},
	)

	RouteCacheHits   = promauto.NewCounter(prometheus.CounterOpts{Name: "core_route_cache_hits_total", Help: "Total route cache hits"})
	RouteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "core_route_cache_misses_total", Help: "Total route cache misses"})
	RouteDowngrades  = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_route_downgrades_total", Help: "Total number of budget-aware category downgrades"},
		[]string{"from", "to"},
	)
	RouteLLMFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "core_route_llm_fallback_total", Help: "Total number of LLM classifier fallback invocations"})

	// Decomposition metrics
	DecompositionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "core_decomposition_latency_seconds", Help: "Task decomposition latency", Buckets: prometheus.DefBuckets,
	})
	DecompositionSubtasks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "core_decomposition_subtasks", Help: "Number of subtasks produced per decomposition",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	// Orchestrator / coordinator metrics
	OrchestrationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_orchestrations_started_total", Help: "Total orchestrations started, by execution mode"},
		[]string{"mode"},
	)
	OrchestrationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_orchestrations_completed_total", Help: "Total orchestrations completed, by mode and status"},
		[]string{"mode", "status"},
	)
	OrchestrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "core_orchestration_duration_seconds", Help: "Orchestration wall-clock duration", Buckets: prometheus.DefBuckets},
		[]string{"mode"},
	)
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_agent_executions_total", Help: "Total agent executions, by agent and status"},
		[]string{"agent", "status"},
	)
	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "core_agent_execution_duration_ms", Help: "Agent execution duration in milliseconds", Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000}},
		[]string{"agent"},
	)
	LoopDetectorTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_loop_detector_trips_total", Help: "Total loop-detector terminations, by reason"},
		[]string{"reason"},
	)

	// Spawner metrics
	SpawnsAttempted = promauto.NewCounter(prometheus.CounterOpts{Name: "core_spawns_attempted_total", Help: "Total sub-agent spawn attempts"})
	SpawnsRejected  = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_spawns_rejected_total", Help: "Total sub-agent spawns rejected, by reason"},
		[]string{"reason"},
	)
	SpawnDepth = promauto.NewHistogram(prometheus.HistogramOpts{Name: "core_spawn_depth", Help: "Depth of spawned sub-agents", Buckets: []float64{0, 1, 2, 3, 4, 5}})

	// Workflow engine metrics
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_workflow_runs_total", Help: "Total workflow executions, by name and status"},
		[]string{"workflow", "status"},
	)
	WorkflowNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "core_workflow_node_duration_seconds", Help: "Workflow node execution duration", Buckets: prometheus.DefBuckets},
		[]string{"workflow", "node", "kind"},
	)
	WorkflowApprovalsPending = promauto.NewGauge(prometheus.GaugeOpts{Name: "core_workflow_approvals_pending", Help: "Workflows currently parked at a human-approval gate"})

	// Tool dispatch metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_tool_invocations_total", Help: "Total tool invocations, by provider, tool and outcome"},
		[]string{"provider", "tool", "success"},
	)
	ToolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "core_tool_invocation_duration_ms", Help: "Tool invocation duration in milliseconds", Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 30000}},
		[]string{"provider", "tool"},
	)
	ToolCacheHits   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "core_tool_cache_hits_total", Help: "Total tool result cache hits"}, []string{"provider", "tool"})
	ToolCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{Name: "core_tool_cache_misses_total", Help: "Total tool result cache misses"}, []string{"provider", "tool"})

	// Budget metrics
	BudgetReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_budget_reserved_cents_total", Help: "Total cents reserved against organization budgets"},
		[]string{"organization_id"},
	)
	BudgetRefunded = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_budget_refunded_cents_total", Help: "Total cents refunded to organization budgets"},
		[]string{"organization_id"},
	)
	BudgetExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "core_budget_exhausted_total", Help: "Total requests rejected for budget exhaustion"},
		[]string{"organization_id"},
	)

	// Session cache metrics
	SessionsCreated       = promauto.NewCounter(prometheus.CounterOpts{Name: "core_sessions_created_total", Help: "Total sessions created"})
	SessionCacheSize      = promauto.NewGauge(prometheus.GaugeOpts{Name: "core_session_cache_size", Help: "Sessions currently held in the local cache"})
	SessionCacheHits      = promauto.NewCounter(prometheus.CounterOpts{Name: "core_session_cache_hits_total", Help: "Total session cache hits"})
	SessionCacheMisses    = promauto.NewCounter(prometheus.CounterOpts{Name: "core_session_cache_misses_total", Help: "Total session cache misses"})
	SessionCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{Name: "core_session_cache_evictions_total", Help: "Total sessions evicted from the local cache"})
)

// RecordOrchestration records metrics for a completed top-level orchestration.
func RecordOrchestration(mode, status string, durationSeconds float64) {
	OrchestrationsCompleted.WithLabelValues(mode, status).Inc()
	OrchestrationDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordAgentExecution records metrics for a single agent execution.
func RecordAgentExecution(agent, status string, durationMs float64) {
	AgentExecutions.WithLabelValues(agent, status).Inc()
	AgentExecutionDuration.WithLabelValues(agent).Observe(durationMs)
}

// RecordToolInvocation records metrics for a single tool dispatch call.
func RecordToolInvocation(provider, tool string, success bool, durationMs float64) {
	ToolInvocations.WithLabelValues(provider, tool, boolLabel(success)).Inc()
	ToolInvocationDuration.WithLabelValues(provider, tool).Observe(durationMs)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
