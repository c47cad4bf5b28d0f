package constants

// Activity names used for Temporal workflow registration and execution.
// Using constants eliminates magic strings and ensures the name a worker
// registers an activity under matches the name workflow code calls it by.
const (
	// Workflow Engine node activities (§4.6) — internal/workflow wraps
	// coordinator.ExecuteWithAgent / CoordinateParallel as Temporal
	// activities under these names.
	ExecuteAgentActivity          = "WorkflowExecuteAgent"
	ExecuteParallelActivity       = "WorkflowExecuteParallel"
	GetWorkflowDefinitionActivity = "WorkflowGetDefinition"

	// Human Intervention Activities
	RequestApprovalActivity = "RequestApproval"
)
