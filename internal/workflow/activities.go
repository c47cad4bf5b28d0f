package workflow

import (
	"context"
	"fmt"

	"github.com/agentforge/orchestrator-core/internal/agents"
	"github.com/agentforge/orchestrator-core/internal/constants"
	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/policy"
)

// Activity name constants, registered with the Temporal worker under the
// module-wide names in internal/constants so no other package can collide
// with them by registering a different activity under the same string.
const (
	ExecuteAgentActivityName          = constants.ExecuteAgentActivity
	ExecuteParallelActivityName       = constants.ExecuteParallelActivity
	RequestApprovalActivityName       = constants.RequestApprovalActivity
	GetWorkflowDefinitionActivityName = constants.GetWorkflowDefinitionActivity
)

// ApprovalRequester is the external Approval service collaborator (§4.6,
// out of scope per spec §1 "external collaborators referenced in §6").
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, approverID, reason string, variables map[string]interface{}) (approvalID string, err error)
}

// Activities bundles the engine's Temporal activity methods together with
// the collaborators they delegate to.
type Activities struct {
	Coordinator *coordinator.Coordinator
	Approvals   ApprovalRequester
	Policy      policy.Engine // optional; nil disables approval pre-screening
	Definitions *Definitions
}

// GetWorkflowDefinition fetches a named WorkflowDefinition as a Temporal
// activity, mirroring the teacher's GetWorkflowConfig activity: the
// workflow function stays pure and never reaches into process-local state
// directly.
func (a *Activities) GetWorkflowDefinition(ctx context.Context, name string) (WorkflowDefinition, error) {
	def, ok := a.Definitions.Lookup(name)
	if !ok {
		return WorkflowDefinition{}, fmt.Errorf("workflow: unknown definition %q", name)
	}
	return def, nil
}

// AgentActivityInput/Output bind WorkflowNode{Kind: agent} to
// coordinator.ExecuteWithAgent.
type AgentActivityInput struct {
	AgentID        string
	Prompt         string
	Depth          int
	MaxDepth       int
	RootExecutionID string
	SessionID      string
	OrganizationID string
	UserID         string
}

type AgentActivityOutput struct {
	Success bool
	Output  string
	Error   string
}

// ExecuteAgent runs a single agent node as a Temporal activity.
func (a *Activities) ExecuteAgent(ctx context.Context, in AgentActivityInput) (AgentActivityOutput, error) {
	ectx := coordinator.ExecutionContext{Depth: in.Depth, MaxDepth: in.MaxDepth, RootExecutionID: in.RootExecutionID}
	res := a.Coordinator.ExecuteWithAgent(ctx, agents.ID(in.AgentID), in.Prompt, ectx, in.SessionID, in.OrganizationID, in.UserID)
	return AgentActivityOutput{Success: res.Success, Output: res.Output, Error: res.Error}, nil
}

// ParallelActivityInput/Output bind WorkflowNode{Kind: parallel} to
// coordinator.CoordinateParallel.
type ParallelActivityInput struct {
	AgentIDs        []string
	Prompt          string
	Depth           int
	MaxDepth        int
	RootExecutionID string
	SessionID       string
	OrganizationID  string
	UserID          string
}

type ParallelActivityOutput struct {
	AllSucceeded bool
	Results      map[string]AgentActivityOutput
}

// ExecuteParallel runs a parallel fan-out node as a Temporal activity.
func (a *Activities) ExecuteParallel(ctx context.Context, in ParallelActivityInput) (ParallelActivityOutput, error) {
	tasks := make([]decomposer.SubTask, 0, len(in.AgentIDs))
	for i, id := range in.AgentIDs {
		tasks = append(tasks, decomposer.SubTask{ID: fmt.Sprintf("parallel-%d", i), AgentID: agents.ID(id), Description: in.Prompt})
	}
	ectx := coordinator.ExecutionContext{Depth: in.Depth, MaxDepth: in.MaxDepth, RootExecutionID: in.RootExecutionID}
	raw := a.Coordinator.CoordinateParallel(ctx, tasks, ectx, in.SessionID, in.OrganizationID, in.UserID)

	out := ParallelActivityOutput{AllSucceeded: true, Results: make(map[string]AgentActivityOutput, len(raw))}
	for _, t := range tasks {
		res := raw[t.ID]
		out.Results[string(t.AgentID)] = AgentActivityOutput{Success: res.Success, Output: res.Output, Error: res.Error}
		if !res.Success {
			out.AllSucceeded = false
		}
	}
	return out, nil
}

// ApprovalActivityInput/Output bind WorkflowNode{Kind: human_approval} to
// the external Approval service.
type ApprovalActivityInput struct {
	ApproverID string
	Reason     string
	Variables  map[string]interface{}
}

type ApprovalActivityOutput struct {
	ApprovalID      string
	AutoApproved    bool
	PolicyReason    string
}

// RequestApproval creates the approval request. When a policy engine is
// configured it is consulted first (§4.6/§7 "approval-gate policy"): a
// policy decision of Allow=true with RequireApproval=false short-circuits
// the human wait entirely.
func (a *Activities) RequestApproval(ctx context.Context, in ApprovalActivityInput) (ApprovalActivityOutput, error) {
	if a.Policy != nil && a.Policy.IsEnabled() {
		decision, err := a.Policy.Evaluate(ctx, &policy.PolicyInput{
			AgentID: in.ApproverID,
			Context: in.Variables,
		})
		if err == nil && decision.Allow && !decision.RequireApproval {
			return ApprovalActivityOutput{AutoApproved: true, PolicyReason: decision.Reason}, nil
		}
	}

	id, err := a.Approvals.RequestApproval(ctx, in.ApproverID, in.Reason, in.Variables)
	if err != nil {
		return ApprovalActivityOutput{}, fmt.Errorf("workflow: request approval: %w", err)
	}
	return ApprovalActivityOutput{ApprovalID: id}, nil
}

// ApprovalDecision is delivered by the external signal the workflow waits
// on after a human_approval node returns waiting_approval.
type ApprovalDecision struct {
	Approved bool
	Feedback string
}

// SignalName is the per-approval Temporal signal channel name, mirroring
// the teacher's "human-approval-<id>" convention.
func SignalName(approvalID string) string {
	return "human-approval-" + approvalID
}
