package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/agentforge/orchestrator-core/internal/util"
)

const (
	defaultNodeTimeout     = 120 * time.Second
	defaultApprovalTimeout = 30 * time.Minute
)

// StatusQuery is exposed via the "workflowStatus" Temporal query so an
// external caller can observe a long-running execution (including while
// it is blocked at a human_approval node) without waiting on the run.
type StatusQuery struct {
	Status      Status
	CurrentNode string
	ApprovalID  string
}

// Execute is the Temporal workflow function implementing the DAG executor
// (§4.6). It must be registered with the worker alongside Activities'
// methods under ExecuteAgentActivityName / ExecuteParallelActivityName /
// RequestApprovalActivityName / GetWorkflowDefinitionActivityName.
func Execute(ctx workflow.Context, input ExecuteInput) (ExecuteResult, error) {
	logger := workflow.GetLogger(ctx)
	start := workflow.Now(ctx)

	lookupCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var def WorkflowDefinition
	if err := workflow.ExecuteActivity(lookupCtx, GetWorkflowDefinitionActivityName, input.WorkflowName).Get(lookupCtx, &def); err != nil {
		return ExecuteResult{}, err
	}

	wctx := WorkflowContext{
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		SessionID:      input.SessionID,
		Variables:      mergeVariables(input.Request, input.InitialVariables),
		NodeResults:    make(map[string]NodeResult),
		CurrentNode:    StartNode,
		Status:         StatusRunning,
		StartedAt:      start,
	}
	var lastApprovalID string

	_ = workflow.SetQueryHandler(ctx, "workflowStatus", func() (StatusQuery, error) {
		return StatusQuery{Status: wctx.Status, CurrentNode: wctx.CurrentNode, ApprovalID: lastApprovalID}, nil
	})

	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	frontier := []string{StartNode}
	for len(frontier) > 0 {
		next := nextFrontier(def, frontier, wctx)

		var pending []string
		for _, id := range next {
			if id == EndNode {
				continue
			}
			pending = append(pending, id)
		}
		frontier = pending
		if len(frontier) == 0 {
			break
		}

		for _, nodeID := range frontier {
			node, ok := def.nodeByID(nodeID)
			if !ok {
				continue
			}

			nodeStart := workflow.Now(ctx)
			status, output, errMsg, approvalID := runNode(ctx, def, node, &wctx, maxDepth)
			if approvalID != "" {
				lastApprovalID = approvalID
			}
			wctx.NodeResults[nodeID] = NodeResult{
				Status:      status,
				Output:      output,
				Error:       errMsg,
				StartedAt:   nodeStart,
				CompletedAt: workflow.Now(ctx),
			}
			wctx.CurrentNode = nodeID

			if status == "failed" {
				logger.Warn("workflow node failed", "node", nodeID, "error", errMsg)
				wctx.Status = StatusFailed
				wctx.CompletedAt = workflow.Now(ctx)
				return ExecuteResult{
					Status:       StatusFailed,
					WorkflowName: def.Name,
					ApprovalID:   lastApprovalID,
					Context:      wctx,
					DurationMs:   workflow.Now(ctx).Sub(start).Milliseconds(),
				}, nil
			}
		}
	}

	wctx.Status = StatusCompleted
	wctx.CompletedAt = workflow.Now(ctx)
	return ExecuteResult{
		Status:       StatusCompleted,
		WorkflowName: def.Name,
		ApprovalID:   lastApprovalID,
		Context:      wctx,
		DurationMs:   workflow.Now(ctx).Sub(start).Milliseconds(),
	}, nil
}

func mergeVariables(request string, initial map[string]interface{}) map[string]interface{} {
	vars := make(map[string]interface{}, len(initial)+1)
	vars["request"] = request
	for k, v := range initial {
		vars[k] = v
	}
	return vars
}

// nextFrontier computes next_nodes: edges from any node in frontier whose
// condition (if present) evaluates truthy against wctx.Variables.
func nextFrontier(def WorkflowDefinition, frontier []string, wctx WorkflowContext) []string {
	seen := make(map[string]bool)
	var out []string
	for _, from := range frontier {
		for _, e := range def.Edges {
			if e.From != from {
				continue
			}
			if e.Condition != "" && !Eval(e.Condition, wctx.Variables) {
				continue
			}
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	return out
}

// runNode dispatches a single node by kind and returns
// (status, output, error, approvalID). status is always "completed" or
// "failed": a human_approval node resolves to one of those before
// returning, the wait happens inside runApprovalNode.
func runNode(ctx workflow.Context, def WorkflowDefinition, node WorkflowNode, wctx *WorkflowContext, maxDepth int) (string, string, string, string) {
	switch node.Kind {
	case NodeAgent:
		return runAgentNode(ctx, def, node, wctx, maxDepth)
	case NodeParallel:
		return runParallelNode(ctx, def, node, wctx, maxDepth)
	case NodeCondition:
		return runConditionNode(node, wctx)
	case NodeHumanApproval:
		return runApprovalNode(ctx, node, wctx)
	default:
		return "failed", "", fmt.Sprintf("unknown node kind %q", node.Kind), ""
	}
}

func nodeTimeout(node WorkflowNode, def WorkflowDefinition) time.Duration {
	if node.TimeoutMs > 0 {
		return time.Duration(node.TimeoutMs) * time.Millisecond
	}
	if def.DefaultTimeoutMs > 0 {
		return time.Duration(def.DefaultTimeoutMs) * time.Millisecond
	}
	return defaultNodeTimeout
}

func runAgentNode(ctx workflow.Context, def WorkflowDefinition, node WorkflowNode, wctx *WorkflowContext, maxDepth int) (string, string, string, string) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: nodeTimeout(node, def),
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var out AgentActivityOutput
	err := workflow.ExecuteActivity(actCtx, ExecuteAgentActivityName, AgentActivityInput{
		AgentID:         node.AgentID,
		Prompt:          describePrompt(wctx),
		MaxDepth:        maxDepth,
		RootExecutionID: workflow.GetInfo(ctx).WorkflowExecution.ID,
		SessionID:       wctx.SessionID,
		OrganizationID:  wctx.OrganizationID,
		UserID:          wctx.UserID,
	}).Get(actCtx, &out)

	if err != nil || !out.Success {
		errMsg := out.Error
		if err != nil {
			errMsg = err.Error()
		}
		return "failed", out.Output, errMsg, ""
	}
	wctx.Variables["agent:"+node.ID] = out.Output
	// An agent's free-text output may end in a numeric verdict ("...
	// confidence: 0.92"); surfacing it as a derived variable lets a
	// downstream condition node branch on magnitude (e.g.
	// "agent:classify:score > 0.7") without every agent needing a
	// structured output contract.
	if score, ok := util.ParseNumericValue(out.Output); ok {
		wctx.Variables["agent:"+node.ID+":score"] = score
	}
	return "completed", out.Output, "", ""
}

func runParallelNode(ctx workflow.Context, def WorkflowDefinition, node WorkflowNode, wctx *WorkflowContext, maxDepth int) (string, string, string, string) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: nodeTimeout(node, def),
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var out ParallelActivityOutput
	err := workflow.ExecuteActivity(actCtx, ExecuteParallelActivityName, ParallelActivityInput{
		AgentIDs:        node.Agents,
		Prompt:          describePrompt(wctx),
		MaxDepth:        maxDepth,
		RootExecutionID: workflow.GetInfo(ctx).WorkflowExecution.ID,
		SessionID:       wctx.SessionID,
		OrganizationID:  wctx.OrganizationID,
		UserID:          wctx.UserID,
	}).Get(actCtx, &out)

	if err != nil {
		return "failed", "", err.Error(), ""
	}
	if !out.AllSucceeded {
		return "failed", "", "one or more parallel agents failed", ""
	}
	var combined string
	for _, id := range node.Agents {
		combined += fmt.Sprintf("[%s]\n%s\n\n", id, out.Results[id].Output)
	}
	wctx.Variables["agent:"+node.ID] = combined
	return "completed", combined, "", ""
}

func runConditionNode(node WorkflowNode, wctx *WorkflowContext) (string, string, string, string) {
	result := Eval(node.Expr, wctx.Variables)
	wctx.Variables["condition:"+node.ID] = result
	return "completed", fmt.Sprintf("%t", result), "", ""
}

// runApprovalNode requests approval, then — unless a policy decision
// auto-approved it — sets wctx.Status=waiting_approval (observable via the
// "workflowStatus" query) and blocks on the per-approval signal channel
// until a decision arrives or the timeout elapses, mirroring the teacher's
// RequestAndWaitApproval. Temporal persists this wait durably, so the
// "external trigger resumes execution" behavior the non-Temporal source
// implements by hand falls out of the signal wait for free (see DESIGN.md).
func runApprovalNode(ctx workflow.Context, node WorkflowNode, wctx *WorkflowContext) (string, string, string, string) {
	approverID, _ := wctx.Variables["approverId"].(string)
	if approverID == "" {
		return "failed", "", "human_approval node requires variables.approverId", ""
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var reqOut ApprovalActivityOutput
	err := workflow.ExecuteActivity(actCtx, RequestApprovalActivityName, ApprovalActivityInput{
		ApproverID: approverID,
		Reason:     fmt.Sprintf("workflow node %q requires approval", node.ID),
		Variables:  wctx.Variables,
	}).Get(actCtx, &reqOut)
	if err != nil {
		return "failed", "", err.Error(), ""
	}
	if reqOut.AutoApproved {
		wctx.Variables["approval:"+node.ID] = true
		return "completed", "auto-approved: " + reqOut.PolicyReason, "", ""
	}

	prevStatus := wctx.Status
	wctx.Status = StatusWaitingApproval

	timeout := defaultApprovalTimeout
	if secs, ok := wctx.Variables["approvalTimeoutSeconds"]; ok {
		if f, ok := secs.(float64); ok && f > 0 {
			timeout = time.Duration(f) * time.Second
		}
	}

	ch := workflow.GetSignalChannel(ctx, SignalName(reqOut.ApprovalID))
	sel := workflow.NewSelector(ctx)
	timer := workflow.NewTimer(ctx, timeout)

	var decision ApprovalDecision
	var timedOut bool
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &decision)
	})
	sel.AddFuture(timer, func(workflow.Future) {
		timedOut = true
		decision = ApprovalDecision{Approved: false, Feedback: "approval timeout"}
	})
	sel.Select(ctx)

	wctx.Status = prevStatus
	wctx.Variables["approval:"+node.ID] = decision.Approved
	if timedOut || !decision.Approved {
		return "failed", "", fmt.Sprintf("approval denied: %s", decision.Feedback), reqOut.ApprovalID
	}
	return "completed", "approved", "", reqOut.ApprovalID
}

func describePrompt(wctx *WorkflowContext) string {
	if req, ok := wctx.Variables["request"].(string); ok {
		return req
	}
	return ""
}
