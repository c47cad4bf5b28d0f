package modelexec

import "context"

// ClientRequest is what a ModelClient's Complete receives: a flattened
// prompt plus the running block history for tool-use interleaving.
type ClientRequest struct {
	Model   string
	Prompt  string
	History []Block
}

// ClientResponse is one model turn. Blocks may include "tool_use" entries
// the executor must resolve via the ToolDispatcher before calling Complete
// again; Stopped is true once the model has no further tool calls to make.
type ClientResponse struct {
	Blocks       []Block
	Stopped      bool
	InputTokens  int64
	OutputTokens int64
}

// ModelClient is a thin per-provider binding. Implementations must not
// retry internally; the executor's provider-priority fallback is the only
// retry path.
type ModelClient interface {
	Provider() string
	ModelForTier(tier string) (string, bool)
	Complete(ctx context.Context, req ClientRequest) (ClientResponse, error)
}

// ToolDispatcher resolves a single tool_use block. Implemented by the Tool
// Dispatch & Connection Layer (§4.7); the executor never talks to a
// provider connection directly.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, organizationID, toolName string, input map[string]interface{}) (result string, err error)
}
