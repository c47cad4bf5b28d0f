package modelexec

import (
	"errors"
	"fmt"

	"github.com/agentforge/orchestrator-core/internal/budget"
)

// errToolLoopExceeded is returned internally when a model keeps emitting
// tool_use blocks past maxToolTurns; surfaced to the caller as a failed
// Result, never as a returned Go error.
var errToolLoopExceeded = errors.New("modelexec: tool-use interleaving exceeded max turns")

func errNoProviderForTier(tier budget.Tier) error {
	return fmt.Errorf("modelexec: no configured provider serves tier %q", tier)
}
