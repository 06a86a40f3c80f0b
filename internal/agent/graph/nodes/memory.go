package nodes

import (
	"context"

	"github.com/ranops-core/server/internal/agent/conversations"
	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/model"
)

// MemoryDeps wires the memory node to the manager and the prompt inputs it
// needs for token estimation.
type MemoryDeps struct {
	Memory       *conversations.Manager
	Registry     *model.Registry
	SystemPrompt string
}

// NewMemoryNode builds the terminal memory node: measure token pressure and
// either pass state through unchanged or fold older history into the
// summary, emitting tombstones for the evicted messages.
func NewMemoryNode(deps MemoryDeps) engine.Handler {
	return func(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
		return deps.Memory.Compact(ctx, state, deps.SystemPrompt, deps.Registry.Describe()), nil
	}
}
