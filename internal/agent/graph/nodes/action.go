package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// ToolExecutionResult pairs one requested call with its outcome. Exactly
// one is produced per request, failures included; results correlate by
// ToolCallID, never by position.
type ToolExecutionResult struct {
	ToolCallID string
	Name       string
	Content    string
	OK         bool
}

// ActionDeps wires the action node to the tool registry.
type ActionDeps struct {
	Registry *model.Registry
}

// NewActionNode builds the tool-execution node. All calls requested by the
// latest AI message are dispatched concurrently; each invocation is
// isolated so one failure never aborts its siblings, and the node does not
// return until every call has resolved. A tool-call id already processed in
// this turn, or repeated within the same pass, is executed at most once.
func NewActionNode(deps ActionDeps) engine.Handler {
	return func(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
		idx := model.LastAI(state.Messages)
		if idx < 0 {
			return nil, nil
		}
		calls := DedupeCalls(state.Messages[idx].ToolCalls, state.ProcessedToolCallIDs)
		if len(calls) == 0 {
			return &model.StateDelta{RetryCount: model.Ptr(0), ClearValidation: true}, nil
		}

		results := ExecuteTools(ctx, deps.Registry, calls)

		delta := &model.StateDelta{
			RetryCount:      model.Ptr(0),
			ClearValidation: true,
		}
		for _, res := range results {
			delta.Messages = append(delta.Messages, model.ToolMessage(res.ToolCallID, res.Name, res.Content))
			delta.ProcessedToolCallIDs = append(delta.ProcessedToolCallIDs, res.ToolCallID)
		}
		logx.Debug().
			Str("thread_id", cfg.ThreadID).
			Int("tool_count", len(results)).
			Msg("tool execution pass complete")
		return delta, nil
	}
}

// ExecuteTools fans out one goroutine per call and joins them all: gather,
// don't race. A slow or failing call never cancels its siblings. Results
// come back in request order even though execution order is arbitrary.
func ExecuteTools(ctx context.Context, registry *model.Registry, calls []model.ToolCall) []ToolExecutionResult {
	results := make([]ToolExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			results[i] = invokeOne(ctx, registry, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func invokeOne(ctx context.Context, registry *model.Registry, call model.ToolCall) (res ToolExecutionResult) {
	res = ToolExecutionResult{ToolCallID: call.ID, Name: call.Name}
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("tool", call.Name).Msgf("tool panicked: %v", r)
			res.Content = fmt.Sprintf("Error: tool %q panicked: %v", call.Name, r)
			res.OK = false
		}
	}()

	tool, ok := registry.Get(call.Name)
	if !ok {
		res.Content = fmt.Sprintf("Error: tool %q is not registered", call.Name)
		return res
	}

	args := call.Args
	if args == nil {
		// Repair could not produce a mapping; the tool still gets the raw
		// string rather than the call being dropped.
		args = map[string]any{"raw_arguments": call.RawArgs}
	}

	out, err := tool.Invoke(ctx, args)
	if err != nil {
		logx.Warn().Err(err).Str("tool", call.Name).Msg("tool invocation failed")
		res.Content = "Error: " + err.Error()
		return res
	}
	res.Content = out
	res.OK = true
	return res
}

// DedupeCalls drops calls whose id already executed this turn or appears
// twice in the same pass.
func DedupeCalls(calls []model.ToolCall, processed map[string]bool) []model.ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]model.ToolCall, 0, len(calls))
	for _, call := range calls {
		if processed[call.ID] || seen[call.ID] {
			logx.Warn().Str("tool_call_id", call.ID).Msg("duplicate tool call suppressed")
			continue
		}
		seen[call.ID] = true
		out = append(out, call)
	}
	return out
}

// NewActionRouter always loops back so the model can react to tool results.
func NewActionRouter() engine.Router {
	return func(*model.ConversationState) string {
		return NodeLLM
	}
}
