package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/conversations"
	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/graph/parsers"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// LLMDeps wires the llm node to its collaborators.
type LLMDeps struct {
	Model        model.ChatModel
	Memory       *conversations.Manager
	Registry     *model.Registry
	SystemPrompt string
}

// NewLLMNode builds the llm node handler: assemble the model-facing context,
// invoke the model, repair and validate any structured tool calls in the
// reply. A provider failure never raises; it becomes an AI message carrying
// the error text, optionally reported through the event sink, and the turn
// proceeds as if the model had replied with that content.
func NewLLMNode(deps LLMDeps) engine.Handler {
	return func(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
		prompt := BuildModelContext(deps.SystemPrompt, state.Summary, deps.Memory.FilterContext(state.Messages))

		logx.Debug().Str("thread_id", cfg.ThreadID).Str("node", NodeLLM).Msg("AI thinking...")

		reply, err := deps.Model.Invoke(ctx, prompt)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", cfg.ThreadID).Msg("model invocation failed")
			if cfg.Events != nil {
				cfg.Events.OnCustomEvent("llm_error", map[string]any{
					"error":     err.Error(),
					"thread_id": cfg.ThreadID,
				}, cfg.RunID)
			}
			msg := model.AIMessage(fmt.Sprintf(
				"I was unable to reach the language model: %v. Please try again.", err), nil)
			return &model.StateDelta{Messages: []model.Message{msg}, ClearValidation: true}, nil
		}

		if reply.Role != model.RoleAI {
			reply.Role = model.RoleAI
		}
		if reply.ID == "" {
			reply.ID = model.NewID()
		}

		reply.ToolCalls = NormalizeToolCalls(reply.ToolCalls)
		errs := parsers.ValidateToolCalls(reply.ToolCalls, deps.Registry)

		delta := &model.StateDelta{Messages: []model.Message{reply}}
		if len(errs) > 0 {
			delta.ValidationErrors = errs
			logx.Warn().
				Str("thread_id", cfg.ThreadID).
				Strs("validation_errors", errs).
				Msg("model emitted invalid tool calls")
		} else {
			delta.ClearValidation = true
		}
		if len(reply.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(reply.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return delta, nil
	}
}

// BuildModelContext prepends the system message (static instructions plus
// running summary, when either is non-empty) to the filtered history.
func BuildModelContext(systemPrompt, summary string, history []model.Message) []model.Message {
	var out []model.Message
	sys := systemPrompt
	if summary != "" {
		if sys != "" {
			sys += "\n\n"
		}
		sys += summary
	}
	if strings.TrimSpace(sys) != "" {
		out = append(out, model.SystemMessage(sys))
	}
	return append(out, history...)
}

// NormalizeToolCalls runs the repair engine over every call that still
// carries an unparsed argument string, and synthesizes IDs some providers
// omit. Unrecoverable calls keep their raw arguments so they are attempted
// anyway instead of being dropped.
func NormalizeToolCalls(calls []model.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return calls
	}
	out := make([]model.ToolCall, 0, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%s", i+1, model.NewID()[:8])
		}
		call.Kind = model.ToolCallKind
		if call.Args == nil && call.RawArgs != "" {
			repaired, _ := parsers.RepairToolCall(parsers.RawToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.RawArgs,
			})
			call.Args = repaired.Args
			if repaired.Args != nil {
				call.RawArgs = ""
			}
		}
		out = append(out, call)
	}
	return out
}

// NewLLMRouter decides where the turn goes after the model replied.
func NewLLMRouter(retryFlow bool) engine.Router {
	return func(state *model.ConversationState) string {
		if len(state.ValidationErrors) > 0 && retryFlow {
			if state.RetryCount < state.MaxRetries {
				return NodeRetry
			}
			// Retries exhausted: surface the errors and finish the turn
			// without the call. Recoverable but abandoned.
			logx.Warn().
				Strs("validation_errors", state.ValidationErrors).
				Int("retry_count", state.RetryCount).
				Msg("tool call retries exhausted, completing turn without the call")
			return NodeMemory
		}
		if idx := model.LastAI(state.Messages); idx >= 0 && len(state.Messages[idx].ToolCalls) > 0 {
			return NodeAction
		}
		return NodeMemory
	}
}
