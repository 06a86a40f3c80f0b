package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/graph/parsers"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// RetryDeps wires the malformed-call correction nodes.
type RetryDeps struct {
	Model    model.ChatModel
	Registry *model.Registry
}

// NewRetryNode builds the corrective-feedback node: it turns the recorded
// validation errors into a human-role message with concrete formatting
// guidance and, where a schema is available, an example payload, then lets
// the model try again.
func NewRetryNode(deps RetryDeps) engine.Handler {
	return func(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
		msg := model.HumanMessage(buildCorrectiveText(state, deps.Registry))
		logx.Debug().
			Str("thread_id", cfg.ThreadID).
			Int("retry_count", state.RetryCount+1).
			Msg("returning tool call errors to the model")
		return &model.StateDelta{
			Messages:   []model.Message{msg},
			RetryCount: model.Ptr(state.RetryCount + 1),
		}, nil
	}
}

// NewRetryRouter sends the second and later failed attempts to LLM-assisted
// structured correction; the first failure goes back to the model unaided.
func NewRetryRouter() engine.Router {
	return func(state *model.ConversationState) string {
		if state.RetryCount >= 2 {
			return NodeCorrectToolCall
		}
		return NodeLLM
	}
}

// NewCorrectToolCallNode asks the model to emit a structurally corrected
// call against the failing tool's schema. A valid correction proceeds
// straight to execution; anything else goes back to the main llm node.
func NewCorrectToolCallNode(deps RetryDeps) engine.Handler {
	return func(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
		prompt := model.HumanMessage(buildCorrectionPrompt(state, deps.Registry))
		history := append(append([]model.Message{}, state.Messages...), prompt)

		reply, err := deps.Model.Invoke(ctx, history)
		if err != nil {
			logx.Error().Err(err).Msg("tool call correction invocation failed")
			return &model.StateDelta{
				Messages: []model.Message{prompt, model.AIMessage(
					fmt.Sprintf("I could not repair the tool call: %v", err), nil)},
			}, nil
		}
		if reply.Role != model.RoleAI {
			reply.Role = model.RoleAI
		}
		if reply.ID == "" {
			reply.ID = model.NewID()
		}
		reply.ToolCalls = NormalizeToolCalls(reply.ToolCalls)
		errs := parsers.ValidateToolCalls(reply.ToolCalls, deps.Registry)

		delta := &model.StateDelta{Messages: []model.Message{prompt, reply}}
		if len(errs) > 0 || len(reply.ToolCalls) == 0 {
			delta.ValidationErrors = append(errs, "corrected call was still invalid")
		} else {
			delta.ClearValidation = true
		}
		return delta, nil
	}
}

// NewCorrectToolCallRouter executes a structurally valid correction, else
// hands control back to the main model loop.
func NewCorrectToolCallRouter() engine.Router {
	return func(state *model.ConversationState) string {
		if len(state.ValidationErrors) > 0 {
			return NodeLLM
		}
		if idx := model.LastAI(state.Messages); idx >= 0 && len(state.Messages[idx].ToolCalls) > 0 {
			return NodeAction
		}
		return NodeLLM
	}
}

func buildCorrectiveText(state *model.ConversationState, registry *model.Registry) string {
	var b strings.Builder
	b.WriteString("Your previous tool call was invalid:\n")
	for _, e := range state.ValidationErrors {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	b.WriteString("\nEmit the tool call again with a JSON object for the arguments, ")
	b.WriteString("double-quoted keys and values, and no trailing commas.")
	if example := failingCallExample(state, registry); example != "" {
		b.WriteString("\nExample of a valid payload: ")
		b.WriteString(example)
	}
	return b.String()
}

func buildCorrectionPrompt(state *model.ConversationState, registry *model.Registry) string {
	var b strings.Builder
	b.WriteString("Correct the malformed tool call below and emit it as a proper structured call.\n")
	if idx := model.LastAI(state.Messages); idx >= 0 {
		for _, call := range state.Messages[idx].ToolCalls {
			b.WriteString(fmt.Sprintf("tool: %s, arguments: %s\n", call.Name, call.RawArgs))
		}
	}
	for _, e := range state.ValidationErrors {
		b.WriteString("error: ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	if example := failingCallExample(state, registry); example != "" {
		b.WriteString("Valid payload shape: ")
		b.WriteString(example)
	}
	return b.String()
}

// failingCallExample derives an example payload from the schema of the
// first failing call whose tool actually exists.
func failingCallExample(state *model.ConversationState, registry *model.Registry) string {
	idx := model.LastAI(state.Messages)
	if idx < 0 {
		return ""
	}
	for _, call := range state.Messages[idx].ToolCalls {
		if tool, ok := registry.Get(call.Name); ok {
			if example := parsers.ExampleArguments(tool.ArgumentSchema()); example != "" {
				return example
			}
		}
	}
	return ""
}
