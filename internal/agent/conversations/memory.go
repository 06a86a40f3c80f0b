package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// Manager owns both memory mechanisms for a worker agent: the LLM-context
// filter, which only affects what the model sees this turn, and the
// token-budget eviction policy, which rewrites persisted state through
// summarization and tombstones.
type Manager struct {
	cfg        model.MemoryConfig
	tokenizer  model.Tokenizer
	summarizer model.Summarizer
}

func NewManager(cfg model.MemoryConfig, tok model.Tokenizer, sum model.Summarizer) *Manager {
	return &Manager{cfg: cfg, tokenizer: tok, summarizer: sum}
}

// FilterContext returns the subset of history presented to the model. The
// full history stays persisted for audit regardless of this filtering.
//
// With N = ToolCallsToRemember >= 0, the last N tool-result messages are
// retained and the window starts at the nearest human message preceding the
// earliest of them, so the model always sees a complete human-to-tools
// sub-conversation and never a dangling tool result. When no human message
// precedes the earliest retained tool result, the full history is kept
// rather than opening the window on an orphaned tool result. With zero
// retained tool results, the window starts at the last human message.
func (m *Manager) FilterContext(messages []model.Message) []model.Message {
	n := m.cfg.ToolCallsToRemember
	if n < 0 {
		return messages
	}

	var toolIdx []int
	for i, msg := range messages {
		if msg.Role == model.RoleTool {
			toolIdx = append(toolIdx, i)
		}
	}
	if len(toolIdx) > n {
		toolIdx = toolIdx[len(toolIdx)-n:]
	}

	start := 0
	if len(toolIdx) == 0 {
		if idx := model.LastHuman(messages); idx >= 0 {
			start = idx
		}
	} else {
		for i := toolIdx[0] - 1; i >= 0; i-- {
			if messages[i].Role == model.RoleHuman {
				start = i
				break
			}
		}
	}
	return messages[start:]
}

// overBudget applies the configured threshold comparison. Strict greater-than
// is the default; InclusiveLimit switches to >=.
func (m *Manager) overBudget(tokens int) bool {
	if m.cfg.InclusiveLimit {
		return tokens >= m.cfg.TokenLimit
	}
	return tokens > m.cfg.TokenLimit
}

// PromptTokens measures the full prompt as it would be sent to the model:
// system text, running summary, serialized tool descriptions, and the
// filtered history rendered as role-prefixed lines.
func (m *Manager) PromptTokens(systemText string, summary string, toolText string, messages []model.Message) int {
	var b strings.Builder
	b.WriteString(systemText)
	b.WriteString("\n")
	b.WriteString(summary)
	b.WriteString("\n")
	b.WriteString(toolText)
	b.WriteString("\n")
	for _, msg := range m.FilterContext(messages) {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return m.tokenizer.CountTokens(b.String())
}

// Compact performs token-budget eviction and summarization. When the prompt
// exceeds the limit, history before the nearest human message found by a
// backward scan (starting four messages from the end) is folded into the
// summary and tombstoned. A summarizer failure leaves state untouched: no
// message is ever lost because summarization failed.
func (m *Manager) Compact(ctx context.Context, state *model.ConversationState, systemText, toolText string) *model.StateDelta {
	tokens := m.PromptTokens(systemText, state.Summary, toolText, state.Messages)

	if !m.overBudget(tokens) {
		if m.cfg.CleanupUnderBudget {
			return m.cleanup(state)
		}
		return nil
	}

	logx.Debug().
		Int("tokens", tokens).
		Int("limit", m.cfg.TokenLimit).
		Msg("token budget exceeded, summarizing older history")

	idx := m.splitIndex(state.Messages)
	if idx <= 0 {
		// History too short to split. Not an error, just not yet due.
		return nil
	}

	toSummarize := state.Messages[:idx]
	var text strings.Builder
	for _, msg := range toSummarize {
		if msg.Content == "" {
			continue
		}
		text.WriteString(string(msg.Role))
		text.WriteString(": ")
		text.WriteString(msg.Content)
		text.WriteString("\n")
	}

	updated, err := m.summarizer.Summarize(ctx, text.String(), state.Summary)
	if err != nil {
		logx.Error().Err(err).Msg("summarization failed, keeping full history")
		return nil
	}

	delta := &model.StateDelta{Summary: model.Ptr(fmt.Sprintf("Summary:\n%s", updated))}
	for _, msg := range toSummarize {
		if msg.ID != "" {
			delta.Messages = append(delta.Messages, model.Tombstone(msg.ID))
		}
	}
	return delta
}

// splitIndex scans backward from len(messages)-4 for the nearest human
// message. Returns -1 when no sufficiently old human message exists.
func (m *Manager) splitIndex(messages []model.Message) int {
	for i := len(messages) - 4; i > 0; i-- {
		if i < len(messages) && messages[i].Role == model.RoleHuman {
			return i
		}
	}
	return -1
}

// cleanup tombstones tool results and empty AI messages while under budget,
// keeping the persisted log lean without a summarization trigger.
func (m *Manager) cleanup(state *model.ConversationState) *model.StateDelta {
	var delta model.StateDelta
	for _, msg := range state.Messages {
		if msg.ID == "" {
			continue
		}
		if msg.Role == model.RoleTool || (msg.Role == model.RoleAI && !msg.HasContent() && len(msg.ToolCalls) == 0) {
			delta.Messages = append(delta.Messages, model.Tombstone(msg.ID))
		}
	}
	if len(delta.Messages) == 0 {
		return nil
	}
	return &delta
}
