package conversations

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranops-core/server/internal/agent/model"
	"github.com/ranops-core/server/internal/agent/tokenizer"
)

// fixedTokenizer reports a constant count regardless of text, so threshold
// behavior can be pinned exactly.
type fixedTokenizer struct {
	tokens int
}

func (f fixedTokenizer) CountTokens(string) int { return f.tokens }

// stubSummarizer returns canned output or a canned error.
type stubSummarizer struct {
	out   string
	err   error
	calls int
	seen  string
}

func (s *stubSummarizer) Summarize(_ context.Context, text, _ string) (string, error) {
	s.calls++
	s.seen = text
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

func msgAt(role model.Role, i int) model.Message {
	switch role {
	case model.RoleHuman:
		return model.HumanMessage(fmt.Sprintf("human %d", i))
	case model.RoleAI:
		return model.AIMessage(fmt.Sprintf("ai %d", i), nil)
	case model.RoleTool:
		return model.ToolMessage(fmt.Sprintf("call-%d", i), "fetch", fmt.Sprintf("tool %d", i))
	default:
		return model.SystemMessage(fmt.Sprintf("system %d", i))
	}
}

func TestFilterContext_DisabledPassesEverything(t *testing.T) {
	m := NewManager(model.MemoryConfig{ToolCallsToRemember: -1}, tokenizer.Heuristic{}, nil)
	messages := []model.Message{
		model.HumanMessage("hi"),
		model.AIMessage("hello", nil),
	}
	assert.Equal(t, messages, m.FilterContext(messages))
}

// Thirteen messages with tool results at indices 3, 4, 7, 9 and 12 and a
// window of two: results 9 and 12 are retained, so the window must start at
// the human message immediately preceding index 9.
func TestFilterContext_WindowStartsAtHumanBeforeEarliestRetained(t *testing.T) {
	roles := []model.Role{
		model.RoleHuman, // 0
		model.RoleAI,    // 1
		model.RoleAI,    // 2
		model.RoleTool,  // 3
		model.RoleTool,  // 4
		model.RoleAI,    // 5
		model.RoleHuman, // 6
		model.RoleTool,  // 7
		model.RoleHuman, // 8
		model.RoleTool,  // 9
		model.RoleAI,    // 10
		model.RoleAI,    // 11
		model.RoleTool,  // 12
	}
	messages := make([]model.Message, len(roles))
	for i, r := range roles {
		messages[i] = msgAt(r, i)
	}

	m := NewManager(model.MemoryConfig{ToolCallsToRemember: 2}, tokenizer.Heuristic{}, nil)
	filtered := m.FilterContext(messages)

	require.Len(t, filtered, 5, "window should cover indices 8..12")
	assert.Equal(t, messages[8].ID, filtered[0].ID)
	toolCount := 0
	for _, msg := range filtered {
		if msg.Role == model.RoleTool {
			toolCount++
		}
	}
	assert.Equal(t, 2, toolCount)
}

func TestFilterContext_ZeroRetainedStartsAtLastHuman(t *testing.T) {
	messages := []model.Message{
		model.HumanMessage("old question"),
		model.AIMessage("old answer", nil),
		model.HumanMessage("new question"),
		model.AIMessage("thinking", nil),
	}
	m := NewManager(model.MemoryConfig{ToolCallsToRemember: 0}, tokenizer.Heuristic{}, nil)
	filtered := m.FilterContext(messages)
	require.Len(t, filtered, 2)
	assert.Equal(t, "new question", filtered[0].Content)
}

func TestFilterContext_NoPrecedingHumanKeepsFullHistory(t *testing.T) {
	messages := []model.Message{
		model.AIMessage("", []model.ToolCall{{ID: "c1", Name: "fetch", Kind: model.ToolCallKind}}),
		model.ToolMessage("c1", "fetch", "r1"),
		model.AIMessage("answer", nil),
	}
	m := NewManager(model.MemoryConfig{ToolCallsToRemember: 1}, tokenizer.Heuristic{}, nil)
	filtered := m.FilterContext(messages)
	require.Len(t, filtered, 3, "no human to anchor on keeps everything")
	assert.NotEqual(t, model.RoleTool, filtered[0].Role,
		"window never opens on an orphaned tool result")
}

func TestFilterContext_FewerToolResultsThanWindow(t *testing.T) {
	messages := []model.Message{
		model.HumanMessage("q"),
		model.AIMessage("", nil),
		model.ToolMessage("c1", "fetch", "r1"),
		model.AIMessage("done", nil),
	}
	m := NewManager(model.MemoryConfig{ToolCallsToRemember: 5}, tokenizer.Heuristic{}, nil)
	filtered := m.FilterContext(messages)
	assert.Len(t, filtered, 4, "window larger than history keeps everything")
}

// The eviction scenario: ten messages, measured usage just over the limit,
// nearest human within splitting range at index 2. Messages 0 and 1 fold
// into the summary and come back as tombstones.
func TestCompact_EvictsHistoryBeforeSplitIndex(t *testing.T) {
	messages := []model.Message{
		model.HumanMessage("turn one"),        // 0
		model.AIMessage("answer one", nil),    // 1
		model.HumanMessage("turn two"),        // 2
		model.AIMessage("", nil),              // 3
		model.ToolMessage("c1", "fetch", "r"), // 4
		model.AIMessage("answer two", nil),    // 5
		model.AIMessage("more detail", nil),   // 6
		model.AIMessage("", nil),              // 7
		model.ToolMessage("c2", "fetch", "r"), // 8
		model.AIMessage("answer three", nil),  // 9
	}
	state := model.NewConversationState(3)
	state.Messages = messages
	state.Summary = "Summary:\nearlier context"

	sum := &stubSummarizer{out: "updated summary text"}
	m := NewManager(model.MemoryConfig{
		TokenLimit:          100000,
		ToolCallsToRemember: -1,
	}, fixedTokenizer{tokens: 120001}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	require.NotNil(t, delta)
	require.NotNil(t, delta.Summary)
	assert.Equal(t, "Summary:\nupdated summary text", *delta.Summary)
	assert.Equal(t, 1, sum.calls)
	assert.Contains(t, sum.seen, "turn one")
	assert.Contains(t, sum.seen, "answer one")
	assert.NotContains(t, sum.seen, "turn two")

	require.Len(t, delta.Messages, 2)
	for _, msg := range delta.Messages {
		assert.Equal(t, model.RoleTombstone, msg.Role)
	}
	assert.Equal(t, messages[0].ID, delta.Messages[0].ID)
	assert.Equal(t, messages[1].ID, delta.Messages[1].ID)

	// After merge the evicted messages are gone and the rest survive in order.
	next := state.Apply(delta)
	require.Len(t, next.Messages, 8)
	assert.Equal(t, "turn two", next.Messages[0].Content)
	assert.Equal(t, "Summary:\nupdated summary text", next.Summary)
}

func TestCompact_AtLimitDoesNotTrigger(t *testing.T) {
	state := stateWithTurns(10)
	sum := &stubSummarizer{out: "s"}
	m := NewManager(model.MemoryConfig{TokenLimit: 100000, ToolCallsToRemember: -1},
		fixedTokenizer{tokens: 100000}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	assert.Nil(t, delta, "usage equal to the limit stays under the strict threshold")
	assert.Zero(t, sum.calls)
}

func TestCompact_OneOverLimitTriggers(t *testing.T) {
	state := stateWithTurns(10)
	sum := &stubSummarizer{out: "s"}
	m := NewManager(model.MemoryConfig{TokenLimit: 100000, ToolCallsToRemember: -1},
		fixedTokenizer{tokens: 100001}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	require.NotNil(t, delta)
	assert.Equal(t, 1, sum.calls)
}

func TestCompact_InclusiveLimitTriggersAtLimit(t *testing.T) {
	state := stateWithTurns(10)
	sum := &stubSummarizer{out: "s"}
	m := NewManager(model.MemoryConfig{TokenLimit: 100000, InclusiveLimit: true, ToolCallsToRemember: -1},
		fixedTokenizer{tokens: 100000}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	require.NotNil(t, delta)
	assert.Equal(t, 1, sum.calls)
}

// A summarizer failure must leave state untouched rather than dropping
// messages without their summary.
func TestCompact_SummarizerFailureFailsOpen(t *testing.T) {
	state := stateWithTurns(10)
	sum := &stubSummarizer{err: fmt.Errorf("provider down")}
	m := NewManager(model.MemoryConfig{TokenLimit: 100, ToolCallsToRemember: -1},
		fixedTokenizer{tokens: 200}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	assert.Nil(t, delta)
	assert.Equal(t, 1, sum.calls)
}

func TestCompact_TooShortToSplit(t *testing.T) {
	state := model.NewConversationState(3)
	state.Messages = []model.Message{
		model.HumanMessage("only turn"),
		model.AIMessage("answer", nil),
	}
	sum := &stubSummarizer{out: "s"}
	m := NewManager(model.MemoryConfig{TokenLimit: 100, ToolCallsToRemember: -1},
		fixedTokenizer{tokens: 200}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	assert.Nil(t, delta)
	assert.Zero(t, sum.calls)
}

func TestCompact_CleanupUnderBudgetTombstonesToolResults(t *testing.T) {
	state := model.NewConversationState(3)
	state.Messages = []model.Message{
		model.HumanMessage("q"),
		model.AIMessage("", []model.ToolCall{{ID: "c1", Name: "fetch", Kind: model.ToolCallKind}}),
		model.ToolMessage("c1", "fetch", "result"),
		model.AIMessage("final answer", nil),
	}
	sum := &stubSummarizer{out: "s"}
	m := NewManager(model.MemoryConfig{
		TokenLimit:          100000,
		CleanupUnderBudget:  true,
		ToolCallsToRemember: -1,
	}, fixedTokenizer{tokens: 50}, sum)

	delta := m.Compact(context.Background(), state, "system", "tools")
	require.NotNil(t, delta)
	assert.Zero(t, sum.calls, "cleanup must not summarize")

	next := state.Apply(delta)
	require.Len(t, next.Messages, 3)
	for _, msg := range next.Messages {
		assert.NotEqual(t, model.RoleTool, msg.Role)
	}
	assert.Equal(t, "final answer", next.Messages[2].Content)
}

func TestPromptTokens_CountsAllPromptParts(t *testing.T) {
	m := NewManager(model.MemoryConfig{ToolCallsToRemember: -1}, tokenizer.Heuristic{}, nil)
	messages := []model.Message{model.HumanMessage(strings.Repeat("x", 40))}

	base := m.PromptTokens("", "", "", nil)
	withHistory := m.PromptTokens("", "", "", messages)
	withSystem := m.PromptTokens(strings.Repeat("s", 40), "", "", messages)

	assert.Greater(t, withHistory, base)
	assert.Greater(t, withSystem, withHistory)
}

func stateWithTurns(n int) *model.ConversationState {
	state := model.NewConversationState(3)
	for i := 0; i < n/2; i++ {
		state.Messages = append(state.Messages,
			model.HumanMessage(fmt.Sprintf("question %d", i)),
			model.AIMessage(fmt.Sprintf("answer %d", i), nil),
		)
	}
	return state
}
