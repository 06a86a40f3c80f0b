package nodes

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/model"
)

// countingTool records how many times it was invoked, and optionally fails,
// panics or blocks.
type countingTool struct {
	name    string
	mu      sync.Mutex
	calls   int
	fail    bool
	panics  bool
	block   time.Duration
	replies string
}

func (t *countingTool) Name() string                   { return t.name }
func (t *countingTool) Description() string            { return "test tool " + t.name }
func (t *countingTool) ArgumentSchema() map[string]any { return nil }

func (t *countingTool) invocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *countingTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.block > 0 {
		time.Sleep(t.block)
	}
	if t.panics {
		panic("tool exploded")
	}
	if t.fail {
		return "", fmt.Errorf("backend unavailable")
	}
	if t.replies != "" {
		return t.replies, nil
	}
	return "ok", nil
}

func call(id, name string) model.ToolCall {
	return model.ToolCall{ID: id, Name: name, Args: map[string]any{}, Kind: model.ToolCallKind}
}

func TestExecuteTools_ResultCompleteness(t *testing.T) {
	good := &countingTool{name: "good", replies: "data"}
	bad := &countingTool{name: "bad", fail: true}
	boom := &countingTool{name: "boom", panics: true}
	registry := model.NewRegistry(good, bad, boom)

	calls := []model.ToolCall{
		call("c1", "good"),
		call("c2", "bad"),
		call("c3", "boom"),
		call("c4", "missing"),
	}
	results := ExecuteTools(context.Background(), registry, calls)

	require.Len(t, results, len(calls), "exactly one result per request")
	byID := map[string]ToolExecutionResult{}
	for _, r := range results {
		byID[r.ToolCallID] = r
	}
	assert.Equal(t, "data", byID["c1"].Content)
	assert.True(t, byID["c1"].OK)
	assert.Equal(t, "Error: backend unavailable", byID["c2"].Content)
	assert.False(t, byID["c2"].OK)
	assert.Contains(t, byID["c3"].Content, "panicked")
	assert.False(t, byID["c3"].OK)
	assert.Contains(t, byID["c4"].Content, "not registered")
	assert.False(t, byID["c4"].OK)
}

func TestExecuteTools_FailureDoesNotAbortSiblings(t *testing.T) {
	slow := &countingTool{name: "slow", block: 50 * time.Millisecond, replies: "late but fine"}
	fast := &countingTool{name: "fast", fail: true}
	registry := model.NewRegistry(slow, fast)

	results := ExecuteTools(context.Background(), registry, []model.ToolCall{
		call("c1", "fast"),
		call("c2", "slow"),
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.Equal(t, "late but fine", results[1].Content)
}

func TestDedupeCalls_DuplicateIDInSamePass(t *testing.T) {
	calls := DedupeCalls([]model.ToolCall{
		call("c1", "good"),
		call("c1", "good"),
		call("c2", "good"),
	}, nil)
	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "c2", calls[1].ID)
}

func TestDedupeCalls_AlreadyProcessedID(t *testing.T) {
	calls := DedupeCalls([]model.ToolCall{
		call("c1", "good"),
		call("c2", "good"),
	}, map[string]bool{"c1": true})
	require.Len(t, calls, 1)
	assert.Equal(t, "c2", calls[0].ID)
}

// A duplicated id in the model's reply must dispatch at most once through
// the full action node, across passes of the same turn.
func TestActionNode_AtMostOnceDispatch(t *testing.T) {
	tool := &countingTool{name: "fetch"}
	registry := model.NewRegistry(tool)
	node := NewActionNode(ActionDeps{Registry: registry})

	state := model.NewConversationState(3)
	state.Messages = []model.Message{
		model.HumanMessage("fetch it"),
		model.AIMessage("", []model.ToolCall{call("c1", "fetch"), call("c1", "fetch")}),
	}

	delta, err := node(context.Background(), state, engine.RunConfig{ThreadID: "t1"})
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, 1, tool.invocations())
	require.Len(t, delta.Messages, 1)
	assert.Equal(t, model.RoleTool, delta.Messages[0].Role)
	assert.Equal(t, "c1", delta.Messages[0].ToolCallID)

	// Second pass over the same AI message: the id is recorded as processed
	// and nothing dispatches again.
	next := state.Apply(delta)
	delta2, err := node(context.Background(), next, engine.RunConfig{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 1, tool.invocations())
	if delta2 != nil {
		assert.Empty(t, delta2.Messages)
	}
}

func TestActionNode_ResetsRetryStateAfterExecution(t *testing.T) {
	tool := &countingTool{name: "fetch"}
	registry := model.NewRegistry(tool)
	node := NewActionNode(ActionDeps{Registry: registry})

	state := model.NewConversationState(3)
	state.RetryCount = 2
	state.ValidationErrors = []string{"stale"}
	state.Messages = []model.Message{
		model.HumanMessage("fetch it"),
		model.AIMessage("", []model.ToolCall{call("c1", "fetch")}),
	}

	delta, err := node(context.Background(), state, engine.RunConfig{ThreadID: "t1"})
	require.NoError(t, err)
	next := state.Apply(delta)
	assert.Equal(t, 0, next.RetryCount)
	assert.Empty(t, next.ValidationErrors)
	assert.True(t, next.ProcessedToolCallIDs["c1"])
}

func TestInvokeOne_NilArgsCarriesRawArguments(t *testing.T) {
	var seen map[string]any
	tool := &captureTool{name: "fetch", capture: func(args map[string]any) { seen = args }}
	registry := model.NewRegistry(tool)

	res := invokeOne(context.Background(), registry, model.ToolCall{
		ID:      "c1",
		Name:    "fetch",
		RawArgs: `{"broken`,
	})
	assert.True(t, res.OK)
	require.NotNil(t, seen)
	assert.Equal(t, `{"broken`, seen["raw_arguments"])
}

type captureTool struct {
	name    string
	capture func(map[string]any)
}

func (t *captureTool) Name() string                   { return t.name }
func (t *captureTool) Description() string            { return "capture" }
func (t *captureTool) ArgumentSchema() map[string]any { return nil }
func (t *captureTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	t.capture(args)
	return "captured", nil
}
