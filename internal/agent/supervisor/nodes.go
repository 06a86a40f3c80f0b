package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/graph/nodes"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

const clarifyFallback = "I didn't catch what you need help with. Could you describe the task or the site you're working on?"

// llmNode invokes the supervisor model over a message-count sliding window
// of recent history, structurally validated so the provider never sees a
// tool result without the AI message that requested it.
func (s *Supervisor) llmNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	window := s.cfg.Supervisor.MessageWindow
	if window <= 0 {
		window = 15
	}
	history := dropDanglingToolResults(tailWindow(state.Messages, window))
	prompt := nodes.BuildModelContext(s.cfg.SystemPrompt, state.Summary, history)

	reply, err := s.chat.Invoke(ctx, prompt)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", cfg.ThreadID).Msg("supervisor model invocation failed")
		if cfg.Events != nil {
			cfg.Events.OnCustomEvent("llm_error", map[string]any{
				"error":     err.Error(),
				"thread_id": cfg.ThreadID,
			}, cfg.RunID)
		}
		msg := model.AIMessage(fmt.Sprintf(
			"I was unable to reach the language model: %v. Please try again.", err), nil)
		return &model.StateDelta{Messages: []model.Message{msg}}, nil
	}

	if reply.Role != model.RoleAI {
		reply.Role = model.RoleAI
	}
	if reply.ID == "" {
		reply.ID = model.NewID()
	}
	reply.ToolCalls = nodes.NormalizeToolCalls(reply.ToolCalls)

	// Empty model output gets a clarifying fallback rather than emptiness.
	if !reply.HasContent() && len(reply.ToolCalls) == 0 {
		logx.Warn().Str("thread_id", cfg.ThreadID).Msg("supervisor model returned empty output")
		reply.Content = clarifyFallback
	}

	return &model.StateDelta{Messages: []model.Message{reply}}, nil
}

func (s *Supervisor) llmRouter(state *model.ConversationState) string {
	if idx := model.LastAI(state.Messages); idx >= 0 && len(state.Messages[idx].ToolCalls) > 0 {
		return NodeAction
	}
	return NodeMemory
}

// actionNode executes handoff and ordinary tool calls. A handoff call is
// recognized by name prefix; it records the target worker and
// short-circuits instead of invoking a callable. Ordinary calls get the
// same concurrency, isolation and duplicate-id guarantees as worker tool
// execution.
func (s *Supervisor) actionNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	idx := model.LastAI(state.Messages)
	if idx < 0 {
		return nil, nil
	}
	calls := nodes.DedupeCalls(state.Messages[idx].ToolCalls, state.ProcessedToolCallIDs)
	if len(calls) == 0 {
		return nil, nil
	}

	delta := &model.StateDelta{}
	results := make([]nodes.ToolExecutionResult, len(calls))

	var ordinary []model.ToolCall
	var ordinaryIdx []int
	for i, call := range calls {
		if strings.HasPrefix(call.Name, HandoffPrefix) {
			worker := strings.TrimPrefix(call.Name, HandoffPrefix)
			results[i] = nodes.ToolExecutionResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    fmt.Sprintf("Transferring to %s agent", worker),
				OK:         true,
			}
			delta.ActiveAgent = model.Ptr(worker)
			continue
		}
		ordinary = append(ordinary, call)
		ordinaryIdx = append(ordinaryIdx, i)
	}
	if len(ordinary) > 0 {
		for j, res := range nodes.ExecuteTools(ctx, s.registry, ordinary) {
			results[ordinaryIdx[j]] = res
		}
	}

	for _, res := range results {
		delta.Messages = append(delta.Messages, model.ToolMessage(res.ToolCallID, res.Name, res.Content))
		delta.ProcessedToolCallIDs = append(delta.ProcessedToolCallIDs, res.ToolCallID)
	}
	return delta, nil
}

// actionRouter branches on whether every call in the pass succeeded. Tool
// results carry "Error: " content on failure, so success is derivable from
// the messages appended after the requesting AI message.
func (s *Supervisor) actionRouter(state *model.ConversationState) string {
	idx := model.LastAI(state.Messages)
	if idx < 0 {
		return NodeRouteToWorker
	}
	for i := idx + 1; i < len(state.Messages); i++ {
		m := state.Messages[i]
		if m.Role == model.RoleTool && strings.HasPrefix(m.Content, "Error") {
			return NodeHandleWorkerFailure
		}
	}
	return NodeRouteToWorker
}

func (s *Supervisor) memoryNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	return s.cfg.Memory.Compact(ctx, state, s.cfg.SystemPrompt, s.registry.Describe()), nil
}

// routeToWorkerNode hands the most recent user message to the resolved
// worker's own graph on a worker-local thread, bounded by a hard wall-clock
// timeout. Every failure subtype is converted to a user-visible AI message;
// nothing escapes as an exception.
func (s *Supervisor) routeToWorkerNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	humanIdx := model.LastHuman(state.Messages)
	if humanIdx < 0 {
		return &model.StateDelta{Messages: []model.Message{model.AIMessage(clarifyFallback, nil)}}, nil
	}
	payload := state.Messages[humanIdx].Content

	name := s.resolveWorker(state, payload)
	worker, ok := s.workers[name]
	if !ok {
		logx.Error().Str("worker", name).Msg("routing resolved to unknown worker")
		return &model.StateDelta{Messages: []model.Message{model.AIMessage(
			fmt.Sprintf("I don't have a %s agent available right now.", name), nil)}}, nil
	}

	workerThreadID := fmt.Sprintf("%s-%s", cfg.ThreadID, name)
	delta := &model.StateDelta{
		ActiveAgent:    model.Ptr(name),
		WorkerThreadID: model.Ptr(workerThreadID),
	}

	initial := model.NewConversationState(0)
	initial.Messages = []model.Message{model.HumanMessage(payload)}
	workerCfg := engine.RunConfig{
		ThreadID:       workerThreadID,
		RunID:          cfg.RunID,
		RecursionLimit: s.cfg.Supervisor.WorkerRecursion,
		Events:         cfg.Events,
	}

	logx.Debug().
		Str("worker", name).
		Str("worker_thread_id", workerThreadID).
		Msg("delegating turn to worker")

	reply := s.invokeWorker(ctx, worker, initial, workerCfg)
	delta.Messages = append(delta.Messages, reply)
	return delta, nil
}

type workerOutcome struct {
	state *model.ConversationState
	err   error
}

// invokeWorker runs the worker graph under the configured timeout and maps
// every outcome to exactly one outward-facing AI message.
func (s *Supervisor) invokeWorker(ctx context.Context, worker Worker, initial *model.ConversationState, cfg engine.RunConfig) model.Message {
	name := worker.Name()

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan workerOutcome, 1)
	go func() {
		st, err := worker.Run(wctx, initial, cfg)
		done <- workerOutcome{state: st, err: err}
	}()

	var out workerOutcome
	select {
	case out = <-done:
	case <-wctx.Done():
		logx.Warn().Str("worker", name).Dur("timeout", s.timeout).Msg("worker delegation timed out")
		return model.AIMessage(fmt.Sprintf(
			"The %s agent is taking too long to respond. Please try again in a moment.", name), nil)
	}

	switch {
	case out.err != nil:
		logx.Error().Err(out.err).Str("worker", name).Msg("worker delegation failed")
		return model.AIMessage(fmt.Sprintf(
			"I encountered an issue while consulting the %s agent. Let me try to help you directly.", name), nil)
	case out.state == nil || len(out.state.Messages) == 0:
		logx.Warn().Str("worker", name).Msg("worker returned no messages")
		return model.AIMessage(fmt.Sprintf(
			"The %s agent returned no response. Please try rephrasing your request.", name), nil)
	}

	if idx := model.LastAI(out.state.Messages); idx >= 0 {
		// Forward only the worker's final answer, not its internal transcript.
		reply := out.state.Messages[idx]
		reply.ID = model.NewID()
		return reply
	}

	logx.Warn().Str("worker", name).Msg("worker returned messages without an AI reply")
	return model.AIMessage(fmt.Sprintf(
		"The %s agent finished without an answer (%s). Please try again.",
		name, describeRoles(out.state.Messages)), nil)
}

// resolveWorker picks the delegation target: the active agent when set,
// else the pluggable routing function, else the first registered worker.
func (s *Supervisor) resolveWorker(state *model.ConversationState, payload string) string {
	if state.ActiveAgent != "" {
		if _, ok := s.workers[state.ActiveAgent]; ok {
			return state.ActiveAgent
		}
	}
	if s.cfg.Route != nil {
		if name := s.cfg.Route(payload); name != "" {
			return name
		}
	}
	return s.workerOrder[0]
}

// handleWorkerFailureNode increments the cross-turn error counter. At the
// failure ceiling it reports degraded service and leaves recovery mode;
// below it, it stays in recovery mode with a softer message.
func (s *Supervisor) handleWorkerFailureNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	max := s.cfg.Supervisor.MaxWorkerFailures
	if max <= 0 {
		max = 3
	}
	count := state.ErrorCount + 1
	delta := &model.StateDelta{ErrorCount: model.Ptr(count)}
	if count >= max {
		logx.Error().Int("error_count", count).Msg("worker failure ceiling reached")
		delta.Messages = []model.Message{model.AIMessage(
			"I'm having trouble with multiple services right now. Please try again in a few minutes.", nil)}
		delta.RecoveryMode = model.Ptr(false)
	} else {
		delta.Messages = []model.Message{model.AIMessage(
			"I ran into a problem completing that request. Let me help you in a different way - could you tell me more about what you need?", nil)}
		delta.RecoveryMode = model.Ptr(true)
	}
	return delta, nil
}

// recoverConversationNode clears recovery bookkeeping and records a
// synthetic tool result so the audit trail shows that recovery ran even
// though no real tool did.
func (s *Supervisor) recoverConversationNode(ctx context.Context, state *model.ConversationState, cfg engine.RunConfig) (*model.StateDelta, error) {
	return &model.StateDelta{
		Messages: []model.Message{
			model.ToolMessage("recovery-"+time.Now().UTC().Format("20060102T150405"),
				"conversation_recovery", "Conversation recovered after a failed delegation."),
		},
		RecoveryMode:        model.Ptr(false),
		ClearProcessedCalls: true,
	}, nil
}

// tailWindow keeps only the most recent n messages.
func tailWindow(messages []model.Message, n int) []model.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// dropDanglingToolResults removes any tool result not preceded, anywhere
// earlier in the retained window, by an AI message that issued tool calls.
// Windowing can otherwise cut the requesting message away and leave the
// provider an invalid sequence shape.
func dropDanglingToolResults(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	sawToolCall := false
	for _, m := range messages {
		if m.Role == model.RoleAI && len(m.ToolCalls) > 0 {
			sawToolCall = true
		}
		if m.Role == model.RoleTool && !sawToolCall {
			continue
		}
		out = append(out, m)
	}
	return out
}

func describeRoles(messages []model.Message) string {
	counts := map[model.Role]int{}
	for _, m := range messages {
		counts[m.Role]++
	}
	var parts []string
	for _, role := range []model.Role{model.RoleSystem, model.RoleHuman, model.RoleAI, model.RoleTool} {
		if counts[role] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[role], role))
		}
	}
	return "returned " + strings.Join(parts, ", ") + " messages"
}
