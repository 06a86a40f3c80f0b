package graph

import (
	"context"
	"fmt"

	"github.com/ranops-core/server/internal/agent/conversations"
	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/graph/nodes"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// Config holds everything needed to compose a worker agent end-to-end.
type Config struct {
	Name         string
	SystemPrompt string
	Model        model.ChatModel
	Registry     *model.Registry
	Memory       *conversations.Manager
	Checkpoints  model.CheckpointProvider
	Agent        model.AgentConfig
}

// Agent is one worker: a conversation state machine over its own persisted
// thread, bound to one model and one tool registry.
type Agent struct {
	name  string
	cfg   model.AgentConfig
	graph *engine.Graph
}

// NewAgent wires the worker conversation graph:
//
//	llm -> action (tool calls present) -> llm
//	llm -> retry -> correct_tool_call (second and later failures)
//	llm -> memory -> end
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is empty")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %q: chat model is nil", cfg.Name)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent %q: tool registry is nil", cfg.Name)
	}
	if cfg.Memory == nil {
		return nil, fmt.Errorf("agent %q: memory manager is nil", cfg.Name)
	}

	g := engine.New(nodes.NodeLLM, cfg.Checkpoints)

	g.AddNode(nodes.NodeLLM,
		nodes.NewLLMNode(nodes.LLMDeps{
			Model:        cfg.Model,
			Memory:       cfg.Memory,
			Registry:     cfg.Registry,
			SystemPrompt: cfg.SystemPrompt,
		}),
		nodes.NewLLMRouter(cfg.Agent.RetryFlow),
	)
	g.AddNode(nodes.NodeAction,
		nodes.NewActionNode(nodes.ActionDeps{Registry: cfg.Registry}),
		nodes.NewActionRouter(),
	)
	g.AddNode(nodes.NodeRetry,
		nodes.NewRetryNode(nodes.RetryDeps{Model: cfg.Model, Registry: cfg.Registry}),
		nodes.NewRetryRouter(),
	)
	g.AddNode(nodes.NodeCorrectToolCall,
		nodes.NewCorrectToolCallNode(nodes.RetryDeps{Model: cfg.Model, Registry: cfg.Registry}),
		nodes.NewCorrectToolCallRouter(),
	)
	g.AddNode(nodes.NodeMemory,
		nodes.NewMemoryNode(nodes.MemoryDeps{
			Memory:       cfg.Memory,
			Registry:     cfg.Registry,
			SystemPrompt: cfg.SystemPrompt,
		}),
		nil,
	)

	logx.Debug().Str("agent", cfg.Name).Msg("worker graph built")
	return &Agent{name: cfg.Name, cfg: cfg.Agent, graph: g}, nil
}

func (a *Agent) Name() string {
	return a.name
}

// Run executes one turn to its terminal state.
func (a *Agent) Run(ctx context.Context, initial *model.ConversationState, cfg engine.RunConfig) (*model.ConversationState, error) {
	return a.graph.Run(ctx, a.prepare(initial), a.prepareConfig(cfg))
}

// Stream executes one turn, yielding one chunk per node step.
func (a *Agent) Stream(ctx context.Context, initial *model.ConversationState, cfg engine.RunConfig) <-chan engine.Chunk {
	return a.graph.Stream(ctx, a.prepare(initial), a.prepareConfig(cfg))
}

// Turn is the common entry point for one new inbound human message.
func (a *Agent) Turn(ctx context.Context, text string, cfg engine.RunConfig) (*model.ConversationState, error) {
	initial := model.NewConversationState(a.cfg.MaxRetries)
	initial.Messages = []model.Message{model.HumanMessage(text)}
	return a.Run(ctx, initial, cfg)
}

func (a *Agent) prepare(initial *model.ConversationState) *model.ConversationState {
	if initial == nil {
		initial = model.NewConversationState(a.cfg.MaxRetries)
	}
	if initial.MaxRetries == 0 {
		initial.MaxRetries = a.cfg.MaxRetries
	}
	return initial
}

func (a *Agent) prepareConfig(cfg engine.RunConfig) engine.RunConfig {
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = a.cfg.RecursionLimit
	}
	if cfg.RunID == "" {
		cfg.RunID = model.NewID()
	}
	return cfg
}
