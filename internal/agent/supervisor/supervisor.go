package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/ranops-core/server/internal/agent/conversations"
	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// Node names for the supervisor graph.
const (
	NodeLLM                 = "llm"
	NodeAction              = "action"
	NodeMemory              = "memory"
	NodeRouteToWorker       = "route_to_worker"
	NodeHandleWorkerFailure = "handle_worker_failure"
	NodeRecoverConversation = "recover_conversation"
)

// HandoffPrefix marks synthetic tools whose invocation means "delegate this
// turn to a worker" rather than performing real work.
const HandoffPrefix = "transfer_to_"

const defaultWorkerTimeout = 30 * time.Minute

// Worker is an independently stateful sub-agent the supervisor can hand a
// turn to. graph.Agent satisfies it.
type Worker interface {
	Name() string
	Run(ctx context.Context, initial *model.ConversationState, cfg engine.RunConfig) (*model.ConversationState, error)
}

// RouteFunc picks a worker name for a user message when no agent is active.
type RouteFunc func(text string) string

// HandoffFactory builds the handoff tool for one worker. The default
// factory is used when nil.
type HandoffFactory func(w Worker) model.Tool

// Config composes a supervisor over its workers. Either Model or
// ModelFactory must be set; the factory receives the combined registry
// (ordinary tools plus synthesized handoff tools) so providers that bind
// tools at construction see the full set.
type Config struct {
	SystemPrompt   string
	Model          model.ChatModel
	ModelFactory   func(*model.Registry) model.ChatModel
	Registry       *model.Registry
	Memory         *conversations.Manager
	Checkpoints    model.CheckpointProvider
	Supervisor     model.SupervisorConfig
	Workers        []Worker
	Route          RouteFunc
	HandoffFactory HandoffFactory
}

// Supervisor routes user turns to workers via handoff tools and recovers
// from worker failures without ever surfacing an empty response.
type Supervisor struct {
	cfg         Config
	graph       *engine.Graph
	chat        model.ChatModel
	registry    *model.Registry
	workers     map[string]Worker
	workerOrder []string
	timeout     time.Duration
}

// New builds the supervisor graph:
//
//	llm -> action (tool calls) -> route_to_worker | handle_worker_failure
//	llm -> memory -> end
//	handle_worker_failure -> recover_conversation -> end
func New(cfg Config) (*Supervisor, error) {
	if cfg.Model == nil && cfg.ModelFactory == nil {
		return nil, fmt.Errorf("supervisor: chat model is nil")
	}
	if cfg.Memory == nil {
		return nil, fmt.Errorf("supervisor: memory manager is nil")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("supervisor: no workers registered")
	}

	timeout := defaultWorkerTimeout
	if cfg.Supervisor.WorkerTimeout != "" {
		d, err := time.ParseDuration(cfg.Supervisor.WorkerTimeout)
		if err != nil {
			return nil, fmt.Errorf("supervisor: invalid worker timeout %q: %w", cfg.Supervisor.WorkerTimeout, err)
		}
		timeout = d
	}

	s := &Supervisor{
		cfg:     cfg,
		workers: make(map[string]Worker, len(cfg.Workers)),
		timeout: timeout,
	}

	// The turn-time registry combines ordinary tools with one synthesized
	// handoff tool per worker, so validation and token estimation see the
	// exact tool set the model was bound to.
	factory := cfg.HandoffFactory
	if factory == nil {
		factory = defaultHandoffTool
	}
	s.registry = model.NewRegistry()
	if cfg.Registry != nil {
		for _, name := range cfg.Registry.Names() {
			if t, ok := cfg.Registry.Get(name); ok {
				s.registry.Register(t)
			}
		}
	}
	for _, w := range cfg.Workers {
		s.workers[w.Name()] = w
		s.workerOrder = append(s.workerOrder, w.Name())
		s.registry.Register(factory(w))
	}

	s.chat = cfg.Model
	if cfg.ModelFactory != nil {
		s.chat = cfg.ModelFactory(s.registry)
	}

	g := engine.New(NodeLLM, cfg.Checkpoints)
	g.AddNode(NodeLLM, s.llmNode, s.llmRouter)
	g.AddNode(NodeAction, s.actionNode, s.actionRouter)
	g.AddNode(NodeMemory, s.memoryNode, nil)
	g.AddNode(NodeRouteToWorker, s.routeToWorkerNode, nil)
	g.AddNode(NodeHandleWorkerFailure, s.handleWorkerFailureNode, func(*model.ConversationState) string {
		return NodeRecoverConversation
	})
	g.AddNode(NodeRecoverConversation, s.recoverConversationNode, nil)
	s.graph = g

	logx.Debug().Strs("workers", s.workerOrder).Msg("supervisor graph built")
	return s, nil
}

// Run executes one supervisor turn.
func (s *Supervisor) Run(ctx context.Context, initial *model.ConversationState, cfg engine.RunConfig) (*model.ConversationState, error) {
	return s.graph.Run(ctx, initial, s.prepareConfig(cfg))
}

// Stream executes one supervisor turn, yielding one chunk per node step.
func (s *Supervisor) Stream(ctx context.Context, initial *model.ConversationState, cfg engine.RunConfig) <-chan engine.Chunk {
	return s.graph.Stream(ctx, initial, s.prepareConfig(cfg))
}

// Turn is the common entry point for one new inbound user message.
func (s *Supervisor) Turn(ctx context.Context, text string, cfg engine.RunConfig) (*model.ConversationState, error) {
	initial := model.NewConversationState(0)
	initial.Messages = []model.Message{model.HumanMessage(text)}
	return s.Run(ctx, initial, cfg)
}

func (s *Supervisor) prepareConfig(cfg engine.RunConfig) engine.RunConfig {
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = engine.DefaultRecursionLimit
	}
	if cfg.RunID == "" {
		cfg.RunID = model.NewID()
	}
	return cfg
}

// handoffTool is the default synthetic handoff capability.
type handoffTool struct {
	worker string
}

func defaultHandoffTool(w Worker) model.Tool {
	return &handoffTool{worker: w.Name()}
}

func (h *handoffTool) Name() string {
	return HandoffPrefix + h.worker
}

func (h *handoffTool) Description() string {
	return fmt.Sprintf("Transfer the conversation to the %s agent.", h.worker)
}

func (h *handoffTool) ArgumentSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// Invoke exists to satisfy the Tool contract; the action node recognizes
// handoff tools by prefix and short-circuits before calling it.
func (h *handoffTool) Invoke(context.Context, map[string]any) (string, error) {
	return fmt.Sprintf("Transferring to %s agent", h.worker), nil
}
