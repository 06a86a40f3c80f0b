package engine

import (
	"context"
	"fmt"

	"github.com/ranops-core/server/internal/agent/model"
	errx "github.com/ranops-core/server/internal/core/error"
	logx "github.com/ranops-core/server/pkg/logger"
)

// End is the terminal pseudo-state of every graph.
const End = "end"

// DefaultRecursionLimit bounds the number of node executions in one turn,
// guarding against tool-call loops that never converge.
const DefaultRecursionLimit = 25

// Handler executes one node against the current snapshot and returns the
// partial update to merge. Handlers never mutate the snapshot.
type Handler func(ctx context.Context, state *model.ConversationState, cfg RunConfig) (*model.StateDelta, error)

// Router picks the next state name after a node's delta has been merged.
type Router func(state *model.ConversationState) string

// RunConfig carries per-invocation settings into every node.
type RunConfig struct {
	ThreadID       string
	RunID          string
	RecursionLimit int
	Events         model.EventSink
}

// Chunk is one streamed step: the node that ran, its delta, and the merged
// snapshot after the delta was applied.
type Chunk struct {
	Node  string
	Delta *model.StateDelta
	State *model.ConversationState
	Err   error
}

// Graph is an explicit finite-state-machine interpreter: a mapping from
// state name to handler and from state name to router. The interpreter loop
// invokes handler, merges the returned delta, asks the router for the next
// state, and repeats until End.
type Graph struct {
	entry       string
	handlers    map[string]Handler
	routers     map[string]Router
	checkpoints model.CheckpointProvider
}

func New(entry string, checkpoints model.CheckpointProvider) *Graph {
	return &Graph{
		entry:       entry,
		handlers:    map[string]Handler{},
		routers:     map[string]Router{},
		checkpoints: checkpoints,
	}
}

// AddNode registers a handler and its outgoing router. A nil router means
// the node unconditionally terminates the turn.
func (g *Graph) AddNode(name string, h Handler, r Router) {
	g.handlers[name] = h
	g.routers[name] = r
}

// Run executes one turn to completion and returns the final state. Only
// checkpoint failures propagate as errors; every node-level failure is
// converted to in-band conversation content by the nodes themselves.
func (g *Graph) Run(ctx context.Context, initial *model.ConversationState, cfg RunConfig) (*model.ConversationState, error) {
	var final *model.ConversationState
	for chunk := range g.stream(ctx, initial, cfg) {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		final = chunk.State
	}
	return final, nil
}

// Stream executes one turn, emitting one chunk per node step. The sequence
// is finite and not restartable.
func (g *Graph) Stream(ctx context.Context, initial *model.ConversationState, cfg RunConfig) <-chan Chunk {
	return g.stream(ctx, initial, cfg)
}

func (g *Graph) stream(ctx context.Context, initial *model.ConversationState, cfg RunConfig) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)

		// A consumer that walks away mid-turn must not strand this
		// goroutine, so every send can bail out on cancellation.
		send := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		state, err := g.loadState(ctx, initial, cfg)
		if err != nil {
			send(Chunk{Err: err})
			return
		}

		limit := cfg.RecursionLimit
		if limit <= 0 {
			limit = DefaultRecursionLimit
		}

		node := g.entry
		for steps := 0; node != End; steps++ {
			if err := ctx.Err(); err != nil {
				send(Chunk{Err: err})
				return
			}
			if steps >= limit {
				send(Chunk{Err: fmt.Errorf("recursion limit %d exceeded at node %q", limit, node)})
				return
			}

			handler, ok := g.handlers[node]
			if !ok {
				send(Chunk{Err: fmt.Errorf("graph has no node %q", node)})
				return
			}

			delta, err := handler(ctx, state, cfg)
			if err != nil {
				// Nodes absorb their own failures; an error here is a bug
				// in graph wiring, not a recoverable condition.
				send(Chunk{Err: fmt.Errorf("node %q: %w", node, err)})
				return
			}
			state = state.Apply(delta)

			if err := g.saveState(ctx, state, cfg); err != nil {
				send(Chunk{Err: err})
				return
			}

			if !send(Chunk{Node: node, Delta: delta, State: state}) {
				return
			}

			router := g.routers[node]
			if router == nil {
				node = End
			} else {
				node = router(state)
			}
		}
	}()
	return out
}

// loadState reads through the checkpoint provider: stored state, when
// present, absorbs the new turn's input messages.
func (g *Graph) loadState(ctx context.Context, initial *model.ConversationState, cfg RunConfig) (*model.ConversationState, error) {
	if g.checkpoints == nil || cfg.ThreadID == "" {
		if initial == nil {
			initial = model.NewConversationState(0)
		}
		return initial, nil
	}
	stored, err := g.checkpoints.Load(ctx, cfg.ThreadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", cfg.ThreadID).Msg("checkpoint load failed")
		return nil, errx.WrapCheckpoint(err)
	}
	if stored == nil {
		if initial == nil {
			initial = model.NewConversationState(0)
		}
		return initial, nil
	}
	if initial == nil {
		return stored, nil
	}
	// New turn against an existing thread: append the inbound messages and
	// carry over turn-scoped settings from the caller. The at-most-once
	// dispatch guard is scoped to a single turn, so a provider reusing a
	// tool-call id across turns is not suppressed.
	merged := stored.Apply(&model.StateDelta{Messages: initial.Messages})
	if initial.MaxRetries > 0 {
		merged.MaxRetries = initial.MaxRetries
	}
	merged.RetryCount = 0
	merged.ValidationErrors = nil
	merged.ProcessedToolCallIDs = map[string]bool{}
	return merged, nil
}

func (g *Graph) saveState(ctx context.Context, state *model.ConversationState, cfg RunConfig) error {
	if g.checkpoints == nil || cfg.ThreadID == "" {
		return nil
	}
	if err := g.checkpoints.Save(ctx, cfg.ThreadID, state); err != nil {
		logx.Error().Err(err).Str("thread_id", cfg.ThreadID).Msg("checkpoint save failed")
		return errx.WrapCheckpoint(err)
	}
	return nil
}
