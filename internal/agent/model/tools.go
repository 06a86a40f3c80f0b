package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool is one registered capability the model may call. Invoke must be safe
// to run concurrently with other tools; a failing tool returns an error and
// never panics the turn.
type Tool interface {
	Name() string
	Description() string
	// ArgumentSchema returns a JSON-Schema-shaped description of the
	// arguments, used for provider tool binding, token estimation and
	// corrective examples. May return nil.
	ArgumentSchema() map[string]any
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ToolSchema is the provider-facing description of a tool.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Registry maps tool names to capabilities. It is populated before a turn
// starts and read-only while a graph is running.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns provider-facing schemas for every registered tool,
// ordered by name.
func (r *Registry) Schemas() []ToolSchema {
	names := r.Names()
	out := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ArgumentSchema(),
		})
	}
	return out
}

// Describe renders the registry the way the model is told about it, so the
// memory manager can include tool definitions in its token estimate.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, s := range r.Schemas() {
		b.WriteString(s.Name)
		b.WriteString(": ")
		b.WriteString(s.Description)
		if s.Parameters != nil {
			b.WriteString(fmt.Sprintf(" %v", s.Parameters))
		}
		b.WriteString("\n")
	}
	return b.String()
}
