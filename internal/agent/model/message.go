package model

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies who produced a message. Every node switches on this
// discriminant; there is no other dynamic dispatch over message kinds.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAI        Role = "ai"
	RoleTool      Role = "tool"
	RoleTombstone Role = "tombstone"
)

// ToolCall is a structured request emitted by the model to invoke a named
// capability. Before repair, Args may be nil and RawArgs carries the
// provider's JSON-encoded argument string.
type ToolCall struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	RawArgs string         `json:"raw_args,omitempty"`
	Kind    string         `json:"kind"`
}

const ToolCallKind = "tool_call"

// Message is one turn of conversation. Fields beyond Role/ID/Content are
// role-specific: ToolCalls for AI, ToolCallID/Name for tool results. A
// tombstone carries only an ID and marks that message for removal.
type Message struct {
	Role       Role       `json:"role"`
	ID         string     `json:"id"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func NewID() string {
	return uuid.NewString()
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, ID: NewID(), Content: content}
}

func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, ID: NewID(), Content: content}
}

func AIMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAI, ID: NewID(), Content: content, ToolCalls: toolCalls}
}

func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, ID: NewID(), Content: content, ToolCallID: toolCallID, Name: name}
}

// Tombstone marks the message with the given id for removal. Eviction emits
// tombstones instead of truncating in place, so state updates stay
// append-only and audit consumers observe deletions explicitly.
func Tombstone(id string) Message {
	return Message{Role: RoleTombstone, ID: id}
}

// ApplyTombstones removes every message targeted by a tombstone, and the
// tombstones themselves, preserving the order of the survivors.
func ApplyTombstones(messages []Message) []Message {
	dead := make(map[string]bool)
	for _, m := range messages {
		if m.Role == RoleTombstone && m.ID != "" {
			dead[m.ID] = true
		}
	}
	if len(dead) == 0 {
		return messages
	}
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTombstone || dead[m.ID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// LastHuman returns the index of the last human message, or -1.
func LastHuman(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleHuman {
			return i
		}
	}
	return -1
}

// LastAI returns the index of the last AI message, or -1.
func LastAI(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAI {
			return i
		}
	}
	return -1
}

// HasContent reports whether the message carries non-blank text.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != ""
}
