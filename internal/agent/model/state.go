package model

// ConversationState is the persisted state for one agent thread. It is
// treated as an immutable snapshot by graph nodes: every node returns a
// StateDelta describing what changed, and the interpreter merges the delta
// into the next snapshot. Nothing mutates a snapshot in place.
type ConversationState struct {
	Messages             []Message       `json:"messages"`
	Summary              string          `json:"summary,omitempty"`
	RetryCount           int             `json:"retry_count"`
	MaxRetries           int             `json:"max_retries"`
	ValidationErrors     []string        `json:"validation_errors,omitempty"`
	ActiveAgent          string          `json:"active_agent,omitempty"`
	WorkerThreadID       string          `json:"worker_thread_id,omitempty"`
	ProcessedToolCallIDs map[string]bool `json:"processed_tool_call_ids,omitempty"`
	ErrorCount           int             `json:"error_count"`
	RecoveryMode         bool            `json:"recovery_mode"`
}

// NewConversationState returns the state for the first turn of a thread.
func NewConversationState(maxRetries int) *ConversationState {
	return &ConversationState{
		Messages:             []Message{},
		MaxRetries:           maxRetries,
		ProcessedToolCallIDs: map[string]bool{},
	}
}

// StateDelta is a partial state update returned by a node. Messages are
// appended (tombstones among them are resolved at merge time); pointer
// fields overwrite only when non-nil; ProcessedToolCallIDs unions in.
type StateDelta struct {
	Messages             []Message
	Summary              *string
	RetryCount           *int
	ValidationErrors     []string
	ClearValidation      bool
	ActiveAgent          *string
	WorkerThreadID       *string
	ProcessedToolCallIDs []string
	ClearProcessedCalls  bool
	ErrorCount           *int
	RecoveryMode         *bool
}

// Apply merges a delta into the snapshot and returns the next snapshot.
// The receiver is left untouched.
func (s *ConversationState) Apply(d *StateDelta) *ConversationState {
	next := &ConversationState{
		Summary:        s.Summary,
		RetryCount:     s.RetryCount,
		MaxRetries:     s.MaxRetries,
		ActiveAgent:    s.ActiveAgent,
		WorkerThreadID: s.WorkerThreadID,
		ErrorCount:     s.ErrorCount,
		RecoveryMode:   s.RecoveryMode,
	}
	next.Messages = make([]Message, len(s.Messages))
	copy(next.Messages, s.Messages)
	next.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	next.ProcessedToolCallIDs = make(map[string]bool, len(s.ProcessedToolCallIDs))
	for id := range s.ProcessedToolCallIDs {
		next.ProcessedToolCallIDs[id] = true
	}
	if d == nil {
		return next
	}
	if len(d.Messages) > 0 {
		next.Messages = ApplyTombstones(append(next.Messages, d.Messages...))
	}
	if d.Summary != nil {
		next.Summary = *d.Summary
	}
	if d.RetryCount != nil {
		next.RetryCount = *d.RetryCount
	}
	if d.ClearValidation {
		next.ValidationErrors = nil
	} else if d.ValidationErrors != nil {
		next.ValidationErrors = append([]string(nil), d.ValidationErrors...)
	}
	if d.ActiveAgent != nil {
		next.ActiveAgent = *d.ActiveAgent
	}
	if d.WorkerThreadID != nil {
		next.WorkerThreadID = *d.WorkerThreadID
	}
	if d.ClearProcessedCalls {
		next.ProcessedToolCallIDs = map[string]bool{}
	}
	for _, id := range d.ProcessedToolCallIDs {
		next.ProcessedToolCallIDs[id] = true
	}
	if d.ErrorCount != nil {
		next.ErrorCount = *d.ErrorCount
	}
	if d.RecoveryMode != nil {
		next.RecoveryMode = *d.RecoveryMode
	}
	return next
}

// Ptr is a small helper for building deltas around literal values.
func Ptr[T any](v T) *T {
	return &v
}
