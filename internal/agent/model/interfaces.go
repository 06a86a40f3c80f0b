package model

import "context"

// ChatModel is the provider contract. Implementations are constructed bound
// to a fixed tool set so replies can only request calls against that set.
type ChatModel interface {
	Invoke(ctx context.Context, messages []Message) (Message, error)
}

// Summarizer folds prior conversation text into an updated running summary.
type Summarizer interface {
	Summarize(ctx context.Context, text, priorSummary string) (string, error)
}

// Tokenizer counts tokens in serialized prompt text. Implementations must
// be pure and safe for concurrent use.
type Tokenizer interface {
	CountTokens(text string) int
}

// CheckpointProvider durably stores per-thread state between turns.
// Load returns (nil, nil) when the thread has no stored state yet.
type CheckpointProvider interface {
	Load(ctx context.Context, threadID string) (*ConversationState, error)
	Save(ctx context.Context, threadID string, state *ConversationState) error
}

// EventSink receives out-of-band notifications about internal failures.
// It is optional; a nil sink never affects control flow.
type EventSink interface {
	OnCustomEvent(name string, payload map[string]any, runID string)
}
