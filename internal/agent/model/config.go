package model

// ================ Config ================

// AgentConfig holds the per-worker conversation loop knobs.
type AgentConfig struct {
	MaxRetries     int  `envconfig:"AGENT_MAX_RETRIES" default:"3"`
	RecursionLimit int  `envconfig:"AGENT_RECURSION_LIMIT" default:"25"`
	RetryFlow      bool `envconfig:"AGENT_RETRY_FLOW" default:"true"`
}

// MemoryConfig controls context filtering and token-budget eviction.
// ToolCallsToRemember < 0 disables context filtering entirely.
// CleanupUnderBudget and the filter window are mutually exclusive policies
// for persisted state: when cleanup is on, tool results are tombstoned as
// soon as the turn is under budget instead of being windowed.
type MemoryConfig struct {
	ToolCallsToRemember int  `envconfig:"MEMORY_TOOL_CALLS_TO_REMEMBER" default:"-1"`
	TokenLimit          int  `envconfig:"MEMORY_TOKEN_LIMIT" default:"100000"`
	InclusiveLimit      bool `envconfig:"MEMORY_INCLUSIVE_LIMIT" default:"false"`
	CleanupUnderBudget  bool `envconfig:"MEMORY_CLEANUP_UNDER_BUDGET" default:"false"`
}

// SupervisorConfig controls delegation behavior.
type SupervisorConfig struct {
	MessageWindow     int    `envconfig:"SUPERVISOR_MESSAGE_WINDOW" default:"15"`
	WorkerTimeout     string `envconfig:"SUPERVISOR_WORKER_TIMEOUT" default:"30m"`
	WorkerRecursion   int    `envconfig:"SUPERVISOR_WORKER_RECURSION" default:"25"`
	MaxWorkerFailures int    `envconfig:"SUPERVISOR_MAX_WORKER_FAILURES" default:"3"`
}

// GeminiConfig configures the Gemini-backed chat model.
type GeminiConfig struct {
	Model       string  `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GEMINI_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.2"`
}
