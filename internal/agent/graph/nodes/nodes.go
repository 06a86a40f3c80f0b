package nodes

// Node names for the worker conversation graph.
const (
	NodeLLM             = "llm"
	NodeAction          = "action"
	NodeMemory          = "memory"
	NodeRetry           = "retry"
	NodeCorrectToolCall = "correct_tool_call"
)
