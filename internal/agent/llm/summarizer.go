package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
)

const summarizePrompt = `You maintain a running summary of a RAN operations conversation.
Fold the new messages below into the existing summary. Keep device names,
site identifiers, parameter values, metric readings and decisions made.
Drop greetings and filler. Reply with the updated summary only.`

// ChatSummarizer folds conversation text into a running summary using the
// same chat model contract the agents use, so any provider can back it.
type ChatSummarizer struct {
	chat model.ChatModel
}

func NewChatSummarizer(chat model.ChatModel) *ChatSummarizer {
	return &ChatSummarizer{chat: chat}
}

func (s *ChatSummarizer) Summarize(ctx context.Context, text, priorSummary string) (string, error) {
	var b strings.Builder
	if strings.TrimSpace(priorSummary) != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages:\n")
	b.WriteString(text)

	reply, err := s.chat.Invoke(ctx, []model.Message{
		model.SystemMessage(summarizePrompt),
		model.HumanMessage(b.String()),
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	if !reply.HasContent() {
		return "", fmt.Errorf("summarizer returned empty output")
	}
	return strings.TrimSpace(reply.Content), nil
}

var _ model.Summarizer = (*ChatSummarizer)(nil)
