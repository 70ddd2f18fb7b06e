// Package summary condenses a working history into a short digest.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/timeout"
)

// Instruction is the system prompt sent with every transcript.
const Instruction = "Summarize the following conversation keeping the most important points and who said them."

// Summarizer asks a chat model for a digest of a conversation.
type Summarizer struct {
	llm     ai.LLMService
	timeout time.Duration
}

// NewSummarizer creates a Summarizer backed by llm.
func NewSummarizer(llm ai.LLMService) *Summarizer {
	return &Summarizer{llm: llm, timeout: timeout.SummaryTimeout}
}

// Summarize returns the model's digest of history, verbatim.
// A history of two messages or fewer yields "" without calling the model.
// Errors from the model are returned as is and nothing is cached.
func (s *Summarizer) Summarize(ctx context.Context, history []ai.Message, model string) (string, error) {
	if len(history) <= 2 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	digest, err := s.llm.Chat(ctx, model, []ai.Message{
		ai.SystemPrompt(Instruction),
		ai.UserMessage(Transcript(history)),
	})
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}

	slog.Debug("history summarized",
		"model", model,
		"messages", len(history),
		"summary_len", len(digest),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return digest, nil
}

// Transcript renders every non-system message as "role: content", one per line.
func Transcript(history []ai.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == ai.RoleSystem {
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
