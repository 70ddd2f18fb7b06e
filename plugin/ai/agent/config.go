package agent

import (
	"fmt"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/store"
)

const (
	// DefaultMaxHistory is the working history size that triggers a summary.
	DefaultMaxHistory = 10

	// MinMaxHistory leaves room for the system prompt, the summary and one exchange.
	MinMaxHistory = 4

	// summaryCarryOver is the number of trailing messages kept verbatim after a summary.
	summaryCarryOver = 2

	// fixedSlots are the system prompt, the summary message and the new user message.
	fixedSlots = 3
)

// AgentConfig is the per-conversation model setup.
type AgentConfig struct {
	Model        string               `json:"model"`
	SystemPrompt string               `json:"system_prompt"`
	NumAnswers   int                  `json:"num_answers"`
	Options      ai.GenerationOptions `json:"options"`
	MaxHistory   int                  `json:"max_history"`
	SummaryModel string               `json:"summary_model"`
}

// WithDefaults fills unset fields. The summary model falls back to the chat model.
func (c AgentConfig) WithDefaults(model, summaryModel string) AgentConfig {
	if c.Model == "" {
		c.Model = model
	}
	if c.SummaryModel == "" {
		c.SummaryModel = summaryModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = c.Model
	}
	if c.MaxHistory == 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.NumAnswers == 0 {
		c.NumAnswers = 1
	}
	return c
}

// Validate checks the config once, before a session is built from it.
func (c AgentConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.MaxHistory < MinMaxHistory {
		return fmt.Errorf("%w: max history must be at least %d, got %d", ErrInvalidConfig, MinMaxHistory, c.MaxHistory)
	}
	if c.NumAnswers < 0 {
		return fmt.Errorf("%w: num answers must not be negative", ErrInvalidConfig)
	}
	if err := c.Options.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// carryOver is how many trailing messages survive a summary. Small
// MaxHistory values keep fewer so a summarizing turn ends within MaxHistory.
func (c AgentConfig) carryOver() int {
	return min(summaryCarryOver, c.MaxHistory-fixedSlots-1)
}

// ConfigFromConversation reads the agent settings stored with a conversation.
func ConfigFromConversation(conv *store.Conversation) AgentConfig {
	return AgentConfig{
		Model:        conv.Model,
		SystemPrompt: conv.SystemPrompt,
		NumAnswers:   conv.NumAnswers,
		Options:      conv.Options,
		MaxHistory:   conv.MaxHistory,
		SummaryModel: conv.SummaryModel,
	}
}

// ApplyTo copies the settings onto a conversation record.
func (c AgentConfig) ApplyTo(conv *store.Conversation) {
	conv.Model = c.Model
	conv.SystemPrompt = c.SystemPrompt
	conv.NumAnswers = c.NumAnswers
	conv.Options = c.Options
	conv.MaxHistory = c.MaxHistory
	conv.SummaryModel = c.SummaryModel
}
