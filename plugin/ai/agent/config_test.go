package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/store"
)

func TestAgentConfig_WithDefaults(t *testing.T) {
	cfg := AgentConfig{}.WithDefaults("llama3.2:1b", "")
	assert.Equal(t, "llama3.2:1b", cfg.Model)
	assert.Equal(t, "llama3.2:1b", cfg.SummaryModel)
	assert.Equal(t, DefaultMaxHistory, cfg.MaxHistory)
	assert.Equal(t, 1, cfg.NumAnswers)

	cfg = AgentConfig{Model: "mistral", MaxHistory: 6}.WithDefaults("llama3.2:1b", "qwen2.5:0.5b")
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, "qwen2.5:0.5b", cfg.SummaryModel)
	assert.Equal(t, 6, cfg.MaxHistory)
}

func TestAgentConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AgentConfig
		wantErr bool
	}{
		{name: "valid", cfg: AgentConfig{Model: "m", MaxHistory: 10}},
		{name: "minimum window", cfg: AgentConfig{Model: "m", MaxHistory: 4}},
		{name: "missing model", cfg: AgentConfig{MaxHistory: 10}, wantErr: true},
		{name: "window too small", cfg: AgentConfig{Model: "m", MaxHistory: 3}, wantErr: true},
		{name: "negative answers", cfg: AgentConfig{Model: "m", MaxHistory: 10, NumAnswers: -1}, wantErr: true},
		{name: "bad options", cfg: AgentConfig{Model: "m", MaxHistory: 10, Options: ai.GenerationOptions{TopP: 3}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAgentConfig_CarryOver(t *testing.T) {
	tests := []struct {
		maxHistory int
		want       int
	}{
		{4, 0},
		{5, 1},
		{6, 2},
		{10, 2},
		{50, 2},
	}
	for _, tt := range tests {
		cfg := AgentConfig{Model: "m", MaxHistory: tt.maxHistory}
		got := cfg.carryOver()
		assert.Equal(t, tt.want, got, "max history %d", tt.maxHistory)
		// system + summary + carried + user + assistant
		assert.LessOrEqual(t, fixedSlots+got+1, tt.maxHistory)
	}
}

func TestAgentConfig_ConversationRoundTrip(t *testing.T) {
	seed := 7
	cfg := AgentConfig{
		Model:        "llama3.2:1b",
		SystemPrompt: "You are helpful",
		NumAnswers:   1,
		Options:      ai.GenerationOptions{Temperature: 0.2, Seed: &seed},
		MaxHistory:   8,
		SummaryModel: "qwen2.5:0.5b",
	}

	conv := &store.Conversation{UID: "c1"}
	cfg.ApplyTo(conv)
	require.Equal(t, "You are helpful", conv.SystemPrompt)
	assert.Equal(t, cfg, ConfigFromConversation(conv))
}
