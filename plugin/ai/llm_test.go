package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLLMService tests service creation.
func TestNewLLMService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{
			name:        "Ollama config",
			cfg:         &LLMConfig{Provider: "ollama", Model: "llama3.2:1b", BaseURL: "http://localhost:11434"},
			expectError: false,
		},
		{
			name:        "OpenAI config",
			cfg:         &LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "test-key"},
			expectError: false,
		},
		{
			name:        "Unsupported provider",
			cfg:         &LLMConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMService(tt.cfg)
			assert.Equal(t, tt.expectError, err != nil, "error = %v", err)
		})
	}
}

func newTestLLM(t *testing.T) (*fakeOllama, LLMService) {
	t.Helper()
	fake, srv := newFakeOllama(t)
	svc, err := NewLLMService(&LLMConfig{Provider: "ollama", Model: "llama3.2:1b", BaseURL: srv.URL})
	require.NoError(t, err)
	return fake, svc
}

func TestLLMService_ChatStream(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.chunks = []string{"Hel", "lo", " there"}

	seed := 7
	contentChan, errChan := svc.ChatStream(context.Background(), "", []Message{
		SystemPrompt("You are helpful"),
		UserMessage("hi"),
	}, GenerationOptions{Temperature: 0.2, NumPredict: 64, Seed: &seed})

	var got []string
	for chunk := range contentChan {
		got = append(got, chunk)
	}
	require.NoError(t, <-errChan)
	assert.Equal(t, []string{"Hel", "lo", " there"}, got)

	req := fake.lastRequest()
	assert.Equal(t, "llama3.2:1b", req["model"])
	assert.Equal(t, true, req["stream"])
	assert.EqualValues(t, 64, req["max_tokens"])
	assert.EqualValues(t, 7, req["seed"])
	messages := req["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestLLMService_ChatStream_BackendFailure(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.failWith = http.StatusInternalServerError

	contentChan, errChan := svc.ChatStream(context.Background(), "llama3.2:1b", []Message{UserMessage("hi")}, GenerationOptions{})
	for range contentChan {
	}
	err := <-errChan
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestLLMService_ChatStream_Cancel(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.chunks = []string{"a", "b", "c", "d"}

	ctx, cancel := context.WithCancel(context.Background())
	contentChan, errChan := svc.ChatStream(ctx, "", []Message{UserMessage("hi")}, GenerationOptions{})

	first := <-contentChan
	assert.Equal(t, "a", first)
	cancel()

	// Drain; production must stop and the channels must close.
	done := make(chan struct{})
	go func() {
		for range contentChan {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
	if err := <-errChan; err != nil {
		assert.True(t, IsTransportError(err))
	}
}

func TestLLMService_Chat(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.reply = "a digest"

	out, err := svc.Chat(context.Background(), "summary-model", []Message{
		SystemPrompt("Summarize"),
		UserMessage("user: hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a digest", out)
	assert.Equal(t, "summary-model", fake.lastRequest()["model"])
}

func TestLLMService_Chat_Failure(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.failWith = http.StatusBadGateway

	_, err := svc.Chat(context.Background(), "", []Message{UserMessage("hi")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, strings.HasPrefix(err.Error(), "chat completion"))
}

func TestLLMService_ListModels(t *testing.T) {
	fake, svc := newTestLLM(t)
	fake.models = []string{"qwen2.5:7b", "llama3.2:1b"}

	models, err := svc.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:1b", "qwen2.5:7b"}, models)
}

func TestGenerationOptions_Validate(t *testing.T) {
	assert.NoError(t, GenerationOptions{}.Validate())
	assert.NoError(t, GenerationOptions{Temperature: 0.7, TopP: 0.9, NumPredict: 128}.Validate())
	assert.Error(t, GenerationOptions{Temperature: 3}.Validate())
	assert.Error(t, GenerationOptions{TopP: 1.5}.Validate())
	assert.Error(t, GenerationOptions{NumPredict: -1}.Validate())
}

func TestMessageHelpers(t *testing.T) {
	assert.Equal(t, Message{Role: RoleSystem, Content: "s"}, SystemPrompt("s"))
	assert.Equal(t, Message{Role: RoleUser, Content: "u"}, UserMessage("u"))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "a"}, AssistantMessage("a"))
}
