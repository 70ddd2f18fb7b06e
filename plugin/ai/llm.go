package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sashabaranov/go-openai"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
	// Partial marks an assistant reply cut short by a failed or cancelled stream.
	Partial bool `json:"partial,omitempty"`
}

// GenerationOptions are the numeric sampling options forwarded with a chat request.
// Zero values leave the model defaults in place.
type GenerationOptions struct {
	Temperature      float32  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP             float32  `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	NumPredict       int      `json:"num_predict,omitempty" yaml:"num_predict,omitempty"`
	Seed             *int     `json:"seed,omitempty" yaml:"seed,omitempty"`
	PresencePenalty  float32  `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
	FrequencyPenalty float32  `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// Validate rejects options the backend would refuse.
func (o GenerationOptions) Validate() error {
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", o.Temperature)
	}
	if o.TopP < 0 || o.TopP > 1 {
		return fmt.Errorf("top_p must be within [0, 1], got %v", o.TopP)
	}
	if o.NumPredict < 0 {
		return fmt.Errorf("num_predict must not be negative, got %d", o.NumPredict)
	}
	return nil
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatStream performs streaming chat. The content channel is unbuffered so the
	// consumer drives the pace; cancelling ctx stops production. The error channel
	// receives at most one error and both channels are closed when the stream ends.
	ChatStream(ctx context.Context, model string, messages []Message, opts GenerationOptions) (<-chan string, <-chan error)

	// ListModels returns the names of the models installed on the backend.
	ListModels(ctx context.Context) ([]string, error)
}

type llmService struct {
	client *openai.Client
	model  string
}

// NewLLMService creates a new LLMService.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Provider {
	case "ollama":
		// Ollama serves an OpenAI compatible API under /v1 and ignores the token.
		clientConfig = openai.DefaultConfig("ollama")
		clientConfig.BaseURL = ollamaOpenAIBaseURL(cfg.BaseURL)

	case "openai":
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return &llmService{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

func (s *llmService) resolveModel(model string) string {
	if model == "" {
		return s.model
	}
	return model
}

func (s *llmService) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.resolveModel(model),
		Messages: convertMessages(messages),
	})
	if err != nil {
		return "", transportError("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", transportError("chat completion", errors.New("empty response"))
	}

	return resp.Choices[0].Message.Content, nil
}

func (s *llmService) ChatStream(ctx context.Context, model string, messages []Message, opts GenerationOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		req := openai.ChatCompletionRequest{
			Model:            s.resolveModel(model),
			Messages:         convertMessages(messages),
			Stream:           true,
			Temperature:      opts.Temperature,
			TopP:             opts.TopP,
			MaxTokens:        opts.NumPredict,
			Seed:             opts.Seed,
			PresencePenalty:  opts.PresencePenalty,
			FrequencyPenalty: opts.FrequencyPenalty,
			Stop:             opts.Stop,
		}

		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errChan <- transportError("open chat stream", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- transportError("read chat stream", err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case contentChan <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				errChan <- transportError("read chat stream", ctx.Err())
				return
			}
		}
	}()

	return contentChan, errChan
}

func (s *llmService) ListModels(ctx context.Context) ([]string, error) {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, transportError("list models", err)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	sort.Strings(names)
	return names, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleUser:
			role = openai.ChatMessageRoleUser
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}

		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		}
	}
	return llmMessages
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Helper for creating assistant messages
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
