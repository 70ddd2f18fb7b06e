package ai

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// MockLLMService is a mock implementation of LLMService for testing.
type MockLLMService struct {
	mu sync.Mutex

	// ChatFunc answers Chat calls; by default it returns "summary".
	ChatFunc func(ctx context.Context, model string, messages []Message) (string, error)
	// StreamChunks are sent by ChatStream in order.
	StreamChunks []string
	// StreamErr is reported after StreamChunks have been sent.
	StreamErr error
	// Models is returned by ListModels.
	Models []string

	ChatCalls   [][]Message
	StreamCalls [][]Message
	ChatModels  []string
}

// NewMockLLMService creates a MockLLMService that streams the given chunks.
func NewMockLLMService(chunks ...string) *MockLLMService {
	return &MockLLMService{
		StreamChunks: chunks,
		Models:       []string{"llama3.2:1b", "nomic-embed-text:latest"},
	}
}

func (m *MockLLMService) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, cloneMessages(messages))
	m.ChatModels = append(m.ChatModels, model)
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, model, messages)
	}
	return "summary", nil
}

func (m *MockLLMService) ChatStream(ctx context.Context, _ string, messages []Message, _ GenerationOptions) (<-chan string, <-chan error) {
	m.mu.Lock()
	m.StreamCalls = append(m.StreamCalls, cloneMessages(messages))
	chunks := append([]string(nil), m.StreamChunks...)
	streamErr := m.StreamErr
	m.mu.Unlock()

	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		for _, chunk := range chunks {
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				errChan <- transportError("read chat stream", ctx.Err())
				return
			}
		}
		if streamErr != nil {
			errChan <- transportError("read chat stream", streamErr)
		}
	}()

	return contentChan, errChan
}

func (m *MockLLMService) ListModels(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Models...), nil
}

// ChatCallCount returns the number of Chat calls.
func (m *MockLLMService) ChatCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChatCalls)
}

// LastStreamCall returns the messages sent with the most recent ChatStream call.
func (m *MockLLMService) LastStreamCall() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.StreamCalls) == 0 {
		return nil
	}
	return m.StreamCalls[len(m.StreamCalls)-1]
}

// MockEmbeddingService is a deterministic bag-of-words embedder for testing.
// Identical texts produce identical vectors and texts sharing words are similar.
type MockEmbeddingService struct {
	mu   sync.Mutex
	dims int

	// Err, when set, is returned as a transport failure by every call.
	Err   error
	Calls []string
}

// NewMockEmbeddingService creates a MockEmbeddingService with the given dimension.
func NewMockEmbeddingService(dims int) *MockEmbeddingService {
	if dims <= 0 {
		dims = 16
	}
	return &MockEmbeddingService{dims: dims}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, texts...)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, transportError("create embeddings", err)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
		vec := make([]float32, m.dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%uint32(m.dims)]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dims
}

func (m *MockEmbeddingService) Model() string {
	return "mock-embed"
}

// CallCount returns the number of texts embedded so far.
func (m *MockEmbeddingService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func cloneMessages(messages []Message) []Message {
	return append([]Message(nil), messages...)
}

var (
	_ LLMService       = (*MockLLMService)(nil)
	_ EmbeddingService = (*MockEmbeddingService)(nil)
)
