package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/store"
	storetest "github.com/hrygo/recall/store/test"
)

const testModel = "llama3.2:1b"

func newJSONStore(t *testing.T) *store.Store {
	t.Helper()
	return storetest.NewTestingStore(context.Background(), t, "jsonfile")
}

func createConversation(t *testing.T, st *store.Store, uid string, maxHistory int) {
	t.Helper()
	_, err := st.CreateConversation(context.Background(), &store.Conversation{
		UID:          uid,
		Name:         "Conversation " + uid,
		Model:        testModel,
		SystemPrompt: "You are helpful",
		NumAnswers:   1,
		MaxHistory:   maxHistory,
	})
	require.NoError(t, err)
}

func testConfig(maxHistory int) AgentConfig {
	return AgentConfig{
		Model:        testModel,
		SystemPrompt: "You are helpful",
		MaxHistory:   maxHistory,
	}.WithDefaults(testModel, "")
}

// drain reads a turn to the end.
func drain(content <-chan string, errs <-chan error) (string, error) {
	var b strings.Builder
	for chunk := range content {
		b.WriteString(chunk)
	}
	return b.String(), <-errs
}

func send(t *testing.T, s *Session, text string) string {
	t.Helper()
	reply, err := drain(s.HandleTurn(context.Background(), text))
	require.NoError(t, err)
	return reply
}

// restoredHistory is a system prompt followed by n-1 alternating messages.
func restoredHistory(n int) *store.WorkingHistory {
	messages := []*store.Message{{UID: "m0", Role: store.RoleSystem, Content: "You are helpful"}}
	for i := 1; i < n; i++ {
		role := store.RoleUser
		if i%2 == 0 {
			role = store.RoleAssistant
		}
		messages = append(messages, &store.Message{
			UID:     fmt.Sprintf("m%d", i),
			Role:    role,
			Content: fmt.Sprintf("message %d", i),
		})
	}
	return &store.WorkingHistory{Messages: messages}
}

func TestSession_FirstTurn(t *testing.T) {
	llm := ai.NewMockLLMService("Hel", "lo", "!")
	embedder := ai.NewMockEmbeddingService(32)

	s, err := NewSession("", testConfig(10), Deps{LLM: llm, Embedder: embedder}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFresh, s.State())
	assert.True(t, s.Ephemeral())

	var chunks []string
	content, errs := s.HandleTurn(context.Background(), "Hi there")
	for chunk := range content {
		chunks = append(chunks, chunk)
	}
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"Hel", "lo", "!"}, chunks)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, []ai.Message{
		ai.SystemPrompt("You are helpful"),
		ai.UserMessage("Hi there"),
		ai.AssistantMessage("Hello!"),
	}, s.History())

	// No summary yet, so the model sees the raw text.
	sent := llm.LastStreamCall()
	require.Len(t, sent, 2)
	assert.Equal(t, "Hi there", sent[1].Content)
	assert.Equal(t, 1, embedder.CallCount())
	assert.False(t, s.Busy())
}

func TestSession_SummaryComposition(t *testing.T) {
	llm := ai.NewMockLLMService("ok")
	llm.ChatFunc = func(context.Context, string, []ai.Message) (string, error) {
		return "S", nil
	}

	s, err := NewSession("", testConfig(10), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, restoredHistory(10))
	require.NoError(t, err)
	require.Equal(t, StateActive, s.State())

	send(t, s, "next")

	require.Equal(t, 1, llm.ChatCallCount())
	// The summarizer saw all ten messages.
	assert.Contains(t, llm.ChatCalls[0][1].Content, "user: message 1")
	assert.Contains(t, llm.ChatCalls[0][1].Content, "user: message 9")

	want := []ai.Message{
		ai.SystemPrompt("You are helpful"),
		ai.SystemPrompt(SummaryPrefix + "S"),
		{Role: ai.RoleAssistant, Content: "message 8"},
		{Role: ai.RoleUser, Content: "message 9"},
		ai.UserMessage("next\n\nSummary of the conversation:\nS"),
	}
	assert.Equal(t, want, llm.LastStreamCall())
	assert.Len(t, llm.LastStreamCall(), 3+2)

	assert.Equal(t, append(want, ai.AssistantMessage("ok")), s.History())
	assert.Equal(t, "S", s.Summary())
	assert.Equal(t, StateActive, s.State())
}

func TestSession_WorkingHistoryLength(t *testing.T) {
	tests := []struct {
		maxHistory int
		want       []int
	}{
		// The trigger sees the length before the turn, so one turn can end past it.
		{10, []int{3, 5, 7, 9, 11, 6, 8, 10, 6}},
		{6, []int{3, 5, 7, 6, 6}},
		{5, []int{3, 5, 5, 5}},
		{4, []int{3, 5, 4, 4}},
	}
	for _, tt := range tests {
		llm := ai.NewMockLLMService("ok")
		llm.ChatFunc = func(context.Context, string, []ai.Message) (string, error) {
			return "S", nil
		}
		s, err := NewSession("", testConfig(tt.maxHistory), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, nil)
		require.NoError(t, err)

		var got []int
		for range tt.want {
			summarizing := len(s.History()) >= tt.maxHistory
			send(t, s, "hello")
			got = append(got, len(s.History()))
			if summarizing {
				assert.LessOrEqual(t, len(s.History()), tt.maxHistory, "max history %d", tt.maxHistory)
			}
		}
		assert.Equal(t, tt.want, got, "max history %d", tt.maxHistory)
	}
}

func TestSession_SummaryIsReplacedNotMerged(t *testing.T) {
	llm := ai.NewMockLLMService("ok")
	calls := 0
	llm.ChatFunc = func(context.Context, string, []ai.Message) (string, error) {
		calls++
		return fmt.Sprintf("summary %d", calls), nil
	}

	s, err := NewSession("", testConfig(4), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, nil)
	require.NoError(t, err)

	for i := range 5 {
		send(t, s, fmt.Sprintf("turn %d", i))
		assert.LessOrEqual(t, len(s.History()), 5)
	}

	assert.Equal(t, fmt.Sprintf("summary %d", calls), s.Summary())
	history := s.History()
	assert.Equal(t, SummaryPrefix+s.Summary(), history[1].Content)
	for _, m := range history[2:] {
		assert.NotContains(t, m.Content, SummaryPrefix)
	}
}

func TestSession_EmptySummaryKeepsHistory(t *testing.T) {
	llm := ai.NewMockLLMService("ok")
	llm.ChatFunc = func(context.Context, string, []ai.Message) (string, error) {
		return "", nil
	}

	s, err := NewSession("", testConfig(4), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, restoredHistory(4))
	require.NoError(t, err)

	send(t, s, "next")
	assert.Len(t, s.History(), 6)
	assert.Empty(t, s.Summary())
	assert.Equal(t, "next", llm.LastStreamCall()[4].Content)
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newJSONStore(t)
	createConversation(t, st, "c1", 4)

	llm := ai.NewMockLLMService("Hel", "lo")
	embedder := ai.NewMockEmbeddingService(64)
	registry := NewRegistry(DefaultRegistryConfig())
	t.Cleanup(registry.Close)
	build := StoreBuilder(st, Deps{LLM: llm, Embedder: embedder}, AgentConfig{Model: testModel})

	turns := []string{"T1", "T2", "T3", "T4"}
	for _, text := range turns {
		s, err := registry.GetOrCreate(ctx, "c1", build)
		require.NoError(t, err)
		assert.Equal(t, "Hello", send(t, s, text))
	}

	s, err := registry.GetOrCreate(ctx, "c1", build)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(s.History()), 4)
	assert.NotEmpty(t, s.Summary())

	full, err := st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, full, 8)
	for i, text := range turns {
		assert.Equal(t, store.RoleUser, full[2*i].Role)
		assert.Equal(t, text, full[2*i].Content)
		assert.Equal(t, store.RoleAssistant, full[2*i+1].Role)
		assert.Equal(t, "Hello", full[2*i+1].Content)
		assert.False(t, full[2*i+1].Partial)
	}

	working, err := st.GetWorkingHistory(ctx, "c1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(working.Messages), 4)
	assert.Equal(t, "You are helpful", working.Messages[0].Content)
	assert.Equal(t, s.Summary(), working.Summary)

	embeddings, err := st.ListEmbeddings(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, embeddings, 4)
	for i, e := range embeddings {
		assert.Equal(t, full[2*i].UID, e.MessageUID)
		assert.Len(t, e.Vector, 64)
		assert.Equal(t, "mock-embed", e.Model)
	}

	// A rebuilt session picks up where the evicted one stopped.
	require.True(t, registry.Remove("c1"))
	rebuilt, err := registry.GetOrCreate(ctx, "c1", build)
	require.NoError(t, err)
	assert.NotSame(t, s, rebuilt)
	assert.Equal(t, s.History(), rebuilt.History())
	assert.Equal(t, s.Summary(), rebuilt.Summary())
	assert.Equal(t, StateActive, rebuilt.State())
}

func TestSession_RelevantContext(t *testing.T) {
	ctx := context.Background()
	st := newJSONStore(t)
	createConversation(t, st, "c1", 4)

	llm := ai.NewMockLLMService("ok")
	s, err := StoreBuilder(st, Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(64)}, AgentConfig{})(ctx, "c1")
	require.NoError(t, err)

	send(t, s, "golang channels")
	send(t, s, "what is the weather")
	send(t, s, "golang channels")

	prompt := llm.LastStreamCall()[len(llm.LastStreamCall())-1].Content
	assert.True(t, strings.HasPrefix(prompt, "golang channels\n\n"), prompt)
	assert.Contains(t, prompt, "Relevant context of the previous conversation:\ngolang channels")
	assert.True(t, strings.HasSuffix(prompt, "Summary of the conversation:\nsummary"), prompt)

	// Full history keeps the raw text, the working history what the model saw.
	full, err := st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "golang channels", full[4].Content)
	history := s.History()
	assert.Equal(t, prompt, history[len(history)-2].Content)
}

func TestSession_EmbeddingFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	st := newJSONStore(t)
	createConversation(t, st, "c1", 10)

	llm := ai.NewMockLLMService("never")
	embedder := ai.NewMockEmbeddingService(32)
	s, err := StoreBuilder(st, Deps{LLM: llm, Embedder: embedder}, AgentConfig{})(ctx, "c1")
	require.NoError(t, err)
	send(t, s, "first")
	before := s.History()

	embedder.Err = errors.New("connection refused")
	reply, err := drain(s.HandleTurn(ctx, "second"))
	require.Error(t, err)
	assert.True(t, ai.IsTransportError(err))
	assert.Empty(t, reply)

	assert.Equal(t, before, s.History())
	assert.Len(t, llm.StreamCalls, 1)
	full, err := st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, full, 2)
	embeddings, err := st.ListEmbeddings(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, embeddings, 1)
	assert.False(t, s.Busy())
}

func TestSession_PersistenceErrorsPropagate(t *testing.T) {
	st := newJSONStore(t)
	llm := ai.NewMockLLMService("never")

	s, err := NewSession("missing", testConfig(10), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32), Store: st}, nil)
	require.NoError(t, err)

	_, err = drain(s.HandleTurn(context.Background(), "hello"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, llm.StreamCalls)
	assert.Len(t, s.History(), 1)
}

func TestSession_StreamFailureWithoutReply(t *testing.T) {
	ctx := context.Background()
	st := newJSONStore(t)
	createConversation(t, st, "c1", 10)

	llm := ai.NewMockLLMService()
	llm.StreamErr = errors.New("model not found")
	s, err := StoreBuilder(st, Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, AgentConfig{})(ctx, "c1")
	require.NoError(t, err)

	_, err = drain(s.HandleTurn(ctx, "hello"))
	require.Error(t, err)
	assert.True(t, ai.IsTransportError(err))
	assert.Len(t, s.History(), 1)
	assert.Equal(t, StateFresh, s.State())

	full, err := st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, full)

	// The stray embedding is ignored by the next turn.
	llm.StreamErr = nil
	llm.StreamChunks = []string{"hi"}
	send(t, s, "hello")
	full, err = st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, full, 2)
}

// stallingLLM streams its chunks, then blocks until the stream is cancelled.
type stallingLLM struct {
	*ai.MockLLMService
}

func (l stallingLLM) ChatStream(ctx context.Context, _ string, _ []ai.Message, _ ai.GenerationOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		defer close(contentChan)
		for _, chunk := range l.StreamChunks {
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
		<-ctx.Done()
		errChan <- ctx.Err()
	}()
	return contentChan, errChan
}

func TestSession_CancelKeepsPartialReply(t *testing.T) {
	st := newJSONStore(t)
	createConversation(t, st, "c1", 10)

	llm := stallingLLM{ai.NewMockLLMService("partial ")}
	s, err := StoreBuilder(st, Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, AgentConfig{})(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	content, errs := s.HandleTurn(ctx, "tell me a story")
	assert.Equal(t, "partial ", <-content)
	cancel()
	_, err = drain(content, errs)
	require.ErrorIs(t, err, context.Canceled)

	full, err := st.ListFullHistory(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, "tell me a story", full[0].Content)
	assert.Equal(t, "partial ", full[1].Content)
	assert.True(t, full[1].Partial)

	working, err := st.GetWorkingHistory(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, working.Messages, 3)
	assert.True(t, working.Messages[2].Partial)
	assert.False(t, s.Busy())
	assert.Equal(t, StateActive, s.State())
}

func TestSession_IdleStreamKeepsPartialReply(t *testing.T) {
	st := newJSONStore(t)
	createConversation(t, st, "c1", 10)

	llm := stallingLLM{ai.NewMockLLMService("slow ", "start")}
	s, err := StoreBuilder(st, Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, AgentConfig{})(context.Background(), "c1")
	require.NoError(t, err)
	s.streamIdle = 50 * time.Millisecond

	reply, err := drain(s.HandleTurn(context.Background(), "tell me a story"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "no output from")
	assert.Equal(t, "slow start", reply)

	full, err := st.ListFullHistory(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, "slow start", full[1].Content)
	assert.True(t, full[1].Partial)
	assert.False(t, s.Busy())
}

// slowLLM sends each chunk after a pause shorter than the idle limit.
type slowLLM struct {
	*ai.MockLLMService
	pause time.Duration
}

func (l slowLLM) ChatStream(ctx context.Context, _ string, _ []ai.Message, _ ai.GenerationOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		defer close(contentChan)
		for _, chunk := range l.StreamChunks {
			select {
			case <-time.After(l.pause):
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()
	return contentChan, errChan
}

func TestSession_SteadyStreamOutlivesIdleLimit(t *testing.T) {
	llm := slowLLM{MockLLMService: ai.NewMockLLMService("a", "b", "c", "d", "e", "f"), pause: 40 * time.Millisecond}
	s, err := NewSession("", testConfig(10), Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(32)}, nil)
	require.NoError(t, err)
	s.streamIdle = 150 * time.Millisecond

	// The reply takes longer than the idle limit but never pauses that long.
	assert.Equal(t, "abcdef", send(t, s, "spell it"))
	assert.Len(t, s.History(), 3)
}

func TestSession_CancelWhileWaitingForTurn(t *testing.T) {
	s, err := NewSession("", testConfig(10), Deps{LLM: ai.NewMockLLMService("x"), Embedder: ai.NewMockEmbeddingService(32)}, nil)
	require.NoError(t, err)

	s.sem <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	content, errs := s.HandleTurn(ctx, "hello")
	cancel()
	_, err = drain(content, errs)
	assert.ErrorIs(t, err, context.Canceled)
	<-s.sem
	assert.Len(t, s.History(), 1)
}

func TestSession_EmptyText(t *testing.T) {
	llm := ai.NewMockLLMService("?")
	embedder := ai.NewMockEmbeddingService(32)
	s, err := NewSession("", testConfig(10), Deps{LLM: llm, Embedder: embedder}, nil)
	require.NoError(t, err)

	send(t, s, "   ")
	assert.Zero(t, embedder.CallCount())
	assert.Equal(t, "   ", llm.LastStreamCall()[1].Content)
	assert.Len(t, s.History(), 3)
}

// countingStore fails the test on any call.
type countingStore struct {
	t *testing.T
}

func (c countingStore) fail() error {
	c.t.Errorf("ephemeral session touched the store")
	return errors.New("unexpected store call")
}

func (c countingStore) AppendEmbedding(context.Context, string, *store.Embedding) error { return c.fail() }
func (c countingStore) ListEmbeddings(context.Context, string) ([]*store.Embedding, error) {
	return nil, c.fail()
}
func (c countingStore) ListFullHistory(context.Context, string) ([]*store.Message, error) {
	return nil, c.fail()
}
func (c countingStore) AppendFullHistory(context.Context, string, []*store.Message) error {
	return c.fail()
}
func (c countingStore) ReplaceWorkingHistory(context.Context, string, *store.WorkingHistory) error {
	return c.fail()
}

func TestSession_EphemeralSkipsStore(t *testing.T) {
	s, err := NewSession("", testConfig(4), Deps{
		LLM:      ai.NewMockLLMService("ok"),
		Embedder: ai.NewMockEmbeddingService(32),
		Store:    countingStore{t: t},
	}, nil)
	require.NoError(t, err)

	for i := range 4 {
		send(t, s, fmt.Sprintf("message %d", i))
	}
	assert.NotEmpty(t, s.Summary())
}

func TestSession_ConcurrentTurnsAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := newJSONStore(t)
	createConversation(t, st, "c1", 50)

	s, err := StoreBuilder(st, Deps{LLM: ai.NewMockLLMService("a", "b"), Embedder: ai.NewMockEmbeddingService(32)}, AgentConfig{})(ctx, "c1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := drain(s.HandleTurn(ctx, fmt.Sprintf("question %d", i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	full, err := st.ListFullHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, full, 10)
	history := s.History()
	require.Len(t, history, 11)
	for i := 1; i < len(history); i += 2 {
		assert.Equal(t, ai.RoleUser, history[i].Role)
		assert.Equal(t, ai.RoleAssistant, history[i+1].Role)
		assert.Equal(t, "ab", history[i+1].Content)
	}
}

func TestNewSession_Validation(t *testing.T) {
	deps := Deps{LLM: ai.NewMockLLMService(), Embedder: ai.NewMockEmbeddingService(8)}

	_, err := NewSession("", AgentConfig{Model: testModel, MaxHistory: 2}, deps, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSession("c1", testConfig(10), deps, nil)
	assert.Error(t, err)

	_, err = NewSession("", testConfig(10), deps, &store.WorkingHistory{
		Messages: []*store.Message{{UID: "u", Role: store.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, store.ErrCorrupted)
}

func TestComposePrompt(t *testing.T) {
	tests := []struct {
		name     string
		relevant string
		digest   string
		want     string
	}{
		{name: "no summary", relevant: "ignored", want: "hello"},
		{name: "summary only", digest: "S", want: "hello\n\nSummary of the conversation:\nS"},
		{
			name:     "context and summary",
			relevant: "a\nb",
			digest:   "S",
			want:     "hello\n\nRelevant context of the previous conversation:\na\nb\nSummary of the conversation:\nS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, composePrompt("hello", tt.relevant, tt.digest))
		})
	}
}

func TestAlignCorpus(t *testing.T) {
	history := []*store.Message{
		{UID: "u1", Role: store.RoleUser, Content: "one"},
		{UID: "a1", Role: store.RoleAssistant, Content: "reply"},
		{UID: "u2", Role: store.RoleUser, Content: "two"},
	}
	embeddings := []*store.Embedding{
		{MessageUID: "u1", Vector: []float32{1}},
		{MessageUID: "lost", Vector: []float32{2}},
		{MessageUID: "u2", Vector: []float32{3}},
		{MessageUID: "current", Vector: []float32{4}},
	}

	vectors, texts, orphans := alignCorpus(embeddings, history, "current")
	assert.Equal(t, [][]float32{{1}, {3}}, vectors)
	assert.Equal(t, []string{"one", "two"}, texts)
	assert.Equal(t, 1, orphans)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "FRESH", StateFresh.String())
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "SUMMARIZING", StateSummarizing.String())
	assert.Equal(t, "State(9)", State(9).String())
}
