package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/agent"
	storetest "github.com/hrygo/recall/store/test"
)

func TestRepl(t *testing.T) {
	llm := ai.NewMockLLMService("Hi", " there")
	deps := agent.Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(16)}
	cfg := agent.AgentConfig{Model: "llama3.2:1b"}.WithDefaults("", "")
	session, err := agent.NewSession("", cfg, deps, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("hello\n/summary\n/exit\nnever sent\n")
	require.NoError(t, repl(context.Background(), session, in, &out))

	assert.Contains(t, out.String(), "Hi there\n")
	assert.Contains(t, out.String(), "(no summary yet)")
	assert.Len(t, llm.StreamCalls, 1)
}

func TestRepl_ReportsErrors(t *testing.T) {
	llm := ai.NewMockLLMService()
	llm.StreamErr = assert.AnError
	deps := agent.Deps{LLM: llm, Embedder: ai.NewMockEmbeddingService(16)}
	session, err := agent.NewSession("", agent.AgentConfig{Model: "m"}.WithDefaults("", ""), deps, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), session, strings.NewReader("hello\n"), &out))
	assert.Contains(t, out.String(), "error: ")
}

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t, "jsonfile")

	uid, err := createConversation(ctx, st, agent.AgentConfig{Model: "llama3.2:1b"}, "")
	require.NoError(t, err)

	conv, err := st.GetConversation(ctx, uid)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(conv.Name, "Terminal chat "))
	assert.Equal(t, "llama3.2:1b", conv.Model)
	assert.Equal(t, agent.DefaultMaxHistory, conv.MaxHistory)

	_, err = createConversation(ctx, st, agent.AgentConfig{}, "empty")
	assert.ErrorIs(t, err, agent.ErrInvalidConfig)
}
