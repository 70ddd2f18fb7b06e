package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/recall/internal/util"
	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/retrieval"
	"github.com/hrygo/recall/plugin/ai/summary"
	"github.com/hrygo/recall/plugin/ai/timeout"
	"github.com/hrygo/recall/store"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateFresh holds only the system prompt.
	StateFresh State = iota
	// StateActive has completed at least one turn.
	StateActive
	// StateSummarizing is folding the working history into a summary.
	StateSummarizing
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "FRESH"
	case StateActive:
		return "ACTIVE"
	case StateSummarizing:
		return "SUMMARIZING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Prompt fragments added around user text once a summary exists.
const (
	SummaryPrefix = "Summary of the previous conversation:\n"
	contextHeader = "Relevant context of the previous conversation:\n"
	summaryHeader = "Summary of the conversation:\n"
)

// Persistence is the part of the store a session reads and writes.
type Persistence interface {
	AppendEmbedding(ctx context.Context, conversationUID string, embedding *store.Embedding) error
	ListEmbeddings(ctx context.Context, conversationUID string) ([]*store.Embedding, error)
	ListFullHistory(ctx context.Context, conversationUID string) ([]*store.Message, error)
	AppendFullHistory(ctx context.Context, conversationUID string, messages []*store.Message) error
	ReplaceWorkingHistory(ctx context.Context, conversationUID string, history *store.WorkingHistory) error
}

// Deps are the collaborators a session runs against.
type Deps struct {
	LLM      ai.LLMService
	Embedder ai.EmbeddingService
	// Store may be nil for ephemeral sessions.
	Store     Persistence
	Metrics   *AgentMetrics
	Retrieval retrieval.Options
}

// Session is the memory of one conversation.
// Turns on a session are serialized; different sessions run in parallel.
type Session struct {
	id         string
	cfg        AgentConfig
	llm        ai.LLMService
	embedder   ai.EmbeddingService
	summarizer *summary.Summarizer
	store      Persistence
	metrics    *AgentMetrics
	retrieval  retrieval.Options
	logger     *slog.Logger
	streamIdle time.Duration

	// sem admits one turn at a time and is held while the reply streams.
	sem chan struct{}
	// leases counts registry callers holding the session; see Release.
	leases atomic.Int32

	mu      sync.RWMutex
	state   State
	working []*store.Message
	summary string
}

// NewSession builds a session. An empty id makes the session ephemeral:
// nothing is read from or written to the store.
// restored is the persisted working history, or nil for a new conversation.
func NewSession(id string, cfg AgentConfig, deps Deps, restored *store.WorkingHistory) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.LLM == nil || deps.Embedder == nil {
		return nil, errors.New("session requires an LLM and an embedding service")
	}
	if id != "" && deps.Store == nil {
		return nil, errors.New("persistent session requires a store")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewAgentMetrics()
	}
	if deps.Retrieval == (retrieval.Options{}) {
		deps.Retrieval = retrieval.DefaultOptions()
	}

	s := &Session{
		id:         id,
		cfg:        cfg,
		llm:        deps.LLM,
		embedder:   deps.Embedder,
		summarizer: summary.NewSummarizer(deps.LLM),
		store:      deps.Store,
		metrics:    deps.Metrics,
		retrieval:  deps.Retrieval,
		logger:     slog.Default().With("conversation_id", id),
		streamIdle: timeout.StreamIdleTimeout,
		sem:        make(chan struct{}, 1),
		state:      StateFresh,
	}

	if restored != nil && len(restored.Messages) > 0 {
		if restored.Messages[0].Role != store.RoleSystem {
			return nil, fmt.Errorf("%w: working history of %q does not start with a system message", store.ErrCorrupted, id)
		}
		s.working = append([]*store.Message(nil), restored.Messages...)
		s.summary = restored.Summary
		if len(s.working) > 1 {
			s.state = StateActive
		}
		return s, nil
	}

	s.working = []*store.Message{newMessage(store.RoleSystem, cfg.SystemPrompt)}
	return s, nil
}

// HandleTurn answers text. Reply chunks arrive on the first channel as the
// model produces them; it is unbuffered so the reader sets the pace. The
// error channel yields at most one error once the content channel is closed.
// A reader that stops early must cancel ctx.
func (s *Session) HandleTurn(ctx context.Context, text string) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(contentChan)

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			errChan <- ctx.Err()
			return
		}
		defer func() { <-s.sem }()

		if err := s.runTurn(ctx, text, contentChan); err != nil {
			errChan <- err
		}
	}()

	return contentChan, errChan
}

func (s *Session) runTurn(ctx context.Context, text string, out chan<- string) error {
	start := time.Now()
	outcome := TurnFailed
	defer func() {
		s.metrics.RecordTurn(time.Since(start), outcome)
	}()

	s.logger.Debug("turn started", "text_len", len(text))

	user := newMessage(store.RoleUser, text)
	relevant, err := s.recall(ctx, user)
	if err != nil {
		s.logger.Warn("turn aborted before model call", "error", err)
		return err
	}

	if err := s.summarizeIfFull(ctx); err != nil {
		s.logger.Warn("summarization failed", "error", err)
		return err
	}

	s.mu.Lock()
	prompt := &store.Message{
		UID:       user.UID,
		Role:      store.RoleUser,
		Content:   composePrompt(text, relevant, s.summary),
		CreatedTs: user.CreatedTs,
	}
	s.working = append(s.working, prompt)
	history := toAIMessages(s.working)
	s.mu.Unlock()

	reply, streamErr := s.stream(ctx, history, out)
	if streamErr != nil && reply == "" {
		s.mu.Lock()
		s.working = s.working[:len(s.working)-1]
		s.mu.Unlock()
		s.logger.Warn("turn failed without reply", "error", streamErr)
		return streamErr
	}

	assistant := newMessage(store.RoleAssistant, reply)
	assistant.Partial = streamErr != nil

	s.mu.Lock()
	s.working = append(s.working, assistant)
	s.state = StateActive
	snapshot := &store.WorkingHistory{
		Messages: append([]*store.Message(nil), s.working...),
		Summary:  s.summary,
	}
	s.mu.Unlock()

	if err := s.persist(ctx, user, assistant, snapshot); err != nil {
		s.logger.Error("failed to persist turn", "error", err)
		if streamErr != nil {
			return errors.Join(streamErr, err)
		}
		return err
	}

	if streamErr != nil {
		outcome = TurnPartial
		s.logger.Warn("turn ended early, partial reply kept", "reply_len", len(reply), "error", streamErr)
		return streamErr
	}

	outcome = TurnCompleted
	s.logger.Info("turn completed",
		"reply_len", len(reply),
		"working_len", len(snapshot.Messages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// recall embeds the user message, stores its vector and returns the older
// messages most similar to it. Blank text is not embedded.
func (s *Session) recall(ctx context.Context, user *store.Message) (string, error) {
	if strings.TrimSpace(user.Content) == "" {
		return "", nil
	}

	ectx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	vector, err := s.embedder.Embed(ectx, user.Content)
	cancel()
	if err != nil {
		s.metrics.RecordEmbeddingFailure()
		return "", fmt.Errorf("embed message: %w", err)
	}

	if s.Ephemeral() {
		return "", nil
	}

	if err := s.store.AppendEmbedding(ctx, s.id, &store.Embedding{
		MessageUID: user.UID,
		Vector:     vector,
		Model:      s.embedder.Model(),
		CreatedTs:  user.CreatedTs,
	}); err != nil {
		return "", err
	}

	vectors, texts, err := s.loadCorpus(ctx, user.UID)
	if err != nil {
		return "", err
	}

	relevant, err := retrieval.Retrieve(vector, vectors, texts, s.retrieval)
	if err != nil {
		if !errors.Is(err, retrieval.ErrDataInconsistency) {
			return "", err
		}
		s.metrics.RecordInconsistency()
		s.logger.Warn("retrieval corpus misaligned", "vectors", len(vectors), "messages", len(texts))
	}
	s.metrics.RecordRetrieval(relevant != "")
	return relevant, nil
}

// loadCorpus reads embeddings and full history concurrently and pairs each
// vector with the user message it was computed from.
func (s *Session) loadCorpus(ctx context.Context, currentUID string) ([][]float32, []string, error) {
	var (
		embeddings []*store.Embedding
		history    []*store.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		embeddings, err = s.store.ListEmbeddings(gctx, s.id)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.store.ListFullHistory(gctx, s.id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	vectors, texts, orphans := alignCorpus(embeddings, history, currentUID)
	if orphans > 0 {
		// Left behind by turns that failed before any reply was stored.
		s.logger.Debug("skipping embeddings without a stored message", "count", orphans)
	}
	return vectors, texts, nil
}

// alignCorpus matches embeddings to user messages by UID, in embedding order.
func alignCorpus(embeddings []*store.Embedding, history []*store.Message, skipUID string) ([][]float32, []string, int) {
	content := make(map[string]string, len(history))
	for _, m := range history {
		if m.Role == store.RoleUser {
			content[m.UID] = m.Content
		}
	}

	vectors := make([][]float32, 0, len(embeddings))
	texts := make([]string, 0, len(embeddings))
	orphans := 0
	for _, e := range embeddings {
		if e.MessageUID == skipUID {
			continue
		}
		text, ok := content[e.MessageUID]
		if !ok {
			orphans++
			continue
		}
		vectors = append(vectors, e.Vector)
		texts = append(texts, text)
	}
	return vectors, texts, orphans
}

// summarizeIfFull replaces a full working history with the system prompt,
// a summary message and the last few messages.
func (s *Session) summarizeIfFull(ctx context.Context) error {
	s.mu.Lock()
	if len(s.working) < s.cfg.MaxHistory {
		s.mu.Unlock()
		return nil
	}
	previous := s.state
	s.state = StateSummarizing
	history := toAIMessages(s.working)
	s.mu.Unlock()

	digest, err := s.summarizer.Summarize(ctx, history, s.cfg.SummaryModel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = previous
		return err
	}
	s.state = StateActive
	if digest == "" {
		return nil
	}

	k := s.cfg.carryOver()
	next := make([]*store.Message, 0, fixedSlots+k)
	next = append(next, s.working[0], newMessage(store.RoleSystem, SummaryPrefix+digest))
	next = append(next, s.working[len(s.working)-k:]...)
	s.working = next
	s.summary = digest

	s.metrics.RecordSummary()
	s.logger.Info("working history summarized", "summary_len", len(digest), "kept", k)
	return nil
}

var errStreamIdle = errors.New("chat stream went idle")

// stream forwards reply chunks to out and returns the text that reached it.
// The stream is cancelled when the model sends nothing for streamIdle; time
// spent waiting on out does not count.
func (s *Session) stream(ctx context.Context, history []ai.Message, out chan<- string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout.StreamTimeout)
	defer cancel()
	sctx, stall := context.WithCancelCause(tctx)
	defer stall(nil)

	idle := time.AfterFunc(s.streamIdle, func() { stall(errStreamIdle) })
	defer idle.Stop()

	chunks, errs := s.llm.ChatStream(sctx, s.cfg.Model, history, s.cfg.Options)

	var reply strings.Builder
	var sendErr error
	for chunk := range chunks {
		if sendErr != nil {
			continue
		}
		idle.Stop()
		select {
		case out <- chunk:
			reply.WriteString(chunk)
			idle.Reset(s.streamIdle)
		case <-ctx.Done():
			sendErr = ctx.Err()
			cancel()
		}
	}

	streamErr := <-errs
	if sendErr != nil {
		return reply.String(), sendErr
	}
	if streamErr != nil && ctx.Err() == nil && errors.Is(context.Cause(sctx), errStreamIdle) {
		return reply.String(), fmt.Errorf("no output from %s for %s: %w", s.cfg.Model, s.streamIdle, context.DeadlineExceeded)
	}
	return reply.String(), streamErr
}

// persist writes the turn on a context detached from the caller, so a
// disconnect after the last chunk still records the reply.
func (s *Session) persist(ctx context.Context, user, assistant *store.Message, working *store.WorkingHistory) error {
	if s.Ephemeral() {
		return nil
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.PersistTimeout)
	defer cancel()

	if err := s.store.AppendFullHistory(pctx, s.id, []*store.Message{user, assistant}); err != nil {
		return err
	}
	return s.store.ReplaceWorkingHistory(pctx, s.id, working)
}

// ID returns the conversation UID, or "" for an ephemeral session.
func (s *Session) ID() string {
	return s.id
}

// Ephemeral reports whether the session skips persistence.
func (s *Session) Ephemeral() bool {
	return s.id == ""
}

// Config returns the agent config the session was built with.
func (s *Session) Config() AgentConfig {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Summary returns the summary currently held, or "".
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// History returns a copy of the working history.
func (s *Session) History() []ai.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return toAIMessages(s.working)
}

// Busy reports whether a turn is in flight or a registry lease is held.
// The registry never evicts a busy session.
func (s *Session) Busy() bool {
	return s.leases.Load() > 0 || len(s.sem) > 0
}

func (s *Session) hold() {
	s.leases.Add(1)
}

// Release returns the lease taken by Registry.GetOrCreate. Call it once the
// caller is done with the session, after its last turn has finished.
// Releasing a session that holds no lease is a no-op.
func (s *Session) Release() {
	for {
		n := s.leases.Load()
		if n <= 0 || s.leases.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// composePrompt is the user message the model sees. Relevant context and the
// summary are only attached once a summary exists.
func composePrompt(text, relevant, digest string) string {
	if digest == "" {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	if relevant != "" {
		b.WriteString(contextHeader)
		b.WriteString(relevant)
		b.WriteString("\n")
	}
	b.WriteString(summaryHeader)
	b.WriteString(digest)
	return b.String()
}

func newMessage(role, content string) *store.Message {
	return &store.Message{
		UID:       util.GenUID(),
		Role:      role,
		Content:   content,
		CreatedTs: time.Now().Unix(),
	}
}

func toAIMessages(messages []*store.Message) []ai.Message {
	out := make([]ai.Message, len(messages))
	for i, m := range messages {
		out[i] = ai.Message{Role: m.Role, Content: m.Content, Partial: m.Partial}
	}
	return out
}
