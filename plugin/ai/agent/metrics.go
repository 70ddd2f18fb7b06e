package agent

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// maxDurationSamples bounds the turn latency window.
const maxDurationSamples = 100

// TurnOutcome classifies how a turn ended.
type TurnOutcome int

const (
	TurnCompleted TurnOutcome = iota
	// TurnPartial ended mid-stream with some reply text kept.
	TurnPartial
	TurnFailed
)

// AgentMetrics collects turn metrics across all sessions.
// All operations are thread-safe for concurrent access.
type AgentMetrics struct {
	mu sync.RWMutex

	turnDuration []time.Duration // Recent turn durations

	totalTurns     atomic.Int64
	completedTurns atomic.Int64
	partialTurns   atomic.Int64
	failedTurns    atomic.Int64

	summaries      atomic.Int64
	retrievalHits  atomic.Int64
	retrievalMiss  atomic.Int64
	inconsistent   atomic.Int64
	embeddingFails atomic.Int64
}

// NewAgentMetrics creates a new metrics collector.
func NewAgentMetrics() *AgentMetrics {
	return &AgentMetrics{
		turnDuration: make([]time.Duration, 0, maxDurationSamples),
	}
}

// RecordTurn records a finished turn.
func (m *AgentMetrics) RecordTurn(duration time.Duration, outcome TurnOutcome) {
	m.totalTurns.Add(1)
	switch outcome {
	case TurnCompleted:
		m.completedTurns.Add(1)
	case TurnPartial:
		m.partialTurns.Add(1)
	case TurnFailed:
		m.failedTurns.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Keep only the last N samples
	if len(m.turnDuration) >= maxDurationSamples {
		m.turnDuration = m.turnDuration[1:]
	}
	m.turnDuration = append(m.turnDuration, duration)
}

// RecordSummary records a summarization that replaced a working history.
func (m *AgentMetrics) RecordSummary() {
	m.summaries.Add(1)
}

// RecordRetrieval records whether retrieval found any relevant context.
func (m *AgentMetrics) RecordRetrieval(found bool) {
	if found {
		m.retrievalHits.Add(1)
		return
	}
	m.retrievalMiss.Add(1)
}

// RecordInconsistency records a corpus whose embeddings and messages did not line up.
func (m *AgentMetrics) RecordInconsistency() {
	m.inconsistent.Add(1)
}

// RecordEmbeddingFailure records a turn aborted by the embedding backend.
func (m *AgentMetrics) RecordEmbeddingFailure() {
	m.embeddingFails.Add(1)
}

// GetAverageDuration returns the average turn duration.
func (m *AgentMetrics) GetAverageDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.turnDuration) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range m.turnDuration {
		sum += d
	}
	return sum / time.Duration(len(m.turnDuration))
}

// GetP95Duration returns the 95th percentile turn duration.
func (m *AgentMetrics) GetP95Duration() time.Duration {
	m.mu.RLock()
	sorted := slices.Clone(m.turnDuration)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GetSummary returns a summary of all metrics.
func (m *AgentMetrics) GetSummary() MetricsSummary {
	return MetricsSummary{
		TotalTurns:        m.totalTurns.Load(),
		CompletedTurns:    m.completedTurns.Load(),
		PartialTurns:      m.partialTurns.Load(),
		FailedTurns:       m.failedTurns.Load(),
		Summaries:         m.summaries.Load(),
		RetrievalHits:     m.retrievalHits.Load(),
		RetrievalMisses:   m.retrievalMiss.Load(),
		Inconsistencies:   m.inconsistent.Load(),
		EmbeddingFailures: m.embeddingFails.Load(),
		AverageDurationMs: m.GetAverageDuration().Milliseconds(),
		P95DurationMs:     m.GetP95Duration().Milliseconds(),
	}
}

// LogSummary logs the current metrics summary.
func (m *AgentMetrics) LogSummary() {
	summary := m.GetSummary()
	slog.Info("agent_metrics_summary",
		"total_turns", summary.TotalTurns,
		"completed_turns", summary.CompletedTurns,
		"partial_turns", summary.PartialTurns,
		"failed_turns", summary.FailedTurns,
		"summaries", summary.Summaries,
		"retrieval_hit_rate", fmtFloat(summary.RetrievalHitRate()),
		"avg_duration_ms", summary.AverageDurationMs,
		"p95_duration_ms", summary.P95DurationMs,
	)
}

// MetricsSummary represents a summary of all metrics.
type MetricsSummary struct {
	TotalTurns        int64 `json:"total_turns"`
	CompletedTurns    int64 `json:"completed_turns"`
	PartialTurns      int64 `json:"partial_turns"`
	FailedTurns       int64 `json:"failed_turns"`
	Summaries         int64 `json:"summaries"`
	RetrievalHits     int64 `json:"retrieval_hits"`
	RetrievalMisses   int64 `json:"retrieval_misses"`
	Inconsistencies   int64 `json:"inconsistencies"`
	EmbeddingFailures int64 `json:"embedding_failures"`
	AverageDurationMs int64 `json:"average_duration_ms"`
	P95DurationMs     int64 `json:"p95_duration_ms"`
}

// RetrievalHitRate returns the share of retrievals that found context, as a percentage.
func (s MetricsSummary) RetrievalHitRate() float64 {
	total := s.RetrievalHits + s.RetrievalMisses
	if total == 0 {
		return 0
	}
	return float64(s.RetrievalHits) / float64(total) * 100
}

// fmtFloat formats a float value with 2 decimal places.
func fmtFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
