// Package timeout defines centralized timeout constants for AI operations.
// Package timeout 定义 AI 操作的集中式超时常量。
package timeout

import "time"

// AI operation timeout constants.
// AI 操作超时常量。
const (
	// StreamTimeout caps a whole streamed reply from the chat model, however
	// steadily it arrives. A reply cut by it is kept as partial.
	// StreamTimeout 是 LLM 流式响应的总时长上限。
	StreamTimeout = 15 * time.Minute

	// StreamIdleTimeout bounds the wait for the next chunk of a streamed reply,
	// including the first one while the model loads.
	// StreamIdleTimeout 是等待下一个流式片段的超时时间。
	StreamIdleTimeout = 2 * time.Minute

	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// SummaryTimeout bounds a single summarization request.
	// SummaryTimeout 是摘要生成的超时时间。
	SummaryTimeout = 2 * time.Minute

	// PersistTimeout bounds a store write issued after the request context is gone.
	// PersistTimeout 是请求结束后写入存储的超时时间。
	PersistTimeout = 10 * time.Second

	// SessionLoadTimeout bounds loading a conversation from the store.
	// SessionLoadTimeout 是从存储加载会话的超时时间。
	SessionLoadTimeout = 30 * time.Second
)
