package store

// Message roles as persisted.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message. Messages are never modified once written.
type Message struct {
	UID     string `json:"uid"`
	Role    string `json:"role"`
	Content string `json:"content"`
	// Partial marks an assistant reply whose stream ended early.
	Partial   bool  `json:"partial,omitempty"`
	CreatedTs int64 `json:"created_ts"`
}

// WorkingHistory is the bounded message window last sent to the model,
// together with the summary it carries.
type WorkingHistory struct {
	Messages []*Message `json:"messages"`
	Summary  string     `json:"summary,omitempty"`
}

// Embedding is the vector of one user message.
type Embedding struct {
	MessageUID string    `json:"message_uid"`
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	CreatedTs  int64     `json:"created_ts"`
}
