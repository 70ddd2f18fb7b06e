package store

import "github.com/hrygo/recall/plugin/ai"

// Conversation is a persisted chat and the agent settings it runs with.
type Conversation struct {
	UID  string
	Name string
	// AgentUID is the preset the conversation was created from, if any.
	AgentUID string

	Model        string
	SystemPrompt string
	NumAnswers   int
	Options      ai.GenerationOptions
	MaxHistory   int
	SummaryModel string

	CreatedTs int64
	UpdatedTs int64
}

type FindConversation struct {
	UID *string
}

type UpdateConversation struct {
	UID       string
	Name      *string
	UpdatedTs *int64
}

type DeleteConversation struct {
	UID string
}
