package jsonfile

import (
	"context"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/store"
)

// index maps conversation UIDs to their documents.
type index map[string]indexEntry

type indexEntry struct {
	ConversationName string `json:"conversation_name"`
	FilePath         string `json:"file_path"`
}

type agentConfig struct {
	Model        string               `json:"model"`
	SystemPrompt string               `json:"system_prompt"`
	NumAnswers   int                  `json:"num_answers"`
	Options      ai.GenerationOptions `json:"options"`
	MaxHistory   int                  `json:"max_history"`
	SummaryModel string               `json:"summary_model"`
}

// conversationFile is the on-disk document of one conversation.
type conversationFile struct {
	UID              string             `json:"uid"`
	ConversationName string             `json:"conversation_name"`
	AgentUID         string             `json:"agent_uid,omitempty"`
	AgentConfig      agentConfig        `json:"agent_config"`
	MessagesHistory  []*store.Message   `json:"messages_history"`
	ResumeContext    string             `json:"resume_context"`
	FullHistory      []*store.Message   `json:"full_history"`
	Embeddings       []*store.Embedding `json:"embeddings"`
	CreatedTs        int64              `json:"created_ts"`
	UpdatedTs        int64              `json:"updated_ts"`
}

func (f *conversationFile) toConversation() *store.Conversation {
	return &store.Conversation{
		UID:          f.UID,
		Name:         f.ConversationName,
		AgentUID:     f.AgentUID,
		Model:        f.AgentConfig.Model,
		SystemPrompt: f.AgentConfig.SystemPrompt,
		NumAnswers:   f.AgentConfig.NumAnswers,
		Options:      f.AgentConfig.Options,
		MaxHistory:   f.AgentConfig.MaxHistory,
		SummaryModel: f.AgentConfig.SummaryModel,
		CreatedTs:    f.CreatedTs,
		UpdatedTs:    f.UpdatedTs,
	}
}

func conversationFileName(uid string) string {
	return uid + ".json"
}

func (d *DB) readIndex() (index, error) {
	idx := index{}
	if err := d.readJSON(indexFileName, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// load reads the document of uid. Must be called with the lock held.
func (d *DB) load(uid string) (*conversationFile, error) {
	idx, err := d.readIndex()
	if err != nil {
		return nil, err
	}
	entry, ok := idx[uid]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "conversation %s", uid)
	}
	file := &conversationFile{}
	if err := d.readJSON(entry.FilePath, file); err != nil {
		return nil, err
	}
	return file, nil
}

// update runs fn on the document of uid and writes it back.
func (d *DB) update(uid string, fn func(*conversationFile)) (*conversationFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	file, err := d.load(uid)
	if err != nil {
		return nil, err
	}
	fn(file)
	if err := d.writeJSON(conversationFileName(uid), file); err != nil {
		return nil, err
	}
	return file, nil
}

func (d *DB) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.readIndex()
	if err != nil {
		return nil, err
	}
	if _, ok := idx[create.UID]; ok {
		return nil, errors.Errorf("conversation %s already exists", create.UID)
	}

	file := &conversationFile{
		UID:              create.UID,
		ConversationName: create.Name,
		AgentUID:         create.AgentUID,
		AgentConfig: agentConfig{
			Model:        create.Model,
			SystemPrompt: create.SystemPrompt,
			NumAnswers:   create.NumAnswers,
			Options:      create.Options,
			MaxHistory:   create.MaxHistory,
			SummaryModel: create.SummaryModel,
		},
		MessagesHistory: []*store.Message{},
		FullHistory:     []*store.Message{},
		Embeddings:      []*store.Embedding{},
		CreatedTs:       create.CreatedTs,
		UpdatedTs:       create.UpdatedTs,
	}
	name := conversationFileName(create.UID)
	if err := d.writeJSON(name, file); err != nil {
		return nil, err
	}

	idx[create.UID] = indexEntry{ConversationName: create.Name, FilePath: name}
	if err := d.writeJSON(indexFileName, idx); err != nil {
		return nil, err
	}
	return file.toConversation(), nil
}

func (d *DB) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, err := d.readIndex()
	if err != nil {
		return nil, err
	}

	list := make([]*store.Conversation, 0, len(idx))
	for uid := range idx {
		if find.UID != nil && *find.UID != uid {
			continue
		}
		file, err := d.load(uid)
		if err != nil {
			return nil, err
		}
		list = append(list, file.toConversation())
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].UID < list[j].UID
	})
	return list, nil
}

func (d *DB) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.readIndex()
	if err != nil {
		return nil, err
	}
	entry, ok := idx[update.UID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "conversation %s", update.UID)
	}
	file, err := d.load(update.UID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		file.ConversationName = *update.Name
		entry.ConversationName = *update.Name
		idx[update.UID] = entry
	}
	if update.UpdatedTs != nil {
		file.UpdatedTs = *update.UpdatedTs
	}

	if err := d.writeJSON(entry.FilePath, file); err != nil {
		return nil, err
	}
	if err := d.writeJSON(indexFileName, idx); err != nil {
		return nil, err
	}
	return file.toConversation(), nil
}

func (d *DB) DeleteConversation(_ context.Context, del *store.DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.readIndex()
	if err != nil {
		return err
	}
	entry, ok := idx[del.UID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "conversation %s", del.UID)
	}

	delete(idx, del.UID)
	if err := d.writeJSON(indexFileName, idx); err != nil {
		return err
	}
	if err := os.Remove(d.path(entry.FilePath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to remove %s", entry.FilePath)
	}
	return nil
}
