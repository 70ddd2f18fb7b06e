package jsonfile

import (
	"context"

	"github.com/hrygo/recall/store"
)

func (d *DB) AppendFullHistory(_ context.Context, conversationUID string, messages []*store.Message) error {
	_, err := d.update(conversationUID, func(f *conversationFile) {
		f.FullHistory = append(f.FullHistory, messages...)
	})
	return err
}

func (d *DB) ListFullHistory(_ context.Context, conversationUID string) ([]*store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	file, err := d.load(conversationUID)
	if err != nil {
		return nil, err
	}
	if file.FullHistory == nil {
		return []*store.Message{}, nil
	}
	return file.FullHistory, nil
}

func (d *DB) ReplaceWorkingHistory(_ context.Context, conversationUID string, history *store.WorkingHistory) error {
	_, err := d.update(conversationUID, func(f *conversationFile) {
		f.MessagesHistory = history.Messages
		f.ResumeContext = history.Summary
	})
	return err
}

func (d *DB) GetWorkingHistory(_ context.Context, conversationUID string) (*store.WorkingHistory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	file, err := d.load(conversationUID)
	if err != nil {
		return nil, err
	}
	messages := file.MessagesHistory
	if messages == nil {
		messages = []*store.Message{}
	}
	return &store.WorkingHistory{Messages: messages, Summary: file.ResumeContext}, nil
}

func (d *DB) AppendEmbedding(_ context.Context, conversationUID string, embedding *store.Embedding) error {
	_, err := d.update(conversationUID, func(f *conversationFile) {
		f.Embeddings = append(f.Embeddings, embedding)
	})
	return err
}

func (d *DB) ListEmbeddings(_ context.Context, conversationUID string) ([]*store.Embedding, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	file, err := d.load(conversationUID)
	if err != nil {
		return nil, err
	}
	if file.Embeddings == nil {
		return []*store.Embedding{}, nil
	}
	return file.Embeddings, nil
}
