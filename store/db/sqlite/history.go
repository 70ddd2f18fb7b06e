package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

const (
	kindFull    = "FULL"
	kindWorking = "WORKING"
)

func (d *DB) AppendFullHistory(ctx context.Context, conversationUID string, messages []*store.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := conversationExists(ctx, tx, conversationUID); err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, conversationUID, kindFull, messages); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit full history")
}

func (d *DB) ListFullHistory(ctx context.Context, conversationUID string) ([]*store.Message, error) {
	if err := conversationExists(ctx, d.db, conversationUID); err != nil {
		return nil, err
	}
	return listMessages(ctx, d.db, conversationUID, kindFull)
}

func (d *DB) ReplaceWorkingHistory(ctx context.Context, conversationUID string, history *store.WorkingHistory) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := conversationExists(ctx, tx, conversationUID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_message WHERE conversation_uid = ? AND kind = ?`, conversationUID, kindWorking); err != nil {
		return errors.Wrap(err, "failed to clear working history")
	}
	if err := insertMessages(ctx, tx, conversationUID, kindWorking, history.Messages); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversation SET summary = ? WHERE uid = ?`, history.Summary, conversationUID); err != nil {
		return errors.Wrap(err, "failed to update summary")
	}
	return errors.Wrap(tx.Commit(), "failed to commit working history")
}

func (d *DB) GetWorkingHistory(ctx context.Context, conversationUID string) (*store.WorkingHistory, error) {
	history := &store.WorkingHistory{}
	err := d.db.QueryRowContext(ctx, `SELECT summary FROM conversation WHERE uid = ?`, conversationUID).Scan(&history.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "conversation %s", conversationUID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get summary")
	}

	history.Messages, err = listMessages(ctx, d.db, conversationUID, kindWorking)
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (d *DB) AppendEmbedding(ctx context.Context, conversationUID string, embedding *store.Embedding) error {
	vector, err := json.Marshal(embedding.Vector)
	if err != nil {
		return errors.Wrap(err, "failed to encode embedding")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := conversationExists(ctx, tx, conversationUID); err != nil {
		return err
	}
	stmt := `INSERT INTO message_embedding (conversation_uid, message_uid, vector, model, created_ts) VALUES (` + placeholders(5) + `)`
	if _, err := tx.ExecContext(ctx, stmt, conversationUID, embedding.MessageUID, string(vector), embedding.Model, embedding.CreatedTs); err != nil {
		return errors.Wrap(err, "failed to append embedding")
	}
	return errors.Wrap(tx.Commit(), "failed to commit embedding")
}

func (d *DB) ListEmbeddings(ctx context.Context, conversationUID string) ([]*store.Embedding, error) {
	if err := conversationExists(ctx, d.db, conversationUID); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `SELECT message_uid, vector, model, created_ts FROM message_embedding WHERE conversation_uid = ? ORDER BY id ASC`, conversationUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list embeddings")
	}
	defer rows.Close()

	list := make([]*store.Embedding, 0)
	for rows.Next() {
		e := &store.Embedding{}
		var vector string
		if err := rows.Scan(&e.MessageUID, &vector, &e.Model, &e.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding")
		}
		if err := json.Unmarshal([]byte(vector), &e.Vector); err != nil {
			return nil, errors.Wrapf(store.ErrCorrupted, "embedding of message %s: %v", e.MessageUID, err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate embeddings")
	}
	return list, nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationUID, kind string, messages []*store.Message) error {
	stmt := `INSERT INTO conversation_message (conversation_uid, kind, uid, role, content, partial, created_ts) VALUES (` + placeholders(7) + `)`
	for _, m := range messages {
		if _, err := tx.ExecContext(ctx, stmt, conversationUID, kind, m.UID, m.Role, m.Content, m.Partial, m.CreatedTs); err != nil {
			return errors.Wrapf(err, "failed to insert %s message", kind)
		}
	}
	return nil
}

func listMessages(ctx context.Context, db *sql.DB, conversationUID, kind string) ([]*store.Message, error) {
	rows, err := db.QueryContext(ctx, `SELECT uid, role, content, partial, created_ts FROM conversation_message WHERE conversation_uid = ? AND kind = ? ORDER BY id ASC`, conversationUID, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s messages", kind)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.UID, &m.Role, &m.Content, &m.Partial, &m.CreatedTs); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s message", kind)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to iterate %s messages", kind)
	}
	return list, nil
}
