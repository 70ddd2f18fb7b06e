package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

const agentColumns = "uid, name, resume, prompt, model, created_ts, updated_ts"

func (d *DB) CreateAgent(ctx context.Context, create *store.Agent) (*store.Agent, error) {
	stmt := `INSERT INTO agent (` + agentColumns + `) VALUES (` + placeholders(7) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.Name, create.Resume, create.Prompt, create.Model, create.CreatedTs, create.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create agent")
	}
	return create, nil
}

func (d *DB) ListAgents(ctx context.Context, find *store.FindAgent) ([]*store.Agent, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agent WHERE `+strings.Join(where, " AND ")+` ORDER BY created_ts ASC, uid ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agents")
	}
	defer rows.Close()

	list := make([]*store.Agent, 0)
	for rows.Next() {
		a := &store.Agent{}
		if err := rows.Scan(&a.UID, &a.Name, &a.Resume, &a.Prompt, &a.Model, &a.CreatedTs, &a.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan agent")
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate agents")
	}
	return list, nil
}

func (d *DB) UpdateAgent(ctx context.Context, update *store.UpdateAgent) (*store.Agent, error) {
	set, args := []string{}, []any{}
	if update.Name != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *update.Name)
	}
	if update.Resume != nil {
		set, args = append(set, "resume = "+placeholder(len(args)+1)), append(args, *update.Resume)
	}
	if update.Prompt != nil {
		set, args = append(set, "prompt = "+placeholder(len(args)+1)), append(args, *update.Prompt)
	}
	if update.Model != nil {
		set, args = append(set, "model = "+placeholder(len(args)+1)), append(args, *update.Model)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, store.ErrNotUpdated
	}

	args = append(args, update.UID)
	stmt := `UPDATE agent SET ` + strings.Join(set, ", ") + ` WHERE uid = ` + placeholder(len(args)) + ` RETURNING ` + agentColumns
	a := &store.Agent{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&a.UID, &a.Name, &a.Resume, &a.Prompt, &a.Model, &a.CreatedTs, &a.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "agent %s", update.UID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update agent")
	}
	return a, nil
}

func (d *DB) DeleteAgent(ctx context.Context, delete *store.DeleteAgent) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM agent WHERE uid = `+placeholder(1), delete.UID)
	if err != nil {
		return errors.Wrap(err, "failed to delete agent")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "agent %s", delete.UID)
	}
	return nil
}
