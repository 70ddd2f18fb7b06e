package jsonfile

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

type agentRecord struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Resume    string `json:"resume"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

func (r *agentRecord) toAgent() *store.Agent {
	return &store.Agent{
		UID:       r.UID,
		Name:      r.Name,
		Resume:    r.Resume,
		Prompt:    r.Prompt,
		Model:     r.Model,
		CreatedTs: r.CreatedTs,
		UpdatedTs: r.UpdatedTs,
	}
}

// readAgents returns the stored agents; a missing file means none.
func (d *DB) readAgents() (map[string]*agentRecord, error) {
	agents := map[string]*agentRecord{}
	if err := d.readJSON(agentsFileName, &agents); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]*agentRecord{}, nil
		}
		return nil, err
	}
	return agents, nil
}

func (d *DB) CreateAgent(_ context.Context, create *store.Agent) (*store.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	agents, err := d.readAgents()
	if err != nil {
		return nil, err
	}
	if _, ok := agents[create.UID]; ok {
		return nil, errors.Errorf("agent %s already exists", create.UID)
	}

	record := &agentRecord{
		UID:       create.UID,
		Name:      create.Name,
		Resume:    create.Resume,
		Prompt:    create.Prompt,
		Model:     create.Model,
		CreatedTs: create.CreatedTs,
		UpdatedTs: create.UpdatedTs,
	}
	agents[create.UID] = record
	if err := d.writeJSON(agentsFileName, agents); err != nil {
		return nil, err
	}
	return record.toAgent(), nil
}

func (d *DB) ListAgents(_ context.Context, find *store.FindAgent) ([]*store.Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agents, err := d.readAgents()
	if err != nil {
		return nil, err
	}

	list := make([]*store.Agent, 0, len(agents))
	for uid, record := range agents {
		if find.UID != nil && *find.UID != uid {
			continue
		}
		list = append(list, record.toAgent())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].UID < list[j].UID
	})
	return list, nil
}

func (d *DB) UpdateAgent(_ context.Context, update *store.UpdateAgent) (*store.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	agents, err := d.readAgents()
	if err != nil {
		return nil, err
	}
	record, ok := agents[update.UID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "agent %s", update.UID)
	}

	if update.Name != nil {
		record.Name = *update.Name
	}
	if update.Resume != nil {
		record.Resume = *update.Resume
	}
	if update.Prompt != nil {
		record.Prompt = *update.Prompt
	}
	if update.Model != nil {
		record.Model = *update.Model
	}
	if update.UpdatedTs != nil {
		record.UpdatedTs = *update.UpdatedTs
	}

	if err := d.writeJSON(agentsFileName, agents); err != nil {
		return nil, err
	}
	return record.toAgent(), nil
}

func (d *DB) DeleteAgent(_ context.Context, del *store.DeleteAgent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	agents, err := d.readAgents()
	if err != nil {
		return err
	}
	if _, ok := agents[del.UID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "agent %s", del.UID)
	}
	delete(agents, del.UID)
	return d.writeJSON(agentsFileName, agents)
}
