// Package jsonfile stores every conversation in its own JSON document next to
// an index.json that maps conversation UIDs to file names.
//
// Every write rewrites the affected document through a temporary file and a
// rename, so a crash never leaves a half written file behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
)

const (
	indexFileName  = "index.json"
	agentsFileName = "agents.json"
)

type DB struct {
	dir string
	// mu serializes writers; a read-modify-write spans index and document.
	mu sync.RWMutex
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required for jsonfile driver")
	}

	if err := os.MkdirAll(profile.DSN, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create conversations directory %s", profile.DSN)
	}

	d := &DB{dir: profile.DSN}
	if _, err := os.Stat(d.path(indexFileName)); errors.Is(err, os.ErrNotExist) {
		if err := d.writeJSON(indexFileName, index{}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (*DB) Close() error {
	return nil
}

func (d *DB) IsInitialized(_ context.Context) (bool, error) {
	_, err := os.Stat(d.path(indexFileName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to stat index")
	}
	return true, nil
}

func (d *DB) path(name string) string {
	return filepath.Join(d.dir, name)
}

// readJSON decodes the named file into v. A missing file is store.ErrNotFound
// and undecodable content is store.ErrCorrupted.
func (d *DB) readJSON(name string, v any) error {
	data, err := os.ReadFile(d.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(store.ErrNotFound, "file %s", name)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(store.ErrCorrupted, "%s: %v", name, err)
	}
	return nil
}

// writeJSON atomically replaces the named file with the JSON encoding of v.
func (d *DB) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", name)
	}

	tmp, err := os.CreateTemp(d.dir, "."+name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", name)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", name)
	}
	return errors.Wrapf(os.Rename(tmpName, d.path(name)), "failed to replace %s", name)
}
