// Package test holds the driver conformance tests and their helpers.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/db"
)

// testDrivers lists the drivers the conformance tests run against.
// Postgres joins when POSTGRES_TEST_DSN points at a database with pgvector.
func testDrivers() []string {
	drivers := []string{"jsonfile", "sqlite"}
	if os.Getenv("POSTGRES_TEST_DSN") != "" {
		drivers = append(drivers, "postgres")
	}
	return drivers
}

// forEachDriver runs fn once per test driver, each against a fresh store.
func forEachDriver(t *testing.T, fn func(t *testing.T, ts *store.Store)) {
	t.Helper()
	for _, driver := range testDrivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			fn(t, NewTestingStore(ctx, t, driver))
		})
	}
}

// NewTestingStore opens a migrated store on a temporary location.
func NewTestingStore(ctx context.Context, t *testing.T, driver string) *store.Store {
	t.Helper()

	dir := t.TempDir()
	prof := &profile.Profile{
		Mode:   "dev",
		Data:   dir,
		Driver: driver,
	}
	switch driver {
	case "jsonfile":
		prof.DSN = filepath.Join(dir, "conversations")
	case "sqlite":
		prof.DSN = filepath.Join(dir, "recall_test.db")
	case "postgres":
		prof.DSN = os.Getenv("POSTGRES_TEST_DSN")
	}

	dbDriver, err := db.NewDBDriver(prof)
	require.NoError(t, err)

	ts := store.New(dbDriver, prof)
	if driver == "postgres" {
		resetPostgres(ctx, t, dbDriver)
	}
	require.NoError(t, ts.Migrate(ctx))
	t.Cleanup(func() {
		_ = ts.Close()
	})
	return ts
}

// resetPostgres drops the schema so each test starts from LATEST.sql.
func resetPostgres(ctx context.Context, t *testing.T, driver store.Driver) {
	t.Helper()
	sqlDriver, ok := driver.(store.SQLDriver)
	require.True(t, ok)
	_, err := sqlDriver.GetDB().ExecContext(ctx, `
		DROP TABLE IF EXISTS message_embedding, conversation_message, conversation, agent, system_setting CASCADE`)
	require.NoError(t, err)
}
