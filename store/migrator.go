package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/version"
)

// Migration files live in migration/{driver}/. A fresh database gets
// LATEST.sql; an existing one gets every migration/{driver}/{minor}/NN__description.sql
// newer than its recorded schema version. The schema version is kept in
// system_setting. File-backed drivers have no schema and skip all of this.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch version and the description in the migration file name.
	// For example, "1__create_table.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	// defaultSchemaVersion is used when schema version is empty or not set.
	defaultSchemaVersion = "0.0.0"

	schemaVersionSettingName = "schema_version"
)

// shouldApplyMigration determines if a migration file should be applied.
// It checks if the file's version is between the current DB version and target version.
func shouldApplyMigration(fileVersion, currentDBVersion, targetVersion string) bool {
	if currentDBVersion == "" {
		currentDBVersion = defaultSchemaVersion
	}
	return version.IsVersionGreaterThan(fileVersion, currentDBVersion) &&
		version.IsVersionGreaterOrEqualThan(targetVersion, fileVersion)
}

// Migrate brings the database schema to the current version.
func (s *Store) Migrate(ctx context.Context) error {
	driver, ok := s.driver.(SQLDriver)
	if !ok {
		return nil
	}

	initialized, err := driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}

	targetVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}

	if !initialized {
		filePath := s.getMigrationBasePath() + LatestSchemaFileName
		slog.Info("initializing new database with latest schema", "file", filePath)
		if err := s.applyFiles(ctx, driver.GetDB(), []string{filePath}); err != nil {
			return err
		}
		return s.updateSchemaVersion(ctx, driver.GetDB(), targetVersion)
	}

	dbVersion, err := s.getSchemaVersion(ctx, driver.GetDB())
	if err != nil {
		return errors.Wrap(err, "failed to get database schema version")
	}
	if dbVersion != "" && version.IsVersionGreaterThan(dbVersion, targetVersion) {
		slog.Error("cannot downgrade schema version",
			"databaseVersion", dbVersion,
			"currentVersion", targetVersion,
		)
		return errors.Errorf("cannot downgrade schema version from %s to %s", dbVersion, targetVersion)
	}
	if dbVersion == targetVersion {
		return nil
	}

	filePaths, err := fs.Glob(migrationFS, s.getMigrationBasePath()+"*/*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)

	var pending []string
	for _, filePath := range filePaths {
		fileVersion, err := s.getSchemaVersionOfMigrateScript(filePath)
		if err != nil {
			return err
		}
		if shouldApplyMigration(fileVersion, dbVersion, targetVersion) {
			pending = append(pending, filePath)
		}
	}

	slog.Info("start migration",
		"currentSchemaVersion", dbVersion,
		"targetSchemaVersion", targetVersion,
		"files", len(pending),
	)
	if err := s.applyFiles(ctx, driver.GetDB(), pending); err != nil {
		return err
	}
	return s.updateSchemaVersion(ctx, driver.GetDB(), targetVersion)
}

// applyFiles runs the given migration files in one transaction.
func (s *Store) applyFiles(ctx context.Context, db *sql.DB, filePaths []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	for _, filePath := range filePaths {
		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		if _, err := tx.ExecContext(ctx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		slog.Info("applied migration", "file", filePath)
	}

	return errors.Wrap(tx.Commit(), "failed to commit migration transaction")
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

// GetCurrentSchemaVersion returns the schema version this binary expects.
func (s *Store) GetCurrentSchemaVersion() (string, error) {
	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	minorVersion := version.GetMinorVersion(currentVersion)
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s%s/*.sql", s.getMigrationBasePath(), minorVersion))
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration files")
	}

	sort.Strings(filePaths)
	if len(filePaths) == 0 {
		return fmt.Sprintf("%s.0", minorVersion), nil
	}
	return s.getSchemaVersionOfMigrateScript(filePaths[len(filePaths)-1])
}

// getSchemaVersionOfMigrateScript extracts "major.minor.patch" from a path
// like migration/sqlite/0.3/01__add_column.sql.
func (s *Store) getSchemaVersionOfMigrateScript(filePath string) (string, error) {
	elements := strings.Split(filepath.ToSlash(filePath), "/")
	if len(elements) < 2 {
		return "", errors.Errorf("invalid file path: %s", filePath)
	}
	minorVersion := elements[len(elements)-2]
	rawPatchVersion := strings.Split(elements[len(elements)-1], MigrateFileNameSplit)[0]
	patchVersion, err := strconv.Atoi(rawPatchVersion)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert patch version to int: %s", rawPatchVersion)
	}
	return fmt.Sprintf("%s.%d", minorVersion, patchVersion+1), nil
}

func (s *Store) getSchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM system_setting WHERE name = "+s.placeholder(1), schemaVersionSettingName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) updateSchemaVersion(ctx context.Context, db *sql.DB, schemaVersion string) error {
	stmt := "INSERT INTO system_setting (name, value) VALUES (" + s.placeholder(1) + ", " + s.placeholder(2) + ") " +
		"ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value"
	if _, err := db.ExecContext(ctx, stmt, schemaVersionSettingName, schemaVersion); err != nil {
		return errors.Wrap(err, "failed to update current schema version")
	}
	slog.Info("schema version updated", "schemaVersion", schemaVersion)
	return nil
}

func (s *Store) placeholder(n int) string {
	if s.profile.Driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
