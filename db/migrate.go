package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/artificer/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// Migration is one embedded schema step. Version is the numeric file prefix,
// Name the rest of the file name (001_create_artifacts.sql -> "001", "create_artifacts").
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Migrations returns the embedded schema steps in version order. Version 000
// creates the schema_migrations bookkeeping table.
func Migrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read embedded migrations")
	}
	var out []Migration
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(file, ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", file)
		}
		body, err := migrationFS.ReadFile(path.Join(migrationDir, file))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", file)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// AppliedVersions lists the versions recorded in schema_migrations, in order.
// A database that was never migrated has none.
func AppliedVersions(ctx context.Context, db *sql.DB) ([]string, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations')",
	).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	if !exists {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Migrate applies every embedded migration not yet recorded, each in its own
// transaction, and returns the versions it applied. logger may be nil.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) ([]string, error) {
	ctx := context.Background()
	steps, err := Migrations()
	if err != nil {
		return nil, err
	}
	done, err := AppliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}

	var applied []string
	for _, m := range steps {
		if seen[m.Version] {
			continue
		}
		if len(seen) == 0 && len(applied) == 0 && m.Version != "000" {
			return applied, errors.Newf("schema_migrations missing and first migration is %s_%s, not 000", m.Version, m.Name)
		}
		if err := apply(ctx, db, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
		if logger != nil {
			logger.Debugw("Applied migration", "version", m.Version, "migration", m.Name)
		}
	}

	if logger != nil && len(applied) > 0 {
		logger.Infow("Artifact schema migrated",
			"applied", applied,
			"schema_version", steps[len(steps)-1].Version)
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin migration %s", m.Version)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "migration %s_%s", m.Version, m.Name)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record migration %s", m.Version)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %s", m.Version)
}
