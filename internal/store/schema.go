package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"

	sq "github.com/Masterminds/squirrel"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaTooNew is returned by Open for a database written by a newer
// factpane.
var ErrSchemaTooNew = errors.New("database schema is newer than supported")

// migrate applies the embedded schema and stamps a fresh database with its
// version. The schema only ever adds tables and indexes with IF NOT EXISTS,
// so an existing database at the current version needs nothing else.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	version, err := storedVersion(ctx, tx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query, args, err := sq.Insert("metadata").Columns("key", "value").
			Values("schema_version", strconv.Itoa(schemaVersion)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build schema version insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		return err
	case version > schemaVersion:
		return fmt.Errorf("%w: database is at %d, factpane supports %d", ErrSchemaTooNew, version, schemaVersion)
	}

	return tx.Commit()
}

func storedVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	query, args, err := sq.Select("value").From("metadata").
		Where(sq.Eq{"key": "schema_version"}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build schema version query: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, nil
}
