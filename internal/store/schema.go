package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 2

// upgrades bring a database stamped with version n-1 to version n. Fresh
// databases get the full schema and skip them.
var upgrades = map[int]string{
	2: "ALTER TABLE runs ADD COLUMN error TEXT",
}

// migrate applies the schema and stamps the database with schemaVersion.
// A database written by a newer build is refused rather than downgraded.
func migrate(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	current, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}

	switch {
	case current > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", current, schemaVersion)
	case current == 0:
		err = setMeta(ctx, tx, "created_at", formatTime(time.Now()))
		if err == nil {
			err = setMeta(ctx, tx, "schema_version", strconv.Itoa(schemaVersion))
		}
	case current < schemaVersion:
		for v := current + 1; v <= schemaVersion && err == nil; v++ {
			if stmt, ok := upgrades[v]; ok {
				if _, err = tx.ExecContext(ctx, stmt); err != nil {
					err = fmt.Errorf("upgrade schema to %d: %w", v, err)
				}
			}
		}
		if err == nil {
			err = setMeta(ctx, tx, "schema_version", strconv.Itoa(schemaVersion))
		}
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// readVersion returns 0 for a fresh database.
func readVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var value string
	err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return v, nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metadata(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
