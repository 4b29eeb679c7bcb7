// Package cache persists the newest notification page and the last
// registered push token in a local SQLite database.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nerdx/nerdx-notify/internal/model"
)

// SQLiteCache stores snapshots and push tokens in SQLite.
type SQLiteCache struct {
	db *sqlx.DB
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SQLiteCache{db: db}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *SQLiteCache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveSnapshot replaces the stored snapshot for userID with records, in
// order.
func (c *SQLiteCache) SaveSnapshot(
	ctx context.Context,
	userID string,
	records []model.Recipient,
) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing snapshot for %s: %w", userID, err)
	}

	const query = `
		INSERT INTO snapshots (
			user_id, position, recipient_id, created_at, read_at, payload, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling recipient %s: %w", r.ID, err)
		}

		var readAt interface{}
		if r.ReadAt != nil {
			readAt = r.ReadAt.UTC()
		}

		_, err = stmt.ExecContext(ctx,
			userID, i, r.ID, r.CreatedAt.UTC(), readAt, string(payload), now,
		)
		if err != nil {
			return fmt.Errorf("inserting snapshot row %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns up to limit stored records for userID in saved
// order. A limit of zero or less returns all of them.
func (c *SQLiteCache) LoadSnapshot(
	ctx context.Context,
	userID string,
	limit int,
) ([]model.Recipient, error) {
	query := "SELECT payload FROM snapshots WHERE user_id = ? ORDER BY position"
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var payloads []string
	if err := c.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, fmt.Errorf("querying snapshot for %s: %w", userID, err)
	}

	records := make([]model.Recipient, 0, len(payloads))
	for _, p := range payloads {
		var r model.Recipient
		if err := json.Unmarshal([]byte(p), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot row: %w", err)
		}
		records = append(records, r)
	}

	return records, nil
}

// ClearSnapshot removes the stored snapshot for userID, e.g. on logout.
func (c *SQLiteCache) ClearSnapshot(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM snapshots WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clearing snapshot for %s: %w", userID, err)
	}
	return nil
}

// LastPushToken returns the token last registered for userID on platform,
// or an empty string.
func (c *SQLiteCache) LastPushToken(
	ctx context.Context,
	userID string,
	platform string,
) (string, error) {
	var token string
	err := c.db.GetContext(ctx, &token, `
		SELECT token FROM push_tokens
		WHERE user_id = ? AND platform = ?
		ORDER BY registered_at DESC
		LIMIT 1`,
		userID, platform,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying push token for %s: %w", userID, err)
	}
	return token, nil
}

// SavePushToken records token as the current one for userID on platform.
func (c *SQLiteCache) SavePushToken(
	ctx context.Context,
	userID string,
	platform string,
	token string,
) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM push_tokens WHERE user_id = ? AND platform = ?", userID, platform,
	); err != nil {
		return fmt.Errorf("clearing push tokens for %s: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_tokens (token, user_id, platform, registered_at)
		VALUES (?, ?, ?, ?)`,
		token, userID, platform, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("saving push token for %s: %w", userID, err)
	}

	return tx.Commit()
}
