package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS card_states (
		state_key TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		conversation TEXT NOT NULL,
		state_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_card_states_updated ON card_states(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadSnapshots returns every stored snapshot.
func (s *SQLiteStore) LoadSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	query := `
		SELECT state_key, platform, conversation, state_json, version, updated_at
		FROM card_states`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query card states: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close card states rows", "error", closeErr)
		}
	}()

	var snaps []domain.Snapshot
	for rows.Next() {
		var key, stateJSON string
		var id domain.Identity
		var version int64
		var updatedAt int64

		if err := rows.Scan(&key, &id.Platform, &id.Conversation, &stateJSON, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan card state row: %w", err)
		}
		if err := id.Validate(); err != nil {
			slog.Warn("Skipping snapshot with invalid identity", "state_key", key, "error", err)
			continue
		}

		var state domain.RenderState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			slog.Warn("Skipping undecodable snapshot", "state_key", key, "error", err)
			continue
		}

		snaps = append(snaps, domain.Snapshot{
			Identity:  id,
			State:     state,
			UpdatedAt: time.UnixMilli(updatedAt),
			Version:   uint64(version),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card states: %w", err)
	}

	return snaps, nil
}

// UpsertSnapshot creates or updates a snapshot. Older versions never
// overwrite newer ones.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	query := `
	INSERT INTO card_states (state_key, platform, conversation, state_json, version, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(state_key) DO UPDATE SET
		state_json = excluded.state_json,
		version = excluded.version,
		updated_at = excluded.updated_at
	WHERE excluded.version >= card_states.version`

	return shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, "upsert_snapshot", func() error {
		_, err := s.db.ExecContext(ctx, query,
			snap.Identity.Key(), snap.Identity.Platform, snap.Identity.Conversation,
			string(stateJSON), int64(snap.Version), snap.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", snap.Identity.Key(), err)
		}
		return nil
	})
}

// DeleteSnapshot removes the snapshot for id.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, id domain.Identity) error {
	query := `DELETE FROM card_states WHERE state_key = ?`
	return shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, "delete_snapshot", func() error {
		if _, err := s.db.ExecContext(ctx, query, id.Key()); err != nil {
			return fmt.Errorf("delete snapshot %s: %w", id.Key(), err)
		}
		return nil
	})
}

// CleanupExpired removes snapshots last updated before cutoff.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	threshold := cutoff.UnixMilli()
	query := `DELETE FROM card_states WHERE updated_at < ?`
	var n int64
	err := shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, "cleanup_snapshots", func() error {
		result, err := s.db.ExecContext(ctx, query, threshold)
		if err != nil {
			return fmt.Errorf("cleanup expired snapshots: %w", err)
		}
		n, err = result.RowsAffected()
		return err
	})
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
