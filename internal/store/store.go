// Package store provides snapshot persistence for card states.
//
// A snapshot backend is a restart-recovery cache of the in-memory state
// store. It is never read on the hot path.
package store

import (
	"context"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Repository defines the interface for persisting card state snapshots.
type Repository interface {
	// LoadSnapshots returns every stored snapshot. Records that cannot be
	// decoded are skipped with a warning.
	LoadSnapshots(ctx context.Context) ([]domain.Snapshot, error)

	// UpsertSnapshot creates or replaces the snapshot for snap.Identity.
	// A stored record with a higher version is left untouched.
	UpsertSnapshot(ctx context.Context, snap domain.Snapshot) error

	// DeleteSnapshot removes the snapshot for id. Missing records are not an error.
	DeleteSnapshot(ctx context.Context, id domain.Identity) error

	// CleanupExpired removes snapshots last updated before cutoff.
	CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Nop is a Repository that stores nothing. It backs SNAPSHOT_BACKEND=none.
type Nop struct{}

var _ Repository = Nop{}

func (Nop) LoadSnapshots(context.Context) ([]domain.Snapshot, error) { return nil, nil }
func (Nop) UpsertSnapshot(context.Context, domain.Snapshot) error { return nil }
func (Nop) DeleteSnapshot(context.Context, domain.Identity) error { return nil }
func (Nop) CleanupExpired(context.Context, time.Time) (int64, error) { return 0, nil }
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error { return nil }
