package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// jsonDocument is the on-disk layout:
//
//	{"states": {"<platform>:<conversation>": {"state": {...}, "timestamp": 1.7e9, "version": 3}},
//	 "last_updated": 1.7e9}
type jsonDocument struct {
	States      map[string]jsonRecord `json:"states"`
	LastUpdated float64               `json:"last_updated"`
}

type jsonRecord struct {
	State     json.RawMessage `json:"state"`
	Timestamp float64         `json:"timestamp"`
	Version   uint64          `json:"version,omitempty"`
}

// JSONFileStore implements Repository as a single JSON document rewritten
// atomically on every change.
type JSONFileStore struct {
	path string

	mu  sync.Mutex
	doc jsonDocument
}

// NewJSONFile opens (or creates) the snapshot file at path. A corrupt file
// is moved aside and replaced with an empty document.
func NewJSONFile(path string) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	s := &JSONFileStore{path: path, doc: jsonDocument{States: map[string]jsonRecord{}}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		backup := path + ".corrupt"
		slog.Warn("Snapshot file is corrupt, starting empty", "path", path, "backup", backup, "error", err)
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("move corrupt snapshot file: %w", renameErr)
		}
		s.doc = jsonDocument{States: map[string]jsonRecord{}}
	}
	if s.doc.States == nil {
		s.doc.States = map[string]jsonRecord{}
	}
	return s, nil
}

// LoadSnapshots returns every decodable record in the file.
func (s *JSONFileStore) LoadSnapshots(_ context.Context) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := make([]domain.Snapshot, 0, len(s.doc.States))
	for key, rec := range s.doc.States {
		id, err := domain.ParseIdentityKey(key)
		if err != nil {
			slog.Warn("Skipping snapshot with invalid key", "state_key", key, "error", err)
			continue
		}
		var state domain.RenderState
		if err := json.Unmarshal(rec.State, &state); err != nil {
			slog.Warn("Skipping undecodable snapshot", "state_key", key, "error", err)
			continue
		}
		snaps = append(snaps, domain.Snapshot{
			Identity:  id,
			State:     state,
			UpdatedAt: fromUnixFloat(rec.Timestamp),
			Version:   rec.Version,
		})
	}
	return snaps, nil
}

// UpsertSnapshot writes snap unless a newer version is already stored.
func (s *JSONFileStore) UpsertSnapshot(_ context.Context, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snap.Identity.Key()
	if prev, ok := s.doc.States[key]; ok && prev.Version > snap.Version {
		return nil
	}
	s.doc.States[key] = jsonRecord{
		State:     raw,
		Timestamp: toUnixFloat(snap.UpdatedAt),
		Version:   snap.Version,
	}
	return s.writeLocked()
}

// DeleteSnapshot removes the record for id.
func (s *JSONFileStore) DeleteSnapshot(_ context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.States[id.Key()]; !ok {
		return nil
	}
	delete(s.doc.States, id.Key())
	return s.writeLocked()
}

// CleanupExpired drops records last updated before cutoff.
func (s *JSONFileStore) CleanupExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := toUnixFloat(cutoff)
	var n int64
	for key, rec := range s.doc.States {
		if rec.Timestamp < threshold {
			delete(s.doc.States, key)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.writeLocked()
}

// Ping reports whether the snapshot directory is still reachable.
func (s *JSONFileStore) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("snapshot directory: %w", err)
	}
	return nil
}

// Close is a no-op; every change is already on disk.
func (s *JSONFileStore) Close() error { return nil }

// writeLocked replaces the file through a temp file and rename so readers
// never observe a partial document.
func (s *JSONFileStore) writeLocked() error {
	s.doc.LastUpdated = toUnixFloat(time.Now())
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func toUnixFloat(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixFloat(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
