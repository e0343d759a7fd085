// Package state owns the in-memory map of identity to card configuration.
//
// Store is the single synchronization point for card state: every
// read-modify-write for one identity runs under that identity's lock, and
// nothing outside this package holds a pointer to a stored RenderState.
package state

import (
	"context"
	"fmt"
	"hash/maphash"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/store"
)

const shardCount = 32

type entry struct {
	mu        sync.Mutex
	present   bool
	removed   bool
	state     domain.RenderState
	updatedAt time.Time
	version   uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[domain.Identity]*entry
}

// Store maps identities to their current RenderState.
type Store struct {
	limits    domain.Limits
	ttl       time.Duration
	now       func() time.Time
	persister *Persister
	resolver  domain.Resolver
	logger    *slog.Logger

	seed    maphash.Seed
	shards  [shardCount]shard
	version atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersister enables asynchronous write-through to a snapshot backend.
func WithPersister(p *Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithResolver makes Restore keep only snapshots whose character still
// resolves, stored under its canonical name.
func WithResolver(r domain.Resolver) Option {
	return func(s *Store) { s.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store. A non-positive ttl disables expiry.
func New(limits domain.Limits, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		limits: limits,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
		seed:   maphash.MakeSeed(),
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[domain.Identity]*entry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the ranges the store clamps to.
func (s *Store) Limits() domain.Limits {
	return s.limits
}

// Get returns a copy of the state for id. Expired entries are removed and
// reported as absent.
func (s *Store) Get(_ context.Context, id domain.Identity) (domain.RenderState, bool, error) {
	if err := id.Validate(); err != nil {
		return domain.RenderState{}, false, err
	}
	e := s.lock(id, false)
	if e == nil {
		return domain.RenderState{}, false, nil
	}
	defer e.mu.Unlock()

	if !s.liveLocked(id, e) {
		return domain.RenderState{}, false, nil
	}
	return e.state, true, nil
}

// Set replaces the state for id. Numeric fields are clamped into range
// before storing.
func (s *Store) Set(_ context.Context, id domain.Identity, st domain.RenderState) error {
	if err := id.Validate(); err != nil {
		return err
	}
	st = s.limits.Clamp(st)
	if err := s.limits.Check(st); err != nil {
		return err
	}

	e := s.lock(id, true)
	snap := s.storeLocked(id, e, st)
	e.mu.Unlock()

	s.persist(snap)
	return nil
}

// GetOrCreate returns the live state for id or stores factory's result.
// Concurrent callers for the same identity all observe the single state
// that was created. created reports whether this call stored it.
func (s *Store) GetOrCreate(_ context.Context, id domain.Identity, factory func() domain.RenderState) (st domain.RenderState, created bool, err error) {
	if err := id.Validate(); err != nil {
		return domain.RenderState{}, false, err
	}

	e := s.lock(id, true)
	if e.present && !s.expiredLocked(e) {
		st = e.state
		e.mu.Unlock()
		return st, false, nil
	}

	st = s.limits.Clamp(factory())
	if err := s.limits.Check(st); err != nil {
		s.dropPlaceholderLocked(id, e)
		e.mu.Unlock()
		return domain.RenderState{}, false, fmt.Errorf("default state: %w", err)
	}
	snap := s.storeLocked(id, e, st)
	e.mu.Unlock()

	s.persist(snap)
	return st, true, nil
}

// Update applies fn to a copy of the current state for id and stores the
// result. fn runs under the identity lock and always sees the latest state;
// it must not block. If fn returns an error nothing is stored.
func (s *Store) Update(_ context.Context, id domain.Identity, fn func(*domain.RenderState) error) (domain.RenderState, error) {
	if err := id.Validate(); err != nil {
		return domain.RenderState{}, err
	}
	e := s.lock(id, false)
	if e == nil {
		return domain.RenderState{}, domain.ErrNoState
	}
	if !s.liveLocked(id, e) {
		e.mu.Unlock()
		return domain.RenderState{}, domain.ErrNoState
	}

	work := e.state
	if err := fn(&work); err != nil {
		e.mu.Unlock()
		return domain.RenderState{}, err
	}
	work = s.limits.Clamp(work)
	if err := s.limits.Check(work); err != nil {
		e.mu.Unlock()
		return domain.RenderState{}, err
	}
	snap := s.storeLocked(id, e, work)
	e.mu.Unlock()

	s.persist(snap)
	return work, nil
}

// UpdateOrCreate behaves like Update, except that an identity without a
// live state starts from factory's result instead of failing. created
// reports whether the base state came from factory.
func (s *Store) UpdateOrCreate(_ context.Context, id domain.Identity, factory func() domain.RenderState, fn func(*domain.RenderState) error) (st domain.RenderState, created bool, err error) {
	if err := id.Validate(); err != nil {
		return domain.RenderState{}, false, err
	}

	e := s.lock(id, true)
	var work domain.RenderState
	if e.present && !s.expiredLocked(e) {
		work = e.state
	} else {
		work = factory()
		created = true
	}

	if err := fn(&work); err != nil {
		s.dropPlaceholderLocked(id, e)
		e.mu.Unlock()
		return domain.RenderState{}, false, err
	}
	work = s.limits.Clamp(work)
	if err := s.limits.Check(work); err != nil {
		s.dropPlaceholderLocked(id, e)
		e.mu.Unlock()
		return domain.RenderState{}, false, err
	}
	snap := s.storeLocked(id, e, work)
	e.mu.Unlock()

	s.persist(snap)
	return work, created, nil
}

// Delete removes the state for id and reports whether one was present.
func (s *Store) Delete(_ context.Context, id domain.Identity) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	e := s.lock(id, false)
	if e == nil {
		return false, nil
	}
	defer e.mu.Unlock()

	existed := e.present && !s.expiredLocked(e)
	if e.present {
		s.removeLocked(id, e, true)
	}
	return existed, nil
}

// Len returns the number of stored states, expired ones included until
// the next Sweep.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes every expired state and returns how many were dropped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		candidates := make(map[domain.Identity]*entry, len(sh.entries))
		for id, e := range sh.entries {
			candidates[id] = e
		}
		sh.mu.Unlock()

		for id, e := range candidates {
			e.mu.Lock()
			if !e.removed && e.present && s.expiredLocked(e) {
				s.removeLocked(id, e, true)
				removed++
			}
			e.mu.Unlock()
		}
	}
	return removed
}

// Restore loads non-expired snapshots from repo. States already in memory
// win over older snapshots. Snapshots outside the configured limits are
// skipped.
func (s *Store) Restore(ctx context.Context, repo store.Repository) (int, error) {
	if repo == nil {
		return 0, nil
	}
	snaps, err := repo.LoadSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	now := s.now()
	restored := 0
	for _, snap := range snaps {
		// Skipped records stay on disk until the sweeper removes them, and
		// repositories refuse writes older than what they hold.
		s.bumpVersion(snap.Version)

		if err := snap.Identity.Validate(); err != nil {
			s.logger.Warn("Skipping snapshot", "state_key", snap.Identity.Key(), "error", err)
			continue
		}
		if s.ttl > 0 && now.Sub(snap.UpdatedAt) >= s.ttl {
			continue
		}
		if err := s.limits.Check(snap.State); err != nil {
			s.logger.Warn("Skipping out-of-range snapshot",
				"platform", snap.Identity.Platform,
				"conversation", snap.Identity.Conversation,
				"error", err)
			continue
		}
		if s.resolver != nil {
			name, ok := s.resolver.Resolve(snap.State.Character)
			if !ok {
				s.logger.Warn("Skipping snapshot with unknown character",
					"platform", snap.Identity.Platform,
					"conversation", snap.Identity.Conversation,
					"character", snap.State.Character)
				continue
			}
			snap.State.Character = name
		}

		e := s.lock(snap.Identity, true)
		if !e.present || e.version < snap.Version {
			e.present = true
			e.state = snap.State
			e.updatedAt = snap.UpdatedAt
			e.version = snap.Version
			restored++
		}
		e.mu.Unlock()
	}
	return restored, nil
}

// lock returns the entry for id with its mutex held. With create false a
// missing entry yields nil. Entries removed while we waited are skipped.
func (s *Store) lock(id domain.Identity, create bool) *entry {
	sh := s.shardFor(id)
	for {
		sh.mu.Lock()
		e, ok := sh.entries[id]
		if !ok {
			if !create {
				sh.mu.Unlock()
				return nil
			}
			e = &entry{}
			sh.entries[id] = e
		}
		sh.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// liveLocked reports whether e holds an unexpired state, removing it
// otherwise.
func (s *Store) liveLocked(id domain.Identity, e *entry) bool {
	if !e.present {
		s.dropPlaceholderLocked(id, e)
		return false
	}
	if s.expiredLocked(e) {
		s.logger.Debug("Card state expired", "platform", id.Platform, "conversation", id.Conversation)
		s.removeLocked(id, e, true)
		return false
	}
	return true
}

func (s *Store) expiredLocked(e *entry) bool {
	return s.ttl > 0 && s.now().Sub(e.updatedAt) >= s.ttl
}

func (s *Store) storeLocked(id domain.Identity, e *entry, st domain.RenderState) domain.Snapshot {
	e.present = true
	e.state = st
	e.updatedAt = s.now()
	e.version = s.version.Add(1)
	return domain.Snapshot{Identity: id, State: st, UpdatedAt: e.updatedAt, Version: e.version}
}

func (s *Store) removeLocked(id domain.Identity, e *entry, persist bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	if sh.entries[id] == e {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
	e.removed = true
	e.present = false
	if persist && s.persister != nil {
		s.persister.EnqueueDelete(id, s.version.Add(1))
	}
}

func (s *Store) dropPlaceholderLocked(id domain.Identity, e *entry) {
	if !e.present {
		s.removeLocked(id, e, false)
	}
}

func (s *Store) persist(snap domain.Snapshot) {
	if s.persister != nil {
		s.persister.EnqueueUpsert(snap)
	}
}

func (s *Store) bumpVersion(v uint64) {
	for {
		cur := s.version.Load()
		if cur >= v || s.version.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (s *Store) shardFor(id domain.Identity) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(id.Platform)
	_ = h.WriteByte(0)
	_, _ = h.WriteString(id.Conversation)
	return &s.shards[h.Sum64()%shardCount]
}
