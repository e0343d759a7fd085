package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/store"
	"github.com/sourcegraph/conc/pool"
)

const retryInterval = time.Second

type persistOp struct {
	snap   domain.Snapshot
	delete bool
}

// Persister is a coalescing write-behind queue in front of a snapshot
// Repository. Only the newest version per identity is written.
type Persister struct {
	repo    store.Repository
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[domain.Identity]persistOp

	flushMu sync.Mutex
	wake    chan struct{}
}

// NewPersister creates a persister writing through repo with at most
// workers concurrent writes.
func NewPersister(repo store.Repository, workers int, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Persister{
		repo:    repo,
		workers: workers,
		logger:  logger,
		pending: make(map[domain.Identity]persistOp),
		wake:    make(chan struct{}, 1),
	}
}

// EnqueueUpsert schedules snap to be written.
func (p *Persister) EnqueueUpsert(snap domain.Snapshot) {
	p.enqueue(persistOp{snap: snap})
}

// EnqueueDelete schedules removal of the snapshot for id. version orders the
// delete against upserts for the same identity.
func (p *Persister) EnqueueDelete(id domain.Identity, version uint64) {
	p.enqueue(persistOp{snap: domain.Snapshot{Identity: id, Version: version}, delete: true})
}

func (p *Persister) enqueue(op persistOp) {
	p.mu.Lock()
	if prev, ok := p.pending[op.snap.Identity]; !ok || prev.snap.Version <= op.snap.Version {
		p.pending[op.snap.Identity] = op
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of identities waiting to be written.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run writes queued snapshots until ctx is cancelled. Call Flush afterwards
// to drain what is left.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
			if p.Pending() == 0 {
				continue
			}
		}
		if err := p.flushOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("Snapshot write failed, will retry", "error", err)
		}
	}
}

// Flush writes everything queued. It stops early when a pass makes no
// progress and returns the write errors of that pass.
func (p *Persister) Flush(ctx context.Context) error {
	for {
		before := p.Pending()
		if before == 0 {
			return nil
		}
		err := p.flushOnce(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || p.Pending() >= before {
			return err
		}
	}
}

// flushOnce takes the current batch and writes it with bounded parallelism.
// Each identity appears once per batch, so writes never race on a key.
// Failed operations are requeued unless a newer one arrived meanwhile.
func (p *Persister) flushOnce(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[domain.Identity]persistOp, len(batch))
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var failedMu sync.Mutex
	var failed []persistOp

	wp := pool.New().WithMaxGoroutines(p.workers).WithErrors().WithContext(ctx)
	for _, op := range batch {
		wp.Go(func(ctx context.Context) error {
			err := p.write(ctx, op)
			if err != nil {
				failedMu.Lock()
				failed = append(failed, op)
				failedMu.Unlock()
			}
			return err
		})
	}
	err := wp.Wait()

	for _, op := range failed {
		p.mu.Lock()
		if _, newer := p.pending[op.snap.Identity]; !newer {
			p.pending[op.snap.Identity] = op
		}
		p.mu.Unlock()
	}

	if err != nil {
		return fmt.Errorf("write %d of %d snapshots: %w", len(failed), len(batch), err)
	}
	p.logger.Debug("Snapshots written", "count", len(batch))
	return nil
}

func (p *Persister) write(ctx context.Context, op persistOp) error {
	if op.delete {
		return p.repo.DeleteSnapshot(ctx, op.snap.Identity)
	}
	return p.repo.UpsertSnapshot(ctx, op.snap)
}
