// Package journal persists the escrow event stream. The engine hands events
// to a Journal synchronously under its own lock; the Journal buffers them in
// memory and drains to a durable Store on its own schedule, so the hot path
// never waits on storage.
//
// Delivery to the store is at-least-once: a failed drain keeps the batch and
// retries. Stores deduplicate on (agreement id, seq), which makes redelivery
// harmless, and Load returns the stream in replay order.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vaultflow/escrow"
)

// Store is a durable event log keyed by (agreement id, seq). Append must
// tolerate redelivery of already-stored events.
type Store interface {
	Append(ctx context.Context, events []escrow.Event) error
	Load(ctx context.Context) ([]escrow.Event, error)
}

const drainInterval = time.Second

// Journal buffers engine events and drains them to a Store.
type Journal struct {
	store Store
	log   *zap.Logger

	mu      sync.Mutex
	pending []escrow.Event

	wake chan struct{}
}

// New builds a journal over the given store. A nil logger disables logging.
func New(store Store, log *zap.Logger) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{
		store: store,
		log:   log,
		wake:  make(chan struct{}, 1),
	}
}

// Record buffers one event. It never blocks and never fails; durability is
// the drain loop's problem.
func (j *Journal) Record(ev escrow.Event) {
	j.mu.Lock()
	j.pending = append(j.pending, ev)
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of buffered, not yet durable events.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Flush writes all buffered events to the store. On failure the batch is
// requeued ahead of anything recorded in the meantime, preserving order.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := j.store.Append(ctx, batch); err != nil {
		j.mu.Lock()
		j.pending = append(batch, j.pending...)
		j.mu.Unlock()
		return fmt.Errorf("journal: flush: %w", err)
	}
	return nil
}

// Run drains the buffer until ctx is cancelled, then makes a final bounded
// attempt to flush what remains. Drain failures are logged and retried; Run
// itself only returns on shutdown.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := j.Flush(flushCtx); err != nil {
				j.log.Error("final drain failed", zap.Error(err), zap.Int("pending", j.Pending()))
				return err
			}
			return nil
		case <-j.wake:
		case <-ticker.C:
		}
		if err := j.Flush(ctx); err != nil {
			j.log.Warn("drain failed, will retry", zap.Error(err), zap.Int("pending", j.Pending()))
		}
	}
}

// Load returns the full stored stream in replay order.
func (j *Journal) Load(ctx context.Context) ([]escrow.Event, error) {
	events, err := j.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: load: %w", err)
	}
	return events, nil
}
