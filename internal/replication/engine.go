package replication

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/syncclient"
)

// Engine runs one replicator per collection on a shared interval.
type Engine struct {
	store       *localstore.Store
	client      *syncclient.Client
	replicators []*Replicator
	interval    time.Duration
	logger      *slog.Logger
}

// NewEngine creates replicators for every known collection.
func NewEngine(store *localstore.Store, client *syncclient.Client, interval time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		client:   client,
		interval: interval,
		logger:   logger,
	}
	for _, c := range models.Collections {
		e.replicators = append(e.replicators, NewReplicator(store, client, c, logger))
	}
	return e
}

// Replicator returns the replicator for one collection, or nil.
func (e *Engine) Replicator(collection string) *Replicator {
	for _, r := range e.replicators {
		if r.collection == collection {
			return r
		}
	}
	return nil
}

// SyncAll runs a full push+pull cycle for every collection. Errors are
// collected so one failing collection does not stop the others.
func (e *Engine) SyncAll(ctx context.Context) error {
	var errs []error
	for _, r := range e.replicators {
		if err := r.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("sync failed", "collection", r.collection, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run syncs every collection on a ticker until the context is
// canceled. One goroutine per collection so a slow pull in one does
// not delay the rest.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range e.replicators {
		wg.Add(1)
		go func(r *Replicator) {
			defer wg.Done()
			e.runOne(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (e *Engine) runOne(ctx context.Context, r *Replicator) {
	// Initial sync right away, then on interval.
	if err := r.Sync(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("sync failed", "collection", r.collection, "error", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("sync failed", "collection", r.collection, "error", err)
			}
		}
	}
}

// Status reports per-collection sync state from the local store.
func (e *Engine) Status() ([]localstore.SyncStatus, error) {
	statuses := make([]localstore.SyncStatus, 0, len(e.replicators))
	for _, r := range e.replicators {
		st, err := e.store.SyncStatus(r.collection)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}
