// Package replication drives incremental push/pull between the local
// store and the sync server, one checkpoint per collection.
package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/syncclient"
)

const (
	defaultPullLimit = 500
	pushBatchSize    = 500
)

// Replicator syncs one collection. Pull and Push for the same
// collection never run concurrently; the mutex serializes them.
type Replicator struct {
	store      *localstore.Store
	client     *syncclient.Client
	collection string
	pullLimit  int
	logger     *slog.Logger

	mu sync.Mutex
}

// NewReplicator creates a replicator for a single collection.
func NewReplicator(store *localstore.Store, client *syncclient.Client, collection string, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{
		store:      store,
		client:     client,
		collection: collection,
		pullLimit:  defaultPullLimit,
		logger:     logger.With("collection", collection),
	}
}

// Collection returns the collection this replicator syncs.
func (r *Replicator) Collection() string {
	return r.collection
}

// Sync pushes local changes, then pulls remote ones. Push-before-pull
// means a pulled document that supersedes a local edit lands after the
// local edit had its chance to reach the server.
func (r *Replicator) Sync(ctx context.Context) error {
	if err := r.Push(ctx); err != nil {
		return err
	}
	return r.Pull(ctx)
}

// Push uploads all dirty documents in batches and clears their dirty
// flags on acceptance. Documents modified again while a push is in
// flight are re-marked dirty by the write itself, so a concurrent edit
// is never lost, only re-sent.
func (r *Replicator) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, ids, err := r.store.DirtyDocs(r.collection)
	if err != nil {
		return fmt.Errorf("load dirty documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	for start := 0; start < len(docs); start += pushBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+pushBatchSize, len(docs))

		resp, err := r.client.Push(r.collection, docs[start:end])
		if err != nil {
			r.recordError(err)
			return fmt.Errorf("push %s: %w", r.collection, err)
		}
		if !resp.Success {
			err := fmt.Errorf("push %s: server rejected batch", r.collection)
			r.recordError(err)
			return err
		}

		if err := r.store.ClearDirty(r.collection, ids[start:end]); err != nil {
			return fmt.Errorf("clear dirty flags: %w", err)
		}
		r.logger.Debug("pushed documents", "count", end-start)
	}

	return r.store.RecordSyncSuccess(r.collection)
}

// Pull downloads pages of documents newer than the stored checkpoint
// until the server reports no more, advancing the checkpoint after
// each applied page. An empty first page leaves the checkpoint alone.
func (r *Replicator) Pull(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var since *time.Time
	if cp, ok, err := r.store.Checkpoint(r.collection); err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	} else if ok {
		since = &cp
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := r.client.Pull(r.collection, since, r.pullLimit)
		if err != nil {
			r.recordError(err)
			return fmt.Errorf("pull %s: %w", r.collection, err)
		}

		if len(resp.Documents) > 0 {
			if err := r.store.ApplyRemote(r.collection, resp.Documents); err != nil {
				return fmt.Errorf("apply remote documents: %w", err)
			}
			if err := r.store.SetCheckpoint(r.collection, resp.Checkpoint.UpdatedAt); err != nil {
				return fmt.Errorf("advance checkpoint: %w", err)
			}
			cp := resp.Checkpoint.UpdatedAt
			since = &cp
			r.logger.Debug("pulled documents", "count", len(resp.Documents), "checkpoint", cp)
		}

		if !resp.HasMore {
			break
		}
	}

	return r.store.RecordSyncSuccess(r.collection)
}

func (r *Replicator) recordError(err error) {
	if rerr := r.store.RecordSyncError(r.collection, err.Error()); rerr != nil {
		r.logger.Warn("record sync error failed", "error", rerr)
	}
}
