// Package consistency couples entity writes with the denormalized counters
// that summarize them. Every mutation here commits atomically: either the
// entity and all its counter adjustments land together, or none of them do.
package consistency

import (
	"context"
	"errors"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
)

// CounterDelta is one counter adjustment applied alongside an entity write.
type CounterDelta struct {
	Collection string
	ID         string
	Field      string
	Delta      int64
}

// Engine runs entity-plus-counter transactions against a document store.
type Engine struct {
	store   docstore.Store
	logger  *observability.StoreLogger
	metrics *observability.StoreMetrics
}

func NewEngine(store docstore.Store) *Engine {
	return &Engine{
		store:   store,
		logger:  observability.NewStoreLogger("consistency"),
		metrics: observability.NewStoreMetrics(),
	}
}

// CreateWithCounters writes doc and applies every delta in one transaction.
// An existing document with the same id is overwritten, which is what makes
// deterministic-id retries idempotent at the document level.
func (e *Engine) CreateWithCounters(ctx context.Context, collection, id string, doc docstore.Document, deltas ...CounterDelta) error {
	err := e.run(ctx, func(tx docstore.Tx) error {
		tx.Put(collection, id, doc)
		for _, d := range deltas {
			tx.Increment(d.Collection, d.ID, d.Field, d.Delta)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.LogTransaction(ctx, map[string]interface{}{
		"operation":  "create",
		"collection": collection,
		"id":         id,
		"counters":   len(deltas),
	})
	return nil
}

// DeleteWithCounters deletes the document and applies every delta in one
// transaction. When the document is already absent the whole operation is a
// no-op success: no counters move, so repeated deletes cannot drive them
// negative.
func (e *Engine) DeleteWithCounters(ctx context.Context, collection, id string, deltas ...CounterDelta) error {
	err := e.run(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(ctx, collection, id); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
		tx.Delete(collection, id)
		for _, d := range deltas {
			tx.Increment(d.Collection, d.ID, d.Field, d.Delta)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.LogTransaction(ctx, map[string]interface{}{
		"operation":  "delete",
		"collection": collection,
		"id":         id,
		"counters":   len(deltas),
	})
	return nil
}

// Run executes an arbitrary transaction body with the engine's error mapping.
func (e *Engine) Run(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return e.run(ctx, fn)
}

func (e *Engine) run(ctx context.Context, fn func(tx docstore.Tx) error) error {
	err := e.store.RunTransaction(ctx, fn)
	switch {
	case err == nil:
		e.metrics.RecordTransaction("committed")
		return nil
	case errors.Is(err, docstore.ErrConflict):
		e.metrics.RecordTransaction("conflict")
		e.logger.LogError(ctx, err, "transaction")
		return models.NewConflictError(err)
	default:
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			e.metrics.RecordTransaction("failed")
			return err
		}
		e.metrics.RecordTransaction("failed")
		e.logger.LogError(ctx, err, "transaction")
		return models.NewUnavailableError(err)
	}
}
