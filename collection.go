package ember

import (
	"context"
	"time"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
	"github.com/emberdb/ember/tier"
)

// Collection is a named set of vectors sharing one dimension and metric.
// Every read and write goes through the tier manager, so a Warm or Cold
// collection is transparently rehydrated first.
type Collection struct {
	db   *DB
	id   model.CollectionID
	info tier.CollectionInfo
}

// ID returns the collection's unique identifier.
func (c *Collection) ID() model.CollectionID { return c.id }

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Dimension returns the fixed vector dimension.
func (c *Collection) Dimension() int { return c.info.Dimension }

// Metric returns the distance metric.
func (c *Collection) Metric() distance.Metric { return c.info.Metric }

// Insert adds a document.
func (c *Collection) Insert(ctx context.Context, doc model.VectorDocument) error {
	start := time.Now()

	idx, err := c.acquire(ctx)
	if err == nil {
		err = idx.Insert(ctx, doc)
	}

	c.db.opts.metricsCollector.RecordInsert(time.Since(start), err)
	c.db.opts.logger.LogInsert(ctx, c.info.Name, doc.Dimension(), err)
	return translateError(err)
}

// InsertBatch adds multiple documents atomically: either the whole batch is
// stored or none of it.
func (c *Collection) InsertBatch(ctx context.Context, docs []model.VectorDocument) error {
	start := time.Now()

	idx, err := c.acquire(ctx)
	if err == nil {
		err = idx.InsertBatch(ctx, docs)
	}

	c.db.opts.metricsCollector.RecordBatchInsert(len(docs), time.Since(start), err)
	c.db.opts.logger.LogBatchInsert(ctx, c.info.Name, len(docs), err)
	return translateError(err)
}

// Search returns the k nearest documents to the query vector, best first.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]model.SearchResult, error) {
	start := time.Now()

	var results []model.SearchResult
	idx, err := c.acquire(ctx)
	if err == nil {
		results, err = idx.Search(ctx, query, k)
	}

	c.db.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	c.db.opts.logger.LogSearch(ctx, c.info.Name, k, len(results), err)
	return results, translateError(err)
}

// Delete removes a document. Deleting an absent id is a no-op.
func (c *Collection) Delete(ctx context.Context, id model.DocumentID) error {
	start := time.Now()

	idx, err := c.acquire(ctx)
	if err == nil {
		err = idx.Delete(ctx, id)
	}

	c.db.opts.metricsCollector.RecordDelete(time.Since(start), err)
	c.db.opts.logger.LogDelete(ctx, c.info.Name, err)
	return translateError(err)
}

// Get returns a stored document by id, or ErrNotFound.
func (c *Collection) Get(ctx context.Context, id model.DocumentID) (model.VectorDocument, error) {
	idx, err := c.acquire(ctx)
	if err != nil {
		return model.VectorDocument{}, translateError(err)
	}
	doc, err := idx.Get(ctx, id)
	return doc, translateError(err)
}

// Count returns the number of stored documents. Counting a Warm or Cold
// collection rehydrates it.
func (c *Collection) Count(ctx context.Context) (int, error) {
	idx, err := c.acquire(ctx)
	if err != nil {
		return 0, translateError(err)
	}
	return idx.Count(), nil
}

// Clear removes all documents.
func (c *Collection) Clear(ctx context.Context) error {
	idx, err := c.acquire(ctx)
	if err != nil {
		return translateError(err)
	}
	return translateError(idx.Clear(ctx))
}

// Pin exempts the collection from demotion until Unpin.
func (c *Collection) Pin(ctx context.Context) error {
	return c.db.manager.Pin(ctx, c.id)
}

// Unpin re-enables demotion.
func (c *Collection) Unpin(ctx context.Context) error {
	return c.db.manager.Unpin(ctx, c.id)
}

// Promote forces the collection into memory now rather than on first
// access.
func (c *Collection) Promote(ctx context.Context) error {
	return c.db.manager.Promote(ctx, c.id)
}

// PromoteToWarm stages a Cold collection's snapshot back on the warm store
// without loading it into memory. A no-op for Hot and Warm collections.
func (c *Collection) PromoteToWarm(ctx context.Context) error {
	return c.db.manager.PromoteToWarm(ctx, c.id)
}

// Demote moves the collection one tier down: Hot to Warm, or Warm to Cold.
func (c *Collection) Demote(ctx context.Context) error {
	return c.db.manager.Demote(ctx, c.id)
}

// State returns the collection's current tier state.
func (c *Collection) State() (tier.State, error) {
	return c.db.manager.State(c.id)
}

func (c *Collection) acquire(ctx context.Context) (index.Index, error) {
	c.db.mu.RLock()
	closed := c.db.closed
	c.db.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return c.db.manager.Acquire(ctx, c.id)
}
