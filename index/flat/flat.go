// Package flat provides the exact linear-scan index. It gives 100% recall
// and serves as the correctness oracle for the approximate backend.
package flat

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// Metric selects the distance metric used for scoring.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricCosine,
}

// Flat is an exact nearest-neighbor index backed by a document map.
// Reads take shared access, writes take exclusive access.
type Flat struct {
	mu      sync.RWMutex
	docs    map[model.DocumentID]model.VectorDocument
	scoreFn distance.Func
	opts    Options
}

// New creates a new flat index. Dimension must be set at creation time.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateBasicOptions(opts.Dimension, opts.Metric); err != nil {
		return nil, err
	}

	scoreFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		docs:    make(map[model.DocumentID]model.VectorDocument),
		scoreFn: scoreFn,
		opts:    opts,
	}, nil
}

// WithDimension sets the vector dimension.
func WithDimension(dim int) func(o *Options) {
	return func(o *Options) { o.Dimension = dim }
}

// WithMetric sets the distance metric.
func WithMetric(m distance.Metric) func(o *Options) {
	return func(o *Options) { o.Metric = m }
}

// Insert adds a document to the index.
func (f *Flat) Insert(ctx context.Context, doc model.VectorDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.validate(doc); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.docs[doc.DocID]; ok {
		return &index.ErrDuplicateID{ID: doc.DocID}
	}

	doc.Vector = slices.Clone(doc.Vector)
	f.docs[doc.DocID] = doc
	return nil
}

// InsertBatch adds multiple documents under a single exclusive section.
// The batch is validated up front; any violation rejects the whole batch
// before the index is mutated.
func (f *Flat) InsertBatch(ctx context.Context, docs []model.VectorDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range docs {
		if err := f.validate(docs[i]); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[model.DocumentID]struct{}, len(docs))
	for i := range docs {
		id := docs[i].DocID
		if _, ok := f.docs[id]; ok {
			return &index.ErrDuplicateID{ID: id}
		}
		if _, ok := seen[id]; ok {
			return &index.ErrDuplicateID{ID: id}
		}
		seen[id] = struct{}{}
	}

	for i := range docs {
		doc := docs[i]
		doc.Vector = slices.Clone(doc.Vector)
		f.docs[doc.DocID] = doc
	}
	return nil
}

// Search computes the score from query to every stored vector and returns
// the k best by the metric's convention, ties broken by ascending doc id.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(query) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(query)}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]model.SearchResult, 0, len(f.docs))
	for _, doc := range f.docs {
		score, err := f.scoreFn(query, doc.Vector)
		if err != nil {
			return nil, err
		}
		results = append(results, model.SearchResult{
			DocID:      doc.DocID,
			ExternalID: doc.ExternalID,
			Score:      score,
			Metadata:   doc.Metadata,
		})
	}

	index.SortResults(results, f.opts.Metric)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes a document. Deleting an absent id is an idempotent no-op;
// absence is signaled only via Get.
func (f *Flat) Delete(ctx context.Context, id model.DocumentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.docs, id)
	return nil
}

// Get returns the stored document, or index.ErrNotFound.
func (f *Flat) Get(ctx context.Context, id model.DocumentID) (model.VectorDocument, error) {
	if err := ctx.Err(); err != nil {
		return model.VectorDocument{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	doc, ok := f.docs[id]
	if !ok {
		return model.VectorDocument{}, index.ErrNotFound
	}
	doc.Vector = slices.Clone(doc.Vector)
	return doc, nil
}

// Count returns the number of stored documents.
func (f *Flat) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.docs)
}

// Clear removes all documents.
func (f *Flat) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs = make(map[model.DocumentID]model.VectorDocument)
	return nil
}

// Documents returns a copy of every stored document.
func (f *Flat) Documents(ctx context.Context) ([]model.VectorDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	docs := make([]model.VectorDocument, 0, len(f.docs))
	for _, doc := range f.docs {
		doc.Vector = slices.Clone(doc.Vector)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Dimension returns the configured vector dimension.
func (f *Flat) Dimension() int { return f.opts.Dimension }

// Metric returns the configured distance metric.
func (f *Flat) Metric() distance.Metric { return f.opts.Metric }

func (f *Flat) validate(doc model.VectorDocument) error {
	if len(doc.Vector) == 0 {
		return index.ErrEmptyVector
	}
	if len(doc.Vector) != f.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(doc.Vector)}
	}
	for _, v := range doc.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return index.ErrInvalidVector
		}
	}
	return nil
}
