// Package hnsw provides the approximate nearest-neighbor index. Writes land
// in a buffer and mark the index dirty; the proximity graph is rebuilt
// lazily, on the first search that observes the dirty flag. A search never
// reads a graph while the flag is set, so results always reflect every
// acknowledged write.
package hnsw

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
)

// Compile-time checks to ensure HNSW satisfies the index interfaces.
var (
	_ index.Index     = (*HNSW)(nil)
	_ index.Rebuilder = (*HNSW)(nil)
)

// Profile bundles graph parameters as a speed/recall trade-off.
type Profile int

const (
	// ProfileFast favors latency: M=16, efConstruction=100, efSearch=64.
	ProfileFast Profile = iota
	// ProfileBalanced is the default: M=32, efConstruction=200, efSearch=128.
	ProfileBalanced
	// ProfileHighRecall favors recall: M=48, efConstruction=400, efSearch=256.
	ProfileHighRecall
)

func (p Profile) params() (m, efConstruction, efSearch int) {
	switch p {
	case ProfileFast:
		return 16, 100, 64
	case ProfileHighRecall:
		return 48, 400, 256
	default:
		return 32, 200, 128
	}
}

// Options contains configuration options for the approximate index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	Dimension int

	// Metric selects the distance metric used for scoring.
	Metric distance.Metric

	// Profile selects the graph parameter preset. Individual parameters
	// below override the preset when set to a non-zero value.
	Profile Profile

	// M is the maximum number of connections per node per layer.
	M int

	// EfConstruction is the candidate pool size during graph construction.
	EfConstruction int

	// EfSearch is the candidate pool size during search. Larger values
	// trade latency for recall. It is clamped to at least k per query.
	EfSearch int
}

// DefaultOptions contains the default configuration options for the
// approximate index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricCosine,
	Profile:   ProfileBalanced,
}

// HNSW is an approximate nearest-neighbor index with deferred graph
// construction. Between rebuilds all writes are absorbed by the document
// buffer at map-write cost; the graph and the dirty flag only change
// together under the exclusive lock.
type HNSW struct {
	mu sync.RWMutex

	docs     map[model.DocumentID]model.VectorDocument
	prepared map[model.DocumentID][]float32 // search-ready vectors, unit length for cosine
	locals   map[model.DocumentID]uint32
	byLocal  map[uint32]model.DocumentID
	alive    *roaring.Bitmap // live local ids, iterated in sorted order at rebuild
	next     uint32

	dirty    bool
	graph    *graph
	graphIDs []model.DocumentID // graph slot -> doc id, frozen at rebuild

	scoreFn distance.Func
	opts    Options

	m, efConstruction, efSearch int
}

// New creates a new approximate index. Dimension must be set at creation
// time.
func New(optFns ...func(o *Options)) (*HNSW, error) {
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

	m, efC, efS := opts.Profile.params()
	if opts.M > 0 {
		m = opts.M
	}
	if opts.EfConstruction > 0 {
		efC = opts.EfConstruction
	}
	if opts.EfSearch > 0 {
		efS = opts.EfSearch
	}

	return &HNSW{
		docs:           make(map[model.DocumentID]model.VectorDocument),
		prepared:       make(map[model.DocumentID][]float32),
		locals:         make(map[model.DocumentID]uint32),
		byLocal:        make(map[uint32]model.DocumentID),
		alive:          roaring.New(),
		scoreFn:        scoreFn,
		opts:           opts,
		m:              m,
		efConstruction: efC,
		efSearch:       efS,
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

// WithProfile sets the graph parameter preset.
func WithProfile(p Profile) func(o *Options) {
	return func(o *Options) { o.Profile = p }
}

// WithEfSearch overrides the preset's search candidate pool size.
func WithEfSearch(ef int) func(o *Options) {
	return func(o *Options) { o.EfSearch = ef }
}

// Insert adds a document to the buffer and marks the index dirty.
func (h *HNSW) Insert(ctx context.Context, doc model.VectorDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.validate(doc); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.docs[doc.DocID]; ok {
		return &index.ErrDuplicateID{ID: doc.DocID}
	}

	h.insertLocked(doc)
	return nil
}

// InsertBatch adds multiple documents under a single exclusive section,
// marking the index dirty once. The batch is validated up front; any
// violation rejects the whole batch before the index is mutated.
func (h *HNSW) InsertBatch(ctx context.Context, docs []model.VectorDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range docs {
		if err := h.validate(docs[i]); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[model.DocumentID]struct{}, len(docs))
	for i := range docs {
		id := docs[i].DocID
		if _, ok := h.docs[id]; ok {
			return &index.ErrDuplicateID{ID: id}
		}
		if _, ok := seen[id]; ok {
			return &index.ErrDuplicateID{ID: id}
		}
		seen[id] = struct{}{}
	}

	for i := range docs {
		h.insertLocked(docs[i])
	}
	return nil
}

func (h *HNSW) insertLocked(doc model.VectorDocument) {
	doc.Vector = slices.Clone(doc.Vector)

	prepared := slices.Clone(doc.Vector)
	if h.opts.Metric == distance.MetricCosine {
		// A zero vector cannot be normalized; it is stored as-is and
		// scores 0 against everything.
		distance.NormalizeL2InPlace(prepared)
	}

	local := h.next
	h.next++

	h.docs[doc.DocID] = doc
	h.prepared[doc.DocID] = prepared
	h.locals[doc.DocID] = local
	h.byLocal[local] = doc.DocID
	h.alive.Add(local)
	h.dirty = true
}

// Search returns the approximate k nearest neighbors. The dirty flag is
// sampled under shared access; if set, the lock is released, the graph is
// rebuilt, and the sample is retried. The search itself only ever runs on a
// clean graph.
func (h *HNSW) Search(ctx context.Context, query []float32, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(query) != h.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(query)}
	}

	prepared := query
	if h.opts.Metric == distance.MetricCosine {
		prepared = slices.Clone(query)
		distance.NormalizeL2InPlace(prepared)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h.mu.RLock()
		if !h.dirty {
			defer h.mu.RUnlock()
			return h.searchGraphLocked(prepared, query, k)
		}
		h.mu.RUnlock()

		if err := h.Rebuild(ctx); err != nil {
			return nil, err
		}
	}
}

// searchGraphLocked runs the graph search. Callers hold at least the shared
// lock and have verified the dirty flag is clear.
func (h *HNSW) searchGraphLocked(prepared, query []float32, k int) ([]model.SearchResult, error) {
	if h.graph == nil || h.graph.size() == 0 {
		return []model.SearchResult{}, nil
	}

	items := h.graph.search(prepared, k, h.efSearch)

	results := make([]model.SearchResult, 0, len(items))
	for _, item := range items {
		id := h.graphIDs[item.Node]
		doc := h.docs[id]

		// Score in the public metric space, against the stored vector.
		score, err := h.scoreFn(query, doc.Vector)
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

	index.SortResults(results, h.opts.Metric)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild reconstructs the proximity graph from the current buffer and
// clears the dirty flag, both under the exclusive lock. Concurrent callers
// serialize here; whoever loses the race finds the flag already clear and
// returns without building.
func (h *HNSW) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return nil
	}

	n := int(h.alive.GetCardinality())
	g := newGraph(newGraphConfig(h.m, h.efConstruction, h.graphDist()), n)
	ids := make([]model.DocumentID, 0, n)

	it := h.alive.Iterator()
	for it.HasNext() {
		if len(ids)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		id := h.byLocal[it.Next()]
		g.add(h.prepared[id])
		ids = append(ids, id)
	}

	h.graph = g
	h.graphIDs = ids
	h.dirty = false
	return nil
}

// graphDist picks the graph's internal lower-is-better distance for the
// configured metric.
func (h *HNSW) graphDist() func(a, b []float32) float32 {
	if h.opts.Metric == distance.MetricDotProduct {
		return func(a, b []float32) float32 {
			var sum float32
			for i := range a {
				sum += a[i] * b[i]
			}
			return -sum
		}
	}
	// Squared L2 orders identically to L2, and to cosine similarity on
	// unit-length vectors.
	return func(a, b []float32) float32 {
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	}
}

// Delete removes a document and marks the index dirty. Deleting an absent id
// is an idempotent no-op and leaves the flag untouched.
func (h *HNSW) Delete(ctx context.Context, id model.DocumentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	local, ok := h.locals[id]
	if !ok {
		return nil
	}

	delete(h.docs, id)
	delete(h.prepared, id)
	delete(h.locals, id)
	delete(h.byLocal, local)
	h.alive.Remove(local)
	h.dirty = true
	return nil
}

// Get returns the stored document, or index.ErrNotFound. Lookups read the
// buffer directly and never trigger a rebuild.
func (h *HNSW) Get(ctx context.Context, id model.DocumentID) (model.VectorDocument, error) {
	if err := ctx.Err(); err != nil {
		return model.VectorDocument{}, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	doc, ok := h.docs[id]
	if !ok {
		return model.VectorDocument{}, index.ErrNotFound
	}
	doc.Vector = slices.Clone(doc.Vector)
	return doc, nil
}

// Count returns the number of stored documents, buffered writes included.
func (h *HNSW) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs)
}

// Clear removes all documents and drops the graph.
func (h *HNSW) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.docs = make(map[model.DocumentID]model.VectorDocument)
	h.prepared = make(map[model.DocumentID][]float32)
	h.locals = make(map[model.DocumentID]uint32)
	h.byLocal = make(map[uint32]model.DocumentID)
	h.alive = roaring.New()
	h.next = 0
	h.graph = nil
	h.graphIDs = nil
	h.dirty = false
	return nil
}

// Documents returns a copy of every stored document.
func (h *HNSW) Documents(ctx context.Context) ([]model.VectorDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	docs := make([]model.VectorDocument, 0, len(h.docs))
	for _, doc := range h.docs {
		doc.Vector = slices.Clone(doc.Vector)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Dimension returns the configured vector dimension.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Metric returns the configured distance metric.
func (h *HNSW) Metric() distance.Metric { return h.opts.Metric }

// Dirty reports whether buffered writes have invalidated the graph.
func (h *HNSW) Dirty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dirty
}

func (h *HNSW) validate(doc model.VectorDocument) error {
	if len(doc.Vector) == 0 {
		return index.ErrEmptyVector
	}
	if len(doc.Vector) != h.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(doc.Vector)}
	}
	for _, v := range doc.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return index.ErrInvalidVector
		}
	}
	return nil
}
