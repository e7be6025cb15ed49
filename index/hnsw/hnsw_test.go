package hnsw

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/index/flat"
	"github.com/emberdb/ember/model"
)

func randomVector(rng *rand.Rand, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	return vec
}

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		_, err := New()
		assert.Error(t, err, "dimension must be set")
	})

	t.Run("Profiles", func(t *testing.T) {
		for _, tc := range []struct {
			profile Profile
			m       int
		}{
			{ProfileFast, 16},
			{ProfileBalanced, 32},
			{ProfileHighRecall, 48},
		} {
			idx, err := New(WithDimension(8), WithProfile(tc.profile))
			require.NoError(t, err)
			assert.Equal(t, tc.m, idx.m)
		}
	})
}

func TestDirtyFlag(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2))
	require.NoError(t, err)
	assert.False(t, idx.Dirty(), "an empty index is clean")

	doc := model.NewVectorDocument([]float32{1, 0})
	require.NoError(t, idx.Insert(ctx, doc))
	assert.True(t, idx.Dirty(), "an insert must mark the index dirty")

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.False(t, idx.Dirty(), "a search must leave the index clean")

	require.NoError(t, idx.Delete(ctx, doc.DocID))
	assert.True(t, idx.Dirty(), "a delete must mark the index dirty")

	// Deleting an absent id leaves the flag untouched.
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, model.NewDocumentID()))
	assert.False(t, idx.Dirty())
}

func TestRebuildIdempotent(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(4))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Insert(ctx, model.NewVectorDocument(randomVector(rand.New(rand.NewSource(int64(i))), 4))))
	}

	require.NoError(t, idx.Rebuild(ctx))
	assert.False(t, idx.Dirty())
	built := idx.graph

	// A second rebuild with no intervening writes must not reconstruct.
	require.NoError(t, idx.Rebuild(ctx))
	assert.Same(t, built, idx.graph)
}

func TestSearchReflectsAllWrites(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2), WithMetric(distance.MetricL2))
	require.NoError(t, err)

	a := model.NewVectorDocument([]float32{1, 0})
	require.NoError(t, idx.Insert(ctx, a))

	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.DocID, results[0].DocID)

	// A write after the first search must be visible to the next one.
	b := model.NewVectorDocument([]float32{0.9, 0})
	require.NoError(t, idx.Insert(ctx, b))

	results, err = idx.Search(ctx, []float32{0.9, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.DocID, results[0].DocID)

	// A deleted document must never appear again.
	require.NoError(t, idx.Delete(ctx, b.DocID))
	results, err = idx.Search(ctx, []float32{0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.DocID, results[0].DocID)
}

func TestSearchEmpty(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2))
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosineScaleInvariance(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMetric(distance.MetricCosine))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Insert(ctx, model.NewVectorDocument(randomVector(rng, 3))))
	}

	query := []float32{0.3, -0.7, 0.2}
	scaled := []float32{3, -7, 2}

	a, err := idx.Search(ctx, query, 5)
	require.NoError(t, err)
	b, err := idx.Search(ctx, scaled, 5)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].DocID, b[i].DocID, "cosine ranking must ignore query magnitude")
	}
}

func TestRecall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping recall measurement in short mode")
	}

	const (
		n       = 1000
		dim     = 128
		k       = 10
		queries = 50
	)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	exact, err := flat.New(flat.WithDimension(dim), flat.WithMetric(distance.MetricCosine))
	require.NoError(t, err)
	approx, err := New(WithDimension(dim), WithMetric(distance.MetricCosine), WithProfile(ProfileBalanced))
	require.NoError(t, err)

	docs := make([]model.VectorDocument, n)
	for i := range docs {
		docs[i] = model.NewVectorDocument(randomVector(rng, dim))
	}
	require.NoError(t, exact.InsertBatch(ctx, docs))
	require.NoError(t, approx.InsertBatch(ctx, docs))

	var hits, total int
	for q := 0; q < queries; q++ {
		query := randomVector(rng, dim)

		want, err := exact.Search(ctx, query, k)
		require.NoError(t, err)
		got, err := approx.Search(ctx, query, k)
		require.NoError(t, err)
		require.Len(t, got, k)

		truth := make(map[model.DocumentID]struct{}, k)
		for _, r := range want {
			truth[r.DocID] = struct{}{}
		}
		for _, r := range got {
			if _, ok := truth[r.DocID]; ok {
				hits++
			}
		}
		total += k
	}

	recall := float64(hits) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.95, "recall@10 against the exact index")
}

func TestConcurrentSearchDuringWrites(t *testing.T) {
	const (
		n   = 500
		dim = 16
	)
	ctx := context.Background()

	idx, err := New(WithDimension(dim), WithProfile(ProfileFast))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	seed := make([]model.VectorDocument, 100)
	for i := range seed {
		seed[i] = model.NewVectorDocument(randomVector(rng, dim))
	}
	require.NoError(t, idx.InsertBatch(ctx, seed))

	var wg sync.WaitGroup

	// Writers keep re-dirtying the index while searchers force rebuilds.
	wg.Add(1)
	go func() {
		defer wg.Done()
		wrng := rand.New(rand.NewSource(4))
		for i := 0; i < n; i++ {
			assert.NoError(t, idx.Insert(ctx, model.NewVectorDocument(randomVector(wrng, dim))))
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			srng := rand.New(rand.NewSource(seed))
			for i := 0; i < 100; i++ {
				results, err := idx.Search(ctx, randomVector(srng, dim), 5)
				assert.NoError(t, err)
				assert.NotEmpty(t, results)
			}
		}(int64(w))
	}

	wg.Wait()
	assert.Equal(t, 100+n, idx.Count())
}

func TestDuplicateID(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2))
	require.NoError(t, err)

	doc := model.NewVectorDocument([]float32{1, 0})
	require.NoError(t, idx.Insert(ctx, doc))

	err = idx.Insert(ctx, doc)
	var dup *index.ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 1, idx.Count())
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2))
	require.NoError(t, err)

	require.NoError(t, idx.Insert(ctx, model.NewVectorDocument([]float32{1, 0})))
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)

	require.NoError(t, idx.Clear(ctx))
	assert.Zero(t, idx.Count())
	assert.False(t, idx.Dirty())

	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2), WithMetric(distance.MetricCosine))
	require.NoError(t, err)

	doc := model.NewVectorDocument([]float32{3, 4})
	require.NoError(t, idx.Insert(ctx, doc))

	got, err := idx.Get(ctx, doc.DocID)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, got.Vector, "Get must return the original vector, not the normalized copy")

	_, err = idx.Get(ctx, model.NewDocumentID())
	assert.ErrorIs(t, err, index.ErrNotFound)
}
