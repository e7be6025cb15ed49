package ember

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/distance"
	"github.com/emberdb/ember/index"
	"github.com/emberdb/ember/model"
	"github.com/emberdb/ember/tier"
)

func newTestDB(t *testing.T, optFns ...Option) *DB {
	t.Helper()

	db, err := New(append([]Option{WithoutScheduler()}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	col, err := db.CreateCollection(ctx, "articles", 4)
	require.NoError(t, err)
	assert.Equal(t, "articles", col.Name())
	assert.Equal(t, 4, col.Dimension())
	assert.Equal(t, distance.MetricCosine, col.Metric())

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := db.CreateCollection(ctx, "articles", 4)
		assert.ErrorIs(t, err, ErrCollectionExists)
	})

	t.Run("Lookup", func(t *testing.T) {
		got, err := db.Collection("articles")
		require.NoError(t, err)
		assert.Equal(t, col.ID(), got.ID())

		_, err = db.Collection("missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	t.Run("Names", func(t *testing.T) {
		assert.Contains(t, db.Collections(), "articles")
	})
}

func TestInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	col, err := db.CreateCollection(ctx, "vectors", 2, WithMetric(distance.MetricL2), WithIndexKind(index.KindFlat))
	require.NoError(t, err)

	near := model.NewVectorDocument([]float32{1, 0})
	far := model.NewVectorDocument([]float32{5, 5})
	require.NoError(t, col.Insert(ctx, near))
	require.NoError(t, col.Insert(ctx, far))

	results, err := col.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.DocID, results[0].DocID)

	t.Run("Get", func(t *testing.T) {
		doc, err := col.Get(ctx, near.DocID)
		require.NoError(t, err)
		assert.Equal(t, near.DocID, doc.DocID)

		_, err = col.Get(ctx, model.NewDocumentID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, col.Delete(ctx, far.DocID))
		count, err := col.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		// Idempotent.
		require.NoError(t, col.Delete(ctx, far.DocID))
	})
}

func TestErrorTranslation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	col, err := db.CreateCollection(ctx, "vectors", 2)
	require.NoError(t, err)

	doc := model.NewVectorDocument([]float32{1, 0})
	require.NoError(t, col.Insert(ctx, doc))

	t.Run("DuplicateID", func(t *testing.T) {
		err := col.Insert(ctx, doc)
		var dup *ErrDuplicateID
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, doc.DocID.String(), dup.ID)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := col.Insert(ctx, model.NewVectorDocument([]float32{1, 2, 3}))
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := col.Search(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestSearchAcrossTiers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, WithDataDir(t.TempDir()))

	col, err := db.CreateCollection(ctx, "tiered", 8, WithMetric(distance.MetricL2))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	docs := make([]model.VectorDocument, 50)
	for i := range docs {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		docs[i] = model.NewVectorDocument(vec)
	}
	require.NoError(t, col.InsertBatch(ctx, docs))

	baseline, err := col.Search(ctx, docs[0].Vector, 5)
	require.NoError(t, err)

	// Demote to Warm, then all the way to Cold; every search must still
	// return identical results after rehydration.
	require.NoError(t, col.Demote(ctx))
	state, err := col.State()
	require.NoError(t, err)
	assert.Equal(t, tier.TierWarm, state.Tier)

	fromWarm, err := col.Search(ctx, docs[0].Vector, 5)
	require.NoError(t, err)
	assert.Equal(t, baseline, fromWarm)

	require.NoError(t, col.Demote(ctx)) // back to warm first
	require.NoError(t, col.Demote(ctx))
	state, err = col.State()
	require.NoError(t, err)
	assert.Equal(t, tier.TierCold, state.Tier)

	fromCold, err := col.Search(ctx, docs[0].Vector, 5)
	require.NoError(t, err)
	assert.Equal(t, baseline, fromCold)

	state, err = col.State()
	require.NoError(t, err)
	assert.Equal(t, tier.TierHot, state.Tier)

	// Stage the snapshot back on warm storage without loading it, then
	// serve again.
	require.NoError(t, col.Demote(ctx))
	require.NoError(t, col.Demote(ctx))
	require.NoError(t, col.PromoteToWarm(ctx))
	state, err = col.State()
	require.NoError(t, err)
	assert.Equal(t, tier.TierWarm, state.Tier)

	fromThawed, err := col.Search(ctx, docs[0].Vector, 5)
	require.NoError(t, err)
	assert.Equal(t, baseline, fromThawed)
}

func TestPinnedCollection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	col, err := db.CreateCollection(ctx, "pinned", 2)
	require.NoError(t, err)
	require.NoError(t, col.Insert(ctx, model.NewVectorDocument([]float32{1, 0})))

	require.NoError(t, col.Pin(ctx))
	err = col.Demote(ctx)
	var pinned *tier.ErrPinned
	require.ErrorAs(t, err, &pinned)

	require.NoError(t, col.Unpin(ctx))
	require.NoError(t, col.Demote(ctx))
}

func TestDropCollection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateCollection(ctx, "doomed", 2)
	require.NoError(t, err)

	require.NoError(t, db.DropCollection(ctx, "doomed"))
	_, err = db.Collection("doomed")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	assert.ErrorIs(t, db.DropCollection(ctx, "doomed"), ErrCollectionNotFound)
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	db, err := New(WithoutScheduler())
	require.NoError(t, err)

	col, err := db.CreateCollection(ctx, "vectors", 2)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close()) // idempotent

	assert.ErrorIs(t, col.Insert(ctx, model.NewVectorDocument([]float32{1, 0})), ErrClosed)
	_, err = db.CreateCollection(ctx, "more", 2)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	db := newTestDB(t, WithMetricsCollector(metrics))

	col, err := db.CreateCollection(ctx, "metered", 2)
	require.NoError(t, err)

	require.NoError(t, col.Insert(ctx, model.NewVectorDocument([]float32{1, 0})))
	_, err = col.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	_, _ = col.Search(ctx, []float32{1, 0}, 0) // invalid k

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
}

func TestSchedulerIntegration(t *testing.T) {
	ctx := context.Background()

	policy := tier.Policy{
		HotTTL:             10 * time.Millisecond,
		WarmTTL:            time.Hour,
		PromotionThreshold: 5,
		AccessWindow:       time.Hour,
		SchedulerInterval:  time.Hour,
	}
	db := newTestDB(t, WithTierPolicy(policy), WithDataDir(t.TempDir()))

	col, err := db.CreateCollection(ctx, "idle", 2)
	require.NoError(t, err)
	require.NoError(t, col.Insert(ctx, model.NewVectorDocument([]float32{1, 0})))

	time.Sleep(20 * time.Millisecond)
	db.RunSchedulerCycle(ctx)

	state, err := col.State()
	require.NoError(t, err)
	assert.Equal(t, tier.TierWarm, state.Tier)

	// First search after demotion transparently rehydrates.
	results, err := col.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
