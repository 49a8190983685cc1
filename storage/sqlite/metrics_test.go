package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRepository_IndexMetrics(t *testing.T) {
	metrics := NewMetricsRepository(openTestDB(t))
	ctx := context.Background()

	empty, err := metrics.GetIndexMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.DocumentsIndexed)

	delta := core.IndexMetrics{DocumentsIndexed: 1, ChunksIndexed: 3, EmbeddingsGenerated: 3, CharactersProcessed: 2500, TotalDuration: time.Second}
	require.NoError(t, metrics.AddIndexMetrics(ctx, delta))
	require.NoError(t, metrics.AddIndexMetrics(ctx, delta))

	got, err := metrics.GetIndexMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DocumentsIndexed)
	assert.Equal(t, int64(6), got.EmbeddingsGenerated)
	assert.Equal(t, 2*time.Second, got.TotalDuration)
	assert.False(t, got.LastUpdated.IsZero())
}

func TestMetricsRepository_ConcurrentSearches(t *testing.T) {
	metrics := NewMetricsRepository(openTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, metrics.RecordSearch(ctx, core.QueryLogEntry{Query: fmt.Sprintf("q%d", i), ResultCount: 3}))
		}(i)
	}
	wg.Wait()

	sm, err := metrics.GetSearchMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sm.TotalSearches)
	assert.Equal(t, int64(30), sm.TotalResults)
	assert.Len(t, sm.Recent, 10)
}

func TestMetricsRepository_Reset(t *testing.T) {
	db := openTestDB(t)
	metrics := NewMetricsRepository(db)
	chunks := NewChunkRepository(db)
	ctx := context.Background()

	require.NoError(t, chunks.PutChunks(ctx, makeChunk("/kb/a.md", 0, time.Now())))
	require.NoError(t, metrics.AddIndexMetrics(ctx, core.IndexMetrics{DocumentsIndexed: 1}))
	require.NoError(t, metrics.RecordSearch(ctx, core.QueryLogEntry{Query: "q"}))
	require.NoError(t, metrics.ResetMetrics(ctx))

	im, err := metrics.GetIndexMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, im.DocumentsIndexed)
	sm, err := metrics.GetSearchMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, sm.TotalSearches)

	count, err := chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "reset leaves chunks alone")
}
