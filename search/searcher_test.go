package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
	"github.com/poiesic/kbsearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "test-embed"

var (
	// testNow is 60 days after testIndexedAt so no fixture gets the recency boost.
	testIndexedAt = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	testNow       = testIndexedAt.Add(60 * 24 * time.Hour)
	queryVector   = []float32{1, 0, 0}
)

type testEnv struct {
	chunks   storage.ChunkRepository
	metrics  storage.MetricsRepository
	embedder *mock.MockEmbedder
	searcher *Searcher
}

func setupSearcher(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	chunks, metrics, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(_ context.Context, _ string) ([]float32, error) {
		return queryVector, nil
	})
	provider := mock.NewMockProviderWithEmbedder(embedder, testModel)

	opts = append([]Option{withClock(func() time.Time { return testNow })}, opts...)
	searcher, err := NewSearcher(chunks, metrics, provider, opts...)
	require.NoError(t, err)

	return &testEnv{chunks: chunks, metrics: metrics, embedder: embedder, searcher: searcher}
}

// vectorWithSimilarity returns a unit vector whose cosine with queryVector is sim.
func vectorWithSimilarity(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func newChunk(path string, index int, content string, vector []float32, fileType string) *core.Chunk {
	return &core.Chunk{
		Id:             core.ChunkID(path, index),
		Content:        content,
		Vector:         vector,
		EmbeddingModel: testModel,
		IndexedAt:      testIndexedAt,
		Metadata: core.Metadata{
			core.MetaFilePath:   path,
			core.MetaFileName:   path[len("/kb/"):],
			core.MetaFileType:   fileType,
			core.MetaIndexedAt:  testIndexedAt.Unix(),
			core.MetaChunkIndex: index,
		},
	}
}

func (e *testEnv) put(t *testing.T, chunks ...*core.Chunk) {
	t.Helper()
	require.NoError(t, e.chunks.PutChunks(context.Background(), chunks...))
}

func TestNewSearcher(t *testing.T) {
	chunks, metrics, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	provider := mock.NewMockProvider()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(chunks, metrics, provider)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
		assert.Equal(t, mock.DefaultModel, searcher.model)
	})

	t.Run("with custom logger", func(t *testing.T) {
		searcher, err := NewSearcher(chunks, metrics, provider, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(chunks, metrics, provider, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("with nil monitor falls back to no-op", func(t *testing.T) {
		searcher, err := NewSearcher(chunks, metrics, provider, WithMonitor(nil))
		require.NoError(t, err)
		assert.IsType(t, &noopMonitor{}, searcher.monitor)
	})

	t.Run("nil chunk repository", func(t *testing.T) {
		_, err := NewSearcher(nil, metrics, provider)
		assert.Equal(t, ErrChunkRepositoryRequired, err)
	})

	t.Run("nil metrics repository", func(t *testing.T) {
		_, err := NewSearcher(chunks, nil, provider)
		assert.Equal(t, ErrMetricsRepositoryRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewSearcher(chunks, metrics, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})
}

func TestSearch_EmptyStore(t *testing.T) {
	env := setupSearcher(t)
	ctx := context.Background()

	resp := env.searcher.Search(ctx, "anything at all", nil)
	require.True(t, resp.Success, resp.Error())
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, env.embedder.CallCount(), "query is not embedded when there is nothing to compare")

	m, err := env.metrics.GetSearchMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TotalSearches)
	require.Len(t, m.Recent, 1)
	assert.Equal(t, "anything at all", m.Recent[0].Query)
	assert.Equal(t, 0, m.Recent[0].ResultCount)
}

func TestSearch_DeploymentScenario(t *testing.T) {
	env := setupSearcher(t)
	env.put(t, newChunk("/kb/deploy.md", 0,
		"Our deployment runbook lists every step for shipping a release to production.",
		vectorWithSimilarity(0.72), "md"))

	resp := env.searcher.Search(context.Background(), "deployment process", nil)
	require.True(t, resp.Success, resp.Error())
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.InDelta(t, 0.72, r.Similarity, 1e-5)
	assert.InDelta(t, 0.72*1.1*1.1, r.Score, 1e-4)
	assert.GreaterOrEqual(t, r.Score, DefaultThreshold)
	assert.InDelta(t, 1.1, r.Boosts["keyword"], 1e-9)
	assert.InDelta(t, 1.1, r.Boosts["filetype"], 1e-9)
	assert.NotContains(t, r.Boosts, "recency")
	assert.Equal(t, "deploy.md", r.Chunk.FileName())
	assert.Equal(t, 1, resp.Scanned)
}

func TestSearch_ThresholdAndOrdering(t *testing.T) {
	env := setupSearcher(t)
	env.put(t,
		newChunk("/kb/a.txt", 0, "alpha notes", vectorWithSimilarity(0.75), "txt"),
		newChunk("/kb/b.txt", 0, "bravo notes", vectorWithSimilarity(0.95), "txt"),
		newChunk("/kb/c.txt", 0, "charlie notes", vectorWithSimilarity(0.4), "txt"),
		newChunk("/kb/d.txt", 0, "delta notes", vectorWithSimilarity(0.85), "txt"),
	)

	resp := env.searcher.Search(context.Background(), "zzzz", nil)
	require.True(t, resp.Success, resp.Error())
	assert.Equal(t, 4, resp.Scanned)

	var names []string
	for _, r := range resp.Results {
		names = append(names, r.Chunk.FileName())
		assert.GreaterOrEqual(t, r.Score, DefaultThreshold)
	}
	assert.Equal(t, []string{"b.txt", "d.txt", "a.txt"}, names)

	t.Run("lower threshold includes weaker matches", func(t *testing.T) {
		resp := env.searcher.Search(context.Background(), "zzzz", &Options{MaxResults: 10, Threshold: 0.3})
		require.True(t, resp.Success, resp.Error())
		assert.Len(t, resp.Results, 4)
	})

	t.Run("threshold above every score", func(t *testing.T) {
		resp := env.searcher.Search(context.Background(), "zzzz", &Options{MaxResults: 10, Threshold: 0.99})
		require.True(t, resp.Success, resp.Error())
		assert.Empty(t, resp.Results)
	})
}

func TestSearch_MaxResults(t *testing.T) {
	env := setupSearcher(t)
	for i := 0; i < 6; i++ {
		env.put(t, newChunk(fmt.Sprintf("/kb/doc%d.txt", i), 0, "same text", vectorWithSimilarity(0.9), "txt"))
	}
	ctx := context.Background()

	for _, limit := range []int{0, 1, 3, 6, 20} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			resp := env.searcher.Search(ctx, "query text", &Options{MaxResults: limit, Threshold: 0.5})
			require.True(t, resp.Success, resp.Error())
			assert.Len(t, resp.Results, min(limit, 6))
		})
	}
}

func TestSearch_SkipsChunksFromOtherModels(t *testing.T) {
	env := setupSearcher(t)

	stale := newChunk("/kb/old.md", 0, "legacy vectors", vectorWithSimilarity(0.99), "md")
	stale.EmbeddingModel = "other-model"
	untagged := newChunk("/kb/untagged.md", 0, "untagged vectors", vectorWithSimilarity(0.9), "md")
	untagged.EmbeddingModel = ""
	noVector := newChunk("/kb/empty.md", 0, "no vector", nil, "md")
	current := newChunk("/kb/current.md", 0, "current vectors", vectorWithSimilarity(0.8), "md")
	env.put(t, stale, untagged, noVector, current)

	resp := env.searcher.Search(context.Background(), "vectors", &Options{MaxResults: 10, Threshold: 0})
	require.True(t, resp.Success, resp.Error())
	assert.Equal(t, 2, resp.Scanned)
	assert.Equal(t, 2, resp.Skipped)

	var names []string
	for _, r := range resp.Results {
		names = append(names, r.Chunk.FileName())
	}
	assert.ElementsMatch(t, []string{"untagged.md", "current.md"}, names)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	env := setupSearcher(t)
	env.put(t, newChunk("/kb/short.md", 0, "two dimensional", []float32{0.5, 0.5}, "md"))
	ctx := context.Background()

	resp := env.searcher.Search(ctx, "query", nil)
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, core.ErrDimensionMismatch)
	assert.NotEmpty(t, resp.Error())
	assert.Nil(t, resp.Results)

	m, err := env.metrics.GetSearchMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalSearches, "failed searches are not recorded")
}

func TestSearch_ProviderFailure(t *testing.T) {
	env := setupSearcher(t)
	env.put(t, newChunk("/kb/a.md", 0, "content", vectorWithSimilarity(0.9), "md"))
	env.embedder.WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("connection refused")
	})

	resp := env.searcher.Search(context.Background(), "query", nil)
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, core.ErrProvider)
	assert.Contains(t, resp.Error(), "connection refused")
}

func TestSearch_InvalidOptions(t *testing.T) {
	env := setupSearcher(t)
	env.put(t, newChunk("/kb/a.md", 0, "content", vectorWithSimilarity(0.9), "md"))

	tests := []struct {
		name  string
		query string
		opts  *Options
	}{
		{name: "negative max results", query: "q", opts: &Options{MaxResults: -1, Threshold: 0.7}},
		{name: "nan threshold", query: "q", opts: &Options{MaxResults: 10, Threshold: math.NaN()}},
		{name: "infinite threshold", query: "q", opts: &Options{MaxResults: 10, Threshold: math.Inf(-1)}},
		{name: "boost below one", query: "q", opts: &Options{MaxResults: 10, BoostFields: map[string]float64{"team": 0.5}}},
		{name: "non-finite boost", query: "q", opts: &Options{MaxResults: 10, BoostFields: map[string]float64{"team": math.Inf(1)}}},
		{name: "empty query", query: "", opts: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.searcher.Search(context.Background(), tt.query, tt.opts)
			assert.False(t, resp.Success)
			assert.ErrorIs(t, resp.Err, core.ErrValidation)
		})
	}
	assert.Equal(t, 0, env.embedder.CallCount())
}

func TestSearch_BoostFields(t *testing.T) {
	env := setupSearcher(t)
	plain := newChunk("/kb/plain.txt", 0, "plain notes", vectorWithSimilarity(0.8), "txt")
	tagged := newChunk("/kb/tagged.txt", 0, "tagged notes", vectorWithSimilarity(0.7), "txt")
	tagged.Metadata["team"] = "ops"
	env.put(t, plain, tagged)

	opts := &Options{MaxResults: 10, Threshold: 0, BoostFields: map[string]float64{"team": 1.5}}
	resp := env.searcher.Search(context.Background(), "zzzz", opts)
	require.True(t, resp.Success, resp.Error())
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "tagged.txt", resp.Results[0].Chunk.FileName())
	assert.InDelta(t, 0.7*1.5, resp.Results[0].Score, 1e-4)
	assert.InDelta(t, 1.5, resp.Results[0].Boosts["fields"], 1e-9)
	assert.Empty(t, resp.Results[1].Boosts)
}

func TestSearch_RecencyBoost(t *testing.T) {
	env := setupSearcher(t)
	fresh := newChunk("/kb/fresh.txt", 0, "fresh notes", vectorWithSimilarity(0.8), "txt")
	fresh.Metadata[core.MetaIndexedAt] = testNow.Add(-48 * time.Hour).Unix()
	stale := newChunk("/kb/stale.txt", 0, "stale notes", vectorWithSimilarity(0.8), "txt")
	env.put(t, stale, fresh)

	resp := env.searcher.Search(context.Background(), "zzzz", &Options{MaxResults: 10, Threshold: 0})
	require.True(t, resp.Success, resp.Error())
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "fresh.txt", resp.Results[0].Chunk.FileName())
	assert.InDelta(t, 0.8*DefaultRecencyFactor, resp.Results[0].Score, 1e-4)
}

func TestSearch_CustomPolicy(t *testing.T) {
	env := setupSearcher(t, WithBoostPolicy(BoostPolicy{}))
	env.put(t, newChunk("/kb/deploy.md", 0, "deployment deployment", vectorWithSimilarity(0.72), "md"))

	resp := env.searcher.Search(context.Background(), "deployment", &Options{MaxResults: 10, Threshold: 0.7})
	require.True(t, resp.Success, resp.Error())
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, resp.Results[0].Similarity, resp.Results[0].Score, 1e-12)
	assert.Nil(t, resp.Results[0].Boosts)
}

func TestSearch_RecordsMetrics(t *testing.T) {
	env := setupSearcher(t)
	env.put(t,
		newChunk("/kb/a.txt", 0, "alpha", vectorWithSimilarity(0.9), "txt"),
		newChunk("/kb/b.txt", 0, "bravo", vectorWithSimilarity(0.8), "txt"),
	)
	ctx := context.Background()

	env.searcher.Search(ctx, "first query", nil)
	env.searcher.Search(ctx, "second query", nil)

	m, err := env.metrics.GetSearchMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalSearches)
	assert.Equal(t, int64(4), m.TotalResults)
	require.Len(t, m.Recent, 2)
	assert.Equal(t, "first query", m.Recent[0].Query)
	assert.Equal(t, "second query", m.Recent[1].Query)
	assert.True(t, testNow.Equal(m.Recent[1].Timestamp))
}

func TestSearch_CanceledContext(t *testing.T) {
	env := setupSearcher(t)
	env.put(t, newChunk("/kb/a.txt", 0, "alpha", vectorWithSimilarity(0.9), "txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := env.searcher.Search(ctx, "query", nil)
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, context.Canceled)
}

type testMonitor struct {
	started  string
	dims     int
	skipped  []string
	scored   int
	finished []*core.SearchResult
}

func (m *testMonitor) Start(query string) {
	m.started = query
}

func (m *testMonitor) AfterQueryEmbedding(dimensions int) {
	m.dims = dimensions
}

func (m *testMonitor) SkippedChunk(chunk *core.Chunk, reason string) {
	m.skipped = append(m.skipped, reason)
}

func (m *testMonitor) Scored(result *core.SearchResult) {
	m.scored++
}

func (m *testMonitor) Finish(results []*core.SearchResult) {
	m.finished = results
}

func TestSearch_Monitor(t *testing.T) {
	monitor := &testMonitor{}
	env := setupSearcher(t, WithMonitor(monitor))

	other := newChunk("/kb/other.md", 0, "other", vectorWithSimilarity(0.9), "md")
	other.EmbeddingModel = "other-model"
	env.put(t,
		newChunk("/kb/a.txt", 0, "alpha", vectorWithSimilarity(0.9), "txt"),
		newChunk("/kb/b.txt", 0, "bravo", vectorWithSimilarity(0.2), "txt"),
		other,
	)

	resp := env.searcher.Search(context.Background(), "monitored query", nil)
	require.True(t, resp.Success, resp.Error())

	assert.Equal(t, "monitored query", monitor.started)
	assert.Equal(t, len(queryVector), monitor.dims)
	assert.Equal(t, []string{"embedded with other-model"}, monitor.skipped)
	assert.Equal(t, 2, monitor.scored)
	assert.Equal(t, resp.Results, monitor.finished)
}
