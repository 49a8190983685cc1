package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(batchSize int) *Config {
	return &Config{
		BatchSize:      batchSize,
		ReportInterval: batchSize,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}
}

func TestNewReembedder(t *testing.T) {
	repo := setupTestDB(t)
	provider := mock.NewMockProvider()

	t.Run("nil config uses defaults", func(t *testing.T) {
		r, err := NewReembedder(repo, provider, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), r.config)
		assert.Equal(t, mock.DefaultModel, r.model)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewReembedder(nil, provider, nil, nil)
		assert.Equal(t, ErrChunkRepositoryRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewReembedder(repo, nil, nil, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})

	t.Run("zero retries", func(t *testing.T) {
		cfg := testConfig(5)
		cfg.MaxRetries = 0
		_, err := NewReembedder(repo, provider, cfg, nil)
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	seeded := seedChunks(t, repo, 10, "old-model")

	embedder := mock.NewMockEmbedder()
	provider := mock.NewMockProviderWithEmbedder(embedder, newModel)

	var buf bytes.Buffer
	r, err := NewReembedder(repo, provider, testConfig(3), &buf)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 10, result.Reembedded)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, 4, embedder.CallCount(), "3+3+3+1")

	for _, c := range seeded {
		updated, err := repo.GetChunk(ctx, c.Id)
		require.NoError(t, err)
		assert.Equal(t, newModel, updated.EmbeddingModel)
		assert.Equal(t, mock.GenerateDeterministicVector(c.Content, mock.DefaultDimensions), updated.Vector)
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 10 chunks with new-model")
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Reembedding complete")
}

func TestReembedder_EmptyStore(t *testing.T) {
	repo := setupTestDB(t)

	var buf bytes.Buffer
	r, err := NewReembedder(repo, mock.NewMockProvider(), DefaultConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Contains(t, buf.String(), "0 chunks", "should report zero chunks")
}

func TestReembedder_OnlyStale(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	seedChunks(t, repo, 4, newModel)

	stale := &core.Chunk{
		Id:             core.ChunkID("/kb/other.md", 0),
		Content:        "embedded by the previous model",
		Vector:         []float32{1, 1},
		EmbeddingModel: "old-model",
		Metadata:       core.Metadata{core.MetaFilePath: "/kb/other.md"},
	}
	missing := &core.Chunk{
		Id:       core.ChunkID("/kb/other.md", 1),
		Content:  "never embedded",
		Metadata: core.Metadata{core.MetaFilePath: "/kb/other.md"},
	}
	require.NoError(t, repo.PutChunks(ctx, stale, missing))

	embedder := mock.NewMockEmbedder()
	cfg := testConfig(10)
	cfg.OnlyStale = true
	r, err := NewReembedder(repo, mock.NewMockProviderWithEmbedder(embedder, newModel), cfg, nil)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 2, result.Reembedded)
	assert.Equal(t, 4, result.Skipped)
	assert.ElementsMatch(t, []string{stale.Content, missing.Content}, embedder.Texts())

	for _, id := range []core.ID{stale.Id, missing.Id} {
		c, err := repo.GetChunk(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, newModel, c.EmbeddingModel)
		assert.NotEmpty(t, c.Vector)
	}
}

func TestReembedder_ContextCancellation(t *testing.T) {
	repo := setupTestDB(t)
	seedChunks(t, repo, 10, "old-model")

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return constantVectors([]float32{1, 0, 0})(ctx, texts)
	}

	r, err := NewReembedder(repo, mock.NewMockProviderWithEmbedder(embedder, newModel), testConfig(3), nil)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 6, result.Reembedded)
}

func TestReembedder_EmbeddingError(t *testing.T) {
	repo := setupTestDB(t)
	seedChunks(t, repo, 1, "old-model")

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("persistent error")
	}
	cfg := testConfig(1)
	cfg.MaxRetries = 2

	r, err := NewReembedder(repo, mock.NewMockProviderWithEmbedder(embedder, newModel), cfg, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Contains(t, err.Error(), "persistent error")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Greater(t, config.BatchSize, 0, "batch size should be positive")
	assert.Greater(t, config.ReportInterval, 0, "report interval should be positive")
	assert.Greater(t, config.MaxRetries, 0, "max retries should be positive")
	assert.Greater(t, config.RetryDelay, time.Duration(0), "retry delay should be positive")
	assert.False(t, config.OnlyStale)
}

func TestReembedder_ProgressTracking(t *testing.T) {
	repo := setupTestDB(t)
	seedChunks(t, repo, 25, "old-model")

	var buf bytes.Buffer
	cfg := testConfig(5)
	cfg.ReportInterval = 10 // Report every 10 chunks

	r, err := NewReembedder(repo, mock.NewMockProvider(), cfg, &buf)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Progress:", "should show progress")
	assert.Contains(t, output, "25/25", "should show final count")
}
