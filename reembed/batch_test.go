package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newModel = "new-model"

func constantVectors(vec []float32) func(context.Context, []string) ([][]float32, error) {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = vec
		}
		return out, nil
	}
}

func TestBatchProcessor_Process(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	seeded := seedChunks(t, repo, 2, "old-model")

	stored, err := repo.GetChunks(ctx, seeded[0].Id, seeded[1].Id)
	require.NoError(t, err)
	originalTimes := map[core.ID]time.Time{}
	for _, c := range stored {
		originalTimes[c.Id] = c.IndexedAt
	}

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = constantVectors([]float32{1, 2, 3})
	processor := NewBatchProcessor(repo, embedder, newModel, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(ctx, stored))
	assert.Equal(t, 1, embedder.CallCount(), "one EmbedTexts call per batch")
	assert.ElementsMatch(t, []string{seeded[0].Content, seeded[1].Content}, embedder.Texts())

	updated, err := repo.GetChunks(ctx, seeded[0].Id, seeded[1].Id)
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for _, c := range updated {
		assert.Equal(t, []float32{1, 2, 3}, c.Vector)
		assert.Equal(t, newModel, c.EmbeddingModel)
		assert.True(t, originalTimes[c.Id].Equal(c.IndexedAt), "write time is preserved")
		assert.Equal(t, "/kb/doc.md", c.SourcePath())
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repo := setupTestDB(t)
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(repo, embedder, newModel, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), []*core.Chunk{}), "empty batch should not error")
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 1, "old-model")

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedding error")
	}
	processor := NewBatchProcessor(repo, embedder, newModel, 3, time.Millisecond)

	err := processor.Process(context.Background(), chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Contains(t, err.Error(), "embedding error")
	assert.Equal(t, 3, embedder.CallCount(), "each attempt is one call")
}

func TestBatchProcessor_Retry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	chunks := seedChunks(t, repo, 1, "old-model")

	attempts := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("temporary error")
		}
		return constantVectors([]float32{1, 0, 0})(ctx, texts)
	}
	processor := NewBatchProcessor(repo, embedder, newModel, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(ctx, chunks))
	assert.Equal(t, 2, attempts, "should retry on failure")

	updated, err := repo.GetChunk(ctx, chunks[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, updated.Vector)
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 1, "old-model")

	ctx, cancel := context.WithCancel(context.Background())
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		cancel()
		return nil, errors.New("error")
	}
	processor := NewBatchProcessor(repo, embedder, newModel, 3, 10*time.Millisecond)

	err := processor.Process(ctx, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	repo := setupTestDB(t)
	chunks := seedChunks(t, repo, 2, "old-model")

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}
	processor := NewBatchProcessor(repo, embedder, newModel, 1, time.Millisecond)

	err := processor.Process(context.Background(), chunks)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Contains(t, err.Error(), "count mismatch")
}

func TestBatchProcessor_DimensionMismatch(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	chunks := seedChunks(t, repo, 2, "old-model")

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}, {1, 0}}, nil
	}
	processor := NewBatchProcessor(repo, embedder, newModel, 1, time.Millisecond)

	err := processor.Process(ctx, chunks)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	stored, err := repo.GetChunk(ctx, chunks[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "old-model", stored.EmbeddingModel, "nothing is written when a batch fails")
}
