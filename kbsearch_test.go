package kbsearch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/relevance"
	"github.com/poiesic/kbsearch/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("create new badger store", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test_db")
		engine, err := Open(dir)
		require.NoError(t, err)
		require.NotNil(t, engine)
		defer engine.Close()

		assert.NotNil(t, engine.Chunks())
		assert.NotNil(t, engine.Metrics())
		assert.Equal(t, "embeddinggemma", engine.Provider().Model())
		assert.True(t, engine.ownsProvider)
	})

	t.Run("create new sqlite store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.sqlite")
		engine, err := Open(path, WithStore(StoreSQLite), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer engine.Close()

		assert.False(t, engine.ownsProvider)
		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("custom AI config", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithEmbeddingModel("text-embedding-3-small"))
		engine, err := Open("", WithInMemory(), WithAIConfig(cfg))
		require.NoError(t, err)
		defer engine.Close()
		assert.Equal(t, "text-embedding-3-small", engine.Provider().Model())
	})

	t.Run("invalid AI config", func(t *testing.T) {
		_, err := Open("", WithInMemory(), WithAIConfig(&ai.Config{}))
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		_, err := Open(t.TempDir(), WithStore("postgres"))
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to open a store at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		engine, err := Open(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, engine)
	})
}

func TestEngine_EndToEnd(t *testing.T) {
	for _, store := range []StoreType{StoreBadger, StoreSQLite} {
		t.Run(string(store), func(t *testing.T) {
			ctx := context.Background()
			query := "deployment process"

			embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(_ context.Context, text string) ([]float32, error) {
				// Every deployment chunk and the query share one direction.
				if text == query || strings.Contains(text, "Deployments") {
					return []float32{1, 0, 0}, nil
				}
				return []float32{0, 1, 0}, nil
			})
			provider := mock.NewMockProviderWithEmbedder(embedder, "test-embed")

			engine, err := Open("", WithStore(store), WithInMemory(), WithProvider(provider))
			require.NoError(t, err)
			defer engine.Close()

			dir := t.TempDir()
			deploy := filepath.Join(dir, "deployment.md")
			require.NoError(t, os.WriteFile(deploy,
				[]byte(strings.Repeat("Deployments happen every Tuesday and each release is tagged. ", 30)), 0644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "lunch.txt"),
				[]byte("The cafeteria serves lunch from noon until two in the afternoon daily."), 0644))

			indexer, err := engine.NewIndexer()
			require.NoError(t, err)
			defer indexer.Release()

			indexed := indexer.IndexDirectory(ctx, dir, nil)
			require.True(t, indexed.Success, indexed.Err)
			require.Len(t, indexed.Succeeded, 2)

			searcher, err := engine.NewSearcher()
			require.NoError(t, err)
			resp := searcher.Search(ctx, query, search.DefaultOptions())
			require.True(t, resp.Success, resp.Error())
			require.NotEmpty(t, resp.Results)
			for _, r := range resp.Results {
				assert.Equal(t, "deployment.md", r.Chunk.FileName())
			}

			im, err := engine.IndexMetrics(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), im.DocumentsIndexed)

			sm, err := engine.SearchMetrics(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), sm.TotalSearches)

			recent, err := engine.RecentChunks(ctx, 3)
			require.NoError(t, err)
			assert.Len(t, recent, 3)

			harness, err := engine.NewHarness(relevance.WithQueries([]relevance.GoldenQuery{{
				Query:            query,
				ExpectedKeywords: []string{"deploy", "release"},
				ExpectedFiles:    []string{"deployment.md"},
				MinSimilarity:    0.7,
			}}))
			require.NoError(t, err)
			report := harness.Run(ctx)
			assert.True(t, report.Results[0].Passed)
			assert.True(t, report.Gate.Passed())

			reembedder, err := engine.NewReembedder(nil, nil)
			require.NoError(t, err)
			result, err := reembedder.Run(ctx)
			require.NoError(t, err)
			count, err := engine.Chunks().CountChunks(ctx)
			require.NoError(t, err)
			assert.Equal(t, count, result.Reembedded)

			require.NoError(t, engine.ResetMetrics(ctx))
			sm, err = engine.SearchMetrics(ctx)
			require.NoError(t, err)
			assert.Zero(t, sm.TotalSearches)
		})
	}
}

func TestEngine_Close(t *testing.T) {
	engine, err := Open(t.TempDir(), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)

	assert.NoError(t, engine.Close())
}
