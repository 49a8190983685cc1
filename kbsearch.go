// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package kbsearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/ai/openai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/ingestion"
	"github.com/poiesic/kbsearch/reembed"
	"github.com/poiesic/kbsearch/relevance"
	"github.com/poiesic/kbsearch/search"
	"github.com/poiesic/kbsearch/storage"
	"github.com/poiesic/kbsearch/storage/badger"
	"github.com/poiesic/kbsearch/storage/sqlite"
)

// StoreType selects the chunk store substrate.
type StoreType string

const (
	StoreBadger StoreType = "badger"
	StoreSQLite StoreType = "sqlite"
)

// Engine owns a chunk store and an embedding provider and builds the
// indexer, searcher, harness and reembedder on top of them.
type Engine struct {
	store        io.Closer
	chunks       storage.ChunkRepository
	metrics      storage.MetricsRepository
	provider     ai.AIProvider
	ownsProvider bool
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	store    StoreType
	inMemory bool
	aiConfig *ai.Config
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithStore selects the store substrate. Default is StoreBadger.
func WithStore(store StoreType) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithInMemory keeps the store in memory; the path is ignored.
func WithInMemory() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithAIConfig configures the OpenAI-compatible embedding provider.
func WithAIConfig(cfg *ai.Config) EngineOption {
	return func(o *engineOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of creating one from the AI config.
// The engine does not close a provider it did not create.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens the store at path and creates the embedding provider.
func Open(path string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		store:    StoreBadger,
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{logger: options.logger}

	switch options.store {
	case StoreBadger:
		backend, err := badger.OpenBackend(path, options.inMemory)
		if err != nil {
			return nil, err
		}
		e.store = backend
		e.chunks = badger.NewChunkRepository(backend)
		e.metrics = badger.NewMetricsRepository(backend)
	case StoreSQLite:
		if options.inMemory {
			path = sqlite.MemoryPath
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		e.store = db
		e.chunks = sqlite.NewChunkRepository(db)
		e.metrics = sqlite.NewMetricsRepository(db)
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", core.ErrValidation, options.store)
	}

	if options.provider != nil {
		e.provider = options.provider
	} else {
		provider, err := openai.NewProvider(options.aiConfig)
		if err != nil {
			e.closeStore()
			return nil, err
		}
		e.provider = provider
		e.ownsProvider = true
	}

	e.logger.Debug("engine opened",
		"store", options.store,
		"path", path,
		"model", e.provider.Model())
	return e, nil
}

func (e *Engine) closeStore() error {
	var firstErr error
	if err := e.metrics.Close(); err != nil {
		e.logger.Error("error closing metrics repository", "err", err)
		firstErr = err
	}
	if err := e.chunks.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the provider (if the engine created it) and the store.
func (e *Engine) Close() error {
	if e.ownsProvider {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	return e.closeStore()
}

// Chunks returns the chunk repository.
func (e *Engine) Chunks() storage.ChunkRepository {
	return e.chunks
}

// Metrics returns the metrics repository.
func (e *Engine) Metrics() storage.MetricsRepository {
	return e.metrics
}

// Provider returns the embedding provider.
func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

// NewIndexer creates an indexer over the engine's store.
// The caller must Release it.
func (e *Engine) NewIndexer(opts ...ingestion.Option) (*ingestion.Indexer, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(e.logger)}, opts...)
	return ingestion.NewIndexer(e.chunks, e.metrics, e.provider, opts...)
}

// NewSearcher creates a searcher over the engine's store.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{search.WithLogger(e.logger)}, opts...)
	return search.NewSearcher(e.chunks, e.metrics, e.provider, opts...)
}

// NewHarness creates a relevance harness driving a default searcher.
func (e *Engine) NewHarness(opts ...relevance.Option) (*relevance.Harness, error) {
	searcher, err := e.NewSearcher()
	if err != nil {
		return nil, err
	}
	opts = append([]relevance.Option{relevance.WithLogger(e.logger)}, opts...)
	return relevance.NewHarness(searcher, opts...)
}

// NewReembedder creates a reembedder migrating the store to the
// provider's model.
func (e *Engine) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(e.chunks, e.provider, config, progress)
}

// IndexMetrics returns the cumulative indexing counters.
func (e *Engine) IndexMetrics(ctx context.Context) (core.IndexMetrics, error) {
	return e.metrics.GetIndexMetrics(ctx)
}

// SearchMetrics returns the cumulative search counters and recent queries.
func (e *Engine) SearchMetrics(ctx context.Context) (core.SearchMetrics, error) {
	return e.metrics.GetSearchMetrics(ctx)
}

// ResetMetrics clears index and search metrics. Chunks are untouched.
func (e *Engine) ResetMetrics(ctx context.Context) error {
	return e.metrics.ResetMetrics(ctx)
}

// RecentChunks returns up to limit chunks, most recently written first.
func (e *Engine) RecentChunks(ctx context.Context, limit int) ([]*core.Chunk, error) {
	ids, err := e.chunks.RecentChunkIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	chunks, err := e.chunks.GetChunks(ctx, ids...)
	if err != nil {
		return nil, err
	}
	// GetChunks does not promise input order.
	byID := make(map[core.ID]*core.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.Id] = c
	}
	ordered := make([]*core.Chunk, 0, len(chunks))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}
