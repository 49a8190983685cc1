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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultEmbedConcurrency bounds parallel embedding calls within one document.
const DefaultEmbedConcurrency = 4

// Indexer reads documents, chunks them, embeds every chunk and writes the
// results to the chunk store.
type Indexer struct {
	chunks           storage.ChunkRepository
	metrics          storage.MetricsRepository
	embedder         ai.Embedder
	model            string
	chunker          Chunker
	embedConcurrency int
	pool             *ants.Pool
	logger           *slog.Logger
	now              func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithChunker replaces the default chunking parameters.
func WithChunker(c Chunker) Option {
	return func(ix *Indexer) error {
		if err := c.Validate(); err != nil {
			return err
		}
		ix.chunker = c
		return nil
	}
}

// WithEmbedConcurrency sets how many chunks of one document are embedded
// at the same time. Default is DefaultEmbedConcurrency.
func WithEmbedConcurrency(n int) Option {
	return func(ix *Indexer) error {
		if n < 1 {
			n = 1
		}
		ix.embedConcurrency = n
		return nil
	}
}

// WithPoolSize sets the number of files indexed concurrently by
// IndexDirectory. Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		ix.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger.With("component", "indexer")
		return nil
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(ix *Indexer) error {
		ix.now = now
		return nil
	}
}

// NewIndexer creates a new Indexer. Chunks are tagged with provider.Model().
func NewIndexer(
	chunks storage.ChunkRepository,
	metrics storage.MetricsRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Indexer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if metrics == nil {
		return nil, ErrMetricsRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		chunks:           chunks,
		metrics:          metrics,
		embedder:         provider.Embedder(),
		model:            provider.Model(),
		chunker:          DefaultChunker(),
		embedConcurrency: DefaultEmbedConcurrency,
		pool:             pool,
		logger:           slog.Default().With("component", "indexer"),
		now:              time.Now,
	}

	for _, opt := range opts {
		if optErr := opt(ix); optErr != nil {
			ix.Release()
			return nil, optErr
		}
	}
	return ix, nil
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}

// DocumentResult reports the outcome of indexing one file.
type DocumentResult struct {
	Success  bool
	Path     string
	ChunkIDs []core.ID
	Duration time.Duration
	Metadata core.Metadata // File-level metadata written to every chunk
	Err      error
}

// Error returns the failure message, or "" on success.
func (r *DocumentResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (ix *Indexer) fail(path string, start time.Time, err error) *DocumentResult {
	ix.logger.Warn("indexing failed", "path", path, "err", err)
	return &DocumentResult{
		Path:     path,
		Duration: time.Since(start),
		Err:      err,
	}
}

// IndexFile indexes a single document. Failures are reported in the
// result, never returned.
//
// Re-indexing a path overwrites its chunks in place and deletes chunks
// that the new content no longer produces.
func (ix *Indexer) IndexFile(ctx context.Context, path string, metadata core.Metadata) *DocumentResult {
	start := time.Now()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	text, info, err := readDocument(path)
	if err != nil {
		return ix.fail(path, start, err)
	}

	now := ix.now().UTC()
	fileMeta := core.Metadata{
		core.MetaFilePath:     path,
		core.MetaFileName:     filepath.Base(path),
		core.MetaFileSize:     info.Size(),
		core.MetaFileType:     fileType(path),
		core.MetaIndexedAt:    now.Unix(),
		core.MetaLastModified: info.ModTime().UTC().Unix(),
	}
	for k, v := range metadata {
		fileMeta[k] = v
	}

	segments := ix.chunker.Split(text)
	ix.logger.Debug("chunked document", "path", path, "chars", utf8.RuneCountInString(text), "chunks", len(segments))

	vectors, err := ix.embedSegments(ctx, segments)
	if err != nil {
		return ix.fail(path, start, err)
	}

	chunks := make([]*core.Chunk, len(segments))
	ids := make([]core.ID, len(segments))
	for i, seg := range segments {
		meta := fileMeta.Clone()
		meta[core.MetaChunkIndex] = seg.Index
		meta[core.MetaChunkCount] = len(segments)
		meta[core.MetaChunkSize] = len(seg.Content)

		ids[i] = core.ChunkID(path, seg.Index)
		chunks[i] = &core.Chunk{
			Id:             ids[i],
			Content:        seg.Content,
			Vector:         vectors[i],
			EmbeddingModel: ix.model,
			Metadata:       meta,
			IndexedAt:      now,
		}
		if err := core.ValidateChunk(chunks[i]); err != nil {
			return ix.fail(path, start, fmt.Errorf("%w: %w", core.ErrValidation, err))
		}
	}

	if err := ix.chunks.PutChunks(ctx, chunks...); err != nil {
		return ix.fail(path, start, fmt.Errorf("%w: write chunks: %w", core.ErrIO, err))
	}
	removed, err := ix.chunks.ReplaceSourceChunks(ctx, path, ids)
	if err != nil {
		return ix.fail(path, start, fmt.Errorf("%w: prune stale chunks: %w", core.ErrIO, err))
	}
	if len(removed) > 0 {
		ix.logger.Info("removed stale chunks", "path", path, "count", len(removed))
	}

	duration := time.Since(start)
	delta := core.IndexMetrics{
		DocumentsIndexed:    1,
		ChunksIndexed:       int64(len(chunks)),
		EmbeddingsGenerated: int64(len(vectors)),
		CharactersProcessed: int64(utf8.RuneCountInString(text)),
		TotalDuration:       duration,
	}
	if err := ix.metrics.AddIndexMetrics(ctx, delta); err != nil {
		ix.logger.Warn("failed to update index metrics", "path", path, "err", err)
	}

	ix.logger.Info("indexed document", "path", path, "chunks", len(chunks), "duration", duration)
	return &DocumentResult{
		Success:  true,
		Path:     path,
		ChunkIDs: ids,
		Duration: duration,
		Metadata: fileMeta,
	}
}

// readDocument applies the precondition checks in order: existence,
// readability, read success, non-empty content.
func readDocument(path string) (string, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, classifyFSError(path, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", core.ErrIO, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, classifyFSError(path, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: %s", core.ErrEmptyInput, path)
	}
	return string(data), info, nil
}

func classifyFSError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", core.ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", core.ErrPermissionDenied, path)
	default:
		return fmt.Errorf("%w: %s: %w", core.ErrIO, path, err)
	}
}

// embedSegments embeds each segment with its own call, bounded by
// embedConcurrency. All vectors must share one non-zero length.
func (ix *Indexer) embedSegments(ctx context.Context, segments []Segment) ([][]float32, error) {
	vectors := make([][]float32, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.embedConcurrency)
	for i, seg := range segments {
		g.Go(func() error {
			vec, err := ix.embedder.EmbedText(gctx, seg.Content)
			if err != nil {
				if errors.Is(err, core.ErrProvider) {
					return err
				}
				return fmt.Errorf("%w: chunk %d: %w", core.ErrProvider, seg.Index, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for chunk %d", core.ErrProvider, i)
		}
		if len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, chunk 0 has %d",
				core.ErrDimensionMismatch, i, len(vec), len(vectors[0]))
		}
	}
	return vectors, nil
}

// fileType returns the lower-cased extension without the dot.
func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
