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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded per EmbedTexts call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// OnlyStale limits the pass to chunks without a vector or tagged with
	// a different model than the provider's
	OnlyStale bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a reembedding pass.
type Result struct {
	Total      int // Chunks in the store
	Reembedded int // Chunks written with a new vector
	Skipped    int // Already current, when OnlyStale is set
	Duration   time.Duration
}

// Reembedder re-embeds every chunk in the store with the provider's model.
type Reembedder struct {
	repo      storage.ChunkRepository
	model     string
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.ChunkRepository, provider ai.AIProvider, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		return nil, fmt.Errorf("%w: max retries must be at least 1", core.ErrValidation)
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		model:     provider.Model(),
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, provider.Embedder(), provider.Model(), config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// stale reports whether chunk needs a new embedding under OnlyStale.
func (r *Reembedder) stale(chunk *core.Chunk) bool {
	return len(chunk.Vector) == 0 || chunk.EmbeddingModel != r.model
}

// Run executes the reembedding operation.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	total, err := r.repo.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	result := &Result{Total: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in store (0 chunks)\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks with %s (batch size: %d)\n",
		total, r.model, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		batch := chunks
		if r.config.OnlyStale {
			batch = make([]*core.Chunk, 0, len(chunks))
			for _, chunk := range chunks {
				if r.stale(chunk) {
					batch = append(batch, chunk)
				}
			}
			result.Skipped += len(chunks) - len(batch)
		}

		if err := r.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		result.Reembedded += len(batch)
		tracker.Increment(len(chunks))
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		r.logger.Error("reembedding stopped", "reembedded", result.Reembedded, "err", err)
		return result, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(result.Reembedded) / elapsed.Seconds()
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Reembedded %d chunks, skipped %d, in %v (%.1f chunks/sec)\n",
		result.Reembedded, result.Skipped, elapsed.Round(time.Millisecond), rate)

	return result, nil
}
