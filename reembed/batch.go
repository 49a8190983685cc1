package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// BatchProcessor embeds batches of chunks and writes them back tagged
// with the active model.
type BatchProcessor struct {
	repo           storage.ChunkRepository
	embedder       ai.Embedder
	model          string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.ChunkRepository, embedder ai.Embedder, model string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		model:          model,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for a batch of chunks with one EmbedTexts
// call and updates them in the store. Chunk IDs and write times are kept.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("%w: embedding batch after %d attempts: %w", core.ErrProvider, bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrProvider, len(chunks), len(embeddings))
	}

	dims := len(embeddings[0])
	for i, chunk := range chunks {
		if len(embeddings[i]) == 0 || len(embeddings[i]) != dims {
			return fmt.Errorf("%w: chunk %d got %d dimensions, batch has %d",
				core.ErrDimensionMismatch, chunk.Id, len(embeddings[i]), dims)
		}
	}
	for i, chunk := range chunks {
		chunk.Vector = embeddings[i]
		chunk.EmbeddingModel = bp.model
	}

	if err := bp.repo.PutChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}

	return nil
}
