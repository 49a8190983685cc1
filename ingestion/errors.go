package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/kbsearch/core"
)

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrMetricsRepositoryRequired is returned when a metrics repository is not provided.
	ErrMetricsRepositoryRequired = errors.New("metrics repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidChunker is returned when chunker settings are inconsistent.
	ErrInvalidChunker = fmt.Errorf("%w: invalid chunker settings", core.ErrValidation)
)
