package storage

import (
	"context"

	"github.com/poiesic/kbsearch/core"
)

// ChunkRepository provides operations for managing chunk records.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// PutChunks writes chunks keyed by their ID, overwriting existing
	// records, and records each ID in the time-ordered index.
	// Sets IndexedAt if not already set.
	PutChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// ForEachChunk calls fn for every stored chunk in ID order.
	// Iteration stops at the first error returned by fn.
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// ListChunkIDs returns the IDs of every stored chunk in ID order.
	ListChunkIDs(ctx context.Context) ([]core.ID, error)

	// RecentChunkIDs returns up to limit chunk IDs from the time-ordered
	// index, most recently written first.
	RecentChunkIDs(ctx context.Context, limit int) ([]core.ID, error)

	// DeleteChunks removes chunks and their time-index entries.
	// Missing IDs are ignored.
	DeleteChunks(ctx context.Context, ids ...core.ID) error

	// SourceChunkIDs returns the chunk IDs last recorded for a source path.
	SourceChunkIDs(ctx context.Context, path string) ([]core.ID, error)

	// ReplaceSourceChunks records keep as the chunk-ID set of path and
	// deletes previously recorded chunks that are not in keep.
	// Returns the IDs that were deleted.
	ReplaceSourceChunks(ctx context.Context, path string, keep []core.ID) ([]core.ID, error)

	// Close releases repository resources.
	Close() error
}

// MetricsRepository stores index and search counters.
// Read-modify-write updates are serialized by the implementation so
// concurrent callers never lose increments.
type MetricsRepository interface {
	// AddIndexMetrics adds delta to the stored index counters.
	AddIndexMetrics(ctx context.Context, delta core.IndexMetrics) error

	// GetIndexMetrics returns the stored index counters.
	// Returns zero values if nothing has been recorded.
	GetIndexMetrics(ctx context.Context) (core.IndexMetrics, error)

	// RecordSearch appends entry to the recent-query log and updates the
	// aggregate search counters.
	RecordSearch(ctx context.Context, entry core.QueryLogEntry) error

	// GetSearchMetrics returns the stored search counters.
	GetSearchMetrics(ctx context.Context) (core.SearchMetrics, error)

	// ResetMetrics clears both index and search counters.
	ResetMetrics(ctx context.Context) error

	// Close releases repository resources.
	Close() error
}
