package badger

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// PutChunks writes chunks and their time-index entries. An overwritten
// chunk's previous time-index entry is removed.
func (r *ChunkRepository) PutChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.IndexedAt.IsZero() {
			chunk.IndexedAt = now
		}
	}

	return r.backend.Update(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.Id)

			old, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				if err := tx.Delete(makeChunkTimeKey(old.IndexedAt, old.Id)); err != nil {
					return err
				}
			}

			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			if err := tx.Set(makeChunkTimeKey(chunk.IndexedAt, chunk.Id), storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunks retrieves multiple chunks by their IDs.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := r.readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// ForEachChunk calls fn for every stored chunk in ID order.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	ids, err := r.ListChunkIDs(ctx)
	return len(ids), err
}

// ListChunkIDs returns every chunk ID in ID order.
func (r *ChunkRepository) ListChunkIDs(ctx context.Context) ([]core.ID, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, chunkIDFromKey(iter.Item().Key()))
		}
		return nil
	}, false)
	return ids, err
}

// RecentChunkIDs walks the time index backwards.
func (r *ChunkRepository) RecentChunkIDs(ctx context.Context, limit int) ([]core.ID, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(chunkTimePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible time key
		start := append([]byte(chunkTimePrefix), bytes.Repeat([]byte{0xff}, 16)...)
		for iter.Seek(start); iter.Valid() && len(ids) < limit; iter.Next() {
			var id core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}, false)
	return ids, err
}

// DeleteChunks removes chunks and their time-index entries.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		return r.deleteChunks(tx, ids)
	})
}

func (r *ChunkRepository) deleteChunks(tx *badger.Txn, ids []core.ID) error {
	for _, id := range ids {
		key := makeChunkKey(id)
		chunk, err := r.readChunk(tx, key)
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		if err := tx.Delete(makeChunkTimeKey(chunk.IndexedAt, chunk.Id)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// SourceChunkIDs returns the chunk IDs recorded for path.
func (r *ChunkRepository) SourceChunkIDs(ctx context.Context, path string) ([]core.ID, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		data, err := r.backend.GetBlob(tx, makeSourceKey(path))
		if err != nil {
			return err
		}
		ids, err = storage.UnmarshalIDs(data)
		return err
	}, false)
	return ids, err
}

// ReplaceSourceChunks swaps the chunk-ID set of path and deletes chunks
// that dropped out of it.
func (r *ChunkRepository) ReplaceSourceChunks(ctx context.Context, path string, keep []core.ID) ([]core.ID, error) {
	var removed []core.ID
	err := r.backend.Update(func(tx *badger.Txn) error {
		removed = nil
		key := makeSourceKey(path)
		data, err := r.backend.GetBlob(tx, key)
		if err != nil {
			return err
		}
		previous, err := storage.UnmarshalIDs(data)
		if err != nil {
			return err
		}
		for _, id := range previous {
			if !slices.Contains(keep, id) {
				removed = append(removed, id)
			}
		}
		if err := r.deleteChunks(tx, removed); err != nil {
			return err
		}
		if len(keep) == 0 {
			return tx.Delete(key)
		}
		return tx.Set(key, storage.MarshalIDs(keep))
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// readChunk reads a chunk from the transaction.
// Returns nil, nil if the chunk doesn't exist.
func (r *ChunkRepository) readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
