package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// ChunkRepository implements storage.ChunkRepository on SQLite.
type ChunkRepository struct {
	db *DB
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Close is a no-op; the database is closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// idKey renders id as fixed-width hex so text ordering matches numeric order.
func idKey(id core.ID) string {
	return fmt.Sprintf("%016x", uint64(id))
}

func parseIDKey(s string) (core.ID, error) {
	n, err := strconv.ParseUint(s, 16, 64)
	return core.ID(n), err
}

// PutChunks upserts chunks. The indexed_at column is the time index.
func (r *ChunkRepository) PutChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(id, indexed_at, data) VALUES(?, ?, ?)
ON CONFLICT(id) DO UPDATE SET indexed_at = excluded.indexed_at, data = excluded.data`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			if chunk.IndexedAt.IsZero() {
				chunk.IndexedAt = now
			}
			data, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, idKey(chunk.Id), chunk.IndexedAt.UnixMicro(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var data []byte
	err := r.db.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE id = ?`, idKey(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalChunk(data)
}

// GetChunks retrieves the chunks that exist among ids.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	for _, id := range ids {
		chunk, err := r.GetChunk(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, chunk)
	}
	return result, nil
}

// ForEachChunk calls fn for every chunk in ID order.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	rows, err := r.db.db.QueryContext(ctx, `SELECT data FROM chunks ORDER BY id`)
	if err != nil {
		return err
	}
	// Decode everything before calling fn: the single connection stays
	// busy until rows is closed.
	var chunks []*core.Chunk
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return err
		}
		chunk, err := storage.UnmarshalChunk(data)
		if err != nil {
			rows.Close()
			return err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, chunk := range chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// ListChunkIDs returns every chunk ID in ID order.
func (r *ChunkRepository) ListChunkIDs(ctx context.Context) ([]core.ID, error) {
	return r.queryIDs(ctx, `SELECT id FROM chunks ORDER BY id`)
}

// RecentChunkIDs returns the most recently written chunk IDs first.
func (r *ChunkRepository) RecentChunkIDs(ctx context.Context, limit int) ([]core.ID, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.queryIDs(ctx, `SELECT id FROM chunks ORDER BY indexed_at DESC, id DESC LIMIT ?`, limit)
}

func (r *ChunkRepository) queryIDs(ctx context.Context, query string, args ...any) ([]core.ID, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []core.ID
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		id, err := parseIDKey(key)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunks removes chunks by ID. Missing IDs are ignored.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return deleteChunks(ctx, tx, ids)
	})
}

func deleteChunks(ctx context.Context, tx *sql.Tx, ids []core.ID) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, idKey(id)); err != nil {
			return err
		}
	}
	return nil
}

// SourceChunkIDs returns the chunk IDs recorded for path.
func (r *ChunkRepository) SourceChunkIDs(ctx context.Context, path string) ([]core.ID, error) {
	var data []byte
	err := r.db.db.QueryRowContext(ctx, `SELECT ids FROM sources WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalIDs(data)
}

// ReplaceSourceChunks swaps the chunk-ID set of path and deletes chunks
// that dropped out of it.
func (r *ChunkRepository) ReplaceSourceChunks(ctx context.Context, path string, keep []core.ID) ([]core.ID, error) {
	var removed []core.ID
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var data []byte
		err := tx.QueryRowContext(ctx, `SELECT ids FROM sources WHERE path = ?`, path).Scan(&data)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
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
		if err := deleteChunks(ctx, tx, removed); err != nil {
			return err
		}
		if len(keep) == 0 {
			_, err = tx.ExecContext(ctx, `DELETE FROM sources WHERE path = ?`, path)
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO sources(path, ids) VALUES(?, ?)
ON CONFLICT(path) DO UPDATE SET ids = excluded.ids`, path, storage.MarshalIDs(keep))
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
