package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

const (
	indexMetricsName  = "index"
	searchMetricsName = "search"
)

// MetricsRepository implements storage.MetricsRepository on SQLite.
type MetricsRepository struct {
	db *DB
	mu sync.Mutex
}

var _ storage.MetricsRepository = (*MetricsRepository)(nil)

// NewMetricsRepository creates a new MetricsRepository.
func NewMetricsRepository(db *DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// Close is a no-op; the database is closed by its owner.
func (r *MetricsRepository) Close() error {
	return nil
}

// AddIndexMetrics adds delta to the stored index counters.
func (r *MetricsRepository) AddIndexMetrics(ctx context.Context, delta core.IndexMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return updateBlob(ctx, r.db, indexMetricsName, func(m *core.IndexMetrics) {
		m.Add(delta, time.Now().UTC())
	})
}

// GetIndexMetrics returns the stored index counters.
func (r *MetricsRepository) GetIndexMetrics(ctx context.Context) (core.IndexMetrics, error) {
	return readBlob[core.IndexMetrics](ctx, r.db.db, indexMetricsName)
}

// RecordSearch adds entry to the search counters.
func (r *MetricsRepository) RecordSearch(ctx context.Context, entry core.QueryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return updateBlob(ctx, r.db, searchMetricsName, func(m *core.SearchMetrics) {
		m.Record(entry)
	})
}

// GetSearchMetrics returns the stored search counters.
func (r *MetricsRepository) GetSearchMetrics(ctx context.Context) (core.SearchMetrics, error) {
	return readBlob[core.SearchMetrics](ctx, r.db.db, searchMetricsName)
}

// ResetMetrics clears both counter sets.
func (r *MetricsRepository) ResetMetrics(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.db.ExecContext(ctx, `DELETE FROM metrics`)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBlob[T any](ctx context.Context, q queryer, name string) (T, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM metrics WHERE name = ?`, name).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, err
	}
	return storage.UnmarshalBlob[T](data)
}

func updateBlob[T any](ctx context.Context, db *DB, name string, mutate func(*T)) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		v, err := readBlob[T](ctx, tx, name)
		if err != nil {
			return err
		}
		mutate(&v)
		data, err := storage.MarshalBlob(v)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO metrics(name, data) VALUES(?, ?)
ON CONFLICT(name) DO UPDATE SET data = excluded.data`, name, data)
		return err
	})
}
