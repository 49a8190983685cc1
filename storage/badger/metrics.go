package badger

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// MetricsRepository implements storage.MetricsRepository for BadgerDB.
// Each counter set is a single JSON blob; updates hold mu for the whole
// read-modify-write so concurrent indexers never lose increments.
type MetricsRepository struct {
	backend *Backend
	mu      sync.Mutex
}

var _ storage.MetricsRepository = (*MetricsRepository)(nil)

// NewMetricsRepository creates a new MetricsRepository.
func NewMetricsRepository(backend *Backend) *MetricsRepository {
	return &MetricsRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is closed by its owner.
func (r *MetricsRepository) Close() error {
	return nil
}

// AddIndexMetrics adds delta to the stored index counters.
func (r *MetricsRepository) AddIndexMetrics(ctx context.Context, delta core.IndexMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return updateBlob(r.backend, []byte(indexMetricsKey), func(m *core.IndexMetrics) {
		m.Add(delta, time.Now().UTC())
	})
}

// GetIndexMetrics returns the stored index counters.
func (r *MetricsRepository) GetIndexMetrics(ctx context.Context) (core.IndexMetrics, error) {
	return readBlob[core.IndexMetrics](r.backend, []byte(indexMetricsKey))
}

// RecordSearch adds entry to the search counters.
func (r *MetricsRepository) RecordSearch(ctx context.Context, entry core.QueryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return updateBlob(r.backend, []byte(searchMetricKey), func(m *core.SearchMetrics) {
		m.Record(entry)
	})
}

// GetSearchMetrics returns the stored search counters.
func (r *MetricsRepository) GetSearchMetrics(ctx context.Context) (core.SearchMetrics, error) {
	return readBlob[core.SearchMetrics](r.backend, []byte(searchMetricKey))
}

// ResetMetrics deletes both counter blobs.
func (r *MetricsRepository) ResetMetrics(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.backend.Update(func(tx *badger.Txn) error {
		if err := tx.Delete([]byte(indexMetricsKey)); err != nil {
			return err
		}
		return tx.Delete([]byte(searchMetricKey))
	})
}

func readBlob[T any](backend *Backend, key []byte) (T, error) {
	var v T
	err := backend.WithTx(func(tx *badger.Txn) error {
		data, err := backend.GetBlob(tx, key)
		if err != nil {
			return err
		}
		v, err = storage.UnmarshalBlob[T](data)
		return err
	}, false)
	return v, err
}

func updateBlob[T any](backend *Backend, key []byte, mutate func(*T)) error {
	return backend.Update(func(tx *badger.Txn) error {
		data, err := backend.GetBlob(tx, key)
		if err != nil {
			return err
		}
		v, err := storage.UnmarshalBlob[T](data)
		if err != nil {
			return err
		}
		mutate(&v)
		out, err := storage.MarshalBlob(v)
		if err != nil {
			return err
		}
		return tx.Set(key, out)
	})
}
