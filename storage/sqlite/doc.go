// Package sqlite implements the storage repositories on an embedded SQLite
// database using the pure-Go modernc.org/sqlite driver.
//
// Chunks are stored as encoded blobs keyed by fixed-width hex IDs, with an
// indexed_at column serving as the time index. Source chunk-ID sets and
// metrics counters live in their own tables.
//
//	db, err := sqlite.Open("/var/lib/kbsearch/kb.sqlite")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	chunks := sqlite.NewChunkRepository(db)
//	metrics := sqlite.NewMetricsRepository(db)
package sqlite
