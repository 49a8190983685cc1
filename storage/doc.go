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


// Package storage provides the storage abstraction layer for kbsearch.
//
// This package defines repository interfaces that decouple the indexer and
// searcher from the persistence engine, plus the value codecs shared by
// every substrate.
//
// # Substrates
//
//   - storage/badger: BadgerDB key/value store (default)
//   - storage/sqlite: embedded SQLite database
//
// Both hold the same four kinds of data: chunk records keyed by ID, a
// time-ordered index of chunk IDs, a chunk-ID set per source path, and
// index/search metrics blobs.
//
// # Architecture
//
//   - ChunkRepository: chunk records, time index and per-source ID sets
//   - MetricsRepository: index and search counters
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	chunks := badger.NewChunkRepository(backend)
//	metrics := badger.NewMetricsRepository(backend)
//
// Use in tests with in-memory storage:
//
//	chunks, metrics, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. Metrics updates are
// read-modify-write and are serialized inside each implementation.
package storage
