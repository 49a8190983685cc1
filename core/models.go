package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID returns the stable identifier of the chunk at index within the
// document at path. Re-indexing the same path yields the same IDs.
func ChunkID(path string, index int) ID {
	return IDFromContent(path + "#" + strconv.Itoa(index))
}

// Well-known metadata keys.
const (
	MetaFilePath     = "file_path"
	MetaFileName     = "file_name"
	MetaFileSize     = "file_size"
	MetaFileType     = "file_type"
	MetaIndexedAt    = "indexed_at"
	MetaLastModified = "last_modified"
	MetaChunkIndex   = "chunk_index"
	MetaChunkCount   = "chunk_count"
	MetaChunkSize    = "chunk_size"
)

// Chunk is a bounded, overlapping substring of an indexed document.
// It is the unit of embedding and retrieval.
type Chunk struct {
	Id             ID
	Content        string
	Vector         []float32 // Embedding of Content
	EmbeddingModel string    // Model that produced Vector
	Metadata       Metadata
	IndexedAt      time.Time // When the record was written; drives the time index
}

// SourcePath returns the path of the document the chunk was cut from.
func (c *Chunk) SourcePath() string {
	return c.Metadata.String(MetaFilePath)
}

// FileName returns the base name of the source document.
func (c *Chunk) FileName() string {
	return c.Metadata.String(MetaFileName)
}

// IndexMetrics are store-wide counters that only ever grow.
type IndexMetrics struct {
	DocumentsIndexed    int64         `json:"documents_indexed"`
	ChunksIndexed       int64         `json:"chunks_indexed"`
	EmbeddingsGenerated int64         `json:"embeddings_generated"`
	CharactersProcessed int64         `json:"characters_processed"`
	TotalDuration       time.Duration `json:"total_duration"`
	LastUpdated         time.Time     `json:"last_updated"`
}

// Add accumulates delta into m and stamps LastUpdated.
func (m *IndexMetrics) Add(delta IndexMetrics, now time.Time) {
	m.DocumentsIndexed += delta.DocumentsIndexed
	m.ChunksIndexed += delta.ChunksIndexed
	m.EmbeddingsGenerated += delta.EmbeddingsGenerated
	m.CharactersProcessed += delta.CharactersProcessed
	m.TotalDuration += delta.TotalDuration
	m.LastUpdated = now
}

// MaxRecentQueries bounds SearchMetrics.Recent.
const MaxRecentQueries = 100

// QueryLogEntry records a single completed search.
type QueryLogEntry struct {
	Query       string        `json:"query"`
	ResultCount int           `json:"result_count"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SearchMetrics aggregates search activity.
// Recent holds at most MaxRecentQueries entries, oldest first.
type SearchMetrics struct {
	TotalSearches int64           `json:"total_searches"`
	TotalResults  int64           `json:"total_results"`
	TotalDuration time.Duration   `json:"total_duration"`
	Recent        []QueryLogEntry `json:"recent"`
}

// Record adds entry to the aggregate counters and the recent-query ring.
func (m *SearchMetrics) Record(entry QueryLogEntry) {
	m.TotalSearches++
	m.TotalResults += int64(entry.ResultCount)
	m.TotalDuration += entry.Duration
	m.Recent = append(m.Recent, entry)
	if over := len(m.Recent) - MaxRecentQueries; over > 0 {
		m.Recent = append(m.Recent[:0:0], m.Recent[over:]...)
	}
}

// AverageDuration returns the mean search duration, or 0 with no searches.
func (m *SearchMetrics) AverageDuration() time.Duration {
	if m.TotalSearches == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.TotalSearches)
}

// AverageResults returns the mean number of results per search.
func (m *SearchMetrics) AverageResults() float64 {
	if m.TotalSearches == 0 {
		return 0
	}
	return float64(m.TotalResults) / float64(m.TotalSearches)
}

// SearchResult is a ranked chunk match.
// Similarity is the raw cosine similarity; Score is after boosting.
type SearchResult struct {
	Chunk      *Chunk
	Similarity float64
	Score      float64
	Boosts     map[string]float64 // Factors other than 1.0 applied, by boost name
}
