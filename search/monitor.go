package search

import (
	"log/slog"

	"github.com/poiesic/kbsearch/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterQueryEmbedding(dimensions int)
	SkippedChunk(chunk *core.Chunk, reason string)
	Scored(result *core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)            {}
func (n *noopMonitor) SkippedChunk(_ *core.Chunk, _ string) {}
func (n *noopMonitor) Scored(_ *core.SearchResult)          {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)        {}

// LoggingMonitor writes every search step to a logger at debug level,
// and the final ranking at info level.
type LoggingMonitor struct {
	logger *slog.Logger
}

var _ SearchMonitor = (*LoggingMonitor)(nil)

// NewLoggingMonitor creates a LoggingMonitor. A nil logger uses slog.Default().
func NewLoggingMonitor(logger *slog.Logger) *LoggingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMonitor{logger: logger.With("component", "search-monitor")}
}

func (m *LoggingMonitor) Start(query string) {
	m.logger.Debug("search started", "query", query)
}

func (m *LoggingMonitor) AfterQueryEmbedding(dimensions int) {
	m.logger.Debug("query embedded", "dimensions", dimensions)
}

func (m *LoggingMonitor) SkippedChunk(chunk *core.Chunk, reason string) {
	m.logger.Debug("chunk skipped", "id", chunk.Id, "path", chunk.SourcePath(), "reason", reason)
}

func (m *LoggingMonitor) Scored(result *core.SearchResult) {
	m.logger.Debug("chunk scored",
		"id", result.Chunk.Id,
		"path", result.Chunk.SourcePath(),
		"similarity", result.Similarity,
		"score", result.Score,
		"boosts", result.Boosts)
}

func (m *LoggingMonitor) Finish(results []*core.SearchResult) {
	for i, r := range results {
		m.logger.Info("result",
			"rank", i+1,
			"file", r.Chunk.FileName(),
			"chunk", r.Chunk.Metadata[core.MetaChunkIndex],
			"similarity", r.Similarity,
			"score", r.Score,
			"boosts", r.Boosts)
	}
}
