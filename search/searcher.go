package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// Defaults for Options.
const (
	DefaultMaxResults = 10
	DefaultThreshold  = 0.7
)

// Searcher ranks stored chunks against a query by cosine similarity
// followed by the boost policy.
type Searcher struct {
	chunks   storage.ChunkRepository
	metrics  storage.MetricsRepository
	embedder ai.Embedder
	model    string
	policy   BoostPolicy
	monitor  SearchMonitor
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithBoostPolicy replaces DefaultBoostPolicy. An empty policy ranks by
// raw similarity.
func WithBoostPolicy(policy BoostPolicy) Option {
	return func(s *Searcher) error {
		s.policy = policy
		return nil
	}
}

// WithMonitor installs a monitor that observes every search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(s *Searcher) error {
		s.now = now
		return nil
	}
}

// NewSearcher creates a new searcher. Only chunks tagged with
// provider.Model(), or not tagged at all, are compared with the query.
func NewSearcher(
	chunks storage.ChunkRepository,
	metrics storage.MetricsRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if metrics == nil {
		return nil, ErrMetricsRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		chunks:   chunks,
		metrics:  metrics,
		embedder: provider.Embedder(),
		model:    provider.Model(),
		policy:   DefaultBoostPolicy(),
		monitor:  &noopMonitor{},
		logger:   slog.Default().With("component", "searcher"),
		now:      time.Now,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Options controls a single search.
type Options struct {
	MaxResults  int                // Result cap; 0 means no results
	Threshold   float64            // Minimum boosted score
	BoostFields map[string]float64 // Metadata field -> factor (>= 1) applied when the field is present
}

// DefaultOptions returns the default search options.
func DefaultOptions() *Options {
	return &Options{
		MaxResults: DefaultMaxResults,
		Threshold:  DefaultThreshold,
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max results must not be negative, got %d", core.ErrValidation, o.MaxResults)
	}
	if math.IsNaN(o.Threshold) || math.IsInf(o.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", core.ErrValidation, o.Threshold)
	}
	return validateFactors(o.BoostFields)
}

// Response is the outcome of one search.
type Response struct {
	Success  bool
	Query    string
	Results  []*core.SearchResult // Ranked by Score, descending
	Scanned  int                  // Chunks compared with the query
	Skipped  int                  // Chunks without a vector or from another model
	Duration time.Duration
	Err      error
}

// Error returns the failure message, or "" on success.
func (r *Response) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Search embeds query, scores every stored chunk and returns those at or
// above the threshold, best first. A nil opts uses DefaultOptions.
// Failures are reported in the response, never returned.
func (s *Searcher) Search(ctx context.Context, query string, opts *Options) *Response {
	start := time.Now()
	if opts == nil {
		opts = DefaultOptions()
	}
	resp := &Response{Query: query}

	fail := func(err error) *Response {
		s.logger.Warn("search failed", "query", query, "err", err)
		resp.Results = nil
		resp.Duration = time.Since(start)
		resp.Err = err
		return resp
	}

	if err := opts.Validate(); err != nil {
		return fail(err)
	}
	if query == "" {
		return fail(fmt.Errorf("%w: query must not be empty", core.ErrValidation))
	}

	s.monitor.Start(query)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	count, err := s.chunks.CountChunks(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: counting chunks: %v", core.ErrIO, err))
	}
	if count == 0 {
		resp.Results = []*core.SearchResult{}
		return s.finish(ctx, resp, start)
	}

	queryVector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		if errors.Is(err, core.ErrProvider) {
			return fail(err)
		}
		return fail(fmt.Errorf("%w: embedding query: %v", core.ErrProvider, err))
	}
	s.monitor.AfterQueryEmbedding(len(queryVector))

	bc := NewBoostContext(query, s.now(), opts.BoostFields)
	var (
		results        []*core.SearchResult
		otherModels    int
		missingVectors int
	)

	err = s.chunks.ForEachChunk(ctx, func(chunk *core.Chunk) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if len(chunk.Vector) == 0 {
			missingVectors++
			s.monitor.SkippedChunk(chunk, "no vector")
			return nil
		}
		if chunk.EmbeddingModel != "" && s.model != "" && chunk.EmbeddingModel != s.model {
			otherModels++
			s.monitor.SkippedChunk(chunk, "embedded with "+chunk.EmbeddingModel)
			return nil
		}

		similarity, simErr := CosineSimilarity(queryVector, chunk.Vector)
		if simErr != nil {
			return fmt.Errorf("chunk %d of %s: %w", chunk.Id, chunk.SourcePath(), simErr)
		}
		resp.Scanned++

		score, boosts := s.policy.Apply(bc, chunk, similarity)
		result := &core.SearchResult{
			Chunk:      chunk,
			Similarity: similarity,
			Score:      score,
			Boosts:     boosts,
		}
		s.monitor.Scored(result)
		results = append(results, result)
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrDimensionMismatch) || ctx.Err() != nil {
			return fail(err)
		}
		return fail(fmt.Errorf("%w: scanning chunks: %v", core.ErrIO, err))
	}

	resp.Skipped = otherModels + missingVectors
	if otherModels > 0 {
		s.logger.Warn("skipped chunks embedded with another model",
			"count", otherModels,
			"model", s.model)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	kept := make([]*core.SearchResult, 0, min(len(results), opts.MaxResults))
	for _, r := range results {
		if len(kept) >= opts.MaxResults {
			break
		}
		if r.Score < opts.Threshold {
			// Sorted descending, so nothing after this qualifies.
			break
		}
		kept = append(kept, r)
	}
	resp.Results = kept

	return s.finish(ctx, resp, start)
}

// finish marks resp successful and records it in the search metrics.
// A metrics failure is logged; the search itself still succeeded.
func (s *Searcher) finish(ctx context.Context, resp *Response, start time.Time) *Response {
	resp.Success = true
	resp.Duration = time.Since(start)
	s.monitor.Finish(resp.Results)

	entry := core.QueryLogEntry{
		Query:       resp.Query,
		ResultCount: len(resp.Results),
		Duration:    resp.Duration,
		Timestamp:   s.now().UTC(),
	}
	if err := s.metrics.RecordSearch(ctx, entry); err != nil {
		s.logger.Warn("failed to record search metrics", "query", resp.Query, "err", err)
	}

	s.logger.Debug("search complete",
		"query", resp.Query,
		"results", len(resp.Results),
		"scanned", resp.Scanned,
		"skipped", resp.Skipped,
		"duration", resp.Duration)
	return resp
}
