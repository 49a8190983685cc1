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


package relevance

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/search"
)

// Evaluation parameters. The threshold is looser than the search default
// so borderline rankings stay visible.
const (
	EvalMaxResults     = 10
	EvalThreshold      = 0.6
	MinKeywordMatches  = 2
	DefaultGateHitRate = 80.0
)

// Searcher is the search surface the harness drives.
type Searcher interface {
	Search(ctx context.Context, query string, opts *search.Options) *search.Response
}

var _ Searcher = (*search.Searcher)(nil)

// Harness runs golden queries and grades the results.
type Harness struct {
	searcher    Searcher
	queries     []GoldenQuery
	gateHitRate float64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Harness.
type Option func(*Harness) error

// WithQueries replaces DefaultGoldenQueries.
func WithQueries(queries []GoldenQuery) Option {
	return func(h *Harness) error {
		if len(queries) == 0 {
			return ErrNoGoldenQueries
		}
		for _, q := range queries {
			if err := q.Validate(); err != nil {
				return err
			}
		}
		h.queries = queries
		return nil
	}
}

// WithGateHitRate sets the hit rate @3 percentage the gate requires.
// Default is DefaultGateHitRate.
func WithGateHitRate(pct float64) Option {
	return func(h *Harness) error {
		h.gateHitRate = pct
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) error {
		if logger == nil {
			logger = slog.Default()
		}
		h.logger = logger.With("component", "relevance")
		return nil
	}
}

// NewHarness creates a harness over searcher.
func NewHarness(searcher Searcher, opts ...Option) (*Harness, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}

	h := &Harness{
		searcher:    searcher,
		queries:     DefaultGoldenQueries(),
		gateHitRate: DefaultGateHitRate,
		logger:      slog.Default().With("component", "relevance"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Queries returns the golden queries the harness runs.
func (h *Harness) Queries() []GoldenQuery {
	return h.queries
}

// TestResult is the graded outcome of one golden query.
type TestResult struct {
	Query             GoldenQuery   `json:"query"`
	Passed            bool          `json:"passed"`
	Top1Hit           bool          `json:"top1_hit"`
	Top3Hit           bool          `json:"top3_hit"`
	Top5Hit           bool          `json:"top5_hit"`
	AverageSimilarity float64       `json:"average_similarity"` // Mean boosted score, 0 without results
	KeywordMatches    int           `json:"keyword_matches"`    // Results containing any expected keyword
	ResultCount       int           `json:"result_count"`
	Duration          time.Duration `json:"duration"`
	Error             string        `json:"error,omitempty"`
	Files             []string      `json:"files"` // Ranked result file names
}

// Summary aggregates a run. Rates are percentages.
type Summary struct {
	Total           int           `json:"total"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	PassRate        float64       `json:"pass_rate"`
	HitRate1        float64       `json:"hit_rate_at_1"`
	HitRate3        float64       `json:"hit_rate_at_3"`
	HitRate5        float64       `json:"hit_rate_at_5"`
	AverageDuration time.Duration `json:"average_duration"`
}

// GateStatus is the verdict of the quality gate.
type GateStatus string

const (
	GatePassed GateStatus = "passed"
	GateFailed GateStatus = "failed"
)

// Gate is the quality gate evaluation: hit rate @3 against the required rate.
type Gate struct {
	Status    GateStatus `json:"status"`
	HitRate3  float64    `json:"hit_rate_at_3"`
	Threshold float64    `json:"threshold"`
}

// Passed reports whether the gate passed.
func (g Gate) Passed() bool {
	return g.Status == GatePassed
}

// Report is the full outcome of Run.
type Report struct {
	Summary     Summary      `json:"summary"`
	Gate        Gate         `json:"gate"`
	Results     []TestResult `json:"results"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Run executes every golden query in order. A failed search fails its
// query and the run continues.
func (h *Harness) Run(ctx context.Context) *Report {
	opts := &search.Options{MaxResults: EvalMaxResults, Threshold: EvalThreshold}

	results := make([]TestResult, 0, len(h.queries))
	for _, q := range h.queries {
		if ctx.Err() != nil {
			results = append(results, TestResult{Query: q, Error: ctx.Err().Error()})
			continue
		}
		resp := h.searcher.Search(ctx, q.Query, opts)
		result := Evaluate(q, resp)
		h.logger.Debug("golden query evaluated",
			"query", q.Query,
			"passed", result.Passed,
			"top3", result.Top3Hit,
			"avg", result.AverageSimilarity,
			"keywords", result.KeywordMatches)
		results = append(results, result)
	}

	summary := Summarize(results)
	gate := Gate{Status: GateFailed, HitRate3: summary.HitRate3, Threshold: h.gateHitRate}
	if summary.Total > 0 && summary.HitRate3 >= h.gateHitRate {
		gate.Status = GatePassed
	}

	h.logger.Info("relevance run complete",
		"total", summary.Total,
		"passed", summary.Passed,
		"hit_rate_at_3", summary.HitRate3,
		"gate", gate.Status)

	return &Report{
		Summary:     summary,
		Gate:        gate,
		Results:     results,
		GeneratedAt: h.now().UTC(),
	}
}

// Evaluate grades one search response against its golden query.
func Evaluate(q GoldenQuery, resp *search.Response) TestResult {
	result := TestResult{Query: q}
	if resp == nil {
		result.Error = "no response"
		return result
	}
	result.Duration = resp.Duration
	if !resp.Success {
		result.Error = resp.Error()
		return result
	}

	expected := make(map[string]struct{}, len(q.ExpectedFiles))
	for _, f := range q.ExpectedFiles {
		expected[filepath.Base(f)] = struct{}{}
	}
	keywords := make([]string, 0, len(q.ExpectedKeywords))
	for _, k := range q.ExpectedKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	var total float64
	for rank, r := range resp.Results {
		name := resultFileName(r.Chunk)
		result.Files = append(result.Files, name)
		total += r.Score

		if _, ok := expected[name]; ok {
			switch {
			case rank < 1:
				result.Top1Hit = true
				fallthrough
			case rank < 3:
				result.Top3Hit = true
				fallthrough
			case rank < 5:
				result.Top5Hit = true
			}
		}

		content := strings.ToLower(r.Chunk.Content)
		for _, k := range keywords {
			if strings.Contains(content, k) {
				result.KeywordMatches++
				break
			}
		}
	}

	result.ResultCount = len(resp.Results)
	if result.ResultCount > 0 {
		result.AverageSimilarity = total / float64(result.ResultCount)
	}
	result.Passed = result.Top3Hit &&
		result.AverageSimilarity >= q.MinSimilarity &&
		result.KeywordMatches >= MinKeywordMatches
	return result
}

func resultFileName(chunk *core.Chunk) string {
	if name := chunk.FileName(); name != "" {
		return name
	}
	return filepath.Base(chunk.SourcePath())
}

// Summarize aggregates graded results.
func Summarize(results []TestResult) Summary {
	s := Summary{Total: len(results)}
	if s.Total == 0 {
		return s
	}

	var top1, top3, top5 int
	var duration time.Duration
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		if r.Top1Hit {
			top1++
		}
		if r.Top3Hit {
			top3++
		}
		if r.Top5Hit {
			top5++
		}
		duration += r.Duration
	}

	total := float64(s.Total)
	s.Failed = s.Total - s.Passed
	s.PassRate = float64(s.Passed) / total * 100
	s.HitRate1 = float64(top1) / total * 100
	s.HitRate3 = float64(top3) / total * 100
	s.HitRate5 = float64(top5) / total * 100
	s.AverageDuration = duration / time.Duration(s.Total)
	return s
}
