package search

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/kbsearch/core"
)

// Default boost parameters.
const (
	DefaultKeywordWeight = 0.10
	DefaultRecencyWindow = 30 * 24 * time.Hour
	DefaultRecencyFactor = 1.05
)

// DefaultFileTypeFactors maps file extensions to their boost.
// Extensions not listed get 1.0.
var DefaultFileTypeFactors = map[string]float64{
	"md":       1.10,
	"markdown": 1.10,
	"go":       1.05,
	"php":      1.05,
	"py":       1.05,
	"js":       1.05,
	"ts":       1.05,
	"rb":       1.05,
	"java":     1.05,
	"txt":      1.00,
}

// BoostContext is the per-query input shared by all boosters.
type BoostContext struct {
	Tokens []string           // Lower-cased query tokens eligible for keyword matching
	Now    time.Time          // Reference time for recency
	Fields map[string]float64 // Caller-supplied metadata field factors
}

// NewBoostContext prepares the boost input for a query.
func NewBoostContext(query string, now time.Time, fields map[string]float64) *BoostContext {
	return &BoostContext{
		Tokens: queryTokens(query),
		Now:    now,
		Fields: fields,
	}
}

// Booster computes one multiplicative factor for a chunk.
// Factors are at least 1.
type Booster interface {
	Name() string
	Factor(bc *BoostContext, chunk *core.Chunk) float64
}

// BoosterFunc adapts a function to the Booster interface.
type BoosterFunc struct {
	BoostName string
	Fn        func(bc *BoostContext, chunk *core.Chunk) float64
}

// Name returns the booster name.
func (b BoosterFunc) Name() string { return b.BoostName }

// Factor calls Fn.
func (b BoosterFunc) Factor(bc *BoostContext, chunk *core.Chunk) float64 { return b.Fn(bc, chunk) }

// KeywordBoost multiplies by 1 + weight for every query token found in
// the lower-cased chunk content.
func KeywordBoost(weight float64) Booster {
	return BoosterFunc{
		BoostName: "keyword",
		Fn: func(bc *BoostContext, chunk *core.Chunk) float64 {
			if len(bc.Tokens) == 0 {
				return 1
			}
			matches := countMatches(strings.ToLower(chunk.Content), bc.Tokens)
			return 1 + weight*float64(matches)
		},
	}
}

// RecencyBoost applies factor to chunks indexed less than window ago.
// The indexed_at metadata entry is used when present, otherwise the
// chunk record's write time.
func RecencyBoost(window time.Duration, factor float64) Booster {
	return BoosterFunc{
		BoostName: "recency",
		Fn: func(bc *BoostContext, chunk *core.Chunk) float64 {
			indexed, ok := chunk.Metadata.Time(core.MetaIndexedAt)
			if !ok {
				indexed = chunk.IndexedAt
			}
			if indexed.IsZero() {
				return 1
			}
			if bc.Now.Sub(indexed) < window {
				return factor
			}
			return 1
		},
	}
}

// FileTypeBoost applies the factor registered for the chunk's file type.
func FileTypeBoost(factors map[string]float64) Booster {
	return BoosterFunc{
		BoostName: "filetype",
		Fn: func(bc *BoostContext, chunk *core.Chunk) float64 {
			ext := strings.TrimPrefix(strings.ToLower(chunk.Metadata.String(core.MetaFileType)), ".")
			if f, ok := factors[ext]; ok {
				return f
			}
			return 1
		},
	}
}

// FieldBoost multiplies by each caller-supplied factor whose metadata
// field is present with a non-nil value.
func FieldBoost() Booster {
	return BoosterFunc{
		BoostName: "fields",
		Fn: func(bc *BoostContext, chunk *core.Chunk) float64 {
			factor := 1.0
			for field, f := range bc.Fields {
				if chunk.Metadata.Has(field) {
					factor *= f
				}
			}
			return factor
		},
	}
}

// BoostPolicy is an ordered list of boosters applied multiplicatively.
type BoostPolicy []Booster

// DefaultBoostPolicy applies keyword, recency, file-type and caller
// field boosts, in that order.
func DefaultBoostPolicy() BoostPolicy {
	return BoostPolicy{
		KeywordBoost(DefaultKeywordWeight),
		RecencyBoost(DefaultRecencyWindow, DefaultRecencyFactor),
		FileTypeBoost(DefaultFileTypeFactors),
		FieldBoost(),
	}
}

// Apply returns similarity multiplied by every booster's factor, and the
// factors other than 1 keyed by booster name.
func (p BoostPolicy) Apply(bc *BoostContext, chunk *core.Chunk, similarity float64) (float64, map[string]float64) {
	score := similarity
	var applied map[string]float64
	for _, b := range p {
		f := b.Factor(bc, chunk)
		if f == 1 {
			continue
		}
		score *= f
		if applied == nil {
			applied = make(map[string]float64, len(p))
		}
		applied[b.Name()] = f
	}
	return score, applied
}

// Names lists the booster names in application order.
func (p BoostPolicy) Names() []string {
	names := make([]string, len(p))
	for i, b := range p {
		names[i] = b.Name()
	}
	return names
}

// validateFactors rejects factors below 1 and non-finite values.
func validateFactors(fields map[string]float64) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		f := fields[k]
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
			return fmt.Errorf("%w: boost factor for %q must be a finite number >= 1, got %v", core.ErrValidation, k, f)
		}
	}
	return nil
}
