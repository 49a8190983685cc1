package search

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTokens(t *testing.T) {
	assert.Equal(t, []string{"deployment", "process"}, queryTokens("Deployment  process"))
	assert.Equal(t, []string{"deploy", "deploy"}, queryTokens("deploy the deploy"))
	assert.Empty(t, queryTokens("how to do it"))
	assert.Equal(t, []string{"café"}, queryTokens("café de"), "length is counted in characters")
}

func TestKeywordBoost(t *testing.T) {
	boost := KeywordBoost(DefaultKeywordWeight)
	chunk := &core.Chunk{Content: "The Deployment pipeline promotes builds after review."}

	tests := []struct {
		query string
		want  float64
	}{
		{query: "deployment process", want: 1.1},
		{query: "deployment pipeline", want: 1.2},
		{query: "deployment deployment", want: 1.2},
		{query: "the api", want: 1.0},
		{query: "billing invoices", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			bc := NewBoostContext(tt.query, time.Now(), nil)
			assert.InDelta(t, tt.want, boost.Factor(bc, chunk), 1e-9)
		})
	}
}

func TestRecencyBoost(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bc := NewBoostContext("q", now, nil)
	boost := RecencyBoost(DefaultRecencyWindow, DefaultRecencyFactor)

	t.Run("recent metadata timestamp", func(t *testing.T) {
		chunk := &core.Chunk{Metadata: core.Metadata{core.MetaIndexedAt: now.Add(-24 * time.Hour).Unix()}}
		assert.Equal(t, DefaultRecencyFactor, boost.Factor(bc, chunk))
	})

	t.Run("old metadata timestamp", func(t *testing.T) {
		chunk := &core.Chunk{Metadata: core.Metadata{core.MetaIndexedAt: now.Add(-31 * 24 * time.Hour).Unix()}}
		assert.Equal(t, 1.0, boost.Factor(bc, chunk))
	})

	t.Run("metadata wins over record time", func(t *testing.T) {
		chunk := &core.Chunk{
			IndexedAt: now,
			Metadata:  core.Metadata{core.MetaIndexedAt: now.Add(-90 * 24 * time.Hour).Unix()},
		}
		assert.Equal(t, 1.0, boost.Factor(bc, chunk))
	})

	t.Run("falls back to record time", func(t *testing.T) {
		chunk := &core.Chunk{IndexedAt: now.Add(-time.Hour)}
		assert.Equal(t, DefaultRecencyFactor, boost.Factor(bc, chunk))
	})

	t.Run("no timestamp", func(t *testing.T) {
		assert.Equal(t, 1.0, boost.Factor(bc, &core.Chunk{}))
	})
}

func TestFileTypeBoost(t *testing.T) {
	boost := FileTypeBoost(DefaultFileTypeFactors)
	bc := NewBoostContext("q", time.Now(), nil)

	tests := []struct {
		fileType string
		want     float64
	}{
		{fileType: "md", want: 1.10},
		{fileType: "MD", want: 1.10},
		{fileType: ".md", want: 1.10},
		{fileType: "php", want: 1.05},
		{fileType: "go", want: 1.05},
		{fileType: "txt", want: 1.00},
		{fileType: "json", want: 1.00},
		{fileType: "", want: 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.fileType, func(t *testing.T) {
			chunk := &core.Chunk{Metadata: core.Metadata{core.MetaFileType: tt.fileType}}
			assert.Equal(t, tt.want, boost.Factor(bc, chunk))
		})
	}
}

func TestFieldBoost(t *testing.T) {
	boost := FieldBoost()
	bc := NewBoostContext("q", time.Now(), map[string]float64{"team": 1.5, "pinned": 2})

	assert.Equal(t, 1.5, boost.Factor(bc, &core.Chunk{Metadata: core.Metadata{"team": "ops"}}))
	assert.Equal(t, 3.0, boost.Factor(bc, &core.Chunk{Metadata: core.Metadata{"team": "ops", "pinned": true}}))
	assert.Equal(t, 1.0, boost.Factor(bc, &core.Chunk{Metadata: core.Metadata{"team": nil}}))
	assert.Equal(t, 1.0, boost.Factor(bc, &core.Chunk{}))
}

func TestBoostPolicy_Apply(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	chunk := &core.Chunk{
		Content: "Our deployment checklist lives here.",
		Metadata: core.Metadata{
			core.MetaFileType:  "md",
			core.MetaIndexedAt: now.Add(-60 * 24 * time.Hour).Unix(),
		},
	}
	bc := NewBoostContext("deployment process", now, nil)

	score, applied := DefaultBoostPolicy().Apply(bc, chunk, 0.72)
	assert.InDelta(t, 0.72*1.1*1.1, score, 1e-9)
	assert.Equal(t, map[string]float64{"keyword": 1.1, "filetype": 1.1}, applied)

	t.Run("empty policy", func(t *testing.T) {
		score, applied := BoostPolicy{}.Apply(bc, chunk, 0.72)
		assert.Equal(t, 0.72, score)
		assert.Nil(t, applied)
	})

	t.Run("names in order", func(t *testing.T) {
		assert.Equal(t, []string{"keyword", "recency", "filetype", "fields"}, DefaultBoostPolicy().Names())
	})
}

func TestBoostPolicy_Monotonic(t *testing.T) {
	now := time.Now()
	chunks := []*core.Chunk{
		{Content: "nothing relevant"},
		{Content: "deployment deployment", Metadata: core.Metadata{core.MetaFileType: "md", core.MetaIndexedAt: now.Unix()}},
		{Content: "process notes", Metadata: core.Metadata{core.MetaFileType: "php", "team": "ops"}},
	}
	bc := NewBoostContext("deployment process", now, map[string]float64{"team": 1.3})

	for _, chunk := range chunks {
		for _, sim := range []float64{0, 0.1, 0.5, 0.72, 1} {
			score, _ := DefaultBoostPolicy().Apply(bc, chunk, sim)
			assert.GreaterOrEqual(t, score, sim)
		}
	}
}

func TestValidateFactors(t *testing.T) {
	require.NoError(t, validateFactors(nil))
	require.NoError(t, validateFactors(map[string]float64{"a": 1, "b": 2.5}))

	for name, f := range map[string]float64{
		"below one": 0.5,
		"negative":  -2,
		"nan":       math.NaN(),
		"infinite":  math.Inf(1),
	} {
		t.Run(name, func(t *testing.T) {
			err := validateFactors(map[string]float64{"field": f})
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}
