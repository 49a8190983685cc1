package core

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestChunkID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ChunkID("/docs/a.md", 3), ChunkID("/docs/a.md", 3))
	})

	t.Run("unique per path and index", func(t *testing.T) {
		seen := make(map[ID]string)
		for _, path := range []string{"/docs/a.md", "/docs/b.md", "/docs/a.md1"} {
			for i := 0; i < 20; i++ {
				id := ChunkID(path, i)
				key := fmt.Sprintf("%s/%d", path, i)
				prev, dup := seen[id]
				require.False(t, dup, "collision between %s and %s", prev, key)
				seen[id] = key
			}
		}
	})
}

func TestSearchMetrics_Record(t *testing.T) {
	var m SearchMetrics
	now := time.Now().UTC()

	for i := 0; i < MaxRecentQueries+25; i++ {
		m.Record(QueryLogEntry{
			Query:       fmt.Sprintf("q%d", i),
			ResultCount: 2,
			Duration:    time.Millisecond,
			Timestamp:   now,
		})
	}

	assert.Equal(t, int64(MaxRecentQueries+25), m.TotalSearches)
	assert.Equal(t, int64(2*(MaxRecentQueries+25)), m.TotalResults)
	assert.Equal(t, time.Duration(MaxRecentQueries+25)*time.Millisecond, m.TotalDuration)
	require.Len(t, m.Recent, MaxRecentQueries)
	assert.Equal(t, "q25", m.Recent[0].Query, "oldest entries are evicted first")
	assert.Equal(t, fmt.Sprintf("q%d", MaxRecentQueries+24), m.Recent[len(m.Recent)-1].Query)
	assert.Equal(t, time.Millisecond, m.AverageDuration())
	assert.InDelta(t, 2.0, m.AverageResults(), 1e-9)
}

func TestSearchMetrics_Averages_Empty(t *testing.T) {
	var m SearchMetrics
	assert.Zero(t, m.AverageDuration())
	assert.Zero(t, m.AverageResults())
}

func TestIndexMetrics_Add(t *testing.T) {
	var m IndexMetrics
	now := time.Now().UTC()
	m.Add(IndexMetrics{DocumentsIndexed: 1, ChunksIndexed: 3, EmbeddingsGenerated: 3, CharactersProcessed: 2500, TotalDuration: time.Second}, now)
	m.Add(IndexMetrics{DocumentsIndexed: 1, ChunksIndexed: 1, EmbeddingsGenerated: 1, CharactersProcessed: 100, TotalDuration: time.Second}, now)

	assert.Equal(t, int64(2), m.DocumentsIndexed)
	assert.Equal(t, int64(4), m.ChunksIndexed)
	assert.Equal(t, int64(4), m.EmbeddingsGenerated)
	assert.Equal(t, int64(2600), m.CharactersProcessed)
	assert.Equal(t, 2*time.Second, m.TotalDuration)
	assert.Equal(t, now, m.LastUpdated)
}

func TestMetadata_Accessors(t *testing.T) {
	indexed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	original := Metadata{
		MetaFilePath:  "/kb/deploy.md",
		MetaFileSize:  2048,
		MetaIndexedAt: indexed.Unix(),
		"team":        "ops",
		"empty":       nil,
	}

	// Values must read the same before and after a JSON round trip.
	data, err := json.Marshal(original)
	require.NoError(t, err)
	var decoded Metadata
	require.NoError(t, json.Unmarshal(data, &decoded))

	for name, m := range map[string]Metadata{"native": original, "json": decoded} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "/kb/deploy.md", m.String(MetaFilePath))
			size, ok := m.Int64(MetaFileSize)
			require.True(t, ok)
			assert.Equal(t, int64(2048), size)
			ts, ok := m.Time(MetaIndexedAt)
			require.True(t, ok)
			assert.True(t, indexed.Equal(ts))
			assert.True(t, m.Has("team"))
			assert.False(t, m.Has("empty"))
			assert.False(t, m.Has("missing"))
			assert.Equal(t, "", m.String("missing"))
		})
	}
}

func TestMetadata_Clone(t *testing.T) {
	var nilMeta Metadata
	clone := nilMeta.Clone()
	require.NotNil(t, clone)
	clone["a"] = 1
	assert.Nil(t, nilMeta)

	src := Metadata{"a": 1}
	cp := src.Clone()
	cp["a"] = 2
	assert.Equal(t, 1, src["a"])
}

func TestChunk_SourceAccessors(t *testing.T) {
	c := &Chunk{Metadata: Metadata{MetaFilePath: "/kb/a.md", MetaFileName: "a.md"}}
	assert.Equal(t, "/kb/a.md", c.SourcePath())
	assert.Equal(t, "a.md", c.FileName())
}
