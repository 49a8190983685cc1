package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultMinChunkSize  = 50
	DefaultBoundaryRatio = 0.7
)

// Chunker splits documents into overlapping windows.
// All sizes count characters (runes), not bytes.
type Chunker struct {
	// Size is the maximum window length.
	Size int
	// Overlap is how far each window reaches back into the previous one.
	Overlap int
	// MinSize is the shortest trimmed chunk that is kept.
	MinSize int
	// BoundaryRatio is how far into a window a period must sit for the
	// window to be cut after it instead of at Size.
	BoundaryRatio float64
}

// Segment is one retained chunk of a document.
type Segment struct {
	Index   int    // Position among retained segments
	Start   int    // Rune offset of the window start
	End     int    // Rune offset one past the window end
	Content string // Trimmed window text
}

// DefaultChunker returns a Chunker with the default parameters.
func DefaultChunker() Chunker {
	return Chunker{
		Size:          DefaultChunkSize,
		Overlap:       DefaultChunkOverlap,
		MinSize:       DefaultMinChunkSize,
		BoundaryRatio: DefaultBoundaryRatio,
	}
}

// Validate checks that the parameters can make progress.
func (c Chunker) Validate() error {
	switch {
	case c.Size < 1:
		return fmt.Errorf("%w: size must be positive", ErrInvalidChunker)
	case c.Overlap < 0 || c.Overlap >= c.Size:
		return fmt.Errorf("%w: overlap must be in [0, size)", ErrInvalidChunker)
	case c.MinSize < 0:
		return fmt.Errorf("%w: min size must not be negative", ErrInvalidChunker)
	case c.BoundaryRatio < 0 || c.BoundaryRatio > 1:
		return fmt.Errorf("%w: boundary ratio must be in [0, 1]", ErrInvalidChunker)
	}
	return nil
}

// Split cuts text into segments. Windows that are not the last one end
// right after their final period when that period lies past
// BoundaryRatio of the window. Segments shorter than MinSize after
// trimming are dropped.
func (c Chunker) Split(text string) []Segment {
	runes := []rune(text)
	n := len(runes)

	var segments []Segment
	start := 0
	for start < n {
		end := min(start+c.Size, n)
		last := end == n

		cut := end
		if !last {
			window := runes[start:end]
			if dot := lastIndexRune(window, '.'); dot >= 0 && float64(dot) > c.BoundaryRatio*float64(len(window)) {
				cut = start + dot + 1
			}
		}

		content := strings.TrimSpace(string(runes[start:cut]))
		if utf8.RuneCountInString(content) >= c.MinSize && content != "" {
			segments = append(segments, Segment{
				Index:   len(segments),
				Start:   start,
				End:     cut,
				Content: content,
			})
		}

		if last {
			break
		}
		next := cut - c.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return segments
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
