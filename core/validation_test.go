package core

import (
	"errors"
	"testing"
)

func TestValidateChunk(t *testing.T) {
	source := Metadata{MetaFilePath: "/kb/a.md"}

	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name: "valid chunk",
			chunk: &Chunk{
				Id:       ChunkID("/kb/a.md", 0),
				Content:  "Deployments run every Tuesday after the staging sign-off.",
				Vector:   []float32{0.1, 0.2},
				Metadata: source,
			},
			wantErr: nil,
		},
		{
			name: "valid chunk without model tag",
			chunk: &Chunk{
				Content:  "content",
				Vector:   []float32{1},
				Metadata: source,
			},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name: "empty content",
			chunk: &Chunk{
				Vector:   []float32{1},
				Metadata: source,
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "missing vector",
			chunk: &Chunk{
				Content:  "content",
				Metadata: source,
			},
			wantErr: ErrMissingVector,
		},
		{
			name: "missing source path",
			chunk: &Chunk{
				Content: "content",
				Vector:  []float32{1},
			},
			wantErr: ErrMissingSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidateChunk() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidChunk) {
				t.Errorf("ValidateChunk() error = %v, want wrapped %v", err, ErrInvalidChunk)
			}
		})
	}
}
