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


package core

import (
	"fmt"
)

// ValidateChunk validates a Chunk before it is written to storage.
//
// Validation rules:
//   - Content must not be empty
//   - Vector must not be empty
//   - Metadata must carry the source file path
//
// NOT validated:
//   - ID (derived from path and index by the indexer)
//   - EmbeddingModel (empty for providers that do not report one)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingVector)
	}

	if chunk.SourcePath() == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingSource)
	}

	return nil
}
