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

import "errors"

// Failure taxonomy shared by the indexer, searcher and harness.
// Component errors wrap one of these so callers can test with errors.Is.
var (
	// ErrNotFound indicates a missing file or directory.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates a file that exists but cannot be read.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrIO indicates a read or write failure.
	ErrIO = errors.New("i/o error")

	// ErrEmptyInput indicates a zero-length document.
	ErrEmptyInput = errors.New("empty input")

	// ErrDimensionMismatch indicates two embedding vectors of different length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrProvider indicates the embedding provider call failed.
	ErrProvider = errors.New("embedding provider error")

	// ErrValidation indicates malformed options or records.
	ErrValidation = errors.New("validation error")
)

// Domain validation errors
var (
	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrMissingVector indicates a chunk without an embedding.
	ErrMissingVector = errors.New("chunk has no embedding")

	// ErrMissingSource indicates a chunk without a file_path metadata entry.
	ErrMissingSource = errors.New("chunk has no source path")
)
