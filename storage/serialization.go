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


package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/kbsearch/core"
)

// IDSize is the encoded length of a core.ID.
const IDSize = 8

// MarshalID encodes id as 8 big-endian bytes so encoded IDs sort numerically.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDSize)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID decodes an ID written by MarshalID.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < IDSize {
		return 0, ErrTruncatedData
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// MarshalIDs concatenates the encodings of ids.
func MarshalIDs(ids []core.ID) []byte {
	buf := make([]byte, 0, len(ids)*IDSize)
	for _, id := range ids {
		buf = binary.BigEndian.AppendUint64(buf, uint64(id))
	}
	return buf
}

// UnmarshalIDs decodes a list written by MarshalIDs.
func UnmarshalIDs(data []byte) ([]core.ID, error) {
	if len(data)%IDSize != 0 {
		return nil, ErrTruncatedData
	}
	ids := make([]core.ID, 0, len(data)/IDSize)
	for off := 0; off < len(data); off += IDSize {
		ids = append(ids, core.ID(binary.BigEndian.Uint64(data[off:])))
	}
	return ids, nil
}

type chunkRecord struct {
	Id             core.ID       `json:"id"`
	Content        string        `json:"content"`
	Vector         []float32     `json:"vector"`
	EmbeddingModel string        `json:"embedding_model,omitempty"`
	Metadata       core.Metadata `json:"metadata,omitempty"`
	IndexedAt      time.Time     `json:"indexed_at"`
}

// MarshalChunk encodes a chunk for storage.
func MarshalChunk(chunk *core.Chunk) ([]byte, error) {
	data, err := json.Marshal(chunkRecord{
		Id:             chunk.Id,
		Content:        chunk.Content,
		Vector:         chunk.Vector,
		EmbeddingModel: chunk.EmbeddingModel,
		Metadata:       chunk.Metadata,
		IndexedAt:      chunk.IndexedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %w", ErrSerializationFailed, chunk.Id, err)
	}
	return data, nil
}

// UnmarshalChunk decodes a chunk written by MarshalChunk.
// Metadata numbers decode as json.Number; core.Metadata accessors read them.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	var rec chunkRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &core.Chunk{
		Id:             rec.Id,
		Content:        rec.Content,
		Vector:         rec.Vector,
		EmbeddingModel: rec.EmbeddingModel,
		Metadata:       rec.Metadata,
		IndexedAt:      rec.IndexedAt,
	}, nil
}

// MarshalBlob encodes a metrics blob.
func MarshalBlob[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalBlob decodes a metrics blob. Empty data yields the zero value.
func UnmarshalBlob[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return v, nil
}
