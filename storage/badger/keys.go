package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/kbsearch/core"
)

// Key prefixes for different data types
const (
	chunkPrefix     = "chk:"
	chunkTimePrefix = "chkt:"
	sourcePrefix    = "src:"
	indexMetricsKey = "met:index"
	searchMetricKey = "met:search"
)

// makeChunkKey generates a key for a chunk by ID.
// Format: prefix + big-endian ID, so prefix iteration runs in ID order.
func makeChunkKey(id core.ID) []byte {
	buf := make([]byte, len(chunkPrefix)+8)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// chunkIDFromKey extracts the ID from a chunk key.
func chunkIDFromKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(chunkPrefix):]))
}

// makeChunkTimeKey generates a composite key for the time index.
// Format: prefix:timestamp:id
func makeChunkTimeKey(timestamp time.Time, id core.ID) []byte {
	buf := make([]byte, len(chunkTimePrefix)+16) // 8 bytes for timestamp + 8 bytes for ID
	offset := copy(buf, chunkTimePrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeSourceKey generates the key of the chunk-ID set for a source path.
func makeSourceKey(path string) []byte {
	return []byte(sourcePrefix + path)
}
