package compiled

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// ValueTable deduplicates canonical candidate values by content.
// Values hash with CRC32 (IEEE); a hash hit is confirmed byte-for-byte, so
// colliding but different values still get separate slots.
type ValueTable struct {
	values  []json.RawMessage
	buckets map[uint32][]int
}

// NewValueTable creates an empty table.
func NewValueTable() *ValueTable {
	return &ValueTable{buckets: make(map[uint32][]int)}
}

// Add returns the slot for canonical, appending it if new.
func (t *ValueTable) Add(canonical []byte) int {
	h := Hash(canonical)
	for _, i := range t.buckets[h] {
		if bytes.Equal(t.values[i], canonical) {
			return i
		}
	}
	i := len(t.values)
	t.values = append(t.values, json.RawMessage(append([]byte(nil), canonical...)))
	t.buckets[h] = append(t.buckets[h], i)
	return i
}

// Values returns the slots in index order.
func (t *ValueTable) Values() []json.RawMessage {
	out := make([]json.RawMessage, len(t.values))
	copy(out, t.values)
	return out
}

// Len returns the number of distinct values.
func (t *ValueTable) Len() int { return len(t.values) }

// Hash is the content hash of canonical JSON bytes.
func Hash(canonical []byte) uint32 {
	return crc32.ChecksumIEEE(canonical)
}

// HashString formats Hash as eight hex digits.
func HashString(canonical []byte) string {
	return fmt.Sprintf("%08x", Hash(canonical))
}
