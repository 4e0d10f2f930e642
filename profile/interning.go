package profile

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// stringTable is an insertion-ordered, deduplicated set of strings backed
// by a single concatenated buffer plus an index vector, so that
// stringArray can be emitted as one contiguous JSON array and handles
// compare as cheap integers (spec.md §4.1).
type stringTable struct {
	buf     strings.Builder
	offsets []int // start offset of string i in buf
	lengths []int
	index   map[uint64][]int32 // xxh3 hash -> candidate handles (collision list)
}

func newStringTable() *stringTable {
	return &stringTable{index: make(map[uint64][]int32)}
}

// HandleFor interns s, returning the same handle for equal strings
// (spec.md §4.1 "calling handle_for twice with equal keys returns the
// same handle").
func (t *stringTable) HandleFor(s string) StringHandle {
	h := xxh3.HashString(s)
	for _, candidate := range t.index[h] {
		if t.Get(StringHandle(candidate)) == s {
			return StringHandle(candidate)
		}
	}

	idx := int32(len(t.offsets))
	t.offsets = append(t.offsets, t.buf.Len())
	t.lengths = append(t.lengths, len(s))
	t.buf.WriteString(s)
	t.index[h] = append(t.index[h], idx)
	return StringHandle(idx)
}

// Get returns the interned string for h. Panics on an out-of-range handle
// since handles are only ever produced by HandleFor on this same table.
func (t *stringTable) Get(h StringHandle) string {
	off := t.offsets[h]
	return t.buf.String()[off : off+t.lengths[h]]
}

// Len returns the number of interned strings.
func (t *stringTable) Len() int { return len(t.offsets) }

// Array materializes the stringArray for JSON serialization.
func (t *stringTable) Array() []string {
	out := make([]string, t.Len())
	for i := range out {
		out[i] = t.Get(StringHandle(i))
	}
	return out
}
