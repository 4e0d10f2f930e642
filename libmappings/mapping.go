// Package libmappings implements the interval map of loaded library/JIT
// mappings that the stack conversion pipeline consults to turn a raw
// address into a (library, relative-address) pair (spec.md §4.2/§4.3).
package libmappings

import "sort"

// Mapping is one entry of a LibMappings interval map: the half-open
// virtual-address range [Start, End) it covers, the relative address of
// Start within the backing image, and the caller-supplied Value (the
// reporter stores a stackconv.LibMappingInfo for native libraries; the
// jitdump and perf-map ingest stages store their own per-entry values).
type Mapping struct {
	Start      uint64
	End        uint64
	RelAtStart uint32
	Value      any
}

// LibMappings is a single ordered interval map keyed on Start, matching
// spec.md §4.2's contract. It is not safe for concurrent use; callers
// serialize access through the single-writer resolution pass
// (SPEC_FULL.md §5).
type LibMappings struct {
	entries []Mapping // kept sorted by Start
}

func New() *LibMappings { return &LibMappings{} }

func (m *LibMappings) search(start uint64) int {
	return sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Start >= start })
}

// AddMapping inserts [start, end) with value, first evicting every
// existing mapping whose range overlaps [start, end) (spec.md §4.2).
func (m *LibMappings) AddMapping(start, end uint64, relAtStart uint32, value any) {
	evictFrom := start
	if hit, ok := m.lookupEntry(start); ok {
		evictFrom = hit.Start
	}
	lo := m.search(evictFrom)
	hi := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Start >= end })
	m.entries = append(m.entries[:lo], m.entries[hi:]...)

	ins := m.search(start)
	m.entries = append(m.entries, Mapping{})
	copy(m.entries[ins+1:], m.entries[ins:])
	m.entries[ins] = Mapping{Start: start, End: end, RelAtStart: relAtStart, Value: value}
}

// RemoveMapping removes the mapping starting exactly at startAVMA,
// returning its (relAtStart, value) if one existed (spec.md §4.2
// "exact-start removal").
func (m *LibMappings) RemoveMapping(startAVMA uint64) (uint32, any, bool) {
	i := m.search(startAVMA)
	if i >= len(m.entries) || m.entries[i].Start != startAVMA {
		return 0, nil, false
	}
	removed := m.entries[i]
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return removed.RelAtStart, removed.Value, true
}

func (m *LibMappings) lookupEntry(avma uint64) (Mapping, bool) {
	i := m.search(avma + 1) // first entry with Start > avma
	if i == 0 {
		return Mapping{}, false
	}
	cand := m.entries[i-1]
	if avma < cand.End {
		return cand, true
	}
	return Mapping{}, false
}

// Lookup finds the mapping containing avma, if any (spec.md §4.2).
func (m *LibMappings) Lookup(avma uint64) (any, bool) {
	e, ok := m.lookupEntry(avma)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// ConvertAddress is Lookup plus the relative-address computation
// (spec.md §4.2).
func (m *LibMappings) ConvertAddress(avma uint64) (relative uint32, value any, ok bool) {
	e, found := m.lookupEntry(avma)
	if !found {
		return 0, nil, false
	}
	return e.RelAtStart + uint32(avma-e.Start), e.Value, true
}

// Clear removes every mapping.
func (m *LibMappings) Clear() { m.entries = nil }

// Len reports the number of live mappings, mostly useful for tests and
// eviction-policy assertions (scenario S1).
func (m *LibMappings) Len() int { return len(m.entries) }
