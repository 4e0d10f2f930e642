package capture

import "sort"

// Sorter is a bounded-reorder-window event sorter: perf ring buffers and
// multi-CPU fan-in deliver samples mostly-but-not-strictly in timestamp
// order, so downstream consumers (the reporter's unresolved.Store) need a
// small window held back to restore ordering without buffering an entire
// session. window is expressed as a timestamp delta, matching the same
// unit Sample.Timestamp uses.
type Sorter struct {
	window  int64
	pending []Sample
	out     Consumer
}

// NewSorter returns a Sorter that holds samples until it is confident no
// further sample with an earlier timestamp than the oldest held one can
// still arrive (i.e. the newest seen timestamp minus window reaches or
// exceeds it).
func NewSorter(window int64, out Consumer) *Sorter {
	return &Sorter{window: window, out: out}
}

// AddSample buffers s and flushes anything now guaranteed stable.
func (s *Sorter) AddSample(sample Sample) {
	i := sort.Search(len(s.pending), func(i int) bool { return s.pending[i].Timestamp > sample.Timestamp })
	s.pending = append(s.pending, Sample{})
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = sample
	s.flush(sample.Timestamp)
}

// AddLibMapping and AddMarker pass straight through: only Sample ordering
// is reorder-sensitive, since lib-mapping ops and markers are interned by
// the reporter independently of stack resolution.
func (s *Sorter) AddLibMapping(ev LibMappingEvent) { s.out.AddLibMapping(ev) }
func (s *Sorter) AddMarker(ev MarkerEvent)         { s.out.AddMarker(ev) }

func (s *Sorter) flush(newest int64) {
	cutoff := newest - s.window
	i := 0
	for ; i < len(s.pending); i++ {
		if s.pending[i].Timestamp > cutoff {
			break
		}
		s.out.AddSample(s.pending[i])
	}
	s.pending = s.pending[i:]
}

// Close flushes every remaining buffered sample regardless of window,
// for use once the producer has no more events to deliver.
func (s *Sorter) Close() {
	for _, sample := range s.pending {
		s.out.AddSample(sample)
	}
	s.pending = nil
}
