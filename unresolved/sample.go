package unresolved

// PayloadKind discriminates an UnresolvedSample's payload: a plain CPU/
// weight sample, or a marker attached to this stack (spec.md §3
// "UnresolvedSample").
type PayloadKind uint8

const (
	PayloadSample PayloadKind = iota
	PayloadMarker
)

// ThreadID identifies the thread an UnresolvedSample belongs to; the
// reporter resolves it against profile.ThreadHandle once the
// corresponding profile.Thread exists.
type ThreadID struct {
	PID int64
	TID int64
}

// Sample is the CPU-sample payload shape of spec.md §3.
type Sample struct {
	CPUDelta uint64
	Weight   int64
}

// UnresolvedSample is one row of the capture-ordered sample store: a raw
// stack, not yet symbolicated, paired with its timing and payload
// (spec.md §3).
type UnresolvedSample struct {
	Thread         ThreadID
	Timestamp      int64 // nanoseconds, profile-relative
	TimestampMono  int64 // raw monotonic tick, for tie-breaking same-ns samples
	Stack          StackHandle
	Kind           PayloadKind
	Sample         Sample
	MarkerHandle   int
	ExtraLabelFrame *StackFrame
}

// Store is the process-wide, append-only, capture-ordered collection of
// UnresolvedSamples plus the trie backing their stacks. Resolution drains
// it in timestamp order (SPEC_FULL.md §4.6/§12).
type Store struct {
	Trie    *Trie
	samples []UnresolvedSample
}

func NewStore() *Store {
	return &Store{Trie: NewTrie()}
}

// AddSample appends a CPU sample.
func (s *Store) AddSample(thread ThreadID, ts, tsMono int64, stack StackHandle, cpuDelta uint64, weight int64) {
	s.samples = append(s.samples, UnresolvedSample{
		Thread: thread, Timestamp: ts, TimestampMono: tsMono, Stack: stack,
		Kind: PayloadSample, Sample: Sample{CPUDelta: cpuDelta, Weight: weight},
	})
}

// AddMarker appends a marker-carrying row, attached to a (possibly empty)
// stack.
func (s *Store) AddMarker(thread ThreadID, ts, tsMono int64, stack StackHandle, markerHandle int) {
	s.samples = append(s.samples, UnresolvedSample{
		Thread: thread, Timestamp: ts, TimestampMono: tsMono, Stack: stack,
		Kind: PayloadMarker, MarkerHandle: markerHandle,
	})
}

// Len reports the number of stored samples.
func (s *Store) Len() int { return len(s.samples) }

// At returns the sample at index i, in append (capture) order.
func (s *Store) At(i int) UnresolvedSample { return s.samples[i] }

// Drain removes and returns every stored sample in capture order,
// leaving the store empty; the resolution pass (SPEC_FULL.md §4.6) calls
// this once it has processed a batch.
func (s *Store) Drain() []UnresolvedSample {
	out := s.samples
	s.samples = nil
	return out
}
