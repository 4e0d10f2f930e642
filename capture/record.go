// Package capture defines the spec.md §1(C) boundary between a live
// profiling producer and the rest of this toolkit: a typed record stream
// plus the AddSample/AddLibMapping/AddMarker consumer contract every
// producer (perf_event_open, jitdump tailers, perf-map watchers) feeds
// into. SPEC_FULL.md §2 scopes this package as defining and lightly
// exercising that boundary, not as a full production capture pipeline —
// the CLI/daemon wiring a real capture session needs is explicitly out
// of scope as a feature (spec.md §1).
package capture

// RawFrame is one entry of an UnresolvedSample's raw stack, mirroring
// spec.md §3's StackFrame{mode, kind, address} before any lib-mapping
// resolution has been applied.
type RawFrameMode uint8

const (
	FrameModeUser RawFrameMode = iota
	FrameModeKernel
)

type RawFrameKind uint8

const (
	FrameKindIP RawFrameKind = iota
	FrameKindReturn
	FrameKindAdjustedReturn
	FrameKindTruncatedMarker
)

type RawFrame struct {
	Mode    RawFrameMode
	Kind    RawFrameKind
	Address uint64
}

// Sample is a single sampled stack trace event, the Consumer-facing
// equivalent of spec.md §3's UnresolvedSample before it has been interned
// into a process-wide trie.
type Sample struct {
	Pid, Tid  int
	Timestamp int64 // profile-relative ns; see profile.Timestamp
	CPUDelta  uint64
	Weight    int64
	Stack     []RawFrame // innermost first
}

// LibMappingEvent is one observed mmap/munmap/remap event, feeding
// libmappings.LibMappingOpQueue.
type LibMappingEventKind uint8

const (
	LibMappingAdd LibMappingEventKind = iota
	LibMappingMove
	LibMappingRemove
	LibMappingClear
)

type LibMappingEvent struct {
	Pid           int
	Timestamp     int64
	Kind          LibMappingEventKind
	StartAVMA     uint64
	EndAVMA       uint64
	RelativeStart uint32
	Path          string
	DebugName     string
}

// MarkerEvent is a capture-side marker span (e.g. a GC pause, a syscall),
// feeding profile.MarkerTable through the reporter's resolution pass.
type MarkerEvent struct {
	Pid, Tid  int
	Timestamp int64
	Name      string
	Category  string
	Payload   map[string]string
}

// Consumer is the contract every producer in this package feeds
// (spec.md §1(C)): three append-only sinks, called from whatever
// goroutine the producer reads events on. Implementations (the
// `reporter` package's ingest side) must be safe to call from a single
// producer goroutine; cross-goroutine fan-in is the producer's job via
// Sorter, not the Consumer's.
type Consumer interface {
	AddSample(Sample)
	AddLibMapping(LibMappingEvent)
	AddMarker(MarkerEvent)
}

// Producer is anything that drives a Consumer until Close; Run blocks
// until the event source is exhausted, Close is called, or an
// unrecoverable error occurs.
type Producer interface {
	Run(consumer Consumer) error
	Close() error
}
