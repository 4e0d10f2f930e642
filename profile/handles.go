// Package profile implements the process-wide, append-only profile
// builder: interning tables (strings, frames, stacks, libraries,
// categories), per-thread sample/marker tables, and the deterministic
// JSON serialization consumed by the front-end. This is component (A) of
// SPEC_FULL.md.
package profile

// Every interning table hands out a small dense integer handle, stable
// for the life of the profile and meaningful only within it (spec.md §3
// "Handles").
type (
	StringHandle      int32
	CategoryHandle    int32
	SubIndex          int32
	LibraryHandle     int32
	ProcessHandle     int32
	ThreadHandle      int32
	FrameHandle       int32
	FuncIndex         int32
	ResourceHandle    int32
	StackIndex        int32
	NativeSymbolIndex int32
	SourceFileHandle  int32
)

// NoStack is the trie-root sentinel: a stack with no prefix.
const NoStack StackIndex = -1

// NoResource/NoLibrary/NoSourceFile/NoNativeSymbol are the "-1 means none"
// sentinels spec.md §6 requires for optional index columns.
const (
	NoResource     ResourceHandle    = -1
	NoLibrary      LibraryHandle     = -1
	NoSourceFile   SourceFileHandle  = -1
	NoNativeSymbol NativeSymbolIndex = -1
)

// SubcategoryHandle is (CategoryHandle, SubIndex) per spec.md §3.
type SubcategoryHandle struct {
	Category CategoryHandle
	Sub      SubIndex
}

// Timestamp is an opaque i64 of nanoseconds relative to a profile-wide
// reference instant (spec.md §3).
type Timestamp int64

// CpuDelta is unsigned microseconds since the thread's previous sample.
// CpuDeltaZero is the distinguished "thread was idle" value.
type CpuDelta uint64

const CpuDeltaZero CpuDelta = 0

// Weight is a sample's statistical weight (1 for a plain CPU sample, an
// allocation size for an allocation-weighted sample, etc).
type Weight int64
