// Package libpf holds small value types shared across the profiler and
// symbolication packages: opaque handles, debug identifiers, and the
// handful of helpers (timestamp jitter, frame classification) that would
// otherwise be duplicated in every package that touches a capture record.
package libpf

import (
	"math/rand"
	"time"
)

// Void is used for channels that only ever carry a close signal.
type Void struct{}

// UnixTime32 is a unix timestamp truncated to 32 bits, as delivered by
// capture backends that only have second resolution for some records.
type UnixTime32 uint32

// SourceLineno is a 1-based source line number, or 0 if unknown.
type SourceLineno uint32

// AddressOrLineno is a union discriminated by the frame's FrameType: for
// native frames it is a relative address, for interpreted frames a line
// number packed into the same field (this mirrors how the teacher's
// reporter keys its `frames` cache on this exact value to avoid a second
// map).
type AddressOrLineno uint64

// FrameType classifies a frame the same way the original reporter's
// traceInfo.frameTypes did: native code, kernel code, or one of the
// interpreter kinds that resolve via a line-oriented symbol source.
type FrameType uint8

const (
	NativeFrame FrameType = iota
	KernelFrame
	AbortFrame
	PHPFrame
	PythonFrame
	RubyFrame
	PerlFrame
	JavaFrame
	DotnetFrame
)

func (t FrameType) String() string {
	switch t {
	case NativeFrame:
		return "native"
	case KernelFrame:
		return "kernel"
	case AbortFrame:
		return "abort"
	case PHPFrame:
		return "php"
	case PythonFrame:
		return "python"
	case RubyFrame:
		return "ruby"
	case PerlFrame:
		return "perl"
	case JavaFrame:
		return "java"
	case DotnetFrame:
		return "dotnet"
	default:
		return "unknown"
	}
}

// Interpreted reports whether frames of this type resolve through a
// line-table symbolizer (perf-map/jitdump/VM-reported name) rather than
// through a native symbol map.
func (t FrameType) Interpreted() bool {
	switch t {
	case PHPFrame, PythonFrame, RubyFrame, PerlFrame, JavaFrame, DotnetFrame:
		return true
	default:
		return false
	}
}

// AddJitter returns d adjusted by a uniformly random +/- frac fraction, the
// same jitter strategy the original reporter applies to its report-interval
// ticker to avoid every agent in a fleet reporting in lockstep.
func AddJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}
