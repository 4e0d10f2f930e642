package profile

import "time"

// ReferenceTimestamp fixes the profile-wide zero instant every Timestamp
// is relative to (spec.md §3, SPEC_FULL.md §12 "TimestampConverter affine
// transform").
type ReferenceTimestamp struct {
	WallClock time.Time
}

// TimestampConverter owns the affine transform from one clock's raw units
// into profile-relative nanoseconds. Several independent clocks feed a
// capture (platform monotonic ticks, unix time, ETW FILETIME, perf
// hardware counters); each gets its own converter instance sharing the
// profile's single ReferenceTimestamp (spec.md §9 Design Notes, "Time
// bases").
type TimestampConverter struct {
	reference ReferenceTimestamp
	// rawOrigin is the raw clock reading that corresponds to reference.
	rawOrigin int64
	// nanosPerUnit scales a raw tick delta into nanoseconds (1 for a
	// clock already in ns, 100 for Windows FILETIME's 100ns units, etc).
	nanosPerUnit int64
}

// NewTimestampConverter builds a converter anchored so that the raw clock
// value rawOrigin maps to Timestamp 0, with each raw unit worth
// nanosPerUnit nanoseconds.
func NewTimestampConverter(ref ReferenceTimestamp, rawOrigin, nanosPerUnit int64) *TimestampConverter {
	if nanosPerUnit == 0 {
		nanosPerUnit = 1
	}
	return &TimestampConverter{reference: ref, rawOrigin: rawOrigin, nanosPerUnit: nanosPerUnit}
}

// Convert maps a raw clock reading to a profile Timestamp.
func (c *TimestampConverter) Convert(raw int64) Timestamp {
	return Timestamp((raw - c.rawOrigin) * c.nanosPerUnit)
}

// Well-known unit scales for NewTimestampConverter's nanosPerUnit.
const (
	NanosPerNanosecond  = 1
	NanosPerMicrosecond = 1_000
	NanosPerMillisecond = 1_000_000
	NanosPerFILETIME100ns = 100
)
