package profile

import "google.golang.org/protobuf/types/known/structpb"

// MarkerTiming distinguishes an instant marker from an interval one.
type MarkerTiming uint8

const (
	MarkerInstant MarkerTiming = iota
	MarkerIntervalStart
	MarkerIntervalEnd
	MarkerInterval
)

// Marker is one row of the per-thread marker table (spec.md §2
// "Sample Table & Marker Table"). Payload is a dynamic, schema-described
// blob: rather than a closed Go struct per marker kind (which would force
// a recompile for every new marker type a capture backend invents), it is
// a structpb.Struct — the protobuf ecosystem's standard "arbitrary JSON
// value" type, reusing google.golang.org/protobuf (already a teacher
// dependency) instead of hand-rolling another json.RawMessage wrapper.
// This mirrors the "schema-instance" field spec.md §2 names and the
// DynamicSchema markers of the original implementation
// (SPEC_FULL.md §12).
type Marker struct {
	Name      StringHandle
	StartTime Timestamp
	EndTime   Timestamp // only meaningful for MarkerInterval*
	Timing    MarkerTiming
	Category  CategoryHandle
	Payload   *structpb.Struct
}

type markerTable struct {
	entries []Marker
}

func newMarkerTable() *markerTable { return &markerTable{} }

func (t *markerTable) Add(m Marker) int {
	t.entries = append(t.entries, m)
	return len(t.entries) - 1
}

func (t *markerTable) Len() int { return len(t.entries) }

// SerializedMarkers is the JSON shape of spec.md §6's `markers` object.
type SerializedMarkers struct {
	Length    int       `json:"length"`
	Name      []int32   `json:"name"`
	StartTime []int64   `json:"startTime"`
	EndTime   []int64   `json:"endTime"`
	Phase     []int     `json:"phase"`
	Category  []int32   `json:"category"`
	Data      []any     `json:"data"`
}

func (t *markerTable) Serialize() SerializedMarkers {
	n := t.Len()
	out := SerializedMarkers{
		Length:    n,
		Name:      make([]int32, n),
		StartTime: make([]int64, n),
		EndTime:   make([]int64, n),
		Phase:     make([]int, n),
		Category:  make([]int32, n),
		Data:      make([]any, n),
	}
	for i, m := range t.entries {
		out.Name[i] = int32(m.Name)
		out.StartTime[i] = int64(m.StartTime)
		out.EndTime[i] = int64(m.EndTime)
		out.Phase[i] = int(m.Timing)
		out.Category[i] = int32(m.Category)
		if m.Payload != nil {
			out.Data[i] = m.Payload.AsMap()
		}
	}
	return out
}
