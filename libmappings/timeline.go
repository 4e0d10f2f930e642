package libmappings

// LibMappingOpKind discriminates the four mutations a capture can replay
// against a LibMappings layer (spec.md §4.3/§4.8).
type LibMappingOpKind uint8

const (
	OpAdd LibMappingOpKind = iota
	OpMove
	OpRemove
	OpClear
)

// LibMappingOp is one entry of a LibMappingOpQueue: a timestamped mutation
// against one of the layers of a LibMappingsHierarchy.
type LibMappingOp struct {
	Kind LibMappingOpKind

	// Add/Move
	Start      uint64
	End        uint64
	RelAtStart uint32
	Value      any

	// Move/Remove
	OldStart uint64
}

// LibMappingOpQueue is the append-only, capture-ordered op log of
// spec.md §4.3: "a Vec<(timestamp, op)> appended in capture order".
type LibMappingOpQueue struct {
	timestamps []int64
	ops        []LibMappingOp
	cursor     int
}

func NewOpQueue() *LibMappingOpQueue { return &LibMappingOpQueue{} }

func (q *LibMappingOpQueue) Push(timestamp int64, op LibMappingOp) {
	q.timestamps = append(q.timestamps, timestamp)
	q.ops = append(q.ops, op)
}

func (q *LibMappingOpQueue) Len() int { return len(q.ops) }

// layer is one named LibMappings instance plus the op queue driving it
// within a LibMappingsHierarchy.
type layer struct {
	name string
	maps *LibMappings
	ops  *LibMappingOpQueue
}

// LibMappingsHierarchy holds the layered view spec.md §4.3 describes: one
// layer for a process's regular libraries, one per ingested jitdump file,
// plus an optional perf-map layer. Lookups consult layers in order:
// regular, then jitdumps in registration order, then perf-map.
type LibMappingsHierarchy struct {
	regular *layer
	jitdumps []*layer
	perfMap  *layer
}

func NewHierarchy() *LibMappingsHierarchy {
	return &LibMappingsHierarchy{
		regular: &layer{name: "regular", maps: New(), ops: NewOpQueue()},
	}
}

// RegularOps returns the op queue driving the regular-libraries layer.
func (h *LibMappingsHierarchy) RegularOps() *LibMappingOpQueue { return h.regular.ops }

// AddJitdumpLayer registers a new jitdump layer, returning its op queue
// for the jitdump ingest stage to push into (spec.md §4.8).
func (h *LibMappingsHierarchy) AddJitdumpLayer(name string) *LibMappingOpQueue {
	l := &layer{name: name, maps: New(), ops: NewOpQueue()}
	h.jitdumps = append(h.jitdumps, l)
	return l.ops
}

// EnablePerfMapLayer turns on the optional `perf-<pid>.map` layer,
// returning its op queue.
func (h *LibMappingsHierarchy) EnablePerfMapLayer() *LibMappingOpQueue {
	if h.perfMap == nil {
		h.perfMap = &layer{name: "perf-map", maps: New(), ops: NewOpQueue()}
	}
	return h.perfMap.ops
}

// ProcessOps advances every layer's op queue up to and including
// timestamp t (spec.md §4.3 "process_ops(t)").
func (h *LibMappingsHierarchy) ProcessOps(t int64) {
	advance(h.regular, t)
	for _, l := range h.jitdumps {
		advance(l, t)
	}
	if h.perfMap != nil {
		advance(h.perfMap, t)
	}
}

func advance(l *layer, t int64) {
	q := l.ops
	for q.cursor < len(q.ops) && q.timestamps[q.cursor] <= t {
		applyOp(l.maps, q.ops[q.cursor])
		q.cursor++
	}
}

func applyOp(m *LibMappings, op LibMappingOp) {
	switch op.Kind {
	case OpAdd:
		m.AddMapping(op.Start, op.End, op.RelAtStart, op.Value)
	case OpMove:
		rel, value, ok := m.RemoveMapping(op.OldStart)
		if !ok {
			rel, value = op.RelAtStart, op.Value
		}
		m.AddMapping(op.Start, op.End, rel, value)
	case OpRemove:
		m.RemoveMapping(op.OldStart)
	case OpClear:
		m.Clear()
	}
}

// ConvertAddress consults the layers in priority order: regular, then
// every jitdump layer, then the perf-map layer (spec.md §4.3).
func (h *LibMappingsHierarchy) ConvertAddress(avma uint64) (relative uint32, value any, ok bool) {
	if relative, value, ok = h.regular.maps.ConvertAddress(avma); ok {
		return
	}
	for _, l := range h.jitdumps {
		if relative, value, ok = l.maps.ConvertAddress(avma); ok {
			return
		}
	}
	if h.perfMap != nil {
		return h.perfMap.maps.ConvertAddress(avma)
	}
	return 0, nil, false
}
