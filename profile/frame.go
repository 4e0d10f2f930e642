package profile

// FrameVariant discriminates a label frame (a synthetic name with no
// address, e.g. a JS label or a thread-pool name) from a native frame
// carrying a library + relative address, per spec.md §3.
type FrameVariant uint8

const (
	FrameLabel FrameVariant = iota
	FrameNative
)

// SourceLocation is a frame's optional file/line/column, populated either
// by the symbolication engine (component B) or directly by an
// interpreter-reported frame.
type SourceLocation struct {
	File SourceFileHandle
	Line int32 // 0 means unknown
	Col  int32 // 0 means unknown
}

// FrameFlags are the handful of boolean frame properties spec.md's
// frameTable tracks as parallel columns (isJS lives on Func, not Frame;
// these are per-Frame).
type FrameFlags uint8

const (
	FrameFlagNone FrameFlags = 0
	// FrameFlagRelevantForJS marks a native frame that should still be
	// shown to a JS-centric view (e.g. a C++ frame directly called from
	// JIT'd JS).
	FrameFlagRelevantForJS FrameFlags = 1 << iota
)

// Frame is the interning key for the frame table: two frames are equal
// iff all fields are equal (spec.md §3).
type Frame struct {
	Name     StringHandle
	Variant  FrameVariant
	Func     FuncIndex
	NativeSymbol NativeSymbolIndex // NoNativeSymbol if unresolved/not native
	RelativeAddress uint32         // only meaningful when Variant == FrameNative
	InlineDepth     uint16
	Subcategory SubcategoryHandle
	Source      SourceLocation
	Flags       FrameFlags
	InnerWindowID uint64
}

// frameTable interns Frame values per thread, forming the per-thread
// frame table of spec.md §2.
type frameTable struct {
	entries []Frame
	byKey   map[Frame]FrameHandle
}

func newFrameTable() *frameTable {
	return &frameTable{byKey: make(map[Frame]FrameHandle)}
}

func (t *frameTable) HandleFor(f Frame) FrameHandle {
	if h, ok := t.byKey[f]; ok {
		return h
	}
	h := FrameHandle(len(t.entries))
	t.entries = append(t.entries, f)
	t.byKey[f] = h
	return h
}

func (t *frameTable) Get(h FrameHandle) Frame { return t.entries[h] }
func (t *frameTable) Len() int                { return len(t.entries) }
