package reporter

import (
	"github.com/elastic/symprofile/pprofutil"
	"github.com/elastic/symprofile/profile"
)

// ExportPprof converts prof into the pprof wire format (SPEC_FULL.md
// §4.13), deduplicating functions/locations/mappings the way the
// teacher's getProfile() deduplicated strings/functions/locations before
// serializing its OTLP/pprofextended message. Every thread's sample
// table becomes one pprof Sample per row, with two value columns: the
// raw sample weight (spec.md §4.5 "weight", whatever unit the producing
// thread used) and the CPU-time delta in nanoseconds.
func ExportPprof(prof *profile.Profile) *pprofutil.Profile {
	out := &pprofutil.Profile{
		SampleType: []*pprofutil.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType: &pprofutil.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     int64(prof.Meta.Interval * 1e6),
	}

	b := &pprofBuilder{
		prof:      prof,
		out:       out,
		mappings:  make(map[profile.LibraryHandle]*pprofutil.Mapping),
		functions: make(map[functionKey]*pprofutil.Function),
		locations: make(map[threadKey]*pprofutil.Location),
	}
	for i := 0; i < prof.NumThreads(); i++ {
		b.addThread(profile.ThreadHandle(i))
	}
	return out
}

// threadKey scopes a per-thread handle (FrameHandle or FuncIndex) to the
// thread it was minted on, since those tables are per-thread namespaces
// and the same integer means different things on different threads.
type threadKey struct {
	thread profile.ThreadHandle
	handle int32
}

// functionKey identifies a Function for dedup purposes: a real interned
// Func is keyed by its FuncIndex, while a label frame that never interned
// one (stackconv.Pipeline's synthetic frames, all sharing the zero
// FuncIndex) is keyed by its display name instead so distinct labels
// don't collapse onto the same pprof Function.
type functionKey struct {
	thread  profile.ThreadHandle
	hasFunc bool
	idx     profile.FuncIndex
	name    profile.StringHandle
}

type pprofBuilder struct {
	prof *profile.Profile
	out  *pprofutil.Profile

	mappings  map[profile.LibraryHandle]*pprofutil.Mapping
	functions map[functionKey]*pprofutil.Function
	locations map[threadKey]*pprofutil.Location
}

func (b *pprofBuilder) addThread(h profile.ThreadHandle) {
	th := b.prof.Thread(h)
	n := th.NumSamples()
	if n == 0 {
		return
	}

	for i := 0; i < n; i++ {
		_, stack, cpuDelta, weight := th.SampleAt(i)
		var locs []*pprofutil.Location
		if stack != profile.NoStack {
			frames := th.UnwindStack(stack)
			// pprof wants leaf-first (innermost frame first); UnwindStack
			// returns root-first.
			for j := len(frames) - 1; j >= 0; j-- {
				locs = append(locs, b.locationFor(h, th, frames[j]))
			}
		}
		b.out.Sample = append(b.out.Sample, &pprofutil.Sample{
			Location: locs,
			Value:    []int64{int64(weight), int64(cpuDelta) * 1000},
			Label: map[string][]string{
				"thread": {th.Name},
			},
		})
	}
}

func (b *pprofBuilder) locationFor(h profile.ThreadHandle, th *profile.Thread, frame profile.FrameHandle) *pprofutil.Location {
	key := threadKey{thread: h, handle: int32(frame)}
	if loc, ok := b.locations[key]; ok {
		return loc
	}

	f := th.Frame(frame)
	loc := &pprofutil.Location{ID: uint64(len(b.out.Location) + 1)}
	if f.Variant == profile.FrameNative {
		loc.Address = uint64(f.RelativeAddress)
	}
	loc.Line = []pprofutil.Line{{
		Function: b.functionFor(h, th, f),
		Line:     int64(f.Source.Line),
	}}
	if mapping := b.mappingFor(th, f); mapping != nil {
		loc.Mapping = mapping
	}

	b.locations[key] = loc
	b.out.Location = append(b.out.Location, loc)
	return loc
}

// funcInfo resolves f's Func, tolerating the synthetic label frames
// stackconv.Pipeline emits without ever interning one (Frame.Func then
// keeps its zero value, indistinguishable from a real FuncIndex 0).
func (b *pprofBuilder) funcInfo(th *profile.Thread, f profile.Frame) (profile.Func, bool) {
	if int(f.Func) >= th.NumFuncs() {
		return profile.Func{}, false
	}
	return th.Func(f.Func), true
}

func (b *pprofBuilder) functionFor(h profile.ThreadHandle, th *profile.Thread, f profile.Frame) *pprofutil.Function {
	fnInfo, hasFunc := b.funcInfo(th, f)
	key := functionKey{thread: h, hasFunc: hasFunc, idx: f.Func, name: f.Name}
	if fn, ok := b.functions[key]; ok {
		return fn
	}

	name := b.prof.String(f.Name)
	var filename string
	var startLine int64
	if hasFunc {
		if n := b.prof.String(fnInfo.Name); n != "" {
			name = n
		}
		filename = b.prof.SourceFile(fnInfo.File)
		startLine = int64(fnInfo.Line)
	}
	fn := &pprofutil.Function{
		ID:         uint64(len(b.out.Function) + 1),
		Name:       name,
		SystemName: name,
		Filename:   filename,
		StartLine:  startLine,
	}
	b.functions[key] = fn
	b.out.Function = append(b.out.Function, fn)
	return fn
}

func (b *pprofBuilder) mappingFor(th *profile.Thread, f profile.Frame) *pprofutil.Mapping {
	fnInfo, ok := b.funcInfo(th, f)
	if !ok {
		return nil
	}
	res := b.prof.Resource(fnInfo.Resource)
	if res.Kind != profile.ResourceLibrary || res.Lib == profile.NoLibrary {
		return nil
	}
	if m, ok := b.mappings[res.Lib]; ok {
		return m
	}

	lib := b.prof.Library(res.Lib)
	m := &pprofutil.Mapping{
		ID:           uint64(len(b.out.Mapping) + 1),
		File:         firstNonEmpty(lib.Path, lib.DebugName),
		BuildID:      lib.DebugId.String(),
		HasFunctions: true,
	}
	b.mappings[res.Lib] = m
	b.out.Mapping = append(b.out.Mapping, m)
	return m
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
