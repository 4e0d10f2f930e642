package profile

// Thread holds one thread's complete set of per-thread tables, everything
// spec.md §2 lists as "per-thread": frame/func tables, the stack trie,
// sample and marker tables, plus the thread's own metadata.
//
// A ThreadHandle belongs to exactly one ProcessHandle for its entire
// lifetime (spec.md §3 invariant); that's enforced by Thread only ever
// being constructed through Profile.AddThread.
type Thread struct {
	Process ProcessHandle

	Name           string
	TID            int64
	PID            int64
	ProcessType    string
	RegisterTime   Timestamp
	UnregisterTime *Timestamp // nil if still registered at capture end
	StartTime      Timestamp
	EndTime        *Timestamp

	// Labels carries additive metadata not in spec.md's mandated column
	// set (container/pod enrichment, SPEC_FULL.md §4.14).
	Labels map[string]string

	frames        *frameTable
	funcs         *funcTable
	stacks        *stackTable
	nativeSymbols *nativeSymbolTable
	samples       *sampleTable
	markers       *markerTable
	weightType    string
}

func newThread(process ProcessHandle, name string, tid, pid int64, registerTime Timestamp) *Thread {
	return &Thread{
		Process:      process,
		Name:         name,
		TID:          tid,
		PID:          pid,
		RegisterTime: registerTime,
		StartTime:    registerTime,
		frames:       newFrameTable(),
		funcs:        newFuncTable(),
		stacks:       newStackTable(),
		nativeSymbols: newNativeSymbolTable(),
		samples:      newSampleTable(),
		markers:      newMarkerTable(),
		weightType:   "samples",
	}
}

// SetWeightType sets the sample table's weight unit ("samples",
// "tracing-ms", "bytes" for an allocation-weighted profile, etc).
func (th *Thread) SetWeightType(w string) { th.weightType = w }

// InternFrame interns f into this thread's frame table.
func (th *Thread) InternFrame(f Frame) FrameHandle { return th.frames.HandleFor(f) }

// InternFunc interns fn into this thread's func table.
func (th *Thread) InternFunc(fn Func) FuncIndex { return th.funcs.HandleFor(fn) }

// InternNativeSymbol interns s into this thread's native symbol table.
func (th *Thread) InternNativeSymbol(s NativeSymbol) NativeSymbolIndex {
	return th.nativeSymbols.HandleFor(s)
}

// InternStack interns (prefix, frame, subcategory) into this thread's
// stack trie.
func (th *Thread) InternStack(prefix StackIndex, frame FrameHandle, sub SubcategoryHandle) StackIndex {
	return th.stacks.HandleFor(prefix, frame, sub)
}

// UnwindStack reconstructs the frame sequence for a stack handle
// (spec.md §8 "stack trie closure").
func (th *Thread) UnwindStack(h StackIndex) []FrameHandle { return th.stacks.Unwind(h) }

// Frame resolves a FrameHandle minted by InternFrame.
func (th *Thread) Frame(h FrameHandle) Frame { return th.frames.Get(h) }

// Func resolves a FuncIndex minted by InternFunc.
func (th *Thread) Func(h FuncIndex) Func { return th.funcs.Get(h) }

// NumFuncs returns the number of entries in this thread's func table, so
// callers can bounds-check a Frame.Func value before calling Func (a
// label frame that never interned one still carries the zero FuncIndex).
func (th *Thread) NumFuncs() int { return th.funcs.Len() }

// WeightType returns the sample table's weight unit.
func (th *Thread) WeightType() string { return th.weightType }

// NumSamples returns the number of rows in this thread's sample table.
func (th *Thread) NumSamples() int { return th.samples.Len() }

// SampleAt returns the raw sample row at table index i, for callers that
// need to walk the sample table directly (e.g. reporter.ExportPprof).
func (th *Thread) SampleAt(i int) (ts Timestamp, stack StackIndex, cpuDelta CpuDelta, weight Weight) {
	return th.samples.timestamps[i], th.samples.stacks[i], th.samples.cpuDeltas[i], th.samples.weights[i]
}

// AddSample appends a sample row (spec.md §4.5).
func (th *Thread) AddSample(ts Timestamp, stack StackIndex, cpuDelta CpuDelta, weight Weight) {
	th.samples.AddSample(ts, stack, cpuDelta, weight)
	th.observeSampleTime(ts)
}

// AddSampleSameStackZeroCPU is the idle-sample collapse entry point
// (spec.md §4.5, scenario S2).
func (th *Thread) AddSampleSameStackZeroCPU(ts Timestamp, weight Weight) {
	th.samples.AddSampleSameStackZeroCPU(ts, weight)
	th.observeSampleTime(ts)
}

func (th *Thread) observeSampleTime(ts Timestamp) {
	if th.EndTime == nil || ts > *th.EndTime {
		e := ts
		th.EndTime = &e
	}
}

// AddMarker appends a marker row.
func (th *Thread) AddMarker(m Marker) int { return th.markers.Add(m) }

// LastStack returns the most recently appended sample's stack, or NoStack
// if no sample has been added yet. Used by the reporter when it needs to
// thread "same stack" collapse decisions across calls.
func (th *Thread) LastStack() StackIndex {
	if th.samples.Len() == 0 {
		return NoStack
	}
	return th.samples.stacks[th.samples.Len()-1]
}
