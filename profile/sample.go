package profile

import "sort"

// sampleTable is the per-thread columnar, append-only sample store
// (spec.md §4.5). It is the most performance-sensitive table: idle
// threads produce long runs of identical zero-CPU samples, which
// AddSampleSameStackZeroCPU collapses without losing semantics.
type sampleTable struct {
	timestamps []Timestamp
	stacks     []StackIndex // NoStack allowed (sample with no stack, e.g. a marker-only row)
	cpuDeltas  []CpuDelta
	weights    []Weight

	sorted bool // false once an out-of-order insertion is detected
}

func newSampleTable() *sampleTable {
	return &sampleTable{sorted: true}
}

// AddSample appends a sample (spec.md §4.5). If t is before the
// previously appended timestamp, the table's sorted flag is cleared so
// the serializer knows to compute a sorting permutation.
func (t *sampleTable) AddSample(ts Timestamp, stack StackIndex, cpuDelta CpuDelta, weight Weight) {
	if t.sorted && len(t.timestamps) > 0 && ts < t.timestamps[len(t.timestamps)-1] {
		t.sorted = false
	}
	t.timestamps = append(t.timestamps, ts)
	t.stacks = append(t.stacks, stack)
	t.cpuDeltas = append(t.cpuDeltas, cpuDelta)
	t.weights = append(t.weights, weight)
}

// AddSampleSameStackZeroCPU implements the idle-sample collapse of
// spec.md §4.5 and scenario S2: it collapses into the previous sample of
// the same thread iff the previous sample had cpu_delta == ZERO;
// otherwise it appends a new sample reusing that thread's last stack.
func (t *sampleTable) AddSampleSameStackZeroCPU(ts Timestamp, weight Weight) {
	n := len(t.timestamps)
	if n > 0 && t.cpuDeltas[n-1] == CpuDeltaZero {
		t.modifyLast(ts, weight)
		return
	}
	var stack StackIndex = NoStack
	if n > 0 {
		stack = t.stacks[n-1]
	}
	t.AddSample(ts, stack, CpuDeltaZero, weight)
}

// modifyLast is the collapse path's mutation primitive (spec.md §4.5
// "modify_last_sample"): bump the last row's timestamp and add to its
// weight.
func (t *sampleTable) modifyLast(ts Timestamp, weight Weight) {
	n := len(t.timestamps) - 1
	t.timestamps[n] = ts
	t.weights[n] += weight
}

func (t *sampleTable) Len() int { return len(t.timestamps) }

// sortPermutation returns the stable-sort-by-timestamp permutation sigma
// such that applying it to every column yields a timestamp-sorted table,
// or nil if the table is already sorted (spec.md §4.5 serialization
// contract).
func (t *sampleTable) sortPermutation() []int {
	if t.sorted {
		return nil
	}
	sigma := make([]int, len(t.timestamps))
	for i := range sigma {
		sigma[i] = i
	}
	sort.SliceStable(sigma, func(i, j int) bool {
		return t.timestamps[sigma[i]] < t.timestamps[sigma[j]]
	})
	return sigma
}

// SerializedSamples is the columnar JSON shape of spec.md §6's
// `samples` object.
type SerializedSamples struct {
	Length          int          `json:"length"`
	Stack           []int32      `json:"stack"`
	TimeDeltas      []int64      `json:"timeDeltas"`
	Weight          []int64      `json:"weight"`
	ThreadCPUDelta  []uint64     `json:"threadCPUDelta"`
	WeightType      string       `json:"weightType"`
}

// Serialize emits the columnar arrays, applying the sort permutation (if
// any) and converting absolute timestamps into deltas, per spec.md §4.5.
func (t *sampleTable) Serialize(weightType string) SerializedSamples {
	n := t.Len()
	order := t.sortPermutation()

	out := SerializedSamples{
		Length:         n,
		Stack:          make([]int32, n),
		TimeDeltas:     make([]int64, n),
		Weight:         make([]int64, n),
		ThreadCPUDelta: make([]uint64, n),
		WeightType:     weightType,
	}

	var prev Timestamp
	for i := 0; i < n; i++ {
		src := i
		if order != nil {
			src = order[i]
		}
		stack := t.stacks[src]
		if stack == NoStack {
			out.Stack[i] = -1
		} else {
			out.Stack[i] = int32(stack)
		}
		ts := t.timestamps[src]
		out.TimeDeltas[i] = int64(ts - prev)
		prev = ts
		out.Weight[i] = int64(t.weights[src])
		out.ThreadCPUDelta[i] = uint64(t.cpuDeltas[src])
	}
	return out
}
