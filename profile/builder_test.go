package profile

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestInternStringDeduplicates(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	a := p.InternString("foo")
	b := p.InternString("foo")
	c := p.InternString("bar")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestInternStackBuildsAcyclicPrefixChain(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))

	sub := p.Subcategory("Other", "grey", "")
	fMain := th.InternFrame(Frame{Name: p.InternString("main"), Variant: FrameLabel})
	fHelper := th.InternFrame(Frame{Name: p.InternString("helper"), Variant: FrameLabel})

	root := th.InternStack(NoStack, fMain, sub)
	leaf := th.InternStack(root, fHelper, sub)

	got := th.UnwindStack(leaf)
	want := []FrameHandle{fMain, fHelper}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("UnwindStack mismatch (-want +got):\n%s", diff)
	}
}

func TestInternStackDeduplicatesIdenticalChains(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	sub := p.Subcategory("Other", "grey", "")
	f := th.InternFrame(Frame{Name: p.InternString("main"), Variant: FrameLabel})

	s1 := th.InternStack(NoStack, f, sub)
	s2 := th.InternStack(NoStack, f, sub)
	require.Equal(t, s1, s2)
}

func TestAddSampleSameStackZeroCPUCollapsesIdleRuns(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	sub := p.Subcategory("Other", "grey", "")
	f := th.InternFrame(Frame{Name: p.InternString("idle"), Variant: FrameLabel})
	stack := th.InternStack(NoStack, f, sub)

	th.AddSample(0, stack, 0, 1)
	for ts := Timestamp(1); ts < 5; ts++ {
		th.AddSampleSameStackZeroCPU(ts, 1)
	}

	require.Equal(t, stack, th.LastStack())
	require.Equal(t, 1, th.NumSamples())
	require.NoError(t, p.CheckInvariants())
}

func TestThreadMustBelongToRegisteringProcess(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	proc1 := p.AddProcess("proc1", 1, 0)
	proc2 := p.AddProcess("proc2", 2, 0)
	th1 := p.AddThread(proc1, "main", 1, 0)
	th2 := p.AddThread(proc2, "main", 2, 0)
	require.NotEqual(t, p.Thread(th1).Process, p.Thread(th2).Process)
	require.NoError(t, p.CheckInvariants())
}

func TestCheckInvariantsCatchesOutOfRangeFuncIndex(t *testing.T) {
	p := NewProfile(Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	th.InternFrame(Frame{Name: p.InternString("bad"), Variant: FrameNative, Func: 999})
	require.Error(t, p.CheckInvariants())
}

func TestMarshalJSONProducesConsistentColumnLengths(t *testing.T) {
	p := NewProfile(Meta{Product: "test", Interval: 1})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	sub := p.Subcategory("Other", "grey", "")
	f := th.InternFrame(Frame{Name: p.InternString("main"), Variant: FrameLabel})
	stack := th.InternStack(NoStack, f, sub)
	th.AddSample(0, stack, 10, 1)

	body, err := p.MarshalJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Contains(t, doc, "meta")
	require.Contains(t, doc, "threads")

	thread := doc["threads"].([]any)[0].(map[string]any)
	samples := thread["samples"].(map[string]any)
	require.EqualValues(t, 1, samples["length"])
	require.Len(t, samples["stack"], 1)
	require.Len(t, samples["timeDeltas"], 1)
	stackTable := thread["stackTable"].(map[string]any)
	require.EqualValues(t, 1, stackTable["length"])
	require.Len(t, stackTable["prefix"], 1)
	require.Len(t, stackTable["frame"], 1)
}
