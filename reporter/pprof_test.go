package reporter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/profile"
)

func TestExportPprofConvertsNativeStackIntoLocationsAndMappings(t *testing.T) {
	p := profile.NewProfile(profile.Meta{Product: "test", Interval: 1})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	sub := p.Subcategory("Other", "grey", "")

	libHandle, _ := p.InternLibrary(profile.Library{
		DebugName: "libc.so.6",
		DebugId:   libpf.FromElfBuildId([]byte{1, 2, 3, 4}),
		Path:      "/usr/lib/libc.so.6",
	})
	resource := p.ResourceForLibrary(libHandle)
	fn := th.InternFunc(profile.Func{Name: p.InternString("malloc"), Resource: resource})
	frame := th.InternFrame(profile.Frame{
		Name:            p.InternString("malloc"),
		Variant:         profile.FrameNative,
		Func:            fn,
		RelativeAddress: 0x1234,
		Subcategory:     sub,
	})
	stack := th.InternStack(profile.NoStack, frame, sub)
	th.AddSample(0, stack, 1000, 1)

	out := ExportPprof(p)

	require.Len(t, out.Sample, 1)
	require.Equal(t, []int64{1, 1000 * 1000}, out.Sample[0].Value)
	require.Len(t, out.Location, 1)
	require.Len(t, out.Function, 1)
	require.Equal(t, "malloc", out.Function[0].Name)
	require.Len(t, out.Mapping, 1)
	require.Equal(t, "/usr/lib/libc.so.6", out.Mapping[0].File)
	require.Equal(t, uint64(0x1234), out.Location[0].Address)
}

func TestExportPprofHandlesEmptyStack(t *testing.T) {
	p := profile.NewProfile(profile.Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	th.AddSample(0, profile.NoStack, 0, 1)

	out := ExportPprof(p)

	require.Len(t, out.Sample, 1)
	require.Empty(t, out.Sample[0].Location)
}

func TestExportPprofDedupesRepeatedFrames(t *testing.T) {
	p := profile.NewProfile(profile.Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))
	sub := p.Subcategory("Other", "grey", "")
	f := th.InternFrame(profile.Frame{Name: p.InternString("idle"), Variant: profile.FrameLabel, Subcategory: sub})
	stack := th.InternStack(profile.NoStack, f, sub)
	th.AddSample(0, stack, 0, 1)
	th.AddSample(1, stack, 0, 1)

	out := ExportPprof(p)

	require.Len(t, out.Sample, 2)
	require.Len(t, out.Location, 1)
	require.Len(t, out.Function, 1)
}
