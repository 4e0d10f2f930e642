package stackconv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elastic/symprofile/libmappings"
	"github.com/elastic/symprofile/profile"
	"github.com/elastic/symprofile/unresolved"
)

func newPipeline(t *testing.T) (*Pipeline, *profile.Profile, *profile.Thread) {
	t.Helper()
	p := profile.NewProfile(profile.Meta{Product: "test"})
	proc := p.AddProcess("proc", 1, 0)
	th := p.Thread(p.AddThread(proc, "main", 1, 0))

	hierarchy := libmappings.NewHierarchy()
	user := p.Subcategory("Other", "grey", "")
	kernel := p.Subcategory("Kernel", "grey", "")
	return &Pipeline{Hierarchy: hierarchy, UserCategory: user, KernelCategory: kernel}, p, th
}

func TestReturnAddressLookupSubtractsOne(t *testing.T) {
	pl, _, _ := newPipeline(t)
	frames := []unresolved.StackFrame{
		{Mode: unresolved.ModeUser, Kind: unresolved.KindReturnAddress, Address: 100},
	}
	pass1 := pl.firstPass(frames)
	assert.Equal(t, uint64(99), pass1[0].lookup)
	assert.False(t, pass1[0].fromIP)
}

func TestInstructionPointerLookupIsUnchanged(t *testing.T) {
	pl, _, _ := newPipeline(t)
	frames := []unresolved.StackFrame{
		{Mode: unresolved.ModeUser, Kind: unresolved.KindInstructionPointer, Address: 100},
	}
	pass1 := pl.firstPass(frames)
	assert.Equal(t, uint64(100), pass1[0].lookup)
	assert.True(t, pass1[0].fromIP)
}

func TestTruncatedMarkerDropped(t *testing.T) {
	pl, _, _ := newPipeline(t)
	frames := []unresolved.StackFrame{
		{Kind: unresolved.KindTruncatedMarker, Address: 1},
		{Kind: unresolved.KindInstructionPointer, Address: 2},
	}
	pass1 := pl.firstPass(frames)
	assert.Len(t, pass1, 1)
}

func TestConvertInternsFramesRootToLeaf(t *testing.T) {
	pl, _, th := newPipeline(t)
	frames := []unresolved.StackFrame{
		{Mode: unresolved.ModeUser, Kind: unresolved.KindInstructionPointer, Address: 1000},
		{Mode: unresolved.ModeUser, Kind: unresolved.KindReturnAddress, Address: 2000},
	}
	h := pl.Convert(th, frames)
	assert.NotEqual(t, profile.NoStack, h)

	unwound := th.UnwindStack(h)
	assert.Len(t, unwound, 2)
}

func TestMissingMappingFallsBackToRawAddress(t *testing.T) {
	pl, _, th := newPipeline(t)
	frames := []unresolved.StackFrame{
		{Mode: unresolved.ModeUser, Kind: unresolved.KindInstructionPointer, Address: 5000},
	}
	h := pl.Convert(th, frames)
	unwound := th.UnwindStack(h)
	assert.Len(t, unwound, 1)
}
