package libmappings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlappingMappingEviction(t *testing.T) {
	m := New()
	m.AddMapping(100, 200, 100, "A")
	m.AddMapping(200, 250, 200, "B")

	v, ok := m.Lookup(200)
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	m.AddMapping(180, 220, 180, "C")

	v, ok = m.Lookup(200)
	assert.True(t, ok)
	assert.Equal(t, "C", v)

	_, ok = m.Lookup(170)
	assert.False(t, ok)
	_, ok = m.Lookup(220)
	assert.False(t, ok)
}

func TestConvertAddress(t *testing.T) {
	m := New()
	m.AddMapping(1000, 2000, 50, "lib")

	rel, v, ok := m.ConvertAddress(1010)
	assert.True(t, ok)
	assert.Equal(t, uint32(60), rel)
	assert.Equal(t, "lib", v)

	_, _, ok = m.ConvertAddress(2000)
	assert.False(t, ok)
}

func TestRemoveMappingExactStart(t *testing.T) {
	m := New()
	m.AddMapping(10, 20, 0, "x")
	rel, v, ok := m.RemoveMapping(10)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), rel)
	assert.Equal(t, "x", v)
	assert.Equal(t, 0, m.Len())

	_, _, ok = m.RemoveMapping(10)
	assert.False(t, ok)
}

func TestHierarchyLayerPriority(t *testing.T) {
	h := NewHierarchy()
	h.RegularOps().Push(0, LibMappingOp{Kind: OpAdd, Start: 100, End: 200, Value: "native"})
	jitOps := h.AddJitdumpLayer("jit-1")
	jitOps.Push(0, LibMappingOp{Kind: OpAdd, Start: 150, End: 160, Value: "jit"})

	h.ProcessOps(0)

	_, v, ok := h.ConvertAddress(155)
	assert.True(t, ok)
	assert.Equal(t, "native", v, "regular layer takes priority over jitdump layers")
}

func TestClearRemovesEverything(t *testing.T) {
	m := New()
	m.AddMapping(0, 10, 0, "a")
	m.Clear()
	assert.Equal(t, 0, m.Len())
	_, ok := m.Lookup(5)
	assert.False(t, ok)
}
