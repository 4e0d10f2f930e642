package libpf

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPEDebugIdBreakpadForm exercises scenario S4 from spec.md §8: the PE
// signature GUID {AA152DEB-2D9B-7608-4C4C-44205044422E} with age 1 renders
// as "AA152DEB2D9B76084C4C44205044422E1".
func TestPEDebugIdBreakpadForm(t *testing.T) {
	guid := uuid.MustParse("AA152DEB-2D9B-7608-4C4C-44205044422E")
	id := FromPEDebugDirectory(guid, 1)
	assert.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", id.ToBreakpad())
}

// TestDebugIdBreakpadRoundTrip is the round-trip law from spec.md §8: for
// every valid DebugId, from_breakpad(d.to_breakpad()) == Ok(d).
func TestDebugIdBreakpadRoundTrip(t *testing.T) {
	cases := []DebugId{
		{UUID: uuid.MustParse("AA152DEB-2D9B-7608-4C4C-44205044422E"), Age: 1},
		{UUID: uuid.New(), Age: 0},
		{UUID: uuid.New(), Age: 0xFF},
	}
	for _, d := range cases {
		got, err := FromBreakpad(d.ToBreakpad())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestFromBreakpadRejectsShortInput(t *testing.T) {
	_, err := FromBreakpad("deadbeef")
	assert.Error(t, err)
}

func TestElfAndMachoUUIDReordering(t *testing.T) {
	buildID := []byte{
		0xde, 0xad, 0xbe, 0xef,
		0x12, 0x34,
		0x56, 0x78,
		0x9a, 0xbc, 0xde, 0xf0, 0x11, 0x22, 0x33, 0x44,
	}
	id := FromElfBuildId(buildID)
	assert.Equal(t, uint32(0), id.Age)
	assert.Equal(t, "EFBEADDE34127856", id.ToBreakpad()[:16])

	var lcUUID [16]byte
	copy(lcUUID[:], buildID)
	machoID := FromMachoUUID(lcUUID)
	assert.Equal(t, id.UUID, machoID.UUID)
}
