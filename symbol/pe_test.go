package symbol

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func buildRSDSRecord(guid [16]byte, age uint32, path string) []byte {
	buf := make([]byte, 0, 24+len(path)+1)
	buf = append(buf, []byte("RSDS")...)
	buf = append(buf, guid[:]...)
	ageBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(ageBytes, age)
	buf = append(buf, ageBytes...)
	buf = append(buf, []byte(path)...)
	buf = append(buf, 0)
	return buf
}

// TestParseCodeViewRSDSProducesS4BreakpadID exercises scenario S4 from
// spec.md §8: PE signature GUID {AA152DEB-2D9B-7608-4C4C-44205044422E},
// age 1, renders as "AA152DEB2D9B76084C4C44205044422E1".
func TestParseCodeViewRSDSProducesS4BreakpadID(t *testing.T) {
	// The Microsoft on-disk GUID layout stores Data1/Data2/Data3
	// little-endian; pdbGUIDToUUID reorders those back to the canonical
	// big-endian UUID rendering, so the raw bytes here are the would-be
	// UUID string's bytes re-ordered the way a PDB stream stores them.
	want := uuid.MustParse("AA152DEB-2D9B-7608-4C4C-44205044422E")
	var disk [16]byte
	disk[0], disk[1], disk[2], disk[3] = want[3], want[2], want[1], want[0]
	disk[4], disk[5] = want[5], want[4]
	disk[6], disk[7] = want[7], want[6]
	copy(disk[8:], want[8:16])

	record := buildRSDSRecord(disk, 1, "libtest.pdb")
	ref, err := parseCodeViewRSDS(record)
	require.NoError(t, err)
	require.Equal(t, "libtest.pdb", ref.PDBPath)
	require.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", ref.DebugID.ToBreakpad())
}

func TestParseCodeViewRSDSRejectsWrongMagic(t *testing.T) {
	bad := make([]byte, 24)
	copy(bad, []byte("XXXX"))
	_, err := parseCodeViewRSDS(bad)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestParseCodeViewRSDSRejectsTruncatedRecord(t *testing.T) {
	_, err := parseCodeViewRSDS([]byte("RSDS"))
	require.ErrorIs(t, err, ErrUnsupported)
}
