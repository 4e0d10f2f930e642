package symbol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPad4RoundsUpToMultipleOfFour(t *testing.T) {
	require.Equal(t, 0, pad4(0))
	require.Equal(t, 4, pad4(1))
	require.Equal(t, 4, pad4(4))
	require.Equal(t, 8, pad4(5))
}

func TestLeU32DecodesLittleEndian(t *testing.T) {
	require.Equal(t, uint32(0x04030201), leU32([]byte{1, 2, 3, 4}))
}

func TestDecompressSectionPassesThroughUncompressedData(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	out, err := decompressSection(data)
	require.NoError(t, err)
	require.Equal(t, data, out)
}
