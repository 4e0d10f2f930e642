package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleBreakpadSym = `MODULE Linux x86_64 AA152DEB2D9B76084C4C44205044422E1 libtest.so
FILE 0 /src/test.c
FILE 1 /src/helper.c
FUNC 1000 50 0 foo
1000 10 10 0
1010 40 12 1
FUNC 2000 20 0 bar
PUBLIC 3000 0 baz
`

func TestParseBreakpadExtractsModuleID(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)
	require.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", m.DebugID().ToBreakpad())
}

func TestParseBreakpadFuncLookupResolvesLine(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	info, err := m.LookupSync(Relative(0x1005))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "foo", info.Symbol.Name)
	require.NotNil(t, info.Frames)
	require.Equal(t, "/src/test.c", info.Frames.Frames[0].File)
	require.Equal(t, uint32(10), info.Frames.Frames[0].Line)
}

func TestParseBreakpadFuncLookupAdvancesToSecondLine(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	info, err := m.LookupSync(Relative(0x1030))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "/src/helper.c", info.Frames.Frames[0].File)
	require.Equal(t, uint32(12), info.Frames.Frames[0].Line)
}

func TestParseBreakpadPublicFallback(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	info, err := m.LookupSync(Relative(0x3000))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "baz", info.Symbol.Name)
	require.Nil(t, info.Frames)
}

func TestParseBreakpadLookupOutsideAnyFuncReturnsNil(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	info, err := m.LookupSync(Relative(0x500))
	require.NoError(t, err)
	require.Nil(t, info)
}

func TestParseBreakpadRejectsNonRelativeLookup(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	_, err = m.LookupSync(SVMA(0x1000))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestParseBreakpadIterSymbolsCoversFuncsAndPublics(t *testing.T) {
	m, err := ParseBreakpad(strings.NewReader(sampleBreakpadSym))
	require.NoError(t, err)

	var names []string
	m.IterSymbols(func(rva uint32, name string) bool {
		names = append(names, name)
		return true
	})
	require.Equal(t, []string{"foo", "bar", "baz"}, names)
}
