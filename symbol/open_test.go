package symbol

import (
	"strings"
	"testing"

	"github.com/elastic/symprofile/libpf"
	"github.com/stretchr/testify/require"
)

type stringReaderAt struct {
	s string
}

func (r *stringReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return strings.NewReader(r.s).ReadAt(p, off)
}

func TestOpenDispatchesBreakpadTextFormat(t *testing.T) {
	r := &stringReaderAt{s: sampleBreakpadSym}
	sm, err := Open(r, libpf.DebugId{}, nil)
	require.NoError(t, err)
	require.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", sm.DebugID().ToBreakpad())
}

func TestOpenRejectsMismatchedExpectedID(t *testing.T) {
	r := &stringReaderAt{s: sampleBreakpadSym}
	other, err := libpf.FromBreakpad("DEADBEEFDEADBEEFDEADBEEFDEADBEEF0")
	require.NoError(t, err)

	_, err = Open(r, other, nil)
	var mismatch *IDMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestOpenRejectsUnrecognizedFormat(t *testing.T) {
	r := &stringReaderAt{s: "not a known symbol file format at all"}
	_, err := Open(r, libpf.DebugId{}, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}
