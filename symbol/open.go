package symbol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/elastic/symprofile/libpf"
)

// Open sniffs r's leading bytes and parses it with whichever backend
// matches, validating the result's DebugId against want (spec.md §7's
// IdMismatch). Open itself never does I/O beyond r; when r turns out to
// be a PE whose CodeView record names a companion PDB, the caller
// supplies the already-opened PDB reader via openPDB.
func Open(r io.ReaderAt, want libpf.DebugId, openPDB func() (io.ReaderAt, error)) (SymbolMap, error) {
	var head [32]byte
	n, err := r.ReadAt(head[:], 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("symbol: read header: %w", err)
	}
	head32 := head[:n]

	switch {
	case bytes.HasPrefix(head32, []byte{0x7f, 'E', 'L', 'F'}):
		m, err := OpenELF(r)
		if err != nil {
			return nil, err
		}
		return m, checkID(want, m.DebugID())

	case bytes.HasPrefix(head32, []byte{'M', 'Z'}):
		ref, err := OpenPE(r)
		if err != nil {
			return nil, err
		}
		if err := checkID(want, ref.DebugID); err != nil {
			return nil, err
		}
		if openPDB == nil {
			return nil, fmt.Errorf("%w: pe found but no pdb opener supplied", ErrUnsupported)
		}
		pdbReader, err := openPDB()
		if err != nil {
			return nil, &HelperError{Phase: "open pdb", Cause: err}
		}
		pdb, err := OpenPDB(pdbReader)
		if err != nil {
			return nil, err
		}
		return NewPEMap(ref.DebugID, pdb)

	case isFatMachOMagic(head32):
		return OpenFatMachO(r, want)

	case isMachOMagic(head32):
		m, err := OpenMachO(r)
		if err != nil {
			return nil, err
		}
		return m, checkID(want, m.DebugID())

	case bytes.HasPrefix(head32, msfMagic):
		pdb, err := OpenPDB(r)
		if err != nil {
			return nil, err
		}
		// A bare PDB with no companion PE: report under the PDB's own
		// id so the caller's IdMismatch check still has something to
		// compare against the requested id.
		got := libpf.DebugId{UUID: pdb.DebugID, Age: pdb.Age}
		if err := checkID(want, got); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: bare pdb has no standalone SymbolMap (needs a PE CodeView record)", ErrUnsupported)

	case looksLikeBreakpadText(head32):
		bm, err := ParseBreakpad(bufioReader(r))
		if err != nil {
			return nil, err
		}
		return bm, checkID(want, bm.DebugID())
	}

	return nil, fmt.Errorf("%w: unrecognized file format", ErrUnsupported)
}

func checkID(want, got libpf.DebugId) error {
	if want.UUID == ([16]byte{}) {
		return nil // caller didn't know what to expect (e.g. discovery mode)
	}
	if want.ToBreakpad() != got.ToBreakpad() {
		return &IDMismatchError{Expected: want.ToBreakpad(), Actual: got.ToBreakpad()}
	}
	return nil
}

func isMachOMagic(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	switch {
	case bytes.HasPrefix(head, []byte{0xfe, 0xed, 0xfa, 0xce}),
		bytes.HasPrefix(head, []byte{0xce, 0xfa, 0xed, 0xfe}),
		bytes.HasPrefix(head, []byte{0xfe, 0xed, 0xfa, 0xcf}),
		bytes.HasPrefix(head, []byte{0xcf, 0xfa, 0xed, 0xfe}):
		return true
	}
	return false
}

func isFatMachOMagic(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	switch {
	case bytes.HasPrefix(head, []byte{0xca, 0xfe, 0xba, 0xbe}),
		bytes.HasPrefix(head, []byte{0xbe, 0xba, 0xfe, 0xca}):
		return true
	}
	return false
}

func looksLikeBreakpadText(head []byte) bool {
	return bytes.HasPrefix(head, []byte("MODULE "))
}

func bufioReader(r io.ReaderAt) *bufioReaderAt {
	return &bufioReaderAt{r: r}
}

// bufioReaderAt adapts an io.ReaderAt into an io.Reader starting at
// offset 0, since ParseBreakpad scans sequentially with a bufio.Scanner.
type bufioReaderAt struct {
	r   io.ReaderAt
	off int64
}

func (b *bufioReaderAt) Read(p []byte) (int, error) {
	n, err := b.r.ReadAt(p, b.off)
	b.off += int64(n)
	return n, err
}
