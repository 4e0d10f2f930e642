package symbol

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/profile"
)

// CodeViewRef is the CodeView (RSDS) debug directory entry a PE carries:
// the PDB's expected DebugId and its on-disk file name, used to pick the
// right PDB candidate out of the locator's search (spec.md §4.9/§4.10).
type CodeViewRef struct {
	DebugID libpf.DebugId
	PDBPath string
}

// PEMap is the PE/PDB SymbolMap backend. The symbol table comes from an
// externally supplied PDBSymbols (OpenPDB); PEMap itself only owns
// address-space bookkeeping and the uniform contract. Lookups return the
// enclosing symbol only, with no inline frames or file/line data. A PEMap
// is only built from a PDB: opening a PE without one fails with
// ErrUnsupported, and exports are not used as a fallback.
type PEMap struct {
	debugID libpf.DebugId
	syms    []Symbol
}

// OpenPE parses the PE header to recover its CodeView reference, without
// requiring the PDB to be present yet (the locator uses this to know what
// to search for).
func OpenPE(r io.ReaderAt) (CodeViewRef, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return CodeViewRef{}, fmt.Errorf("parse pe: %w", err)
	}
	defer f.Close()

	va, size, err := debugDirectoryRange(f)
	if err != nil {
		return CodeViewRef{}, err
	}
	if size == 0 {
		return CodeViewRef{}, fmt.Errorf("%w: no debug directory", ErrNotFound)
	}

	raw, err := readAtVA(f, r, va, size)
	if err != nil {
		return CodeViewRef{}, err
	}

	const entrySize = 28
	for off := 0; off+entrySize <= len(raw); off += entrySize {
		typ := binary.LittleEndian.Uint32(raw[off+12 : off+16])
		const imageDebugTypeCodeView = 2
		if typ != imageDebugTypeCodeView {
			continue
		}
		dataSize := binary.LittleEndian.Uint32(raw[off+16 : off+20])
		ptrRaw := binary.LittleEndian.Uint32(raw[off+24 : off+28])
		cv := make([]byte, dataSize)
		if _, err := r.ReadAt(cv, int64(ptrRaw)); err != nil {
			return CodeViewRef{}, fmt.Errorf("%w: read codeview record: %v", ErrInvalidInput, err)
		}
		return parseCodeViewRSDS(cv)
	}
	return CodeViewRef{}, fmt.Errorf("%w: no CodeView debug directory entry", ErrNotFound)
}

// debugDirectoryRange returns the RVA and size of the IMAGE_DIRECTORY_ENTRY_DEBUG
// data directory (index 6), from whichever OptionalHeader variant the PE carries.
func debugDirectoryRange(f *pe.File) (uint32, uint32, error) {
	const debugDirIndex = 6
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		d := oh.DataDirectory[debugDirIndex]
		return d.VirtualAddress, d.Size, nil
	case *pe.OptionalHeader64:
		d := oh.DataDirectory[debugDirIndex]
		return d.VirtualAddress, d.Size, nil
	default:
		return 0, 0, fmt.Errorf("%w: no optional header", ErrInvalidInput)
	}
}

// readAtVA maps a relative virtual address into the containing section's
// file offset and reads size bytes from there.
func readAtVA(f *pe.File, r io.ReaderAt, va, size uint32) ([]byte, error) {
	for _, sec := range f.Sections {
		if va >= sec.VirtualAddress && va < sec.VirtualAddress+sec.Size {
			fileOff := sec.Offset + (va - sec.VirtualAddress)
			buf := make([]byte, size)
			if _, err := r.ReadAt(buf, int64(fileOff)); err != nil {
				return nil, fmt.Errorf("%w: read debug directory: %v", ErrInvalidInput, err)
			}
			return buf, nil
		}
	}
	return nil, fmt.Errorf("%w: debug directory RVA not in any section", ErrInvalidInput)
}

// parseCodeViewRSDS decodes an RSDS CodeView record: 4-byte "RSDS" magic,
// 16-byte GUID (Microsoft on-disk layout), 4-byte age, NUL-terminated PDB
// path.
func parseCodeViewRSDS(cv []byte) (CodeViewRef, error) {
	if len(cv) < 24 || !bytes.Equal(cv[0:4], []byte("RSDS")) {
		return CodeViewRef{}, fmt.Errorf("%w: not an RSDS CodeView record", ErrUnsupported)
	}
	var guid [16]byte
	copy(guid[:], cv[4:20])
	age := binary.LittleEndian.Uint32(cv[20:24])
	path := cStringOrRest(cv[24:])

	u := pdbGUIDToUUID(guid)
	return CodeViewRef{
		DebugID: libpf.FromPEDebugDirectory(u, age),
		PDBPath: path,
	}, nil
}

// NewPEMap builds the SymbolMap once a matching PDB has been located and
// parsed (OpenPDB). expectedID is validated against the PDB's own id.
func NewPEMap(expectedID libpf.DebugId, pdb *PDBSymbols) (*PEMap, error) {
	gotID := libpf.DebugId{UUID: pdb.DebugID, Age: pdb.Age}
	if gotID.ToBreakpad() != expectedID.ToBreakpad() {
		return nil, &IDMismatchError{Expected: expectedID.ToBreakpad(), Actual: gotID.ToBreakpad()}
	}
	return &PEMap{debugID: expectedID, syms: pdb.Symbols}, nil
}

func (m *PEMap) DebugID() libpf.DebugId { return m.debugID }
func (m *PEMap) SymbolCount() int       { return len(m.syms) }

func (m *PEMap) IterSymbols(yield func(rva uint32, name string) bool) {
	for _, s := range m.syms {
		if !yield(s.Address, s.Name) {
			return
		}
	}
}

func (m *PEMap) LookupSync(addr LookupAddress) (*SyncAddressInfo, error) {
	if addr.Kind != LookupRelative {
		return nil, fmt.Errorf("%w: pe backend only accepts relative addresses", ErrUnsupported)
	}
	sym, ok := findSymbol(m.syms, uint32(addr.Value))
	if !ok {
		return nil, nil
	}
	// Inline-frame resolution for PDB requires a pdb-addr2line-equivalent
	// walk of the module's DEBUG_S_LINES/DEBUG_S_INLINEELINES subsections,
	// which this reader's symbol-record-only scan does not parse; symbol
	// name resolution still works, just without inline frames.
	return &SyncAddressInfo{Symbol: sym}, nil
}

func (m *PEMap) LookupExternal(ExternalFileAddressRef) ([]FrameDebugInfo, error) {
	return nil, fmt.Errorf("%w: pe backend has no external files", ErrUnsupported)
}

func (m *PEMap) ResolveSourceFilePath(file string) SourceFilePath {
	return SourceFilePath{Path: profile.CanonicalizeSourcePath(file)}
}
