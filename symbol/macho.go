package symbol

import (
	"debug/dwarf"
	"debug/macho"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/profile"
)

// osoEntry is one N_OSO stab: an object file this image's debug info was
// linked from, recorded by path and modification time (spec.md §4.9's
// Mach-O "linked image with OSO stabs" case).
type osoEntry struct {
	path  string
	mtime int64
}

// MachOMap is the Mach-O SymbolMap backend. Linked (dSYM-less) images
// carry OSO stabs pointing at the original `.o` files; lookups against
// those addresses return FramesExternal rather than resolving in-file.
type MachOMap struct {
	debugID libpf.DebugId
	syms    []Symbol
	dw      *dwarf.Data
	isOSO   []bool // parallel to syms: true if this symbol's source lives in an external .o
	osoFor  map[uint32]osoEntry
}

// OpenMachO parses a single-architecture Mach-O slice (the caller has
// already selected the right member from a fat binary, if any).
func OpenMachO(r io.ReaderAt) (*MachOMap, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse macho: %w", err)
	}
	defer f.Close()

	m := &MachOMap{osoFor: make(map[uint32]osoEntry)}
	if id, ok := machoUUID(f); ok {
		var raw [16]byte
		copy(raw[:], id[:])
		m.debugID = libpf.FromMachoUUID(raw)
	}

	m.syms, m.isOSO, m.osoFor = machoSymbols(f)
	SortSymbols(m.syms)

	if dw, err := f.DWARF(); err == nil {
		m.dw = dw
	}
	return m, nil
}

// lcUUID is LC_UUID (0x1b); debug/macho has no dedicated struct for it, so
// it surfaces as a raw macho.LoadBytes command we parse by hand: an
// 8-byte header (cmd, cmdsize) followed by the 16-byte UUID.
const lcUUID = 0x1b

func machoUUID(f *macho.File) (uuid.UUID, bool) {
	for _, l := range f.Loads {
		raw := l.Raw()
		if len(raw) < 24 {
			continue
		}
		cmd := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		if cmd != lcUUID {
			continue
		}
		id, err := uuid.FromBytes(raw[8:24])
		if err == nil {
			return id, true
		}
	}
	return uuid.UUID{}, false
}

// machoSymbols walks f.Symtab classifying each function symbol as either
// resident (its DWARF lives in this file) or OSO-backed (N_OSO stab names
// the originating object file; the symbol's own N_FUN entry only records
// which OSO it came from).
func machoSymbols(f *macho.File) ([]Symbol, []bool, map[uint32]osoEntry) {
	var syms []Symbol
	var isOSO []bool
	osoFor := make(map[uint32]osoEntry)

	if f.Symtab == nil {
		return syms, isOSO, osoFor
	}

	var currentOSO osoEntry
	haveOSO := false
	for _, s := range f.Symtab.Syms {
		switch {
		case s.Type&0x0e == 0x06: // N_OSO
			currentOSO = osoEntry{path: s.Name, mtime: int64(s.Value)}
			haveOSO = true
		case s.Type == 0x24 && s.Name != "": // N_FUN (section-relative function symbol)
			syms = append(syms, Symbol{Address: uint32(s.Value), Name: s.Name})
			if haveOSO {
				isOSO = append(isOSO, true)
				osoFor[uint32(s.Value)] = currentOSO
			} else {
				isOSO = append(isOSO, false)
			}
		}
	}
	return syms, isOSO, osoFor
}

func (m *MachOMap) DebugID() libpf.DebugId { return m.debugID }
func (m *MachOMap) SymbolCount() int       { return len(m.syms) }

func (m *MachOMap) IterSymbols(yield func(rva uint32, name string) bool) {
	for _, s := range m.syms {
		if !yield(s.Address, s.Name) {
			return
		}
	}
}

func (m *MachOMap) LookupSync(addr LookupAddress) (*SyncAddressInfo, error) {
	if addr.Kind != LookupRelative && addr.Kind != LookupSVMA {
		return nil, fmt.Errorf("%w: unsupported lookup kind for macho", ErrUnsupported)
	}
	rva := uint32(addr.Value)
	sym, ok := findSymbol(m.syms, rva)
	if !ok {
		return nil, nil
	}
	info := &SyncAddressInfo{Symbol: sym}

	if oso, ok := m.osoFor[sym.Address]; ok {
		info.Frames = &FramesLookupResult{
			Kind: FramesExternal,
			External: ExternalFileAddressRef{
				FilePath: oso.path,
				Address:  uint64(rva - sym.Address),
			},
		}
		return info, nil
	}

	if m.dw != nil {
		if frames, err := inlineFramesDWARF(m.dw, uint64(rva)); err == nil && len(frames) > 0 {
			info.Frames = &FramesLookupResult{Kind: FramesAvailable, Frames: frames}
		}
	}
	return info, nil
}

// LookupExternal always returns ErrUnsupported: this backend does not open
// the OSO `.o` files that LookupSync's FramesExternal results point at,
// and keeps no cache of recently used object files.
func (m *MachOMap) LookupExternal(ref ExternalFileAddressRef) ([]FrameDebugInfo, error) {
	return nil, fmt.Errorf("%w: opening OSO object files requires a file opener callback", ErrUnsupported)
}

func (m *MachOMap) ResolveSourceFilePath(file string) SourceFilePath {
	return SourceFilePath{Path: profile.CanonicalizeSourcePath(file)}
}
