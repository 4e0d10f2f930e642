package profile

import "github.com/elastic/symprofile/libpf"

// Library is the identity of every loaded image (spec.md §3): identity is
// (DebugName, DebugId). A library is created on first reference and never
// destroyed; it may accumulate a UsedRVA set for lazy presymbolication
// (SPEC_FULL.md §12, recovered from samply's presymbolicate.rs).
type Library struct {
	DebugName   string
	DebugId     libpf.DebugId
	CodeId      string // optional; empty if unknown
	Path        string
	DebugPath   string
	Arch        string
	SymbolTable bool // set once a symbol table has been attached

	// UsedRVA records relative addresses actually referenced by a
	// capture, so a presymbolication pass can symbolicate only what was
	// used instead of the whole library (SPEC_FULL.md §12).
	UsedRVA map[uint32]struct{}
}

func (l *Library) noteUsedRVA(rva uint32) {
	if l.UsedRVA == nil {
		l.UsedRVA = make(map[uint32]struct{})
	}
	l.UsedRVA[rva] = struct{}{}
}

type libraryKey struct {
	debugName string
	debugId   libpf.DebugId
}

// libraryTable is the global library table shared across all processes in
// a profile (spec.md §2's "Library Table (global)"): dedup on
// (debug_name, debug_id).
type libraryTable struct {
	entries []*Library
	byKey   map[libraryKey]LibraryHandle
}

func newLibraryTable() *libraryTable {
	return &libraryTable{byKey: make(map[libraryKey]LibraryHandle)}
}

// HandleFor interns lib by its (DebugName, DebugId) identity. If an entry
// already exists, the existing *Library is returned (so callers mutating
// UsedRVA, CodeId, etc. operate on the canonical instance) and lib's extra
// fields are merged in where the existing entry left them empty.
func (t *libraryTable) HandleFor(lib Library) (LibraryHandle, *Library) {
	key := libraryKey{debugName: lib.DebugName, debugId: lib.DebugId}
	if h, ok := t.byKey[key]; ok {
		existing := t.entries[h]
		if existing.Path == "" {
			existing.Path = lib.Path
		}
		if existing.DebugPath == "" {
			existing.DebugPath = lib.DebugPath
		}
		if existing.CodeId == "" {
			existing.CodeId = lib.CodeId
		}
		return h, existing
	}
	h := LibraryHandle(len(t.entries))
	stored := lib
	t.entries = append(t.entries, &stored)
	t.byKey[key] = h
	return h, &stored
}

func (t *libraryTable) Get(h LibraryHandle) *Library {
	if h == NoLibrary {
		return nil
	}
	return t.entries[h]
}

func (t *libraryTable) Entries() []*Library { return t.entries }
