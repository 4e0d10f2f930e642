// Package symbol implements the uniform symbol-map contract of spec.md
// §4.9 and its backends: ELF/DWARF, Mach-O, PE/PDB, and Breakpad text
// symbol files. Every backend answers the same questions — symbol count,
// iteration, address lookup, inline-frame resolution — so the rest of the
// toolkit (the HTTP API, the reporter) never branches on file format.
package symbol

import (
	"github.com/elastic/symprofile/libpf"
)

// LookupAddress is the three address spaces a caller might hand a
// SymbolMap (spec.md §4.9).
type LookupAddressKind uint8

const (
	LookupRelative LookupAddressKind = iota
	LookupSVMA
	LookupFileOffset
)

type LookupAddress struct {
	Kind  LookupAddressKind
	Value uint64
}

func Relative(v uint32) LookupAddress  { return LookupAddress{Kind: LookupRelative, Value: uint64(v)} }
func SVMA(v uint64) LookupAddress      { return LookupAddress{Kind: LookupSVMA, Value: v} }
func FileOffset(v uint64) LookupAddress { return LookupAddress{Kind: LookupFileOffset, Value: v} }

// Symbol is one entry of a symbol table (spec.md §3): symbols are sorted
// by address, lookup finds the largest entry with address <= query.
type Symbol struct {
	Address uint32
	Size    *uint32
	Name    string
}

// FrameDebugInfo is one (possibly inlined) resolved frame.
type FrameDebugInfo struct {
	Function   string
	File       string
	Line       uint32
	IsInlined  bool
}

// ExternalFileAddressRef points at an address inside a *different* file
// than the one that produced it (spec.md §4.9's macOS OSO case).
type ExternalFileAddressRef struct {
	FilePath string
	Address  uint64
}

// FramesLookupKind discriminates FramesLookupResult's two variants.
type FramesLookupKind uint8

const (
	FramesAvailable FramesLookupKind = iota
	FramesExternal
)

// FramesLookupResult is spec.md §4.9's FramesLookupResult: either the
// inline stack resolved directly in this file, or a pointer at another
// file the caller must load (FramesExternal).
type FramesLookupResult struct {
	Kind     FramesLookupKind
	Frames   []FrameDebugInfo
	External ExternalFileAddressRef
}

// SyncAddressInfo is lookup_sync's result shape (spec.md §4.9).
type SyncAddressInfo struct {
	Symbol Symbol
	Frames *FramesLookupResult
}

// SourceFilePath is resolve_source_file_path's result. It carries only a
// literal path; there is no form that points into an external archive.
type SourceFilePath struct {
	Path string
}

// SymbolMap is the backend-agnostic contract every format parser in this
// package implements (spec.md §4.9). It is safe for concurrent read-only
// use once built (SPEC_FULL.md §5): no backend mutates its state after
// construction, and none keeps a most-recent-external-file cache.
type SymbolMap interface {
	DebugID() libpf.DebugId
	SymbolCount() int
	IterSymbols(yield func(rva uint32, name string) bool)
	LookupSync(addr LookupAddress) (*SyncAddressInfo, error)
	LookupExternal(ref ExternalFileAddressRef) ([]FrameDebugInfo, error)
	ResolveSourceFilePath(file string) SourceFilePath
}

// SortSymbols sorts syms by Address in place, the precondition every
// backend's lookup binary search relies on (spec.md §3 "Symbol").
func SortSymbols(syms []Symbol) {
	sortSymbolsByAddress(syms)
}
