// Package locator implements spec.md §4.10: given a LibraryInfo, produce
// an ordered list of candidate paths/URLs a debug file might be found at,
// then download whichever is missing locally with a crash-safe atomic
// write protocol.
package locator

import (
	"path/filepath"
	"strings"

	"github.com/elastic/symprofile/libpf"
)

// LibraryInfo is the input to candidate enumeration: everything known
// about a library from the capture side (spec.md §3's Library, restated
// for the locator's purposes).
type LibraryInfo struct {
	DebugName string
	DebugID   libpf.DebugId
	Path      string // the binary's own on-disk path, if known
	DebugPath string // an explicit debug-file path, if the binary recorded one
}

// CandidateKind discriminates where a CandidatePathInfo points.
type CandidateKind uint8

const (
	CandidateLocalFile CandidateKind = iota
	CandidateBreakpadCache
	CandidateSymbolServer
	CandidateDebuginfod
	CandidateDsymSpotlight
	CandidateDyldCache
)

// CandidatePathInfo is one entry of the ordered candidate list; Path is a
// local filesystem path for CandidateLocalFile/CandidateBreakpadCache,
// "<cache path>!<dylib path>" for CandidateDyldCache, the bare UUID
// string for CandidateDsymSpotlight, and a full URL for
// CandidateSymbolServer/CandidateDebuginfod.
type CandidatePathInfo struct {
	Kind CandidateKind
	Path string
}

// EnumOptions carries the configured search locations candidate
// enumeration consults beyond what LibraryInfo itself implies.
type EnumOptions struct {
	BreakpadCacheDir string
	SymbolServerURLs []string // may be https:// or s3://
	DebuginfodURLs   []string
	DyldCachePaths   []string
}

// Enumerate produces the ordered candidate list of spec.md §4.10. Callers
// attempt each in order; the first that parses with a matching DebugId
// wins.
func Enumerate(lib LibraryInfo, opts EnumOptions) []CandidatePathInfo {
	var out []CandidatePathInfo

	// 1. Exact file at debug_path, then at path.
	if lib.DebugPath != "" {
		out = append(out, CandidatePathInfo{Kind: CandidateLocalFile, Path: lib.DebugPath})
	}
	if lib.Path != "" {
		out = append(out, CandidatePathInfo{Kind: CandidateLocalFile, Path: lib.Path})
	}

	// 2. For .so, also try <name>.so.dbg next to it.
	if lib.Path != "" && strings.HasSuffix(lib.Path, ".so") {
		out = append(out, CandidatePathInfo{Kind: CandidateLocalFile, Path: lib.Path + ".dbg"})
	}

	// 3. For non-PDB, also try <name>.dSYM/Contents/Resources/DWARF/<name>.
	if lib.Path != "" && !strings.HasSuffix(strings.ToLower(lib.DebugName), ".pdb") {
		base := filepath.Base(lib.Path)
		dsym := filepath.Join(lib.Path+".dSYM", "Contents", "Resources", "DWARF", base)
		out = append(out, CandidatePathInfo{Kind: CandidateLocalFile, Path: dsym})
	}

	// 4. Breakpad-layout cache: <breakpad_dir>/<debug_name>/<debug_id>/<debug_name>.
	if opts.BreakpadCacheDir != "" {
		breakpadID := lib.DebugID.ToBreakpad()
		base := filepath.Join(opts.BreakpadCacheDir, lib.DebugName, breakpadID, lib.DebugName)
		out = append(out, CandidatePathInfo{Kind: CandidateBreakpadCache, Path: base})
		out = append(out, CandidatePathInfo{Kind: CandidateBreakpadCache, Path: base + ".sym"})
	}

	// 5. System-configured symbol servers.
	for _, server := range opts.SymbolServerURLs {
		out = append(out, CandidatePathInfo{
			Kind: CandidateSymbolServer,
			Path: joinURL(server, lib.DebugName, lib.DebugID.ToBreakpad(), lib.DebugName),
		})
	}

	// 6. debuginfod. The buildid segment is the DebugId's dashed UUID
	// string; LibraryInfo carries no code_id, so the original ELF build-id
	// bytes are not used.
	for _, server := range opts.DebuginfodURLs {
		out = append(out, CandidatePathInfo{
			Kind: CandidateDebuginfod,
			Path: joinURL(server, "buildid", lib.DebugID.UUID.String(), "debuginfo"),
		})
	}

	// 7. dSYM-by-UUID: Path is the DebugId's UUID string itself. No
	// Spotlight (mdfind) query is run; the candidate only opens if a file
	// of that name exists relative to the working directory.
	out = append(out, CandidatePathInfo{Kind: CandidateDsymSpotlight, Path: lib.DebugID.UUID.String()})

	// 8. Entries inside the dyld shared cache.
	for _, cache := range opts.DyldCachePaths {
		out = append(out, CandidatePathInfo{Kind: CandidateDyldCache, Path: cache + "!" + lib.Path})
	}

	return out
}

func joinURL(base string, parts ...string) string {
	u := strings.TrimSuffix(base, "/")
	for _, p := range parts {
		u += "/" + p
	}
	return u
}
