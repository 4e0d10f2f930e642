package locator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/libpf"
)

func TestEnumerateOrdersCandidatesPerSpec(t *testing.T) {
	lib := LibraryInfo{
		DebugName: "libfoo.so",
		DebugID:   libpf.DebugId{Age: 1},
		Path:      "/usr/lib/libfoo.so",
	}
	opts := EnumOptions{
		BreakpadCacheDir: "/var/cache/breakpad",
		SymbolServerURLs: []string{"https://symbols.example.com"},
		DebuginfodURLs:   []string{"https://debuginfod.example.com"},
	}

	cands := Enumerate(lib, opts)
	require.NotEmpty(t, cands)

	require.Equal(t, CandidateLocalFile, cands[0].Kind)
	require.Equal(t, "/usr/lib/libfoo.so", cands[0].Path)

	var sawSoDbg, sawDsym, sawBreakpad, sawServer, sawDebuginfod bool
	for _, c := range cands {
		switch {
		case c.Kind == CandidateLocalFile && c.Path == "/usr/lib/libfoo.so.dbg":
			sawSoDbg = true
		case c.Kind == CandidateLocalFile && len(c.Path) > 15 && c.Path[len(c.Path)-15:] == "DWARF/libfoo.so":
			sawDsym = true
		case c.Kind == CandidateBreakpadCache:
			sawBreakpad = true
		case c.Kind == CandidateSymbolServer:
			sawServer = true
		case c.Kind == CandidateDebuginfod:
			sawDebuginfod = true
		}
	}
	require.True(t, sawSoDbg, ".so.dbg candidate missing")
	require.True(t, sawDsym, "dSYM candidate missing")
	require.True(t, sawBreakpad, "breakpad cache candidate missing")
	require.True(t, sawServer, "symbol server candidate missing")
	require.True(t, sawDebuginfod, "debuginfod candidate missing")
}

func TestEnumerateSkipsSoDbgForNonSoFiles(t *testing.T) {
	lib := LibraryInfo{DebugName: "app.pdb", Path: "/app/app.exe"}
	cands := Enumerate(lib, EnumOptions{})
	for _, c := range cands {
		require.NotContains(t, c.Path, ".so.dbg")
	}
}
