package api

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/locator"
)

const testBreakpadSym = `MODULE Linux x86_64 AA152DEB2D9B76084C4C44205044422E1 libtest.so
FILE 0 /src/test.c
FUNC 1000 50 0 foo
1000 10 10 0
`

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	symPath := filepath.Join(dir, "libtest.so")
	require.NoError(t, os.WriteFile(symPath, []byte(testBreakpadSym), 0o644))

	downloader, err := locator.NewDownloader(16)
	require.NoError(t, err)

	r, err := NewResolver(t.TempDir(), locator.EnumOptions{}, downloader, nil, 16)
	require.NoError(t, err)
	return r, symPath
}

func TestResolverResolvesLocalBreakpadFile(t *testing.T) {
	r, symPath := newTestResolver(t)

	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	sm, err := r.Resolve(context.Background(), locator.LibraryInfo{
		DebugName: "libtest.so",
		DebugID:   id,
		Path:      symPath,
	})
	require.NoError(t, err)
	require.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", sm.DebugID().ToBreakpad())
}

func TestResolverCachesOpenedMaps(t *testing.T) {
	r, symPath := newTestResolver(t)
	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)
	lib := locator.LibraryInfo{DebugName: "libtest.so", DebugID: id, Path: symPath}

	sm1, err := r.Resolve(context.Background(), lib)
	require.NoError(t, err)
	sm2, err := r.Resolve(context.Background(), lib)
	require.NoError(t, err)
	require.Same(t, sm1, sm2)
}

func TestResolverFailsWhenNoCandidateMatches(t *testing.T) {
	r, _ := newTestResolver(t)
	id, err := libpf.FromBreakpad("DEADBEEFDEADBEEFDEADBEEFDEADBEEF0")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), locator.LibraryInfo{DebugName: "missing.so", DebugID: id})
	require.Error(t, err)
}

type fakeS3Fetcher struct {
	body []byte
}

func (f *fakeS3Fetcher) Fetch(ctx context.Context, url string, dest io.Writer) error {
	_, err := dest.Write(f.body)
	return err
}

func TestResolverRoutesS3CandidateThroughS3Source(t *testing.T) {
	downloader, err := locator.NewDownloader(16)
	require.NoError(t, err)
	r, err := NewResolver(t.TempDir(), locator.EnumOptions{
		SymbolServerURLs: []string{"s3://symbols-bucket/prefix"},
	}, downloader, nil, 16)
	require.NoError(t, err)
	r.s3 = &fakeS3Fetcher{body: []byte(testBreakpadSym)}

	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	sm, err := r.Resolve(context.Background(), locator.LibraryInfo{
		DebugName: "libtest.so",
		DebugID:   id,
	})
	require.NoError(t, err)
	require.Equal(t, "AA152DEB2D9B76084C4C44205044422E1", sm.DebugID().ToBreakpad())
}

func TestResolverRejectsMalformedDyldCacheCandidate(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.tryCandidate(context.Background(), locator.LibraryInfo{DebugName: "libtest.dylib"},
		locator.CandidatePathInfo{Kind: locator.CandidateDyldCache, Path: "no-bang-separator"})
	require.ErrorContains(t, err, "malformed dyld cache candidate")
}

func TestResolverRoutesDyldCacheCandidateInsteadOfSkipping(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.tryCandidate(context.Background(), locator.LibraryInfo{DebugName: "libtest.dylib"},
		locator.CandidatePathInfo{
			Kind: locator.CandidateDyldCache,
			Path: filepath.Join(t.TempDir(), "dyld_shared_cache_arm64e") + "!/usr/lib/libtest.dylib",
		})
	// The cache file doesn't exist: this must fail opening it rather than
	// silently returning (nil, nil) and letting Resolve move on as if the
	// candidate source didn't exist.
	require.Error(t, err)
}

func TestResolverFailsS3CandidateWhenNoSourceConfigured(t *testing.T) {
	downloader, err := locator.NewDownloader(16)
	require.NoError(t, err)
	r, err := NewResolver(t.TempDir(), locator.EnumOptions{
		SymbolServerURLs: []string{"s3://symbols-bucket/prefix"},
	}, downloader, nil, 16)
	require.NoError(t, err)

	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), locator.LibraryInfo{DebugName: "libtest.so", DebugID: id})
	require.Error(t, err)
}
