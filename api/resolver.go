// Package api implements the Tecken-compatible JSON HTTP surface of
// spec.md §6: POST /symbolicate/v5, GET /source/v1, GET /asm/v1. It is
// the one place the locator (candidate enumeration + download) and the
// symbol package (format-specific lookup) are wired together behind a
// single per-library cache, the same "resolve once, cache the opened
// backend" role symuploader.Uploader plays for uploads.
package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"github.com/elastic/symprofile/internal/log"
	"github.com/elastic/symprofile/locator"
	"github.com/elastic/symprofile/symbol"
)

// s3Fetcher is the subset of *locator.S3Source a Resolver needs; an
// interface so tests can stand in a fake without touching real AWS
// credentials.
type s3Fetcher interface {
	Fetch(ctx context.Context, url string, dest io.Writer) error
}

// Resolver turns a (debugName, debugId) pair into an opened SymbolMap,
// trying local candidates first and falling back to the configured
// symbol servers/debuginfod, downloading through a Downloader when a
// candidate is remote (spec.md §4.10).
type Resolver struct {
	downloadDir string
	opts        locator.EnumOptions
	downloader  *locator.Downloader
	s3          s3Fetcher // nil if no s3:// candidate source is configured
	cache       *lru.SyncedLRU[string, symbol.SymbolMap]
}

// NewResolver builds a Resolver that caches opened SymbolMaps in an LRU
// of cacheSize entries, downloading missing debug files under
// downloadDir (typically config.CacheDirectory()). s3 may be nil when
// opts.SymbolServerURLs contains no s3:// entries; any s3:// candidate
// that shows up anyway is then skipped rather than treated as fatal.
func NewResolver(downloadDir string, opts locator.EnumOptions, downloader *locator.Downloader, s3 *locator.S3Source, cacheSize uint32) (*Resolver, error) {
	cache, err := lru.NewSynced[string, symbol.SymbolMap](cacheSize, func(k string) uint32 {
		return uint32(xxh3.HashString(k))
	})
	if err != nil {
		return nil, fmt.Errorf("api: build symbol map cache: %w", err)
	}
	r := &Resolver{downloadDir: downloadDir, opts: opts, downloader: downloader, cache: cache}
	if s3 != nil {
		r.s3 = s3
	}
	return r, nil
}

func cacheKey(lib locator.LibraryInfo) string {
	return lib.DebugName + "/" + lib.DebugID.ToBreakpad()
}

// Resolve returns the opened SymbolMap for lib, trying each candidate
// path/URL from locator.Enumerate in order until one parses with a
// matching DebugId (spec.md §4.10/§7). Per-candidate failures are not
// fatal; only exhausting every candidate is.
func (r *Resolver) Resolve(ctx context.Context, lib locator.LibraryInfo) (symbol.SymbolMap, error) {
	key := cacheKey(lib)
	if sm, ok := r.cache.Get(key); ok {
		return sm, nil
	}

	var lastErr error
	for _, cand := range locator.Enumerate(lib, r.opts) {
		sm, err := r.tryCandidate(ctx, lib, cand)
		if err != nil {
			lastErr = err
			continue
		}
		if sm == nil {
			continue
		}
		r.cache.Add(key, sm)
		return sm, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", symbol.ErrNotFound, lib.DebugName, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", symbol.ErrNotFound, lib.DebugName)
}

func (r *Resolver) tryCandidate(ctx context.Context, lib locator.LibraryInfo, cand locator.CandidatePathInfo) (symbol.SymbolMap, error) {
	switch cand.Kind {
	case locator.CandidateLocalFile, locator.CandidateBreakpadCache, locator.CandidateDsymSpotlight:
		return r.openLocalPath(lib, cand.Path)

	case locator.CandidateSymbolServer, locator.CandidateDebuginfod:
		dest := filepath.Join(r.downloadDir, lib.DebugName, lib.DebugID.ToBreakpad(), filepath.Base(cand.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if strings.HasPrefix(cand.Path, "s3://") {
			if r.s3 == nil {
				return nil, fmt.Errorf("api: candidate %s requires an s3 source, none configured", cand.Path)
			}
			out, err := os.Create(dest)
			if err != nil {
				return nil, err
			}
			err = r.s3.Fetch(ctx, cand.Path, out)
			closeErr := out.Close()
			if err != nil {
				log.Debugf("api: s3 fetch candidate %s: %v", cand.Path, err)
				return nil, err
			}
			if closeErr != nil {
				return nil, closeErr
			}
			return r.openLocalPath(lib, dest)
		}
		if err := r.downloader.Download(ctx, cand.Path, dest, nil); err != nil {
			log.Debugf("api: download candidate %s: %v", cand.Path, err)
			return nil, err
		}
		return r.openLocalPath(lib, dest)

	case locator.CandidateDyldCache:
		return r.openDyldCacheMember(cand.Path)

	default:
		return nil, nil
	}
}

// openDyldCacheMember handles a CandidateDyldCache candidate, whose Path
// is "<cache file path>!<in-cache dylib install path>" (locator's
// Enumerate builds it that way since a single cache file holds many
// libraries). It opens the cache file and dispatches into
// symbol.OpenDyldCacheMember for the slice covering dylibPath.
func (r *Resolver) openDyldCacheMember(path string) (symbol.SymbolMap, error) {
	cachePath, dylibPath, ok := strings.Cut(path, "!")
	if !ok {
		return nil, fmt.Errorf("api: malformed dyld cache candidate %q", path)
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return symbol.OpenDyldCacheMember(f, dylibPath)
}

// openLocalPath parses the file at path. debug/elf and debug/pe both
// read every section they need into memory while building the
// *dwarf.Data during symbol.Open, so closing f once Open returns is
// safe: nothing it returned keeps reading through f afterward.
func (r *Resolver) openLocalPath(lib locator.LibraryInfo, path string) (symbol.SymbolMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdbPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdb"
	sm, err := symbol.Open(f, lib.DebugID, func() (io.ReaderAt, error) {
		return os.Open(pdbPath)
	})
	if err != nil {
		return nil, err
	}
	return sm, nil
}
