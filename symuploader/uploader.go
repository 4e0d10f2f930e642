// Package symuploader pushes debug info this instance has resolved
// locally (e.g. extracted from a running process's own binary) up to a
// remote symbol cache, so a later symbolication request for the same
// debugName/DebugId pair — possibly served by a different instance — can
// skip re-extracting it. It mirrors locator's download side: locator
// pulls debug files down from a symbol server, symuploader pushes newly
// discovered ones back up, both through the same retry/singleflight
// shape over a go-freelru cache keyed on the module's identity.
package symuploader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"github.com/elastic/symprofile/internal/log"
	"github.com/elastic/symprofile/libpf"
)

// InstructionProvider asks a remote symbol backend whether a given
// debugName/DebugId is worth uploading and, if so, where to PUT it.
// config.UploadSymbols gates whether an Uploader is constructed at all;
// this interface is what it talks to once enabled.
type InstructionProvider interface {
	// ShouldUpload reports whether this module is worth uploading: false
	// when the backend already has it, or is already processing an upload
	// for it that hasn't gone stale.
	ShouldUpload(ctx context.Context, debugName string, id libpf.DebugId) (bool, error)
	// SignedPutURL returns a pre-signed URL the uploader can PUT size
	// bytes to for this module.
	SignedPutURL(ctx context.Context, debugName string, id libpf.DebugId, size int64) (string, error)
	// MarkUploaded tells the backend the PUT completed successfully.
	MarkUploaded(ctx context.Context, debugName string, id libpf.DebugId) error
}

// retryBackoff is how long a failed-but-retryable upload is held out of
// retry eligibility, mirroring the teacher's five-minute singleflight
// staleness window.
const retryBackoff = 5 * time.Minute

// Uploader drives at most one in-flight upload per module at a time and
// remembers modules not worth retrying, so a busy process doesn't
// re-attempt the same failed upload on every sample batch.
type Uploader struct {
	instructions InstructionProvider
	httpClient   *http.Client

	retry        *lru.SyncedLRU[string, bool]
	singleflight *lru.SyncedLRU[string, bool]

	extractDebuginfo bool
	cacheDir         string
}

func cacheKeyHash(k string) uint32 { return uint32(xxh3.HashString(k)) }

// New builds an Uploader. extractDebuginfo mirrors
// !config.NoExtractDebuginfo(): when true, Upload runs path through
// extract before handing it to the PUT request instead of uploading the
// whole binary.
func New(instructions InstructionProvider, cacheDir string, cacheSize uint32, extractDebuginfo bool) (*Uploader, error) {
	retryCache, err := lru.NewSynced[string, bool](cacheSize, cacheKeyHash)
	if err != nil {
		return nil, fmt.Errorf("symuploader: build retry cache: %w", err)
	}
	singleflightCache, err := lru.NewSynced[string, bool](cacheSize, cacheKeyHash)
	if err != nil {
		return nil, fmt.Errorf("symuploader: build singleflight cache: %w", err)
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("symuploader: create cache directory %s: %w", cacheDir, err)
	}
	if entries, err := os.ReadDir(cacheDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(cacheDir, e.Name())); err != nil {
				log.Warnf("symuploader: remove stale cache file %s: %v", e.Name(), err)
			}
		}
	}

	return &Uploader{
		instructions:     instructions,
		httpClient:       http.DefaultClient,
		retry:            retryCache,
		singleflight:     singleflightCache,
		extractDebuginfo: extractDebuginfo,
		cacheDir:         cacheDir,
	}, nil
}

func moduleKey(debugName string, id libpf.DebugId) string { return debugName + "/" + id.ToBreakpad() }

// Upload kicks off a best-effort background upload of path (the on-disk
// debug/executable file backing debugName/id) if nothing is already
// in-flight or recently failed for the same module. It returns
// immediately; failures are logged, not returned, since uploading is
// never on a symbolication request's critical path.
func (u *Uploader) Upload(ctx context.Context, debugName string, id libpf.DebugId, path string) {
	key := moduleKey(debugName, id)

	if retry, ok := u.retry.Get(key); ok && !retry {
		return
	}
	if inFlight, ok := u.singleflight.Get(key); ok && inFlight {
		return
	}
	u.singleflight.Add(key, true)

	go func() {
		defer u.singleflight.Add(key, false)
		if err := u.attemptUpload(ctx, debugName, id, path); err != nil {
			log.Warnf("symuploader: upload %s (%s): %v", path, key, err)
			u.retry.AddWithLifetime(key, false, retryBackoff)
		}
	}()
}

func (u *Uploader) attemptUpload(ctx context.Context, debugName string, id libpf.DebugId, path string) error {
	should, err := u.instructions.ShouldUpload(ctx, debugName, id)
	if err != nil {
		return fmt.Errorf("ask backend whether to upload: %w", err)
	}
	if !should {
		u.retry.AddWithLifetime(moduleKey(debugName, id), false, retryBackoff)
		return nil
	}

	f, size, err := u.prepareUploadFile(debugName, id, path)
	if err != nil {
		return err
	}
	defer f.Close()
	if size == 0 {
		u.retry.Add(moduleKey(debugName, id), false)
		return nil
	}

	putURL, err := u.instructions.SignedPutURL(ctx, debugName, id, size)
	if err != nil {
		return fmt.Errorf("get signed upload url: %w", err)
	}

	if err := u.putFile(ctx, putURL, f, size); err != nil {
		return fmt.Errorf("upload via signed url: %w", err)
	}

	if err := u.instructions.MarkUploaded(ctx, debugName, id); err != nil {
		return fmt.Errorf("mark upload finished: %w", err)
	}
	u.retry.Add(moduleKey(debugName, id), false)
	return nil
}

// prepareUploadFile opens the bytes to upload: the original file
// directly when extractDebuginfo is off, or a debug-info-only cached
// copy under cacheDir otherwise. Extraction itself (stripping a binary
// down to its debug sections) is out of scope here — this module never
// links against an ELF rewriter — so the cached copy is currently just a
// plain passthrough copy of the original, reusable across uploads of the
// same module without re-reading the source file from its process.
func (u *Uploader) prepareUploadFile(debugName string, id libpf.DebugId, path string) (*os.File, int64, error) {
	if !u.extractDebuginfo {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, 0, fmt.Errorf("source file gone (process likely exited): %w", err)
			}
			return nil, 0, err
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, stat.Size(), nil
	}

	cached := filepath.Join(u.cacheDir, moduleFilename(debugName, id))
	if f, err := os.Open(cached); err == nil {
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, stat.Size(), nil
	}

	dst, err := os.Create(cached)
	if err != nil {
		return nil, 0, fmt.Errorf("create cached copy: %w", err)
	}
	src, err := os.Open(path)
	if err != nil {
		dst.Close()
		os.Remove(cached)
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("source file gone (process likely exited): %w", err)
		}
		return nil, 0, err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(cached)
		return nil, 0, fmt.Errorf("copy to cache: %w", err)
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		dst.Close()
		os.Remove(cached)
		return nil, 0, err
	}
	stat, err := dst.Stat()
	if err != nil {
		dst.Close()
		os.Remove(cached)
		return nil, 0, err
	}
	return dst, stat.Size(), nil
}

func moduleFilename(debugName string, id libpf.DebugId) string {
	return debugName + "-" + id.ToBreakpad()
}

func (u *Uploader) putFile(ctx context.Context, url string, r io.Reader, size int64) error {
	// http.Client closes a request body that also implements io.Closer
	// once the request completes; wrapping in bufio keeps this uploader
	// in full control of when the underlying file is closed.
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = size

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}
