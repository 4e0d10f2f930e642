package locator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	lru "github.com/elastic/go-freelru"
	sha256simd "github.com/minio/sha256-simd"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"github.com/elastic/symprofile/internal/log"
)

// ProgressObserver is notified as a download streams in, distinguishing
// compressed vs. uncompressed totals per spec.md §4.10.
type ProgressObserver interface {
	OnProgress(bytesSoFar, totalCompressed, totalUncompressed int64)
}

// Downloader performs the clean-atomic-write download protocol of spec.md
// §4.10, coalescing concurrent requests for the same destination with
// singleflight and remembering every failed URL for five minutes in a
// retry cache, the same shape symuploader.Uploader uses for its own
// retry/in-flight bookkeeping.
type Downloader struct {
	client *http.Client
	group  singleflight.Group
	retry  *lru.SyncedLRU[string, bool]
}

func hashPath(s string) uint32 { return uint32(xxh3.HashString(s)) }

// NewDownloader builds a Downloader with a retry-cache of the given size.
func NewDownloader(retryCacheSize uint32) (*Downloader, error) {
	retry, err := lru.NewSynced[string, bool](retryCacheSize, hashPath)
	if err != nil {
		return nil, err
	}
	return &Downloader{client: http.DefaultClient, retry: retry}, nil
}

// Download fetches url into dest using the lock-file/`.part`-file atomic
// write protocol of spec.md §4.10, returning immediately with the
// existing file if another caller already produced it while this one
// waited on the lock.
func (d *Downloader) Download(ctx context.Context, url, dest string, observer ProgressObserver) error {
	if recentlyFailed, ok := d.retry.Get(url); ok && recentlyFailed {
		return fmt.Errorf("locator: %s recently failed, not retrying yet", url)
	}

	_, err, _ := d.group.Do(dest, func() (any, error) {
		return nil, d.downloadLocked(ctx, url, dest, observer)
	})
	if err != nil {
		d.retry.AddWithLifetime(url, true, 5*time.Minute)
	}
	return err
}

func (d *Downloader) downloadLocked(ctx context.Context, url, dest string, observer ProgressObserver) error {
	lockPath := dest + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("locator: open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := flockRetryEINTR(int(lockFile.Fd())); err != nil {
		return fmt.Errorf("locator: acquire lock: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	// Another process may have finished the download while we waited.
	if _, err := os.Stat(dest); err == nil {
		os.Remove(lockPath)
		return nil
	}

	partPath := dest + ".part"
	part, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("locator: create part file: %w", err)
	}

	if err := d.stream(ctx, url, part, observer); err != nil {
		part.Close()
		os.Remove(partPath)
		return err
	}
	if err := part.Close(); err != nil {
		os.Remove(partPath)
		return err
	}

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("locator: rename part file into place: %w", err)
	}
	os.Remove(lockPath)
	return nil
}

// flockRetryEINTR retries Flock across EINTR, the off-thread-blocking
// advisory lock spec.md §4.10 step 1 describes.
func flockRetryEINTR(fd int) error {
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if err == nil || err != unix.EINTR {
			return err
		}
	}
}

func (d *Downloader) stream(ctx context.Context, url string, out io.Writer, observer ProgressObserver) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("locator: unexpected status %d fetching %s", resp.StatusCode, url)
	}

	totalCompressed := contentLength(resp)
	body := resp.Body
	totalUncompressed := totalCompressed
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("locator: open gzip stream: %w", err)
		}
		defer gz.Close()
		body = gz
		totalUncompressed = -1 // unknown until fully decompressed
	}

	// A debuginfod-compatible server (spec.md §4.10 candidate 6) may
	// advertise the uncompressed content's sha256 in this header; verify
	// it once the body is fully read when present, rather than trusting
	// Content-Length alone.
	wantDigest := resp.Header.Get("X-Debuginfod-Sha256")
	hasher := sha256simd.New()

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
			hasher.Write(buf[:n])
			written += int64(n)
			if observer != nil {
				observer.OnProgress(written, totalCompressed, totalUncompressed)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if wantDigest != "" {
		if got := fmt.Sprintf("%x", hasher.Sum(nil)); !strings.EqualFold(got, wantDigest) {
			return fmt.Errorf("locator: %s: sha256 mismatch, want %s got %s", url, wantDigest, got)
		}
	}
	log.Debugf("locator: downloaded %d bytes from %s", written, url)
	return nil
}

// contentLength prefers the standard header, falling back to the
// provider-specific ones spec.md §4.10 names for fronted storage buckets
// that strip or rewrite Content-Length.
func contentLength(resp *http.Response) int64 {
	for _, h := range []string{"Content-Length", "x-goog-stored-content-length", "x-amz-meta-original_size"} {
		if v := resp.Header.Get(h); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return -1
}
