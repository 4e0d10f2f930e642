package symuploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/libpf"
)

type fakeInstructions struct {
	mu         sync.Mutex
	shouldUp   bool
	putURL     string
	uploadedCh chan struct{}
}

func (f *fakeInstructions) ShouldUpload(ctx context.Context, debugName string, id libpf.DebugId) (bool, error) {
	return f.shouldUp, nil
}
func (f *fakeInstructions) SignedPutURL(ctx context.Context, debugName string, id libpf.DebugId, size int64) (string, error) {
	return f.putURL, nil
}
func (f *fakeInstructions) MarkUploaded(ctx context.Context, debugName string, id libpf.DebugId) error {
	close(f.uploadedCh)
	return nil
}

func TestUploaderUploadsWholeFileWhenExtractionDisabled(t *testing.T) {
	var gotBody []byte
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fi := &fakeInstructions{shouldUp: true, putURL: srv.URL, uploadedCh: make(chan struct{})}
	dir := t.TempDir()
	u, err := New(fi, dir, 16, false)
	require.NoError(t, err)

	srcPath := filepath.Join(t.TempDir(), "module.debug")
	require.NoError(t, os.WriteFile(srcPath, []byte("debuginfo-bytes"), 0o644))

	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	u.Upload(context.Background(), "libtest.so", id, srcPath)

	select {
	case <-fi.uploadedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, string(gotBody), "debuginfo-bytes")
}

func TestUploaderSkipsWhenBackendDeclines(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	fi := &fakeInstructions{shouldUp: false, putURL: srv.URL, uploadedCh: make(chan struct{})}
	u, err := New(fi, t.TempDir(), 16, false)
	require.NoError(t, err)

	srcPath := filepath.Join(t.TempDir(), "module.debug")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))
	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	u.Upload(context.Background(), "libtest.so", id, srcPath)
	time.Sleep(100 * time.Millisecond)
	require.False(t, called)
}

func TestUploaderSecondCallIsNoOpWhileFirstInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fi := &fakeInstructions{shouldUp: true, putURL: srv.URL, uploadedCh: make(chan struct{})}
	u, err := New(fi, t.TempDir(), 16, false)
	require.NoError(t, err)

	srcPath := filepath.Join(t.TempDir(), "module.debug")
	require.NoError(t, os.WriteFile(srcPath, []byte("bytes"), 0o644))
	id, err := libpf.FromBreakpad("AA152DEB2D9B76084C4C44205044422E1")
	require.NoError(t, err)

	u.Upload(context.Background(), "libtest.so", id, srcPath)
	u.Upload(context.Background(), "libtest.so", id, srcPath) // ignored: singleflight slot held

	close(release)
	select {
	case <-fi.uploadedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not complete")
	}
}
