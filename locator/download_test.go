package locator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	sha256simd "github.com/minio/sha256-simd"
	"github.com/stretchr/testify/require"
)

func TestDownloaderWritesFileAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("debuginfo-bytes"))
	}))
	defer srv.Close()

	d, err := NewDownloader(16)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "module.debug")
	require.NoError(t, d.Download(context.Background(), srv.URL, dest, nil))

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "debuginfo-bytes", string(body))

	_, err = os.Stat(dest + ".part")
	require.True(t, os.IsNotExist(err))
}

func TestDownloaderVerifiesDebuginfodSha256(t *testing.T) {
	content := []byte("debuginfo-bytes")
	sum := sha256simd.Sum256(content)
	digest := fmt.Sprintf("%x", sum)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Debuginfod-Sha256", digest)
		w.Write(content)
	}))
	defer srv.Close()

	d, err := NewDownloader(16)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "module.debug")
	require.NoError(t, d.Download(context.Background(), srv.URL, dest, nil))
}

func TestDownloaderRejectsSha256Mismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Debuginfod-Sha256", "0000000000000000000000000000000000000000000000000000000000000000")
		w.Write([]byte("debuginfo-bytes"))
	}))
	defer srv.Close()

	d, err := NewDownloader(16)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "module.debug")
	err = d.Download(context.Background(), srv.URL, dest, nil)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
}
