package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/locator"
)

func TestSymbolicateHandlerResolvesFrame(t *testing.T) {
	dir := t.TempDir()
	// Tecken's wire format carries only [debugName, breakpadId] per
	// module, no path hint, so the only candidate the resolver can find
	// without a symbol-server round trip is the breakpad-cache layout:
	// <cacheDir>/<debugName>/<breakpadId>/<debugName>.
	breakpadPath := filepath.Join(dir, "libtest.so", "AA152DEB2D9B76084C4C44205044422E1", "libtest.so")
	require.NoError(t, os.MkdirAll(filepath.Dir(breakpadPath), 0o755))
	require.NoError(t, os.WriteFile(breakpadPath, []byte(testBreakpadSym), 0o644))

	downloader, err := locator.NewDownloader(16)
	require.NoError(t, err)
	resolver, err := NewResolver(t.TempDir(), locator.EnumOptions{BreakpadCacheDir: dir}, downloader, nil, 16)
	require.NoError(t, err)

	handler := &SymbolicateHandler{Resolver: resolver}

	reqBody := SymbolicateRequest{
		MemoryMap: [][2]string{{"libtest.so", "AA152DEB2D9B76084C4C44205044422E1"}},
		Stacks:    [][][2]int{{{0, 0x1005}}},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/symbolicate/v5", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SymbolicateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
}

func TestSymbolicateHandlerRejectsGet(t *testing.T) {
	handler := &SymbolicateHandler{}
	req := httptest.NewRequest(http.MethodGet, "/symbolicate/v5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSymbolicateHandlerRejectsMalformedBody(t *testing.T) {
	handler := &SymbolicateHandler{}
	req := httptest.NewRequest(http.MethodPost, "/symbolicate/v5", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
