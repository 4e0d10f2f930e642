package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/locator"
	"github.com/elastic/symprofile/symbol"
)

// SourceResponse is GET /source/v1's body: the resolved frame's source
// file contents, or an error describing why it couldn't be fetched.
type SourceResponse struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SourceHandler serves GET /source/v1 (spec.md §6): symbolicate a single
// address and return the resolved frame's source file contents. Source
// files are read directly off the local filesystem at whatever path
// ResolveSourceFilePath produces; spec.md's archive-fetch case
// (SourceFilePath pointing into e.g. a cargo registry crate) is served
// as a structured error rather than a live fetch, since no source-archive
// backend is wired into this toolkit.
type SourceHandler struct {
	Resolver *Resolver
}

func (h *SourceHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	debugName := q.Get("debugName")
	breakpadID := q.Get("breakpadId")
	offsetStr := q.Get("moduleOffset")

	debugID, err := libpf.FromBreakpad(breakpadID)
	if err != nil {
		writeSourceError(w, http.StatusBadRequest, fmt.Sprintf("invalid breakpadId: %v", err))
		return
	}
	offset, err := strconv.ParseUint(offsetStr, 0, 32)
	if err != nil {
		writeSourceError(w, http.StatusBadRequest, fmt.Sprintf("invalid moduleOffset: %v", err))
		return
	}

	sm, err := h.Resolver.Resolve(req.Context(), locator.LibraryInfo{DebugName: debugName, DebugID: debugID})
	if err != nil {
		writeSourceError(w, http.StatusNotFound, err.Error())
		return
	}

	info, err := sm.LookupSync(symbol.Relative(uint32(offset)))
	if err != nil || info == nil || info.Frames == nil || len(info.Frames.Frames) == 0 {
		writeSourceError(w, http.StatusNotFound, "no source location resolved for this address")
		return
	}
	innermost := info.Frames.Frames[len(info.Frames.Frames)-1]
	if innermost.File == "" {
		writeSourceError(w, http.StatusNotFound, "resolved frame has no file name")
		return
	}

	resolved := sm.ResolveSourceFilePath(innermost.File)
	contents, err := os.ReadFile(resolved.Path)
	if err != nil {
		writeSourceError(w, http.StatusNotFound, fmt.Sprintf("source file not available locally: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SourceResponse{
		File:   resolved.Path,
		Line:   int(innermost.Line),
		Source: string(contents),
	})
}

func writeSourceError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SourceResponse{Error: msg})
}
