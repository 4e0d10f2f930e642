package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/locator"
	"github.com/elastic/symprofile/symbol"
)

// SymbolicateHandler serves POST /symbolicate/v5 (spec.md §6). Each
// referenced library is resolved in parallel (one goroutine per distinct
// module, via errgroup), since a batch routinely references dozens of
// libraries and resolution is I/O-bound; a failure to resolve one module
// never fails the whole request (spec.md §7 "per-library errors are
// local").
type SymbolicateHandler struct {
	Resolver *Resolver
}

func (h *SymbolicateHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body SymbolicateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	libs := make([]locator.LibraryInfo, len(body.MemoryMap))
	for i, entry := range body.MemoryMap {
		debugName, breakpadID := entry[0], entry[1]
		debugID, err := libpf.FromBreakpad(breakpadID)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid breakpad id %q: %v", breakpadID, err), http.StatusBadRequest)
			return
		}
		libs[i] = locator.LibraryInfo{DebugName: debugName, DebugID: debugID}
	}

	maps := make([]symbol.SymbolMap, len(libs))
	moduleErrors := make([]error, len(libs))

	g, ctx := errgroup.WithContext(req.Context())
	for i := range libs {
		i := i
		g.Go(func() error {
			sm, err := h.Resolver.Resolve(ctx, libs[i])
			if err != nil {
				moduleErrors[i] = err
				return nil // per-library failures never abort the batch
			}
			maps[i] = sm
			return nil
		})
	}
	_ = g.Wait() // errors are carried per-index in moduleErrors, not returned

	result := JobResult{
		Stacks:       make([][]StackFrame, len(body.Stacks)),
		FoundModules: make(map[string]bool, len(libs)),
		ModuleErrors: make(map[string][]string),
	}
	for i, lib := range libs {
		key := lib.DebugName + "/" + lib.DebugID.ToBreakpad()
		result.FoundModules[key] = maps[i] != nil
		if moduleErrors[i] != nil {
			result.ModuleErrors[key] = []string{moduleErrors[i].Error()}
		}
	}

	for si, stack := range body.Stacks {
		frames := make([]StackFrame, 0, len(stack))
		for fi, entry := range stack {
			moduleIndex, offset := entry[0], entry[1]
			frames = append(frames, resolveFrame(fi, moduleIndex, offset, libs, maps))
		}
		result.Stacks[si] = frames
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SymbolicateResponse{Results: []JobResult{result}})
}

func resolveFrame(frameIndex, moduleIndex, offset int, libs []locator.LibraryInfo, maps []symbol.SymbolMap) StackFrame {
	out := StackFrame{
		Frame:        frameIndex,
		ModuleOffset: fmt.Sprintf("0x%x", offset),
	}
	if moduleIndex < 0 || moduleIndex >= len(libs) {
		return out
	}
	out.Module = libs[moduleIndex].DebugName

	sm := maps[moduleIndex]
	if sm == nil {
		return out
	}
	info, err := sm.LookupSync(symbol.Relative(uint32(offset)))
	if err != nil || info == nil {
		return out
	}

	name := info.Symbol.Name
	out.Function = &name
	funcOffset := fmt.Sprintf("0x%x", uint32(offset)-info.Symbol.Address)
	out.FunctionOffset = &funcOffset
	if info.Symbol.Size != nil {
		size := int(*info.Symbol.Size)
		out.FunctionSize = &size
	}

	if info.Frames != nil && info.Frames.Kind == symbol.FramesAvailable && len(info.Frames.Frames) > 0 {
		innermost := info.Frames.Frames[len(info.Frames.Frames)-1]
		if innermost.File != "" {
			file := innermost.File
			out.File = &file
		}
		if innermost.Line != 0 {
			line := int(innermost.Line)
			out.Line = &line
		}
		for _, fr := range info.Frames.Frames[:len(info.Frames.Frames)-1] {
			fn := fr.Function
			file := fr.File
			line := int(fr.Line)
			out.Inlines = append(out.Inlines, InlineFrame{Function: &fn, File: &file, Line: &line})
		}
	}
	return out
}
