// Package reporter is the sample-resolution engine: it absorbs whatever
// a capture.Producer feeds it (capture.Consumer), replays per-process
// lib-mapping ops in timestamp order, runs every stack through
// stackconv.Pipeline, and appends the result into a shared
// profile.Profile. This replaces the teacher's OTLP/gRPC export loop —
// this toolkit's destination is the profile JSON component (A) consumes
// directly, not an external telemetry collector — while keeping its
// shape: an LRU-backed per-entity cache feeding a periodic reporting
// tick, started and stopped the same way.
package reporter

import (
	"context"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/elastic/symprofile/capture"
	"github.com/elastic/symprofile/containerinfo"
	"github.com/elastic/symprofile/internal/log"
	"github.com/elastic/symprofile/libmappings"
	"github.com/elastic/symprofile/profile"
	"github.com/elastic/symprofile/stackconv"
	"github.com/elastic/symprofile/unresolved"
)

// processState is everything the engine tracks per observed process: its
// own lib-mapping layering (native mappings live in one address space,
// spec.md §4.3), its profile.ProcessHandle, and its threads.
type processState struct {
	handle    profile.ProcessHandle
	hierarchy *libmappings.LibMappingsHierarchy
	threads   map[int]profile.ThreadHandle
}

// Engine implements capture.Consumer and periodically resolves whatever
// it has buffered into prof. It assumes its caller delivers Sample calls
// in non-decreasing timestamp order per thread — pairing it with
// capture.Sorter upstream of a live Producer provides that; a one-shot
// import path (e.g. a jitdump/perf-map replay) that already has sorted
// input can call Engine's methods directly.
type Engine struct {
	mu sync.Mutex

	prof      *profile.Profile
	store     *unresolved.Store
	processes map[int]*processState

	userCategory   profile.SubcategoryHandle
	kernelCategory profile.SubcategoryHandle

	containers *containerinfo.Resolver

	stopCh   chan struct{}
	onReport func(*profile.Profile)
}

// New builds an Engine writing into prof. containers may be nil when no
// container/pod enrichment is configured (SPEC_FULL.md §4.14).
func New(prof *profile.Profile, containers *containerinfo.Resolver) *Engine {
	userCat := prof.Subcategory("Other", "grey", "User")
	kernelCat := prof.Subcategory("Other", "grey", "Kernel")
	return &Engine{
		prof:           prof,
		store:          unresolved.NewStore(),
		processes:      make(map[int]*processState),
		userCategory:   userCat,
		kernelCategory: kernelCat,
		containers:     containers,
		stopCh:         make(chan struct{}),
	}
}

var _ capture.Consumer = (*Engine)(nil)

// Start runs Resolve on a ticker until Stop is called, mirroring the
// teacher's periodic-report goroutine shape. onReport is invoked with
// the engine's profile after each resolution pass, typically to persist
// or serve prof.MarshalJSON().
func (e *Engine) Start(interval time.Duration, onReport func(*profile.Profile)) {
	e.onReport = onReport
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case <-tick.C:
				e.Resolve()
				if e.onReport != nil {
					e.onReport(e.prof)
				}
			}
		}
	}()
}

// Stop ends the reporting loop; any buffered-but-unresolved samples are
// left for a final Resolve call.
func (e *Engine) Stop() { close(e.stopCh) }

// AddSample implements capture.Consumer: it interns the raw stack into
// the process-wide trie and appends an UnresolvedSample, mirroring
// spec.md §4.4's capture-side fast path (no symbol lookup on this call).
func (e *Engine) AddSample(s capture.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.processState(s.Pid, s.Timestamp)
	// s.Stack is innermost first; the trie takes caller-most first.
	frames := make([]unresolved.StackFrame, len(s.Stack))
	for i, f := range s.Stack {
		frames[len(s.Stack)-1-i] = unresolved.StackFrame{
			Mode:    unresolved.FrameMode(f.Mode),
			Kind:    unresolved.FrameKind(f.Kind),
			Address: f.Address,
		}
	}
	stack := e.store.Trie.Convert(frames)
	e.store.AddSample(unresolved.ThreadID{PID: int64(s.Pid), TID: int64(s.Tid)}, s.Timestamp, s.Timestamp, stack, s.CPUDelta, s.Weight)
}

// AddLibMapping implements capture.Consumer: it interns the library
// identity and pushes a timestamped op onto the owning process's regular
// layer (spec.md §4.3).
func (e *Engine) AddLibMapping(ev capture.LibMappingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.processState(ev.Pid, ev.Timestamp)
	op := libmappings.LibMappingOp{OldStart: ev.StartAVMA}

	switch ev.Kind {
	case capture.LibMappingClear:
		op.Kind = libmappings.OpClear
	case capture.LibMappingRemove:
		op.Kind = libmappings.OpRemove
	case capture.LibMappingMove, capture.LibMappingAdd:
		if ev.Kind == capture.LibMappingMove {
			op.Kind = libmappings.OpMove
		} else {
			op.Kind = libmappings.OpAdd
		}
		libHandle, _ := e.prof.InternLibrary(profile.Library{DebugName: ev.DebugName, Path: ev.Path})
		op.Start = ev.StartAVMA
		op.End = ev.EndAVMA
		op.RelAtStart = ev.RelativeStart
		op.Value = stackconv.LibMappingInfo{Lib: libHandle}
	}
	st.hierarchy.RegularOps().Push(ev.Timestamp, op)
}

// AddMarker implements capture.Consumer: it interns a marker onto the
// unresolved store, attached to no stack (spec.md §3 marker-only rows
// carry unresolved.NoStack).
func (e *Engine) AddMarker(m capture.MarkerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.processState(m.Pid, m.Timestamp)
	th := e.thread(st, m.Pid, m.Tid, m.Timestamp)

	var payload *structpb.Struct
	if len(m.Payload) > 0 {
		asAny := make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			asAny[k] = v
		}
		payload, _ = structpb.NewStruct(asAny)
	}

	handle := e.prof.Thread(th).AddMarker(profile.Marker{
		Name:      e.prof.InternString(m.Name),
		StartTime: profile.Timestamp(m.Timestamp),
		EndTime:   profile.Timestamp(m.Timestamp),
		Timing:    profile.MarkerInstant,
		Category:  e.prof.Subcategory(m.Category, "grey", "default").Category,
		Payload:   payload,
	})
	e.store.AddMarker(unresolved.ThreadID{PID: int64(m.Pid), TID: int64(m.Tid)}, m.Timestamp, m.Timestamp, unresolved.NoStack, handle)
}

// Resolve drains every buffered UnresolvedSample in capture order,
// advancing each sample's owning process's lib-mapping layers to its
// timestamp before converting its stack, per spec.md §4.6.
func (e *Engine) Resolve() {
	e.mu.Lock()
	defer e.mu.Unlock()

	drained := e.store.Drain()
	for _, s := range drained {
		st := e.processes[int(s.Thread.PID)]
		if st == nil {
			continue // lib mapping/thread registration happens before any sample referencing it
		}
		st.hierarchy.ProcessOps(s.Timestamp)

		th := e.thread(st, int(s.Thread.PID), int(s.Thread.TID), s.Timestamp)
		threadObj := e.prof.Thread(th)

		if s.Kind == unresolved.PayloadMarker {
			continue // already interned at AddMarker time; this row only carries ordering
		}

		var leafFirst []unresolved.StackFrame
		leafFirst = e.store.Trie.ConvertBack(s.Stack, leafFirst)
		rootFirst := make([]unresolved.StackFrame, len(leafFirst))
		for i, f := range leafFirst {
			rootFirst[len(leafFirst)-1-i] = f
		}

		pipeline := &stackconv.Pipeline{
			Hierarchy:      st.hierarchy,
			UserCategory:   e.userCategory,
			KernelCategory: e.kernelCategory,
		}
		stackIdx := pipeline.Convert(threadObj, rootFirst)
		threadObj.AddSample(profile.Timestamp(s.Timestamp), stackIdx, profile.CpuDelta(s.Sample.CPUDelta), profile.Weight(s.Sample.Weight))
	}
	log.Debugf("reporter: resolved %d samples", len(drained))
}

// processState returns (creating on first reference) the processState
// for pid, registering it in prof at firstSeenTimestamp.
func (e *Engine) processState(pid int, firstSeenTimestamp int64) *processState {
	if st, ok := e.processes[pid]; ok {
		return st
	}
	handle := e.prof.AddProcess("", int64(pid), profile.Timestamp(firstSeenTimestamp))
	st := &processState{
		handle:    handle,
		hierarchy: libmappings.NewHierarchy(),
		threads:   make(map[int]profile.ThreadHandle),
	}
	e.processes[pid] = st

	if e.containers != nil {
		meta := e.containers.Resolve(context.Background(), containerinfo.CgroupPath(pid))
		if meta.PodName != "" {
			log.Debugf("reporter: pid %d belongs to pod %s/%s", pid, meta.PodNamespace, meta.PodName)
		}
	}
	return st
}

// thread returns (creating on first reference) the ThreadHandle for
// (pid, tid) under st, registering it in prof at firstSeenTimestamp.
func (e *Engine) thread(st *processState, pid, tid int, firstSeenTimestamp int64) profile.ThreadHandle {
	if h, ok := st.threads[tid]; ok {
		return h
	}
	h := e.prof.AddThread(st.handle, "", int64(tid), profile.Timestamp(firstSeenTimestamp))
	st.threads[tid] = h
	return h
}
