package profile

import "fmt"

// Profile is the process-wide, append-only profile builder: the single
// entry point that owns the shared interning hierarchy (strings,
// categories, the global library table) and every process/thread it has
// been told about (spec.md §2's "Profile Data Model & Aggregation
// Engine"). It is single-writer and not safe to use across profiles
// (spec.md §5): handles minted by one Profile are meaningless on another.
type Profile struct {
	Meta Meta

	strings    *stringTable
	sourceFiles *sourceFileTable
	categories *categoryTable
	libraries  *libraryTable
	resources  *resourceTable

	processes []*Process
	threads   []*Thread
}

// Meta is the profile-wide metadata object (spec.md §6 "meta").
type Meta struct {
	Interval  float64 // ms between samples
	StartTime float64 // ms since unix epoch
	Product   string
	Platform  string
	// Ext carries additive fields this toolkit attaches beyond the
	// spec-mandated set (host/cpu info, container labels) without
	// displacing any spec-required key (SPEC_FULL.md §4.14/§4.15).
	Ext map[string]any
}

// NewProfile creates an empty profile ready to accept processes/threads.
func NewProfile(meta Meta) *Profile {
	return &Profile{
		Meta:        meta,
		strings:     newStringTable(),
		sourceFiles: newSourceFileTable(nil),
		categories:  newCategoryTable(),
		libraries:   newLibraryTable(),
		resources:   newResourceTable(),
	}
}

// InternString interns s into the profile-wide string table.
func (p *Profile) InternString(s string) StringHandle { return p.strings.HandleFor(s) }

// InternSourceFile interns a raw source path into the profile-wide
// source-file table.
func (p *Profile) InternSourceFile(path string) SourceFileHandle {
	return p.sourceFiles.HandleFor(path)
}

// Category interns/returns a top-level category handle.
func (p *Profile) Category(name, color string) CategoryHandle {
	return p.categories.HandleFor(name, color)
}

// Subcategory interns/returns a (category, sub) handle.
func (p *Profile) Subcategory(categoryName, color, subName string) SubcategoryHandle {
	return p.categories.SubcategoryFor(categoryName, color, subName)
}

// InternLibrary interns lib into the global library table, returning both
// its handle and the canonical (possibly pre-existing) *Library so
// callers can accumulate UsedRVA on it.
func (p *Profile) InternLibrary(lib Library) (LibraryHandle, *Library) {
	return p.libraries.HandleFor(lib)
}

// Library returns the canonical *Library for h.
func (p *Profile) Library(h LibraryHandle) *Library { return p.libraries.Get(h) }

// ResourceForLibrary interns/returns a resource handle for a native
// library.
func (p *Profile) ResourceForLibrary(lib LibraryHandle) ResourceHandle {
	return p.resources.ForLibrary(lib)
}

// ResourceForURL interns/returns a resource handle for a script URL.
func (p *Profile) ResourceForURL(name StringHandle) ResourceHandle {
	return p.resources.ForURL(name)
}

// AddProcess registers a new process and returns its handle.
func (p *Profile) AddProcess(name string, pid int64, registerTime Timestamp) ProcessHandle {
	p.processes = append(p.processes, &Process{Name: name, PID: pid, RegisterTime: registerTime})
	return ProcessHandle(len(p.processes) - 1)
}

// UnregisterProcess marks a process as having ended.
func (p *Profile) UnregisterProcess(h ProcessHandle, t Timestamp) {
	p.processes[h].UnregisterTime = &t
}

// AddThread registers a new thread under process h and returns its
// handle. Enforces the "ThreadHandle belongs to exactly one
// ProcessHandle" invariant by construction: a Thread can only be created
// attached to a process.
func (p *Profile) AddThread(process ProcessHandle, name string, tid int64, registerTime Timestamp) ThreadHandle {
	proc := p.processes[process]
	th := newThread(process, name, tid, proc.PID, registerTime)
	p.threads = append(p.threads, th)
	handle := ThreadHandle(len(p.threads) - 1)
	proc.Threads = append(proc.Threads, handle)
	return handle
}

// UnregisterThread marks a thread as having ended.
func (p *Profile) UnregisterThread(h ThreadHandle, t Timestamp) {
	p.threads[h].UnregisterTime = &t
}

// Thread returns the *Thread for a handle. Panics on an invalid handle,
// same as every other table accessor in this package.
func (p *Profile) Thread(h ThreadHandle) *Thread { return p.threads[h] }

// NumThreads returns the number of registered threads, for callers that
// need to walk every thread (e.g. reporter.ExportPprof).
func (p *Profile) NumThreads() int { return len(p.threads) }

// NumProcesses returns the number of registered processes.
func (p *Profile) NumProcesses() int { return len(p.processes) }

// Process returns the *Process for a handle.
func (p *Profile) Process(h ProcessHandle) *Process { return p.processes[h] }

// String resolves a StringHandle minted by InternString.
func (p *Profile) String(h StringHandle) string { return p.strings.Get(h) }

// SourceFile resolves a SourceFileHandle to its canonicalized path, or ""
// for NoSourceFile.
func (p *Profile) SourceFile(h SourceFileHandle) string { return p.sourceFiles.Path(h) }

// Resource resolves a ResourceHandle minted by ResourceForLibrary/
// ResourceForURL.
func (p *Profile) Resource(h ResourceHandle) Resource { return p.resources.Get(h) }

// CheckInvariants walks the profile and validates three of the invariants
// of spec.md §3: every frame's func index is in range, every stack's
// prefix is strictly smaller than the stack itself, and every thread is
// listed under its process. It returns the first violation found; the
// other invariants are not checked here. Intended for tests and for a
// debug-build assertion pass, not the hot path.
func (p *Profile) CheckInvariants() error {
	for ti, th := range p.threads {
		for fi := 0; fi < th.frames.Len(); fi++ {
			f := th.frames.Get(FrameHandle(fi))
			if int(f.Func) >= th.funcs.Len() {
				return fmt.Errorf("thread %d frame %d: func index %d out of range", ti, fi, f.Func)
			}
		}
		for si := 0; si < th.stacks.Len(); si++ {
			s := th.stacks.Get(StackIndex(si))
			if s.Prefix != NoStack && int(s.Prefix) >= si {
				return fmt.Errorf("thread %d stack %d: prefix %d is not strictly smaller", ti, si, s.Prefix)
			}
		}
		if proc := p.processes[th.Process]; proc != nil {
			found := false
			for _, handle := range proc.Threads {
				if int(handle) == ti {
					found = true
				}
			}
			if !found {
				return fmt.Errorf("thread %d not listed under its process", ti)
			}
		}
	}
	return nil
}
