// Package recycling implements spec.md §2's Recycling Pools: reuse of
// per-process, per-thread, and per-JIT-function profile handles across
// short-lived child processes that share the same executable name, so a
// capture of (e.g.) a build system spawning hundreds of short-lived
// `cc1` processes doesn't allocate a fresh set of profile handles for
// each one.
//
// The recycling key is (executable name, thread name) rather than pid —
// pids are reused by the OS and carry no identity across a process's
// lifetime, whereas "this is another cc1 worker thread" is exactly the
// grouping a flame graph wants collapsed together.
package recycling

import (
	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"github.com/elastic/symprofile/profile"
)

func hashString(s string) uint32 { return uint32(xxh3.HashString(s)) }

// processKey identifies a recyclable process slot.
type processKey struct{ exeName string }

// threadKey identifies a recyclable thread slot within a process.
type threadKey struct{ exeName, threadName string }

func (k processKey) hash() uint32 { return hashString(k.exeName) }
func (k threadKey) hash() uint32  { return hashString(k.exeName + "\x00" + k.threadName) }

// Pools holds the three recycling caches spec.md §2 names. Capacity bounds
// how many dead handles of each kind stay eligible for reuse; entries are
// evicted LRU once a pool fills, same as every other bounded cache in this
// module.
type Pools struct {
	processes *lru.SyncedLRU[processKey, profile.ProcessHandle]
	threads   *lru.SyncedLRU[threadKey, profile.ThreadHandle]
	jitFuncs  *lru.SyncedLRU[string, profile.FuncIndex]
}

// NewPools builds recycling pools with capacity reusable slots per kind.
func NewPools(capacity uint32) (*Pools, error) {
	processes, err := lru.NewSynced[processKey, profile.ProcessHandle](capacity, processKey.hash)
	if err != nil {
		return nil, err
	}
	threads, err := lru.NewSynced[threadKey, profile.ThreadHandle](capacity, threadKey.hash)
	if err != nil {
		return nil, err
	}
	jitFuncs, err := lru.NewSynced[string, profile.FuncIndex](capacity, hashString)
	if err != nil {
		return nil, err
	}
	return &Pools{processes: processes, threads: threads, jitFuncs: jitFuncs}, nil
}

// ReleaseProcess returns a dead process's handle to the pool, keyed by its
// executable name, for AcquireProcess to hand back to the next process
// launched under the same name.
func (p *Pools) ReleaseProcess(exeName string, h profile.ProcessHandle) {
	p.processes.Add(processKey{exeName: exeName}, h)
}

// AcquireProcess returns a previously-released handle for exeName, if one
// is available, removing it from the pool.
func (p *Pools) AcquireProcess(exeName string) (profile.ProcessHandle, bool) {
	h, ok := p.processes.Get(processKey{exeName: exeName})
	if ok {
		p.processes.Remove(processKey{exeName: exeName})
	}
	return h, ok
}

// ReleaseThread and AcquireThread are the thread-handle equivalents,
// keyed by (executable name, thread name).
func (p *Pools) ReleaseThread(exeName, threadName string, h profile.ThreadHandle) {
	p.threads.Add(threadKey{exeName: exeName, threadName: threadName}, h)
}

func (p *Pools) AcquireThread(exeName, threadName string) (profile.ThreadHandle, bool) {
	key := threadKey{exeName: exeName, threadName: threadName}
	h, ok := p.threads.Get(key)
	if ok {
		p.threads.Remove(key)
	}
	return h, ok
}

// ReleaseJitFunction and AcquireJitFunction recycle FuncHandles for JIT
// symbols by name: re-running the same script or bytecode in a fresh VM
// instance commonly reloads JIT functions under identical names, so
// reusing the handle keeps the profile's function table from growing
// unbounded across VM restarts.
func (p *Pools) ReleaseJitFunction(name string, h profile.FuncIndex) {
	p.jitFuncs.Add(name, h)
}

func (p *Pools) AcquireJitFunction(name string) (profile.FuncIndex, bool) {
	h, ok := p.jitFuncs.Get(name)
	if ok {
		p.jitFuncs.Remove(name)
	}
	return h, ok
}
