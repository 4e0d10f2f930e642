// Package quota implements the download-cache quota manager of spec.md
// §4.11: a background task enforcing a max total size and max age over a
// directory the locator/downloader writes debug files into, with a
// persisted file inventory so eviction state survives restarts.
package quota

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/elastic/symprofile/internal/log"
)

// entry is one file's inventory record.
type entry struct {
	Path         string
	Size         int64
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Manager governs eviction over a single cache directory (spec.md §4.11).
// All exported methods are safe for concurrent use; the eviction worker
// runs on its own goroutine, woken by a coalesced signal channel so N
// rapid triggers while the worker is busy still cause only one pass.
type Manager struct {
	dir          string
	inventoryFile string

	mu       sync.Mutex
	files    map[string]entry
	maxTotal *int64
	maxAge   *time.Duration

	trigger chan struct{}
	done    chan struct{}
}

// New creates a Manager rooted at dir, reconciling its inventory against
// the directory's actual contents (spec.md §4.11 "on startup, the
// inventory is reconciled by scanning the directory").
func New(dir string) (*Manager, error) {
	m := &Manager{
		dir:           dir,
		inventoryFile: filepath.Join(dir, ".quota-inventory.gob"),
		files:         make(map[string]entry),
		trigger:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	if err := m.loadInventory(); err != nil {
		log.Warnf("quota: failed to load inventory, starting fresh: %v", err)
	}
	if err := m.reconcile(); err != nil {
		return nil, err
	}
	go m.worker()
	return m, nil
}

func (m *Manager) loadInventory() error {
	f, err := os.Open(m.inventoryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var files map[string]entry
	if err := gob.NewDecoder(f).Decode(&files); err != nil {
		return err
	}
	m.mu.Lock()
	m.files = files
	m.mu.Unlock()
	return nil
}

func (m *Manager) saveInventory() error {
	m.mu.Lock()
	snapshot := make(map[string]entry, len(m.files))
	for k, v := range m.files {
		snapshot[k] = v
	}
	m.mu.Unlock()

	tmp := m.inventoryFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, m.inventoryFile)
}

// reconcile drops inventory entries whose file no longer exists and adds
// entries for files present on disk but missing from the inventory
// (treating their on-disk mtime as both created and last-accessed time).
func (m *Manager) reconcile() error {
	seen := make(map[string]bool)
	err := filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == filepath.Base(m.inventoryFile) {
			return nil
		}
		seen[path] = true
		m.mu.Lock()
		if _, ok := m.files[path]; !ok {
			m.files[path] = entry{
				Path:         path,
				Size:         info.Size(),
				CreatedAt:    info.ModTime(),
				LastAccessAt: info.ModTime(),
			}
		}
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	for path := range m.files {
		if !seen[path] {
			delete(m.files, path)
		}
	}
	m.mu.Unlock()
	return nil
}

// OnFileCreated registers a freshly downloaded file (spec.md §4.11).
func (m *Manager) OnFileCreated(path string, size int64, at time.Time) {
	m.mu.Lock()
	m.files[path] = entry{Path: path, Size: size, CreatedAt: at, LastAccessAt: at}
	m.mu.Unlock()
	m.TriggerEvictionIfNeeded()
}

// OnFileAccessed bumps a file's last-access time, the field eviction
// order is sorted by.
func (m *Manager) OnFileAccessed(path string, at time.Time) {
	m.mu.Lock()
	if e, ok := m.files[path]; ok {
		e.LastAccessAt = at
		m.files[path] = e
	}
	m.mu.Unlock()
}

// OnFileDeleted removes a file the caller deleted directly (outside of
// this manager's own eviction pass) from the inventory.
func (m *Manager) OnFileDeleted(path string) {
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
}

// SetMaxTotalSize sets (or clears, with nil) the total-bytes budget.
func (m *Manager) SetMaxTotalSize(bytes *int64) {
	m.mu.Lock()
	m.maxTotal = bytes
	m.mu.Unlock()
	m.TriggerEvictionIfNeeded()
}

// SetMaxAge sets (or clears, with nil) the max-age budget.
func (m *Manager) SetMaxAge(d *time.Duration) {
	m.mu.Lock()
	m.maxAge = d
	m.mu.Unlock()
	m.TriggerEvictionIfNeeded()
}

// TriggerEvictionIfNeeded is the coalesced signal of spec.md §4.11: a
// full trigger channel means a pass is already queued, so this is a
// non-blocking best-effort send.
func (m *Manager) TriggerEvictionIfNeeded() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Close stops the eviction worker and flushes the inventory to disk.
func (m *Manager) Close() error {
	close(m.done)
	return m.saveInventory()
}

func (m *Manager) worker() {
	for {
		select {
		case <-m.trigger:
			if err := m.evict(); err != nil {
				log.Warnf("quota: eviction pass failed: %v", err)
			}
			if err := m.saveInventory(); err != nil {
				log.Warnf("quota: failed to persist inventory: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// evict implements spec.md §4.11's two-step policy: delete files older
// than max-age first, then delete in increasing last-access order until
// total size satisfies max-total-size.
func (m *Manager) evict() error {
	m.mu.Lock()
	maxAge := m.maxAge
	maxTotal := m.maxTotal
	snapshot := make([]entry, 0, len(m.files))
	for _, e := range m.files {
		snapshot = append(snapshot, e)
	}
	m.mu.Unlock()

	var errs error
	now := time.Now()
	kept := snapshot[:0:0]
	for _, e := range snapshot {
		if maxAge != nil && now.Sub(e.CreatedAt) > *maxAge {
			if err := m.deleteFile(e.Path); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		kept = append(kept, e)
	}

	if maxTotal != nil {
		var total int64
		for _, e := range kept {
			total += e.Size
		}
		if total > *maxTotal {
			sort.Slice(kept, func(i, j int) bool { return kept[i].LastAccessAt.Before(kept[j].LastAccessAt) })
			i := 0
			for total > *maxTotal && i < len(kept) {
				if err := m.deleteFile(kept[i].Path); err != nil {
					errs = multierr.Append(errs, err)
				} else {
					total -= kept[i].Size
				}
				i++
			}
		}
	}

	m.pruneEmptyDirs()
	return errs
}

func (m *Manager) deleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
	return nil
}

// pruneEmptyDirs removes directories left empty by eviction, bottom-up
// (spec.md §4.11).
func (m *Manager) pruneEmptyDirs() {
	var dirs []string
	filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && info != nil && info.IsDir() && path != m.dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		_ = os.Remove(d) // only succeeds if empty
	}
}
