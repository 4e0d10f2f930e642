package quota

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestEvictionBySize(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.debug", 100)
	b := writeFile(t, dir, "b.debug", 100)

	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	now := time.Now()
	m.OnFileCreated(a, 100, now.Add(-time.Minute))
	m.OnFileAccessed(a, now.Add(-time.Minute))
	m.OnFileCreated(b, 100, now)
	m.OnFileAccessed(b, now)

	maxTotal := int64(150)
	m.SetMaxTotalSize(&maxTotal)

	require.Eventually(t, func() bool {
		_, errA := os.Stat(a)
		return os.IsNotExist(errA)
	}, 2*time.Second, 10*time.Millisecond)

	_, errB := os.Stat(b)
	require.NoError(t, errB, "more recently accessed file should survive")
}

func TestEvictionByAge(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.debug", 10)

	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	m.OnFileCreated(old, 10, time.Now().Add(-2*time.Hour))

	maxAge := time.Hour
	m.SetMaxAge(&maxAge)

	require.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInventoryReconciliationPicksUpUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "untracked.debug", 10)

	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	m.mu.Lock()
	_, ok := m.files[filepath.Join(dir, "untracked.debug")]
	m.mu.Unlock()
	require.True(t, ok)
}
