package recycling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/symprofile/profile"
)

func TestProcessRecyclingRoundTrip(t *testing.T) {
	pools, err := NewPools(16)
	require.NoError(t, err)

	_, ok := pools.AcquireProcess("cc1")
	require.False(t, ok)

	pools.ReleaseProcess("cc1", profile.ProcessHandle(7))
	h, ok := pools.AcquireProcess("cc1")
	require.True(t, ok)
	require.Equal(t, profile.ProcessHandle(7), h)

	_, ok = pools.AcquireProcess("cc1")
	require.False(t, ok, "handle should only be acquirable once")
}

func TestThreadRecyclingIsKeyedByExeAndThreadName(t *testing.T) {
	pools, err := NewPools(16)
	require.NoError(t, err)

	pools.ReleaseThread("cc1", "worker-0", profile.ThreadHandle(3))
	_, ok := pools.AcquireThread("cc1", "worker-1")
	require.False(t, ok)

	h, ok := pools.AcquireThread("cc1", "worker-0")
	require.True(t, ok)
	require.Equal(t, profile.ThreadHandle(3), h)
}

func TestJitFunctionRecycling(t *testing.T) {
	pools, err := NewPools(16)
	require.NoError(t, err)

	pools.ReleaseJitFunction("Array.prototype.map", profile.FuncIndex(42))
	h, ok := pools.AcquireJitFunction("Array.prototype.map")
	require.True(t, ok)
	require.Equal(t, profile.FuncIndex(42), h)
}
