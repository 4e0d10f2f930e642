package hostinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectNeverPanicsOffGCE(t *testing.T) {
	info := Collect("linux/amd64")
	require.Equal(t, "linux/amd64", info.Platform)
	require.NotEmpty(t, info.CPU.Microarchitecture)
}
