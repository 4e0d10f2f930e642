package reporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/elastic/symprofile/capture"
	"github.com/elastic/symprofile/profile"
)

// TestMain checks that Engine.Stop actually ends the Start goroutine
// rather than leaking it across tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEngineResolvesSampleIntoProfile(t *testing.T) {
	prof := profile.NewProfile(profile.Meta{Product: "symprofile"})
	e := New(prof, nil)

	e.AddLibMapping(capture.LibMappingEvent{
		Pid:           100,
		Timestamp:     1,
		Kind:          capture.LibMappingAdd,
		StartAVMA:     0x1000,
		EndAVMA:       0x2000,
		RelativeStart: 0,
		Path:          "/lib/libtest.so",
		DebugName:     "libtest.so",
	})

	e.AddSample(capture.Sample{
		Pid:       100,
		Tid:       100,
		Timestamp: 10,
		CPUDelta:  500,
		Weight:    1,
		Stack: []capture.RawFrame{
			{Mode: capture.FrameModeUser, Kind: capture.FrameKindIP, Address: 0x1100},
		},
	})

	e.Resolve()

	require.NoError(t, prof.CheckInvariants())

	body, err := prof.MarshalJSON()
	require.NoError(t, err)
	require.NotEmpty(t, body)
}

func TestEngineStartStopRunsReportCallback(t *testing.T) {
	prof := profile.NewProfile(profile.Meta{Product: "symprofile"})
	e := New(prof, nil)

	e.AddSample(capture.Sample{Pid: 1, Tid: 1, Timestamp: 1, CPUDelta: 1, Weight: 1})

	reported := make(chan struct{}, 1)
	e.Start(10*time.Millisecond, func(p *profile.Profile) {
		select {
		case reported <- struct{}{}:
		default:
		}
	})
	defer e.Stop()

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("report callback never fired")
	}
}

func TestEngineMarkerIsRecorded(t *testing.T) {
	prof := profile.NewProfile(profile.Meta{Product: "symprofile"})
	e := New(prof, nil)

	e.AddMarker(capture.MarkerEvent{
		Pid:       5,
		Tid:       5,
		Timestamp: 1,
		Name:      "gc-pause",
		Category:  "GC",
		Payload:   map[string]string{"reason": "alloc"},
	})

	require.NoError(t, prof.CheckInvariants())
}
