package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	samples []Sample
	maps    []LibMappingEvent
	markers []MarkerEvent
}

func (c *recordingConsumer) AddSample(s Sample)          { c.samples = append(c.samples, s) }
func (c *recordingConsumer) AddLibMapping(e LibMappingEvent) { c.maps = append(c.maps, e) }
func (c *recordingConsumer) AddMarker(m MarkerEvent)      { c.markers = append(c.markers, m) }

func TestSorterReordersWithinWindow(t *testing.T) {
	rec := &recordingConsumer{}
	s := NewSorter(100, rec)

	s.AddSample(Sample{Timestamp: 50})
	s.AddSample(Sample{Timestamp: 10})
	s.AddSample(Sample{Timestamp: 30})
	s.Close()

	require.Len(t, rec.samples, 3)
	require.Equal(t, []int64{10, 30, 50}, []int64{rec.samples[0].Timestamp, rec.samples[1].Timestamp, rec.samples[2].Timestamp})
}

func TestSorterFlushesOnlyStableSamples(t *testing.T) {
	rec := &recordingConsumer{}
	s := NewSorter(10, rec)

	s.AddSample(Sample{Timestamp: 5})
	s.AddSample(Sample{Timestamp: 100}) // pushes cutoff to 90, flushing the timestamp-5 sample
	require.Len(t, rec.samples, 1)
	require.Equal(t, int64(5), rec.samples[0].Timestamp)

	s.Close()
	require.Len(t, rec.samples, 2)
	require.Equal(t, int64(100), rec.samples[1].Timestamp)
}

func TestSorterPassesLibMappingAndMarkerThrough(t *testing.T) {
	rec := &recordingConsumer{}
	s := NewSorter(10, rec)

	s.AddLibMapping(LibMappingEvent{Pid: 1, DebugName: "libc.so"})
	s.AddMarker(MarkerEvent{Pid: 1, Name: "gc"})

	require.Len(t, rec.maps, 1)
	require.Len(t, rec.markers, 1)
}
