// Package pprofutil re-exports github.com/google/pprof's profile types
// under names that don't collide with this module's own profile package
// when both are imported side by side, as reporter.ExportPprof does.
package pprofutil

import pprofprofile "github.com/google/pprof/profile"

// Profile is github.com/google/pprof/profile.Profile: the gzipped
// protobuf wire format consumed by `go tool pprof`, Parca, and Pyroscope.
type Profile = pprofprofile.Profile

type (
	ValueType = pprofprofile.ValueType
	Sample    = pprofprofile.Sample
	Location  = pprofprofile.Location
	Line      = pprofprofile.Line
	Function  = pprofprofile.Function
	Mapping   = pprofprofile.Mapping
)
