// Package hostinfo collects host/CPU metadata folded into profile.Meta
// (SPEC_FULL.md §4.15): microarchitecture and core counts via cpuid,
// boot time via procfs, and best-effort GCE instance metadata when running
// on Google Cloud.
package hostinfo

import (
	"fmt"

	"cloud.google.com/go/compute/metadata"
	"github.com/klauspost/cpuid/v2"
	"github.com/prometheus/procfs"

	"github.com/elastic/symprofile/internal/log"
)

// CPU describes the host's processor, folded into profile.Meta as an
// additive extension field (SPEC_FULL.md §4.15).
type CPU struct {
	VendorID         string
	BrandName        string
	PhysicalCores    int
	LogicalCores     int
	Microarchitecture string
}

// GCE carries best-effort Google Compute Engine instance metadata, nil
// when not running on GCE.
type GCE struct {
	Zone        string
	MachineType string
	InstanceID  string
}

// Info is the full host-metadata bundle hostinfo.Collect produces.
type Info struct {
	Platform  string
	CPU       CPU
	BootTime  uint64
	GCE       *GCE
}

// Collect gathers everything available on the current host. Every
// sub-collector degrades gracefully: a missing /proc or non-GCE
// environment yields a zero-value field rather than an error, since none
// of this is essential to producing a profile.
func Collect(platform string) Info {
	info := Info{
		Platform: platform,
		CPU: CPU{
			VendorID:          cpuid.CPU.VendorString,
			BrandName:         cpuid.CPU.BrandName,
			PhysicalCores:     cpuid.CPU.PhysicalCores,
			LogicalCores:      cpuid.CPU.LogicalCores,
			Microarchitecture: microarchString(),
		},
	}

	if fs, err := procfs.NewDefaultFS(); err == nil {
		if stat, err := fs.Stat(); err == nil {
			info.BootTime = stat.BootTime
		}
	} else {
		log.Debugf("hostinfo: /proc unavailable: %v", err)
	}

	if metadata.OnGCE() {
		info.GCE = collectGCE()
	}

	return info
}

// microarchString renders a family/model identifier rather than a named
// microarchitecture string: cpuid/v2 exposes family/model/stepping
// directly and reliably across vendors, whereas mapping those to a
// marketing microarchitecture name is a large, frequently-stale lookup
// table this toolkit doesn't need to own.
func microarchString() string {
	return fmt.Sprintf("family %d model %d stepping %d", cpuid.CPU.Family, cpuid.CPU.Model, cpuid.CPU.Stepping)
}

func collectGCE() *GCE {
	g := &GCE{}
	if zone, err := metadata.Zone(); err == nil {
		g.Zone = zone
	}
	if id, err := metadata.InstanceID(); err == nil {
		g.InstanceID = id
	}
	if mt, err := metadata.Get("instance/machine-type"); err == nil {
		g.MachineType = mt
	}
	return g
}
